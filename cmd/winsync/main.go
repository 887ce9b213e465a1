package main

import "github.com/bryanchriswhite/winsync/cmd/winsync/commands"

func main() {
	commands.Execute()
}
