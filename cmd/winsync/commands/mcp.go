package commands

import (
	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/winsync/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol server",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve window tools over stdio",
	Long: `Run an MCP server on stdin/stdout exposing list_windows, get_window,
move_window, resize_window, set_window_desktop and refresh_window. Logs go to
stderr.`,
	Example: `  winsync mcp serve`,
	RunE:    runMCPServe,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.AddCommand(mcpServeCmd)
}

func runMCPServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	s, err := startSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	return mcp.NewServer(s.state, nil).Run(ctx)
}
