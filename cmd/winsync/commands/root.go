package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "winsync",
		Short: "winsync - live, writable model of desktop windows",
		Long: `winsync tracks the top-level windows of an X11 desktop and keeps an
in-process model of their position, size, title and desktop in sync with the
window system.

Features:
  • Enumerate and track windows via EWMH
  • Event stream of window changes, tagged internal or external
  • Move, resize and re-desktop windows and read back the applied value
  • REST and WebSocket API for integration
  • MCP tools for assistants
  • Persistent configuration with environment and flag overrides`,
		SilenceUsage: true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/winsync/config.yaml)")
	rootCmd.PersistentFlags().String("driver", "", "window system driver (x11)")
	rootCmd.PersistentFlags().String("display", "", "X display to connect to (default is $DISPLAY)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human-readable console logs")
	rootCmd.PersistentFlags().Duration("request-timeout", 0, "bound on each window system request (0 disables)")
	rootCmd.PersistentFlags().String("unexpected-errors", "", "handling of unexpected driver errors (report, invalidate, panic)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
