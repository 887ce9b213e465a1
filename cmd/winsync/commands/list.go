package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/winsync/internal/state"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked windows",
	Long: `List all top-level windows winsync tracks.

This command connects to the window system, takes a consistent snapshot of
every existing window and prints it.`,
	Example: `  # List windows in table format (default)
  winsync list

  # List windows in JSON format
  winsync list --format json

  # List only windows on desktop 1
  winsync list --desktop 1`,
	RunE: runList,
}

var (
	listFormat  string
	listDesktop int
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().IntVarP(&listDesktop, "desktop", "d", -2, "show only windows on this desktop (-1 for sticky)")
}

func runList(cmd *cobra.Command, args []string) error {
	if listFormat != "table" && listFormat != "json" {
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	s, err := startSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	snaps := snapshots(s.state.Windows())
	if cmd.Flags().Changed("desktop") {
		snaps = onDesktop(snaps, listDesktop)
	}

	switch listFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(snaps)
	default:
		return printWindowsTable(os.Stdout, snaps)
	}
}

func snapshots(windows []*state.Window) []state.Snapshot {
	out := make([]state.Snapshot, 0, len(windows))
	for _, w := range windows {
		out = append(out, w.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func onDesktop(snaps []state.Snapshot, desktop int) []state.Snapshot {
	filtered := make([]state.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.Desktop == desktop {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

func printWindowsTable(out io.Writer, snaps []state.Snapshot) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tDESKTOP\tGEOMETRY\tTITLE")
	fmt.Fprintln(w, "--\t-------\t--------\t-----")

	for _, s := range snaps {
		desktop := fmt.Sprint(s.Desktop)
		if s.Desktop < 0 {
			desktop = "all"
		}
		fmt.Fprintf(w, "%s\t%s\t%dx%d+%d+%d\t%s\n",
			s.ID, desktop,
			s.Size.Width, s.Size.Height, s.Position.X, s.Position.Y,
			s.Title)
	}

	return w.Flush()
}
