package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/winsync/internal/api"
	"github.com/bryanchriswhite/winsync/internal/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream window events as JSON lines",
	Long: `Print one JSON object per window event until interrupted. Each event
carries the window snapshot, the old and new value and whether the change
came from outside this process.`,
	Example: `  # Every event
  winsync watch

  # Only geometry changes
  winsync watch --type position_changed --type size_changed`,
	RunE: runWatch,
}

var watchTypes []string

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSliceVarP(&watchTypes, "type", "t", nil, "only print events of these types")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	s, err := startSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	hub := api.NewHub(s.state.Bus(), s.cfg.NotificationBuffer, *logger.WithComponent("watch"))
	defer hub.Close()
	events, cancel := hub.Subscribe()
	defer cancel()

	return printEvents(ctx.Done(), events, os.Stdout, watchTypes)
}

// printEvents encodes events until done is closed or the stream ends.
func printEvents(done <-chan struct{}, events <-chan api.EventMessage, out io.Writer, types []string) error {
	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	encoder := json.NewEncoder(out)
	for {
		select {
		case <-done:
			return nil
		case msg, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream closed (output too slow?)")
			}
			if len(wanted) > 0 && !wanted[msg.Type] {
				continue
			}
			if err := encoder.Encode(msg); err != nil {
				return err
			}
		}
	}
}
