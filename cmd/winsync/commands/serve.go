package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/winsync/internal/api"
	"github.com/bryanchriswhite/winsync/internal/logger"
	"github.com/bryanchriswhite/winsync/internal/state"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the winsync server",
	Long: `Track windows and serve the HTTP API.

The server provides a REST API for reading and changing windows and a
WebSocket event stream at /api/events.`,
	Example: `  # Start server on default port (8090)
  winsync serve

  # Start server on custom port
  winsync serve --port 9090

  # Start with specific config file
  winsync serve --config /path/to/config.yaml

  # Start with debug logging
  winsync serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "server port (default is 8090)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	s, err := startSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	log := logger.WithComponent("serve")
	log.Info().
		Str("config", s.configMgr.GetConfigPath()).
		Str("driver", s.drv.Name()).
		Int("windows", len(s.state.Windows())).
		Msg("winsync is running")

	unsubscribe := s.state.Bus().SubscribeAll(func(ev state.Event) {
		l := log.Debug().
			Str("event", ev.Kind().String()).
			Bool("external", ev.IsExternal())
		if w := ev.Window(); w != nil {
			l = l.Stringer("window", w.Handle())
		}
		l.Msg("Window event")
	})
	defer unsubscribe()

	if !s.cfg.Server.Enabled {
		log.Info().Msg("HTTP API disabled, tracking only")
		return s.Wait(ctx)
	}

	server := api.NewServer(s.state, s.configMgr, api.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		ClientBuffer:   s.cfg.NotificationBuffer,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx, s.cfg.Server.Port) }()

	log.Info().Msgf("API: http://localhost:%d/api", s.cfg.Server.Port)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-s.state.Done():
		stop()
		<-errCh
		return s.Close()
	case <-ctx.Done():
		log.Info().Msg("Shutting down gracefully...")
		return <-errCh
	}
}
