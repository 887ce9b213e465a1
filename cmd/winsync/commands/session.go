package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/winsync/internal/config"
	"github.com/bryanchriswhite/winsync/internal/driver"
	"github.com/bryanchriswhite/winsync/internal/driver/x11"
	"github.com/bryanchriswhite/winsync/internal/logger"
	"github.com/bryanchriswhite/winsync/internal/state"
)

// loadConfig reads the config file and layers the command's flags over it,
// then initializes logging from the result.
func loadConfig(cmd *cobra.Command) (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := configMgr.BindFlags(cmd.Flags()); err != nil {
		return nil, nil, err
	}
	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, cfg, nil
}

// session is a running tracker connected to the configured driver.
type session struct {
	configMgr *config.Manager
	cfg       *config.Config
	drv       driver.Driver
	state     *state.State

	cancel    context.CancelFunc
	runErr    chan error
	closeOnce sync.Once
	closeErr  error
}

// startSession connects to the window system and waits until every
// existing window is tracked.
func startSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	configMgr, cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	policy, err := state.ParseErrorPolicy(cfg.UnexpectedErrors)
	if err != nil {
		return nil, err
	}

	drv, err := openDriver(cfg)
	if err != nil {
		return nil, err
	}

	st := state.New(drv, state.Options{
		RequestTimeout:   cfg.RequestTimeout,
		UnexpectedErrors: policy,
	})

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{
		configMgr: configMgr,
		cfg:       cfg,
		drv:       drv,
		state:     st,
		cancel:    cancel,
		runErr:    make(chan error, 1),
	}
	go func() { s.runErr <- st.Run(runCtx) }()

	select {
	case <-st.Ready():
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}

	// Ready is also closed when Run fails during startup.
	select {
	case <-st.Done():
		err := s.Close()
		if err == nil {
			err = errors.New("tracker stopped during startup")
		}
		return nil, err
	default:
	}

	log := logger.WithComponent("cli")
	log.Debug().
		Str("driver", drv.Name()).
		Int("windows", len(st.Windows())).
		Msg("Tracker ready")
	return s, nil
}

// Close stops the tracker and releases the driver. It returns the
// tracker's exit error, if any.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = <-s.runErr
		if err := s.drv.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// Wait blocks until the tracker stops on its own or ctx is done.
func (s *session) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.state.Done():
		return s.Close()
	}
}

func openDriver(cfg *config.Config) (driver.Driver, error) {
	switch cfg.Driver {
	case "x11":
		drv, err := x11.New(*logger.WithComponent("x11"), x11.Options{
			Display:     cfg.Display,
			Buffer:      cfg.NotificationBuffer,
			IgnoreTypes: cfg.IgnoreWindowTypes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to X11: %w", err)
		}
		return drv, nil
	}
	return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
}

// lookupWindow parses id and returns the tracked window.
func (s *session) lookupWindow(id string) (*state.Window, error) {
	h, err := driver.ParseHandle(id)
	if err != nil {
		return nil, err
	}
	w, ok := s.state.Window(h)
	if !ok {
		return nil, fmt.Errorf("window %s is not tracked", h)
	}
	return w, nil
}
