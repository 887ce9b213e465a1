// Package state mirrors the windows of an external window system as local
// proxy objects, keeps their cached attributes in step with the platform and
// publishes typed change events.
//
// All registry mutations, property updates and event publication happen on
// one coordinator goroutine started by Run. Driver I/O runs on per-window
// lanes so the coordinator never blocks on the window system.
package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/winsync/internal/driver"
	"github.com/bryanchriswhite/winsync/internal/logger"
)

// Options tunes a State.
type Options struct {
	// Logger defaults to the global logger with component=state.
	Logger *zerolog.Logger
	// RequestTimeout bounds each driver call issued by the tracker itself
	// (creation reads, notification-driven refreshes). Zero means no bound.
	RequestTimeout time.Duration
	// UnexpectedErrors selects the handling of unclassified driver errors.
	UnexpectedErrors ErrorPolicy
}

type pendingWindow struct {
	startup   bool
	destroyed bool
	dirty     map[driver.Attribute]bool
}

// State is the window registry and the coordinator that keeps it current.
type State struct {
	drv  driver.Driver
	bus  *Bus
	log  zerolog.Logger
	opts Options

	inbox     chan func()
	quit      chan struct{}
	quitOnce  sync.Once
	done      chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
	started   atomic.Bool
	runCtx    context.Context

	mu      sync.RWMutex
	windows map[driver.Handle]*Window
	order   []*Window

	// Coordinator only.
	pending    map[driver.Handle]*pendingWindow
	unwatching map[driver.Handle]chan struct{}
	starting   int
}

// New creates a tracker for drv. Call Run to start it.
func New(drv driver.Driver, opts Options) *State {
	log := logger.WithComponent("state")
	if opts.Logger != nil {
		log = opts.Logger
	}
	if opts.UnexpectedErrors == "" {
		opts.UnexpectedErrors = PolicyReport
	}
	return &State{
		drv:     drv,
		bus:     NewBus(*log),
		log:     *log,
		opts:    opts,
		inbox:      make(chan func()),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		ready:      make(chan struct{}),
		runCtx:     context.Background(),
		windows:    make(map[driver.Handle]*Window),
		pending:    make(map[driver.Handle]*pendingWindow),
		unwatching: make(map[driver.Handle]chan struct{}),
	}
}

// Bus returns the event bus. Subscribe before Run to see startup windows.
func (s *State) Bus() *Bus { return s.bus }

// Driver returns the backing driver.
func (s *State) Driver() driver.Driver { return s.drv }

// Ready is closed once every window found at startup has been registered or
// discarded, or when Run returns.
func (s *State) Ready() <-chan struct{} { return s.ready }

// Done is closed when Run returns.
func (s *State) Done() <-chan struct{} { return s.done }

// Windows returns the tracked windows in registration order.
func (s *State) Windows() []*Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Window, len(s.order))
	copy(out, s.order)
	return out
}

// Window looks up a tracked window by handle.
func (s *State) Window(h driver.Handle) (*Window, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[h]
	return w, ok
}

// Close stops the tracker and waits for Run to return. On a State whose Run
// never started, Close marks it stopped so pending and later calls fail with
// ErrClosed, and a later Run returns ErrClosed.
func (s *State) Close() {
	s.quitOnce.Do(func() { close(s.quit) })
	if s.started.CompareAndSwap(false, true) {
		close(s.done)
		s.markReady()
		return
	}
	<-s.done
}

// Run subscribes to the driver, enumerates existing windows and processes
// notifications until ctx is done or Close is called. It may only be called
// once.
func (s *State) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		select {
		case <-s.quit:
			return ErrClosed
		default:
		}
		return errors.New("state: Run called twice")
	}
	defer close(s.done)
	defer s.markReady()
	s.runCtx = ctx

	notes, err := s.drv.Subscribe(ctx)
	if err != nil {
		return err
	}
	handles, err := s.drv.Enumerate(ctx)
	if err != nil {
		return err
	}
	s.log.Info().
		Str("driver", s.drv.Name()).
		Int("windows", len(handles)).
		Msg("Starting window tracking")
	for _, h := range handles {
		s.beginCreate(h, true)
	}
	s.checkReady()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("Window tracking stopped")
			return nil
		case <-s.quit:
			s.log.Debug().Msg("Window tracking closed")
			return nil
		case n, ok := <-notes:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrStreamClosed
			}
			s.handle(n)
		case fn := <-s.inbox:
			fn()
		}
	}
}

// apply runs fn on the coordinator, or closed if the coordinator has
// stopped.
func (s *State) apply(fn, closed func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
		closed()
	}
}

func (s *State) handle(n driver.Notification) {
	switch n.Kind {
	case driver.NotifyCreated:
		s.beginCreate(n.Handle, false)
		return
	case driver.NotifyDestroyed:
		s.handleDestroyed(n.Handle)
		return
	}

	attr, ok := n.Kind.Attribute()
	if !ok {
		s.log.Debug().Stringer("window", n.Handle).Int("kind", int(n.Kind)).Msg("Ignoring unknown notification")
		return
	}
	if p, ok := s.pending[n.Handle]; ok {
		p.dirty[attr] = true
		return
	}
	w := s.windows[n.Handle]
	if w == nil {
		s.log.Debug().Stringer("window", n.Handle).Str("kind", n.Kind.String()).Msg("Notification for untracked window")
		return
	}
	s.refresh(w, attr)
}

func (s *State) refresh(w *Window, attr driver.Attribute) {
	ctx, cancel := s.ioContext()
	w.refreshAttribute(ctx, attr, func(err error) {
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, ErrSourceInvalid), errors.Is(err, ErrClosed):
			s.log.Debug().Err(err).Stringer("window", w.handle).Str("attribute", string(attr)).Msg("Refresh discarded")
		default:
			s.log.Warn().Err(err).Stringer("window", w.handle).Str("attribute", string(attr)).Msg("Failed to refresh attribute")
		}
	})
}

func (s *State) beginCreate(h driver.Handle, startup bool) {
	if _, ok := s.windows[h]; ok {
		s.log.Debug().Stringer("window", h).Msg("Creation for already tracked window")
		return
	}
	if p, ok := s.pending[h]; ok && !p.destroyed {
		return
	}

	p := &pendingWindow{startup: startup, dirty: make(map[driver.Attribute]bool)}
	s.pending[h] = p
	if startup {
		s.starting++
	}

	released := s.unwatching[h]
	ctx, cancel := s.ioContext()
	go func() {
		defer cancel()
		if released != nil {
			<-released
		}
		if err := s.drv.Watch(h); err != nil && !driver.IsInvalidHandle(err) {
			s.log.Warn().Err(err).Stringer("window", h).Msg("Failed to watch window")
		}
		attrs, err := s.drv.ReadAttributes(ctx, h, allAttributes)
		var w *Window
		if err == nil {
			w, err = buildWindow(s, h, attrs)
		}
		s.apply(func() { s.finishCreate(h, p, w, err) }, func() {})
	}()
}

func (s *State) finishCreate(h driver.Handle, p *pendingWindow, w *Window, err error) {
	if s.pending[h] == p {
		delete(s.pending, h)
	}
	if p.startup {
		s.starting--
		defer s.checkReady()
	}

	if p.destroyed || err != nil {
		if s.pending[h] == nil && s.windows[h] == nil {
			s.release(h, new(lane))
		}
	}
	if p.destroyed {
		s.log.Debug().Stringer("window", h).Msg("Window destroyed before tracking completed")
		return
	}

	var missing *MissingAttributesError
	switch {
	case err == nil:
	case errors.As(err, &missing):
		s.log.Info().Stringer("window", h).Err(err).Msg("Could not get required attributes, not tracking window")
		return
	case driver.IsInvalidHandle(err):
		s.log.Debug().Stringer("window", h).Msg("Window vanished before it could be tracked")
		return
	default:
		s.log.Warn().Stringer("window", h).Err(err).Msg("Failed to read new window")
		return
	}

	w.valid.Store(true)
	s.mu.Lock()
	s.windows[h] = w
	s.order = append(s.order, w)
	s.mu.Unlock()

	s.log.Debug().Stringer("window", h).Str("title", w.title.Value()).Msg("Window tracked")
	s.bus.Publish(WindowCreatedEvent{Win: w, External: true})

	for _, attr := range allAttributes {
		if p.dirty[attr] {
			s.refresh(w, attr)
		}
	}
}

func (s *State) handleDestroyed(h driver.Handle) {
	if p, ok := s.pending[h]; ok {
		p.destroyed = true
		return
	}
	w := s.windows[h]
	if w == nil {
		s.log.Debug().Stringer("window", h).Msg("Destroy for untracked window")
		return
	}
	s.invalidate(w)
}

// invalidate removes w from the registry and publishes WindowDestroyedEvent.
// Only the first call for a window has an effect. Runs on the coordinator.
func (s *State) invalidate(w *Window) {
	if !w.valid.CompareAndSwap(true, false) {
		return
	}
	s.mu.Lock()
	if s.windows[w.handle] == w {
		delete(s.windows, w.handle)
	}
	for i, existing := range s.order {
		if existing == w {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if _, reused := s.pending[w.handle]; !reused {
		s.release(w.handle, &w.lane)
	}

	s.log.Debug().Stringer("window", w.handle).Msg("Window destroyed")
	s.bus.Publish(WindowDestroyedEvent{Win: w, External: true})
}

// release drops the driver watch for h on l. A creation for h started before
// the unwatch completes waits for it before watching again. Runs on the
// coordinator.
func (s *State) release(h driver.Handle, l *lane) {
	released := make(chan struct{})
	s.unwatching[h] = released
	l.run(func() {
		s.drv.Unwatch(h)
		close(released)
		s.apply(func() {
			if s.unwatching[h] == released {
				delete(s.unwatching, h)
			}
		}, func() {})
	})
}

// driverFailed classifies a driver error for w and returns the error the
// caller should see. Runs on the coordinator.
func (s *State) driverFailed(w *Window, attr driver.Attribute, op string, err error) error {
	switch {
	case driver.IsInvalidHandle(err):
		s.invalidate(w)
		return sourceInvalid(w, err)
	case driver.IsTransient(err),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrReadOnly):
		return err
	}

	s.log.Error().
		Err(err).
		Stringer("window", w.handle).
		Str("attribute", string(attr)).
		Str("op", op).
		Str("policy", string(s.opts.UnexpectedErrors)).
		Msg("Unexpected driver error")

	switch s.opts.UnexpectedErrors {
	case PolicyInvalidate:
		s.invalidate(w)
		return sourceInvalid(w, err)
	case PolicyPanic:
		panic(err)
	}
	return err
}

func (s *State) ioContext() (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout > 0 {
		return context.WithTimeout(s.runCtx, s.opts.RequestTimeout)
	}
	return context.WithCancel(s.runCtx)
}

func (s *State) checkReady() {
	if s.starting == 0 {
		s.markReady()
	}
}

func (s *State) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}
