// Package x11 implements driver.Driver on top of an X11 connection with an
// EWMH-compliant window manager.
package x11

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/winsync/internal/driver"
)

// Driver talks to the X server through xgbutil.
type Driver struct {
	xu   *xgbutil.XUtil
	root xproto.Window
	log  zerolog.Logger

	atomClientList xproto.Atom
	atomNetWmName  xproto.Atom
	atomWmName     xproto.Atom
	atomWmDesktop  xproto.Atom

	ignore map[string]bool

	mu      sync.Mutex
	known   map[xproto.Window]bool // client list members; true for normal windows
	watched map[xproto.Window]bool

	streaming bool
	closed    bool

	// sendMu orders emits against closing notes.
	sendMu      sync.Mutex
	notes       chan driver.Notification
	notesClosed bool
	stop        chan struct{}
	stopOnce    sync.Once
}

var _ driver.Driver = (*Driver)(nil)

// DefaultBuffer is the notification channel capacity used when Options
// leaves it unset.
const DefaultBuffer = 64

// DefaultIgnoreTypes are the _NET_WM_WINDOW_TYPE values that are not tracked.
var DefaultIgnoreTypes = []string{
	"_NET_WM_WINDOW_TYPE_DESKTOP",
	"_NET_WM_WINDOW_TYPE_DOCK",
	"_NET_WM_WINDOW_TYPE_SPLASH",
	"_NET_WM_WINDOW_TYPE_NOTIFICATION",
}

// Options configures the connection.
type Options struct {
	// Display names the X display; empty uses $DISPLAY.
	Display string
	// Buffer is the notification channel capacity.
	Buffer int
	// IgnoreTypes lists window types to leave untracked. Nil selects
	// DefaultIgnoreTypes.
	IgnoreTypes []string
}

// New connects to the X server.
func New(log zerolog.Logger, opts Options) (*Driver, error) {
	var (
		xu  *xgbutil.XUtil
		err error
	)
	if opts.Display != "" {
		xu, err = xgbutil.NewConnDisplay(opts.Display)
	} else {
		xu, err = xgbutil.NewConn()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.IgnoreTypes == nil {
		opts.IgnoreTypes = DefaultIgnoreTypes
	}

	d := &Driver{
		xu:      xu,
		root:    xu.RootWin(),
		log:     log,
		ignore:  ignoreSet(opts.IgnoreTypes),
		known:   make(map[xproto.Window]bool),
		watched: make(map[xproto.Window]bool),
		notes:   make(chan driver.Notification, opts.Buffer),
		stop:    make(chan struct{}),
	}

	atoms := []struct {
		name string
		dst  *xproto.Atom
	}{
		{"_NET_CLIENT_LIST", &d.atomClientList},
		{"_NET_WM_NAME", &d.atomNetWmName},
		{"WM_NAME", &d.atomWmName},
		{"_NET_WM_DESKTOP", &d.atomWmDesktop},
	}
	for _, a := range atoms {
		atom, err := xprop.Atm(xu, a.name)
		if err != nil {
			xu.Conn().Close()
			return nil, fmt.Errorf("failed to intern %s: %w", a.name, err)
		}
		*a.dst = atom
	}

	return d, nil
}

// Name returns "x11".
func (d *Driver) Name() string { return "x11" }

// Enumerate returns the normal windows in _NET_CLIENT_LIST.
func (d *Driver) Enumerate(ctx context.Context) ([]driver.Handle, error) {
	clients, err := call(ctx, func() ([]xproto.Window, error) {
		return ewmh.ClientListGet(d.xu)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get client list: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	handles := make([]driver.Handle, 0, len(clients))
	for _, win := range clients {
		normal := d.isNormalWindow(win)
		d.known[win] = normal
		if normal {
			handles = append(handles, driver.Handle(win))
		}
	}
	d.log.Debug().Int("clients", len(clients)).Int("normal", len(handles)).Msg("Enumerated client list")
	return handles, nil
}

// isNormalWindow keeps application windows and rejects the ignored types.
func (d *Driver) isNormalWindow(win xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(d.xu, win)
	if err != nil {
		return true
	}
	return isNormalType(types, d.ignore)
}

// isNormalType checks types in preference order; the first NORMAL or
// ignored entry decides.
func isNormalType(types []string, ignore map[string]bool) bool {
	for _, t := range types {
		if t == "_NET_WM_WINDOW_TYPE_NORMAL" {
			return true
		}
		if ignore[t] {
			return false
		}
	}
	return true
}

func ignoreSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

// Close stops notification delivery and closes the X connection.
func (d *Driver) Close() error {
	d.shutdown()
	d.xu.Conn().Close()
	return nil
}

// call runs a blocking xgb round trip, giving up when ctx is done. The
// request itself cannot be cancelled; its reply is discarded.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, driver.Transient(ctx.Err())
	}
}

// classifyError maps xgb protocol errors for a vanished window onto
// driver.ErrInvalidHandle.
func classifyError(op string, h driver.Handle, err error) error {
	if err == nil {
		return nil
	}
	if driver.IsTransient(err) {
		return err
	}
	var badWindow xproto.WindowError
	var badDrawable xproto.DrawableError
	if errors.As(err, &badWindow) || errors.As(err, &badDrawable) {
		return driver.InvalidHandle(op, h)
	}
	return fmt.Errorf("%s %s: %w", op, h, err)
}

// desktopFromWire converts a _NET_WM_DESKTOP value.
func desktopFromWire(v uint) int {
	if v == 0xFFFFFFFF {
		return driver.StickyDesktop
	}
	return int(v)
}

// desktopToWire is the inverse of desktopFromWire.
func desktopToWire(desktop int) uint32 {
	if desktop < 0 {
		return 0xFFFFFFFF
	}
	return uint32(desktop)
}
