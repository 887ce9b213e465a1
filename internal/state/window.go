package state

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bryanchriswhite/winsync/internal/driver"
)

var (
	requiredAttributes = []driver.Attribute{driver.AttrPosition, driver.AttrSize}
	allAttributes      = []driver.Attribute{driver.AttrPosition, driver.AttrSize, driver.AttrTitle, driver.AttrDesktop}
)

// Window is the proxy for one tracked top-level window.
type Window struct {
	handle driver.Handle
	state  *State
	lane   lane
	valid  atomic.Bool

	position *WriteableProperty[driver.Point]
	size     *WriteableProperty[driver.Size]
	title    *Property[string]
	desktop  *WriteableProperty[int]
}

// Snapshot is a point-in-time copy of a window's cached state.
type Snapshot struct {
	ID       driver.Handle `json:"id"`
	Title    string        `json:"title"`
	Position driver.Point  `json:"position"`
	Size     driver.Size   `json:"size"`
	Desktop  int           `json:"desktop"`
	Valid    bool          `json:"valid"`
}

func newWindow(s *State, h driver.Handle) *Window {
	w := &Window{handle: h, state: s}
	w.position = newWriteableProperty[driver.Point](w, driver.AttrPosition,
		attrDelegate[driver.Point]{drv: s.drv, h: h, name: driver.AttrPosition},
		func(c Change[driver.Point]) Event { return PositionChangedEvent{c} })
	w.size = newWriteableProperty[driver.Size](w, driver.AttrSize,
		attrDelegate[driver.Size]{drv: s.drv, h: h, name: driver.AttrSize},
		func(c Change[driver.Size]) Event { return SizeChangedEvent{c} })
	w.title = newProperty[string](w, driver.AttrTitle,
		attrDelegate[string]{drv: s.drv, h: h, name: driver.AttrTitle, optional: true},
		func(c Change[string]) Event { return TitleChangedEvent{c} })
	w.desktop = newWriteableProperty[int](w, driver.AttrDesktop,
		attrDelegate[int]{drv: s.drv, h: h, name: driver.AttrDesktop, optional: true, fallback: driver.StickyDesktop},
		func(c Change[int]) Event { return DesktopChangedEvent{c} })
	return w
}

// buildWindow creates a fully initialized but not yet valid window from the
// batched creation read.
func buildWindow(s *State, h driver.Handle, attrs map[driver.Attribute]any) (*Window, error) {
	var missing []driver.Attribute
	for _, name := range requiredAttributes {
		if _, ok := attrs[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		got := make([]driver.Attribute, 0, len(attrs))
		for _, name := range allAttributes {
			if _, ok := attrs[name]; ok {
				got = append(got, name)
			}
		}
		return nil, &MissingAttributesError{Handle: h, Missing: missing, Got: got}
	}

	pos, ok := attrs[driver.AttrPosition].(driver.Point)
	if !ok {
		return nil, fmt.Errorf("window %s: position has type %T", h, attrs[driver.AttrPosition])
	}
	size, ok := attrs[driver.AttrSize].(driver.Size)
	if !ok {
		return nil, fmt.Errorf("window %s: size has type %T", h, attrs[driver.AttrSize])
	}
	title, _ := attrs[driver.AttrTitle].(string)
	desktop := driver.StickyDesktop
	if d, ok := attrs[driver.AttrDesktop].(int); ok {
		desktop = d
	}

	w := newWindow(s, h)
	w.position.Initialize(pos)
	w.size.Initialize(size)
	w.title.Initialize(title)
	w.desktop.Initialize(desktop)
	return w, nil
}

// Handle returns the platform handle.
func (w *Window) Handle() driver.Handle { return w.handle }

// Valid reports whether the window still exists. Once false it stays false.
func (w *Window) Valid() bool { return w.valid.Load() }

func (w *Window) Position() *WriteableProperty[driver.Point] { return w.position }
func (w *Window) Size() *WriteableProperty[driver.Size]      { return w.size }
func (w *Window) Title() *Property[string]                   { return w.title }
func (w *Window) Desktop() *WriteableProperty[int]           { return w.desktop }

// Rect combines the cached position and size.
func (w *Window) Rect() driver.Rect {
	p, s := w.position.Value(), w.size.Value()
	return driver.Rect{X: p.X, Y: p.Y, Width: s.Width, Height: s.Height}
}

// SetRect moves, then resizes, the window and returns the frame the window
// system settled on.
func (w *Window) SetRect(ctx context.Context, r driver.Rect) (driver.Rect, error) {
	pos, err := w.position.Set(ctx, r.Origin())
	if err != nil {
		return w.Rect(), err
	}
	size, err := w.size.Set(ctx, r.Extent())
	if err != nil {
		return w.Rect(), err
	}
	return driver.Rect{X: pos.X, Y: pos.Y, Width: size.Width, Height: size.Height}, nil
}

// Refresh re-reads every property and waits for all of them.
func (w *Window) Refresh(ctx context.Context) error {
	pos := w.position.RefreshAsync(ctx)
	size := w.size.RefreshAsync(ctx)
	title := w.title.RefreshAsync(ctx)
	desktop := w.desktop.RefreshAsync(ctx)

	var errs []error
	if _, err := await(ctx, pos); err != nil {
		errs = append(errs, err)
	}
	if _, err := await(ctx, size); err != nil {
		errs = append(errs, err)
	}
	if _, err := await(ctx, title); err != nil {
		errs = append(errs, err)
	}
	if _, err := await(ctx, desktop); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Snapshot copies the cached state.
func (w *Window) Snapshot() Snapshot {
	return Snapshot{
		ID:       w.handle,
		Title:    w.title.Value(),
		Position: w.position.Value(),
		Size:     w.size.Value(),
		Desktop:  w.desktop.Value(),
		Valid:    w.Valid(),
	}
}

func (w *Window) String() string {
	return fmt.Sprintf("window %s", w.handle)
}

// refreshAttribute schedules a refresh of one property by attribute name.
func (w *Window) refreshAttribute(ctx context.Context, name driver.Attribute, done func(error)) bool {
	switch name {
	case driver.AttrPosition:
		w.position.refresh(ctx, func(_ driver.Point, err error) { done(err) })
	case driver.AttrSize:
		w.size.refresh(ctx, func(_ driver.Size, err error) { done(err) })
	case driver.AttrTitle:
		w.title.refresh(ctx, func(_ string, err error) { done(err) })
	case driver.AttrDesktop:
		w.desktop.refresh(ctx, func(_ int, err error) { done(err) })
	default:
		return false
	}
	return true
}

// publish drops events for windows that are no longer valid.
func (w *Window) publish(ev Event) {
	if !w.Valid() {
		return
	}
	w.state.bus.Publish(ev)
}

// attrDelegate reads and writes a single attribute through the driver. An
// optional attribute the driver does not report reads as fallback.
type attrDelegate[T comparable] struct {
	drv      driver.Driver
	h        driver.Handle
	name     driver.Attribute
	optional bool
	fallback T
}

func (d attrDelegate[T]) Read(ctx context.Context) (T, error) {
	var zero T
	attrs, err := d.drv.ReadAttributes(ctx, d.h, []driver.Attribute{d.name})
	if err != nil {
		return zero, err
	}
	raw, ok := attrs[d.name]
	if !ok && d.optional {
		return d.fallback, nil
	}
	if !ok {
		return zero, fmt.Errorf("read %s of %s: not reported by driver", d.name, d.h)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("read %s of %s: unexpected type %T", d.name, d.h, raw)
	}
	return v, nil
}

func (d attrDelegate[T]) Write(ctx context.Context, v T) error {
	return d.drv.WriteAttribute(ctx, d.h, d.name, v)
}
