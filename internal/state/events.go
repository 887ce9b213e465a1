package state

import (
	"fmt"

	"github.com/bryanchriswhite/winsync/internal/driver"
)

// Kind identifies an event type. The set is closed.
type Kind uint8

const (
	KindWindowCreated Kind = iota + 1
	KindWindowDestroyed
	KindPositionChanged
	KindSizeChanged
	KindTitleChanged
	KindDesktopChanged
)

var kindNames = map[Kind]string{
	KindWindowCreated:   "window_created",
	KindWindowDestroyed: "window_destroyed",
	KindPositionChanged: "position_changed",
	KindSizeChanged:     "size_changed",
	KindTitleChanged:    "title_changed",
	KindDesktopChanged:  "desktop_changed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Event is an immutable record published on the Bus.
type Event interface {
	Kind() Kind
	Window() *Window
	// IsExternal reports whether the event was caused by an out-of-band
	// notification rather than a write issued by this process.
	IsExternal() bool
}

// WindowCreatedEvent is published after a window has been registered.
type WindowCreatedEvent struct {
	Win      *Window
	External bool
}

func (WindowCreatedEvent) Kind() Kind         { return KindWindowCreated }
func (e WindowCreatedEvent) Window() *Window  { return e.Win }
func (e WindowCreatedEvent) IsExternal() bool { return e.External }

// WindowDestroyedEvent is published exactly once per window, when it becomes
// invalid and leaves the registry.
type WindowDestroyedEvent struct {
	Win      *Window
	External bool
}

func (WindowDestroyedEvent) Kind() Kind         { return KindWindowDestroyed }
func (e WindowDestroyedEvent) Window() *Window  { return e.Win }
func (e WindowDestroyedEvent) IsExternal() bool { return e.External }

// Change is the payload shared by all property-change events.
type Change[T comparable] struct {
	Win      *Window
	External bool
	Old      T
	New      T
}

func (c Change[T]) Window() *Window  { return c.Win }
func (c Change[T]) IsExternal() bool { return c.External }

// PositionChangedEvent reports a new window origin.
type PositionChangedEvent struct{ Change[driver.Point] }

func (PositionChangedEvent) Kind() Kind { return KindPositionChanged }

// SizeChangedEvent reports a new window size.
type SizeChangedEvent struct{ Change[driver.Size] }

func (SizeChangedEvent) Kind() Kind { return KindSizeChanged }

// TitleChangedEvent reports a new window title.
type TitleChangedEvent struct{ Change[string] }

func (TitleChangedEvent) Kind() Kind { return KindTitleChanged }

// DesktopChangedEvent reports a window moving to another virtual desktop.
type DesktopChangedEvent struct{ Change[int] }

func (DesktopChangedEvent) Kind() Kind { return KindDesktopChanged }
