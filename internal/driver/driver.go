// Package driver defines the capability the tracking core consumes from a
// window system: enumeration, batched attribute reads, attribute writes and a
// notification stream.
package driver

import (
	"context"
	"fmt"
	"strconv"
)

// Handle is an opaque identifier for an externally owned window. It is only
// meaningful for equality and as a key back into the driver.
type Handle uint32

func (h Handle) String() string {
	return fmt.Sprintf("0x%x", uint32(h))
}

// ParseHandle parses a handle in decimal or 0x-prefixed hex, the form
// String produces.
func ParseHandle(s string) (Handle, error) {
	id, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid window id %q", s)
	}
	return Handle(id), nil
}

// Attribute names an observable window attribute.
type Attribute string

const (
	AttrPosition Attribute = "position" // Point
	AttrSize     Attribute = "size"     // Size
	AttrTitle    Attribute = "title"    // string, read-only
	AttrDesktop  Attribute = "desktop"  // int, -1 means sticky
)

// Point is a window origin in root coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a window's client area size.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect combines position and size.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Origin returns the rect's position.
func (r Rect) Origin() Point { return Point{X: r.X, Y: r.Y} }

// Extent returns the rect's size.
func (r Rect) Extent() Size { return Size{Width: r.Width, Height: r.Height} }

// StickyDesktop is the desktop value of a window shown on every desktop.
const StickyDesktop = -1

// NotificationKind identifies what a driver notification is about.
type NotificationKind int

const (
	NotifyCreated NotificationKind = iota + 1
	NotifyDestroyed
	NotifyMoved
	NotifyResized
	NotifyTitleChanged
	NotifyDesktopChanged
)

var notificationNames = map[NotificationKind]string{
	NotifyCreated:        "created",
	NotifyDestroyed:      "destroyed",
	NotifyMoved:          "moved",
	NotifyResized:        "resized",
	NotifyTitleChanged:   "title_changed",
	NotifyDesktopChanged: "desktop_changed",
}

func (k NotificationKind) String() string {
	if name, ok := notificationNames[k]; ok {
		return name
	}
	return fmt.Sprintf("notification(%d)", int(k))
}

// Attribute returns the attribute an attribute-change notification refers to.
// Lifecycle notifications report false.
func (k NotificationKind) Attribute() (Attribute, bool) {
	switch k {
	case NotifyMoved:
		return AttrPosition, true
	case NotifyResized:
		return AttrSize, true
	case NotifyTitleChanged:
		return AttrTitle, true
	case NotifyDesktopChanged:
		return AttrDesktop, true
	}
	return "", false
}

// Notification is a single out-of-band signal from the window system.
type Notification struct {
	Handle Handle
	Kind   NotificationKind
}

// Driver is implemented by window-system backends (X11, test fakes).
//
// Notifications are delivered on a driver-owned goroutine; consumers are
// responsible for serializing them.
type Driver interface {
	// Name returns the backend name (e.g., "x11").
	Name() string

	// Enumerate returns the handles of all currently existing windows.
	Enumerate(ctx context.Context) ([]Handle, error)

	// ReadAttributes performs a batched read. Attributes that could not be
	// read are omitted from the result; callers compare the key set against
	// the requested names. ErrInvalidHandle is returned if the window is gone.
	ReadAttributes(ctx context.Context, h Handle, names []Attribute) (map[Attribute]any, error)

	// WriteAttribute requests a new value. The window system may coerce it.
	WriteAttribute(ctx context.Context, h Handle, name Attribute, value any) error

	// Subscribe starts notification delivery. The channel is closed when ctx
	// is done or the driver is closed.
	Subscribe(ctx context.Context) (<-chan Notification, error)

	// Watch enables attribute notifications for a single window.
	Watch(h Handle) error

	// Unwatch disables attribute notifications for a window.
	Unwatch(h Handle)

	// Close releases the connection to the window system.
	Close() error
}
