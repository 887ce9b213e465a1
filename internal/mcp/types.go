package mcp

import (
	"github.com/bryanchriswhite/winsync/internal/driver"
	"github.com/bryanchriswhite/winsync/internal/state"
)

// ListWindowsInput is the input for the list_windows tool.
type ListWindowsInput struct {
	Desktop *int   `json:"desktop,omitempty" jsonschema:"Only list windows on this desktop (-1 selects sticky windows)"`
	Title   string `json:"title,omitempty" jsonschema:"Only list windows whose title contains this text (case-insensitive)"`
}

// ListWindowsOutput is the output for the list_windows tool.
type ListWindowsOutput struct {
	Windows []state.Snapshot `json:"windows"`
}

// WindowInput identifies a single window.
type WindowInput struct {
	ID string `json:"id" jsonschema:"Window id in decimal or 0x-prefixed hex, as reported by list_windows"`
}

// WindowOutput wraps a single window snapshot.
type WindowOutput struct {
	Window state.Snapshot `json:"window"`
}

// MoveWindowInput is the input for the move_window tool.
type MoveWindowInput struct {
	ID string `json:"id" jsonschema:"Window id in decimal or 0x-prefixed hex"`
	X  int    `json:"x" jsonschema:"Target X in root coordinates"`
	Y  int    `json:"y" jsonschema:"Target Y in root coordinates"`
}

// MoveWindowOutput reports where the window ended up.
type MoveWindowOutput struct {
	Position driver.Point `json:"position"`
}

// ResizeWindowInput is the input for the resize_window tool.
type ResizeWindowInput struct {
	ID     string `json:"id" jsonschema:"Window id in decimal or 0x-prefixed hex"`
	Width  int    `json:"width" jsonschema:"Target width in pixels"`
	Height int    `json:"height" jsonschema:"Target height in pixels"`
}

// ResizeWindowOutput reports the size the window manager applied.
type ResizeWindowOutput struct {
	Size driver.Size `json:"size"`
}

// SetDesktopInput is the input for the set_window_desktop tool.
type SetDesktopInput struct {
	ID      string `json:"id" jsonschema:"Window id in decimal or 0x-prefixed hex"`
	Desktop int    `json:"desktop" jsonschema:"Zero-based desktop index, or -1 to show on all desktops"`
}

// SetDesktopOutput reports the desktop the window manager applied.
type SetDesktopOutput struct {
	Desktop int `json:"desktop"`
}
