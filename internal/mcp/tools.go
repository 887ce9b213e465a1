package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bryanchriswhite/winsync/internal/driver"
	"github.com/bryanchriswhite/winsync/internal/state"
)

func (s *Server) handleListWindows(_ context.Context, _ *mcpsdk.CallToolRequest, args ListWindowsInput) (*mcpsdk.CallToolResult, ListWindowsOutput, error) {
	title := strings.ToLower(strings.TrimSpace(args.Title))

	out := ListWindowsOutput{Windows: []state.Snapshot{}}
	for _, w := range s.state.Windows() {
		snap := w.Snapshot()
		if args.Desktop != nil && snap.Desktop != *args.Desktop {
			continue
		}
		if title != "" && !strings.Contains(strings.ToLower(snap.Title), title) {
			continue
		}
		out.Windows = append(out.Windows, snap)
	}
	sort.Slice(out.Windows, func(i, j int) bool { return out.Windows[i].ID < out.Windows[j].ID })
	return nil, out, nil
}

func (s *Server) handleGetWindow(_ context.Context, _ *mcpsdk.CallToolRequest, args WindowInput) (*mcpsdk.CallToolResult, WindowOutput, error) {
	w, err := s.window(args.ID)
	if err != nil {
		return nil, WindowOutput{}, err
	}
	return nil, WindowOutput{Window: w.Snapshot()}, nil
}

func (s *Server) handleMoveWindow(ctx context.Context, _ *mcpsdk.CallToolRequest, args MoveWindowInput) (*mcpsdk.CallToolResult, MoveWindowOutput, error) {
	w, err := s.window(args.ID)
	if err != nil {
		return nil, MoveWindowOutput{}, err
	}
	actual, err := w.Position().Set(ctx, driver.Point{X: args.X, Y: args.Y})
	if err != nil {
		s.log.Debug().Err(err).Stringer("window", w.Handle()).Msg("move_window failed")
		return nil, MoveWindowOutput{}, fmt.Errorf("move %s: %w", w.Handle(), err)
	}
	return nil, MoveWindowOutput{Position: actual}, nil
}

func (s *Server) handleResizeWindow(ctx context.Context, _ *mcpsdk.CallToolRequest, args ResizeWindowInput) (*mcpsdk.CallToolResult, ResizeWindowOutput, error) {
	if args.Width <= 0 || args.Height <= 0 {
		return nil, ResizeWindowOutput{}, fmt.Errorf("width and height must be positive, got %dx%d", args.Width, args.Height)
	}
	w, err := s.window(args.ID)
	if err != nil {
		return nil, ResizeWindowOutput{}, err
	}
	actual, err := w.Size().Set(ctx, driver.Size{Width: args.Width, Height: args.Height})
	if err != nil {
		s.log.Debug().Err(err).Stringer("window", w.Handle()).Msg("resize_window failed")
		return nil, ResizeWindowOutput{}, fmt.Errorf("resize %s: %w", w.Handle(), err)
	}
	return nil, ResizeWindowOutput{Size: actual}, nil
}

func (s *Server) handleSetDesktop(ctx context.Context, _ *mcpsdk.CallToolRequest, args SetDesktopInput) (*mcpsdk.CallToolResult, SetDesktopOutput, error) {
	if args.Desktop < driver.StickyDesktop {
		return nil, SetDesktopOutput{}, fmt.Errorf("invalid desktop %d", args.Desktop)
	}
	w, err := s.window(args.ID)
	if err != nil {
		return nil, SetDesktopOutput{}, err
	}
	actual, err := w.Desktop().Set(ctx, args.Desktop)
	if err != nil {
		return nil, SetDesktopOutput{}, fmt.Errorf("set desktop of %s: %w", w.Handle(), err)
	}
	return nil, SetDesktopOutput{Desktop: actual}, nil
}

func (s *Server) handleRefreshWindow(ctx context.Context, _ *mcpsdk.CallToolRequest, args WindowInput) (*mcpsdk.CallToolResult, WindowOutput, error) {
	w, err := s.window(args.ID)
	if err != nil {
		return nil, WindowOutput{}, err
	}
	if err := w.Refresh(ctx); err != nil {
		return nil, WindowOutput{}, fmt.Errorf("refresh %s: %w", w.Handle(), err)
	}
	return nil, WindowOutput{Window: w.Snapshot()}, nil
}

func (s *Server) window(id string) (*state.Window, error) {
	h, err := driver.ParseHandle(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	w, ok := s.state.Window(h)
	if !ok {
		return nil, fmt.Errorf("window %s is not tracked", h)
	}
	return w, nil
}
