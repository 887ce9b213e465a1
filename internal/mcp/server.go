// Package mcp exposes the window tracker as Model Context Protocol tools.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/winsync/internal/logger"
	"github.com/bryanchriswhite/winsync/internal/state"
)

const (
	ServerName    = "winsync"
	ServerVersion = "0.1.0"
)

// Server is the MCP server for window inspection and placement.
type Server struct {
	mcpServer *mcpsdk.Server
	state     *state.State
	log       zerolog.Logger
}

// NewServer creates an MCP server backed by st. A nil log uses the
// component logger.
func NewServer(st *state.State, log *zerolog.Logger) *Server {
	if log == nil {
		log = logger.WithComponent("mcp")
	}
	s := &Server{
		state: st,
		log:   *log,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run serves on the stdio transport, blocking until ctx is done or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Connect serves a single session over t. It is used with in-memory
// transports.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_windows",
		Description: "List the tracked top-level windows with their title, position, size and desktop. Optionally filter by desktop or by a title substring.",
	}, s.handleListWindows)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_window",
		Description: "Return the cached state of one window by id.",
	}, s.handleGetWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "move_window",
		Description: "Move a window to the given root coordinates. Returns the position the window manager actually applied, which may differ from the request.",
	}, s.handleMoveWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "resize_window",
		Description: "Resize a window. Returns the size the window manager actually applied.",
	}, s.handleResizeWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_window_desktop",
		Description: "Move a window to another virtual desktop, or to all desktops with -1.",
	}, s.handleSetDesktop)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "refresh_window",
		Description: "Re-read every attribute of a window from the window system and return the updated state.",
	}, s.handleRefreshWindow)
}
