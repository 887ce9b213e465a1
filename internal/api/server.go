package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/winsync/internal/config"
	"github.com/bryanchriswhite/winsync/internal/driver"
	"github.com/bryanchriswhite/winsync/internal/logger"
	"github.com/bryanchriswhite/winsync/internal/state"
)

// Version is reported by /api/health.
var Version = "0.1.0"

const writeWait = 10 * time.Second

// Options configures a Server.
type Options struct {
	// AllowedOrigins restricts CORS and websocket origins. Empty allows all.
	AllowedOrigins []string
	// ClientBuffer is the per-client event queue length.
	ClientBuffer int
	Logger       *zerolog.Logger
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	state     *state.State
	configMgr *config.Manager
	hub       *Hub
	upgrader  websocket.Upgrader
	origins   map[string]bool
	log       zerolog.Logger
}

// NewServer creates a new API server. configMgr may be nil.
func NewServer(st *state.State, configMgr *config.Manager, opts Options) *Server {
	log := logger.WithComponent("api")
	if opts.Logger != nil {
		log = opts.Logger
	}
	s := &Server{
		router:    mux.NewRouter(),
		state:     st,
		configMgr: configMgr,
		hub:       NewHub(st.Bus(), opts.ClientBuffer, *log),
		origins:   make(map[string]bool, len(opts.AllowedOrigins)),
		log:       *log,
	}
	for _, o := range opts.AllowedOrigins {
		s.origins[o] = true
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Windows
	api.HandleFunc("/windows", s.handleListWindows).Methods("GET")
	api.HandleFunc("/windows/{id}", s.handleGetWindow).Methods("GET")
	api.HandleFunc("/windows/{id}/position", s.handleSetPosition).Methods("PUT")
	api.HandleFunc("/windows/{id}/size", s.handleSetSize).Methods("PUT")
	api.HandleFunc("/windows/{id}/desktop", s.handleSetDesktop).Methods("PUT")
	api.HandleFunc("/windows/{id}/refresh", s.handleRefresh).Methods("POST")

	// Event stream
	api.HandleFunc("/events", s.handleEvents)

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start serves on port until ctx is done.
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("HTTP server shutdown")
		}
	}()

	s.log.Info().Str("addr", srv.Addr).Msg("Starting API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.origins) == 0 || origin == "" {
		return true
	}
	return s.origins[origin]
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.origins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case s.origins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HTTP Handlers

func (s *Server) handleListWindows(w http.ResponseWriter, r *http.Request) {
	windows := s.state.Windows()
	out := make([]state.Snapshot, 0, len(windows))
	for _, win := range windows {
		out = append(out, win.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetWindow(w http.ResponseWriter, r *http.Request) {
	win, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, win.Snapshot())
}

func (s *Server) handleSetPosition(w http.ResponseWriter, r *http.Request) {
	win, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var p driver.Point
	if !decode(w, r, &p) {
		return
	}
	actual, err := win.Position().Set(r.Context(), p)
	if err != nil {
		s.writeError(w, win, err)
		return
	}
	writeJSON(w, http.StatusOK, actual)
}

func (s *Server) handleSetSize(w http.ResponseWriter, r *http.Request) {
	win, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var size driver.Size
	if !decode(w, r, &size) {
		return
	}
	if size.Width <= 0 || size.Height <= 0 {
		http.Error(w, "width and height must be positive", http.StatusBadRequest)
		return
	}
	actual, err := win.Size().Set(r.Context(), size)
	if err != nil {
		s.writeError(w, win, err)
		return
	}
	writeJSON(w, http.StatusOK, actual)
}

type desktopBody struct {
	Desktop int `json:"desktop"`
}

func (s *Server) handleSetDesktop(w http.ResponseWriter, r *http.Request) {
	win, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body desktopBody
	if !decode(w, r, &body) {
		return
	}
	actual, err := win.Desktop().Set(r.Context(), body.Desktop)
	if err != nil {
		s.writeError(w, win, err)
		return
	}
	writeJSON(w, http.StatusOK, desktopBody{Desktop: actual})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	win, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := win.Refresh(r.Context()); err != nil {
		s.writeError(w, win, err)
		return
	}
	writeJSON(w, http.StatusOK, win.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake so no event between connect and first
	// read is lost.
	events, cancel := s.hub.Subscribe()
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// The client never sends anything; reading detects disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-events:
			if !ok {
				// Dropped for falling behind, or the hub closed.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "event stream closed"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "configuration not available", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready := false
	select {
	case <-s.state.Ready():
		ready = true
	default:
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": Version,
		"driver":  s.state.Driver().Name(),
		"ready":   ready,
		"windows": len(s.state.Windows()),
		"clients": s.hub.Clients(),
	})
}

// lookup resolves the {id} route variable. It accepts decimal and 0x hex.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*state.Window, bool) {
	raw := mux.Vars(r)["id"]
	id, err := driver.ParseHandle(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	win, ok := s.state.Window(id)
	if !ok {
		http.Error(w, fmt.Sprintf("window %s not found", id), http.StatusNotFound)
		return nil, false
	}
	return win, true
}

func (s *Server) writeError(w http.ResponseWriter, win *state.Window, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn().Err(err).Stringer("window", win.Handle()).Msg("Window request failed")
	}
	http.Error(w, err.Error(), status)
}

// StatusFor maps tracker errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, state.ErrSourceInvalid):
		return http.StatusGone
	case errors.Is(err, driver.ErrReadOnly):
		return http.StatusMethodNotAllowed
	case driver.IsTransient(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, state.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
