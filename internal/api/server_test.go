package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/winsync/internal/driver"
	"github.com/bryanchriswhite/winsync/internal/driver/drivertest"
	"github.com/bryanchriswhite/winsync/internal/state"
)

const waitTimeout = 2 * time.Second

type fixture struct {
	fake   *drivertest.Fake
	state  *state.State
	server *Server
	http   *httptest.Server
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	quiet := zerolog.Nop()

	f := drivertest.New()
	f.Add(0x10, drivertest.Attrs{
		driver.AttrPosition: driver.Point{X: 10, Y: 20},
		driver.AttrSize:     driver.Size{Width: 800, Height: 600},
		driver.AttrTitle:    "terminal",
		driver.AttrDesktop:  1,
	})

	st := state.New(f, state.Options{Logger: &quiet})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = st.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-st.Done()
	})
	select {
	case <-st.Ready():
	case <-time.After(waitTimeout):
		t.Fatal("tracker did not become ready")
	}

	opts.Logger = &quiet
	srv := NewServer(st, nil, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Hub().Close)

	return &fixture{fake: f, state: st, server: srv, http: ts}
}

func (fx *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, fx.http.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestListWindows(t *testing.T) {
	fx := newFixture(t, Options{})

	resp := fx.do(t, "GET", "/api/windows", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decodeBody[[]state.Snapshot](t, resp)
	if len(got) != 1 {
		t.Fatalf("got %d windows, want 1", len(got))
	}
	want := state.Snapshot{
		ID:       0x10,
		Title:    "terminal",
		Position: driver.Point{X: 10, Y: 20},
		Size:     driver.Size{Width: 800, Height: 600},
		Desktop:  1,
		Valid:    true,
	}
	if got[0] != want {
		t.Errorf("snapshot = %+v, want %+v", got[0], want)
	}
}

func TestGetWindow_IDForms(t *testing.T) {
	fx := newFixture(t, Options{})

	for _, id := range []string{"16", "0x10"} {
		resp := fx.do(t, "GET", "/api/windows/"+id, "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: status = %d", id, resp.StatusCode)
		}
	}

	if resp := fx.do(t, "GET", "/api/windows/0x99", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown window: status = %d, want 404", resp.StatusCode)
	}
	if resp := fx.do(t, "GET", "/api/windows/nope", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", resp.StatusCode)
	}
}

func TestSetPosition_ReturnsCoercedValue(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.fake.SetCoerce(func(h driver.Handle, name driver.Attribute, requested any) any {
		if p, ok := requested.(driver.Point); ok && p.X < 0 {
			p.X = 0
			return p
		}
		return requested
	})

	resp := fx.do(t, "PUT", "/api/windows/0x10/position", `{"x":-50,"y":40}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decodeBody[driver.Point](t, resp)
	if got != (driver.Point{X: 0, Y: 40}) {
		t.Errorf("position = %+v, want {0 40}", got)
	}
}

func TestSetSize(t *testing.T) {
	fx := newFixture(t, Options{})

	resp := fx.do(t, "PUT", "/api/windows/0x10/size", `{"width":1024,"height":768}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := decodeBody[driver.Size](t, resp); got != (driver.Size{Width: 1024, Height: 768}) {
		t.Errorf("size = %+v", got)
	}

	if resp := fx.do(t, "PUT", "/api/windows/0x10/size", `{"width":0,"height":768}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero width: status = %d, want 400", resp.StatusCode)
	}
}

func TestSetDesktop(t *testing.T) {
	fx := newFixture(t, Options{})

	resp := fx.do(t, "PUT", "/api/windows/0x10/desktop", `{"desktop":3}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := decodeBody[desktopBody](t, resp); got.Desktop != 3 {
		t.Errorf("desktop = %d, want 3", got.Desktop)
	}
	if v, _ := fx.fake.Get(0x10, driver.AttrDesktop); v != 3 {
		t.Errorf("driver desktop = %v, want 3", v)
	}
}

func TestSet_BadBody(t *testing.T) {
	fx := newFixture(t, Options{})

	for _, body := range []string{`{`, `{"x":1,"z":2}`} {
		if resp := fx.do(t, "PUT", "/api/windows/0x10/position", body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
	if fx.fake.Writes(0x10) != 0 {
		t.Errorf("writes = %d, want 0", fx.fake.Writes(0x10))
	}
}

func TestSet_VanishedWindowIsGone(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.fake.Remove(0x10)

	resp := fx.do(t, "PUT", "/api/windows/0x10/position", `{"x":1,"y":1}`)
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("status = %d, want 410", resp.StatusCode)
	}

	deadline := time.Now().Add(waitTimeout)
	for {
		if _, ok := fx.state.Window(0x10); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("window still registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRefresh(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.fake.Put(0x10, driver.AttrTitle, "vim")

	resp := fx.do(t, "POST", "/api/windows/0x10/refresh", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := decodeBody[state.Snapshot](t, resp); got.Title != "vim" {
		t.Errorf("title = %q, want vim", got.Title)
	}
}

func TestHealth(t *testing.T) {
	fx := newFixture(t, Options{})

	resp := fx.do(t, "GET", "/api/health", "")
	body := decodeBody[map[string]any](t, resp)
	if body["status"] != "healthy" || body["driver"] != "fake" || body["ready"] != true {
		t.Errorf("health = %v", body)
	}
}

func TestConfig_UnavailableWithoutManager(t *testing.T) {
	fx := newFixture(t, Options{})
	if resp := fx.do(t, "GET", "/api/config", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	open := newFixture(t, Options{})
	resp := open.do(t, "OPTIONS", "/api/windows", "")
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("open allow-origin = %q, want *", got)
	}

	restricted := newFixture(t, Options{AllowedOrigins: []string{"http://ok.example"}})
	for origin, want := range map[string]string{
		"http://ok.example":  "http://ok.example",
		"http://bad.example": "",
	} {
		req, _ := http.NewRequest("GET", restricted.http.URL+"/api/health", nil)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != want {
			t.Errorf("origin %s: allow-origin = %q, want %q", origin, got, want)
		}
	}
}

func dialEvents(t *testing.T, fx *fixture, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(fx.http.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func TestEvents_StreamsExternalChange(t *testing.T) {
	fx := newFixture(t, Options{})
	conn, _, err := dialEvents(t, fx, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	fx.fake.Change(0x10, driver.AttrTitle, "htop")

	_ = conn.SetReadDeadline(time.Now().Add(waitTimeout))
	var msg struct {
		Type     string         `json:"type"`
		Window   state.Snapshot `json:"window"`
		External bool           `json:"external"`
		Old      string         `json:"old"`
		New      string         `json:"new"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "title_changed" || !msg.External || msg.Old != "terminal" || msg.New != "htop" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Window.ID != 0x10 || msg.Window.Title != "htop" {
		t.Errorf("window = %+v", msg.Window)
	}
}

func TestEvents_RejectsDisallowedOrigin(t *testing.T) {
	fx := newFixture(t, Options{AllowedOrigins: []string{"http://ok.example"}})

	header := http.Header{"Origin": []string{"http://bad.example"}}
	_, resp, err := dialEvents(t, fx, header)
	if err == nil {
		t.Fatal("dial succeeded, want handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	bus := state.NewBus(zerolog.Nop())
	hub := NewHub(bus, 1, zerolog.Nop())
	defer hub.Close()

	events, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < 2; i++ {
		bus.Publish(state.PositionChangedEvent{Change: state.Change[driver.Point]{
			Old: driver.Point{X: i},
			New: driver.Point{X: i + 1},
		}})
	}

	first, ok := <-events
	if !ok {
		t.Fatal("channel closed before first message")
	}
	if first.Type != "position_changed" || first.New != (driver.Point{X: 1}) {
		t.Errorf("first = %+v", first)
	}
	if _, ok := <-events; ok {
		t.Error("slow client still subscribed")
	}
	if hub.Clients() != 0 {
		t.Errorf("clients = %d, want 0", hub.Clients())
	}
}

func TestHub_CancelIsIdempotent(t *testing.T) {
	hub := NewHub(state.NewBus(zerolog.Nop()), 0, zerolog.Nop())
	_, cancel := hub.Subscribe()
	cancel()
	cancel()
	hub.Close()
	if hub.Clients() != 0 {
		t.Errorf("clients = %d", hub.Clients())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{state.ErrSourceInvalid, http.StatusGone},
		{driver.ErrReadOnly, http.StatusMethodNotAllowed},
		{driver.Transient(errors.New("slow")), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{state.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
