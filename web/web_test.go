package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"netlag/config"
	"netlag/sim"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (m *manualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = m.t.Add(d)
}

func newTestSim(t *testing.T, hub *Hub, clock *manualClock) *sim.Simulation {
	t.Helper()
	cfg := config.Default()
	for i := range cfg.Clients {
		cfg.Clients[i].LagMs = 0
	}
	var surfaces sim.SurfaceFactory
	if hub != nil {
		surfaces = hub.Surface
	}
	s, err := sim.NewSimulation(cfg, surfaces, nil, clock.Now)
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	return s
}

func startServer(t *testing.T, rate float64, burst int) (*Hub, *sim.Simulation, *manualClock, *httptest.Server) {
	t.Helper()
	clock := &manualClock{t: time.Unix(1_700_000_000, 0)}
	hub := NewHub(rate, burst)
	s := newTestSim(t, hub, clock)
	hub.Bind(s)
	srv := httptest.NewServer(NewAdmin(s, hub).Routes(""))
	t.Cleanup(func() {
		_ = hub.Close()
		srv.Close()
	})
	return hub, s, clock, srv
}

func dial(t *testing.T, srv *httptest.Server, hub *Hub) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	waitFor(t, func() bool { return hub.ViewerCount() == 1 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFramesReachViewer(t *testing.T) {
	hub, s, _, srv := startServer(t, 100, 10)
	conn := dial(t, srv, hub)

	s.Server.Update()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f FrameMessage
	if err := json.Unmarshal(b, &f); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if f.Type != "frame" || f.View != sim.ServerView || len(f.Entities) != 2 {
		t.Fatalf("frame = %+v", f)
	}
	if f.Entities[0].Position != 4 || f.Entities[1].Position != 6 {
		t.Fatalf("positions = %+v", f.Entities)
	}
}

func TestIntentDrivesClient(t *testing.T) {
	hub, s, clock, srv := startServer(t, 100, 10)
	conn := dial(t, srv, hub)

	c, _ := s.Client(0)
	c.Update()

	msg := IntentMessage{Type: "move", Client: 0, Direction: "right", Active: true}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write intent: %v", err)
	}
	waitFor(t, func() bool { return hub.Metrics()["intents_applied"] == int64(1) })

	clock.Advance(100 * time.Millisecond)
	c.Update()
	p := c.Pending()
	if len(p) != 1 || p[0].PressTime <= 0 {
		t.Fatalf("pending = %+v, want one rightward input", p)
	}
}

func TestIntentRejectedAndRateLimited(t *testing.T) {
	hub, _, _, srv := startServer(t, 0.001, 2)
	conn := dial(t, srv, hub)

	bad := []IntentMessage{
		{Type: "move", Client: 0, Direction: "up", Active: true},
		{Type: "move", Client: 9, Direction: "left", Active: true},
	}
	for _, m := range bad {
		if err := conn.WriteJSON(m); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	waitFor(t, func() bool { return hub.Metrics()["intents_rejected"] == int64(2) })

	// 令牌已用完，后续意图全部被限流
	for i := 0; i < 3; i++ {
		if err := conn.WriteJSON(IntentMessage{Type: "move", Client: 0, Direction: "left", Active: true}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	waitFor(t, func() bool { return hub.Metrics()["rate_limited"] == int64(3) })
	if got := hub.Metrics()["intents_applied"]; got != int64(0) {
		t.Fatalf("intents_applied = %v, want 0", got)
	}
}

func TestViewerDisconnectUnregisters(t *testing.T) {
	hub, _, _, srv := startServer(t, 100, 10)
	conn := dial(t, srv, hub)
	_ = conn.Close()
	waitFor(t, func() bool { return hub.ViewerCount() == 0 })
}

func TestAdminParams(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	s := newTestSim(t, nil, clock)
	mux := NewAdmin(s, nil).Routes("")

	form := url.Values{"lag": {"abc"}, "prediction": {"true"}, "rate": {"30"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/params?target=1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		OK       bool     `json:"ok"`
		Rejected []string `json:"rejected"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OK || len(resp.Rejected) != 1 || resp.Rejected[0] != "lag" {
		t.Fatalf("response = %+v", resp)
	}

	c, _ := s.Client(1)
	got := c.Params()
	if got.LagMs != 0 || !got.Prediction || got.Reconciliation || got.UpdateRateHz != 30 {
		t.Fatalf("params = %+v", got)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/params?target=server&rate=8", nil))
	if rec.Code != http.StatusOK || s.Server.UpdateRate() != 8 {
		t.Fatalf("server rate update: status %d rate %v", rec.Code, s.Server.UpdateRate())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/params", nil))
	var view paramsView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Server.UpdateRateHz != 8 || len(view.Clients) != 2 || view.Clients[1].Name != "player2" || !view.Clients[1].Prediction {
		t.Fatalf("view = %+v", view)
	}
}

func TestAdminParamsBadTarget(t *testing.T) {
	s := newTestSim(t, nil, &manualClock{})
	mux := NewAdmin(s, nil).Routes("")

	cases := map[string]int{
		"/admin/params?target=nine": http.StatusBadRequest,
		"/admin/params?target=9":    http.StatusNotFound,
	}
	for path, want := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, want)
		}
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/params", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d", rec.Code)
	}
}

func TestMetricsAndHealth(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	s := newTestSim(t, nil, clock)
	mux := NewAdmin(s, NewHub(1, 1)).Routes("")

	s.Server.Update()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var m struct {
		Server struct {
			Tick int64 `json:"tick"`
		} `json:"server"`
		Clients []struct {
			Name string `json:"name"`
		} `json:"clients"`
		Viewers map[string]any `json:"viewers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Server.Tick != 1 || len(m.Clients) != 2 || m.Viewers == nil {
		t.Fatalf("metrics = %+v", m)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Body.String() != "ok" {
		t.Fatalf("healthz = %q", rec.Body.String())
	}
}
