package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/solar-control-core/internal/automation"
	"github.com/nerrad567/solar-control-core/internal/infrastructure/config"
	"github.com/nerrad567/solar-control-core/internal/infrastructure/logging"
	"github.com/nerrad567/solar-control-core/internal/infrastructure/metrics"
	"github.com/nerrad567/solar-control-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/solar-control-core/internal/notify"
	"github.com/nerrad567/solar-control-core/internal/settings"
	"github.com/nerrad567/solar-control-core/internal/state"
	"github.com/nerrad567/solar-control-core/internal/value"
)

const testNamespace = "solar_assistant_DEYE"

// ─── Test Helpers ───────────────────────────────────────────────────────────

type published struct {
	topic string
	value value.Value
}

type mockPublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (m *mockPublisher) Publish(_ context.Context, topic string, v value.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, published{topic: topic, value: v})
	return nil
}

func (m *mockPublisher) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, p := range m.sent {
		out[i] = p.topic
	}
	return out
}

type mockBus struct {
	connected bool
	stats     mqtt.Stats
}

func (m mockBus) IsConnected() bool { return m.connected }
func (m mockBus) Stats() mqtt.Stats { return m.stats }

type testEnv struct {
	srv       *Server
	router    http.Handler
	state     *state.Store
	registry  *automation.Registry
	settings  *settings.Store
	publisher *mockPublisher
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testServer creates a Server over in-memory repositories and a mock
// publisher.
func testServer(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := testLogger()

	registry := automation.NewRegistry(automation.NewMemoryRepository())
	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	store := settings.NewStore(settings.NewMemoryRepository())
	if err := store.Load(ctx, settings.BuiltinDefaults()); err != nil {
		t.Fatalf("settings Load: %v", err)
	}

	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)
	hubCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go hub.Run(hubCtx)

	st := state.NewStore(state.WithNotifier(hub))
	pub := &mockPublisher{}

	srv, err := New(Deps{
		Config:    config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:        config.WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:    log,
		State:     st,
		Registry:  registry,
		Settings:  store,
		Publisher: pub,
		Topics:    mqtt.Topics{Namespace: testNamespace},
		Bus:       mockBus{connected: true, stats: mqtt.Stats{Received: 42, Published: 3}},
		Metrics:   metrics.New(),
		Hub:       hub,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testEnv{
		srv:       srv,
		router:    srv.Handler(),
		state:     st,
		registry:  registry,
		settings:  store,
		publisher: pub,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return out
}

// ─── Server Lifecycle ───────────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(empty) error = nil, want error")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New(logger only) error = nil, want error")
	}
}

func TestServer_StartAndClose(t *testing.T) {
	env := testServer(t)
	env.srv.cfg.Port = 19180

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	addr := fmt.Sprintf("127.0.0.1:%d", env.srv.cfg.Port)
	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after Start = %v", err)
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

// ─── Health & Middleware ────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["mqtt"] != "connected" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestHealth_DegradedWithoutBus(t *testing.T) {
	env := testServer(t)
	env.srv.bus = mockBus{connected: false}

	resp := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/v1/health", ""))
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
}

func TestRequestID(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-id-123" {
		t.Errorf("X-Request-ID = %q, want client-id-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/universal-settings", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	env := testServer(t)
	env.srv.cfg.CORS.AllowedOrigins = []string{"http://allowed.local"}
	router := env.srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.local")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	env := testServer(t)

	for _, path := range []string{"/nope", "/api/v1/nope"} {
		w := env.do(t, http.MethodGet, path, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, w.Code)
			continue
		}
		if resp := decode[Error](t, w); resp.Code != ErrCodeNotFound {
			t.Errorf("GET %s code = %q, want %q", path, resp.Code, ErrCodeNotFound)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPatch, "/api/v1/universal-settings", `{}`)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := testServer(t)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if resp := decode[Error](t, w); resp.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeInternal)
	}
}

func TestBodySizeLimit(t *testing.T) {
	env := testServer(t)

	big := `{"k":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	w := env.do(t, http.MethodPost, "/api/v1/universal-settings", big)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(env.publisher.topics()) != 0 {
		t.Error("oversized body reached the publisher")
	}
}

// ─── State & Metrics ────────────────────────────────────────────────────────

func TestGetState(t *testing.T) {
	env := testServer(t)
	env.state.Apply("battery", "state_of_charge", value.Number(82))

	resp := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/v1/state", ""))
	battery, ok := resp["battery"].(map[string]any)
	if !ok {
		t.Fatalf("state = %v, want battery bucket", resp)
	}
	if battery["state_of_charge"] != float64(82) {
		t.Errorf("battery.state_of_charge = %v, want 82", battery["state_of_charge"])
	}
}

func TestSystemMetrics(t *testing.T) {
	env := testServer(t)
	rule := automation.Rule{Name: "r"}
	_ = env.registry.CreateRule(context.Background(), &rule)

	w := env.do(t, http.MethodGet, "/api/v1/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	m := decode[SystemMetrics](t, w)
	if m.Automation.Rules != 1 || m.Automation.Schedules != 0 {
		t.Errorf("automation = %+v", m.Automation)
	}
	if !m.MQTT.Connected || m.Version != "test" {
		t.Errorf("metrics = %+v", m)
	}
	if m.MQTT.Received != 42 || m.MQTT.Published != 3 {
		t.Errorf("mqtt stats = %+v, want received 42, published 3", m.MQTT.Stats)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	env := testServer(t)
	env.do(t, http.MethodGet, "/api/v1/health", "")

	w := env.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `solarcore_http_requests_total{route="/api/v1/health",status="200"} 1`) {
		t.Error("request to /api/v1/health not recorded by route pattern")
	}
}

// ─── Raw Publish ────────────────────────────────────────────────────────────

func TestPublish(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/mqtt", `{"topic":"solar_assistant_DEYE/work_mode/set","message":"Selling first"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if len(env.publisher.sent) != 1 {
		t.Fatalf("sent %d, want 1", len(env.publisher.sent))
	}
	if got := env.publisher.sent[0]; got.topic != "solar_assistant_DEYE/work_mode/set" || !got.value.Equal(value.Text("Selling first")) {
		t.Errorf("sent = %+v", got)
	}
}

func TestPublish_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		pubErr   error
		wantCode int
	}{
		{name: "invalid json", body: `{`, wantCode: http.StatusBadRequest},
		{name: "missing topic", body: `{"message":1}`, wantCode: http.StatusBadRequest},
		{name: "broker failure", body: `{"topic":"t/x","message":1}`, pubErr: errors.New("not connected"), wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testServer(t)
			env.publisher.err = tt.pubErr

			w := env.do(t, http.MethodPost, "/api/v1/mqtt", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestPublish_NoPublisher(t *testing.T) {
	env := testServer(t)
	env.srv.publisher = nil

	w := env.do(t, http.MethodPost, "/api/v1/mqtt", `{"topic":"t/x","message":1}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// ─── WebSocket ──────────────────────────────────────────────────────────────

func TestHub_NotifyReachesClients(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	client := newObserver(nil, observerQueue)
	hub.add(client)

	hub.Notify(notify.Log("Published to a/b: 1"))

	select {
	case msg := <-client.send:
		var e notify.Event
		if err := json.Unmarshal(msg, &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if e.Type != notify.TypeAutomationLog || e.Message != "Published to a/b: 1" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for event")
	}
}

type mockGauge struct {
	mu   sync.Mutex
	last int
}

func (g *mockGauge) ObserversConnected(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = n
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	gauge := &mockGauge{}
	hub.SetGauge(gauge)

	client := newObserver(nil, observerQueue)
	hub.add(client)
	if hub.ClientCount() != 1 || gauge.last != 1 {
		t.Errorf("after register count = %d, gauge = %d; want 1, 1", hub.ClientCount(), gauge.last)
	}

	hub.remove(client)
	hub.remove(client)
	if hub.ClientCount() != 0 || gauge.last != 0 {
		t.Errorf("after unregister count = %d, gauge = %d; want 0, 0", hub.ClientCount(), gauge.last)
	}
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	client := newObserver(nil, 1)
	hub.add(client)

	hub.Notify(notify.Log("first"))
	hub.Notify(notify.Log("second"))

	if got := len(client.send); got != 1 {
		t.Errorf("queued = %d, want 1", got)
	}
}

func TestHub_RunDisconnectsObservers(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	gauge := &mockGauge{last: -1}
	hub.SetGauge(gauge)
	client := newObserver(nil, 1)
	hub.add(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	select {
	case <-client.done:
	default:
		t.Error("observer still active after Run returned")
	}
	if hub.ClientCount() != 0 || gauge.last != 0 {
		t.Errorf("after Run count = %d, gauge = %d; want 0, 0", hub.ClientCount(), gauge.last)
	}
	if client.offer([]byte("late")) {
		t.Error("offer() after leave = true, want false")
	}
}

func TestNewHub_Defaults(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.WebSocketConfig
		limit    int64
		ping     time.Duration
		pongWait time.Duration
	}{
		{"zero", config.WebSocketConfig{}, 8192, 30 * time.Second, 10 * time.Second},
		{"configured", config.WebSocketConfig{MaxMessageSize: 1024, PingInterval: 5, PongTimeout: 2}, 1024, 5 * time.Second, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub(tt.cfg, testLogger())
			if h.readLimit != tt.limit || h.pingInterval != tt.ping || h.pongTimeout != tt.pongWait {
				t.Errorf("NewHub() = %d/%v/%v, want %d/%v/%v",
					h.readLimit, h.pingInterval, h.pongTimeout, tt.limit, tt.ping, tt.pongWait)
			}
		})
	}
}

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.router)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestWebSocket_PingPong(t *testing.T) {
	env := testServer(t)
	ws := dialWS(t, env)

	if err := ws.WriteJSON(controlMessage{Type: msgPing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp controlMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if resp.Type != msgPong {
		t.Errorf("response type = %q, want %q", resp.Type, msgPong)
	}
}

func TestWebSocket_UnknownMessageType(t *testing.T) {
	env := testServer(t)
	ws := dialWS(t, env)

	if err := ws.WriteJSON(controlMessage{Type: "subscribe"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp controlMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Type != msgError || !strings.Contains(resp.Message, "subscribe") {
		t.Errorf("response = %+v", resp)
	}
}

func TestWebSocket_StateUpdateBroadcast(t *testing.T) {
	env := testServer(t)
	ws := dialWS(t, env)

	// The pong proves the client is registered with the hub.
	if err := ws.WriteJSON(controlMessage{Type: msgPing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong controlMessage
	if err := ws.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}

	env.state.Apply("pv", "power", value.Number(3200))

	var e struct {
		Type  string         `json:"type"`
		State map[string]any `json:"state"`
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("decoding %s: %v", data, err)
	}
	if e.Type != notify.TypeStateUpdate {
		t.Errorf("type = %q, want %q", e.Type, notify.TypeStateUpdate)
	}
	pv, _ := e.State["pv"].(map[string]any)
	if pv["power"] != float64(3200) {
		t.Errorf("state.pv = %v, want power 3200", e.State["pv"])
	}
}
