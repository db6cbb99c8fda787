package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	rc "robot_control"
	"robot_control/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil)

	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default_when_missing", "/ws", defaultInterval},
		{"interval_string_valid", "/ws?interval=200ms", 200 * time.Millisecond},
		{"interval_ms_valid", "/ws?interval_ms=150", 150 * time.Millisecond},
		{"interval_too_large", "/ws?interval=20s", defaultInterval},
		{"interval_too_small", "/ws?interval=1ms", defaultInterval},
		{"interval_ms_too_large", "/ws?interval_ms=20000", defaultInterval},
		{"interval_ms_too_small", "/ws?interval_ms=5", defaultInterval},
		{"interval_invalid_string", "/ws?interval=bogus", defaultInterval},
		{"interval_ms_invalid", "/ws?interval_ms=NaN", defaultInterval},
		{"both_present_interval_wins", "/ws?interval=2s&interval_ms=150", 2 * time.Second},
		{"both_present_invalid_interval_ms_used", "/ws?interval=bogus&interval_ms=250", 250 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.u, nil)
			c, _ := gin.CreateTestContext(w)
			c.Request = req
			got := h.parseInterval(c)
			if got != tc.want {
				t.Fatalf("got %v, want %v for %s", got, tc.want, tc.u)
			}
		})
	}
}

type testEnvelope struct {
	Type    string          `json:"type"`
	Version uint64          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

func dialTelemetry(t *testing.T, gw *mockGateway) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(&service.Service{Gateway: gw}, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	q := u.Query()
	q.Set("interval_ms", "50")
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) testEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env testEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func TestWebSocket_TelemetryStream(t *testing.T) {
	gw := &mockGateway{}
	gw.set(rc.Telemetry{"Bat": map[string]any{"level": 0.8}})
	conn := dialTelemetry(t, gw)

	env := readEnvelope(t, conn)
	if env.Type != "telemetry" || env.Version != 1 {
		t.Fatalf("bad initial envelope: %+v", env)
	}
	var data map[string]map[string]float64
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if data["Bat"]["level"] != 0.8 {
		t.Fatalf("unexpected telemetry: %v", data)
	}

	// unchanged versions are skipped, so the next frame carries the update
	time.Sleep(150 * time.Millisecond)
	gw.set(rc.Telemetry{"Bat": map[string]any{"level": 0.7}})
	env = readEnvelope(t, conn)
	if env.Version != 2 {
		t.Fatalf("expected version 2, got %+v", env)
	}
}

func TestWebSocket_InitialFrameSentWithoutTelemetry(t *testing.T) {
	conn := dialTelemetry(t, &mockGateway{})

	env := readEnvelope(t, conn)
	if env.Type != "telemetry" || env.Version != 0 {
		t.Fatalf("bad initial envelope: %+v", env)
	}
}
