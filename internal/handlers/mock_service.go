package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	rc "robot_control"
	"robot_control/internal/models"
	"robot_control/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockEventLog struct {
	resp     []models.RobotEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string

	recorded  []models.RobotEvent
	recordErr error
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.RobotEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}
func (m *mockEventLog) Record(ctx context.Context, typ, description string, metadata any) error {
	m.recorded = append(m.recorded, models.RobotEvent{Type: typ, Description: description, Metadata: metadata})
	return m.recordErr
}

// mockGateway is read by the websocket writer while tests update it.
type mockGateway struct {
	mu sync.Mutex

	submitMsg rc.Message
	submitErr error
	powerErr  error
	snap      rc.Telemetry
	version   uint64

	tokens   []string
	requests []service.PowerRequest
	docks    []map[string]any
	polls    int
}

func (m *mockGateway) Submit(token string) (rc.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, token)
	return m.submitMsg, m.submitErr
}
func (m *mockGateway) Power(req service.PowerRequest) (rc.Telemetry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.powerErr != nil {
		return nil, m.powerErr
	}
	return m.snap, nil
}
func (m *mockGateway) PollTelemetry() rc.Telemetry {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	return m.snap
}
func (m *mockGateway) Telemetry() (rc.Telemetry, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.version
}
func (m *mockGateway) DockSignal(signal map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docks = append(m.docks, signal)
}

// set replaces the telemetry and bumps its version.
func (m *mockGateway) set(snap rc.Telemetry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	m.version++
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
