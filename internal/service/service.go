package service

import (
	"context"
	"time"

	rc "robot_control"
	"robot_control/internal/models"
	"robot_control/internal/repository"
)

// Endpoint is a process's view of the channel fabric.
type Endpoint interface {
	Send(msg rc.Message) int
	Receive(ctx context.Context) (rc.Message, error)
	Poll() (rc.Message, bool)
}

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// EventLog exposes the robot event log with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.RobotEvent, error)
	Record(ctx context.Context, typ, description string, metadata any) error
}

// Gateway is what remote operators use to drive the robot and watch it.
type Gateway interface {
	Submit(token string) (rc.Message, error)
	Power(req PowerRequest) (rc.Telemetry, error)
	PollTelemetry() rc.Telemetry
	Telemetry() (rc.Telemetry, uint64)
	DockSignal(signal map[string]any)
}

//
// Root Service aggregates what the HTTP layer needs.
//

type Service struct {
	Authorization
	EventLog
	Gateway
}

// NewService wires the repository layer and the gateway into the services
// used by the handlers.
func NewService(repos *repository.Repository, gw Gateway, signingKey string, tokenTTL time.Duration) *Service {
	return &Service{
		Authorization: NewAuthService(repos.Auth, signingKey, tokenTTL),
		EventLog:      NewEventLogService(repos.EventRepo),
		Gateway:       gw,
	}
}
