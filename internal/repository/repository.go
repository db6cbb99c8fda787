package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"robot_control/internal/models"
)

// ErrNotFound is returned when a robot has no stored row of the requested kind.
var ErrNotFound = errors.New("not found")

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.RobotEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.RobotEvent, error)
}

// TopologyRepo persists the process and channel configuration per robot.
type TopologyRepo interface {
	Load(ctx context.Context, robot string) (models.Topology, error)
	Save(ctx context.Context, top models.Topology) error
}

// RunRepo records when the robot was started and shut down.
type RunRepo interface {
	NoteStarted(ctx context.Context, robot string) (models.Run, error)
	NoteShutdown(ctx context.Context, runID string) error
	Last(ctx context.Context, robot string) (models.Run, error)
}

// CalibrationRepo stores sensor corrections.
type CalibrationRepo interface {
	Save(ctx context.Context, s models.CalibrationSetting) error
	Load(ctx context.Context, robot, name string) (models.CalibrationSetting, error)
}

type Repository struct {
	EventRepo   EventRepo
	Topology    TopologyRepo
	Runs        RunRepo
	Calibration CalibrationRepo
	Auth        Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		EventRepo:   NewEventSQLite(db),
		Topology:    NewTopologySQLite(db),
		Runs:        NewRunSQLite(db),
		Calibration: NewCalibrationSQLite(db),
		Auth:        NewOperatorRepository(db),
	}
}
