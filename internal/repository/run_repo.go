package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"robot_control/internal/models"

	"github.com/google/uuid"
)

const (
	insertRunSQL     = `INSERT INTO runs (id, robot, started_at) VALUES (?, ?, ?)`
	updateRunSQL     = `UPDATE runs SET shutdown_at = ? WHERE id = ? AND shutdown_at IS NULL`
	selectLastRunSQL = `
		SELECT id, robot, started_at, shutdown_at FROM runs
		WHERE robot = ? ORDER BY started_at DESC LIMIT 1
	`
)

type RunSQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewRunSQLite(db *sql.DB) *RunSQLite {
	return &RunSQLite{db: db, now: time.Now}
}

// NoteStarted opens a new run for robot.
func (r *RunSQLite) NoteStarted(ctx context.Context, robot string) (models.Run, error) {
	run := models.Run{ID: uuid.NewString(), Robot: robot, StartedAt: r.now().UTC()}
	if _, err := r.db.ExecContext(ctx, insertRunSQL, run.ID, run.Robot, run.StartedAt.Format(sqliteTimestamp)); err != nil {
		return models.Run{}, fmt.Errorf("note start of %s: %w", robot, err)
	}
	return run, nil
}

// NoteShutdown closes a run. Closing an already closed or unknown run is
// ErrNotFound.
func (r *RunSQLite) NoteShutdown(ctx context.Context, runID string) error {
	res, err := r.db.ExecContext(ctx, updateRunSQL, r.now().UTC().Format(sqliteTimestamp), runID)
	if err != nil {
		return fmt.Errorf("note shutdown of run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("note shutdown of run %s: %w", runID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Last returns the most recent run of robot.
func (r *RunSQLite) Last(ctx context.Context, robot string) (models.Run, error) {
	var (
		run      models.Run
		started  string
		shutdown sql.NullString
	)
	err := r.db.QueryRowContext(ctx, selectLastRunSQL, robot).Scan(&run.ID, &run.Robot, &started, &shutdown)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Run{}, ErrNotFound
	}
	if err != nil {
		return models.Run{}, fmt.Errorf("last run of %s: %w", robot, err)
	}
	if run.StartedAt, err = time.ParseInLocation(sqliteTimestamp, started, time.UTC); err != nil {
		return models.Run{}, fmt.Errorf("run %s start: %w", run.ID, err)
	}
	if shutdown.Valid {
		at, err := time.ParseInLocation(sqliteTimestamp, shutdown.String, time.UTC)
		if err != nil {
			return models.Run{}, fmt.Errorf("run %s shutdown: %w", run.ID, err)
		}
		run.ShutdownAt = &at
	}
	return run, nil
}
