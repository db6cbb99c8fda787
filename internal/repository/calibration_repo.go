package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"robot_control/internal/models"
)

const (
	upsertCalibrationSQL = `
		INSERT INTO calibration (robot, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(robot, name) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at
	`
	selectCalibrationSQL = `
		SELECT robot, name, value, updated_at
		FROM calibration WHERE robot=? AND name=?
	`
)

type CalibrationSQLite struct {
	db *sql.DB
}

func NewCalibrationSQLite(db *sql.DB) *CalibrationSQLite {
	return &CalibrationSQLite{db: db}
}

// Save inserts or replaces one setting. UpdatedAt defaults to now and is
// always stored in UTC.
func (r *CalibrationSQLite) Save(ctx context.Context, s models.CalibrationSetting) error {
	ts := s.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.ExecContext(ctx, upsertCalibrationSQL,
		s.Robot,
		s.Name,
		s.Value,
		ts.UTC().Format(sqliteTimestamp),
	)
	if err != nil {
		return fmt.Errorf("save calibration %s/%s: %w", s.Robot, s.Name, err)
	}
	return nil
}

// Load returns ErrNotFound when the setting was never saved.
func (r *CalibrationSQLite) Load(ctx context.Context, robot, name string) (models.CalibrationSetting, error) {
	var (
		s  models.CalibrationSetting
		ts string
	)
	err := r.db.QueryRowContext(ctx, selectCalibrationSQL, robot, name).Scan(&s.Robot, &s.Name, &s.Value, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CalibrationSetting{}, ErrNotFound
	}
	if err != nil {
		return models.CalibrationSetting{}, fmt.Errorf("load calibration %s/%s: %w", robot, name, err)
	}
	if s.UpdatedAt, err = time.ParseInLocation(sqliteTimestamp, ts, time.UTC); err != nil {
		return models.CalibrationSetting{}, fmt.Errorf("calibration %s/%s timestamp: %w", robot, name, err)
	}
	return s, nil
}
