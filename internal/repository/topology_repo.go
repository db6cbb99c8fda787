package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"robot_control/internal/models"
)

const (
	selectRobotSQL     = `SELECT name FROM robots WHERE name = ?`
	selectProcessesSQL = `SELECT id, name, role, enabled FROM processes WHERE robot = ? ORDER BY id`
	selectChannelsSQL  = `
		SELECT id, description, direction, source, target, share_queue, type, protocol
		FROM channels WHERE robot = ? ORDER BY id
	`

	upsertRobotSQL     = `INSERT INTO robots (name) VALUES (?) ON CONFLICT(name) DO NOTHING`
	deleteProcessesSQL = `DELETE FROM processes WHERE robot = ?`
	deleteChannelsSQL  = `DELETE FROM channels WHERE robot = ?`
	insertProcessSQL   = `INSERT INTO processes (robot, id, name, role, enabled) VALUES (?, ?, ?, ?, ?)`
	insertChannelSQL   = `
		INSERT INTO channels (robot, id, description, direction, source, target, share_queue, type, protocol)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
)

type TopologySQLite struct {
	db *sql.DB
}

func NewTopologySQLite(db *sql.DB) *TopologySQLite {
	return &TopologySQLite{db: db}
}

// Load returns ErrNotFound for a robot that was never saved.
func (r *TopologySQLite) Load(ctx context.Context, robot string) (models.Topology, error) {
	var name string
	err := r.db.QueryRowContext(ctx, selectRobotSQL, robot).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Topology{}, ErrNotFound
	}
	if err != nil {
		return models.Topology{}, fmt.Errorf("load robot %q: %w", robot, err)
	}

	top := models.Topology{Robot: name}
	if top.Processes, err = r.processes(ctx, robot); err != nil {
		return models.Topology{}, err
	}
	if top.Channels, err = r.channels(ctx, robot); err != nil {
		return models.Topology{}, err
	}
	return top, nil
}

func (r *TopologySQLite) processes(ctx context.Context, robot string) ([]models.Process, error) {
	rows, err := r.db.QueryContext(ctx, selectProcessesSQL, robot)
	if err != nil {
		return nil, fmt.Errorf("load processes of %q: %w", robot, err)
	}
	defer rows.Close()

	var out []models.Process
	for rows.Next() {
		var p models.Process
		if err := rows.Scan(&p.ID, &p.Name, &p.Role, &p.Enabled); err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *TopologySQLite) channels(ctx context.Context, robot string) ([]models.Channel, error) {
	rows, err := r.db.QueryContext(ctx, selectChannelsSQL, robot)
	if err != nil {
		return nil, fmt.Errorf("load channels of %q: %w", robot, err)
	}
	defer rows.Close()

	var out []models.Channel
	for rows.Next() {
		var (
			c        models.Channel
			protocol sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Description, &c.Direction, &c.Source, &c.Target, &c.ShareQueue, &c.Type, &protocol); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		c.Protocol = protocol.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// Save replaces the stored topology of top.Robot in one transaction.
func (r *TopologySQLite) Save(ctx context.Context, top models.Topology) error {
	if top.Robot == "" {
		return errors.New("topology has no robot name")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin topology transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{upsertRobotSQL, deleteProcessesSQL, deleteChannelsSQL} {
		if _, err := tx.ExecContext(ctx, stmt, top.Robot); err != nil {
			return fmt.Errorf("reset topology of %q: %w", top.Robot, err)
		}
	}
	for _, p := range top.Processes {
		if _, err := tx.ExecContext(ctx, insertProcessSQL, top.Robot, p.ID, p.Name, p.Role, p.Enabled); err != nil {
			return fmt.Errorf("insert process %d: %w", p.ID, err)
		}
	}
	for _, c := range top.Channels {
		if _, err := tx.ExecContext(ctx, insertChannelSQL,
			top.Robot, c.ID, c.Description, c.Direction, c.Source, c.Target, c.ShareQueue, c.Type, c.Protocol,
		); err != nil {
			return fmt.Errorf("insert channel %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit topology of %q: %w", top.Robot, err)
	}
	return nil
}
