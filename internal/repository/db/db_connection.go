package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens or creates the robot database at path and ensures the
// configuration, event and operator tables exist. ":memory:" works for tests.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// one connection: a second one would see a different :memory: database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Pragmas to improve reliability
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA foreign_keys=ON: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Fail fast if the DB cannot be reached
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaRobots = `
CREATE TABLE IF NOT EXISTS robots (
    name TEXT PRIMARY KEY
);
`

const schemaProcesses = `
CREATE TABLE IF NOT EXISTS processes (
    robot TEXT NOT NULL REFERENCES robots(name) ON DELETE CASCADE,
    id INTEGER NOT NULL,
    name TEXT NOT NULL,
    role TEXT NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT 1,
    PRIMARY KEY (robot, id)
);
`

const schemaChannels = `
CREATE TABLE IF NOT EXISTS channels (
    robot TEXT NOT NULL REFERENCES robots(name) ON DELETE CASCADE,
    id INTEGER NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    direction TEXT NOT NULL CHECK (direction IN ('Send', 'Receive')),
    source INTEGER NOT NULL,
    target INTEGER NOT NULL,
    share_queue INTEGER NOT NULL DEFAULT 0,
    type TEXT NOT NULL,
    protocol TEXT,
    PRIMARY KEY (robot, id)
);
`

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    robot TEXT NOT NULL,
    started_at TEXT NOT NULL,
    shutdown_at TEXT
);
`

const schemaRobotEvents = `
CREATE TABLE IF NOT EXISTS robot_events (
    id TEXT PRIMARY KEY,
    occurred_at TEXT NOT NULL,
    type TEXT NOT NULL,
    message TEXT NOT NULL,
    meta TEXT
);
`

const indexRobotEvents = `
CREATE INDEX IF NOT EXISTS robot_events_occurred_at ON robot_events (occurred_at);
`

const schemaCalibration = `
CREATE TABLE IF NOT EXISTS calibration (
    robot TEXT NOT NULL,
    name TEXT NOT NULL,
    value REAL NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (robot, name)
);
`

const schemaOperators = `
CREATE TABLE IF NOT EXISTS operators (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaRobots,
		schemaProcesses,
		schemaChannels,
		schemaRuns,
		schemaRobotEvents,
		indexRobotEvents,
		schemaCalibration,
		schemaOperators,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
