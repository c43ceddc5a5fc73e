// Package history stores an audit trail of pipeline runs and job outcomes.
// It is never consulted to decide what to rebuild.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// MemoryDSN keeps history in memory for the lifetime of the DB.
const MemoryDSN = ":memory:"

// DB is an open history store
type DB struct {
	*sql.DB
	path string
}

// Tx is a history write in progress
type Tx struct {
	*sql.Tx
}

// Config holds run history settings
type Config struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Driver  string `toml:"driver" yaml:"driver"`

	// Database file, relative to the processed directory unless absolute
	DSN string `toml:"dsn" yaml:"dsn"`

	MaxOpenConns    int           `toml:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DefaultConfig returns history defaults. History is off unless enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		Driver:          "sqlite3",
		DSN:             "postproc-history.db",
		MaxOpenConns:    1,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("history: not found")

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Open opens the history store for the simulation in workDir, creating the
// database file and its tables on first use.
func Open(cfg Config, workDir string) (*DB, error) {
	path := cfg.DSN
	if path != MemoryDSN && !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	conn, err := sql.Open(cfg.Driver, path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	// Every connection to :memory: is a separate database.
	if path == MemoryDSN {
		conn.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 && path != MemoryDSN {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	db := &DB{DB: conn, path: path}
	if err := db.ensureSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create history schema in %s: %w", path, err)
	}
	return db, nil
}

// Path returns the resolved database location
func (db *DB) Path() string {
	return db.path
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (db *DB) inTx(fn func(*Tx) error) error {
	sqlTx, err := db.DB.Begin()
	if err != nil {
		return err
	}
	tx := &Tx{Tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
