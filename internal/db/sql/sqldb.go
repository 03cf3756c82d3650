// Package sqldb opens the relational backend and hides dialect differences
// between PostgreSQL and SQLite behind Dialect.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// Driver names accepted in configuration.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds connection parameters.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Open connects to the backend, applies pool limits and pings it.
func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	d, err := ForDriver(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DSN == "" {
		return nil, nil, fmt.Errorf("dsn is required")
	}

	conn, err := sql.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == DriverSQLite && isMemoryDSN(cfg.DSN) {
		// every connection to a private in-memory database sees its own empty schema
		maxOpen = 1
	}
	if maxOpen > 0 {
		conn.SetMaxOpenConns(maxOpen)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(min(cfg.MaxIdleConns, max(maxOpen, 1)))
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return conn, d, nil
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") ||
		(strings.Contains(dsn, "mode=memory") && !strings.Contains(dsn, "cache=shared"))
}

// ForDriver returns the dialect for a configured driver name.
func ForDriver(name string) (Dialect, error) {
	switch name {
	case DriverPostgres, "postgresql", "pgx":
		return Postgres{}, nil
	case DriverSQLite, "sqlite3":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", name)
	}
}
