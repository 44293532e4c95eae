// Package db opens the minutes database and manages its schema.
// Postgres (via pgx) and SQLite (via modernc.org/sqlite) are supported behind
// database/sql; queries are written with ? placeholders and rebound per dialect.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver
)

// Dialect identifies the SQL backend behind a DB.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values for dsn.
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		MaxConnLifetime: time.Hour,
		ConnectTimeout:  10 * time.Second,
		BusyTimeout:     5 * time.Second,
	}
}

// Validate checks if the config has required fields set.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("connection limits must not be negative")
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max idle connections (%d) must be <= max open connections (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// ParseDSN picks the dialect for dsn and returns the driver name and data
// source to hand to sql.Open. postgres:// and postgresql:// URLs select
// Postgres; sqlite:// URLs, file: URIs and bare paths select SQLite.
func ParseDSN(dsn string, busyTimeout time.Duration) (Dialect, string, string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", "", fmt.Errorf("database dsn is required")
	}

	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, "pgx", dsn, nil
	case strings.Contains(lower, "://") && !strings.HasPrefix(lower, "sqlite://"):
		return "", "", "", fmt.Errorf("unsupported database scheme in %q", RedactDSN(dsn))
	}

	path := strings.TrimPrefix(dsn, "sqlite://")
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(" + strconv.FormatInt(busyTimeout.Milliseconds(), 10) + ")",
	}
	return DialectSQLite, "sqlite", path + sep + strings.Join(pragmas, "&"), nil
}

// RedactDSN hides the password of a URL-style DSN for logging.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}

// DB wraps *sql.DB with the dialect it talks to.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open creates a new connection pool with the given configuration and pings it.
// The caller is responsible for calling Close when done.
func Open(ctx context.Context, cfg *Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dialect, driver, source, err := ParseDSN(cfg.DSN, cfg.BusyTimeout)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if dialect == DialectSQLite {
		// SQLite allows a single writer; one connection avoids SQLITE_BUSY
		// between workers of the same process.
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(min(cfg.MaxIdleConns, maxOpen))
	sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, Dialect: dialect}, nil
}

// OpenWithRetry opens the database, retrying while the server is not ready.
func OpenWithRetry(ctx context.Context, cfg *Config, maxAttempts int, retryDelay time.Duration) (*DB, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	// A bad config will not get better by waiting.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, _, _, err := ParseDSN(cfg.DSN, cfg.BusyTimeout); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		db, err := Open(ctx, cfg)
		if err == nil {
			return db, nil
		}
		lastErr = err

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, lastErr)
}

// Rebind rewrites ? placeholders to $1, $2, ... for Postgres.
// Question marks inside single-quoted literals are left alone.
func (d *DB) Rebind(query string) string {
	if d.Dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Close gracefully closes the database if it is not nil.
func Close(db *DB) {
	if db != nil && db.DB != nil {
		db.DB.Close()
	}
}
