package db

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus represents the health state of a database connection.
type HealthStatus struct {
	Healthy   bool
	Dialect   Dialect
	Latency   time.Duration
	OpenConns int
	InUse     int
	Idle      int
	Error     error
}

// Ping checks if the database is reachable.
func Ping(ctx context.Context, db *DB) error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("db is nil")
	}
	return db.PingContext(ctx)
}

// Check performs a health check and returns detailed status.
func Check(ctx context.Context, db *DB) *HealthStatus {
	status := &HealthStatus{}

	if db == nil || db.DB == nil {
		status.Error = fmt.Errorf("db is nil")
		return status
	}
	status.Dialect = db.Dialect

	start := time.Now()
	err := db.PingContext(ctx)
	status.Latency = time.Since(start)

	if err != nil {
		status.Error = fmt.Errorf("ping failed: %w", err)
		return status
	}

	stats := db.Stats()
	status.Healthy = true
	status.OpenConns = stats.OpenConnections
	status.InUse = stats.InUse
	status.Idle = stats.Idle

	return status
}

// WaitForReady polls the database until it becomes available or context is cancelled.
func WaitForReady(ctx context.Context, db *DB, pollInterval time.Duration) error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("db is nil")
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	if err := db.PingContext(ctx); err == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := db.PingContext(ctx); err == nil {
				return nil
			}
		}
	}
}
