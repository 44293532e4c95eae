package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
)

// WriteBatch stores log entries in ingest_logs. It implements logging.LogWriter
// so a logging.DBSink can persist the log of an ingest run.
func (r *Repository) WriteBatch(ctx context.Context, entries []logging.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint: errcheck

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO ingest_logs (job_id, logged_at, level, service, message, fields, trace_id, caller)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare log insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var fields any
		if len(e.Fields) > 0 {
			data, err := json.Marshal(e.Fields)
			if err != nil {
				return fmt.Errorf("failed to marshal log fields: %w", err)
			}
			fields = string(data)
		}
		ts := e.Timestamp
		if ts.IsZero() {
			ts = r.now()
		}
		if _, err := stmt.ExecContext(ctx,
			nullable(e.JobID), formatTime(ts), e.Level, e.Service, e.Message,
			fields, nullable(e.TraceID), nullable(e.Caller)); err != nil {
			return fmt.Errorf("failed to insert log entry: %w", err)
		}
	}

	return tx.Commit()
}

// LogRecord is a stored log entry.
type LogRecord struct {
	Time    time.Time
	Level   string
	Message string
	Fields  map[string]string
}

// GetJobLogs returns the stored log entries of a job, oldest first.
func (r *Repository) GetJobLogs(ctx context.Context, jobID string) ([]LogRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT logged_at, level, message, fields
		FROM ingest_logs
		WHERE job_id = ?
		ORDER BY id ASC
	`), jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job logs: %w", err)
	}
	defer rows.Close()

	var out []LogRecord
	for rows.Next() {
		var (
			rec      LogRecord
			loggedAt string
			fields   []byte
		)
		if err := rows.Scan(&loggedAt, &rec.Level, &rec.Message, &fields); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		rec.Time = parseTime(loggedAt)
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &rec.Fields); err != nil {
				rec.Fields = map[string]string{}
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
