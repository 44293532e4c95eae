// Package storage persists ingest jobs, per-file ingest errors and parsed
// meeting records.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/minutes-cli/pkg/db"
	mnerrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
)

// IngestJobStatus represents the state of an ingest batch job.
type IngestJobStatus string

const (
	IngestJobStatusPending         IngestJobStatus = "pending"
	IngestJobStatusInProgress      IngestJobStatus = "in_progress"
	IngestJobStatusCompleted       IngestJobStatus = "completed"
	IngestJobStatusCompletedErrors IngestJobStatus = "completed_with_errors"
	IngestJobStatusFailed          IngestJobStatus = "failed"
	IngestJobStatusCancelled       IngestJobStatus = "cancelled"
)

// IsTerminal reports whether no further updates are expected for the job.
func (s IngestJobStatus) IsTerminal() bool {
	switch s {
	case IngestJobStatusCompleted, IngestJobStatusCompletedErrors, IngestJobStatusFailed, IngestJobStatusCancelled:
		return true
	}
	return false
}

// IngestJob tracks a batch ingest operation.
// Matches the database schema: ingest_jobs table
type IngestJob struct {
	ID            string
	SourcePath    string
	Status        IngestJobStatus
	TotalFiles    int
	ImportedCount int
	SkippedCount  int
	FailedCount   int
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// JobCounts are the final counters of a job.
type JobCounts struct {
	Total    int
	Imported int
	Skipped  int
	Failed   int
}

// IngestError records an error for a specific file during ingest.
// Matches the database schema: ingest_errors table
type IngestError struct {
	ID        int64
	JobID     string
	FilePath  string
	Stage     string
	Code      mnerrors.ErrorCode
	Message   string
	CreatedAt time.Time
}

// Repository provides database operations for ingest.
type Repository struct {
	db     *db.DB
	logger logging.Logger
	now    func() time.Time
}

// NewRepository creates a new ingest repository.
func NewRepository(database *db.DB, logger logging.Logger) *Repository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Repository{
		db:     database,
		logger: logger.With(logging.F("component", "ingest_repository")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Migrate applies the embedded schema migrations.
func (r *Repository) Migrate(ctx context.Context) (*db.MigrationResult, error) {
	result, err := db.Migrate(ctx, r.db)
	if err != nil {
		return result, fmt.Errorf("failed to migrate: %w", err)
	}
	if len(result.Applied) > 0 {
		r.logger.Info("Schema migrated", logging.F("applied", result.Applied))
	}
	return result, nil
}

// CreateJob creates a new ingest job record. An empty ID is replaced by a new UUID.
func (r *Repository) CreateJob(ctx context.Context, job *IngestJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = IngestJobStatusInProgress
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = r.now()
	}

	query := r.db.Rebind(`
		INSERT INTO ingest_jobs (
			id, source_path, status,
			total_files, imported_count, skipped_count, failed_count,
			started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.SourcePath,
		string(job.Status),
		job.TotalFiles,
		job.ImportedCount,
		job.SkippedCount,
		job.FailedCount,
		formatTime(job.StartedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create job", logging.Err(err), logging.F("job_id", job.ID))
		return fmt.Errorf("failed to create job: %w", err)
	}

	r.logger.Debug("Ingest job created",
		logging.F("job_id", job.ID),
		logging.F("source_path", job.SourcePath))

	return nil
}

// GetJob retrieves an ingest job by ID.
func (r *Repository) GetJob(ctx context.Context, jobID string) (*IngestJob, error) {
	query := r.db.Rebind(`
		SELECT
			id, source_path, status,
			total_files, imported_count, skipped_count, failed_count,
			started_at, completed_at
		FROM ingest_jobs
		WHERE id = ?
	`)

	job := &IngestJob{}
	var status, startedAt string
	var completedAt sql.NullString
	err := r.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID,
		&job.SourcePath,
		&status,
		&job.TotalFiles,
		&job.ImportedCount,
		&job.SkippedCount,
		&job.FailedCount,
		&startedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, mnerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.Status = IngestJobStatus(status)
	job.StartedAt = parseTime(startedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		job.CompletedAt = &t
	}
	return job, nil
}

// CompleteJob stores the final counters and status of a job.
func (r *Repository) CompleteJob(ctx context.Context, jobID string, status IngestJobStatus, counts JobCounts) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not a terminal job status", mnerrors.ErrInvalidState, status)
	}

	query := r.db.Rebind(`
		UPDATE ingest_jobs
		SET status = ?, total_files = ?, imported_count = ?, skipped_count = ?, failed_count = ?,
		    completed_at = ?
		WHERE id = ?
	`)

	result, err := r.db.ExecContext(ctx, query,
		string(status), counts.Total, counts.Imported, counts.Skipped, counts.Failed,
		formatTime(r.now()), jobID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("job %s: %w", jobID, mnerrors.ErrNotFound)
	}

	r.logger.Debug("Job completed",
		logging.F("job_id", jobID),
		logging.F("status", string(status)),
		logging.F("imported", counts.Imported),
		logging.F("skipped", counts.Skipped),
		logging.F("failed", counts.Failed))

	return nil
}

// RecordError records an error that occurred while ingesting one file.
func (r *Repository) RecordError(ctx context.Context, jobID, filePath, stage string, code mnerrors.ErrorCode, message string) error {
	query := r.db.Rebind(`
		INSERT INTO ingest_errors (job_id, file_path, stage, error_code, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query, jobID, filePath, stage, string(code), message, formatTime(r.now()))
	if err != nil {
		return fmt.Errorf("failed to record error: %w", err)
	}

	return nil
}

// GetJobErrors retrieves all errors for a job in the order they were recorded.
func (r *Repository) GetJobErrors(ctx context.Context, jobID string) ([]*IngestError, error) {
	query := r.db.Rebind(`
		SELECT id, job_id, file_path, stage, error_code, error_message, created_at
		FROM ingest_errors
		WHERE job_id = ?
		ORDER BY id ASC
		LIMIT 1000
	`)

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job errors: %w", err)
	}
	defer rows.Close()

	var errs []*IngestError
	for rows.Next() {
		e := &IngestError{}
		var code, createdAt string
		if err := rows.Scan(&e.ID, &e.JobID, &e.FilePath, &e.Stage, &code, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan error: %w", err)
		}
		e.Code = mnerrors.ErrorCode(code)
		e.CreatedAt = parseTime(createdAt)
		errs = append(errs, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating errors: %w", err)
	}

	return errs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC 3339 text as written by this package. Postgres
// timestamps scanned into strings arrive in the same layout.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
