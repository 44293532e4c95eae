package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mnerrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
)

// MeetingSource describes where a meeting record came from.
type MeetingSource struct {
	JobID       string // optional
	SourcePath  string
	ContentHash string
}

// StoredMeeting is a meeting record together with its provenance.
type StoredMeeting struct {
	Meeting     *minutes.Meeting
	JobID       string
	SourcePath  string
	ContentHash string
	CreatedAt   time.Time
}

// ListFilter narrows ListMeetings. Dates are inclusive YYYY-MM-DD bounds;
// records without a date only match when no bound is set.
type ListFilter struct {
	From  string
	To    string
	Limit int
}

const dateLayout = "2006-01-02"

// SaveMeeting stores a meeting with its items and attendees in one transaction.
// A record whose content hash is already stored is rejected with ErrAlreadyExists.
func (r *Repository) SaveMeeting(ctx context.Context, m *minutes.Meeting, src MeetingSource) error {
	if m == nil {
		return fmt.Errorf("%w: meeting is nil", mnerrors.ErrValidation)
	}
	if src.ContentHash == "" {
		return fmt.Errorf("%w: content hash is required", mnerrors.ErrValidation)
	}

	record, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal meeting: %w", err)
	}

	var meetingDate any
	if d, ok := m.Date(); ok {
		meetingDate = d.Format(dateLayout)
	}
	var jobID any
	if src.JobID != "" {
		jobID = src.JobID
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint: errcheck

	items := m.Items()
	attendees := m.Attendees()

	res, err := tx.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO meetings (
			id, job_id, source_path, content_hash, title, meeting_date,
			item_count, attendee_count, record, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (content_hash) DO NOTHING
	`),
		m.ID(), jobID, src.SourcePath, src.ContentHash, m.Title(), meetingDate,
		len(items), len(attendees), string(record), formatTime(r.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert meeting: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("meeting with content hash %s: %w", shortHash(src.ContentHash), mnerrors.ErrAlreadyExists)
	}

	itemStmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO meeting_items (meeting_id, position, title, discussion, decision, unanimous)
		VALUES (?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer itemStmt.Close()

	for i, it := range items {
		if _, err := itemStmt.ExecContext(ctx, m.ID(), i, it.Title(),
			optional(it.Discussion()), optional(it.Decision()), unanimousValue(it.Unanimity())); err != nil {
			return fmt.Errorf("failed to insert item %d: %w", i, err)
		}
	}

	attendeeStmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO meeting_attendees (meeting_id, position, name, title)
		VALUES (?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare attendee insert: %w", err)
	}
	defer attendeeStmt.Close()

	for i, p := range attendees {
		if _, err := attendeeStmt.ExecContext(ctx, m.ID(), i, p.Name, p.Title); err != nil {
			return fmt.Errorf("failed to insert attendee %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit meeting: %w", err)
	}

	r.logger.Debug("Meeting saved",
		logging.F("meeting_id", m.ID()),
		logging.F("title", m.Title()),
		logging.F("items", len(items)),
		logging.F("attendees", len(attendees)))

	return nil
}

// ExistsByContentHash checks if a meeting with the given content hash exists
// and returns its ID.
func (r *Repository) ExistsByContentHash(ctx context.Context, contentHash string) (bool, string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT id FROM meetings WHERE content_hash = ? LIMIT 1`), contentHash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to check existence by content_hash: %w", err)
	}
	return true, id, nil
}

// GetMeeting retrieves a stored meeting by ID.
func (r *Repository) GetMeeting(ctx context.Context, id string) (*StoredMeeting, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT job_id, source_path, content_hash, record, created_at
		FROM meetings
		WHERE id = ?
	`), id)

	sm, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("meeting %s: %w", id, mnerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	return sm, nil
}

// ListMeetings returns stored meetings ordered by date, undated records first.
func (r *Repository) ListMeetings(ctx context.Context, filter ListFilter) ([]*StoredMeeting, error) {
	var (
		where []string
		args  []any
	)
	if filter.From != "" {
		where = append(where, "meeting_date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		where = append(where, "meeting_date <= ?")
		args = append(args, filter.To)
	}

	var b strings.Builder
	b.WriteString("SELECT job_id, source_path, content_hash, record, created_at FROM meetings")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	// Portable NULLS FIRST: false sorts before true in both backends.
	b.WriteString(" ORDER BY meeting_date IS NOT NULL, meeting_date, created_at, id")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()

	var out []*StoredMeeting
	for rows.Next() {
		sm, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meetings: %w", err)
	}
	return out, nil
}

// Attendance counts roster entries per attendee name across stored meetings.
// A name listed twice in one roster counts twice.
func (r *Repository) Attendance(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, COUNT(*)
		FROM meeting_attendees
		GROUP BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count attendance: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(s scanner) (*StoredMeeting, error) {
	var (
		jobID     sql.NullString
		record    []byte
		createdAt string
		sm        StoredMeeting
	)
	if err := s.Scan(&jobID, &sm.SourcePath, &sm.ContentHash, &record, &createdAt); err != nil {
		return nil, err
	}

	var m minutes.Meeting
	if err := json.Unmarshal(record, &m); err != nil {
		return nil, fmt.Errorf("decoding stored record: %w", err)
	}
	sm.Meeting = &m
	sm.JobID = jobID.String
	sm.CreatedAt = parseTime(createdAt)
	return &sm, nil
}

func optional(s string, ok bool) any {
	if !ok {
		return nil
	}
	return s
}

func unanimousValue(u minutes.Unanimity) any {
	v, known := u.Bool()
	if !known {
		return nil
	}
	return v
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
