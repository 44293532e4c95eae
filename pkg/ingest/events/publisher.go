// Package events publishes ingest events to Redis channels so other tools can
// follow a batch run.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
)

// Redis channels for ingest events
const (
	ChannelMeetingParsed      = "events.meeting.parsed"
	ChannelIngestJobProgress  = "events.ingest_job.progress"
	ChannelIngestJobCompleted = "events.ingest_job.completed"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Source        string    `json:"source"`
	Version       string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent with sensible defaults.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    "minutes",
		Version:   "1.0",
	}
}

// MeetingParsedEvent is published when a transcript was parsed into a record.
type MeetingParsedEvent struct {
	BaseEvent

	MeetingID   string  `json:"meeting_id"`
	JobID       string  `json:"job_id"`
	Title       string  `json:"title"`
	MeetingDate *string `json:"meeting_date,omitempty"`

	ItemCount        int `json:"item_count"`
	AttendeeCount    int `json:"attendee_count"`
	ContentiousCount int `json:"contentious_count"`

	SourcePath  string `json:"source_path"`
	ContentHash string `json:"content_hash"`
}

// IngestJobProgressEvent is published periodically during batch processing.
type IngestJobProgressEvent struct {
	BaseEvent

	JobID string `json:"job_id"`

	TotalFiles     int `json:"total_files"`
	ProcessedCount int `json:"processed_count"`
	ImportedCount  int `json:"imported_count"`
	SkippedCount   int `json:"skipped_count"`
	FailedCount    int `json:"failed_count"`

	CurrentFile               *string  `json:"current_file,omitempty"`
	ElapsedSeconds            float64  `json:"elapsed_seconds"`
	EstimatedRemainingSeconds *float64 `json:"estimated_remaining_seconds,omitempty"`
	Status                    string   `json:"status"`
}

// IngestJobCompletedEvent is published when a batch ingest job finishes.
type IngestJobCompletedEvent struct {
	BaseEvent

	JobID      string `json:"job_id"`
	SourcePath string `json:"source_path"`

	TotalFiles    int `json:"total_files"`
	ImportedCount int `json:"imported_count"`
	SkippedCount  int `json:"skipped_count"`
	FailedCount   int `json:"failed_count"`

	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`

	Success     bool   `json:"success"`
	FinalStatus string `json:"final_status"`
}

// Publisher publishes ingest events to Redis.
type Publisher struct {
	client *redis.Client
	logger logging.Logger
}

// NewPublisher creates a new event publisher.
func NewPublisher(client *redis.Client, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{
		client: client,
		logger: logger.With(logging.F("component", "event_publisher")),
	}
}

// MeetingParsedParams contains parameters for publishing a parsed meeting.
type MeetingParsedParams struct {
	Meeting     *minutes.Meeting
	JobID       string
	SourcePath  string
	ContentHash string
}

// PublishMeetingParsed publishes an event for a successfully parsed meeting.
func (p *Publisher) PublishMeetingParsed(ctx context.Context, params MeetingParsedParams) error {
	m := params.Meeting
	if m == nil {
		return fmt.Errorf("meeting is required")
	}

	items := m.Items()
	event := MeetingParsedEvent{
		BaseEvent:     NewBaseEvent("meeting.parsed"),
		MeetingID:     m.ID(),
		JobID:         params.JobID,
		Title:         m.Title(),
		ItemCount:     len(items),
		AttendeeCount: len(m.Attendees()),
		SourcePath:    params.SourcePath,
		ContentHash:   params.ContentHash,
	}
	if d, ok := m.Date(); ok {
		s := d.Format("2006-01-02")
		event.MeetingDate = &s
	}
	for _, it := range items {
		if it.Unanimity() == minutes.NotUnanimous {
			event.ContentiousCount++
		}
	}
	if params.JobID != "" {
		event.CorrelationID = &params.JobID
	}

	return p.publish(ctx, ChannelMeetingParsed, event)
}

// JobProgressParams contains parameters for publishing job progress.
type JobProgressParams struct {
	JobID    string
	Snapshot ProgressSnapshot
}

// ProgressSnapshot is the subset of batch progress carried by progress events.
type ProgressSnapshot struct {
	TotalFiles                int
	ProcessedCount            int
	ImportedCount             int
	SkippedCount              int
	FailedCount               int
	CurrentFile               string
	ElapsedSeconds            float64
	EstimatedRemainingSeconds *float64
	Status                    string
}

// PublishJobProgress publishes a progress update for a batch ingest job.
func (p *Publisher) PublishJobProgress(ctx context.Context, params JobProgressParams) error {
	s := params.Snapshot
	event := IngestJobProgressEvent{
		BaseEvent:                 NewBaseEvent("ingest_job.progress"),
		JobID:                     params.JobID,
		TotalFiles:                s.TotalFiles,
		ProcessedCount:            s.ProcessedCount,
		ImportedCount:             s.ImportedCount,
		SkippedCount:              s.SkippedCount,
		FailedCount:               s.FailedCount,
		ElapsedSeconds:            s.ElapsedSeconds,
		EstimatedRemainingSeconds: s.EstimatedRemainingSeconds,
		Status:                    s.Status,
	}
	if s.CurrentFile != "" {
		event.CurrentFile = &s.CurrentFile
	}

	return p.publish(ctx, ChannelIngestJobProgress, event)
}

// JobCompletedParams contains parameters for publishing job completion.
type JobCompletedParams struct {
	JobID         string
	SourcePath    string
	TotalFiles    int
	ImportedCount int
	SkippedCount  int
	FailedCount   int
	StartedAt     time.Time
	CompletedAt   time.Time
	Success       bool
	FinalStatus   string
}

// PublishJobCompleted publishes a completion event for a batch ingest job.
func (p *Publisher) PublishJobCompleted(ctx context.Context, params JobCompletedParams) error {
	event := IngestJobCompletedEvent{
		BaseEvent:       NewBaseEvent("ingest_job.completed"),
		JobID:           params.JobID,
		SourcePath:      params.SourcePath,
		TotalFiles:      params.TotalFiles,
		ImportedCount:   params.ImportedCount,
		SkippedCount:    params.SkippedCount,
		FailedCount:     params.FailedCount,
		StartedAt:       params.StartedAt,
		CompletedAt:     params.CompletedAt,
		DurationSeconds: params.CompletedAt.Sub(params.StartedAt).Seconds(),
		Success:         params.Success,
		FinalStatus:     params.FinalStatus,
	}

	return p.publish(ctx, ChannelIngestJobCompleted, event)
}

// publish serializes and publishes an event to Redis.
func (p *Publisher) publish(ctx context.Context, channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.logger.Error("Failed to publish event",
			logging.Err(err),
			logging.F("channel", channel))
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.Debug("Event published",
		logging.F("channel", channel),
		logging.F("payload_size", len(data)))

	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
