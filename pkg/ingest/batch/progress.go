// Package batch runs the ingest pipeline over a directory of council minutes:
// extract, parse, store, index and publish, with a bounded worker pool.
package batch

import (
	"sync"
	"time"

	"github.com/otherjamesbrown/minutes-cli/pkg/ingest/events"
)

// Progress statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Progress tracks the progress of a batch ingest operation.
type Progress struct {
	mu sync.RWMutex

	// Counts
	TotalFiles     int
	ProcessedCount int
	ImportedCount  int
	SkippedCount   int
	FailedCount    int

	// Current state
	CurrentFile    string
	Status         string
	processedFiles []string

	// Timing
	StartedAt time.Time
	UpdatedAt time.Time

	onUpdate func(*Progress)
}

// NewProgress creates a new progress tracker.
func NewProgress(totalFiles int) *Progress {
	return &Progress{
		TotalFiles: totalFiles,
		Status:     StatusPending,
		StartedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// SetOnUpdate sets a callback function called on each update.
func (p *Progress) SetOnUpdate(fn func(*Progress)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = fn
}

// Start marks the progress as started.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = StatusRunning
	p.StartedAt = time.Now()
	p.UpdatedAt = time.Now()
	p.notifyUpdate()
}

// SetCurrentFile updates the file most recently picked up by a worker.
func (p *Progress) SetCurrentFile(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentFile = path
	p.UpdatedAt = time.Now()
	p.notifyUpdate()
}

// RecordImported counts path as imported.
func (p *Progress) RecordImported(path string) {
	p.record(path, &p.ImportedCount)
}

// RecordSkipped counts path as skipped.
func (p *Progress) RecordSkipped(path string) {
	p.record(path, &p.SkippedCount)
}

// RecordFailed counts path as failed.
func (p *Progress) RecordFailed(path string) {
	p.record(path, &p.FailedCount)
}

func (p *Progress) record(path string, counter *int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	*counter++
	p.ProcessedCount++
	if path != "" {
		p.processedFiles = append(p.processedFiles, path)
	}
	p.UpdatedAt = time.Now()
	p.notifyUpdate()
}

// ProcessedFiles returns the processed file paths in completion order.
func (p *Progress) ProcessedFiles() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]string, len(p.processedFiles))
	copy(result, p.processedFiles)
	return result
}

// Complete marks the progress as completed or failed.
func (p *Progress) Complete(success bool) {
	if success {
		p.finish(StatusCompleted)
	} else {
		p.finish(StatusFailed)
	}
}

// Cancel marks the progress as cancelled.
func (p *Progress) Cancel() {
	p.finish(StatusCancelled)
}

func (p *Progress) finish(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = status
	p.UpdatedAt = time.Now()
	p.notifyUpdate()
}

// Snapshot returns a read-only copy of the current progress.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	elapsed := time.Since(p.StartedAt).Seconds()
	var estimatedRemaining *float64
	if p.ProcessedCount > 0 {
		remaining := p.TotalFiles - p.ProcessedCount
		rate := elapsed / float64(p.ProcessedCount)
		est := rate * float64(remaining)
		estimatedRemaining = &est
	}

	return ProgressSnapshot{
		TotalFiles:                p.TotalFiles,
		ProcessedCount:            p.ProcessedCount,
		ImportedCount:             p.ImportedCount,
		SkippedCount:              p.SkippedCount,
		FailedCount:               p.FailedCount,
		CurrentFile:               p.CurrentFile,
		Status:                    p.Status,
		StartedAt:                 p.StartedAt,
		ElapsedSeconds:            elapsed,
		EstimatedRemainingSeconds: estimatedRemaining,
	}
}

// notifyUpdate calls the update callback if set.
// Must be called with lock held.
func (p *Progress) notifyUpdate() {
	if p.onUpdate != nil {
		// Copy so the callback never holds the lock.
		snapshot := &Progress{
			TotalFiles:     p.TotalFiles,
			ProcessedCount: p.ProcessedCount,
			ImportedCount:  p.ImportedCount,
			SkippedCount:   p.SkippedCount,
			FailedCount:    p.FailedCount,
			CurrentFile:    p.CurrentFile,
			Status:         p.Status,
			StartedAt:      p.StartedAt,
			UpdatedAt:      p.UpdatedAt,
		}
		go p.onUpdate(snapshot)
	}
}

// ProgressSnapshot is an immutable snapshot of progress state.
type ProgressSnapshot struct {
	TotalFiles                int
	ProcessedCount            int
	ImportedCount             int
	SkippedCount              int
	FailedCount               int
	CurrentFile               string
	Status                    string
	StartedAt                 time.Time
	ElapsedSeconds            float64
	EstimatedRemainingSeconds *float64
}

// PercentComplete returns the percentage of files processed.
func (s ProgressSnapshot) PercentComplete() float64 {
	if s.TotalFiles == 0 {
		return 0
	}
	return float64(s.ProcessedCount) / float64(s.TotalFiles) * 100
}

// IsComplete returns true if all files have been processed.
func (s ProgressSnapshot) IsComplete() bool {
	return s.ProcessedCount >= s.TotalFiles
}

// IsSuccess returns true if the job completed successfully (no failures).
func (s ProgressSnapshot) IsSuccess() bool {
	return s.Status == StatusCompleted && s.FailedCount == 0
}

// Event converts the snapshot into the payload of a progress event.
func (s ProgressSnapshot) Event() events.ProgressSnapshot {
	return events.ProgressSnapshot{
		TotalFiles:                s.TotalFiles,
		ProcessedCount:            s.ProcessedCount,
		ImportedCount:             s.ImportedCount,
		SkippedCount:              s.SkippedCount,
		FailedCount:               s.FailedCount,
		CurrentFile:               s.CurrentFile,
		ElapsedSeconds:            s.ElapsedSeconds,
		EstimatedRemainingSeconds: s.EstimatedRemainingSeconds,
		Status:                    s.Status,
	}
}
