package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"

	mnerrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/extract"
	"github.com/otherjamesbrown/minutes-cli/pkg/ingest/events"
	"github.com/otherjamesbrown/minutes-cli/pkg/ingest/storage"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
	"github.com/otherjamesbrown/minutes-cli/pkg/observability"
	"github.com/otherjamesbrown/minutes-cli/pkg/report"
)

// DefaultConcurrency is the default number of concurrent workers.
const DefaultConcurrency = 4

// TextExtractor turns a source document into transcript text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (*extract.Result, error)
}

// Store persists ingest jobs and meeting records.
type Store interface {
	CreateJob(ctx context.Context, job *storage.IngestJob) error
	CompleteJob(ctx context.Context, jobID string, status storage.IngestJobStatus, counts storage.JobCounts) error
	RecordError(ctx context.Context, jobID, filePath, stage string, code mnerrors.ErrorCode, message string) error
	ExistsByContentHash(ctx context.Context, contentHash string) (bool, string, error)
	SaveMeeting(ctx context.Context, m *minutes.Meeting, src storage.MeetingSource) error
}

// Indexer makes meeting records searchable.
type Indexer interface {
	Index(ctx context.Context, meetings ...*minutes.Meeting) error
}

// Publisher announces parsed meetings and job lifecycle events.
type Publisher interface {
	PublishMeetingParsed(ctx context.Context, params events.MeetingParsedParams) error
	PublishJobProgress(ctx context.Context, params events.JobProgressParams) error
	PublishJobCompleted(ctx context.Context, params events.JobCompletedParams) error
}

// ProcessorConfig configures the batch processor.
type ProcessorConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int

	// StrictTitles fails documents that repeat an agenda item title.
	StrictTitles bool

	// DryRun parses documents without storing, indexing or publishing.
	DryRun bool

	// OnProgress receives a copy of the progress after every update. It runs
	// on its own goroutine, so calls may arrive out of order.
	OnProgress func(*Progress)
}

// Deps are the collaborators of a Processor. Only Extractor is required;
// a nil Store, Indexer or Publisher disables that step.
type Deps struct {
	Extractor TextExtractor
	Store     Store
	Indexer   Indexer
	Publisher Publisher
	Metrics   *observability.IngestMetrics
	Tracer    *observability.Tracer
	Logger    logging.Logger
}

// ProcessResult contains the result of a batch processing operation.
type ProcessResult struct {
	JobID         string
	SourcePath    string
	TotalFiles    int
	ImportedCount int
	SkippedCount  int
	FailedCount   int
	StartedAt     time.Time
	CompletedAt   time.Time
	Success       bool
	Status        storage.IngestJobStatus

	// Meetings are the parsed records, ordered by date with undated records first.
	Meetings []*minutes.Meeting
	Errors   []FileError
	Report   report.Report
}

// FileError records an error for a specific file. Index and publish failures
// are reported here without failing the document.
type FileError struct {
	FilePath string
	Stage    string
	Code     mnerrors.ErrorCode
	Error    string
}

// Processor handles batch processing of council minutes.
type Processor struct {
	cfg     ProcessorConfig
	deps    Deps
	parser  *minutes.Parser
	metrics *observability.IngestMetrics
	tracer  *observability.Tracer
	logger  logging.Logger

	progress *Progress
	mu       sync.Mutex
}

// NewProcessor creates a new batch processor.
func NewProcessor(cfg ProcessorConfig, deps Deps) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewIngestMetrics(prometheus.NewRegistry())
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = observability.NewTracer()
	}

	var opts []minutes.Option
	if cfg.StrictTitles {
		opts = append(opts, minutes.WithStrictTitles())
	}

	return &Processor{
		cfg:     cfg,
		deps:    deps,
		parser:  minutes.NewParser(opts...),
		metrics: metrics,
		tracer:  tracer,
		logger:  logger.With(logging.F("component", "batch_processor")),
	}
}

// run holds the state of one Process call.
type run struct {
	jobID      string
	persistent bool

	mu   sync.Mutex
	seen map[string]string // content hash -> first path
}

// claim reports whether hash is new in this run, and otherwise the path
// that claimed it first.
func (r *run) claim(hash, path string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if first, ok := r.seen[hash]; ok {
		return first, false
	}
	r.seen[hash] = path
	return "", true
}

// Process ingests every supported document at path (a file or a directory).
// Per-file failures are logged, recorded and skipped; only setup failures
// and cancellation are returned as errors.
func (p *Processor) Process(ctx context.Context, path string) (*ProcessResult, error) {
	if p.deps.Extractor == nil {
		return nil, fmt.Errorf("%w: extractor is required", mnerrors.ErrValidation)
	}

	files, err := extract.Scan(path)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	r := &run{
		jobID:      uuid.New().String(),
		persistent: p.deps.Store != nil && !p.cfg.DryRun,
		seen:       make(map[string]string),
	}

	result := &ProcessResult{
		JobID:      r.jobID,
		SourcePath: path,
		TotalFiles: len(files),
		StartedAt:  time.Now().UTC(),
		Errors:     []FileError{},
	}

	ctx = context.WithValue(ctx, logging.JobIDKey, r.jobID)
	ctx, span := p.tracer.StartJobSpan(ctx, r.jobID)
	defer span.End()
	logger := p.logger.WithContext(ctx)

	if r.persistent {
		job := &storage.IngestJob{
			ID:         r.jobID,
			SourcePath: path,
			Status:     storage.IngestJobStatusInProgress,
			TotalFiles: len(files),
			StartedAt:  result.StartedAt,
		}
		if err := p.deps.Store.CreateJob(ctx, job); err != nil {
			return nil, mnerrors.ClassifyError(fmt.Errorf("failed to create job: %w", err), mnerrors.StageStore)
		}
	}

	logger.Info("Batch ingest started",
		logging.F("source_path", path),
		logging.F("files", len(files)),
		logging.F("concurrency", p.cfg.Concurrency),
		logging.F("dry_run", p.cfg.DryRun))

	progress := NewProgress(len(files))
	if p.cfg.OnProgress != nil {
		progress.SetOnUpdate(p.cfg.OnProgress)
	}
	p.mu.Lock()
	p.progress = progress
	p.mu.Unlock()
	progress.Start()

	outcomes := p.processParallel(ctx, r, files, result)

	// Bookkeeping must survive cancellation of the run.
	final := context.WithoutCancel(ctx)

	result.Meetings = orderMeetings(outcomes)
	result.CompletedAt = time.Now().UTC()
	result.Success = result.FailedCount == 0 && ctx.Err() == nil
	result.Status = finalStatus(result, ctx.Err())
	result.Report = report.Summarize(result.Meetings)

	switch result.Status {
	case storage.IngestJobStatusCancelled:
		progress.Cancel()
	default:
		progress.Complete(result.Success)
	}

	if r.persistent {
		counts := storage.JobCounts{
			Total:    result.TotalFiles,
			Imported: result.ImportedCount,
			Skipped:  result.SkippedCount,
			Failed:   result.FailedCount,
		}
		if err := p.deps.Store.CompleteJob(final, r.jobID, result.Status, counts); err != nil {
			logger.Warn("Failed to update job status", logging.Err(err))
		}
	}

	if p.deps.Publisher != nil && !p.cfg.DryRun {
		if err := p.deps.Publisher.PublishJobCompleted(final, events.JobCompletedParams{
			JobID:         r.jobID,
			SourcePath:    path,
			TotalFiles:    result.TotalFiles,
			ImportedCount: result.ImportedCount,
			SkippedCount:  result.SkippedCount,
			FailedCount:   result.FailedCount,
			StartedAt:     result.StartedAt,
			CompletedAt:   result.CompletedAt,
			Success:       result.Success,
			FinalStatus:   string(result.Status),
		}); err != nil {
			logger.Warn("Failed to publish completion event", logging.Err(err))
		}
	}

	p.metrics.MarkRunCompleted()

	logger.Info("Batch ingest finished",
		logging.F("status", string(result.Status)),
		logging.F("imported", result.ImportedCount),
		logging.F("skipped", result.SkippedCount),
		logging.F("failed", result.FailedCount),
		logging.F("duration_ms", result.CompletedAt.Sub(result.StartedAt).Milliseconds()))
	result.Report.Log(logger)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("batch ingest cancelled: %w", err)
	}
	return result, nil
}

// Progress returns the progress tracker of the current or last run.
func (p *Processor) Progress() *Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

func finalStatus(result *ProcessResult, ctxErr error) storage.IngestJobStatus {
	switch {
	case ctxErr != nil:
		return storage.IngestJobStatusCancelled
	case result.FailedCount == 0:
		return storage.IngestJobStatusCompleted
	case result.FailedCount == result.TotalFiles:
		return storage.IngestJobStatusFailed
	default:
		return storage.IngestJobStatusCompletedErrors
	}
}

// orderMeetings returns the imported records in input order, then stably
// sorted by date with undated records first.
func orderMeetings(outcomes []fileOutcome) []*minutes.Meeting {
	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })

	meetings := make([]*minutes.Meeting, 0, len(outcomes))
	for _, o := range outcomes {
		if o.status == observability.OutcomeImported && o.meeting != nil {
			meetings = append(meetings, o.meeting)
		}
	}
	SortByDate(meetings)
	return meetings
}

// SortByDate stably orders meetings by date, undated meetings first.
func SortByDate(meetings []*minutes.Meeting) {
	sort.SliceStable(meetings, func(i, j int) bool {
		di, iok := meetings[i].Date()
		dj, jok := meetings[j].Date()
		if iok != jok {
			return !iok
		}
		return di.Before(dj)
	})
}

// processParallel processes files using a worker pool and merges every
// outcome into result.
func (p *Processor) processParallel(ctx context.Context, r *run, files []string, result *ProcessResult) []fileOutcome {
	type job struct {
		index int
		file  string
	}
	filesCh := make(chan job, len(files))
	resultsCh := make(chan fileOutcome, len(files))

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range filesCh {
				if ctx.Err() != nil {
					resultsCh <- fileOutcome{index: j.index, file: j.file, status: observability.OutcomeSkipped, reason: "cancelled"}
					continue
				}
				p.Progress().SetCurrentFile(j.file)
				o := p.processFile(ctx, r, j.file)
				o.index = j.index
				resultsCh <- o
			}
		}()
	}

	for i, file := range files {
		filesCh <- job{index: i, file: file}
	}
	close(filesCh)

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	outcomes := make([]fileOutcome, 0, len(files))
	for o := range resultsCh {
		p.recordOutcome(ctx, r, o, result)
		outcomes = append(outcomes, o)
	}
	return outcomes
}

type fileOutcome struct {
	index   int
	file    string
	status  string // observability.Outcome*
	reason  string // why a file was skipped
	meeting *minutes.Meeting
	err     *mnerrors.PipelineError

	// warnings are non-fatal failures of the index and publish steps.
	warnings []*mnerrors.PipelineError
}

func failed(file string, err error, stage string) fileOutcome {
	return fileOutcome{file: file, status: observability.OutcomeFailed, err: mnerrors.ClassifyError(err, stage)}
}

// processFile runs one document through the pipeline.
func (p *Processor) processFile(ctx context.Context, r *run, filePath string) fileOutcome {
	ctx = context.WithValue(ctx, logging.FileKey, filePath)
	ctx, span := p.tracer.StartDocumentSpan(ctx, r.jobID, filePath)
	defer span.End()
	helper := observability.NewSpanHelper(span)
	logger := p.logger.WithContext(ctx)
	start := time.Now()

	o := p.runStages(ctx, r, filePath, logger)

	helper.SetDuration(time.Since(start).Milliseconds())
	switch {
	case o.err != nil:
		helper.SetError(o.err, string(o.err.Code), mnerrors.IsErrorRetryable(o.err))
	case o.meeting != nil:
		helper.SetMeeting(o.meeting.ID(), len(o.meeting.Items()), len(o.meeting.Attendees()))
		helper.SetSuccess()
	default:
		helper.AddEvent("skipped", attribute.String("reason", o.reason))
	}
	return o
}

func (p *Processor) runStages(ctx context.Context, r *run, filePath string, logger logging.Logger) fileOutcome {
	// Extract
	stageStart := time.Now()
	res, err := p.deps.Extractor.Extract(ctx, filePath)
	p.metrics.RecordStageLatency(mnerrors.StageExtract, time.Since(stageStart).Seconds())
	if err != nil {
		return failed(filePath, err, mnerrors.StageExtract)
	}

	if first, ok := r.claim(res.Hash, filePath); !ok {
		logger.Debug("Duplicate document skipped", logging.F("duplicate_of", first))
		return fileOutcome{file: filePath, status: observability.OutcomeSkipped, reason: "duplicate in run"}
	}
	if p.deps.Store != nil {
		exists, existingID, err := p.deps.Store.ExistsByContentHash(ctx, res.Hash)
		if err != nil {
			return failed(filePath, err, mnerrors.StageStore)
		}
		if exists {
			logger.Debug("Document already stored", logging.F("existing_id", existingID))
			return fileOutcome{file: filePath, status: observability.OutcomeSkipped, reason: "already stored"}
		}
	}

	if offset, ok := minutes.HeaderOffset(res.Text); ok && offset > 0 {
		p.metrics.RecordSkippedPrefix(offset)
		logger.Info("Skipped text before meeting header", logging.F("bytes", offset))
	}

	// Parse
	stageStart = time.Now()
	meeting, err := p.parser.Parse(res.Text)
	p.metrics.RecordStageLatency(mnerrors.StageParse, time.Since(stageStart).Seconds())
	if err != nil {
		return failed(filePath, err, mnerrors.StageParse)
	}

	o := fileOutcome{file: filePath, status: observability.OutcomeImported, meeting: meeting}
	if p.cfg.DryRun {
		return o
	}

	// Store
	if p.deps.Store != nil {
		stageStart = time.Now()
		err := p.deps.Store.SaveMeeting(ctx, meeting, storage.MeetingSource{
			JobID:       r.jobID,
			SourcePath:  filePath,
			ContentHash: res.Hash,
		})
		p.metrics.RecordStageLatency(mnerrors.StageStore, time.Since(stageStart).Seconds())
		if mnerrors.IsAlreadyExists(err) {
			return fileOutcome{file: filePath, status: observability.OutcomeSkipped, reason: "already stored"}
		}
		if err != nil {
			return failed(filePath, err, mnerrors.StageStore)
		}
	}

	// Index
	if p.deps.Indexer != nil {
		stageStart = time.Now()
		if err := p.deps.Indexer.Index(ctx, meeting); err != nil {
			o.warnings = append(o.warnings, mnerrors.ClassifyError(err, mnerrors.StageIndex))
		}
		p.metrics.RecordStageLatency(mnerrors.StageIndex, time.Since(stageStart).Seconds())
	}

	// Publish
	if p.deps.Publisher != nil {
		if err := p.deps.Publisher.PublishMeetingParsed(ctx, events.MeetingParsedParams{
			Meeting:     meeting,
			JobID:       r.jobID,
			SourcePath:  filePath,
			ContentHash: res.Hash,
		}); err != nil {
			o.warnings = append(o.warnings, mnerrors.New(mnerrors.ErrBackendUnavailable, mnerrors.StagePublish, err, "%v", err))
		}
	}

	return o
}

// recordOutcome merges one outcome into result. It runs on the collecting
// goroutine only.
func (p *Processor) recordOutcome(ctx context.Context, r *run, o fileOutcome, result *ProcessResult) {
	progress := p.Progress()
	logger := p.logger.WithContext(ctx).With(logging.F("file", o.file))

	switch o.status {
	case observability.OutcomeImported:
		result.ImportedCount++
		progress.RecordImported(o.file)
		for _, it := range o.meeting.Items() {
			p.metrics.RecordItem(it.Unanimity().String())
		}
		p.metrics.RecordAttendees(len(o.meeting.Attendees()))
		logger.Debug("Document imported",
			logging.F("meeting_id", o.meeting.ID()),
			logging.F("title", o.meeting.Title()),
			logging.F("items", len(o.meeting.Items())))
	case observability.OutcomeSkipped:
		result.SkippedCount++
		progress.RecordSkipped(o.file)
	default:
		result.FailedCount++
		progress.RecordFailed(o.file)
		p.recordFileError(ctx, r, logger, result, o.file, o.err)
	}
	p.metrics.RecordOutcome(o.status)

	for _, w := range o.warnings {
		p.recordFileError(ctx, r, logger, result, o.file, w)
	}

	if p.deps.Publisher != nil && !p.cfg.DryRun && ctx.Err() == nil {
		if err := p.deps.Publisher.PublishJobProgress(ctx, events.JobProgressParams{
			JobID:    r.jobID,
			Snapshot: progress.Snapshot().Event(),
		}); err != nil {
			logger.Debug("Failed to publish progress event", logging.Err(err))
		}
	}
}

func (p *Processor) recordFileError(ctx context.Context, r *run, logger logging.Logger, result *ProcessResult, file string, pe *mnerrors.PipelineError) {
	if pe == nil {
		return
	}
	msg := pe.Error()
	logger.Warn("Document failed",
		logging.F("stage", pe.Stage),
		logging.F("code", string(pe.Code)),
		logging.F("error", msg))

	result.Errors = append(result.Errors, FileError{FilePath: file, Stage: pe.Stage, Code: pe.Code, Error: msg})
	p.metrics.RecordError(pe.Stage, string(pe.Code))

	if r.persistent {
		// A cancelled run still records why each file failed.
		final := context.WithoutCancel(ctx)
		if err := p.deps.Store.RecordError(final, r.jobID, file, pe.Stage, pe.Code, msg); err != nil {
			logger.Warn("Failed to record ingest error", logging.Err(err))
		}
	}
}

// IsCancelled reports whether err came from a cancelled batch run.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
