package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/db"
	"github.com/otherjamesbrown/minutes-cli/pkg/ingest/batch"
	"github.com/otherjamesbrown/minutes-cli/pkg/ingest/events"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/observability"
	"github.com/otherjamesbrown/minutes-cli/pkg/report"
	"github.com/otherjamesbrown/minutes-cli/pkg/search"
)

// IngestCommandDeps holds the dependencies for the ingest command.
type IngestCommandDeps struct {
	LoadConfig   func() (*config.CLIConfig, error)
	OpenStore    StoreOpener
	ConnectRedis RedisConnector
	NewExtractor ExtractorFactory
	// IsTerminal reports whether progress lines can be drawn on w.
	IsTerminal func(w io.Writer) bool
}

// DefaultIngestDeps returns the default dependencies for production use.
func DefaultIngestDeps(opts *GlobalOptions) *IngestCommandDeps {
	return &IngestCommandDeps{
		LoadConfig:   opts.Loader(),
		OpenStore:    openStore,
		ConnectRedis: connectToRedis,
		NewExtractor: newExtractor,
		IsTerminal:   isTerminal,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type ingestOptions struct {
	concurrency int
	strict      bool
	dryRun      bool
	noStore     bool
	noIndex     bool
	quiet       bool
	output      string
	archive     string
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(deps *IngestCommandDeps) *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest <file|directory>",
		Short: "Parse, store and index council minutes",
		Long: `Ingest council minutes from a file or a directory of PDF and text files.

Each document is extracted, parsed and then:
  - stored in the database (with the ingest job, its errors and its log)
  - indexed in Redis under the configured index (default: citycouncil)
  - announced on the Redis event channels

Documents that fail to extract or parse are logged, recorded and skipped; the
rest of the batch carries on. Documents whose content is already stored are
skipped. Records are reported in date order, undated records first.

Without a database DSN (config, MINUTES_DATABASE_DSN or 'minutes db login')
records are parsed and reported but not stored. Without redis.addr nothing is
indexed or published.

Examples:
  # Ingest a directory of minutes
  minutes ingest ./pv/

  # Parse only: no database, index or events
  minutes ingest ./pv/ --dry-run

  # Write every parsed record to a JSON archive
  minutes ingest ./pv/ --archive seances.json

  # Machine-readable run summary
  minutes ingest ./pv/ --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), deps, opts, cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0])
		},
	}

	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 0, "Documents processed in parallel (default from config)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail documents that repeat an agenda item title")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Parse only; do not store, index or publish")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "Do not store records in the database")
	cmd.Flags().BoolVar(&opts.noIndex, "no-index", false, "Do not index or publish to Redis")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not draw progress")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output format: text, json, yaml")
	cmd.Flags().StringVarP(&opts.archive, "archive", "a", "", "Write parsed records to this file (.json, .yaml or .xlsx; - for stdout)")

	return cmd
}

// ingestSummary is the structured output of an ingest run.
type ingestSummary struct {
	JobID      string           `json:"jobId" yaml:"jobId"`
	SourcePath string           `json:"sourcePath" yaml:"sourcePath"`
	Status     string           `json:"status" yaml:"status"`
	TotalFiles int              `json:"totalFiles" yaml:"totalFiles"`
	Imported   int              `json:"imported" yaml:"imported"`
	Skipped    int              `json:"skipped" yaml:"skipped"`
	Failed     int              `json:"failed" yaml:"failed"`
	DurationMs int64            `json:"durationMs" yaml:"durationMs"`
	Stored     bool             `json:"stored" yaml:"stored"`
	Indexed    bool             `json:"indexed" yaml:"indexed"`
	Errors     []ingestFileFail `json:"errors" yaml:"errors"`
	Report     report.Report    `json:"report" yaml:"report"`
}

type ingestFileFail struct {
	File  string `json:"file" yaml:"file"`
	Stage string `json:"stage" yaml:"stage"`
	Code  string `json:"code" yaml:"code"`
	Error string `json:"error" yaml:"error"`
}

func runIngest(ctx context.Context, deps *IngestCommandDeps, opts *ingestOptions, out, errOut io.Writer, path string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	format, err := resolveFormat(cfg, opts.output)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(ctx, cfg)
	defer cancel()

	logger := newLogger(cfg)
	setupLogger := logger
	reg := prometheus.NewRegistry()
	metrics := observability.NewIngestMetrics(reg)

	var procDeps batch.Deps

	if !opts.dryRun && !opts.noStore {
		h, err := deps.OpenStore(ctx, cfg, logger)
		switch {
		case errors.Is(err, errNoDatabase):
			logger.Warn("Records will not be stored", logging.Err(err))
		case err != nil:
			return err
		default:
			defer h.Close()
			procDeps.Store = h.Repo
			if _, err := db.RegisterStatsCollector(h.DB, observability.Namespace, reg); err != nil {
				logger.Warn("Database pool metrics unavailable", logging.Err(err))
			}

			// The run's log is kept next to the job it belongs to.
			sink := logging.NewDBSink(logging.DBSinkConfig{Writer: h.Repo})
			defer func() {
				flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer flushCancel()
				if err := sink.Flush(flushCtx); err != nil {
					setupLogger.Warn("Failed to store run log", logging.Err(err))
				}
				sink.Close()
			}()
			logger = newLogger(cfg, sink)
		}
	}

	if !opts.dryRun && !opts.noIndex && cfg.Redis.Enabled() {
		client, err := deps.ConnectRedis(ctx, cfg)
		if err != nil {
			logger.Warn("Records will not be indexed", logging.Err(err))
		} else {
			publisher := events.NewPublisher(client, logger)
			defer publisher.Close()
			procDeps.Indexer = search.NewIndexer(client, cfg.Redis.Index, logger)
			procDeps.Publisher = publisher
		}
	}

	procDeps.Extractor = deps.NewExtractor(cfg, logger)
	procDeps.Metrics = metrics
	procDeps.Tracer = observability.NewTracer()
	procDeps.Logger = logger

	procCfg := batch.ProcessorConfig{
		Concurrency:  cfg.Concurrency,
		StrictTitles: opts.strict || cfg.StrictTitles,
		DryRun:       opts.dryRun,
	}
	if opts.concurrency > 0 {
		procCfg.Concurrency = opts.concurrency
	}
	var bar *progressLine
	if !opts.quiet && deps.IsTerminal != nil && deps.IsTerminal(errOut) {
		bar = &progressLine{w: errOut}
		procCfg.OnProgress = bar.update
	}

	result, runErr := batch.NewProcessor(procCfg, procDeps).Process(ctx, path)
	bar.finish()
	if result == nil {
		return runErr
	}

	if metricsPath, err := cfg.GetMetricsFile(); err != nil {
		logger.Warn("Invalid metrics file path", logging.Err(err))
	} else if err := observability.WriteTextfile(metricsPath, reg); err != nil {
		logger.Warn("Failed to write metrics", logging.Err(err))
	}

	if opts.archive != "" {
		if err := writeArchive(out, opts.archive, result.Meetings); err != nil {
			return err
		}
	}

	if opts.archive != "-" {
		summary := summarizeIngest(result, procDeps.Store != nil, procDeps.Indexer != nil)
		if format == config.OutputFormatText {
			err = writeIngestText(out, summary)
		} else {
			err = writeStructured(out, format, summary)
		}
		if err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}
	if result.TotalFiles > 0 && result.FailedCount == result.TotalFiles {
		return fmt.Errorf("all %d documents failed", result.TotalFiles)
	}
	return nil
}

func summarizeIngest(r *batch.ProcessResult, stored, indexed bool) ingestSummary {
	s := ingestSummary{
		JobID:      r.JobID,
		SourcePath: r.SourcePath,
		Status:     string(r.Status),
		TotalFiles: r.TotalFiles,
		Imported:   r.ImportedCount,
		Skipped:    r.SkippedCount,
		Failed:     r.FailedCount,
		DurationMs: r.CompletedAt.Sub(r.StartedAt).Milliseconds(),
		Stored:     stored,
		Indexed:    indexed,
		Errors:     make([]ingestFileFail, 0, len(r.Errors)),
		Report:     r.Report,
	}
	for _, e := range r.Errors {
		s.Errors = append(s.Errors, ingestFileFail{
			File:  e.FilePath,
			Stage: e.Stage,
			Code:  string(e.Code),
			Error: e.Error,
		})
	}
	return s
}

func writeIngestText(w io.Writer, s ingestSummary) error {
	p := &linePrinter{w: w}
	p.printf("Job:      %s\n", s.JobID)
	p.printf("Source:   %s\n", s.SourcePath)
	p.printf("Status:   %s\n", s.Status)
	p.printf("Files:    %d (imported %d, skipped %d, failed %d)\n", s.TotalFiles, s.Imported, s.Skipped, s.Failed)
	p.printf("Duration: %s\n", formatDurationMs(s.DurationMs))
	if !s.Stored {
		p.printf("Storage:  not stored\n")
	}
	if !s.Indexed {
		p.printf("Index:    not indexed\n")
	}

	if len(s.Errors) > 0 {
		p.printf("\nErrors (%d):\n", len(s.Errors))
		for _, e := range s.Errors {
			p.printf("  %s [%s/%s] %s\n", e.File, e.Stage, e.Code, truncate(e.Error, 120))
		}
	}
	if p.err != nil {
		return p.err
	}

	fmt.Fprintln(w)
	return s.Report.WriteText(w)
}

// progressLine redraws a single status line on a terminal. Updates arrive on
// their own goroutines; stale ones are dropped.
type progressLine struct {
	w     io.Writer
	mu    sync.Mutex
	seen  int
	drawn bool
	done  bool
}

func (l *progressLine) update(p *batch.Progress) {
	s := p.Snapshot()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done || s.ProcessedCount < l.seen {
		return
	}
	l.seen = s.ProcessedCount
	l.drawn = true
	fmt.Fprintf(l.w, "\r\033[K[%3.0f%%] %d/%d  imported %d  skipped %d  failed %d  %s",
		s.PercentComplete(), s.ProcessedCount, s.TotalFiles,
		s.ImportedCount, s.SkippedCount, s.FailedCount, truncate(s.CurrentFile, 40))
}

func (l *progressLine) finish() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done && l.drawn {
		fmt.Fprintln(l.w)
	}
	l.done = true
}
