package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/ingest/storage"
)

// jobReport is the structured output of 'jobs show'.
type jobReport struct {
	ID          string              `json:"id" yaml:"id"`
	SourcePath  string              `json:"sourcePath" yaml:"sourcePath"`
	Status      string              `json:"status" yaml:"status"`
	TotalFiles  int                 `json:"totalFiles" yaml:"totalFiles"`
	Imported    int                 `json:"imported" yaml:"imported"`
	Skipped     int                 `json:"skipped" yaml:"skipped"`
	Failed      int                 `json:"failed" yaml:"failed"`
	StartedAt   time.Time           `json:"startedAt" yaml:"startedAt"`
	CompletedAt *time.Time          `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
	Errors      []ingestFileFail    `json:"errors" yaml:"errors"`
	Logs        []storage.LogRecord `json:"logs,omitempty" yaml:"logs,omitempty"`
}

// NewJobsCommand creates the jobs command.
func NewJobsCommand(deps *MeetingsCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect ingest jobs",
		Long: `Inspect the ingest jobs recorded by 'minutes ingest': counters, per-file
errors and the stored run log.

Examples:
  # Show a job and its errors
  minutes jobs show 6f1d0c7e-2b0a-4d8e-a4c4-0d0d5b9a3f21

  # Include the run log
  minutes jobs show 6f1d0c7e-2b0a-4d8e-a4c4-0d0d5b9a3f21 --logs`,
		Aliases: []string{"job"},
	}
	cmd.AddCommand(newJobsShowCommand(deps))
	return cmd
}

func newJobsShowCommand(deps *MeetingsCommandDeps) *cobra.Command {
	var (
		output   string
		withLogs bool
	)
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show an ingest job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, func(ctx context.Context, cfg *config.CLIConfig, h *StoreHandle) error {
				format, err := resolveFormat(cfg, output)
				if err != nil {
					return err
				}
				jr, err := loadJobReport(ctx, h.Repo, args[0], withLogs)
				if err != nil {
					return err
				}
				if format != config.OutputFormatText {
					return writeStructured(cmd.OutOrStdout(), format, jr)
				}
				return writeJobText(cmd.OutOrStdout(), jr)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	cmd.Flags().BoolVar(&withLogs, "logs", false, "Include the stored run log")
	return cmd
}

func loadJobReport(ctx context.Context, repo *storage.Repository, jobID string, withLogs bool) (*jobReport, error) {
	job, err := repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	errs, err := repo.GetJobErrors(ctx, jobID)
	if err != nil {
		return nil, err
	}

	jr := &jobReport{
		ID:          job.ID,
		SourcePath:  job.SourcePath,
		Status:      string(job.Status),
		TotalFiles:  job.TotalFiles,
		Imported:    job.ImportedCount,
		Skipped:     job.SkippedCount,
		Failed:      job.FailedCount,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Errors:      make([]ingestFileFail, 0, len(errs)),
	}
	for _, e := range errs {
		jr.Errors = append(jr.Errors, ingestFileFail{
			File:  e.FilePath,
			Stage: e.Stage,
			Code:  string(e.Code),
			Error: e.Message,
		})
	}

	if withLogs {
		if jr.Logs, err = repo.GetJobLogs(ctx, jobID); err != nil {
			return nil, err
		}
	}
	return jr, nil
}

func writeJobText(w io.Writer, jr *jobReport) error {
	p := &linePrinter{w: w}
	p.printf("Job:       %s\n", jr.ID)
	p.printf("Source:    %s\n", jr.SourcePath)
	p.printf("Status:    %s\n", jr.Status)
	p.printf("Files:     %d (imported %d, skipped %d, failed %d)\n", jr.TotalFiles, jr.Imported, jr.Skipped, jr.Failed)
	p.printf("Started:   %s\n", jr.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if jr.CompletedAt != nil {
		p.printf("Completed: %s (%s)\n", jr.CompletedAt.Local().Format("2006-01-02 15:04:05"),
			formatDurationMs(jr.CompletedAt.Sub(jr.StartedAt).Milliseconds()))
	}

	if len(jr.Errors) > 0 {
		p.printf("\nErrors (%d):\n", len(jr.Errors))
		for _, e := range jr.Errors {
			p.printf("  %s [%s/%s] %s\n", e.File, e.Stage, e.Code, e.Error)
		}
	}

	if len(jr.Logs) > 0 {
		p.printf("\nLog (%d entries):\n", len(jr.Logs))
		for _, rec := range jr.Logs {
			p.printf("  %s %-5s %s%s\n", rec.Time.Local().Format("15:04:05.000"),
				strings.ToUpper(rec.Level), rec.Message, formatLogFields(rec.Fields))
		}
	}
	return p.err
}

func formatLogFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, fields[k])
	}
	return b.String()
}
