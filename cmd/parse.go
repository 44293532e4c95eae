// Package cmd provides CLI commands for the minutes tool.
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/extract"
	"github.com/otherjamesbrown/minutes-cli/pkg/ingest/batch"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
)

// ExtractorFactory builds the text extractor for a configuration.
type ExtractorFactory func(cfg *config.CLIConfig, logger logging.Logger) batch.TextExtractor

// newExtractor builds the pdftotext-backed extractor.
func newExtractor(cfg *config.CLIConfig, logger logging.Logger) batch.TextExtractor {
	return extract.NewExtractor(extract.Config{
		Pdftotext:   cfg.PdftotextPath,
		MaxFileSize: cfg.MaxFileSize,
	}, nil, logger)
}

// ParseCommandDeps holds the dependencies for the parse command.
type ParseCommandDeps struct {
	LoadConfig   func() (*config.CLIConfig, error)
	NewExtractor ExtractorFactory
}

// DefaultParseDeps returns the default dependencies for production use.
func DefaultParseDeps(opts *GlobalOptions) *ParseCommandDeps {
	return &ParseCommandDeps{
		LoadConfig:   opts.Loader(),
		NewExtractor: newExtractor,
	}
}

type parseOptions struct {
	strict  bool
	output  string
	archive string
}

// NewParseCommand creates the parse command.
func NewParseCommand(deps *ParseCommandDeps) *cobra.Command {
	opts := &parseOptions{}

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse one set of council minutes",
		Long: `Parse a single council minutes document (PDF or plain text) and print
the meeting record: title, date, attendees and agenda items with their
decision and vote outcome.

Nothing is stored. Use 'minutes ingest' to store, index and publish records.

Text before the "CONSEIL COMMUNAL DU ..." header (cover pages, scan
noise) is skipped and reported in the log.

Examples:
  # Print a readable summary
  minutes parse pv-2019-10-28.pdf

  # Print the record as JSON
  minutes parse pv-2019-10-28.pdf --output json

  # Fail when an agenda item title appears twice
  minutes parse pv-2019-10-28.txt --strict

  # Also write the record to an XLSX workbook
  minutes parse pv-2019-10-28.pdf --archive seance.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd.Context(), deps, opts, cmd.OutOrStdout(), args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail when an agenda item title is repeated")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output format: text, json, yaml")
	cmd.Flags().StringVarP(&opts.archive, "archive", "a", "", "Also write the record to this file (.json, .yaml or .xlsx; - for stdout)")

	return cmd
}

func runParse(ctx context.Context, deps *ParseCommandDeps, opts *parseOptions, out io.Writer, path string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	format, err := resolveFormat(cfg, opts.output)
	if err != nil {
		return err
	}

	logger := newLogger(cfg).With(logging.F("file", path))
	ctx, cancel := commandContext(ctx, cfg)
	defer cancel()

	res, err := deps.NewExtractor(cfg, logger).Extract(ctx, path)
	if err != nil {
		return err
	}
	if offset, ok := minutes.HeaderOffset(res.Text); ok && offset > 0 {
		logger.Info("Skipped text before the meeting header", logging.F("bytes", offset))
	}

	var parserOpts []minutes.Option
	if opts.strict || cfg.StrictTitles {
		parserOpts = append(parserOpts, minutes.WithStrictTitles())
	}
	meeting, err := minutes.NewParser(parserOpts...).Parse(res.Text)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	logger.Debug("Meeting parsed",
		logging.F("meeting_id", meeting.ID()),
		logging.F("items", len(meeting.Items())),
		logging.F("attendees", len(meeting.Attendees())))

	if opts.archive != "" {
		if err := writeArchive(out, opts.archive, []*minutes.Meeting{meeting}); err != nil {
			return err
		}
		if opts.archive == "-" {
			return nil
		}
	}

	if format == config.OutputFormatText {
		return writeMeetingText(out, meeting)
	}
	return writeStructured(out, format, meeting)
}

// writeMeetingText prints a meeting record for terminal display.
func writeMeetingText(w io.Writer, m *minutes.Meeting) error {
	p := &linePrinter{w: w}
	p.printf("Title:   %s\n", m.Title())
	p.printf("Date:    %s\n", meetingDate(m))
	p.printf("ID:      %s\n", m.ID())

	attendees := m.Attendees()
	p.printf("\nAttendees (%d):\n", len(attendees))
	for _, a := range attendees {
		if a.Title != "" {
			p.printf("  %s (%s)\n", a.Name, a.Title)
		} else {
			p.printf("  %s\n", a.Name)
		}
	}

	items := m.Items()
	p.printf("\nAgenda items (%d):\n", len(items))
	for _, item := range items {
		p.printf("  %s\n", truncate(firstLine(strings.TrimSpace(item.Title())), 100))
		if decision, ok := item.Decision(); ok {
			p.printf("     Decision: %s\n", truncate(firstLine(decision), 100))
		}
		p.printf("     Vote:     %s\n", item.Unanimity())
	}
	return p.err
}

// linePrinter remembers the first write error.
type linePrinter struct {
	w   io.Writer
	err error
}

func (p *linePrinter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
