package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/export"
	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
	"github.com/otherjamesbrown/minutes-cli/pkg/report"
)

// NewReportCommand creates the report command.
func NewReportCommand(deps *MeetingsCommandDeps) *cobra.Command {
	flags := &listFlags{}
	var archive string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Vote and attendance statistics",
		Long: `Print statistics over meeting records: agenda items, unanimous votes,
contentious items (decisions not taken unanimously) and attendance.

Items whose decision does not record the vote count as unanimous.

Records come from the database, or from a JSON archive with --archive.

Examples:
  # Statistics over every stored meeting
  minutes report

  # Statistics over 2019
  minutes report --from 2019-01-01 --to 2019-12-31

  # Statistics over an archive written by 'minutes ingest --archive'
  minutes report --archive seances.json --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if archive != "" {
				cfg, err := deps.LoadConfig()
				if err != nil {
					return fmt.Errorf("loading configuration: %w", err)
				}
				meetings, err := readArchive(archive)
				if err != nil {
					return err
				}
				return outputReport(cmd, cfg, flags.output, meetings)
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, cfg *config.CLIConfig, h *StoreHandle) error {
				stored, err := h.Repo.ListMeetings(ctx, flags.filter())
				if err != nil {
					return err
				}
				return outputReport(cmd, cfg, flags.output, recordsOf(stored))
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&archive, "archive", "", "Read records from this JSON archive instead of the database")

	return cmd
}

func outputReport(cmd *cobra.Command, cfg *config.CLIConfig, output string, meetings []*minutes.Meeting) error {
	format, err := resolveFormat(cfg, output)
	if err != nil {
		return err
	}
	r := report.Summarize(meetings)
	if format == config.OutputFormatText {
		return r.WriteText(cmd.OutOrStdout())
	}
	return writeStructured(cmd.OutOrStdout(), format, r)
}

// readArchive validates and decodes a JSON archive.
func readArchive(path string) ([]*minutes.Meeting, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	defer f.Close()
	meetings, err := export.ReadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return meetings, nil
}
