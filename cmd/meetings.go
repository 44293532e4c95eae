package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/ingest/storage"
	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
	"github.com/otherjamesbrown/minutes-cli/pkg/report"
)

// MeetingsCommandDeps holds the dependencies for the meetings commands.
type MeetingsCommandDeps struct {
	LoadConfig func() (*config.CLIConfig, error)
	OpenStore  StoreOpener
}

// DefaultMeetingsDeps returns the default dependencies for production use.
func DefaultMeetingsDeps(opts *GlobalOptions) *MeetingsCommandDeps {
	return &MeetingsCommandDeps{
		LoadConfig: opts.Loader(),
		OpenStore:  openStore,
	}
}

// listFlags are the date filter flags shared by commands that list meetings.
type listFlags struct {
	from   string
	to     string
	limit  int
	output string
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "Only meetings on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "Only meetings on or before this date (YYYY-MM-DD)")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "Maximum number of meetings (0 = all)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output format: text, json, yaml")
}

func (f *listFlags) filter() storage.ListFilter {
	return storage.ListFilter{From: f.from, To: f.to, Limit: f.limit}
}

// NewMeetingsCommand creates the meetings command with all subcommands.
func NewMeetingsCommand(deps *MeetingsCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meetings",
		Short: "Browse stored meeting records",
		Long: `Browse the meeting records stored by 'minutes ingest'.

Meetings are listed in date order, records without a date first.

Examples:
  # List meetings of 2019
  minutes meetings list --from 2019-01-01 --to 2019-12-31

  # Show one record
  minutes meetings show 0b6f0c1e-5c1f-4f0e-9a57-2a1c1b0c9d11

  # Export every stored record to a workbook
  minutes meetings export seances.xlsx

  # Who attended most often
  minutes meetings attendance`,
		Aliases: []string{"meeting"},
	}

	cmd.AddCommand(newMeetingsListCommand(deps))
	cmd.AddCommand(newMeetingsShowCommand(deps))
	cmd.AddCommand(newMeetingsExportCommand(deps))
	cmd.AddCommand(newMeetingsAttendanceCommand(deps))

	return cmd
}

func newMeetingsListCommand(deps *MeetingsCommandDeps) *cobra.Command {
	flags := &listFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored meetings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, func(ctx context.Context, cfg *config.CLIConfig, h *StoreHandle) error {
				format, err := resolveFormat(cfg, flags.output)
				if err != nil {
					return err
				}
				stored, err := h.Repo.ListMeetings(ctx, flags.filter())
				if err != nil {
					return err
				}
				return outputMeetingList(cmd.OutOrStdout(), format, stored)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newMeetingsShowCommand(deps *MeetingsCommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show <meeting-id>",
		Short: "Show one stored meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, func(ctx context.Context, cfg *config.CLIConfig, h *StoreHandle) error {
				format, err := resolveFormat(cfg, output)
				if err != nil {
					return err
				}
				sm, err := h.Repo.GetMeeting(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if format != config.OutputFormatText {
					return writeStructured(out, format, sm.Meeting)
				}
				if err := writeMeetingText(out, sm.Meeting); err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "\nSource:  %s\nJob:     %s\nStored:  %s\n",
					sm.SourcePath, valueOr(sm.JobID, "-"), sm.CreatedAt.Format("2006-01-02 15:04:05"))
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func newMeetingsExportCommand(deps *MeetingsCommandDeps) *cobra.Command {
	flags := &listFlags{}
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export stored meetings to an archive",
		Long: `Export stored meetings to a JSON, YAML or XLSX archive. The format is
taken from the file extension; "-" writes JSON to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, func(ctx context.Context, cfg *config.CLIConfig, h *StoreHandle) error {
				stored, err := h.Repo.ListMeetings(ctx, flags.filter())
				if err != nil {
					return err
				}
				if err := writeArchive(cmd.OutOrStdout(), args[0], recordsOf(stored)); err != nil {
					return err
				}
				if args[0] != "-" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d meeting(s) to %s\n", len(stored), args[0])
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newMeetingsAttendanceCommand(deps *MeetingsCommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "attendance",
		Short: "Count roster entries per attendee across stored meetings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, func(ctx context.Context, cfg *config.CLIConfig, h *StoreHandle) error {
				format, err := resolveFormat(cfg, output)
				if err != nil {
					return err
				}
				counts, err := h.Repo.Attendance(ctx)
				if err != nil {
					return err
				}
				entries := report.SortAttendance(counts)
				out := cmd.OutOrStdout()
				if format != config.OutputFormatText {
					return writeStructured(out, format, entries)
				}
				if len(entries) == 0 {
					_, err := fmt.Fprintln(out, "No attendance recorded.")
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tMEETINGS")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%d\n", e.Name, e.Meetings)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

// withStore loads the configuration, opens the repository and runs fn.
func withStore(ctx context.Context, deps *MeetingsCommandDeps, fn func(context.Context, *config.CLIConfig, *StoreHandle) error) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	ctx, cancel := commandContext(ctx, cfg)
	defer cancel()

	h, err := deps.OpenStore(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer h.Close()
	return fn(ctx, cfg, h)
}

// meetingRow is the listing shape of a stored meeting.
type meetingRow struct {
	ID         string `json:"id" yaml:"id"`
	Date       string `json:"date,omitempty" yaml:"date,omitempty"`
	Title      string `json:"title" yaml:"title"`
	Items      int    `json:"items" yaml:"items"`
	Attendees  int    `json:"attendees" yaml:"attendees"`
	SourcePath string `json:"sourcePath" yaml:"sourcePath"`
	JobID      string `json:"jobId,omitempty" yaml:"jobId,omitempty"`
}

func meetingRows(stored []*storage.StoredMeeting) []meetingRow {
	rows := make([]meetingRow, 0, len(stored))
	for _, sm := range stored {
		row := meetingRow{
			ID:         sm.Meeting.ID(),
			Title:      sm.Meeting.Title(),
			Items:      len(sm.Meeting.Items()),
			Attendees:  len(sm.Meeting.Attendees()),
			SourcePath: sm.SourcePath,
			JobID:      sm.JobID,
		}
		if d, ok := sm.Meeting.Date(); ok {
			row.Date = d.Format("2006-01-02")
		}
		rows = append(rows, row)
	}
	return rows
}

func outputMeetingList(w io.Writer, format config.OutputFormat, stored []*storage.StoredMeeting) error {
	rows := meetingRows(stored)
	if format != config.OutputFormatText {
		return writeStructured(w, format, rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No meetings found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tITEMS\tATTENDEES\tTITLE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.ID, valueOr(r.Date, "-"), r.Items, r.Attendees, truncate(r.Title, 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d meeting(s)\n", len(rows))
	return err
}

func recordsOf(stored []*storage.StoredMeeting) []*minutes.Meeting {
	out := make([]*minutes.Meeting, 0, len(stored))
	for _, sm := range stored {
		out = append(out, sm.Meeting)
	}
	return out
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
