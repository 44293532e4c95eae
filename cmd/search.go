package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/ingest/storage"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
	"github.com/otherjamesbrown/minutes-cli/pkg/search"
)

// SearchCommandDeps holds the dependencies for the search commands.
type SearchCommandDeps struct {
	LoadConfig   func() (*config.CLIConfig, error)
	ConnectRedis RedisConnector
	OpenStore    StoreOpener
}

// DefaultSearchDeps returns the default dependencies for production use.
func DefaultSearchDeps(opts *GlobalOptions) *SearchCommandDeps {
	return &SearchCommandDeps{
		LoadConfig:   opts.Loader(),
		ConnectRedis: connectToRedis,
		OpenStore:    openStore,
	}
}

// NewSearchCommand creates the search command with all subcommands.
func NewSearchCommand(deps *SearchCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Query the meeting index",
		Long: `Query the Redis index of meeting records (redis.addr, index redis.index).

Records are indexed by 'minutes ingest'. 'minutes search reindex' rebuilds the
index from the database.

Examples:
  # Meetings attended by a council member
  minutes search attendee J.GOBERT

  # Meetings with at least one decision not taken unanimously
  minutes search contentious

  # Rebuild the index from the database
  minutes search reindex`,
	}

	cmd.AddCommand(newSearchListCommand(deps))
	cmd.AddCommand(newSearchShowCommand(deps))
	cmd.AddCommand(newSearchAttendeeCommand(deps))
	cmd.AddCommand(newSearchContentiousCommand(deps))
	cmd.AddCommand(newSearchReindexCommand(deps))

	return cmd
}

func newSearchListCommand(deps *SearchCommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed meetings in date order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndex(cmd.Context(), deps, func(ctx context.Context, cfg *config.CLIConfig, idx *search.Indexer) error {
				ids, err := idx.IDs(ctx)
				if err != nil {
					return err
				}
				return outputIndexedMeetings(ctx, cmd.OutOrStdout(), cfg, output, idx, ids)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func newSearchShowCommand(deps *SearchCommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show <meeting-id>",
		Short: "Show an indexed meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndex(cmd.Context(), deps, func(ctx context.Context, cfg *config.CLIConfig, idx *search.Indexer) error {
				format, err := resolveFormat(cfg, output)
				if err != nil {
					return err
				}
				m, err := idx.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if format == config.OutputFormatText {
					return writeMeetingText(cmd.OutOrStdout(), m)
				}
				return writeStructured(cmd.OutOrStdout(), format, m)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func newSearchAttendeeCommand(deps *SearchCommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "attendee <name>",
		Short: "Meetings an attendee is listed in",
		Long: `List the indexed meetings whose roster lists name. Names are matched
exactly as they appear in the roster, e.g. J.GOBERT.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndex(cmd.Context(), deps, func(ctx context.Context, cfg *config.CLIConfig, idx *search.Indexer) error {
				ids, err := idx.ByAttendee(ctx, args[0])
				if err != nil {
					return err
				}
				return outputIndexedMeetings(ctx, cmd.OutOrStdout(), cfg, output, idx, ids)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func newSearchContentiousCommand(deps *SearchCommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "contentious",
		Short: "Meetings with a decision not taken unanimously",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndex(cmd.Context(), deps, func(ctx context.Context, cfg *config.CLIConfig, idx *search.Indexer) error {
				ids, err := idx.Contentious(ctx)
				if err != nil {
					return err
				}
				return outputIndexedMeetings(ctx, cmd.OutOrStdout(), cfg, output, idx, ids)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func newSearchReindexCommand(deps *SearchCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the index from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndex(cmd.Context(), deps, func(ctx context.Context, cfg *config.CLIConfig, idx *search.Indexer) error {
				h, err := deps.OpenStore(ctx, cfg, newLogger(cfg))
				if err != nil {
					return err
				}
				defer h.Close()

				stored, err := h.Repo.ListMeetings(ctx, storage.ListFilter{})
				if err != nil {
					return err
				}
				if err := idx.Index(ctx, recordsOf(stored)...); err != nil {
					return err
				}
				n, err := idx.Count(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d meeting(s); index %q holds %d.\n", len(stored), cfg.Redis.Index, n)
				return err
			})
		},
	}
	return cmd
}

// withIndex loads the configuration, connects to Redis and runs fn.
func withIndex(ctx context.Context, deps *SearchCommandDeps, fn func(context.Context, *config.CLIConfig, *search.Indexer) error) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	ctx, cancel := commandContext(ctx, cfg)
	defer cancel()

	client, err := deps.ConnectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	logger := newLogger(cfg)
	logger.Debug("Redis connected", logging.F("addr", cfg.Redis.Addr), logging.F("index", cfg.Redis.Index))
	return fn(ctx, cfg, search.NewIndexer(client, cfg.Redis.Index, logger))
}

func outputIndexedMeetings(ctx context.Context, w io.Writer, cfg *config.CLIConfig, output string, idx *search.Indexer, ids []string) error {
	format, err := resolveFormat(cfg, output)
	if err != nil {
		return err
	}

	meetings := make([]*minutes.Meeting, 0, len(ids))
	for _, id := range ids {
		m, err := idx.Get(ctx, id)
		if err != nil {
			return err
		}
		meetings = append(meetings, m)
	}

	if format != config.OutputFormatText {
		return writeStructured(w, format, meetings)
	}
	if len(meetings) == 0 {
		_, err := fmt.Fprintln(w, "No meetings found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCONTESTED\tTITLE")
	for _, m := range meetings {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.ID(), meetingDate(m), contestedItems(m), truncate(m.Title(), 60))
	}
	return tw.Flush()
}

func contestedItems(m *minutes.Meeting) int {
	n := 0
	for _, item := range m.Items() {
		if item.Unanimity() == minutes.NotUnanimous {
			n++
		}
	}
	return n
}
