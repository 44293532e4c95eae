// Package main provides the minutes CLI entry point.
// minutes parses French municipal council minutes ("procès-verbaux") into
// structured meeting records and stores, indexes and reports on them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/cmd"
	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
)

// globals holds the persistent flags shared by every command.
var globals = &cmd.GlobalOptions{}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "minutes",
	Short: "Council minutes parser",
	Long: `minutes turns the minutes of a municipal council ("CONSEIL COMMUNAL DU
LUNDI 27 NOVEMBRE 2017 ...") into structured meeting records: title, date,
attendees and agenda items with their discussion, decision and vote outcome.

Records can be stored in Postgres or SQLite, indexed in Redis, exported to
JSON, YAML or XLSX archives and summarized into vote and attendance reports.

COMMON WORKFLOWS:
  Try a document:   minutes parse pv.pdf
  Ingest a folder:  minutes db login  →  minutes ingest ./pv/  →  minutes report
  Look things up:   minutes meetings list  |  minutes search attendee J.GOBERT
  Archive:          minutes meetings export seances.xlsx

Run 'minutes <command> --help' for subcommands, flags and examples.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		if c.Name() == "version" || c.Name() == "help" || c.Name() == "completion" {
			return nil
		}
		if globals.Output != "" && !config.OutputFormat(globals.Output).IsValid() {
			return fmt.Errorf("invalid --output %q (must be text, json, or yaml)", globals.Output)
		}

		// Packages that log through the global logger follow the flags too.
		cfg, err := globals.Loader()()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		lc := logging.DefaultConfig()
		if cfg.Debug {
			lc.Level = logging.LevelDebug
		}
		lc.JSONFormat = cfg.JSONLogs
		logging.SetGlobal(logging.NewLogger(lc))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&globals.Timeout, "timeout", 0, "command timeout (e.g., 30s, 10m)")
	rootCmd.PersistentFlags().StringVar(&globals.Output, "output", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&globals.Debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&globals.JSONLogs, "json-logs", false, "write logs to stderr as JSON lines")

	rootCmd.AddCommand(cmd.NewParseCommand(cmd.DefaultParseDeps(globals)))
	rootCmd.AddCommand(cmd.NewIngestCommand(cmd.DefaultIngestDeps(globals)))

	meetingsDeps := cmd.DefaultMeetingsDeps(globals)
	rootCmd.AddCommand(cmd.NewMeetingsCommand(meetingsDeps))
	rootCmd.AddCommand(cmd.NewReportCommand(meetingsDeps))
	rootCmd.AddCommand(cmd.NewJobsCommand(meetingsDeps))

	rootCmd.AddCommand(cmd.NewSearchCommand(cmd.DefaultSearchDeps(globals)))
	rootCmd.AddCommand(cmd.NewValidateCommand())
	rootCmd.AddCommand(cmd.NewDbCommand(cmd.DefaultDbDeps(globals)))
	rootCmd.AddCommand(cmd.NewConfigCommand(cmd.DefaultConfigDeps(globals)))
	rootCmd.AddCommand(cmd.NewVersionCommand())
}

func main() {
	// The first signal cancels the running command so an ingest can record
	// its state; a second one exits immediately.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		cancel()
		<-sigChan
		os.Exit(130)
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
