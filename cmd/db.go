package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/credentials"
	"github.com/otherjamesbrown/minutes-cli/pkg/db"
)

// DbCommandDeps holds the dependencies for database commands.
type DbCommandDeps struct {
	LoadConfig  func() (*config.CLIConfig, error)
	ResolveDSN  func(configured string) (dsn, source string, err error)
	ConnectToDB func(ctx context.Context, dsn string) (*db.DB, error)
	Credentials func() *credentials.Store
}

// DefaultDbDeps returns the default dependencies for production use.
func DefaultDbDeps(opts *GlobalOptions) *DbCommandDeps {
	return &DbCommandDeps{
		LoadConfig:  opts.Loader(),
		ResolveDSN:  resolveDSN,
		ConnectToDB: openDatabase,
		Credentials: credentials.NewStore,
	}
}

// NewDbCommand creates the root db command with all subcommands.
func NewDbCommand(deps *DbCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the minutes store.

The database is Postgres (postgres:// or postgresql:// DSN) or SQLite (a file
path, optionally prefixed with sqlite://). The DSN comes from database.dsn in
the config file or MINUTES_DATABASE_DSN; otherwise from the system keyring,
where 'minutes db login' stores it.

The schema is versioned with embedded migrations, tracked in the
schema_migrations table. Commands that use the store apply pending
migrations automatically; 'db migrate' applies them explicitly.

Examples:
  # Store the DSN in the keyring
  minutes db login

  # Show migration status
  minutes db status

  # Apply pending migrations
  minutes db migrate

  # Check connectivity
  minutes db health`,
		Aliases: []string{"database"},
	}

	cmd.AddCommand(newDbMigrateCommand(deps))
	cmd.AddCommand(newDbStatusCommand(deps))
	cmd.AddCommand(newDbHealthCommand(deps))
	cmd.AddCommand(newDbLoginCommand(deps))
	cmd.AddCommand(newDbLogoutCommand(deps))

	return cmd
}

type dbMigrateOptions struct {
	dryRun bool
	target string
	yes    bool
}

// newDbMigrateCommand creates the 'db migrate' subcommand.
func newDbMigrateCommand(deps *DbCommandDeps) *cobra.Command {
	opts := &dbMigrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply pending database migrations.

Shows pending migrations before applying them. Migrations are executed in
order of their numeric prefix, each in a transaction, and recorded in the
schema_migrations table. If a migration fails, it is rolled back and no
further migrations are attempted.`,
		Example: `  minutes db migrate
  minutes db migrate --dry-run
  minutes db migrate --target 002 --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbMigrate(cmd.Context(), deps, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Show what would be applied without executing")
	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "Target version to migrate to (e.g., 002)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Apply without asking for confirmation")

	return cmd
}

// newDbStatusCommand creates the 'db status' subcommand.
func newDbStatusCommand(deps *DbCommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database migration status",
		Long: `Show the current state of database migrations.

Displays three categories of migrations:
  - Applied: migrations that have been applied and ship with this binary
  - Pending: migrations that ship with this binary but are not applied yet
  - Drift: migrations that were applied but this binary does not know`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbStatus(cmd.Context(), deps, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

// newDbHealthCommand creates the 'db health' subcommand.
func newDbHealthCommand(deps *DbCommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check database connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbHealth(cmd.Context(), deps, output, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

// newDbLoginCommand creates the 'db login' subcommand.
func newDbLoginCommand(deps *DbCommandDeps) *cobra.Command {
	var noVerify bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the database DSN in the system keyring",
		Long: `Prompt for the database DSN and store it in the system keyring, so it
does not have to be written to the config file.

The DSN is checked by connecting to the database before it is stored.
A DSN set in the config file or MINUTES_DATABASE_DSN still takes precedence.`,
		Example: `  minutes db login
  echo "postgres://minutes:secret@db:5432/council" | minutes db login`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbLogin(cmd.Context(), deps, !noVerify, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "Store the DSN without connecting first")
	return cmd
}

// newDbLogoutCommand creates the 'db logout' subcommand.
func newDbLogoutCommand(deps *DbCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored database DSN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := deps.Credentials()
			removed, err := store.Delete()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !removed {
				fmt.Fprintln(out, "No stored DSN.")
				return nil
			}
			fmt.Fprintf(out, "Removed the DSN from %s.\n", store.Description())
			return nil
		},
	}
}

// connect resolves the DSN and opens the database without migrating it.
func (deps *DbCommandDeps) connect(ctx context.Context) (*config.CLIConfig, *db.DB, error) {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	dsn, _, err := deps.ResolveDSN(cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	database, err := deps.ConnectToDB(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return cfg, database, nil
}

// runDbMigrate executes the db migrate command.
func runDbMigrate(ctx context.Context, deps *DbCommandDeps, opts *dbMigrateOptions, in io.Reader, out io.Writer) error {
	_, database, err := deps.connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close(database)

	fsys, err := db.MigrationsFS(database.Dialect)
	if err != nil {
		return err
	}

	pending, err := db.GetPendingMigrations(ctx, database, fsys)
	if err != nil {
		return fmt.Errorf("getting pending migrations: %w", err)
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending migrations.")
		return nil
	}

	fmt.Fprintf(out, "Pending migrations (%d):\n", len(pending))
	for _, m := range pending {
		fmt.Fprintf(out, "  %s - %s\n", m.Version, m.Name)
	}
	fmt.Fprintln(out)

	if opts.dryRun {
		fmt.Fprintln(out, "Dry run mode: no migrations applied.")
		return nil
	}

	if !opts.yes {
		fmt.Fprint(out, "Apply these migrations? (y/N): ")
		response, _ := bufio.NewReader(in).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(response)) != "y" {
			fmt.Fprintln(out, "Migration cancelled.")
			return nil
		}
	}

	var result *db.MigrationResult
	if opts.target != "" {
		fmt.Fprintf(out, "Applying migrations up to version %s...\n", opts.target)
		result, err = db.RunMigrationsToTarget(ctx, database, fsys, opts.target)
	} else {
		fmt.Fprintln(out, "Applying all pending migrations...")
		result, err = db.RunMigrations(ctx, database, fsys)
	}

	if err != nil {
		fmt.Fprintf(out, "\nMigration failed: %v\n", err)
		if result != nil && len(result.Applied) > 0 {
			fmt.Fprintln(out, "\nSuccessfully applied before failure:")
			for _, v := range result.Applied {
				fmt.Fprintf(out, "  ✓ %s\n", v)
			}
		}
		return err
	}

	fmt.Fprintln(out)
	if len(result.Applied) > 0 {
		fmt.Fprintf(out, "Successfully applied %d migration(s):\n", len(result.Applied))
		for _, v := range result.Applied {
			fmt.Fprintf(out, "  ✓ %s\n", v)
		}
	}
	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, "\nSkipped %d migration(s) (already applied):\n", len(result.Skipped))
		for _, v := range result.Skipped {
			fmt.Fprintf(out, "  - %s\n", v)
		}
	}
	return nil
}

// runDbStatus executes the db status command.
func runDbStatus(ctx context.Context, deps *DbCommandDeps, output string, out io.Writer) error {
	cfg, database, err := deps.connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close(database)

	format, err := resolveFormat(cfg, output)
	if err != nil {
		return err
	}

	fsys, err := db.MigrationsFS(database.Dialect)
	if err != nil {
		return err
	}
	status, err := db.GetMigrationStatus(ctx, database, fsys)
	if err != nil {
		return fmt.Errorf("getting migration status: %w", err)
	}

	if format != config.OutputFormatText {
		return writeStructured(out, format, status)
	}
	return outputMigrationStatusText(out, database.Dialect, status)
}

// outputMigrationStatusText formats migration status for terminal display.
func outputMigrationStatusText(out io.Writer, dialect db.Dialect, status *db.MigrationStatus) error {
	p := &linePrinter{w: out}
	p.printf("Database: %s\n\n", dialect)

	printEntries := func(title string, entries []db.MigrationStatusEntry, withApplied bool) {
		if len(entries) == 0 {
			return
		}
		p.printf("%s (%d):\n", title, len(entries))
		for _, m := range entries {
			appliedAt := ""
			if withApplied {
				appliedAt = "-"
				if m.AppliedAt != nil {
					appliedAt = m.AppliedAt.Local().Format("2006-01-02 15:04:05")
				}
			}
			p.printf("  %-10s %-40s %s\n", truncate(m.Version, 10), truncate(m.Name, 40), appliedAt)
		}
		p.printf("\n")
	}

	printEntries("Applied Migrations", status.Applied, true)
	printEntries("Pending Migrations", status.Pending, false)
	printEntries("Drift - applied but unknown to this binary", status.Drift, true)

	if len(status.Applied) == 0 && len(status.Pending) == 0 && len(status.Drift) == 0 {
		p.printf("No migrations found.\n")
		return p.err
	}

	p.printf("Summary: %d applied, %d pending", len(status.Applied), len(status.Pending))
	if len(status.Drift) > 0 {
		p.printf(", %d drift", len(status.Drift))
	}
	p.printf("\n")
	return p.err
}

// dbHealthReport is the structured output of 'db health'.
type dbHealthReport struct {
	Healthy   bool   `json:"healthy" yaml:"healthy"`
	Dialect   string `json:"dialect" yaml:"dialect"`
	Source    string `json:"source" yaml:"source"`
	DSN       string `json:"dsn" yaml:"dsn"`
	LatencyMs int64  `json:"latencyMs" yaml:"latencyMs"`
	OpenConns int    `json:"openConns" yaml:"openConns"`
	InUse     int    `json:"inUse" yaml:"inUse"`
	Idle      int    `json:"idle" yaml:"idle"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runDbHealth(ctx context.Context, deps *DbCommandDeps, output string, out io.Writer) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	format, err := resolveFormat(cfg, output)
	if err != nil {
		return err
	}
	dsn, source, err := deps.ResolveDSN(cfg.Database.DSN)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	report := dbHealthReport{Source: source, DSN: db.RedactDSN(dsn)}
	database, err := deps.ConnectToDB(ctx, dsn)
	if err != nil {
		report.Error = err.Error()
	} else {
		defer db.Close(database)
		status := db.Check(ctx, database)
		report.Healthy = status.Healthy
		report.Dialect = string(status.Dialect)
		report.LatencyMs = status.Latency.Milliseconds()
		report.OpenConns = status.OpenConns
		report.InUse = status.InUse
		report.Idle = status.Idle
		if status.Error != nil {
			report.Error = status.Error.Error()
		}
	}

	if format != config.OutputFormatText {
		if err := writeStructured(out, format, report); err != nil {
			return err
		}
	} else {
		p := &linePrinter{w: out}
		state := "healthy"
		if !report.Healthy {
			state = "unhealthy"
		}
		p.printf("Database: %s\n", state)
		p.printf("DSN:      %s (from %s)\n", report.DSN, report.Source)
		if report.Dialect != "" {
			p.printf("Dialect:  %s\n", report.Dialect)
			p.printf("Latency:  %s\n", formatDurationMs(report.LatencyMs))
			p.printf("Pool:     %d open, %d in use, %d idle\n", report.OpenConns, report.InUse, report.Idle)
		}
		if report.Error != "" {
			p.printf("Error:    %s\n", report.Error)
		}
		if p.err != nil {
			return p.err
		}
	}

	if !report.Healthy {
		return errors.New("database is unhealthy")
	}
	return nil
}

func runDbLogin(ctx context.Context, deps *DbCommandDeps, verify bool, in io.Reader, out io.Writer) error {
	dsn, err := credentials.ReadSecret(in, out, "Database DSN: ")
	if err != nil {
		return err
	}
	if dsn == "" {
		return fmt.Errorf("%w: DSN is empty", credentials.ErrInvalidCredentials)
	}

	if verify {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		database, err := deps.ConnectToDB(ctx, dsn)
		if err != nil {
			return err
		}
		db.Close(database)
	}

	store := deps.Credentials()
	if err := store.SaveDSN(dsn); err != nil {
		return err
	}
	fmt.Fprintf(out, "Stored %s in %s.\n", db.RedactDSN(dsn), store.Description())
	return nil
}
