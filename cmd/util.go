package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/credentials"
	"github.com/otherjamesbrown/minutes-cli/pkg/db"
	"github.com/otherjamesbrown/minutes-cli/pkg/export"
	"github.com/otherjamesbrown/minutes-cli/pkg/ingest/storage"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
	"github.com/otherjamesbrown/minutes-cli/pkg/search"
)

// Database connection retry policy.
const (
	dbConnectAttempts = 3
	dbRetryDelay      = 2 * time.Second
)

// errNoDatabase is returned when neither the config nor the keyring holds a DSN.
var errNoDatabase = errors.New("no database configured: set database.dsn, MINUTES_DATABASE_DSN or run 'minutes db login'")

// GlobalOptions holds the persistent flags of the root command.
// Zero values leave the loaded configuration untouched.
type GlobalOptions struct {
	Timeout  time.Duration
	Output   string
	Debug    bool
	JSONLogs bool
}

// Apply overlays the flags on cfg and validates the result.
func (o *GlobalOptions) Apply(cfg *config.CLIConfig) error {
	if o == nil {
		return cfg.Validate()
	}
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
	}
	if o.Output != "" {
		cfg.OutputFormat = config.OutputFormat(o.Output)
	}
	if o.Debug {
		cfg.Debug = true
	}
	if o.JSONLogs {
		cfg.JSONLogs = true
	}
	return cfg.Validate()
}

// Loader returns a config loader that applies the global flags on top of the
// config file and environment.
func (o *GlobalOptions) Loader() func() (*config.CLIConfig, error) {
	return func() (*config.CLIConfig, error) {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, err
		}
		if err := o.Apply(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
}

// newLogger builds the command logger. Logs go to stderr so stdout carries
// only command output.
func newLogger(cfg *config.CLIConfig, sinks ...logging.Sink) logging.Logger {
	lc := logging.DefaultConfig()
	if cfg.Debug {
		lc.Level = logging.LevelDebug
	}
	lc.JSONFormat = cfg.JSONLogs
	lc.Sinks = sinks
	return logging.NewLogger(lc)
}

// resolveDSN returns the configured DSN or the one stored in the keyring.
func resolveDSN(configured string) (string, string, error) {
	dsn, source, err := credentials.NewStore().ResolveDSN(configured)
	if errors.Is(err, credentials.ErrNoCredentials) {
		return "", "", errNoDatabase
	}
	if errors.Is(err, credentials.ErrKeyringUnavailable) {
		return "", "", fmt.Errorf("%w (%v)", errNoDatabase, err)
	}
	return dsn, source, err
}

// openDatabase connects to the database behind dsn.
func openDatabase(ctx context.Context, dsn string) (*db.DB, error) {
	database, err := db.OpenWithRetry(ctx, db.DefaultConfig(dsn), dbConnectAttempts, dbRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", db.RedactDSN(dsn), err)
	}
	return database, nil
}

// StoreHandle is an open database with the repository over it.
type StoreHandle struct {
	DB   *db.DB
	Repo *storage.Repository
}

// Close closes the database.
func (h *StoreHandle) Close() {
	if h != nil {
		db.Close(h.DB)
	}
}

// StoreOpener opens the repository for a configuration.
type StoreOpener func(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (*StoreHandle, error)

// openStore resolves the DSN, connects and brings the schema up to date.
func openStore(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (*StoreHandle, error) {
	dsn, source, err := resolveDSN(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	database, err := openDatabase(ctx, dsn)
	if err != nil {
		return nil, err
	}
	logger.Debug("Database connected",
		logging.F("dialect", string(database.Dialect)),
		logging.F("dsn", db.RedactDSN(dsn)),
		logging.F("source", source))

	repo := storage.NewRepository(database, logger)
	if _, err := repo.Migrate(ctx); err != nil {
		db.Close(database)
		return nil, err
	}
	return &StoreHandle{DB: database, Repo: repo}, nil
}

// RedisConnector connects to the configured Redis server.
type RedisConnector func(ctx context.Context, cfg *config.CLIConfig) (*redis.Client, error)

// connectToRedis establishes a Redis connection.
func connectToRedis(ctx context.Context, cfg *config.CLIConfig) (*redis.Client, error) {
	if !cfg.Redis.Enabled() {
		return nil, fmt.Errorf("redis is not configured: set redis.addr or MINUTES_REDIS_ADDR")
	}
	return search.NewClient(ctx, search.ClientConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// commandContext bounds ctx by the configured timeout.
func commandContext(ctx context.Context, cfg *config.CLIConfig) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, cfg.Timeout)
}

// resolveFormat picks the output format: the flag if set, else the config.
func resolveFormat(cfg *config.CLIConfig, flag string) (config.OutputFormat, error) {
	format := cfg.OutputFormat
	if flag != "" {
		format = config.OutputFormat(flag)
	}
	if !format.IsValid() {
		return "", fmt.Errorf("invalid output format: %q (must be text, json, or yaml)", format)
	}
	return format, nil
}

// writeStructured writes v as JSON or YAML.
func writeStructured(w io.Writer, format config.OutputFormat, v any) error {
	switch format {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported structured format: %s", format)
	}
}

// writeArchive writes meetings to path in the format its extension names.
// "-" writes JSON to w.
func writeArchive(w io.Writer, path string, meetings []*minutes.Meeting) error {
	if path == "-" {
		return export.WriteJSON(w, meetings)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	if err := export.Write(f, export.FormatFromPath(path), meetings); err != nil {
		f.Close()
		return fmt.Errorf("writing archive: %w", err)
	}
	return f.Close()
}

// formatDurationMs formats milliseconds as a human-readable duration.
func formatDurationMs(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%.1fm", float64(ms)/60000)
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// meetingDate formats a meeting date, or "-" when the record has none.
func meetingDate(m *minutes.Meeting) string {
	if d, ok := m.Date(); ok {
		return d.Format("2006-01-02")
	}
	return "-"
}
