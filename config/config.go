// Package config provides CLI configuration management for the minutes command-line tool.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultTimeout       = 10 * time.Minute
	DefaultOutputFormat  = OutputFormatText
	DefaultConcurrency   = 4
	DefaultPdftotextPath = "pdftotext"
	DefaultMaxFileSize   = 50 << 20
	DefaultRedisIndex    = "citycouncil"
	DefaultConfigDir     = ".minutes"
	DefaultConfigFile    = "config.yaml"
)

// DatabaseConfig holds the repository connection settings.
type DatabaseConfig struct {
	// DSN selects the backend: postgres:// or postgresql:// URLs use Postgres,
	// anything else is treated as a SQLite file path (optionally sqlite://).
	DSN string `yaml:"dsn,omitempty"`
}

// RedisConfig holds the search index and event stream settings.
type RedisConfig struct {
	// Addr is host:port of the Redis server. Empty disables indexing and events.
	Addr string `yaml:"addr,omitempty"`

	// Password is the optional Redis AUTH password.
	Password string `yaml:"password,omitempty"`

	// DB is the Redis logical database number.
	DB int `yaml:"db,omitempty"`

	// Index is the key namespace meeting records are indexed under.
	Index string `yaml:"index,omitempty"`
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// Timeout bounds a whole command run, including extraction of every file.
	Timeout time.Duration `yaml:"timeout"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// Concurrency is the number of documents processed in parallel by ingest.
	Concurrency int `yaml:"concurrency"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// JSONLogs switches log output on stderr to JSON lines.
	JSONLogs bool `yaml:"json_logs,omitempty"`

	// StrictTitles makes a repeated agenda item title a parse failure.
	StrictTitles bool `yaml:"strict_titles,omitempty"`

	// PdftotextPath is the pdftotext binary used for PDF extraction.
	PdftotextPath string `yaml:"pdftotext_path,omitempty"`

	// MaxFileSize rejects input documents larger than this many bytes.
	MaxFileSize int64 `yaml:"max_file_size,omitempty"`

	// MetricsFile, when set, receives run metrics in Prometheus text format.
	// Supports ~ for home directory expansion.
	MetricsFile string `yaml:"metrics_file,omitempty"`

	Database DatabaseConfig `yaml:"database,omitempty"`
	Redis    RedisConfig    `yaml:"redis,omitempty"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		Timeout:       DefaultTimeout,
		OutputFormat:  DefaultOutputFormat,
		Concurrency:   DefaultConcurrency,
		PdftotextPath: DefaultPdftotextPath,
		MaxFileSize:   DefaultMaxFileSize,
		Redis: RedisConfig{
			Index: DefaultRedisIndex,
		},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $MINUTES_CONFIG_DIR if set, otherwise ~/.minutes
func ConfigDir() (string, error) {
	if dir := os.Getenv("MINUTES_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.minutes/config.yaml or $MINUTES_CONFIG_DIR/config.yaml)
// 3. Environment variables (MINUTES_TIMEOUT, MINUTES_DATABASE_DSN, ...)
func LoadConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// configFile mirrors CLIConfig with the duration kept as a string.
type configFile struct {
	Timeout       string         `yaml:"timeout"`
	OutputFormat  OutputFormat   `yaml:"output_format"`
	Concurrency   int            `yaml:"concurrency,omitempty"`
	Debug         bool           `yaml:"debug,omitempty"`
	JSONLogs      bool           `yaml:"json_logs,omitempty"`
	StrictTitles  bool           `yaml:"strict_titles,omitempty"`
	PdftotextPath string         `yaml:"pdftotext_path,omitempty"`
	MaxFileSize   int64          `yaml:"max_file_size,omitempty"`
	MetricsFile   string         `yaml:"metrics_file,omitempty"`
	Database      DatabaseConfig `yaml:"database,omitempty"`
	Redis         RedisConfig    `yaml:"redis,omitempty"`
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.Timeout != "" {
		timeout, err := time.ParseDuration(fileCfg.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.Concurrency != 0 {
		cfg.Concurrency = fileCfg.Concurrency
	}
	if fileCfg.PdftotextPath != "" {
		cfg.PdftotextPath = fileCfg.PdftotextPath
	}
	if fileCfg.MaxFileSize != 0 {
		cfg.MaxFileSize = fileCfg.MaxFileSize
	}
	if fileCfg.MetricsFile != "" {
		cfg.MetricsFile = fileCfg.MetricsFile
	}
	if fileCfg.Database.DSN != "" {
		cfg.Database.DSN = fileCfg.Database.DSN
	}
	if fileCfg.Redis.Addr != "" {
		cfg.Redis.Addr = fileCfg.Redis.Addr
	}
	if fileCfg.Redis.Password != "" {
		cfg.Redis.Password = fileCfg.Redis.Password
	}
	if fileCfg.Redis.Index != "" {
		cfg.Redis.Index = fileCfg.Redis.Index
	}
	cfg.Redis.DB = fileCfg.Redis.DB
	cfg.Debug = fileCfg.Debug
	cfg.JSONLogs = fileCfg.JSONLogs
	cfg.StrictTitles = fileCfg.StrictTitles

	return nil
}

func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "true" || v == "1"
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("MINUTES_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = timeout
		}
	}

	if v := os.Getenv("MINUTES_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("MINUTES_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}

	if envBool("MINUTES_DEBUG") {
		cfg.Debug = true
	}
	if envBool("MINUTES_JSON_LOGS") {
		cfg.JSONLogs = true
	}
	if envBool("MINUTES_STRICT_TITLES") {
		cfg.StrictTitles = true
	}

	if v := os.Getenv("MINUTES_PDFTOTEXT_PATH"); v != "" {
		cfg.PdftotextPath = v
	}

	if v := os.Getenv("MINUTES_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxFileSize = n
		}
	}

	if v := os.Getenv("MINUTES_METRICS_FILE"); v != "" {
		cfg.MetricsFile = v
	}

	if v := os.Getenv("MINUTES_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	if v := os.Getenv("MINUTES_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MINUTES_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MINUTES_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("MINUTES_REDIS_INDEX"); v != "" {
		cfg.Redis.Index = v
	}
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive")
	}

	if c.Redis.Enabled() && strings.TrimSpace(c.Redis.Index) == "" {
		return fmt.Errorf("redis.index is required when redis.addr is set")
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	fileCfg := configFile{
		Timeout:       cfg.Timeout.String(),
		OutputFormat:  cfg.OutputFormat,
		Concurrency:   cfg.Concurrency,
		Debug:         cfg.Debug,
		JSONLogs:      cfg.JSONLogs,
		StrictTitles:  cfg.StrictTitles,
		PdftotextPath: cfg.PdftotextPath,
		MaxFileSize:   cfg.MaxFileSize,
		MetricsFile:   cfg.MetricsFile,
		Database:      cfg.Database,
		Redis:         cfg.Redis,
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// The file may hold a DSN with a password.
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// GetMetricsFile returns the expanded metrics file path, or "" when unset.
func (c *CLIConfig) GetMetricsFile() (string, error) {
	return ExpandPath(c.MetricsFile)
}
