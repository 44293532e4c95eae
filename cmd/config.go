package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/credentials"
	"github.com/otherjamesbrown/minutes-cli/pkg/db"
)

// ConfigCommandDeps holds the dependencies for the config commands.
type ConfigCommandDeps struct {
	LoadConfig func() (*config.CLIConfig, error)
	SaveConfig func(*config.CLIConfig) error
	ConfigPath func() (string, error)
}

// DefaultConfigDeps returns the default dependencies for production use.
func DefaultConfigDeps(opts *GlobalOptions) *ConfigCommandDeps {
	return &ConfigCommandDeps{
		LoadConfig: opts.Loader(),
		SaveConfig: config.SaveConfig,
		ConfigPath: config.ConfigPath,
	}
}

// NewConfigCommand creates the config command with all subcommands.
func NewConfigCommand(deps *ConfigCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialize the configuration",
		Long: `Show or initialize the minutes configuration.

Configuration is read from ~/.minutes/config.yaml (or $MINUTES_CONFIG_DIR),
then overridden by MINUTES_* environment variables, then by global flags.

Environment variables:
  MINUTES_CONFIG_DIR, MINUTES_TIMEOUT, MINUTES_OUTPUT_FORMAT,
  MINUTES_CONCURRENCY, MINUTES_DEBUG, MINUTES_JSON_LOGS,
  MINUTES_STRICT_TITLES, MINUTES_PDFTOTEXT_PATH, MINUTES_MAX_FILE_SIZE,
  MINUTES_METRICS_FILE, MINUTES_DATABASE_DSN, MINUTES_REDIS_ADDR,
  MINUTES_REDIS_PASSWORD, MINUTES_REDIS_DB, MINUTES_REDIS_INDEX`,
	}

	cmd.AddCommand(newConfigShowCommand(deps))
	cmd.AddCommand(newConfigInitCommand(deps))
	cmd.AddCommand(newConfigPathCommand(deps))

	return cmd
}

// configView is the displayed configuration. Secrets are masked.
type configView struct {
	Timeout       string `json:"timeout" yaml:"timeout"`
	OutputFormat  string `json:"output_format" yaml:"output_format"`
	Concurrency   int    `json:"concurrency" yaml:"concurrency"`
	Debug         bool   `json:"debug" yaml:"debug"`
	JSONLogs      bool   `json:"json_logs" yaml:"json_logs"`
	StrictTitles  bool   `json:"strict_titles" yaml:"strict_titles"`
	PdftotextPath string `json:"pdftotext_path" yaml:"pdftotext_path"`
	MaxFileSize   int64  `json:"max_file_size" yaml:"max_file_size"`
	MetricsFile   string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
	Database      struct {
		DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
		Source string `json:"source" yaml:"source"`
	} `json:"database" yaml:"database"`
	Redis struct {
		Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
		Password string `json:"password,omitempty" yaml:"password,omitempty"`
		DB       int    `json:"db" yaml:"db"`
		Index    string `json:"index" yaml:"index"`
	} `json:"redis" yaml:"redis"`
}

func newConfigView(cfg *config.CLIConfig) configView {
	v := configView{
		Timeout:       cfg.Timeout.String(),
		OutputFormat:  cfg.OutputFormat.String(),
		Concurrency:   cfg.Concurrency,
		Debug:         cfg.Debug,
		JSONLogs:      cfg.JSONLogs,
		StrictTitles:  cfg.StrictTitles,
		PdftotextPath: cfg.PdftotextPath,
		MaxFileSize:   cfg.MaxFileSize,
		MetricsFile:   cfg.MetricsFile,
	}
	switch {
	case cfg.Database.DSN != "":
		v.Database.DSN = db.RedactDSN(cfg.Database.DSN)
		v.Database.Source = credentials.SourceConfig
	case credentials.NewStore().Exists():
		v.Database.Source = credentials.SourceKeyring
	default:
		v.Database.Source = "none"
	}
	v.Redis.Addr = cfg.Redis.Addr
	v.Redis.Password = credentials.MaskCredential(cfg.Redis.Password)
	v.Redis.DB = cfg.Redis.DB
	v.Redis.Index = cfg.Redis.Index
	return v
}

func newConfigShowCommand(deps *ConfigCommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			format := config.OutputFormatYAML
			if output != "" {
				format = config.OutputFormat(output)
			}
			if format == config.OutputFormatText {
				format = config.OutputFormatYAML
			}
			if !format.IsValid() {
				return fmt.Errorf("invalid output format: %q (must be json or yaml)", output)
			}
			return writeStructured(cmd.OutOrStdout(), format, newConfigView(cfg))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: json, yaml")
	return cmd
}

func newConfigInitCommand(deps *ConfigCommandDeps) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(deps, force, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func runConfigInit(deps *ConfigCommandDeps, force bool, out io.Writer) error {
	path, err := deps.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}

	if err := deps.SaveConfig(config.DefaultConfig()); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "Wrote %s\n", path)
	return err
}

func newConfigPathCommand(deps *ConfigCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := deps.ConfigPath()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
}
