package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/roach88/factmirror/internal/classify"
	"github.com/roach88/factmirror/internal/config"
	"github.com/roach88/factmirror/internal/engine"
	"github.com/roach88/factmirror/internal/github"
	"github.com/roach88/factmirror/internal/reconcile"
	"github.com/roach88/factmirror/internal/store"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// GitHub is everything the commands read from GitHub.
type GitHub interface {
	engine.EventSource
	classify.Enricher
	reconcile.TimelineSource
	github.RepoLister
}

// GitHubFactory builds the GitHub collaborator for one run.
type GitHubFactory func(cfg config.GitHubConfig, meter github.Meter, logger *slog.Logger) GitHub

// RootOptions holds global flags and the state every command shares.
type RootOptions struct {
	ConfigPath string
	Database   string
	Verbose    bool
	Format     string // "json" | "text"
	LogFormat  string // "json" | "text"; empty keeps the config value

	// EnvFiles are loaded before the config. Defaults to ".env".
	EnvFiles []string

	// NewGitHub overrides the REST client (for testing).
	NewGitHub GitHubFactory

	// RunIDs overrides the run id generator (for testing).
	RunIDs engine.IDGenerator

	// Now overrides the wall clock (for testing).
	Now func() time.Time

	cfg    config.Config
	logger *slog.Logger
}

// NewRootCommand creates the root command for the factmirror CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "factmirror",
		Short: "Mirror GitHub activity into a fact store",
		Long: `factmirror scans the activity events of GitHub repositories, classifies
them into facts, and keeps the facts in a SQLite database.

Each run resumes where the previous one stopped: every repository has a
watermark, the newest event already processed, and an event is never turned
into a fact twice.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (json|text)")

	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewLabelsCommand(opts))
	cmd.AddCommand(NewFactsCommand(opts))
	cmd.AddCommand(NewWatermarksCommand(opts))

	return cmd
}

// setup validates flags, loads the config and builds the logger.
func (o *RootOptions) setup(stderr io.Writer) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	if o.LogFormat != "" && !isValidFormat(o.LogFormat) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid log format %q: must be one of %v", o.LogFormat, ValidFormats))
	}

	envFiles := o.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env"}
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		return WrapExitError(ExitCommandError, "failed to load environment", err)
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	cfg.ApplyEnv()
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := newLogger(stderr, cfg.Log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

// newLogger builds a charmbracelet text handler or a JSON handler.
func newLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", lc.Level, err)
	}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	}
	charmLevel, err := charmlog.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", lc.Level, err)
	}
	return slog.New(charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmLevel,
		Prefix:          "factmirror",
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmlog.TextFormatter,
	})), nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

func (o *RootOptions) openStore() (*store.Store, error) {
	s, err := store.Open(o.cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return s, nil
}

func (o *RootOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// newRun starts a run: governor, run context and GitHub client.
func (o *RootOptions) newRun() (engine.RunContext, GitHub) {
	quota := engine.NewGovernor(o.cfg.Quota.Budget, engine.WithReserve(o.cfg.Quota.MinRemaining))
	ids := o.RunIDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	rc := engine.NewRunContext(ids, quota, o.logger)

	factory := o.NewGitHub
	if factory == nil {
		factory = newGitHubClient
	}
	return rc, factory(o.cfg.GitHub, quota, rc.Log())
}

func newGitHubClient(cfg config.GitHubConfig, meter github.Meter, logger *slog.Logger) GitHub {
	return github.NewClient(github.Config{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Rate:    cfg.Rate,
		Burst:   cfg.Burst,
		Timeout: cfg.TimeoutDuration(),
		Retries: cfg.Retries,
	}, github.WithMeter(meter), github.WithLogger(logger))
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
