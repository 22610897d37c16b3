// Package config loads factmirror settings.
//
// A config file is YAML (.yaml, .yml) or TOML (.toml). Values not present
// in the file keep their defaults. The merged result is validated against
// the embedded CUE schema, so a bad value fails at startup with a path to
// the offending key.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Environment variables read by ApplyEnv.
const (
	EnvToken    = "GITHUB_TOKEN"
	EnvDatabase = "FACTMIRROR_DB"
)

// Config is the complete factmirror configuration.
type Config struct {
	Database     string        `yaml:"database" toml:"database" json:"database"`
	Repositories []string      `yaml:"repositories" toml:"repositories" json:"repositories"`
	MaxEvents    int           `yaml:"max_events" toml:"max_events" json:"max_events"`
	Quota        QuotaConfig   `yaml:"quota" toml:"quota" json:"quota"`
	GitHub       GitHubConfig  `yaml:"github" toml:"github" json:"github"`
	Log          LogConfig     `yaml:"log" toml:"log" json:"log"`
	Metrics      MetricsConfig `yaml:"metrics" toml:"metrics" json:"metrics"`
}

// QuotaConfig bounds the API calls of one run.
type QuotaConfig struct {
	// Budget is the local call budget; 0 means unlimited.
	Budget int `yaml:"budget" toml:"budget" json:"budget"`
	// MinRemaining is the server-side quota a run leaves untouched.
	MinRemaining int `yaml:"min_remaining" toml:"min_remaining" json:"min_remaining"`
}

// GitHubConfig configures the REST client.
type GitHubConfig struct {
	BaseURL string  `yaml:"base_url" toml:"base_url" json:"base_url"`
	Token   string  `yaml:"token" toml:"token" json:"token,omitempty"`
	Rate    float64 `yaml:"rate" toml:"rate" json:"rate"`
	Burst   int     `yaml:"burst" toml:"burst" json:"burst"`
	Timeout string  `yaml:"timeout" toml:"timeout" json:"timeout"`
	Retries int     `yaml:"retries" toml:"retries" json:"retries"`
}

// TimeoutDuration parses Timeout. Validate guarantees it parses.
func (g GitHubConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(g.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	// Textfile is where run metrics are written; empty disables export.
	Textfile string `yaml:"textfile" toml:"textfile" json:"textfile,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:  "factmirror.db",
		MaxEvents: 1000,
		Quota: QuotaConfig{
			MinRemaining: 100,
		},
		GitHub: GitHubConfig{
			BaseURL: "https://api.github.com",
			Rate:    10,
			Burst:   5,
			Timeout: "30s",
			Retries: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the file at path over the defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := decode(path, content, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string, content []byte, cfg *Config) error {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(content))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("decode yaml: %w", err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(content))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("decode toml: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	return nil
}

// Validate checks the configuration against the CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	if c.Repositories == nil {
		c.Repositories = []string{}
	}
	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Details: cueerrors.Details(err, nil)}
	}
	if _, err := time.ParseDuration(c.GitHub.Timeout); err != nil {
		return &ValidationError{Details: fmt.Sprintf("github.timeout: %v", err)}
	}
	return nil
}

// ValidationError reports a configuration that violates the schema.
type ValidationError struct {
	Details string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.TrimSpace(e.Details)
}

// IsValidationError reports whether err is a schema violation.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// LoadEnv loads .env files into the process environment. Missing files
// are ignored; variables already set are kept.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides file settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvToken); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Database = v
	}
}
