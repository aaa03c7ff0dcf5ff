// Package config loads the coordination core configuration. Config is YAML,
// decoded strictly: unknown keys are an error, not a warning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/coord/internal/core/reconcile"
	"github.com/example/coord/internal/models"
)

// Config is the full runtime configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Messenger  MessengerConfig  `yaml:"messenger"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Spend      SpendConfig      `yaml:"spend"`
	Monitor    MonitorConfig    `yaml:"monitor"`

	// RaciFile points to the responsibility matrix YAML. Empty means no
	// file-backed definitions.
	RaciFile string `yaml:"raci_file"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthorityRule designates the source of truth for one field. A rule with a
// task type takes precedence over the bare-field default.
type AuthorityRule struct {
	TaskType string `yaml:"task_type,omitempty"`
	Field    string `yaml:"field"`
	Source   string `yaml:"source"`
}

// ReconcilerConfig tunes dual-authority merging.
type ReconcilerConfig struct {
	WindowSeconds     int             `yaml:"window_seconds"`
	FallbackAuthority string          `yaml:"fallback_authority"`
	Authority         []AuthorityRule `yaml:"authority"`
}

// Window returns the reconciliation window as a duration.
func (c ReconcilerConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// BuildAuthority converts the configured rules into an authority table.
func (c ReconcilerConfig) BuildAuthority() (reconcile.Authority, error) {
	fallback := models.EventSource(c.FallbackAuthority)
	if !fallback.Valid() || fallback == models.SourceInternal {
		return reconcile.Authority{}, fmt.Errorf("invalid fallback authority %q", c.FallbackAuthority)
	}

	rules := map[string]models.EventSource{}
	defaults := map[string]models.EventSource{}
	for _, r := range c.Authority {
		source := models.EventSource(r.Source)
		if !source.Valid() || source == models.SourceInternal {
			return reconcile.Authority{}, fmt.Errorf("invalid authority source %q for field %q", r.Source, r.Field)
		}
		if r.Field == "" {
			return reconcile.Authority{}, fmt.Errorf("authority rule missing field")
		}
		if r.TaskType != "" {
			rules[r.TaskType+"/"+r.Field] = source
		} else {
			defaults[r.Field] = source
		}
	}
	return reconcile.NewAuthority(rules, defaults, fallback), nil
}

// MessengerConfig tunes the handshake protocol.
type MessengerConfig struct {
	DefaultAckTimeoutSeconds      int `yaml:"default_ack_timeout_seconds"`
	DefaultResponseTimeoutSeconds int `yaml:"default_response_timeout_seconds"`
	MaxRedeliveries               int `yaml:"max_redeliveries"`
	AgingThresholdSeconds         int `yaml:"aging_threshold_seconds"`
}

// DefaultAckTimeout returns the ack timeout applied when a message does not
// carry its own.
func (c MessengerConfig) DefaultAckTimeout() time.Duration {
	return time.Duration(c.DefaultAckTimeoutSeconds) * time.Second
}

// DefaultResponseTimeout returns the response timeout applied when a message
// does not carry its own.
func (c MessengerConfig) DefaultResponseTimeout() time.Duration {
	return time.Duration(c.DefaultResponseTimeoutSeconds) * time.Second
}

// AgingThreshold returns how long a message waits in its lane before being
// promoted one priority level.
func (c MessengerConfig) AgingThreshold() time.Duration {
	return time.Duration(c.AgingThresholdSeconds) * time.Second
}

// LifecycleConfig tunes instance state management.
type LifecycleConfig struct {
	ErrorWindowSeconds int  `yaml:"error_window_seconds"`
	AutoResume         bool `yaml:"auto_resume"`
}

// ErrorWindow returns the rolling window for counting error transitions.
func (c LifecycleConfig) ErrorWindow() time.Duration {
	return time.Duration(c.ErrorWindowSeconds) * time.Second
}

// SpendConfig tunes budget enforcement.
type SpendConfig struct {
	ThresholdPct float64 `yaml:"threshold_pct"`
}

// MonitorConfig tunes alert evaluation.
type MonitorConfig struct {
	EvaluateIntervalSeconds int `yaml:"evaluate_interval_seconds"`
}

// EvaluateInterval returns the cadence of the alert evaluation sweep.
func (c MonitorConfig) EvaluateInterval() time.Duration {
	return time.Duration(c.EvaluateIntervalSeconds) * time.Second
}

// Default returns the baked-in configuration. Load starts from this, so a
// partial file only overrides what it names.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8470"},
		Database: DatabaseConfig{Path: ""},
		Reconciler: ReconcilerConfig{
			WindowSeconds:     300,
			FallbackAuthority: string(models.SourceAuthorityB),
			Authority: []AuthorityRule{
				{Field: "phase", Source: string(models.SourceAuthorityB)},
				{Field: "decision", Source: string(models.SourceAuthorityA)},
			},
		},
		Messenger: MessengerConfig{
			DefaultAckTimeoutSeconds:      30,
			DefaultResponseTimeoutSeconds: 600,
			MaxRedeliveries:               3,
			AgingThresholdSeconds:         120,
		},
		Lifecycle: LifecycleConfig{
			ErrorWindowSeconds: 3600,
			AutoResume:         false,
		},
		Spend:   SpendConfig{ThresholdPct: 80.0},
		Monitor: MonitorConfig{EvaluateIntervalSeconds: 60},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges the type system cannot.
func (c *Config) Validate() error {
	if c.Reconciler.WindowSeconds < 0 {
		return fmt.Errorf("reconciler window must not be negative")
	}
	if c.Messenger.MaxRedeliveries < 0 {
		return fmt.Errorf("max redeliveries must not be negative")
	}
	if c.Spend.ThresholdPct < 0 || c.Spend.ThresholdPct > 100 {
		return fmt.Errorf("spend threshold must be between 0 and 100")
	}
	if _, err := c.Reconciler.BuildAuthority(); err != nil {
		return err
	}
	return nil
}

// DefaultConfigPath returns ~/.coord/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".coord", "config.yaml"), nil
}
