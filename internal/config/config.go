// Package config loads the venuedesk YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teemow/venuedesk/internal/model"
)

// SyncConfig controls the email sync engine.
type SyncConfig struct {
	Workers    int `mapstructure:"workers" yaml:"workers"`
	MaxResults int `mapstructure:"max_results" yaml:"max_results"`
	// Query narrows scheduled syncs. Empty lists the whole inbox and is
	// the only form that advances the freshness timestamp.
	Query          string        `mapstructure:"query" yaml:"query"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
	Interval       time.Duration `mapstructure:"interval" yaml:"interval"`
	AssociationTTL time.Duration `mapstructure:"association_ttl" yaml:"association_ttl"`
}

// CalendarConfig selects the calendar used as event store.
type CalendarConfig struct {
	ID       string        `mapstructure:"id" yaml:"id"`
	Lookback time.Duration `mapstructure:"lookback" yaml:"lookback"`
	Horizon  time.Duration `mapstructure:"horizon" yaml:"horizon"`
}

// LLMConfig holds settings for the OpenAI-compatible model endpoint.
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ApprovalConfig configures the SMS approval loop.
type ApprovalConfig struct {
	// OperatorNumber receives suggestion notifications.
	OperatorNumber string `mapstructure:"operator_number" yaml:"operator_number"`

	// AllowedNumbers restricts who may approve. Empty allows anyone.
	AllowedNumbers []string `mapstructure:"allowed_numbers" yaml:"allowed_numbers"`

	// SignalAccount is the signal-cli account used to send and receive.
	SignalAccount string `mapstructure:"signal_account" yaml:"signal_account"`

	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// WebhookToken, when set, must accompany inbound SMS webhook calls.
	WebhookToken string `mapstructure:"webhook_token" yaml:"webhook_token"`
}

// GoogleConfig points at the OAuth material produced out of band.
type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	TokenFile       string `mapstructure:"token_file" yaml:"token_file"`
}

// Config is the top-level application configuration.
type Config struct {
	DatabasePath string         `mapstructure:"database_path" yaml:"database_path"`
	VenueName    string         `mapstructure:"venue_name" yaml:"venue_name"`
	Categories   []string       `mapstructure:"categories" yaml:"categories"`
	Sync         SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Calendar     CalendarConfig `mapstructure:"calendar" yaml:"calendar"`
	LLM          LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Approval     ApprovalConfig `mapstructure:"approval" yaml:"approval"`
	Google       GoogleConfig   `mapstructure:"google" yaml:"google"`
}

// DefaultPath returns ~/.config/venuedesk/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "venuedesk.yaml")
	}
	return filepath.Join(home, ".config", "venuedesk", "config.yaml")
}

func cacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "venuedesk")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_path", filepath.Join(cacheDir(), "venuedesk.db"))
	v.SetDefault("venue_name", "the venue")
	v.SetDefault("categories", []string{"event", "invoice", "supplier", model.CategoryOther})

	v.SetDefault("sync.workers", 5)
	v.SetDefault("sync.max_results", 50)
	v.SetDefault("sync.query", "")
	v.SetDefault("sync.batch_timeout", 2*time.Minute)
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.association_ttl", 5*time.Minute)

	v.SetDefault("calendar.id", "primary")
	v.SetDefault("calendar.lookback", 30*24*time.Hour)
	v.SetDefault("calendar.horizon", 365*24*time.Hour)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", 30*time.Second)

	v.SetDefault("approval.operator_number", "")
	v.SetDefault("approval.signal_account", "")
	v.SetDefault("approval.poll_interval", 10*time.Second)
	v.SetDefault("approval.webhook_token", "")

	v.SetDefault("google.credentials_file", filepath.Join(cacheDir(), "credentials.json"))
	v.SetDefault("google.token_file", filepath.Join(cacheDir(), "token.json"))
}

// Load reads the YAML file at path. A missing file yields the defaults.
// Environment variables prefixed VENUEDESK_ override file values
// (VENUEDESK_LLM_API_KEY sets llm.api_key).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VENUEDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and builds the category set once to surface
// bad category lists at startup.
func (c *Config) Validate() error {
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1, got %d", c.Sync.Workers)
	}
	if c.Sync.MaxResults < 1 {
		return fmt.Errorf("sync.max_results must be at least 1, got %d", c.Sync.MaxResults)
	}
	if c.Sync.BatchTimeout <= 0 {
		return fmt.Errorf("sync.batch_timeout must be positive")
	}
	if c.Sync.AssociationTTL <= 0 {
		return fmt.Errorf("sync.association_ttl must be positive")
	}
	if _, err := c.CategorySet(); err != nil {
		return err
	}
	return nil
}

// CategorySet returns the configured categories as a validated set.
func (c *Config) CategorySet() (model.CategorySet, error) {
	set, err := model.NewCategorySet(c.Categories)
	if err != nil {
		return model.CategorySet{}, fmt.Errorf("categories: %w", err)
	}
	if !set.Contains(model.CategoryEvent) {
		return model.CategorySet{}, fmt.Errorf("categories must include %q", model.CategoryEvent)
	}
	return set, nil
}
