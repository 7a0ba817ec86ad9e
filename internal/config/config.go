// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Harvester HarvesterConfig `mapstructure:"harvester"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// HarvesterConfig governs the page loop and politeness behavior.
type HarvesterConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	Concurrency       int     `mapstructure:"concurrency"`
	PageDelaySeconds  int     `mapstructure:"page_delay_seconds"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds"`
	DefaultMaxPages   int     `mapstructure:"default_max_pages"`
	UserAgent         string  `mapstructure:"user_agent"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// HTTPConfig configures fetch timeout and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
	BackoffBaseMs  int `mapstructure:"backoff_base_ms"`
}

// StorageConfig sets the state and output file locations.
type StorageConfig struct {
	StateFile  string `mapstructure:"state_file"`
	OutputFile string `mapstructure:"output_file"`
}

// MetricsConfig controls the optional Prometheus scrape endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("harvester.base_url", "https://arenda.az")
	v.SetDefault("harvester.concurrency", 5)
	v.SetDefault("harvester.page_delay_seconds", 1)
	v.SetDefault("harvester.retry_delay_seconds", 2)
	v.SetDefault("harvester.default_max_pages", 10)
	v.SetDefault("harvester.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("harvester.requests_per_second", 0)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_base_ms", 1000)
	v.SetDefault("storage.state_file", "scraper_state.json")
	v.SetDefault("storage.output_file", "arenda_listings.csv")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Harvester.BaseURL == "" {
		return fmt.Errorf("harvester.base_url must be set")
	}
	if c.Harvester.Concurrency <= 0 {
		return fmt.Errorf("harvester.concurrency must be > 0")
	}
	if c.Harvester.DefaultMaxPages <= 0 {
		return fmt.Errorf("harvester.default_max_pages must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	if c.HTTP.BackoffBaseMs <= 0 {
		return fmt.Errorf("http.backoff_base_ms must be > 0")
	}
	if c.Storage.StateFile == "" || c.Storage.OutputFile == "" {
		return fmt.Errorf("storage.state_file and storage.output_file must be set")
	}
	return nil
}

// Timeout returns the per-attempt HTTP timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffBase returns the first retry delay; later delays double each time.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.HTTP.BackoffBaseMs) * time.Millisecond
}

// PageDelay returns the politeness pause between catalog pages.
func (c Config) PageDelay() time.Duration {
	return time.Duration(c.Harvester.PageDelaySeconds) * time.Second
}

// RetryDelay returns the pause between items in the retry pass.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Harvester.RetryDelaySeconds) * time.Second
}
