// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/emblem-crawler/internal/api"
	"github.com/JakeFAU/emblem-crawler/internal/fetch"
	"github.com/JakeFAU/emblem-crawler/internal/pipeline"
	"github.com/JakeFAU/emblem-crawler/internal/roster"
	"github.com/JakeFAU/emblem-crawler/internal/search"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Pipeline pipeline.Config `mapstructure:"pipeline"`
	HTTP     HTTPConfig      `mapstructure:"http"`
	Search   SearchConfig    `mapstructure:"search"`
	Roster   roster.Config   `mapstructure:"roster"`
	Store    StoreConfig     `mapstructure:"store"`
	Server   ServerConfig    `mapstructure:"server"`
	Report   ReportConfig    `mapstructure:"report"`
	Logging  LoggingConfig   `mapstructure:"logging"`
}

// HTTPConfig configures the shared polite HTTP client.
type HTTPConfig struct {
	UserAgent           string `mapstructure:"user_agent"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	RespectRobots       bool   `mapstructure:"respect_robots"`
	MaxRetries          int    `mapstructure:"max_retries"`
	BackoffInitialMs    int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs        int    `mapstructure:"backoff_max_ms"`
	HostIntervalSeconds int    `mapstructure:"host_interval_seconds"`
	CooldownSeconds     int    `mapstructure:"cooldown_seconds"`
}

// SearchConfig toggles the page-discovery strategies.
type SearchConfig struct {
	PatternProbe bool                 `mapstructure:"pattern_probe"`
	Querier      search.QuerierConfig `mapstructure:"querier"`
	QuerierOn    bool                 `mapstructure:"querier_enabled"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend  string `mapstructure:"backend"`
	BaseDir  string `mapstructure:"base_dir"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ServerConfig controls the HTTP status server.
type ServerConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	Port                  int    `mapstructure:"port"`
	APIKey                string `mapstructure:"api_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// ReportConfig sets where run summaries land.
type ReportConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig toggles zap development features and optional file output.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EMBLEM")
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
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.max_pages", 6)
	v.SetDefault("pipeline.max_validations", 3)
	v.SetDefault("http.user_agent", "emblem-crawler/1.0")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.respect_robots", true)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.host_interval_seconds", 2)
	v.SetDefault("http.cooldown_seconds", 60)
	v.SetDefault("search.pattern_probe", true)
	v.SetDefault("search.querier_enabled", true)
	v.SetDefault("search.querier.max_results_per_query", 5)
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.base_dir", "emblems")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("report.dir", "reports")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Store.Backend {
	case "file":
		if c.Store.BaseDir == "" {
			return fmt.Errorf("store.base_dir must be set for the file backend")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be file or postgres, got %q", c.Store.Backend)
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// FetchConfig converts the HTTP section into the client's native form.
func (c Config) FetchConfig() fetch.Config {
	return fetch.Config{
		UserAgent:     c.HTTP.UserAgent,
		Timeout:       time.Duration(c.HTTP.TimeoutSeconds) * time.Second,
		RespectRobots: c.HTTP.RespectRobots,
		MaxAttempts:   c.HTTP.MaxRetries,
		BackoffBase:   time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:    time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond,
		HostInterval:  time.Duration(c.HTTP.HostIntervalSeconds) * time.Second,
		Cooldown:      time.Duration(c.HTTP.CooldownSeconds) * time.Second,
	}
}

// APIConfig converts the server section into the api package's native form.
func (c Config) APIConfig() api.Config {
	return api.Config{
		Addr:           fmt.Sprintf(":%d", c.Server.Port),
		RequestTimeout: time.Duration(c.Server.RequestTimeoutSeconds) * time.Second,
		APIKey:         c.Server.APIKey,
	}
}
