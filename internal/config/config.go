// Package config loads flowzz-client configuration from defaults, an
// optional flowzz.yaml, FLOWZZ_* environment variables and command flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/flowzz-client/pkg/catalog"
	"github.com/Sternrassler/flowzz-client/pkg/client"
	"github.com/Sternrassler/flowzz-client/pkg/fetch"
	"github.com/Sternrassler/flowzz-client/pkg/logging"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/Sternrassler/flowzz-client/pkg/pagination"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the CLI and the server.
type Config struct {
	Source    string `mapstructure:"source"`
	BaseURL   string `mapstructure:"base_url"`
	CMSURL    string `mapstructure:"cms_url"`
	VendorURL string `mapstructure:"vendor_url"`
	UserAgent string `mapstructure:"user_agent"`

	Delay    time.Duration `mapstructure:"delay"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
	MaxPages int           `mapstructure:"max_pages"`
	Workers  int           `mapstructure:"workers"`

	Retry          RetryConfig `mapstructure:"retry"`
	OrderableCodes []int       `mapstructure:"orderable_codes"`

	Redis RedisConfig `mapstructure:"redis"`
	Cache CacheConfig `mapstructure:"cache"`
	Log   LogConfig   `mapstructure:"log"`

	MetricsAddr string       `mapstructure:"metrics_addr"`
	Server      ServerConfig `mapstructure:"server"`
}

// RetryConfig configures retries of detail and vendor fetches.
type RetryConfig struct {
	Attempts       int           `mapstructure:"attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// RedisConfig enables the shared request gate and the response cache.
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	GateKey string `mapstructure:"gate_key"`
}

// CacheConfig configures the Redis response cache.
type CacheConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	StaleWindow time.Duration `mapstructure:"stale_window"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ServerConfig configures cmd/flowzz-server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// flagKeys maps command flag names to configuration keys.
var flagKeys = map[string]string{
	"source":       "source",
	"base-url":     "base_url",
	"cms-url":      "cms_url",
	"vendor-url":   "vendor_url",
	"user-agent":   "user_agent",
	"delay":        "delay",
	"timeout":      "timeout",
	"page-size":    "page_size",
	"max-pages":    "max_pages",
	"workers":      "workers",
	"retries":      "retry.attempts",
	"redis-url":    "redis.url",
	"cache-ttl":    "cache.ttl",
	"log-level":    "log.level",
	"log-pretty":   "log.pretty",
	"metrics-addr": "metrics_addr",
	"addr":         "server.addr",
	"refresh":      "server.refresh_interval",
}

// Load reads the configuration. configFile, if not empty, replaces the
// flowzz.yaml search. flags may be nil; only flags the user changed
// override file and environment values.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("flowzz")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/flowzz/")
	}

	v.SetEnvPrefix("FLOWZZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("source", model.SourceProducts)
	v.SetDefault("base_url", model.DefaultSiteURL)
	v.SetDefault("cms_url", model.DefaultCMSURL)
	v.SetDefault("vendor_url", model.DefaultVendorURL)
	v.SetDefault("user_agent", "flowzz-client/1.0 (+https://github.com/Sternrassler/flowzz-client)")

	fetchDefaults := fetch.DefaultConfig()
	v.SetDefault("delay", fetchDefaults.Delay)
	v.SetDefault("timeout", fetchDefaults.Timeout)
	v.SetDefault("page_size", 100)
	v.SetDefault("max_pages", pagination.DefaultConfig().MaxPages)
	v.SetDefault("workers", 1)

	retryDefaults := fetch.DefaultRetryPolicy()
	v.SetDefault("retry.attempts", 1)
	v.SetDefault("retry.initial_backoff", retryDefaults.InitialBackoff)
	v.SetDefault("retry.max_backoff", retryDefaults.MaxBackoff)
	v.SetDefault("orderable_codes", model.DefaultOrderableCodes)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.gate_key", "")
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.stale_window", time.Hour)

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)

	v.SetDefault("metrics_addr", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.refresh_interval", time.Duration(0))
}

// validate validates the configuration
func validate(cfg *Config) error {
	if _, ok := cfg.Sources()[cfg.Source]; !ok {
		return fmt.Errorf("source must be %q or %q, got: %q", model.SourceProducts, model.SourceStrains, cfg.Source)
	}
	if cfg.UserAgent == "" {
		return fmt.Errorf("user agent is required (set FLOWZZ_USER_AGENT)")
	}
	if !strings.Contains(cfg.VendorURL, "{id}") {
		return fmt.Errorf("vendor_url must contain {id}, got: %q", cfg.VendorURL)
	}
	if cfg.Delay < 0 {
		return fmt.Errorf("delay must be >= 0, got: %s", cfg.Delay)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got: %s", cfg.Timeout)
	}
	if err := pagination.ValidatePageSize(cfg.PageSize); err != nil {
		return err
	}
	if cfg.MaxPages < 0 {
		return fmt.Errorf("max_pages must be >= 0, got: %d", cfg.MaxPages)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got: %d", cfg.Workers)
	}
	if cfg.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be >= 1, got: %d", cfg.Retry.Attempts)
	}
	if len(cfg.OrderableCodes) == 0 {
		return fmt.Errorf("orderable_codes must not be empty")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be >= 0, got: %s", cfg.Cache.TTL)
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	if cfg.Server.RefreshInterval < 0 {
		return fmt.Errorf("server.refresh_interval must be >= 0, got: %s", cfg.Server.RefreshInterval)
	}
	return nil
}

// Sources returns the catalog sources rooted at the configured URLs.
func (c *Config) Sources() map[string]model.Source {
	return model.DefaultSources(c.BaseURL, c.CMSURL)
}

// RetryPolicy converts the retry settings.
func (c *Config) RetryPolicy() fetch.RetryPolicy {
	if c.Retry.Attempts < 2 {
		return fetch.NoRetry()
	}
	policy := fetch.DefaultRetryPolicy()
	policy.MaxAttempts = c.Retry.Attempts
	if c.Retry.InitialBackoff > 0 {
		policy.InitialBackoff = c.Retry.InitialBackoff
	}
	if c.Retry.MaxBackoff > 0 {
		policy.MaxBackoff = c.Retry.MaxBackoff
	}
	return policy
}

// EngineConfig builds the catalog engine configuration. Gate is left for
// the caller, which owns the Redis connection.
func (c *Config) EngineConfig() catalog.Config {
	cfg := catalog.DefaultConfig()
	cfg.Source = c.Sources()[c.Source]
	cfg.Fetch.Delay = c.Delay
	cfg.Fetch.Timeout = c.Timeout
	cfg.Pager.MaxPages = c.MaxPages
	cfg.Enrich.Workers = c.Workers
	cfg.Enrich.Retry = c.RetryPolicy()
	cfg.Match.Orderable = model.OrderableCodes(c.OrderableCodes...)
	cfg.Match.Retry = c.RetryPolicy()
	return cfg
}

// ClientConfig builds the HTTP client configuration without Redis.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.UserAgent)
	cfg.VendorURL = c.VendorURL
	cfg.Timeout = c.Timeout
	cfg.CacheTTL = c.Cache.TTL
	cfg.StaleWindow = c.Cache.StaleWindow
	return cfg
}

// LoggingConfig builds the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
