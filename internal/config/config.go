// Package config loads and validates search service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sitesearch/internal/siteurl"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
	Sites   []SiteConfig  `mapstructure:"sites"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Search  SearchConfig  `mapstructure:"search"`
	DB      DBConfig      `mapstructure:"db"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SiteConfig is one crawl target.
type SiteConfig struct {
	URL  string `mapstructure:"url"`
	Name string `mapstructure:"name"`
}

// FetchConfig governs page retrieval.
type FetchConfig struct {
	UserAgent             string  `mapstructure:"user_agent"`
	Referrer              string  `mapstructure:"referrer"`
	AcceptLanguage        string  `mapstructure:"accept_language"`
	TimeoutMinMs          int     `mapstructure:"timeout_min_ms"`
	TimeoutMaxMs          int     `mapstructure:"timeout_max_ms"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	MaxRPSPerSite         float64 `mapstructure:"max_rps_per_site"`
	RespectRobots         bool    `mapstructure:"respect_robots"`
	// MaxBodyBytes caps downloaded page bodies; 0 reads them whole.
	MaxBodyBytes int `mapstructure:"max_body_bytes"`
}

// CrawlerConfig governs the crawl task tree.
type CrawlerConfig struct {
	Parallelism int `mapstructure:"parallelism"`
}

// SearchConfig bounds query pagination and snippets.
type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
	SnippetWords int `mapstructure:"snippet_words"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SEARCH")
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
	for i := range cfg.Sites {
		cfg.Sites[i].URL = siteurl.Normalize(cfg.Sites[i].URL)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("fetch.user_agent", "SiteSearchBot/1.0")
	v.SetDefault("fetch.referrer", "https://www.google.com")
	v.SetDefault("fetch.accept_language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	v.SetDefault("fetch.timeout_min_ms", 500)
	v.SetDefault("fetch.timeout_max_ms", 5000)
	v.SetDefault("fetch.request_timeout_seconds", 30)
	v.SetDefault("fetch.max_rps_per_site", 0)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.max_body_bytes", 0)
	v.SetDefault("crawler.parallelism", 8)
	v.SetDefault("search.default_limit", 20)
	v.SetDefault("search.max_limit", 500)
	v.SetDefault("search.snippet_words", 30)
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.migrate", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Fetch.TimeoutMinMs < 0 || c.Fetch.TimeoutMaxMs < 0 {
		return fmt.Errorf("fetch.timeout_min_ms and fetch.timeout_max_ms must be >= 0")
	}
	if c.Fetch.TimeoutMinMs > c.Fetch.TimeoutMaxMs {
		return fmt.Errorf("fetch.timeout_min_ms must be <= fetch.timeout_max_ms")
	}
	if c.Fetch.MaxRPSPerSite < 0 {
		return fmt.Errorf("fetch.max_rps_per_site must be >= 0")
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return fmt.Errorf("fetch.max_body_bytes must be >= 0")
	}
	if c.Crawler.Parallelism <= 0 {
		return fmt.Errorf("crawler.parallelism must be > 0")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.default_limit must be > 0 and <= search.max_limit")
	}
	seen := make(map[string]struct{}, len(c.Sites))
	for i, site := range c.Sites {
		if site.URL == "" {
			return fmt.Errorf("sites[%d].url must be set", i)
		}
		if !siteurl.Valid(site.URL) {
			return fmt.Errorf("sites[%d].url %q is not a site root url", i, site.URL)
		}
		key := strings.ToLower(site.URL)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("sites[%d].url %q is configured twice", i, site.URL)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// PolitenessDelay returns the configured [min, max) sleep bounds.
func (c Config) PolitenessDelay() (time.Duration, time.Duration) {
	return time.Duration(c.Fetch.TimeoutMinMs) * time.Millisecond,
		time.Duration(c.Fetch.TimeoutMaxMs) * time.Millisecond
}

// RequestTimeout converts fetch.request_timeout_seconds into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Fetch.RequestTimeoutSeconds) * time.Second
}
