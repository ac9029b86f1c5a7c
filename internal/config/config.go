// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Moltbook MoltbookConfig `mapstructure:"moltbook"`
	Neo4j    Neo4jConfig    `mapstructure:"neo4j"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// MoltbookConfig governs the upstream API client.
type MoltbookConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	APIKey              string `mapstructure:"api_key"`
	UserAgent           string `mapstructure:"user_agent"`
	RequestsPerMinute   int    `mapstructure:"requests_per_minute"`
	MaxRetries          int    `mapstructure:"max_retries"`
	BackoffInitialMs    int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs        int    `mapstructure:"backoff_max_ms"`
	RateLimitCooldownMs int    `mapstructure:"rate_limit_cooldown_ms"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
}

// Neo4jConfig controls access to the graph database.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// CrawlConfig governs scan and enrichment behavior for a crawl run.
type CrawlConfig struct {
	PageSize       int    `mapstructure:"page_size"`
	MaxPages       int    `mapstructure:"max_pages"`
	MaxStalePages  int    `mapstructure:"max_stale_pages"`
	MaxRepeatPages int    `mapstructure:"max_repeat_pages"`
	Views          string `mapstructure:"views"`

	Comments               bool `mapstructure:"comments"`
	CommentsLimit          int  `mapstructure:"comments_limit"`
	CommentsFromPostDetail bool `mapstructure:"comments_from_post_details"`
	FetchPostDetails       bool `mapstructure:"fetch_post_details"`

	SubmoltTopLimit     int    `mapstructure:"submolt_top_limit"`
	EnrichSubmolts      bool   `mapstructure:"enrich_submolts"`
	EnrichSubmoltsLimit int    `mapstructure:"enrich_submolts_limit"`
	SubmoltFeeds        bool   `mapstructure:"submolt_feeds"`
	SubmoltFeedMaxPages int    `mapstructure:"submolt_feed_max_pages"`
	SubmoltFeedSort     string `mapstructure:"submolt_feed_sort"`
	SubmoltFeedLimit    int    `mapstructure:"submolt_feed_limit"`

	RefreshModerators bool `mapstructure:"refresh_moderators"`
	ModeratorsLimit   int  `mapstructure:"moderators_limit"`

	FetchProfiles       bool `mapstructure:"fetch_profiles"`
	ProfileLimit        int  `mapstructure:"profile_limit"`
	ProfileRefreshDays  int  `mapstructure:"profile_refresh_days"`
	ProfileRefreshLimit int  `mapstructure:"profile_refresh_limit"`

	FeedSnapshot bool   `mapstructure:"feed_snapshot"`
	FeedSort     string `mapstructure:"feed_sort"`
	FeedLimit    int    `mapstructure:"feed_limit"`
}

// ScrapeConfig controls the best-effort HTML profile scraper.
type ScrapeConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Limit   int    `mapstructure:"limit"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from the supplied Viper instance.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// SetDefaults registers every tunable's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("moltbook.base_url", "https://www.moltbook.com/api/v1")
	v.SetDefault("moltbook.user_agent", "MoltGraphCrawler/0.1")
	v.SetDefault("moltbook.requests_per_minute", 80)
	v.SetDefault("moltbook.max_retries", 8)
	v.SetDefault("moltbook.backoff_initial_ms", 1500)
	v.SetDefault("moltbook.backoff_max_ms", 60000)
	v.SetDefault("moltbook.rate_limit_cooldown_ms", 30000)
	v.SetDefault("moltbook.timeout_seconds", 60)

	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.database", "")

	v.SetDefault("crawl.page_size", 50)
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("crawl.max_stale_pages", 4)
	v.SetDefault("crawl.max_repeat_pages", 2)
	v.SetDefault("crawl.views", "new,top:day,top:week,top:month,top:year,top:all,hot:day,hot:week")
	v.SetDefault("crawl.comments", true)
	v.SetDefault("crawl.comments_limit", 200)
	v.SetDefault("crawl.comments_from_post_details", true)
	v.SetDefault("crawl.fetch_post_details", false)
	v.SetDefault("crawl.submolt_top_limit", 100)
	v.SetDefault("crawl.enrich_submolts", false)
	v.SetDefault("crawl.enrich_submolts_limit", 0)
	v.SetDefault("crawl.submolt_feeds", false)
	v.SetDefault("crawl.submolt_feed_max_pages", 0)
	v.SetDefault("crawl.submolt_feed_sort", "new")
	v.SetDefault("crawl.submolt_feed_limit", 0)
	v.SetDefault("crawl.refresh_moderators", true)
	v.SetDefault("crawl.moderators_limit", 500)
	v.SetDefault("crawl.fetch_profiles", true)
	v.SetDefault("crawl.profile_limit", 0)
	v.SetDefault("crawl.profile_refresh_days", 7)
	v.SetDefault("crawl.profile_refresh_limit", 500)
	v.SetDefault("crawl.feed_snapshot", true)
	v.SetDefault("crawl.feed_sort", "hot")
	v.SetDefault("crawl.feed_limit", 100)

	v.SetDefault("scrape.enabled", false)
	v.SetDefault("scrape.base_url", "https://www.moltbook.com")
	v.SetDefault("scrape.limit", 0)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits. Missing
// connection credentials are the only fatal startup condition.
func (c Config) Validate() error {
	if c.Moltbook.APIKey == "" {
		return fmt.Errorf("moltbook.api_key is required")
	}
	if c.Neo4j.URI == "" {
		return fmt.Errorf("neo4j.uri is required")
	}
	if c.Neo4j.User == "" {
		return fmt.Errorf("neo4j.user is required")
	}
	if c.Neo4j.Password == "" {
		return fmt.Errorf("neo4j.password is required")
	}
	if c.Moltbook.RequestsPerMinute <= 0 {
		return fmt.Errorf("moltbook.requests_per_minute must be > 0")
	}
	if c.Moltbook.MaxRetries <= 0 {
		return fmt.Errorf("moltbook.max_retries must be > 0")
	}
	if c.Moltbook.TimeoutSeconds <= 0 {
		return fmt.Errorf("moltbook.timeout_seconds must be > 0")
	}
	if c.Crawl.PageSize <= 0 {
		return fmt.Errorf("crawl.page_size must be > 0")
	}
	if c.Crawl.MaxStalePages <= 0 {
		return fmt.Errorf("crawl.max_stale_pages must be > 0")
	}
	if c.Crawl.MaxRepeatPages <= 0 {
		return fmt.Errorf("crawl.max_repeat_pages must be > 0")
	}
	if c.Scrape.Enabled && c.Scrape.BaseURL == "" {
		return fmt.Errorf("scrape.base_url must be set when scraping is enabled")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c MoltbookConfig) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffInitial returns the retry backoff seed.
func (c MoltbookConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry backoff ceiling.
func (c MoltbookConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// RateLimitCooldown returns the fallback wait applied to a 429 response
// that carries no usable rate-limit headers.
func (c MoltbookConfig) RateLimitCooldown() time.Duration {
	return time.Duration(c.RateLimitCooldownMs) * time.Millisecond
}

// ProfileStaleness converts the refresh window into a duration.
func (c CrawlConfig) ProfileStaleness() time.Duration {
	return time.Duration(c.ProfileRefreshDays) * 24 * time.Hour
}
