package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
moltbook:
  api_key: mb-secret
  user_agent: moltgraph-test
  requests_per_minute: 30
  max_retries: 3
  backoff_initial_ms: 100
  backoff_max_ms: 500
  rate_limit_cooldown_ms: 2000
  timeout_seconds: 45
neo4j:
  uri: bolt://graph:7687
  user: crawler
  password: graph-secret
  database: moltbook
crawl:
  page_size: 25
  max_pages: 10
  views: "new,top:week"
  comments_limit: 50
  profile_refresh_days: 3
scrape:
  enabled: true
  base_url: https://www.moltbook.com
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	SetDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read config: %v", err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Moltbook.APIKey != "mb-secret" || cfg.Moltbook.RequestsPerMinute != 30 {
		t.Fatalf("expected moltbook overrides to apply: %+v", cfg.Moltbook)
	}
	if cfg.Neo4j.URI != "bolt://graph:7687" || cfg.Neo4j.Database != "moltbook" {
		t.Fatalf("expected neo4j overrides to apply: %+v", cfg.Neo4j)
	}
	if cfg.Crawl.PageSize != 25 || cfg.Crawl.Views != "new,top:week" {
		t.Fatalf("expected crawl overrides to apply: %+v", cfg.Crawl)
	}
	if cfg.Crawl.MaxStalePages != 4 || cfg.Crawl.MaxRepeatPages != 2 {
		t.Fatalf("expected scan threshold defaults to hold: %+v", cfg.Crawl)
	}
	if !cfg.Scrape.Enabled {
		t.Fatal("expected scrape to be enabled")
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging to be off")
	}
	if got := cfg.Moltbook.RequestTimeout(); got != 45*time.Second {
		t.Fatalf("expected request timeout 45s, got %v", got)
	}
	if got := cfg.Moltbook.BackoffInitial(); got != 100*time.Millisecond {
		t.Fatalf("expected backoff seed 100ms, got %v", got)
	}
	if got := cfg.Moltbook.RateLimitCooldown(); got != 2*time.Second {
		t.Fatalf("expected cooldown 2s, got %v", got)
	}
	if got := cfg.Crawl.ProfileStaleness(); got != 72*time.Hour {
		t.Fatalf("expected staleness 72h, got %v", got)
	}
}

func TestLoadDefaultsOnly(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.Set("moltbook.api_key", "k")
	v.Set("neo4j.password", "p")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Moltbook.BaseURL != "https://www.moltbook.com/api/v1" {
		t.Fatalf("unexpected base url %q", cfg.Moltbook.BaseURL)
	}
	if cfg.Moltbook.RequestsPerMinute != 80 || cfg.Moltbook.MaxRetries != 8 {
		t.Fatalf("expected transport defaults: %+v", cfg.Moltbook)
	}
	if cfg.Crawl.PageSize != 50 || cfg.Crawl.CommentsLimit != 200 {
		t.Fatalf("expected crawl defaults: %+v", cfg.Crawl)
	}
	if !strings.HasPrefix(cfg.Crawl.Views, "new,") {
		t.Fatalf("expected default views to start with new, got %q", cfg.Crawl.Views)
	}
	if cfg.Scrape.Enabled {
		t.Fatal("expected scrape disabled by default")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Moltbook: MoltbookConfig{
			APIKey:            "k",
			RequestsPerMinute: 80,
			MaxRetries:        8,
			TimeoutSeconds:    60,
		},
		Neo4j: Neo4jConfig{URI: "bolt://localhost:7687", User: "neo4j", Password: "p"},
		Crawl: CrawlConfig{PageSize: 50, MaxStalePages: 4, MaxRepeatPages: 2},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "missing api key",
			cfg: func() Config {
				c := base
				c.Moltbook.APIKey = ""
				return c
			}(),
			want: "moltbook.api_key",
		},
		{
			name: "missing neo4j password",
			cfg: func() Config {
				c := base
				c.Neo4j.Password = ""
				return c
			}(),
			want: "neo4j.password",
		},
		{
			name: "missing neo4j uri",
			cfg: func() Config {
				c := base
				c.Neo4j.URI = ""
				return c
			}(),
			want: "neo4j.uri",
		},
		{
			name: "invalid rpm",
			cfg: func() Config {
				c := base
				c.Moltbook.RequestsPerMinute = 0
				return c
			}(),
			want: "requests_per_minute",
		},
		{
			name: "invalid page size",
			cfg: func() Config {
				c := base
				c.Crawl.PageSize = 0
				return c
			}(),
			want: "crawl.page_size",
		},
		{
			name: "scrape without base url",
			cfg: func() Config {
				c := base
				c.Scrape.Enabled = true
				return c
			}(),
			want: "scrape.base_url",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
