// Package app initializes and holds the long-lived services of one crawler
// process, acting as a dependency injection container. Built once at startup
// and handed to commands through the cobra context.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/moltgraph/moltgraph/internal/config"
	"github.com/moltgraph/moltgraph/internal/graph"
	"github.com/moltgraph/moltgraph/internal/logging"
	"github.com/moltgraph/moltgraph/internal/moltbook"
	"github.com/moltgraph/moltgraph/internal/scrape"
	"github.com/moltgraph/moltgraph/internal/telemetry"
)

// App holds the shared services: logger, graph store, API client, optional
// profile scraper and metrics server.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *graph.Store
	client  *moltbook.Client
	scraper *scrape.Scraper // nil when scraping is disabled
	metrics *http.Server    // nil when no metrics address is configured
}

// Config returns the validated configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the Neo4j graph store.
func (a *App) Store() *graph.Store {
	return a.store
}

// Client returns the Moltbook API client.
func (a *App) Client() *moltbook.Client {
	return a.client
}

// Scraper returns the HTML profile scraper, or nil when disabled.
func (a *App) Scraper() *scrape.Scraper {
	return a.scraper
}

// NewApp builds the service container from the global Viper state. This is
// the fail-fast point: missing connection credentials or an unreachable
// graph database error out here, before any crawl stage runs.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	logger.Info("initializing services")

	store, err := graph.New(ctx, graph.Config{
		URI:      cfg.Neo4j.URI,
		User:     cfg.Neo4j.User,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing graph store: %w", err)
	}

	client := moltbook.New(moltbook.Config{
		BaseURL:           cfg.Moltbook.BaseURL,
		APIKey:            cfg.Moltbook.APIKey,
		UserAgent:         cfg.Moltbook.UserAgent,
		RequestsPerMinute: cfg.Moltbook.RequestsPerMinute,
		MaxRetries:        cfg.Moltbook.MaxRetries,
		BackoffInitial:    cfg.Moltbook.BackoffInitial(),
		BackoffMax:        cfg.Moltbook.BackoffMax(),
		RateLimitCooldown: cfg.Moltbook.RateLimitCooldown(),
		Timeout:           cfg.Moltbook.RequestTimeout(),
	}, logger)

	var scraper *scrape.Scraper
	if cfg.Scrape.Enabled {
		scraper, err = scrape.New(scrape.Config{
			BaseURL:        cfg.Scrape.BaseURL,
			UserAgent:      cfg.Moltbook.UserAgent,
			RequestTimeout: cfg.Moltbook.RequestTimeout(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initializing scraper: %w", err)
		}
	}

	var metrics *http.Server
	if cfg.Metrics.Addr != "" {
		metrics = telemetry.NewServer(cfg.Metrics.Addr)
		go func() {
			logger.Info("metrics server listening", zap.String("addr", metrics.Addr))
			if err := metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("services initialized")
	return &App{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		client:  client,
		scraper: scraper,
		metrics: metrics,
	}, nil
}

// Close shuts the services down. Called by a cobra hook after the command
// finishes; safe on a partially constructed App.
func (a *App) Close(ctx context.Context) {
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("shutting down metrics server", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.logger.Warn("closing graph store", zap.Error(err))
		}
	}
	if a.logger != nil {
		// best effort; stderr sync fails on some platforms
		_ = a.logger.Sync()
	}
}
