package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/avflow/avflow/internal/external/alphavantage"
	"github.com/avflow/avflow/internal/extract"
	"github.com/avflow/avflow/internal/landing"
	"github.com/avflow/avflow/internal/symbols"
	"github.com/avflow/avflow/internal/watermark"
	"github.com/avflow/avflow/pkg/config"
	"github.com/avflow/avflow/pkg/database"
	"github.com/avflow/avflow/pkg/logger"
	"github.com/avflow/avflow/pkg/redis"
)

// app holds the shared wiring every command needs: config, logger,
// Postgres, and the watermark store on top of it.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	rdb      *redis.Client
	store    *watermark.Store
	universe *symbols.Universe
}

// newApp loads config and connects to Postgres and (optionally) Redis.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	rdb, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		rdb:      rdb,
		store:    watermark.NewStore(db.Pool, log),
		universe: symbols.NewUniverse(db.Pool, log),
	}, nil
}

func (a *app) close() {
	a.rdb.Close()
	a.db.Close()
}

// ensureSchema creates the etl schema objects.
func (a *app) ensureSchema(ctx context.Context) error {
	if err := a.store.EnsureSchema(ctx); err != nil {
		return err
	}
	return a.universe.EnsureSchema(ctx)
}

// newClient builds the Alpha Vantage client with the shared daily
// quota when Redis is enabled.
func (a *app) newClient() *alphavantage.Client {
	client := alphavantage.NewClient(a.cfg, a.log)
	if a.rdb.Enabled() {
		limiter := redis.NewRateLimiter(a.rdb, "avflow")
		client.WithDailyQuota(limiter, a.cfg.AlphaVantage.DailyQuota)
	}
	return client
}

// newRunner wires a full extraction runner (client + landing +
// watermark engine).
func (a *app) newRunner(ctx context.Context, workers int) (*extract.Runner, error) {
	if workers <= 0 {
		workers = a.cfg.Extract.Workers
	}

	lander, err := landing.New(ctx, a.cfg, a.log)
	if err != nil {
		return nil, fmt.Errorf("landing: %w", err)
	}

	filter := watermark.NewFilter(a.store, a.log)
	updater := watermark.NewUpdater(a.store, a.log)

	return extract.NewRunner(a.newClient(), lander, filter, updater, workers, a.log), nil
}

// maskPassword hides credentials in a connection string for display.
func maskPassword(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at == -1 || scheme == -1 || at < scheme {
		return url
	}
	creds := url[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon != -1 {
		return url[:scheme+3] + creds[:colon] + ":****" + url[at:]
	}
	return url
}
