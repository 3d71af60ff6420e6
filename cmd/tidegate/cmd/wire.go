package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/solatis/tidegate/internal/action"
	"github.com/solatis/tidegate/internal/core/api"
	"github.com/solatis/tidegate/internal/core/config"
	"github.com/solatis/tidegate/internal/core/db"
	"github.com/solatis/tidegate/internal/core/logging"
	"github.com/solatis/tidegate/internal/ipintel"
	"github.com/solatis/tidegate/internal/rules"
)

// app holds the process-wide components shared by commands.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	db      *sqlx.DB
	queries *db.Queries
	closers []io.Closer
}

// setup loads configuration and builds the logger. The database is opened
// when the configuration needs it or requireDB is set.
func setup(ctx context.Context, requireDB bool) (*app, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	logger, logCloser := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})

	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	if requireDB || cfg.NeedsDatabase() {
		if err := a.openDB(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openDB(ctx context.Context) error {
	url := dbURL
	if url == "" {
		url = os.Getenv("TG_DB_URL")
	}
	if url == "" {
		return fmt.Errorf("--db-url or TG_DB_URL required")
	}

	database, err := db.Open(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, database)

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}
	a.db = database
	a.queries = queries
	return nil
}

// Close releases components in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) ruleSource() rules.Source {
	if a.cfg.Rules.Source == config.RulesSourceDB {
		return rules.NewSQLSource(a.queries)
	}
	return rules.NewFileSource(a.cfg.Rules.Path)
}

func (a *app) ipFetcher() (ipintel.Fetcher, error) {
	c := a.cfg.IPIntel
	if c.Provider == config.ProviderGeoIP {
		fetcher, err := ipintel.NewGeoIPFetcher(ipintel.GeoIPConfig{
			CityDBPath:      c.GeoIPCityDB,
			ASNDBPath:       c.GeoIPASNDB,
			AnonymousDBPath: c.GeoIPAnonymousDB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, fetcher)
		return fetcher, nil
	}
	return ipintel.NewIPAPIFetcher(c.Endpoint, c.Fields, nil), nil
}

func (a *app) ipCache(ctx context.Context) (ipintel.Cache, error) {
	c := a.cfg.IPIntel
	switch c.Cache {
	case config.CacheMemory:
		return ipintel.NewMemoryCache(c.CacheSize)
	case config.CacheRedis:
		cache, err := ipintel.NewRedisCache(ctx, ipintel.RedisConfig{
			Addr:     c.RedisAddr,
			Password: config.RedisPassword(),
			DB:       c.RedisDB,
			Prefix:   c.RedisPrefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cache)
		return cache, nil
	case config.CacheDB:
		return ipintel.NewSQLCache(a.queries), nil
	default:
		return ipintel.NewFileCache(c.CacheDir)
	}
}

// decisionService assembles the decision path. withLog enables the
// decision log under the configured data directory.
func (a *app) decisionService(ctx context.Context, withLog bool) (*api.DecisionService, error) {
	fetcher, err := a.ipFetcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create ip fetcher: %w", err)
	}
	cache, err := a.ipCache(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create ip cache: %w", err)
	}

	resolver := ipintel.NewResolver(fetcher, cache, a.cfg.IPIntel.Timeout, a.logger)
	engine := rules.NewEngine(a.ruleSource(), nil, a.logger)
	actions := action.NewResolver(action.NewSigner(nil))

	var decisionLog *api.DecisionLog
	if withLog && a.cfg.DecisionLog {
		decisionLog, err = api.NewDecisionLog(a.cfg.Server.DataDir)
		if err != nil {
			return nil, err
		}
	}

	return api.NewDecisionService(engine, resolver, actions, decisionLog, a.logger)
}
