package setup

import (
	"context"
	"errors"
	"fmt"

	"github.com/itchan-dev/itforum/backend/internal/handler"
	"github.com/itchan-dev/itforum/backend/internal/service"
	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/backend/internal/store/cached"
	"github.com/itchan-dev/itforum/backend/internal/store/instrumented"
	"github.com/itchan-dev/itforum/backend/internal/store/memory"
	"github.com/itchan-dev/itforum/backend/internal/store/mongostore"
	"github.com/itchan-dev/itforum/backend/internal/store/pebblestore"
	"github.com/itchan-dev/itforum/backend/internal/store/sqlstore"
	"github.com/itchan-dev/itforum/shared/config"
	"github.com/itchan-dev/itforum/shared/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// Dependencies holds everything the server and the CLI commands run on.
type Dependencies struct {
	Config     *config.Config
	Store      store.IndexStore
	Forum      *service.Forum
	Dispatcher service.Dispatcher
	Handler    *handler.Handler
}

// OpenStore opens the configured backend. SQL backends are migrated.
func OpenStore(ctx context.Context, cfg *config.Config) (store.IndexStore, error) {
	sc := cfg.Public.Store
	switch sc.Backend {
	case "memory":
		return memory.New(), nil
	case "postgres":
		s, err := sqlstore.OpenPostgres(ctx, cfg.Private.Pg.DSN())
		if err != nil {
			return nil, err
		}
		return s, migrate(ctx, s)
	case "sqlite":
		s, err := sqlstore.OpenSQLite(ctx, sc.Sqlite.Path)
		if err != nil {
			return nil, err
		}
		return s, migrate(ctx, s)
	case "pebble":
		s, err := pebblestore.Open(sc.Pebble.Path)
		if err != nil {
			return nil, err
		}
		registerCollector(pebblestore.NewCollector(s.DB()))
		return s, nil
	case "mongo":
		return mongostore.Open(ctx, cfg.Private.MongoURI, sc.Mongo.Database)
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}

func migrate(ctx context.Context, s *sqlstore.Store) error {
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return err
	}
	return nil
}

func registerCollector(c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			logger.Log.Warn("failed to register collector", "error", err)
		}
	}
}

// Wrap layers the record cache and the metrics decorator over a backend.
func Wrap(s store.IndexStore, cfg config.Store) (store.IndexStore, error) {
	wrapped := s
	if cfg.CacheSize > 0 {
		c, err := cached.New(wrapped, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		wrapped = c
	}
	return instrumented.New(wrapped, cfg.Backend), nil
}

// SetupDependencies initializes all dependencies required for the application.
// inline runs background tasks on the caller's goroutine, as one-shot
// commands need them finished before exit.
func SetupDependencies(ctx context.Context, cfg *config.Config, inline bool) (*Dependencies, error) {
	raw, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := Wrap(raw, cfg.Public.Store)
	if err != nil {
		raw.Close()
		return nil, err
	}

	var dispatcher service.Dispatcher
	if inline {
		dispatcher = service.InlineDispatcher{Timeout: cfg.Public.Dispatcher.TaskTimeout}
	} else {
		dispatcher = service.NewActorDispatcher(cfg.Public.Dispatcher.Workers, cfg.Public.Dispatcher.TaskTimeout)
	}

	forum := service.New(s, cfg.Public.Threads, service.Deps{Dispatcher: dispatcher})
	logger.Log.Info("dependencies ready", "backend", cfg.Public.Store.Backend, "cache_size", cfg.Public.Store.CacheSize)

	return &Dependencies{
		Config:     cfg,
		Store:      s,
		Forum:      forum,
		Dispatcher: dispatcher,
		Handler:    handler.New(s, cfg),
	}, nil
}

// Close drains background tasks before closing the store they write to.
func (d *Dependencies) Close() {
	d.Dispatcher.Shutdown()
	if err := d.Store.Close(); err != nil {
		logger.Log.Error("failed to close store", "error", err)
	}
}
