package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	app "github.com/splito-labs/settlement_gateway/internal/app"
	"github.com/splito-labs/settlement_gateway/internal/app/httpapi"
	"github.com/splito-labs/settlement_gateway/internal/app/storage/postgres"
	"github.com/splito-labs/settlement_gateway/internal/cache"
	"github.com/splito-labs/settlement_gateway/internal/config"
	"github.com/splito-labs/settlement_gateway/internal/platform/migrations"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	api        *httpapi.Server
	httpServer *http.Server
	db         *sql.DB
	redis      *cache.Redis

	stopOnce sync.Once
	stop     chan struct{}
}

// NewApplication loads configuration from the environment and builds the
// gateway.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	return New(context.Background(), cfg, log)
}

// New builds the gateway from cfg. Postgres and redis are used when
// configured; otherwise state stays in process.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("gateway")
	}

	stores, db, rdb, err := buildStores(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}
	a := &Application{cfg: cfg, log: log, db: db, redis: rdb, stop: make(chan struct{})}

	a.app, err = app.New(cfg, stores, log.Named("app"))
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.api, err = httpapi.NewServer(a.app, log.Named("httpapi"))
	if err != nil {
		a.closeStores()
		return nil, err
	}

	a.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.api,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return a, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *Application) Handler() http.Handler { return a.api }

// Run starts background services and the HTTP server and blocks until the
// context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	a.api.StartCleanup(a.stop)

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, the background services and
// the stores.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	a.stopOnce.Do(func() { close(a.stop) })

	var firstErr error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		firstErr = err
	}
	if err := a.app.Stop(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.api.Close(); err != nil {
		a.log.WithError(err).Warn("error closing audit sink")
	}
	a.closeStores()
	return firstErr
}

func (a *Application) closeStores() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
	}
}

// OpenStores connects the configured stores for tools that run the services
// without the HTTP server. The returned func releases them.
func OpenStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	if log == nil {
		log = logger.NewDefault("stores")
	}
	stores, db, rdb, err := buildStores(ctx, cfg, log)
	if err != nil {
		return app.Stores{}, nil, err
	}
	a := &Application{log: log, db: db, redis: rdb}
	return stores, a.closeStores, nil
}

func buildStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (app.Stores, *sql.DB, *cache.Redis, error) {
	var stores app.Stores

	var db *sql.DB
	if cfg.Database.DSN != "" {
		if cfg.Database.Driver != "" && cfg.Database.Driver != "postgres" {
			return stores, nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
		}
		var err error
		db, err = postgres.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
			time.Duration(cfg.Database.ConnMaxLifetime)*time.Second)
		if err != nil {
			return stores, nil, nil, err
		}
		if cfg.Database.Migrate {
			if err := migrations.Up(db, log.Named("migrations")); err != nil {
				db.Close()
				return stores, nil, nil, err
			}
		}
		store := postgres.New(db)
		stores.Settlements = store
		stores.Onboarding = store
		log.Info("using postgres settlement store")
	} else {
		log.Warn("DATABASE_URL not set; settlements are kept in memory")
	}

	var rdb *cache.Redis
	if cfg.Redis.Enabled() {
		var err error
		rdb, err = cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			if db != nil {
				db.Close()
			}
			return stores, nil, nil, err
		}
		stores.Cache = rdb
		stores.Redis = rdb.Client()
		log.Infof("using redis cache at %s", cfg.Redis.Addr)
	}

	return stores, db, rdb, nil
}
