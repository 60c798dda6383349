// Package server wires the registration service together: database,
// asset host, rate limiter, event publisher, HTTP boundary and the
// reconciliation loop. It handles graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/devsoc/devsoc-backend/internal/logging"
	"github.com/devsoc/devsoc-backend/internal/server/assets"
	"github.com/devsoc/devsoc-backend/internal/server/config"
	"github.com/devsoc/devsoc-backend/internal/server/events"
	"github.com/devsoc/devsoc-backend/internal/server/httpapi"
	"github.com/devsoc/devsoc-backend/internal/server/ratelimit"
	"github.com/devsoc/devsoc-backend/internal/server/repositories/repomanager"
	"github.com/devsoc/devsoc-backend/internal/server/services"
	"github.com/devsoc/devsoc-backend/internal/server/validation"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	redis      *redis.Client
	publisher  events.Publisher
	http       *httpapi.HTTPServer
	reconciler *services.Reconciler
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	app := &App{config: cfg, logger: logger, db: db}

	host, err := newAssetHost(ctx, cfg, logger)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("asset host init error: %w", err)
	}

	app.publisher, err = newPublisher(cfg, logger)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("event publisher init error: %w", err)
	}

	var limiter ratelimit.Limiter
	limiter, app.redis = newLimiter(cfg, logger)

	store := services.NewRegistrationStore(db, rm, app.publisher, logger)
	coordinator := services.NewCoordinator(store, host, app.publisher, logger)
	coordinator.SetUploadTimeout(cfg.UploadTimeout())
	settings := services.NewSettingsService(db, rm, logger)
	app.reconciler = services.NewReconciler(store, host, cfg.SagaStaleAfter, logger)

	app.http = httpapi.NewHTTPServer(httpapi.Options{
		Address:       cfg.HTTPAddr,
		AdminSecret:   cfg.AdminSecret,
		CORSOrigins:   cfg.CORSOrigins,
		Registrar:     coordinator,
		Registrations: store,
		Settings:      settings,
		Limiter:       limiter,
		Validator:     validation.New(),
		Logger:        logger,
	})

	return app, nil
}

func newAssetHost(ctx context.Context, cfg *config.Config, logger logging.Logger) (assets.Host, error) {
	if !cfg.AssetHostConfigured() {
		logger.Warn(ctx, "asset host credentials not configured, registrations are disabled")
		return assets.UnconfiguredHost{}, nil
	}
	return assets.NewS3Host(ctx, cfg)
}

func newPublisher(cfg *config.Config, logger logging.Logger) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewLogPublisher(logger), nil
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
}

// newLimiter returns a Redis-backed limiter when an address is configured.
// Redis failures admit requests rather than block registrations.
func newLimiter(cfg *config.Config, logger logging.Logger) (ratelimit.Limiter, *redis.Client) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitWindow), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewRedisLimiter(rdb, cfg.RateLimitMax, cfg.RateLimitWindow)
	return ratelimit.NewFailOpen(limiter, logger), rdb
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.reconciler.Run(ctx, app.config.ReconcileInterval)
	}()

	wg.Wait()

	app.close(context.WithoutCancel(ctx))
	app.logger.Info(ctx, "App stopped")
}

func (app *App) close(ctx context.Context) {
	if app.publisher != nil {
		if err := app.publisher.Close(); err != nil {
			app.logger.Warn(ctx, "event publisher close failed", "error", err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(ctx, "redis close failed", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close failed", "error", err)
	}
}
