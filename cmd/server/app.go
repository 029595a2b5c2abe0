package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/robfig/cron/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"golang.org/x/sync/errgroup"

	auth "github.com/goliatone/go-auth-tokens"
	"github.com/goliatone/go-auth-tokens/activitymap"
	"github.com/goliatone/go-auth-tokens/config"
	"github.com/goliatone/go-auth-tokens/logging"
	"github.com/goliatone/go-auth-tokens/metrics"
)

type App struct {
	config  *config.Config
	logger  *logging.Logger
	db      *bun.DB
	redis   *redis.Client
	repo    auth.RepositoryManager
	tokens  *auth.TokenService
	auther  *auth.Auther
	metrics *metrics.Metrics
	pruner  *auth.TokenPruner
	cron    *cron.Cron
	srv     *fiber.App
}

func NewApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	app := &App{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(nil),
	}

	steps := []func(context.Context, *App) error{
		WithPersistence,
		WithCache,
		WithAuth,
		WithPruner,
		WithHTTPServer,
	}

	for _, step := range steps {
		if err := step(ctx, app); err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

func (a *App) GetLogger(name string) *logging.Logger {
	return a.logger.Named(name)
}

func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.config.Database

	var db *bun.DB
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		sqldb, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	applied, err := auth.Migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	if len(applied) > 0 {
		app.GetLogger("persistence").Info("migrations applied", "files", applied)
	}

	app.db = db
	app.repo = auth.NewRepositoryManager(db)
	return nil
}

func WithCache(ctx context.Context, app *App) error {
	cfg := app.config.Cache
	if !cfg.Enabled() {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// the cache is optional at runtime too, lookups fall back to the db
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		app.GetLogger("cache").Warn("redis not reachable at startup", "addr", cfg.Addr, "error", err)
	}

	app.redis = client
	return nil
}

func WithAuth(_ context.Context, app *App) error {
	cfg := app.config.Auth

	codec, err := auth.NewTokenCodec(cfg)
	if err != nil {
		return err
	}

	app.tokens = auth.NewTokenService(app.repo, codec).
		WithLogger(app.GetLogger("tokens")).
		WithUsageTracking(cfg.TrackUsage)

	if app.redis != nil {
		app.tokens.WithCache(auth.NewRedisTokenCache(app.redis, app.config.Cache.TTL))
	}

	app.auther = auth.NewAuthenticator(app.repo, app.tokens, cfg).
		WithLogger(app.GetLogger("auth")).
		WithActivitySink(auth.ActivitySinks(
			logging.NewActivitySink(app.logger, activitymap.WithRedactedKeys("email", "identifier")),
			app.metrics,
		))

	return nil
}

func WithPruner(ctx context.Context, app *App) error {
	cfg := app.config.Auth
	if strings.TrimSpace(cfg.PruneSchedule) == "" {
		return nil
	}

	app.pruner = auth.NewTokenPruner(app.repo.Tokens(), cfg.PruneRetention).
		WithLogger(app.GetLogger("pruner")).
		WithObserver(app.metrics.ObservePrune)

	app.cron = cron.New()
	if _, err := app.pruner.Schedule(ctx, app.cron, cfg.PruneSchedule); err != nil {
		return fmt.Errorf("schedule token pruner %q: %w", cfg.PruneSchedule, err)
	}

	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	cfg := app.config.Server
	httpLogger := app.GetLogger("http")

	srv := fiber.New(fiber.Config{
		AppName:               "go-auth-tokens",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          auth.NewErrorHandler(httpLogger),
	})

	srv.Use(app.metrics.Middleware(), logging.RequestLogger(httpLogger))

	controller := auth.NewAPIController(
		auth.WithAPIAuthenticator(app.auther),
		auth.WithAPILogger(httpLogger),
		auth.WithAPIContextKey(app.config.Auth.GetContextKey()),
	)

	protected := auth.NewHTTPAuthenticator(app.tokens, app.config.Auth).
		WithLogger(httpLogger).
		ProtectedRoute()

	auth.RegisterHealthRoute(srv, controller)
	auth.RegisterAPIRoutes(srv.Group(cfg.APIPrefix), controller, protected)

	if cfg.MetricsPath != "" {
		srv.Get(cfg.MetricsPath, app.metrics.Handler())
	}

	app.srv = srv
	return nil
}

// Run serves HTTP and runs the pruner until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	if a.cron != nil {
		a.cron.Start()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("listening", "addr", a.config.Server.Addr, "api_prefix", a.config.Server.APIPrefix)
		return a.srv.Listen(a.config.Server.Addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.srv != nil {
		err = a.srv.ShutdownWithContext(ctx)
	}

	if a.cron != nil {
		select {
		case <-a.cron.Stop().Done():
		case <-ctx.Done():
		}
	}

	a.Close()
	return err
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
