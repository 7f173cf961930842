package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CRT-AUTO/bridge-core/pkg/aiclient"
	"github.com/CRT-AUTO/bridge-core/pkg/api"
	"github.com/CRT-AUTO/bridge-core/pkg/archive"
	"github.com/CRT-AUTO/bridge-core/pkg/auth"
	"github.com/CRT-AUTO/bridge-core/pkg/config"
	"github.com/CRT-AUTO/bridge-core/pkg/credentials"
	"github.com/CRT-AUTO/bridge-core/pkg/credrefresh"
	"github.com/CRT-AUTO/bridge-core/pkg/database"
	"github.com/CRT-AUTO/bridge-core/pkg/observability"
	"github.com/CRT-AUTO/bridge-core/pkg/providerclient"
	"github.com/CRT-AUTO/bridge-core/pkg/store"
	"github.com/CRT-AUTO/bridge-core/pkg/worker"
)

// app wires together every component a running bridge server (or a one-shot
// operational subcommand) needs.
type app struct {
	cfg       *config.Config
	db        *database.Connector
	store     *store.Store
	locker    store.Locker
	encryptor *credentials.Encryptor
	profiles  map[string]*config.PlatformProfile
	guard     *auth.OperatorGuard
	limiter   *api.GlobalRateLimiter
	worker    *worker.Worker
	refresher *credrefresh.Refresher
	obs       *observability.Provider
	logger    *slog.Logger
}

// buildApp loads configuration and constructs every dependency. The
// returned cleanup func releases connections and must always be deferred.
func buildApp(ctx context.Context, logger *slog.Logger) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, func() {}, fmt.Errorf("load config: %w", err)
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	backend := database.BackendPostgres
	dsn := cfg.DatabaseURL
	if cfg.IsLiteMode() {
		backend = database.BackendSQLite
		dataDir := "data"
		if err := os.MkdirAll(dataDir, 0750); err != nil {
			return nil, cleanup, fmt.Errorf("create lite-mode data dir: %w", err)
		}
		dsn = dataDir + "/bridge.db"
		logger.Info("no DATABASE_URL set, falling back to lite mode", "path", dsn)
	}

	conn, err := database.Connect(database.Config{Backend: backend, DSN: dsn})
	if err != nil {
		return nil, cleanup, fmt.Errorf("connect database: %w", err)
	}
	cleanups = append(cleanups, func() { _ = conn.Close() })

	if err := store.Migrate(ctx, conn.DB()); err != nil {
		return nil, cleanup, fmt.Errorf("run migrations: %w", err)
	}

	st := store.New(conn.DB(), backend)

	var locker store.Locker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		cleanups = append(cleanups, func() { _ = client.Close() })
		locker = store.NewRedisLocker(client)
	} else {
		locker = store.NewInProcessLocker()
	}

	encryptor, err := credentials.NewEncryptor([]byte(cfg.CredentialEncryptionKey))
	if err != nil {
		return nil, cleanup, fmt.Errorf("build credential encryptor: %w", err)
	}

	profiles, err := config.LoadAllProfiles(cfg.PlatformProfilesPath)
	if err != nil {
		logger.Warn("failed to load platform profiles, outbound sends will be marked undelivered", "error", err)
		profiles = map[string]*config.PlatformProfile{}
	}

	archiver, err := archive.NewSink(ctx, cfg.ArchiveBackend, cfg.ArchiveBucket)
	if err != nil {
		return nil, cleanup, fmt.Errorf("build archive sink: %w", err)
	}

	var obs *observability.Provider
	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obsCfg.ServiceName = "bridge-core"
		obs, err = observability.New(ctx, obsCfg)
		if err != nil {
			logger.Warn("failed to initialize observability provider, continuing without it", "error", err)
			obs = nil
		} else {
			cleanups = append(cleanups, func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = obs.Shutdown(shutdownCtx)
			})
		}
	}

	w := &worker.Worker{
		Store:             st,
		Locker:            locker,
		AI:                aiclient.New(cfg.AIRuntimeBaseURL, cfg.AIRuntimeTimeout),
		Send:              providerclient.New(providerclient.DefaultTimeout),
		Encryptor:         encryptor,
		Profiles:          profiles,
		Archiver:          archiver,
		Obs:               obs,
		StaleClaimTimeout: cfg.StaleClaimTimeout,
		SessionTTL:        time.Duration(cfg.SessionTTLDays) * 24 * time.Hour,
		Logger:            logger,
	}

	refresher := &credrefresh.Refresher{
		Store:     st,
		Locker:    locker,
		Exchange:  credrefresh.NewProviderTokenExchange(os.Getenv("PLATFORM_APP_ID"), os.Getenv("PLATFORM_APP_SECRET")),
		Encryptor: encryptor,
		Logger:    logger,
	}

	a := &app{
		cfg:       cfg,
		db:        conn,
		store:     st,
		locker:    locker,
		encryptor: encryptor,
		profiles:  profiles,
		guard:     auth.NewOperatorGuard(cfg.OperatorJWTSecret),
		limiter:   api.NewGlobalRateLimiter(10, 20),
		worker:    w,
		refresher: refresher,
		obs:       obs,
		logger:    logger,
	}

	return a, cleanup, nil
}

// runBackgroundLoops drives the worker drain loop and the credential
// refresh sweep on independent tickers until ctx is done.
func (a *app) runBackgroundLoops(ctx context.Context) {
	go a.drainLoop(ctx)
	go a.refreshLoop(ctx)
}

func (a *app) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := a.worker.Drain(ctx, 10)
			if err != nil {
				a.logger.Error("drain loop error", "error", err)
				continue
			}
			if result.Claimed > 0 {
				a.logger.Info("drain pass", "claimed", result.Claimed, "completed", result.Completed,
					"requeued", result.Requeued, "dead_letter", result.DeadLetter)
			}
		}
	}
}

func (a *app) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(credrefresh.DefaultInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := a.refresher.RunSweep(ctx)
			if err != nil {
				a.logger.Error("credential refresh sweep error", "error", err)
				continue
			}
			a.logger.Info("credential refresh sweep complete", "connections", len(results))
		}
	}
}

// mux assembles the HTTP routing tree and middleware chain.
func (a *app) mux() http.Handler {
	routes := http.NewServeMux()

	routes.HandleFunc("GET /api/webhooks/{tenant}/{platform}/{nonce}", a.handleWebhookChallenge)
	routes.HandleFunc("POST /api/webhooks/{tenant}/{platform}/{nonce}", a.handleWebhookDelivery)
	routes.HandleFunc("POST /api/data-deletion", a.handleDataDeletion)

	routes.Handle("POST /drain", a.guard.Middleware(http.HandlerFunc(a.handleDrain)))
	routes.Handle("GET /drain", a.guard.Middleware(http.HandlerFunc(a.handleDrain)))
	routes.Handle("POST /session-cleanup", a.guard.Middleware(http.HandlerFunc(a.handleSessionCleanup)))
	routes.Handle("GET /session-cleanup", a.guard.Middleware(http.HandlerFunc(a.handleSessionCleanup)))
	routes.Handle("POST /api/refresh/{connection_id}", a.guard.Middleware(http.HandlerFunc(a.handleRefreshConnection)))

	var handler http.Handler = routes
	handler = a.limiter.Middleware(handler)
	handler = auth.CORSMiddleware(nil)(handler)
	handler = auth.RequestIDMiddleware(handler)
	return handler
}
