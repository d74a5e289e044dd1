// Package main is the entrypoint for the GreenEye API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/greeneye/internal/ai"
	"github.com/kiranshivaraju/greeneye/internal/analysis"
	"github.com/kiranshivaraju/greeneye/internal/api"
	"github.com/kiranshivaraju/greeneye/internal/api/handler"
	mw "github.com/kiranshivaraju/greeneye/internal/api/middleware"
	"github.com/kiranshivaraju/greeneye/internal/api/response"
	"github.com/kiranshivaraju/greeneye/internal/batch"
	"github.com/kiranshivaraju/greeneye/internal/cache"
	"github.com/kiranshivaraju/greeneye/internal/config"
	"github.com/kiranshivaraju/greeneye/internal/metrics"
	"github.com/kiranshivaraju/greeneye/internal/storage"
	"github.com/kiranshivaraju/greeneye/internal/store"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create AI provider and the rate-limited invoker around it
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())

	registry := prometheus.NewRegistry()
	batchMetrics, err := metrics.NewBatchMetrics(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	invoker := ai.NewInvokerFromConfig(cfg.AI, aiProvider, ai.WithObserver(batchMetrics))

	// 6. Image references
	resolver, err := storage.NewS3Resolver(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("create image resolver: %w", err)
	}

	// 7. Store and orchestrator
	pgStore := store.NewPostgresStore(pool)
	orch := batch.NewOrchestrator(pgStore, redisCache, analysis.NewAnalyzer(invoker, resolver), batch.Config{
		MaxImages:       cfg.Batch.MaxImages,
		Workers:         cfg.Batch.Workers,
		FinalizeTimeout: cfg.Batch.FinalizeTimeout,
		StatusTTL:       cfg.Batch.StatusTTL,
	}, batch.WithRecorder(batchMetrics))

	if _, err := orch.RecoverInterrupted(ctx); err != nil {
		return err
	}

	if cfg.Server.BootstrapAdminKey != "" {
		created, err := bootstrapAdminKey(ctx, pgStore, cfg.Server.BootstrapAdminKey)
		if err != nil {
			return fmt.Errorf("bootstrap admin key: %w", err)
		}
		if created {
			slog.Info("bootstrap admin key stored")
		}
	}

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:  healthHandler(pgStore, redisCache),
		MetricsHandler: metrics.Handler(registry),

		SubmitBatch:  handler.NewSubmitBatchHandler(orch),
		ListBatches:  handler.NewListBatchesHandler(orch),
		GetBatch:     handler.NewGetBatchHandler(orch),
		BatchStatus:  handler.NewBatchStatusHandler(orch),
		BatchResults: handler.NewBatchResultsHandler(orch),
		BatchEvents:  handler.NewBatchEventsHandler(orch, handler.DefaultKeepAlive),
		CancelBatch:  handler.NewCancelBatchHandler(orch),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections and batches...",
			"batches_in_flight", orch.InFlight())
	}

	// Event streams end when their batch settles, so both drains run together.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownDeadline)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := orch.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("batch shutdown: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

// bootstrapAdminKey stores rawKey as an admin key for the default tenant when
// the tenant has no active keys. It reports whether a key was created.
func bootstrapAdminKey(ctx context.Context, s store.Store, rawKey string) (bool, error) {
	tenant, err := s.GetDefaultTenant(ctx)
	if err != nil {
		return false, fmt.Errorf("default tenant: %w", err)
	}
	existing, err := s.ListAPIKeys(ctx, tenant.ID)
	if err != nil {
		return false, fmt.Errorf("list keys: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	key, err := handler.NewAPIKey(tenant.ID, "bootstrap-admin", rawKey,
		[]string{models.ScopeAdmin, models.ScopeAnalyze, models.ScopeRead})
	if err != nil {
		return false, err
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return false, nil
		}
		return false, fmt.Errorf("create key: %w", err)
	}
	return true, nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
