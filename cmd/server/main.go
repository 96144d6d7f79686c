// Package main is the entrypoint for the pdfgate API server.
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

	"github.com/kiranshivaraju/pdfgate/internal/account"
	"github.com/kiranshivaraju/pdfgate/internal/api"
	"github.com/kiranshivaraju/pdfgate/internal/api/handler"
	mw "github.com/kiranshivaraju/pdfgate/internal/api/middleware"
	"github.com/kiranshivaraju/pdfgate/internal/api/response"
	"github.com/kiranshivaraju/pdfgate/internal/auth"
	"github.com/kiranshivaraju/pdfgate/internal/billing"
	"github.com/kiranshivaraju/pdfgate/internal/cache"
	"github.com/kiranshivaraju/pdfgate/internal/config"
	"github.com/kiranshivaraju/pdfgate/internal/engine"
	"github.com/kiranshivaraju/pdfgate/internal/identity"
	"github.com/kiranshivaraju/pdfgate/internal/openapi"
	"github.com/kiranshivaraju/pdfgate/internal/plan"
	"github.com/kiranshivaraju/pdfgate/internal/quota"
	"github.com/kiranshivaraju/pdfgate/internal/store"
)

const shutdownTimeout = 30 * time.Second

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "quota_mode", cfg.Quota.Mode,
		"fail_open", cfg.Quota.FailOpen)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the key and usage store, applying migrations
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	slog.Info("store ready", "driver", store.Driver(cfg.Database.URL))

	// 3. Optional Redis for the shared burst throttle
	var counters cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		counters = redisCache
		slog.Info("redis connected")
	}

	// 4. Plans and quota enforcement
	plans, err := plan.NewRegistry(plan.WithOverrides(cfg.Quota.MonthlyLimits))
	if err != nil {
		return fmt.Errorf("build plan registry: %w", err)
	}
	mode, err := quota.ParseMode(cfg.Quota.Mode)
	if err != nil {
		return err
	}
	enforcer := quota.NewEnforcer(st, plans,
		quota.WithMode(mode),
		quota.WithFailOpen(cfg.Quota.FailOpen),
		quota.WithRetryAfter(cfg.Quota.RetryAfter),
		quota.WithLogger(logger),
	)

	// 5. Document engine
	eng := engine.NewHTTPEngine(cfg.Engine.BaseURL, cfg.Engine.APIToken, cfg.Engine.Timeout)
	if err := eng.Ready(ctx); err != nil {
		slog.Warn("document engine not ready at startup", "error", err)
	}

	accounts := account.NewService(st, enforcer, plans, logger)
	doc := openapi.Generate(cfg.Server.PublicURL, version)

	deps := api.Dependencies{
		Logger:      logger,
		TrustProxy:  cfg.Server.TrustProxy,
		CORSOrigins: cfg.Server.CORSOrigins,

		Auth:      mw.NewAuth(auth.NewResolver(st, plans)),
		Quota:     mw.NewQuota(enforcer, cfg.Server.UpgradeURL),
		Documents: handler.NewDocuments(eng, cfg.Server.MaxUploadBytes),

		LandingHandler: handler.NewLandingHandler(),
		DocsHandler:    handler.NewDocsHandler(),
		RedocHandler:   handler.NewRedocHandler(),
		OpenAPIHandler: handler.NewOpenAPIHandler(doc),
		HealthHandler:  healthHandler(st, counters, eng),
		StaticHandler:  handler.StaticHandler(),
		GenerateKey:    handler.NewGenerateKeyHandler(accounts, cfg.Server.AdminToken),
		UsageHandler:   handler.NewUsageHandler(enforcer),
	}
	if cfg.Quota.BurstPerMinute > 0 {
		deps.Throttle = mw.Throttle(counters, cfg.Quota.BurstPerMinute)
	}

	// 6. Optional identity-verified account endpoints
	if cfg.Firebase.ProjectID != "" {
		keys, err := identity.NewRemoteKeys(ctx, cfg.Firebase.JWKSURL, 10*time.Second)
		if err != nil {
			return fmt.Errorf("create identity key set: %w", err)
		}
		deps.Identity = mw.RequireIdentity(identity.NewFirebaseVerifier(cfg.Firebase.ProjectID, keys))
		deps.Register = handler.NewRegisterHandler(accounts)
		deps.Dashboard = handler.NewDashboardHandler(accounts)
		deps.RegenerateKey = handler.NewRegenerateHandler(accounts)
		slog.Info("account endpoints enabled", "project", cfg.Firebase.ProjectID)
	}

	// 7. Optional billing
	if cfg.Stripe.SecretKey != "" {
		client := billing.NewStripeClient(billing.ClientConfig{
			BaseURL:           cfg.Stripe.APIBaseURL,
			SecretKey:         cfg.Stripe.SecretKey,
			RequestsPerSecond: cfg.Stripe.RequestsPerSecond,
			Timeout:           15 * time.Second,
			MaxRetries:        2,
			Logger:            logger,
		})
		processor := billing.NewProcessor(client, accounts, cfg.Stripe.PriceToPlan, logger)

		if cfg.Stripe.WebhookSecret == "" {
			slog.Warn("stripe webhook secret not set, accepting unsigned webhook payloads")
		}
		deps.StripeWebhook = handler.NewStripeWebhookHandler(processor, handler.WebhookConfig{
			Secret:    cfg.Stripe.WebhookSecret,
			Tolerance: cfg.Stripe.WebhookTolerance,
		})
		deps.ManageSubscribe = handler.NewManageSubscriptionHandler(client, cfg.Stripe.PortalReturnURL)
		slog.Info("billing enabled", "prices", len(cfg.Stripe.PriceToPlan))
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Engine.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

type readiness interface {
	Ready(ctx context.Context) error
}

// healthHandler checks the store, the optional cache and the document engine.
func healthHandler(s pinger, c cache.Cache, eng readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"engine":   "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if c != nil {
			checks["cache"] = "ok"
			if err := c.Ping(r.Context()); err != nil {
				checks["cache"] = "degraded"
			}
		}
		if err := eng.Ready(r.Context()); err != nil {
			checks["engine"] = "degraded"
		}

		for _, status := range checks {
			if status != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"version":  version,
			"services": checks,
		})
	}
}
