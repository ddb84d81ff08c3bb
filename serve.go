package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/navarrastar/gapscan/pkg/api"
	"github.com/navarrastar/gapscan/pkg/clients/webhook"
	"github.com/navarrastar/gapscan/pkg/i18n"
	"github.com/navarrastar/gapscan/pkg/metrics"
	"github.com/navarrastar/gapscan/pkg/middleware"
	"github.com/navarrastar/gapscan/pkg/services"
	"github.com/navarrastar/gapscan/pkg/storage"
	"github.com/navarrastar/gapscan/pkg/validation"
)

const sweepInterval = time.Minute

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Gap Scan HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	if !cfg.WebhookConfigured() {
		logger.Error("N8N_WEBHOOK_URL is not set, submissions will fail", "kind", "configuration")
	}

	store, closeStore := buildStore(ctx)
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("error closing draft store", "error", err)
		}
	}()

	catalog, err := i18n.NewCatalog()
	if err != nil {
		return fmt.Errorf("error loading messages: %w", err)
	}
	validator, err := validation.New(catalog)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	formMetrics := metrics.NewFormMetrics(reg)

	submitter := webhook.NewClient(cfg.WebhookURL, webhook.WithLogger(logger))
	sessions := services.NewSessionRegistry(
		services.RegistryConfig{
			Timeout:       cfg.SessionTTL,
			KeyPrefix:     cfg.DraftKeyPrefix,
			DefaultLocale: cfg.DefaultLanguage,
		},
		store, submitter, validator, logger, formMetrics,
	)
	go sessions.Run(ctx, sweepInterval)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	go evictIdleClients(ctx, limiter)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.CORS(cfg.AllowedOrigins))
	api.RegisterRoutes(router, api.NewHandlers(sessions, catalog, reg, logger), limiter.Middleware())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "redis", cfg.RedisAddr != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}
	return nil
}

func buildStore(ctx context.Context) (storage.DraftStore, func() error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return storage.Build(pingCtx, cfg, logger)
}

func evictIdleClients(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Evict(10 * time.Minute)
		}
	}
}
