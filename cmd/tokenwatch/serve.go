package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/tokenwatch/internal/config"
	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
	logpkg "github.com/kailas-cloud/tokenwatch/internal/logger"
	"github.com/kailas-cloud/tokenwatch/internal/metrics"
	chiTransport "github.com/kailas-cloud/tokenwatch/internal/transport/chi"
	"github.com/kailas-cloud/tokenwatch/internal/transport/webhook"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/accounting"
	healthuc "github.com/kailas-cloud/tokenwatch/internal/usecase/health"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/ledger"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/notify"
	reportuc "github.com/kailas-cloud/tokenwatch/internal/usecase/report"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/threshold"
	"github.com/kailas-cloud/tokenwatch/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Long: `Run the usage ingestion endpoint and the command surface.

Producers POST usage events to /v1/events (or raw chat completions to
/v1/events/completion). Administrators query and reset sessions under
/v1/sessions, export counters via /v1/export and read totals at /v1/summary.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	env := currentEnv()
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting tokenwatch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()
	logger.Info("Connected to storage")

	// Register usage metrics explicitly (no init())
	metrics.RegisterUsageMetrics()

	l := ledger.New(logger.Named("ledger")).WithStore(backend)
	// An unreadable snapshot is already logged; the service starts empty.
	_ = l.Load(ctx)

	sender, err := buildSender(cfg.Notify, logger)
	if err != nil {
		return err
	}

	engine := accounting.New(
		l,
		threshold.New(limitsFromConfig(&cfg)),
		notify.New(sender, logger.Named("notify")),
		cfg.AdminIDs,
		logger.Named("accounting"),
	)
	report := reportuc.New(l, cfg.CostPerToken)
	health := healthuc.New(backend, l)

	server := chiTransport.NewServer(engine, report, health, chiTransport.Options{
		Admins:     &cfg,
		OpenSeries: cfg.Reporting.OpenSeries,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
		// Retry writes that failed while serving.
		if err := l.Save(shutdownCtx); err != nil {
			logger.Error("Final snapshot save failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

func limitsFromConfig(cfg *config.Config) threshold.Limits {
	return threshold.Limits{
		MaxTokens: map[usage.Scope]uint64{
			usage.ScopeGroup:   cfg.MaxTokens.Group,
			usage.ScopePrivate: cfg.MaxTokens.Private,
		},
		UserLimits:       cfg.UserLimits,
		AnomalyThreshold: cfg.AnomalyThreshold,
		CostPerToken:     cfg.CostPerToken,
	}
}

// buildSender picks the webhook gateway when configured, logging otherwise.
func buildSender(cfg config.NotifyConfig, logger *zap.Logger) (notify.Sender, error) {
	if cfg.WebhookURL == "" {
		logger.Warn("No notify.webhook_url configured, alerts will only be logged")
		return notify.NewLogSender(logger.Named("alerts")), nil
	}
	s, err := webhook.NewSender(webhook.Config{
		URL:     cfg.WebhookURL,
		Token:   cfg.Token,
		Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		Logger:  logger.Named("webhook"),
	})
	if err != nil {
		return nil, fmt.Errorf("create webhook sender: %w", err)
	}
	return s, nil
}
