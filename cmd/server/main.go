package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/everkeep/email-retry-system/internal/api"
	"github.com/everkeep/email-retry-system/internal/classify"
	"github.com/everkeep/email-retry-system/internal/config"
	"github.com/everkeep/email-retry-system/internal/domain"
	"github.com/everkeep/email-retry-system/internal/engine"
	"github.com/everkeep/email-retry-system/internal/mailer"
	"github.com/everkeep/email-retry-system/internal/scheduler"
	"github.com/everkeep/email-retry-system/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis (retry run lock)
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	// Mail transport
	sender := buildSender(cfg)
	bodies := mailer.StaticBodySource{
		domain.TypeReminder:          "It is time for your scheduled check-in.",
		domain.TypeDisclosure:        "A disclosure you were designated to receive is available.",
		domain.TypeVerification:      "Please verify your email address.",
		domain.TypeAdminNotification: "An administrative event occurred.",
	}
	mail := mailer.New(sender, pgStore, bodies, logger)

	// Retry core
	policy := engine.DefaultPolicy()
	backoff := engine.NewBackoff(cfg.BackoffBase, cfg.BackoffCap)
	retryEngine := engine.NewEngine(pgStore, classify.NewSubstringClassifier(), policy, backoff, logger)
	coordinator := engine.NewCoordinator(pgStore, retryEngine, logger)
	runLock := engine.NewRunLock(redisStore.Client(), logger, cfg.RunLockTTL)

	// Background scheduler
	schedCtx, stopScheduler := context.WithCancel(ctx)
	sched := scheduler.New(coordinator, runLock, mail.SendOperation, logger, cfg.RetryInterval)
	go sched.Start(schedCtx)

	// Setup router
	router := api.NewRouter(pgStore, retryEngine, coordinator, runLock, mail.SendOperation, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: manual retry endpoints block through backoff
		// sleeps, which can exceed any sensible fixed value.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func buildSender(cfg *config.Config) mailer.Sender {
	if cfg.MailProvider == "http" {
		return mailer.NewHTTPSender(cfg.ProviderURL, cfg.ProviderAPIKey)
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}
