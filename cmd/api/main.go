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

	"github.com/straye-as/device-importer/internal/app"
	"github.com/straye-as/device-importer/internal/config"
	"github.com/straye-as/device-importer/internal/http/handler"
	"github.com/straye-as/device-importer/internal/http/middleware"
	"github.com/straye-as/device-importer/internal/http/router"
	"github.com/straye-as/device-importer/internal/jobs"
	"github.com/straye-as/device-importer/internal/logger"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load basic configuration first (for logging setup)
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	// In development secrets come from environment variables,
	// in staging/production from Azure Key Vault
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.ApiKey.Value == "" {
		log.Warn("No API key configured - all /api/v1 requests will be rejected")
	}

	services, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	log.Info("Services initialized", zap.String("iothub_host", services.Registry.HostName()))

	rt := router.NewRouter(
		cfg,
		log,
		middleware.NewRateLimiter(&cfg.RateLimit, log),
		handler.NewImportHandler(services.Importer, services.Tracker, log),
		handler.NewJobHandler(services.Registry, services.Tracker, log),
	)

	var scheduler *jobs.Scheduler
	if cfg.Jobs.StatusRefreshEnabled {
		scheduler = jobs.NewScheduler(log)
		if err := jobs.RegisterStatusRefreshJob(
			scheduler,
			services.Registry,
			services.Tracker,
			log,
			cfg.Jobs.StatusRefreshCron,
			cfg.Jobs.StatusRefreshTimeoutDuration(),
		); err != nil {
			return fmt.Errorf("failed to register status refresh job: %w", err)
		}
		scheduler.Start()
		log.Info("Scheduler started with status refresh job",
			zap.String("cron_expr", cfg.Jobs.StatusRefreshCron),
			zap.Duration("timeout", cfg.Jobs.StatusRefreshTimeoutDuration()),
		)
	} else {
		log.Info("Job status refresh disabled")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		if scheduler != nil {
			<-scheduler.Stop().Done()
			log.Info("Scheduler stopped")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}
