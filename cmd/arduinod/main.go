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

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"arduino-fleet-backend/config"
	"arduino-fleet-backend/internal/analytics"
	"arduino-fleet-backend/internal/api"
	"arduino-fleet-backend/internal/db"
	"arduino-fleet-backend/internal/metrics"
	"arduino-fleet-backend/internal/notification"
	"arduino-fleet-backend/internal/notion"
	"arduino-fleet-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	setupLogging(&cfg.Logging)
	logrus.WithField("path", configPath).Info("Configuration loaded")

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logrus.Fatalf("failed to initialize database: %v", err)
	}

	appStore := store.NewGormStore(gormDB)
	logrus.Info("Data store initialized")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Web push is optional; without VAPID keys the worker pool stays idle
	// and kill notifications are simply not dispatched.
	var pool *notification.WorkerPool
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		logrus.WithField("workers", cfg.WorkerPool.Size).Info("Notification worker pool started")
	} else {
		logrus.Warn("VAPID keys not configured, push notifications disabled")
	}

	notionClient := notion.NewClient(&cfg.Notion)
	if !notionClient.Configured() {
		logrus.Warn("Notion relay not fully configured, log relay will be skipped")
	}
	analyticsClient := analytics.NewClient(&cfg.Analytics)

	go refreshRegistryGauges(ctx, appStore)

	// Initialize router
	handler := api.NewHandler(appStore, webpushOptions, pool, notionClient, analyticsClient)
	router := api.NewRouter(&cfg.Server, handler)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	sig := <-stop
	logrus.WithField("signal", sig).Info("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("HTTP server Shutdown: %v", err)
	}

	logrus.Info("Server gracefully stopped")
}

func setupLogging(cfg *config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// refreshRegistryGauges keeps the machine/task gauges roughly current.
func refreshRegistryGauges(ctx context.Context, s store.Store) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := s.CountMachines(ctx); err == nil {
				metrics.RegisteredMachines.Set(float64(n))
			}
			if n, err := s.CountActiveTasks(ctx); err == nil {
				metrics.ActiveTasks.Set(float64(n))
			}
		case <-ctx.Done():
			return
		}
	}
}
