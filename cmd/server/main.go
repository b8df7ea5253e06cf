package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/signalforge/signalforge/internal/api"
	"github.com/signalforge/signalforge/internal/config"
	"github.com/signalforge/signalforge/internal/metrics"
	"github.com/signalforge/signalforge/internal/notifications"
	"github.com/signalforge/signalforge/internal/scanning"
	"github.com/signalforge/signalforge/internal/scheduler"
	"github.com/signalforge/signalforge/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting SignalForge")

	defaults, err := config.LoadScanDefaults(cfg.ScanDefaultsFile)
	if err != nil {
		logrus.Fatalf("Failed to load scan defaults: %v", err)
	}

	store, err := storage.Open(cfg.DatabasePath, defaults)
	if err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	opts := scanning.Options{
		Metrics:        m,
		ArchiveKeep:    cfg.ArchiveKeep,
		DigestTopIdeas: cfg.DigestTopIdeas,
		ScanTimeout:    cfg.ScanTimeout,
	}

	if cfg.ArchiveEnabled() {
		archive, err := storage.NewAzureArchive(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		opts.Archive = archive
	}

	if cfg.NotificationsEnabled() {
		opts.Notifier = notifications.NewService(cfg)
	}

	scans := scanning.NewService(store, scanning.DefaultSources(cfg), opts)

	schedulerService := scheduler.NewService(cfg.SchedulerSpec, store, scans, m)
	if err := schedulerService.Start(ctx); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      api.NewServer(scans, store, m).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ScanTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("HTTP server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
