// Package server wires the track registry, the upload queue and the HTTP
// API into a runnable application.
package server

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gpx-track-server/internal/handlers"
	"gpx-track-server/pkg/config"
	"gpx-track-server/pkg/gpxload"
	"gpx-track-server/pkg/metrics"
	"gpx-track-server/pkg/models"
	"gpx-track-server/pkg/queue"
	"gpx-track-server/pkg/storage"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// App holds every long-lived component of the server
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     *storage.BadgerStorage
	Loader    *gpxload.Loader
	Processor *queue.Processor[models.TrackFile]
	Board     *queue.Board
	Metrics   *metrics.QueueMetrics
	Registry  *prometheus.Registry
	Shutdown  *handlers.ShutdownHandler
	Echo      *echo.Echo
}

// OpenStorage opens the on-disk registry and starts its GC, backup and
// health loops.
func OpenStorage(cfg *config.Config, appLogger *zap.Logger) (*storage.BadgerStorage, error) {
	store, err := storage.NewBadgerStorage(storage.BadgerOptions{
		DataDir:         filepath.Join(cfg.DataDir, "badger"),
		GCInterval:      cfg.GCInterval,
		GCThreshold:     cfg.GCThreshold,
		BackupDir:       cfg.BackupDir,
		BackupInterval:  cfg.BackupInterval,
		MaxBackups:      cfg.MaxBackups,
		PerformanceMode: cfg.PerformanceMode,
		CacheSize:       cfg.CacheSize,
		Logger:          appLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize BadgerDB storage: %w", err)
	}

	store.StartGCLoop(cfg.GCInterval)
	if err := store.StartBackups(); err != nil {
		appLogger.Warn("Failed to start automated backups", zap.Error(err))
	}
	store.StartHealthMonitoring()

	appLogger.Info("Track registry ready",
		zap.String("data_dir", cfg.DataDir),
		zap.Int("tracks", store.Count()),
		zap.Any("health", store.GetHealthStatus()))
	return store, nil
}

// New builds the application around an open store
func New(cfg *config.Config, appLogger *zap.Logger, store *storage.BadgerStorage) (*App, error) {
	if appLogger == nil {
		appLogger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	queueMetrics := metrics.NewQueueMetrics(registry)

	board := queue.NewBoard(cfg.ProgressHideDelay)
	loader := gpxload.NewLoader(store, gpxload.VisibilityPolicy{
		BulkThreshold: cfg.BulkThreshold,
		VisibleLimit:  cfg.VisibleLimit,
	}, appLogger.Named("loader"))

	processor, err := queue.NewProcessor(loader.Load, queue.Options{
		BatchSize:        cfg.BatchSize,
		ConfirmThreshold: cfg.ConfirmThreshold,
		StepDelay:        cfg.StepDelay,
		ItemTimeout:      cfg.ItemTimeout,
	}, queue.MultiSink{
		queue.NewLogSink(appLogger.Named("queue")),
		board,
		queueMetrics,
	}, appLogger.Named("queue"))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload queue: %w", err)
	}

	app := &App{
		Config:    cfg,
		Logger:    appLogger,
		Store:     store,
		Loader:    loader,
		Processor: processor,
		Board:     board,
		Metrics:   queueMetrics,
		Registry:  registry,
		Shutdown:  handlers.NewShutdownHandler(appLogger),
	}
	app.Echo = app.newRouter()
	return app, nil
}

// Drain stops accepting requests, waits for queued files to finish
// loading, writes a final backup and closes the registry. The backup is
// taken even when the queue did not finish in time.
func (a *App) Drain(ctx context.Context) error {
	a.Shutdown.InitiateShutdown()

	var errs []error
	if err := a.Processor.WaitIdle(ctx); err != nil {
		p := a.Processor.Progress()
		a.Logger.Warn("Upload queue did not finish before shutdown",
			zap.Int("processed", p.Processed),
			zap.Int("total", p.Total),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("wait for upload queue: %w", err))
	}

	if path, err := a.Store.CreateBackup(); err != nil {
		a.Logger.Error("Final backup failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("final backup: %w", err))
	} else {
		a.Logger.Info("Final backup written", zap.String("path", path))
	}

	timeout := a.Config.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = max(time.Second, time.Until(deadline))
	}
	if err := a.Store.CloseWithTimeout(timeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
