// Command server runs the GPX track server: an HTTP API that accepts GPX
// uploads, loads them in sequential batches and keeps the resulting tracks
// in a BadgerDB registry.
//
// Shutdown handling:
//   - single Ctrl+C or SIGTERM: graceful. New requests get 503, queued
//     files finish loading, then the registry is closed.
//   - double Ctrl+C within 3 seconds or SIGUSR1: emergency. A backup is
//     written and the process exits without waiting for the queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"gpx-track-server/internal/server"
	"gpx-track-server/pkg/config"
	"gpx-track-server/pkg/logger"
	"gpx-track-server/pkg/tls"

	"go.uber.org/zap"
)

const doubleSignalWindow = 3 * time.Second

func main() {
	fmt.Println("🚀 Starting GPX Track Server...")

	cfg := config.Load()

	logCfg, err := logger.FromPreset(cfg.LogPreset, cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	appLogger, err := logger.NewLogger(logCfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	if err := cfg.Validate(); err != nil {
		appLogger.Fatal("Invalid configuration", zap.Error(err))
	}

	createDirectories(cfg)
	cfg.DisplayConfiguration()
	logStartupInfo(appLogger, cfg)

	store, err := server.OpenStorage(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	app, err := server.New(cfg, appLogger, store)
	if err != nil {
		_ = store.Close()
		appLogger.Fatal("Failed to initialize server", zap.Error(err))
	}

	displayServerInfo(cfg)
	displayControlInstructions()

	serveErr := make(chan error, 1)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      app.Echo,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if cfg.EnableTLS {
		go func() { serveErr <- tls.StartAutoTLS(app.Echo, cfg, appLogger) }()
	} else {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		go func() {
			err := httpServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			serveErr <- err
		}()
	}
	fmt.Println("🟢 Server started successfully.")
	fmt.Println()

	shutdownHTTP := func(ctx context.Context) error {
		if cfg.EnableTLS {
			return app.Echo.Shutdown(ctx)
		}
		return httpServer.Shutdown(ctx)
	}

	emergency := waitForShutdown(app, serveErr)
	if emergency {
		performEmergencyShutdown(app, shutdownHTTP)
		return
	}
	performGracefulShutdown(app, shutdownHTTP)
}

// waitForShutdown blocks until a signal arrives or the listener fails and
// reports whether an emergency shutdown was requested.
func waitForShutdown(app *server.App, serveErr <-chan error) bool {
	quit := make(chan os.Signal, 2)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(quit)

	var first time.Time
	var graceful <-chan time.Time

	for {
		select {
		case err := <-serveErr:
			if err != nil {
				app.Logger.Error("Server stopped unexpectedly", zap.Error(err))
			}
			app.Shutdown.InitiateShutdown()
			return false

		case <-graceful:
			return false

		case sig := <-quit:
			app.Shutdown.InitiateShutdown()

			if sig == syscall.SIGUSR1 {
				app.Logger.Error("Emergency shutdown initiated", zap.String("signal", "SIGUSR1"))
				return true
			}
			if !first.IsZero() && time.Since(first) <= doubleSignalWindow {
				app.Logger.Error("Emergency shutdown initiated", zap.String("trigger", "double_signal"))
				return true
			}
			first = time.Now()
			graceful = time.After(doubleSignalWindow)
			fmt.Printf("=== %s received, graceful shutdown in %v (repeat for emergency) ...\n", sig, doubleSignalWindow)
		}
	}
}

func performGracefulShutdown(app *server.App, shutdownHTTP func(context.Context) error) {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), app.Config.ShutdownTimeout)
	defer cancel()

	if err := shutdownHTTP(ctx); err != nil {
		app.Logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	p := app.Processor.Progress()
	if p.Active {
		fmt.Printf("⏳ Waiting for upload queue: %s\n", p)
	}
	if err := app.Drain(ctx); err != nil {
		app.Logger.Error("Graceful shutdown incomplete", zap.Error(err), zap.Duration("duration", time.Since(startTime)))
		fmt.Printf("Shutdown - FAILED (%v) [%v]\n", err, time.Since(startTime))
		_ = app.Logger.Sync()
		os.Exit(1)
	}

	app.Logger.Info("Graceful shutdown completed", zap.Duration("duration", time.Since(startTime)))
	fmt.Printf("Shutdown - SUCCESS [%v]\n", time.Since(startTime))
}

func performEmergencyShutdown(app *server.App, shutdownHTTP func(context.Context) error) {
	startTime := time.Now()

	if path, err := app.Store.CreateBackup(); err != nil {
		app.Logger.Error("Emergency backup failed", zap.Error(err))
	} else {
		app.Logger.Info("Emergency backup written", zap.String("path", path))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdownHTTP(ctx)

	if err := app.Store.CloseWithTimeout(5 * time.Second); err != nil {
		app.Logger.Error("Emergency registry close failed", zap.Error(err))
	}

	p := app.Processor.Progress()
	app.Logger.Warn("Emergency shutdown completed",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("abandoned_files", p.Remaining()))
	_ = app.Logger.Sync()
	fmt.Println("🚨 EMERGENCY SHUTDOWN: queued uploads abandoned")
	os.Exit(1)
}

func logStartupInfo(appLogger *zap.Logger, cfg *config.Config) {
	hostname, _ := os.Hostname()
	appLogger.Info("System Environment",
		zap.String("go_version", runtime.Version()),
		zap.String("go_os", runtime.GOOS),
		zap.String("go_arch", runtime.GOARCH),
		zap.String("hostname", hostname),
		zap.Int("process_id", os.Getpid()),
		zap.Int("cpu_count", runtime.NumCPU()))

	appLogger.Info("Upload Queue Configuration",
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("step_delay", cfg.StepDelay),
		zap.Duration("item_timeout", cfg.ItemTimeout),
		zap.Int("confirm_threshold", cfg.ConfirmThreshold),
		zap.Int("bulk_threshold", cfg.BulkThreshold),
		zap.Int("visible_limit", cfg.VisibleLimit),
		zap.Int64("max_upload_bytes", cfg.MaxUploadSize),
		zap.Int64("max_file_bytes", cfg.MaxFileSize))

	appLogger.Info("Authentication & Security Configuration",
		zap.Bool("auth_enabled", cfg.EnableAuth),
		zap.Bool("api_key_configured", cfg.APIKey != ""),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
		zap.Strings("allowed_ips", cfg.AllowedIPs),
		zap.Bool("tls_enabled", cfg.EnableTLS))

	appLogger.Info("Rate Limiting Configuration",
		zap.Int("throttle_limit", cfg.ThrottleLimit),
		zap.Int("throttle_backlog_limit", cfg.ThrottleBacklogLimit),
		zap.Duration("throttle_backlog_timeout", cfg.ThrottleBacklogTimeout),
		zap.Float64("echo_rate_limit", cfg.EchoRateLimit),
		zap.Int("echo_burst_limit", cfg.EchoBurstLimit))
}

func createDirectories(cfg *config.Config) {
	directories := []string{cfg.DataDir, cfg.BackupDir}
	if cfg.EnableTLS {
		directories = append(directories, cfg.TLSCacheDir)
	}
	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Printf("Warning: Failed to create directory %s: %v\n", dir, err)
		}
	}
}

func displayServerInfo(cfg *config.Config) {
	base := fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port)
	if cfg.EnableTLS {
		host := "your-domain"
		if len(cfg.TLSHosts) > 0 {
			host = cfg.TLSHosts[0]
		}
		base = "https://" + host
	}
	fmt.Printf("📊 Health check: %s/health\n", base)
	fmt.Printf("📈 Metrics: %s/metrics\n", base)
	fmt.Println("📚 API endpoints:")
	for _, route := range server.Routes {
		fmt.Println("   " + route)
	}
	fmt.Println()
}

func displayControlInstructions() {
	fmt.Println("🛑 SERVER CONTROL INSTRUCTIONS")
	fmt.Println("• Single Ctrl+C or SIGTERM: graceful shutdown (new requests refused, queued files finish loading)")
	fmt.Println("• Double Ctrl+C within 3 seconds or SIGUSR1: emergency shutdown (backup, then exit)")
	fmt.Println()
}
