// Package commands implements the gpxctl command line.
package commands

import (
	"context"
	"path/filepath"

	"gpx-track-server/pkg/config"
	"gpx-track-server/pkg/logger"
	"gpx-track-server/pkg/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version information injected at build time.
	Version = "dev"

	// Global flags.
	dataDir string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gpxctl",
	Short: "Manage GPX track registries",
	Long: `gpxctl imports GPX files into a local track registry, lists the
registry and pushes files to a running track server.

Settings not given as flags are read from the environment (and .env),
the same way the server reads them.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteContext runs the root command. ctx is cancelled on interrupt.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "registry directory (default: DATA_DIR or ./data)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log loader and queue activity")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pushCmd)
}

func loadConfig() *config.Config {
	cfg := config.Load()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg
}

// newLogger writes to stderr so progress output on stdout stays readable.
func newLogger() (*zap.Logger, error) {
	cfg := logger.GetDebugConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	if !verbose {
		cfg.Level = zapcore.WarnLevel
	}
	return logger.NewLogger(cfg)
}

// openStore opens the registry without the server's background loops.
func openStore(cfg *config.Config, log *zap.Logger) (*storage.BadgerStorage, error) {
	return storage.NewBadgerStorage(storage.BadgerOptions{
		DataDir:         filepath.Join(cfg.DataDir, "badger"),
		BackupDir:       cfg.BackupDir,
		MaxBackups:      cfg.MaxBackups,
		GCThreshold:     cfg.GCThreshold,
		PerformanceMode: cfg.PerformanceMode,
		CacheSize:       cfg.CacheSize,
		Logger:          log,
	})
}
