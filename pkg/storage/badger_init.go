package storage

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// getOptimizedBadgerOptions returns BadgerDB options for the registry
func getOptimizedBadgerOptions(opts BadgerOptions) badger.Options {
	var options badger.Options
	if opts.InMemory {
		options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		options = badger.DefaultOptions(filepath.Clean(opts.DataDir))
	}

	if opts.PerformanceMode {
		options = options.
			WithMemTableSize(8 << 20).
			WithValueLogFileSize(16 << 20).
			WithBaseTableSize(4 << 20).
			WithSyncWrites(false).
			WithNumCompactors(2)
	} else if !opts.InMemory {
		options = options.
			WithSyncWrites(true).
			WithNumCompactors(2)
	}

	// GPX documents are often larger than a few KB; keep them in the value log.
	options = options.
		WithLogger(nil).
		WithDetectConflicts(true).
		WithNumVersionsToKeep(1).
		WithValueThreshold(1 << 10)

	if opts.CacheSize > 0 {
		options = options.WithBlockCacheSize(opts.CacheSize)
	}

	return options
}

// NewBadgerStorage opens the registry and prepares its background components.
// Background loops are not started; see StartGCLoop, StartBackups and
// StartHealthMonitoring.
func NewBadgerStorage(opts BadgerOptions) (*BadgerStorage, error) {
	if opts.DataDir == "" && !opts.InMemory {
		opts.DataDir = "data/badger"
	}
	if opts.BackupDir == "" {
		opts.BackupDir = "backups"
	}
	if opts.BackupInterval == 0 {
		opts.BackupInterval = 6 * time.Hour
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 7
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	db, err := badger.Open(getOptimizedBadgerOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	storage := &BadgerStorage{
		db:     db,
		logger: opts.Logger,
	}

	count, err := storage.countTracksInDB()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to count tracks: %w", err)
	}
	atomic.StoreInt64(&storage.trackCount, int64(count))

	storage.gc = NewGarbageCollector(db, opts.Logger)
	if opts.GCInterval > 0 {
		storage.gc.SetInterval(opts.GCInterval)
	}
	if opts.GCThreshold > 0 {
		storage.gc.SetGCThreshold(opts.GCThreshold)
	}

	storage.backupManager = NewBackupManager(db, BackupOptions{
		BackupDir:    opts.BackupDir,
		Interval:     opts.BackupInterval,
		MaxBackups:   opts.MaxBackups,
		BackupPrefix: "tracks-backup",
	}, opts.Logger)

	storage.healthMonitor = NewHealthMonitor(storage)

	opts.Logger.Debug("Track registry opened",
		zap.Bool("in_memory", opts.InMemory),
		zap.String("data_dir", opts.DataDir),
		zap.Int("tracks", count))

	return storage, nil
}
