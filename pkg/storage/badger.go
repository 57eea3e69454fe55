package storage

import (
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	trackKeyPrefix = "track:"
	gpxKeyPrefix   = "gpx:"
)

// BadgerStorage implements Storage on BadgerDB. Track metadata and raw GPX
// documents live under separate key prefixes so listing never loads files.
type BadgerStorage struct {
	db       *badger.DB
	logger   *zap.Logger
	isClosed int32 // atomic

	// Serialises inserts so visibility decisions see a stable count.
	addMu      sync.Mutex
	trackCount int64 // atomic

	gc            *GarbageCollector
	backupManager *BackupManager
	healthMonitor *HealthMonitor
}

// BadgerOptions contains options for the BadgerDB storage
type BadgerOptions struct {
	DataDir  string // Directory to store BadgerDB files
	InMemory bool   // Keep everything in memory (tests, dry runs)

	GCInterval  time.Duration // GC interval (optional)
	GCThreshold float64       // Minimum reclaimable ratio to rewrite a value log file

	BackupDir      string        // Directory for backups
	BackupInterval time.Duration // How often to create backups
	MaxBackups     int           // Maximum number of backups to retain

	PerformanceMode bool  // Async writes and smaller tables
	CacheSize       int64 // Block cache size in bytes

	Logger *zap.Logger
}

// File contents:
// badger_CRUD.go --- track operations
// pagination.go --- list, count and show-all
// badger_close.go --- shutdown
// badger_gc.go and gc.go --- garbage collection
// badger_backup.go and backup.go --- backups
// badger_health.go and health.go --- health monitoring
// badger_stats.go --- statistics
