package storage

import (
	"errors"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// GCMetrics tracks garbage collection runs
type GCMetrics struct {
	TotalRuns       int64
	SuccessfulRuns  int64
	FailedRuns      int64
	LastRunTime     time.Time
	LastRunDuration time.Duration
	SpaceReclaimed  int64
}

// GarbageCollector periodically rewrites BadgerDB value log files.
// Removed tracks leave their GPX documents behind in the value log until
// a GC pass reclaims them.
type GarbageCollector struct {
	db       *badger.DB
	logger   *zap.Logger
	interval time.Duration

	mu        sync.RWMutex
	stopChan  chan struct{}
	isRunning bool
	wg        sync.WaitGroup

	// metricsMu also guards gcThreshold, which the loop reads while
	// mu is held by SetInterval.
	metricsMu   sync.RWMutex
	metrics     GCMetrics
	gcThreshold float64
}

// NewGarbageCollector creates a collector with a 5 minute interval
func NewGarbageCollector(db *badger.DB, logger *zap.Logger) *GarbageCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GarbageCollector{
		db:          db,
		logger:      logger,
		interval:    5 * time.Minute,
		gcThreshold: 0.5,
	}
}

// RunGC performs a single value log GC pass. ErrNoRewrite is not an error.
func (gc *GarbageCollector) RunGC() error {
	startTime := time.Now()
	lsmBefore, vlogBefore := gc.db.Size()

	gc.metricsMu.RLock()
	threshold := gc.gcThreshold
	gc.metricsMu.RUnlock()

	err := gc.db.RunValueLogGC(threshold)
	// In-memory databases have no value log to rewrite.
	if errors.Is(err, badger.ErrGCInMemoryMode) {
		err = badger.ErrNoRewrite
	}

	lsmAfter, vlogAfter := gc.db.Size()
	reclaimed := (lsmBefore + vlogBefore) - (lsmAfter + vlogAfter)

	gc.metricsMu.Lock()
	gc.metrics.TotalRuns++
	gc.metrics.LastRunTime = startTime
	gc.metrics.LastRunDuration = time.Since(startTime)
	if reclaimed > 0 {
		gc.metrics.SpaceReclaimed += reclaimed
	}
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		gc.metrics.FailedRuns++
	} else {
		gc.metrics.SuccessfulRuns++
	}
	gc.metricsMu.Unlock()

	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// SetInterval changes the GC interval, restarting the loop if it runs
func (gc *GarbageCollector) SetInterval(interval time.Duration) {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	gc.interval = interval
	if gc.isRunning {
		gc.stopInternal()
		gc.startInternal()
	}
}

// SetGCThreshold sets the minimum reclaimable ratio for a rewrite
func (gc *GarbageCollector) SetGCThreshold(threshold float64) {
	gc.metricsMu.Lock()
	defer gc.metricsMu.Unlock()
	gc.gcThreshold = threshold
}

// Start begins the garbage collection loop
func (gc *GarbageCollector) Start() {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.startInternal()
}

func (gc *GarbageCollector) startInternal() {
	if gc.isRunning {
		return
	}
	gc.stopChan = make(chan struct{})
	gc.isRunning = true

	gc.wg.Add(1)
	go gc.gcLoop(gc.interval, gc.stopChan)
}

// Stop halts the loop and waits for an in-flight pass
func (gc *GarbageCollector) Stop() {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.stopInternal()
}

func (gc *GarbageCollector) stopInternal() {
	if !gc.isRunning {
		return
	}
	close(gc.stopChan)
	gc.wg.Wait()
	gc.isRunning = false
}

// IsRunning returns whether the loop is active
func (gc *GarbageCollector) IsRunning() bool {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return gc.isRunning
}

func (gc *GarbageCollector) gcLoop(interval time.Duration, stop <-chan struct{}) {
	defer gc.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := gc.RunGC(); err != nil {
				gc.logger.Warn("Value log GC failed", zap.Error(err))
			}
		case <-stop:
			return
		}
	}
}

// GetMetrics returns a copy of the current GC metrics
func (gc *GarbageCollector) GetMetrics() GCMetrics {
	gc.metricsMu.RLock()
	defer gc.metricsMu.RUnlock()
	return gc.metrics
}
