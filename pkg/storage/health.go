package storage

import (
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// HealthStatus represents the health status of a component
type HealthStatus int

const (
	HealthStatusHealthy HealthStatus = iota
	HealthStatusDegraded
	HealthStatusUnhealthy
)

func (hs HealthStatus) String() string {
	switch hs {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// staleBackupAge marks the backup system degraded
const staleBackupAge = 48 * time.Hour

// HealthMonitor assesses the registry and its background components
type HealthMonitor struct {
	storage       *BadgerStorage
	startTime     time.Time
	checkInterval time.Duration

	mu        sync.RWMutex
	stopChan  chan struct{}
	isRunning bool
	lastCheck time.Time
	lastState HealthStatus
	wg        sync.WaitGroup
}

// NewHealthMonitor creates a monitor checking every 60 seconds
func NewHealthMonitor(storage *BadgerStorage) *HealthMonitor {
	return &HealthMonitor{
		storage:       storage,
		startTime:     time.Now(),
		checkInterval: 60 * time.Second,
	}
}

// Start begins periodic health checks
func (hm *HealthMonitor) Start() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.isRunning {
		return
	}
	hm.isRunning = true
	hm.stopChan = make(chan struct{})

	hm.wg.Add(1)
	go hm.healthCheckLoop(hm.stopChan)
}

// Stop halts periodic health checks
func (hm *HealthMonitor) Stop() {
	hm.mu.Lock()
	if !hm.isRunning {
		hm.mu.Unlock()
		return
	}
	close(hm.stopChan)
	hm.isRunning = false
	hm.mu.Unlock()

	hm.wg.Wait()
}

// IsRunning returns whether health monitoring is active
func (hm *HealthMonitor) IsRunning() bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return hm.isRunning
}

// GetOverallHealth combines component states. An unreachable database makes
// the registry unhealthy; backup or GC problems only degrade it.
func (hm *HealthMonitor) GetOverallHealth() HealthStatus {
	if hm.CheckDatabaseHealth() == HealthStatusUnhealthy {
		return HealthStatusUnhealthy
	}
	if hm.checkBackupHealth() != HealthStatusHealthy || hm.checkGCHealth() != HealthStatusHealthy {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

func (hm *HealthMonitor) healthCheckLoop(stop <-chan struct{}) {
	defer hm.wg.Done()

	ticker := time.NewTicker(hm.checkInterval)
	defer ticker.Stop()

	hm.performHealthCheck()
	for {
		select {
		case <-ticker.C:
			hm.performHealthCheck()
		case <-stop:
			return
		}
	}
}

func (hm *HealthMonitor) performHealthCheck() {
	status := hm.GetOverallHealth()

	hm.mu.Lock()
	previous := hm.lastState
	hm.lastCheck = time.Now()
	hm.lastState = status
	hm.mu.Unlock()

	if status != previous {
		hm.storage.logger.Info("Registry health changed",
			zap.String("from", previous.String()),
			zap.String("to", status.String()))
	}
}

// CheckDatabaseHealth verifies the database accepts transactions
func (hm *HealthMonitor) CheckDatabaseHealth() HealthStatus {
	if hm.storage.closed() {
		return HealthStatusUnhealthy
	}
	err := hm.storage.db.View(func(txn *badger.Txn) error {
		return nil
	})
	if err != nil {
		return HealthStatusUnhealthy
	}
	return HealthStatusHealthy
}

func (hm *HealthMonitor) checkBackupHealth() HealthStatus {
	bm := hm.storage.backupManager
	if bm == nil || !bm.IsRunning() {
		return HealthStatusDegraded
	}
	lastBackup := bm.GetLastBackupTime()
	if !lastBackup.IsZero() && time.Since(lastBackup) > staleBackupAge {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

func (hm *HealthMonitor) checkGCHealth() HealthStatus {
	if hm.storage.gc == nil {
		return HealthStatusUnhealthy
	}
	if !hm.storage.gc.IsRunning() {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

// GetHealthSummary reports each component for the detailed health endpoint
func (hm *HealthMonitor) GetHealthSummary() map[string]interface{} {
	hm.mu.RLock()
	lastCheck := hm.lastCheck
	uptime := time.Since(hm.startTime)
	hm.mu.RUnlock()

	return map[string]interface{}{
		"overall_status":  hm.GetOverallHealth().String(),
		"database_status": hm.CheckDatabaseHealth().String(),
		"backup_status":   hm.checkBackupHealth().String(),
		"gc_status":       hm.checkGCHealth().String(),
		"last_check":      lastCheck,
		"uptime_seconds":  uptime.Seconds(),
		"is_monitoring":   hm.IsRunning(),
	}
}
