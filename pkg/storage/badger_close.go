package storage

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrShutdownTimeout is returned when the database does not close in time
var ErrShutdownTimeout = fmt.Errorf("graceful shutdown timeout exceeded")

// Close stops background components and closes the database with a 30s limit
func (s *BadgerStorage) Close() error {
	return s.CloseWithTimeout(30 * time.Second)
}

// CloseWithTimeout stops health monitoring, backups and GC in that order
// and then closes the database, giving up after timeout.
func (s *BadgerStorage) CloseWithTimeout(timeout time.Duration) error {
	if !atomic.CompareAndSwapInt32(&s.isClosed, 0, 1) {
		return nil
	}
	start := time.Now()

	s.healthMonitor.Stop()
	s.backupManager.Stop()
	s.gc.Stop()

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("Track registry close failed", zap.Error(err))
			return fmt.Errorf("failed to close BadgerDB: %w", err)
		}
		s.logger.Info("Track registry closed",
			zap.Int("tracks", s.Count()),
			zap.Duration("duration", time.Since(start)))
		return nil
	case <-time.After(timeout):
		s.logger.Error("Track registry close timed out", zap.Duration("timeout", timeout))
		return ErrShutdownTimeout
	}
}
