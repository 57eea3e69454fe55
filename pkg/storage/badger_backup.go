package storage

import (
	"sync/atomic"
	"time"
)

// StartBackups starts the periodic backup loop
func (s *BadgerStorage) StartBackups() error {
	return s.backupManager.Start()
}

// StopBackups stops the periodic backup loop
func (s *BadgerStorage) StopBackups() {
	s.backupManager.Stop()
}

// CreateBackup writes a backup immediately and returns its path
func (s *BadgerStorage) CreateBackup() (string, error) {
	if s.closed() {
		return "", ErrStorageNotReady
	}
	return s.backupManager.CreateBackup()
}

// RestoreFromBackup loads a backup file and recounts the tracks
func (s *BadgerStorage) RestoreFromBackup(backupPath string) error {
	if err := s.backupManager.RestoreFromBackup(backupPath); err != nil {
		return err
	}
	count, err := s.countTracksInDB()
	if err != nil {
		return err
	}
	atomic.StoreInt64(&s.trackCount, int64(count))
	return nil
}

// ListBackups returns the available backup files
func (s *BadgerStorage) ListBackups() ([]string, error) {
	return s.backupManager.ListBackups()
}

// GetLastBackupTime returns the time of the last successful backup
func (s *BadgerStorage) GetLastBackupTime() time.Time {
	return s.backupManager.GetLastBackupTime()
}

// GetBackupStats returns backup statistics
func (s *BadgerStorage) GetBackupStats() (map[string]interface{}, error) {
	backups, err := s.backupManager.ListBackups()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"backup_count":     len(backups),
		"last_backup_time": s.backupManager.GetLastBackupTime(),
		"is_running":       s.backupManager.IsRunning(),
	}, nil
}
