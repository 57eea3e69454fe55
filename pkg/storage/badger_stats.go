package storage

import (
	"fmt"
)

// GetDatabaseFileSize returns the LSM plus value log size on disk
func (s *BadgerStorage) GetDatabaseFileSize() (int64, error) {
	if s.closed() {
		return 0, ErrStorageNotReady
	}
	lsmSize, vlogSize := s.db.Size()
	return lsmSize + vlogSize, nil
}

// GetResourceStats returns registry statistics for the stats endpoint
func (s *BadgerStorage) GetResourceStats() map[string]interface{} {
	stats := map[string]interface{}{
		"track_count": s.Count(),
	}

	visible := true
	stats["visible_count"] = s.CountWithFilter(&TrackFilter{Visible: &visible})

	if size, err := s.GetDatabaseFileSize(); err == nil {
		stats["database_file_size_bytes"] = size
	} else {
		stats["database_file_size_error"] = err.Error()
	}

	stats["gc_stats"] = s.GetGCStats()

	if backupStats, err := s.GetBackupStats(); err == nil {
		stats["backup_stats"] = backupStats
	} else {
		stats["backup_stats_error"] = fmt.Sprintf("failed to read backups: %v", err)
	}

	stats["health_stats"] = s.GetHealthStatus()
	return stats
}
