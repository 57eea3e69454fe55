package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BackupManager writes periodic full backups of the registry and prunes old ones
type BackupManager struct {
	db           *badger.DB
	logger       *zap.Logger
	backupDir    string
	interval     time.Duration
	maxBackups   int
	backupPrefix string

	mu         sync.RWMutex
	stopChan   chan struct{}
	isRunning  bool
	lastBackup time.Time
	wg         sync.WaitGroup

	// Serialises backup runs
	backupMu sync.Mutex
}

// BackupOptions contains configuration for backup operations
type BackupOptions struct {
	BackupDir    string
	Interval     time.Duration
	MaxBackups   int
	BackupPrefix string
}

// NewBackupManager creates a backup manager with defaults for unset options
func NewBackupManager(db *badger.DB, opts BackupOptions, logger *zap.Logger) *BackupManager {
	if opts.BackupDir == "" {
		opts.BackupDir = "backups"
	}
	if opts.Interval == 0 {
		opts.Interval = 6 * time.Hour
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 7
	}
	if opts.BackupPrefix == "" {
		opts.BackupPrefix = "tracks-backup"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BackupManager{
		db:           db,
		logger:       logger,
		backupDir:    opts.BackupDir,
		interval:     opts.Interval,
		maxBackups:   opts.MaxBackups,
		backupPrefix: opts.BackupPrefix,
	}
}

// Start begins the periodic backup loop
func (bm *BackupManager) Start() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.isRunning {
		return fmt.Errorf("backup manager is already running")
	}
	if err := os.MkdirAll(bm.backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	bm.isRunning = true
	bm.stopChan = make(chan struct{})
	bm.wg.Add(1)
	go bm.backupLoop(bm.stopChan)

	return nil
}

// Stop halts the loop and waits for a running backup
func (bm *BackupManager) Stop() {
	bm.mu.Lock()
	if !bm.isRunning {
		bm.mu.Unlock()
		return
	}
	close(bm.stopChan)
	bm.isRunning = false
	bm.mu.Unlock()

	bm.wg.Wait()
}

func (bm *BackupManager) backupLoop(stop <-chan struct{}) {
	defer bm.wg.Done()

	ticker := time.NewTicker(bm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if path, err := bm.CreateBackup(); err != nil {
				bm.logger.Error("Scheduled backup failed", zap.Error(err))
			} else {
				bm.logger.Info("Scheduled backup created", zap.String("path", path))
			}
		}
	}
}

// CreateBackup writes a full backup now and returns its path
func (bm *BackupManager) CreateBackup() (string, error) {
	bm.backupMu.Lock()
	defer bm.backupMu.Unlock()

	if err := os.MkdirAll(bm.backupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	backupPath := filepath.Join(bm.backupDir, fmt.Sprintf("%s-%s.backup", bm.backupPrefix, timestamp))

	backupFile, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}

	if _, err := bm.db.Backup(backupFile, 0); err != nil {
		backupFile.Close()
		os.Remove(backupPath)
		return "", fmt.Errorf("backup operation failed: %w", err)
	}
	if err := backupFile.Close(); err != nil {
		os.Remove(backupPath)
		return "", fmt.Errorf("failed to close backup file: %w", err)
	}

	bm.mu.Lock()
	bm.lastBackup = time.Now()
	bm.mu.Unlock()

	if err := bm.cleanupOldBackups(); err != nil {
		bm.logger.Warn("Failed to prune old backups", zap.Error(err))
	}

	return backupPath, nil
}

// RestoreFromBackup loads a backup file into the database
func (bm *BackupManager) RestoreFromBackup(backupPath string) error {
	backupFile, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer backupFile.Close()

	return bm.db.Load(backupFile, 256)
}

// IsRunning returns whether the backup loop is active
func (bm *BackupManager) IsRunning() bool {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	return bm.isRunning
}

// GetLastBackupTime returns the time of the last successful backup
func (bm *BackupManager) GetLastBackupTime() time.Time {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	return bm.lastBackup
}

// ListBackups returns the backup files in the backup directory
func (bm *BackupManager) ListBackups() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(bm.backupDir, fmt.Sprintf("%s-*.backup", bm.backupPrefix)))
	if err != nil {
		return nil, fmt.Errorf("failed to list backup files: %w", err)
	}
	return files, nil
}

// cleanupOldBackups removes the oldest backups beyond the retention limit
func (bm *BackupManager) cleanupOldBackups() error {
	backups, err := bm.ListBackups()
	if err != nil {
		return err
	}
	if len(backups) <= bm.maxBackups {
		return nil
	}

	type backupFileInfo struct {
		path    string
		modTime time.Time
	}

	infos := make([]backupFileInfo, 0, len(backups))
	for _, backup := range backups {
		info, err := os.Stat(backup)
		if err != nil {
			continue
		}
		infos = append(infos, backupFileInfo{path: backup, modTime: info.ModTime()})
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].modTime.Equal(infos[j].modTime) {
			return infos[i].path < infos[j].path
		}
		return infos[i].modTime.Before(infos[j].modTime)
	})

	for i := 0; i < len(infos)-bm.maxBackups; i++ {
		if err := os.Remove(infos[i].path); err != nil {
			bm.logger.Warn("Failed to remove old backup",
				zap.String("path", infos[i].path),
				zap.Error(err))
		}
	}
	return nil
}
