package handlers

import (
	"errors"
	"net/http"
	"os"
	"time"

	"gpx-track-server/pkg/config"
	"gpx-track-server/pkg/middleware"
	"gpx-track-server/pkg/models"
	"gpx-track-server/pkg/queue"
	"gpx-track-server/pkg/storage"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthHandler handles health check, statistics and management endpoints
type HealthHandler struct {
	storage   storage.Storage
	progress  func() queue.Progress
	throttle  *middleware.Throttle
	startTime time.Time
	logger    *zap.Logger
	cfg       *config.Config
}

// NewHealthHandler creates a new health handler. progress may be nil.
func NewHealthHandler(store storage.Storage, progress func() queue.Progress, appLogger *zap.Logger, cfg *config.Config) *HealthHandler {
	return &HealthHandler{
		storage:   store,
		progress:  progress,
		startTime: time.Now(),
		logger:    appLogger,
		cfg:       cfg,
	}
}

// WithThrottle adds throttle counters to the stats endpoint
func (h *HealthHandler) WithThrottle(t *middleware.Throttle) *HealthHandler {
	h.throttle = t
	return h
}

func (h *HealthHandler) logManagement(msg string, fields ...zap.Field) {
	if h.cfg.EnableManagementLogging {
		h.logger.Info(msg, fields...)
	}
}

// HealthCheck handles GET /health
//
// Always 200 while the process answers; track_count confirms the registry responds.
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.startTime),
		Metrics: map[string]interface{}{
			"track_count": h.storage.Count(),
		},
	})
}

// DetailedHealthCheck handles GET /health/detailed
//
// Returns 200 when healthy, 206 when degraded and 503 when unhealthy.
func (h *HealthHandler) DetailedHealthCheck(c echo.Context) error {
	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.startTime),
		Metrics:   map[string]interface{}{"track_count": h.storage.Count()},
	}

	status := http.StatusOK
	if badgerStorage, ok := h.storage.(*storage.BadgerStorage); ok {
		for k, v := range badgerStorage.GetHealthStatus() {
			response.Metrics[k] = v
		}
		overall := badgerStorage.GetOverallHealth()
		response.Status = overall.String()
		switch overall {
		case storage.HealthStatusUnhealthy:
			status = http.StatusServiceUnavailable
		case storage.HealthStatusDegraded:
			status = http.StatusPartialContent
		}
	}

	if h.progress != nil {
		response.Metrics["queue"] = h.progress()
	}

	return c.JSON(status, response)
}

// GetStats handles GET /api/v1/stats
func (h *HealthHandler) GetStats(c echo.Context) error {
	visible := true
	response := models.StatsResponse{
		TrackCount:   h.storage.Count(),
		VisibleCount: h.storage.CountWithFilter(&storage.TrackFilter{Visible: &visible}),
		HealthStatus: "healthy",
	}

	if badgerStorage, ok := h.storage.(*storage.BadgerStorage); ok {
		response.HealthStatus = badgerStorage.GetOverallHealth().String()

		if backupStats, err := badgerStorage.GetBackupStats(); err == nil {
			if count, ok := backupStats["backup_count"].(int); ok {
				response.BackupCount = count
			}
			if last := badgerStorage.GetLastBackupTime(); !last.IsZero() {
				response.LastBackup = &last
			}
		}
		response.GCStats = badgerStorage.GetGCStats()
		if size, err := badgerStorage.GetDatabaseFileSize(); err == nil {
			response.DatabaseSize = size
		}
	}

	if h.progress != nil || h.throttle != nil {
		response.Queue = map[string]interface{}{}
		if h.progress != nil {
			response.Queue["progress"] = h.progress()
		}
		if h.throttle != nil {
			response.Queue["throttle"] = h.throttle.Stats()
		}
	}

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    response,
	})
}

// TriggerGC handles POST /api/v1/gc
func (h *HealthHandler) TriggerGC(c echo.Context) error {
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	h.logManagement("Manual GC operation triggered",
		zap.String("client_ip", c.RealIP()),
		zap.String("request_id", requestID))

	startTime := time.Now()
	if err := h.storage.RunGC(); err != nil {
		h.logger.Error("Failed to run GC", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, models.APIResponse{
			Message: "Failed to run garbage collection",
			Data:    map[string]string{"error": err.Error()},
		})
	}

	duration := time.Since(startTime)
	h.logManagement("Manual GC operation completed",
		zap.String("request_id", requestID),
		zap.Duration("duration", duration))

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Garbage collection completed successfully",
		Data:    map[string]interface{}{"duration": duration.String()},
	})
}

// CreateBackup handles POST /api/v1/backup
func (h *HealthHandler) CreateBackup(c echo.Context) error {
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	h.logManagement("Manual backup operation triggered",
		zap.String("client_ip", c.RealIP()),
		zap.String("request_id", requestID))

	startTime := time.Now()
	path, err := h.storage.CreateBackup()
	if err != nil {
		h.logger.Error("Failed to create backup", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrStorageNotReady) {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, models.APIResponse{
			Message: "Failed to create backup",
			Data:    map[string]string{"error": err.Error()},
		})
	}

	response := models.BackupResponse{
		BackupPath: path,
		CreatedAt:  time.Now(),
	}
	if info, err := os.Stat(path); err == nil {
		response.BackupSize = info.Size()
	}

	h.logManagement("Manual backup operation completed",
		zap.String("request_id", requestID),
		zap.String("path", path),
		zap.Int64("size", response.BackupSize),
		zap.Duration("duration", time.Since(startTime)))

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Backup created successfully",
		Data:    response,
	})
}
