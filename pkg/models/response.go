package models

import "time"

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// UploadResponse describes an accepted upload.
type UploadResponse struct {
	Received int      `json:"received"`
	Accepted int      `json:"accepted"`
	Skipped  []string `json:"skipped,omitempty"`
	Progress any      `json:"progress"`
}

// ProgressResponse is what the progress endpoint returns.
type ProgressResponse struct {
	Visible   bool    `json:"visible"`
	Text      string  `json:"text,omitempty"`
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Pending   int     `json:"pending"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Percent   float64 `json:"percent"`
	Active    bool    `json:"active"`
	Run       int     `json:"run"`
	Notice    string  `json:"notice,omitempty"`
}

// HealthResponse represents the health status of the server
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    time.Duration          `json:"uptime"`
	Metrics   map[string]interface{} `json:"metrics,omitempty"`
}

// StatsResponse summarises registry and queue state.
type StatsResponse struct {
	TrackCount   int                    `json:"track_count"`
	VisibleCount int                    `json:"visible_count"`
	DatabaseSize int64                  `json:"database_size_bytes"`
	HealthStatus string                 `json:"health_status"`
	LastBackup   *time.Time             `json:"last_backup,omitempty"`
	BackupCount  int                    `json:"backup_count"`
	GCStats      map[string]interface{} `json:"gc_stats,omitempty"`
	Queue        map[string]interface{} `json:"queue,omitempty"`
}

// BackupResponse represents a backup operation response
type BackupResponse struct {
	BackupPath string    `json:"backup_path,omitempty"`
	BackupSize int64     `json:"backup_size_bytes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
