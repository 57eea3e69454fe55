package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the GPX track server
type Config struct {
	// =============================================================================
	// GROUP 1: HTTP SERVER SETTINGS
	// =============================================================================
	Port         string        // HTTP server port
	Host         string        // HTTP server host/bind address
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout

	// =============================================================================
	// GROUP 1.1: TLS/HTTPS SETTINGS
	// =============================================================================
	EnableTLS       bool     // Enable HTTPS with automatic Let's Encrypt certificates
	TLSPort         string   // HTTPS server port
	TLSCacheDir     string   // Directory to cache TLS certificates
	TLSHosts        []string // Allowed hostnames for TLS certificates
	EnableHTTPSOnly bool     // Redirect all HTTP traffic to HTTPS

	// =============================================================================
	// GROUP 2: TRACK REGISTRY SETTINGS
	// =============================================================================
	DataDir         string        // Directory for BadgerDB data files
	BackupDir       string        // Directory for backup files
	BackupInterval  time.Duration // How often to create backups
	MaxBackups      int           // Maximum number of backups to retain
	GCInterval      time.Duration // Value log GC interval
	GCThreshold     float64       // Minimum reclaimable ratio to rewrite a value log file
	PerformanceMode bool          // Async writes and smaller tables
	CacheSize       int64         // Block cache size in bytes

	// =============================================================================
	// GROUP 3: UPLOAD QUEUE SETTINGS
	// =============================================================================
	BatchSize         int           // Files loaded concurrently per batch
	StepDelay         time.Duration // Pause between batches
	ItemTimeout       time.Duration // Per-file load limit, 0 = none
	ConfirmThreshold  int           // Uploads with more files need confirm=true
	ProgressHideDelay time.Duration // How long a finished progress bar stays visible

	// =============================================================================
	// GROUP 4: TRACK DISPLAY SETTINGS
	// =============================================================================
	BulkThreshold          int // Imports larger than this only show VisibleLimit tracks
	VisibleLimit           int // Tracks left visible during a bulk import
	RevealConfirmThreshold int // Show-all with more tracks needs confirm=true

	// =============================================================================
	// GROUP 5: AUTHENTICATION & AUTHORIZATION SETTINGS
	// =============================================================================
	APIKey         string   // API key for authentication
	EnableAuth     bool     // Enable API key authentication
	AllowedOrigins []string // CORS allowed origins
	AllowedIPs     []string // IP allowlist for network-level security

	// =============================================================================
	// GROUP 6: REQUEST PROCESSING SETTINGS
	// =============================================================================
	MaxUploadSize      int64         // Maximum multipart upload size in bytes
	MaxFileSize        int64         // Maximum size of a single GPX file in bytes
	MaxPaginationLimit int           // Maximum list page size
	RequestTimeout     time.Duration // Timeout for individual requests
	ShutdownTimeout    time.Duration // Graceful shutdown timeout

	// =============================================================================
	// GROUP 7: RATE LIMITING SETTINGS
	// =============================================================================
	ThrottleLimit          int           // Maximum concurrent requests
	ThrottleBacklogLimit   int           // Maximum queued requests
	ThrottleBacklogTimeout time.Duration // Timeout for queued requests

	EchoRateLimit          float64       // Requests per second per client
	EchoBurstLimit         int           // Burst per client
	EchoRateLimitExpiresIn time.Duration // Idle limiter expiry

	// =============================================================================
	// GROUP 8: HTTP COMPRESSION & SECURITY
	// =============================================================================
	EnableCompression bool              // Enable response compression
	CompressionLevel  int               // Compression level (1-9)
	SecurityHeaders   map[string]string // Custom security headers

	// =============================================================================
	// GROUP 9: LOGGING SETTINGS
	// =============================================================================
	LogPreset string // balanced, debug or high-performance
	LogLevel  string // Overrides the preset level when set

	EnableRequestLogging    bool // Per-request access log
	EnableManagementLogging bool // Backup, GC and show-all operations
	EnableSecurityLogging   bool // Auth and allowlist rejections
	EnableErrorLogging      bool // Error-level logging in handlers
	EnableWarnLogging       bool // Warning-level logging in handlers
	EnableValidationLogging bool // Validation failures in handlers
}

// Load loads configuration from environment variables
func Load() *Config {
	// Attempt to load .env file but proceed if not found
	godotenv.Load()

	return &Config{
		Port:         env("PORT", "8081"),
		Host:         env("HOST", "0.0.0.0"),
		ReadTimeout:  envDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: envDuration("WRITE_TIMEOUT", 60*time.Second),

		EnableTLS:       envBool("ENABLE_TLS", false),
		TLSPort:         env("TLS_PORT", "443"),
		TLSCacheDir:     env("TLS_CACHE_DIR", "./certs"),
		TLSHosts:        envStringSlice("TLS_HOSTS", []string{}),
		EnableHTTPSOnly: envBool("ENABLE_HTTPS_ONLY", false),

		DataDir:         env("DATA_DIR", "./data"),
		BackupDir:       env("BACKUP_DIR", "./backups"),
		BackupInterval:  envDuration("BACKUP_INTERVAL", 6*time.Hour),
		MaxBackups:      envInt("MAX_BACKUPS", 7),
		GCInterval:      envDuration("GC_INTERVAL", 5*time.Minute),
		GCThreshold:     envFloat64("GC_THRESHOLD", 0.5),
		PerformanceMode: envBool("PERFORMANCE_MODE", false),
		CacheSize:       envBytes("CACHE_SIZE", 64<<20),

		BatchSize:         envInt("BATCH_SIZE", 5),
		StepDelay:         envDuration("STEP_DELAY", 10*time.Millisecond),
		ItemTimeout:       envDuration("ITEM_TIMEOUT", 0),
		ConfirmThreshold:  envInt("CONFIRM_THRESHOLD", 50),
		ProgressHideDelay: envDuration("PROGRESS_HIDE_DELAY", 1500*time.Millisecond),

		BulkThreshold:          envInt("BULK_THRESHOLD", 25),
		VisibleLimit:           envInt("VISIBLE_LIMIT", 10),
		RevealConfirmThreshold: envInt("REVEAL_CONFIRM_THRESHOLD", 25),

		APIKey:         env("API_KEY", ""),
		EnableAuth:     envBool("ENABLE_AUTH", false),
		AllowedOrigins: envStringSlice("ALLOWED_ORIGINS", []string{"*"}),
		AllowedIPs:     envStringSlice("ALLOWED_IPS", []string{}),

		MaxUploadSize:      envBytes("MAX_UPLOAD_SIZE", 256<<20),
		MaxFileSize:        envBytes("MAX_FILE_SIZE", 32<<20),
		MaxPaginationLimit: envInt("MAX_PAGINATION_LIMIT", 1000),
		RequestTimeout:     envDuration("REQUEST_TIMEOUT", 60*time.Second),
		ShutdownTimeout:    envDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		ThrottleLimit:          envInt("THROTTLE_LIMIT", 200),
		ThrottleBacklogLimit:   envInt("THROTTLE_BACKLOG_LIMIT", 50),
		ThrottleBacklogTimeout: envDuration("THROTTLE_BACKLOG_TIMEOUT", 30*time.Second),

		EchoRateLimit:          envFloat64("ECHO_RATE_LIMIT", 50),
		EchoBurstLimit:         envInt("ECHO_BURST_LIMIT", 100),
		EchoRateLimitExpiresIn: envDuration("ECHO_RATE_LIMIT_EXPIRES_IN", 3*time.Minute),

		EnableCompression: envBool("ENABLE_COMPRESSION", true),
		CompressionLevel:  envInt("COMPRESSION_LEVEL", 5),
		SecurityHeaders: envStringMap("SECURITY_HEADERS", map[string]string{
			"X-Content-Type-Options": "nosniff",
			"X-Frame-Options":        "DENY",
		}),

		LogPreset: env("LOG_PRESET", "balanced"),
		LogLevel:  env("LOG_LEVEL", ""),

		EnableRequestLogging:    envBool("ENABLE_REQUEST_LOGGING", false),
		EnableManagementLogging: envBool("ENABLE_MANAGEMENT_LOGGING", true),
		EnableSecurityLogging:   envBool("ENABLE_SECURITY_LOGGING", true),
		EnableErrorLogging:      envBool("ENABLE_ERROR_LOGGING", true),
		EnableWarnLogging:       envBool("ENABLE_WARN_LOGGING", true),
		EnableValidationLogging: envBool("ENABLE_VALIDATION_LOGGING", false),
	}
}

// Validate rejects settings the server cannot run with
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.BatchSize < 1 || cfg.BatchSize > 1000 {
		errs = append(errs, fmt.Errorf("BATCH_SIZE must be between 1 and 1000, got %d", cfg.BatchSize))
	}
	if cfg.ConfirmThreshold < 1 {
		errs = append(errs, fmt.Errorf("CONFIRM_THRESHOLD must be positive, got %d", cfg.ConfirmThreshold))
	}
	if cfg.VisibleLimit < 0 || cfg.BulkThreshold < 0 {
		errs = append(errs, errors.New("BULK_THRESHOLD and VISIBLE_LIMIT must not be negative"))
	}
	if cfg.MaxFileSize > cfg.MaxUploadSize {
		errs = append(errs, fmt.Errorf("MAX_FILE_SIZE (%s) exceeds MAX_UPLOAD_SIZE (%s)",
			humanize.IBytes(uint64(cfg.MaxFileSize)), humanize.IBytes(uint64(cfg.MaxUploadSize))))
	}
	if cfg.EnableAuth && cfg.APIKey == "" {
		errs = append(errs, errors.New("ENABLE_AUTH requires API_KEY"))
	}
	if cfg.MaxPaginationLimit < 1 {
		errs = append(errs, fmt.Errorf("MAX_PAGINATION_LIMIT must be positive, got %d", cfg.MaxPaginationLimit))
	}
	return errors.Join(errs...)
}

// DisplayConfiguration prints the effective configuration
func (cfg *Config) DisplayConfiguration() {
	fmt.Println("⚙️  Configuration:")
	fmt.Printf("   Address: %s:%s\n", cfg.Host, cfg.Port)
	if cfg.EnableTLS {
		fmt.Printf("   TLS Port: %s\n", cfg.TLSPort)
		fmt.Printf("   TLS Cache Dir: %s\n", cfg.TLSCacheDir)
		if len(cfg.TLSHosts) > 0 {
			fmt.Printf("   TLS Hosts: %v\n", cfg.TLSHosts)
		} else {
			fmt.Printf("   TLS Hosts: Any (development mode)\n")
		}
		fmt.Printf("   HTTPS Only: %t\n", cfg.EnableHTTPSOnly)
	}

	fmt.Printf("\n🗺️  Track Registry:\n")
	fmt.Printf("   Data Directory: %s\n", cfg.DataDir)
	fmt.Printf("   Backup Directory: %s (every %v, keep %d)\n", cfg.BackupDir, cfg.BackupInterval, cfg.MaxBackups)
	fmt.Printf("   GC Interval: %v (threshold %.2f)\n", cfg.GCInterval, cfg.GCThreshold)
	fmt.Printf("   Performance Mode: %v\n", cfg.PerformanceMode)
	fmt.Printf("   Cache Size: %s\n", humanize.IBytes(uint64(cfg.CacheSize)))

	fmt.Printf("\n📦 Upload Queue:\n")
	fmt.Printf("   Batch Size: %d files\n", cfg.BatchSize)
	fmt.Printf("   Step Delay: %v\n", cfg.StepDelay)
	if cfg.ItemTimeout > 0 {
		fmt.Printf("   Item Timeout: %v\n", cfg.ItemTimeout)
	} else {
		fmt.Printf("   Item Timeout: none\n")
	}
	fmt.Printf("   Confirm Above: %d files\n", cfg.ConfirmThreshold)
	fmt.Printf("   Bulk Import: above %d files only %d tracks stay visible\n", cfg.BulkThreshold, cfg.VisibleLimit)
	fmt.Printf("   Show-All Confirm Above: %d tracks\n", cfg.RevealConfirmThreshold)
	fmt.Printf("   Max Upload: %s (per file %s)\n",
		humanize.IBytes(uint64(cfg.MaxUploadSize)), humanize.IBytes(uint64(cfg.MaxFileSize)))

	fmt.Printf("\n🔐 Security & Authentication:\n")
	fmt.Printf("   API Authentication: %t\n", cfg.EnableAuth)
	fmt.Printf("   Allowed Origins: %v\n", cfg.AllowedOrigins)
	if len(cfg.AllowedIPs) > 0 {
		fmt.Printf("   IP Allowlist: %v\n", cfg.AllowedIPs)
	} else {
		fmt.Printf("   IP Allowlist: All IPs allowed\n")
	}

	fmt.Printf("\n⚡ Performance & Rate Limiting:\n")
	fmt.Printf("   Request Timeout: %v\n", cfg.RequestTimeout)
	fmt.Printf("   Shutdown Timeout: %v\n", cfg.ShutdownTimeout)
	fmt.Printf("   Throttle: %d concurrent, %d queued, %v wait\n",
		cfg.ThrottleLimit, cfg.ThrottleBacklogLimit, cfg.ThrottleBacklogTimeout)
	fmt.Printf("   Rate Limit: %.0f req/s, burst %d\n", cfg.EchoRateLimit, cfg.EchoBurstLimit)
	if cfg.EnableCompression {
		fmt.Printf("   Compression: Enabled (Level %d)\n", cfg.CompressionLevel)
	} else {
		fmt.Printf("   Compression: Disabled\n")
	}

	fmt.Printf("\n📝 Logging:\n")
	fmt.Printf("   Preset: %s\n", cfg.LogPreset)
	if cfg.LogLevel != "" {
		fmt.Printf("   Level: %s\n", cfg.LogLevel)
	}
	fmt.Printf("   Request Logging: %v\n", cfg.EnableRequestLogging)
	fmt.Printf("   Management Logging: %v\n", cfg.EnableManagementLogging)
	fmt.Printf("   Security Logging: %v\n", cfg.EnableSecurityLogging)
	fmt.Println()
}

// Helper functions to get environment variables with defaults

func env(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// envBytes accepts plain byte counts as well as "32MB" or "1.5GiB"
func envBytes(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if size, err := humanize.ParseBytes(value); err == nil {
			return int64(size)
		}
	}
	return defaultValue
}

func envBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func envStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		result := make([]string, 0)
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func envStringMap(key string, defaultValue map[string]string) map[string]string {
	if value, exists := os.LookupEnv(key); exists {
		result := make(map[string]string)
		for _, pair := range strings.Split(value, ",") {
			if kv := strings.SplitN(strings.TrimSpace(pair), "=", 2); len(kv) == 2 {
				if k := strings.TrimSpace(kv[0]); k != "" {
					result[k] = strings.TrimSpace(kv[1])
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func envFloat64(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
