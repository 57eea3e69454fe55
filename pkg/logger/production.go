package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Preset names accepted by FromPreset
const (
	PresetHighPerformance = "high-performance"
	PresetBalanced        = "balanced"
	PresetDebug           = "debug"
)

// Config provides logging configuration
type Config struct {
	// Performance settings
	DisableCaller     bool // Disable caller information
	DisableStacktrace bool // Disable stacktraces
	SamplingEnabled   bool // Enable sampling to reduce log volume

	// Sampling configuration
	SamplingInitial    int // Initial sampling rate
	SamplingThereafter int // Subsequent sampling rate

	// Output settings
	OutputPaths      []string // Output file paths
	ErrorOutputPaths []string // Error output file paths

	// Level settings
	Level zapcore.Level // Minimum log level
}

// NewLogger creates a zap logger from config
func NewLogger(config Config) (*zap.Logger, error) {
	if config.SamplingInitial == 0 {
		config.SamplingInitial = 100
	}
	if config.SamplingThereafter == 0 {
		config.SamplingThereafter = 100
	}
	if len(config.OutputPaths) == 0 {
		config.OutputPaths = []string{"stdout"}
	}
	if len(config.ErrorOutputPaths) == 0 {
		config.ErrorOutputPaths = []string{"stderr"}
	}

	if err := ensureLogDirs(config.OutputPaths, config.ErrorOutputPaths); err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()

	zapConfig.EncoderConfig.TimeKey = "ts"
	zapConfig.EncoderConfig.LevelKey = "level"
	zapConfig.EncoderConfig.MessageKey = "msg"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	if config.DisableCaller {
		zapConfig.EncoderConfig.CallerKey = ""
	}
	if config.DisableStacktrace {
		zapConfig.EncoderConfig.StacktraceKey = ""
	}

	// Sampling drops repeated per-file queue lines during large imports
	if config.SamplingEnabled {
		zapConfig.Sampling = &zap.SamplingConfig{
			Initial:    config.SamplingInitial,
			Thereafter: config.SamplingThereafter,
		}
	} else {
		zapConfig.Sampling = nil
	}

	zapConfig.Level = zap.NewAtomicLevelAt(config.Level)
	zapConfig.OutputPaths = config.OutputPaths
	zapConfig.ErrorOutputPaths = config.ErrorOutputPaths

	return zapConfig.Build(
		zap.AddStacktrace(zapcore.DPanicLevel),
	)
}

// GetHighPerformanceConfig returns a configuration that only keeps warnings and errors
func GetHighPerformanceConfig() Config {
	return Config{
		DisableCaller:      true,
		DisableStacktrace:  true,
		SamplingEnabled:    true,
		SamplingInitial:    1000,
		SamplingThereafter: 1000,
		Level:              zapcore.WarnLevel,
		OutputPaths:        []string{"stdout", "logs/info.log"},
		ErrorOutputPaths:   []string{"stderr", "logs/error.log"},
	}
}

// GetBalancedConfig returns a configuration balancing volume and observability
func GetBalancedConfig() Config {
	return Config{
		DisableCaller:      false,
		DisableStacktrace:  true,
		SamplingEnabled:    true,
		SamplingInitial:    100,
		SamplingThereafter: 100,
		Level:              zapcore.InfoLevel,
		OutputPaths:        []string{"stdout", "logs/info.log"},
		ErrorOutputPaths:   []string{"stderr", "logs/error.log"},
	}
}

// GetDebugConfig returns a configuration for development/debugging
func GetDebugConfig() Config {
	return Config{
		DisableCaller:     false,
		DisableStacktrace: false,
		SamplingEnabled:   false,
		Level:             zapcore.DebugLevel,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// FromPreset resolves a preset name and an optional level override
// ("debug", "info", "warn", "error") into a Config.
func FromPreset(preset, level string) (Config, error) {
	var config Config
	switch strings.ToLower(strings.TrimSpace(preset)) {
	case PresetHighPerformance:
		config = GetHighPerformanceConfig()
	case PresetDebug:
		config = GetDebugConfig()
	case PresetBalanced, "":
		config = GetBalancedConfig()
	default:
		return Config{}, fmt.Errorf("unknown log preset %q", preset)
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return Config{}, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		config.Level = lvl
	}
	return config, nil
}

// CreateLoggerFromEnv builds a logger from LOG_PRESET and LOG_LEVEL
func CreateLoggerFromEnv() (*zap.Logger, error) {
	config, err := FromPreset(os.Getenv("LOG_PRESET"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}
	return NewLogger(config)
}

// NewDefaultLogger creates a logger with balanced configuration
func NewDefaultLogger() (*zap.Logger, error) {
	return NewLogger(GetBalancedConfig())
}

// ensureLogDirs creates parent directories for file outputs
func ensureLogDirs(pathSets ...[]string) error {
	for _, paths := range pathSets {
		for _, p := range paths {
			if p == "stdout" || p == "stderr" || strings.Contains(p, "://") {
				continue
			}
			if dir := filepath.Dir(p); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create log directory %s: %w", dir, err)
				}
			}
		}
	}
	return nil
}
