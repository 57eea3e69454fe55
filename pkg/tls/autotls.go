// Package tls provides HTTPS for the track server with certificates from
// Let's Encrypt through Echo's AutoTLS manager.
package tls

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"gpx-track-server/pkg/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

// SetupAutoTLS configures certificate caching and the host policy. With
// EnableHTTPSOnly plain HTTP requests are redirected.
func SetupAutoTLS(e *echo.Echo, cfg *config.Config, appLogger *zap.Logger) error {
	if err := ValidateAutoTLSConfig(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.TLSCacheDir, 0700); err != nil {
		return fmt.Errorf("failed to create TLS cache dir: %w", err)
	}

	e.AutoTLSManager.Prompt = autocert.AcceptTOS
	e.AutoTLSManager.Cache = autocert.DirCache(cfg.TLSCacheDir)

	if len(cfg.TLSHosts) > 0 {
		e.AutoTLSManager.HostPolicy = autocert.HostWhitelist(cfg.TLSHosts...)
		appLogger.Info("AutoTLS configured with host whitelist",
			zap.Strings("hosts", cfg.TLSHosts),
			zap.String("cache_dir", cfg.TLSCacheDir))
	} else {
		appLogger.Warn("AutoTLS configured without host restrictions - suitable for development only",
			zap.String("cache_dir", cfg.TLSCacheDir))
	}

	if cfg.EnableHTTPSOnly {
		e.Pre(middleware.HTTPSRedirect())
		appLogger.Info("HTTPS redirect enabled")
	}
	return nil
}

// StartAutoTLS configures AutoTLS and serves HTTPS on TLSPort. It blocks
// until the server stops; a normal shutdown returns nil.
func StartAutoTLS(e *echo.Echo, cfg *config.Config, appLogger *zap.Logger) error {
	if err := SetupAutoTLS(e, cfg, appLogger); err != nil {
		return err
	}

	appLogger.Info("Starting HTTPS server with AutoTLS",
		zap.String("port", cfg.TLSPort),
		zap.Bool("https_only", cfg.EnableHTTPSOnly),
		zap.Int("host_count", len(cfg.TLSHosts)))

	e.TLSServer.ReadTimeout = cfg.ReadTimeout
	e.TLSServer.WriteTimeout = cfg.WriteTimeout

	err := e.StartAutoTLS(":" + cfg.TLSPort)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("AutoTLS server failed on port %s: %w", cfg.TLSPort, err)
	}
	return nil
}

// ValidateAutoTLSConfig catches configuration problems before startup
func ValidateAutoTLSConfig(cfg *config.Config) error {
	if cfg.TLSPort == "" {
		return fmt.Errorf("TLS_PORT cannot be empty when TLS is enabled")
	}
	if cfg.TLSCacheDir == "" {
		return fmt.Errorf("TLS_CACHE_DIR cannot be empty when TLS is enabled")
	}
	for _, host := range cfg.TLSHosts {
		if strings.TrimSpace(host) == "" {
			return fmt.Errorf("empty hostname in TLS_HOSTS list")
		}
		if strings.Contains(host, "://") || strings.Contains(host, "/") {
			return fmt.Errorf("TLS_HOSTS entry %q must be a bare hostname", host)
		}
	}
	return nil
}

// GetAutoTLSStatus describes the TLS setup for diagnostics
func GetAutoTLSStatus(cfg *config.Config) map[string]interface{} {
	status := map[string]interface{}{
		"enabled":    cfg.EnableTLS,
		"port":       cfg.TLSPort,
		"cache_dir":  cfg.TLSCacheDir,
		"https_only": cfg.EnableHTTPSOnly,
		"hosts":      cfg.TLSHosts,
	}
	if len(cfg.TLSHosts) == 0 {
		status["host_policy"] = "unrestricted"
	} else {
		status["host_policy"] = "whitelist"
	}
	return status
}
