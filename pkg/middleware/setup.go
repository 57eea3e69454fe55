package middleware

import (
	"time"

	"gpx-track-server/pkg/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// publicPaths bypass authentication, the IP allowlist and rate limiting
var publicPaths = map[string]bool{
	"/":                true,
	"/ping":            true,
	"/health":          true,
	"/health/detailed": true,
	"/metrics":         true,
}

func isPublic(c echo.Context) bool {
	return publicPaths[c.Request().URL.Path]
}

// SetupMiddleware installs the middleware stack in order: request id,
// per-client rate limit, concurrency throttle, IP allowlist, recovery,
// security headers, compression, request timeout, CORS and API key auth.
// The returned throttle is exposed on the stats endpoint.
func SetupMiddleware(e *echo.Echo, cfg *config.Config, appLogger *zap.Logger) *Throttle {
	e.Use(middleware.RequestID())

	if cfg.EnableRequestLogging {
		e.Use(RequestLogger(appLogger))
	}

	if cfg.EchoRateLimit > 0 {
		e.Use(SetupEchoRateLimiter(cfg))
	}

	throttle := NewThrottle(cfg.ThrottleLimit, cfg.ThrottleBacklogLimit, cfg.ThrottleBacklogTimeout)
	e.Use(throttle.Middleware())

	if len(cfg.AllowedIPs) > 0 {
		e.Use(NewIPAllowlist(cfg.AllowedIPs, securityLogger(cfg, appLogger)).Middleware())
	}

	e.Use(middleware.Recover())

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         hstsMaxAge(cfg),
	}))
	if len(cfg.SecurityHeaders) > 0 {
		e.Use(SecurityHeaders(cfg.SecurityHeaders))
	}

	if cfg.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.CompressionLevel,
			// raw GPX downloads are served as-is so clients can stream them
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/api/v1/tracks/:id/gpx"
			},
		}))
	}

	if cfg.RequestTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout:      cfg.RequestTimeout,
			ErrorMessage: "request timed out",
		}))
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.AllowedOrigins,
		AllowMethods:  []string{echo.GET, echo.POST, echo.PUT, echo.PATCH, echo.DELETE, echo.OPTIONS},
		AllowHeaders:  []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposeHeaders: []string{"X-Request-Id", "X-Total-Count"},
		MaxAge:        300,
	}))

	if cfg.EnableAuth {
		e.Use(EchoAPIKeyMiddleware(cfg.APIKey, securityLogger(cfg, appLogger)))
	}

	return throttle
}

// RequestLogger writes one structured line per request
func RequestLogger(appLogger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("ip", v.RemoteIP),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				appLogger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			appLogger.Info("request", fields...)
			return nil
		},
	})
}

// SecurityHeaders sets fixed response headers from configuration
func SecurityHeaders(headers map[string]string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for k, v := range headers {
				h.Set(k, v)
			}
			return next(c)
		}
	}
}

func hstsMaxAge(cfg *config.Config) int {
	if cfg.EnableTLS {
		return int((365 * 24 * time.Hour).Seconds())
	}
	return 0
}

func securityLogger(cfg *config.Config, appLogger *zap.Logger) *zap.Logger {
	if cfg.EnableSecurityLogging {
		return appLogger
	}
	return zap.NewNop()
}
