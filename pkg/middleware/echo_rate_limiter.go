package middleware

import (
	"net/http"

	"gpx-track-server/pkg/config"
	"gpx-track-server/pkg/models"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// SetupEchoRateLimiter limits requests per client IP. Health probes are exempt.
func SetupEchoRateLimiter(cfg *config.Config) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: isPublic,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.EchoRateLimit),
				Burst:     cfg.EchoBurstLimit,
				ExpiresIn: cfg.EchoRateLimitExpiresIn,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, models.APIResponse{
				Message: "unable to identify client",
				Code:    "rate_limit_error",
			})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, models.APIResponse{
				Message: "too many requests",
				Code:    "rate_limited",
			})
		},
	})
}
