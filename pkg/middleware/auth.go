package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// EchoAPIKeyMiddleware requires X-API-Key (or ?api_key=) on every
// non-public path.
func EchoAPIKeyMiddleware(expectedAPIKey string, appLogger *zap.Logger) echo.MiddlewareFunc {
	expected := []byte(expectedAPIKey)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isPublic(c) {
				return next(c)
			}

			apiKey := c.Request().Header.Get("X-API-Key")
			if apiKey == "" {
				apiKey = c.QueryParam("api_key")
			}

			if subtle.ConstantTimeCompare([]byte(apiKey), expected) != 1 {
				appLogger.Warn("Unauthorized API access attempt",
					zap.String("ip", c.RealIP()),
					zap.String("path", c.Request().URL.Path),
					zap.String("method", c.Request().Method))
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
			}

			return next(c)
		}
	}
}
