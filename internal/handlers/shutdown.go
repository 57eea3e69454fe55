package handlers

import (
	"net/http"
	"sync/atomic"

	"gpx-track-server/pkg/models"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ShutdownHandler refuses new requests once shutdown begins
type ShutdownHandler struct {
	shuttingDown atomic.Bool
	logger       *zap.Logger
}

// NewShutdownHandler creates a new shutdown handler
func NewShutdownHandler(logger *zap.Logger) *ShutdownHandler {
	return &ShutdownHandler{logger: logger}
}

// InitiateShutdown flips the handler into refusing mode. Later calls are no-ops.
func (sh *ShutdownHandler) InitiateShutdown() {
	if sh.shuttingDown.CompareAndSwap(false, true) {
		sh.logger.Info("Shutdown state activated, new requests will be refused with 503")
	}
}

// IsShuttingDown reports whether shutdown has been initiated
func (sh *ShutdownHandler) IsShuttingDown() bool {
	return sh.shuttingDown.Load()
}

// Middleware returns echo middleware answering 503 during shutdown
func (sh *ShutdownHandler) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if sh.IsShuttingDown() {
				c.Response().Header().Set("Connection", "close")
				c.Response().Header().Set("Retry-After", "30")
				return c.JSON(http.StatusServiceUnavailable, models.APIResponse{
					Message: "Server is shutting down",
					Code:    "server_shutting_down",
				})
			}
			return next(c)
		}
	}
}
