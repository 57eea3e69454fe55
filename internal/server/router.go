package server

import (
	"net/http"

	"gpx-track-server/internal/handlers"
	custommiddleware "gpx-track-server/pkg/middleware"
	"gpx-track-server/pkg/models"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes lists every endpoint for startup output
var Routes = []string{
	"POST   /api/v1/uploads             - Upload GPX files (multipart field \"files\", 202 queued)",
	"GET    /api/v1/progress            - Upload progress display state",
	"GET    /api/v1/tracks              - List tracks (search, visible, limit, offset)",
	"GET    /api/v1/tracks/count        - Count tracks",
	"GET    /api/v1/tracks/{id}         - Get a track",
	"GET    /api/v1/tracks/{id}/gpx     - Download the original GPX file",
	"POST   /api/v1/tracks/{id}/toggle  - Toggle track visibility",
	"PUT    /api/v1/tracks/{id}/visibility - Set track visibility",
	"DELETE /api/v1/tracks/{id}         - Remove a track",
	"POST   /api/v1/tracks/show-all     - Show every track and return their bounds",
	"GET    /api/v1/stats               - Registry and queue statistics",
	"POST   /api/v1/backup              - Create a backup",
	"POST   /api/v1/gc                  - Run value log garbage collection",
	"GET    /health                     - Basic health check",
	"GET    /health/detailed            - Detailed health check",
	"GET    /metrics                    - Prometheus metrics",
}

func (a *App) newRouter() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// refuse requests during shutdown before any other work
	e.Use(a.Shutdown.Middleware())
	throttle := custommiddleware.SetupMiddleware(e, a.Config, a.Logger)

	uploadHandler := handlers.NewUploadHandler(a.Processor, a.Logger, a.Config)
	progressHandler := handlers.NewProgressHandler(a.Board)
	trackHandler := handlers.NewTrackHandler(a.Store, a.Logger, a.Config)
	healthHandler := handlers.NewHealthHandler(a.Store, a.Processor.Progress, a.Logger, a.Config).
		WithThrottle(throttle)

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, models.APIResponse{
			Success: true,
			Message: "GPX track server",
			Data:    map[string]interface{}{"routes": Routes},
		})
	})
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})
	e.GET("/health", healthHandler.HealthCheck)
	e.GET("/health/detailed", healthHandler.DetailedHealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	api := e.Group("/api/v1")

	api.POST("/uploads", uploadHandler.Upload)
	api.GET("/progress", progressHandler.GetProgress)

	tracks := api.Group("/tracks")
	tracks.GET("", trackHandler.ListTracks)
	tracks.GET("/count", trackHandler.CountTracks)
	tracks.POST("/show-all", trackHandler.ShowAll)
	tracks.GET("/:id", trackHandler.GetTrack)
	tracks.GET("/:id/gpx", trackHandler.GetTrackGPX)
	tracks.POST("/:id/toggle", trackHandler.ToggleTrack)
	tracks.PUT("/:id/visibility", trackHandler.SetVisibility)
	tracks.DELETE("/:id", trackHandler.DeleteTrack)

	api.GET("/stats", healthHandler.GetStats)
	api.POST("/backup", healthHandler.CreateBackup)
	api.POST("/gc", healthHandler.TriggerGC)

	return e
}
