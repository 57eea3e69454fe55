package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"gpx-track-server/pkg/config"
	"gpx-track-server/pkg/models"
	"gpx-track-server/pkg/storage"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// GPXContentType is served for raw track downloads
const GPXContentType = "application/gpx+xml"

// TrackHandler handles HTTP requests for the track registry
type TrackHandler struct {
	storage   storage.Storage
	logger    *zap.Logger
	validator *RequestValidator
	cfg       *config.Config
}

// NewTrackHandler creates a new track handler
func NewTrackHandler(store storage.Storage, appLogger *zap.Logger, cfg *config.Config) *TrackHandler {
	return &TrackHandler{
		storage:   store,
		logger:    appLogger,
		validator: NewRequestValidator(cfg),
		cfg:       cfg,
	}
}

func (h *TrackHandler) logValidationError(msg string, fields ...zap.Field) {
	if h.cfg.EnableValidationLogging {
		h.logger.Warn(msg, fields...)
	}
}

func (h *TrackHandler) logError(msg string, fields ...zap.Field) {
	if h.cfg.EnableErrorLogging {
		h.logger.Error(msg, fields...)
	}
}

func (h *TrackHandler) invalidID(c echo.Context, id string, err error) error {
	h.logValidationError("Invalid track ID", zap.String("id", id), zap.Error(err))
	return c.JSON(http.StatusBadRequest, models.APIResponse{
		Message: err.Error(),
		Code:    "invalid_id",
	})
}

func (h *TrackHandler) storageError(c echo.Context, op, id string, err error) error {
	if errors.Is(err, storage.ErrTrackNotFound) {
		return c.JSON(http.StatusNotFound, models.APIResponse{
			Message: "Track not found",
			Code:    "not_found",
		})
	}
	h.logError("Track operation failed", zap.String("op", op), zap.String("id", id), zap.Error(err))
	if errors.Is(err, storage.ErrStorageNotReady) {
		return c.JSON(http.StatusServiceUnavailable, models.APIResponse{
			Message: "Track registry unavailable",
			Code:    "unavailable",
		})
	}
	return c.JSON(http.StatusInternalServerError, models.APIResponse{
		Message: fmt.Sprintf("Failed to %s track", op),
	})
}

// ListTracks handles GET /api/v1/tracks
func (h *TrackHandler) ListTracks(c echo.Context) error {
	q, filter, err := h.validator.ParseTrackQuery(c)
	if err != nil {
		h.logValidationError("Invalid list parameters", zap.Error(err))
		return c.JSON(http.StatusBadRequest, models.APIResponse{
			Message: err.Error(),
			Code:    "invalid_query",
		})
	}

	tracks, err := h.storage.List(q.Limit, q.Offset, filter)
	if err != nil {
		return h.storageError(c, "list", "", err)
	}
	total := h.storage.CountWithFilter(filter)

	views := make([]models.TrackView, len(tracks))
	for i, t := range tracks {
		views[i] = models.NewTrackView(t)
	}

	c.Response().Header().Set("X-Total-Count", strconv.Itoa(total))
	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"tracks": views,
			"total":  total,
			"limit":  q.Limit,
			"offset": q.Offset,
		},
	})
}

// CountTracks handles GET /api/v1/tracks/count
func (h *TrackHandler) CountTracks(c echo.Context) error {
	_, filter, err := h.validator.ParseTrackQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.APIResponse{
			Message: err.Error(),
			Code:    "invalid_query",
		})
	}
	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    map[string]int{"count": h.storage.CountWithFilter(filter)},
	})
}

// GetTrack handles GET /api/v1/tracks/:id
func (h *TrackHandler) GetTrack(c echo.Context) error {
	id := c.Param("id")
	if err := h.validator.ValidateID(id); err != nil {
		return h.invalidID(c, id, err)
	}
	track, err := h.storage.Get(id)
	if err != nil {
		return h.storageError(c, "get", id, err)
	}
	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    models.NewTrackView(track),
	})
}

// GetTrackGPX handles GET /api/v1/tracks/:id/gpx and returns the file as uploaded
func (h *TrackHandler) GetTrackGPX(c echo.Context) error {
	id := c.Param("id")
	if err := h.validator.ValidateID(id); err != nil {
		return h.invalidID(c, id, err)
	}
	track, err := h.storage.Get(id)
	if err != nil {
		return h.storageError(c, "download", id, err)
	}
	raw, err := h.storage.GetGPX(id)
	if err != nil {
		return h.storageError(c, "download", id, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": track.FileName}))
	return c.Blob(http.StatusOK, GPXContentType, raw)
}

// ToggleTrack handles POST /api/v1/tracks/:id/toggle
func (h *TrackHandler) ToggleTrack(c echo.Context) error {
	id := c.Param("id")
	if err := h.validator.ValidateID(id); err != nil {
		return h.invalidID(c, id, err)
	}
	track, err := h.storage.Toggle(id)
	if err != nil {
		return h.storageError(c, "toggle", id, err)
	}
	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    models.NewTrackView(track),
	})
}

type visibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

// SetVisibility handles PUT /api/v1/tracks/:id/visibility
func (h *TrackHandler) SetVisibility(c echo.Context) error {
	id := c.Param("id")
	if err := h.validator.ValidateID(id); err != nil {
		return h.invalidID(c, id, err)
	}
	var req visibilityRequest
	if err := c.Bind(&req); err != nil || h.validator.validator.Struct(req) != nil {
		return c.JSON(http.StatusBadRequest, models.APIResponse{
			Message: `Body must be {"visible": true|false}`,
			Code:    "invalid_body",
		})
	}
	track, err := h.storage.SetVisible(id, *req.Visible)
	if err != nil {
		return h.storageError(c, "update", id, err)
	}
	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    models.NewTrackView(track),
	})
}

// DeleteTrack handles DELETE /api/v1/tracks/:id
func (h *TrackHandler) DeleteTrack(c echo.Context) error {
	id := c.Param("id")
	if err := h.validator.ValidateID(id); err != nil {
		return h.invalidID(c, id, err)
	}
	if err := h.storage.Remove(id); err != nil {
		return h.storageError(c, "delete", id, err)
	}
	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Track removed",
	})
}

// ShowAll handles POST /api/v1/tracks/show-all
//
// Revealing more than RevealConfirmThreshold tracks needs confirm=true.
// The response carries the combined bounds so a map can fit them.
func (h *TrackHandler) ShowAll(c echo.Context) error {
	count := h.storage.Count()
	if count > h.cfg.RevealConfirmThreshold && !ParseConfirm(c) {
		return c.JSON(http.StatusConflict, models.APIResponse{
			Message: fmt.Sprintf("Showing %d tracks may slow down the map. Resend with confirm=true to continue.", count),
			Code:    "confirmation_required",
			Data: map[string]int{
				"count":     count,
				"threshold": h.cfg.RevealConfirmThreshold,
			},
		})
	}

	bounds, n, err := h.storage.ShowAll()
	if err != nil {
		return h.storageError(c, "show", "", err)
	}

	if h.cfg.EnableManagementLogging {
		h.logger.Info("All tracks shown", zap.Int("count", n), zap.String("client_ip", c.RealIP()))
	}
	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    models.ShowAllResult{Count: n, Bounds: bounds},
	})
}
