package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"gpx-track-server/pkg/config"
	"gpx-track-server/pkg/gpxload"
	"gpx-track-server/pkg/models"
	"gpx-track-server/pkg/queue"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// UploadFormField is the multipart field carrying the GPX files
const UploadFormField = "files"

// NoticeNoFiles is returned when an upload carries no files at all
const NoticeNoFiles = "Please select GPX files to upload"

// UploadHandler accepts GPX files and queues them for loading
type UploadHandler struct {
	processor *queue.Processor[models.TrackFile]
	logger    *zap.Logger
	validator *RequestValidator
	cfg       *config.Config
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(processor *queue.Processor[models.TrackFile], appLogger *zap.Logger, cfg *config.Config) *UploadHandler {
	return &UploadHandler{
		processor: processor,
		logger:    appLogger,
		validator: NewRequestValidator(cfg),
		cfg:       cfg,
	}
}

func (h *UploadHandler) logValidationError(msg string, fields ...zap.Field) {
	if h.cfg.EnableValidationLogging {
		h.logger.Warn(msg, fields...)
	}
}

// Upload handles POST /api/v1/uploads
//
// Files not ending in .gpx are skipped. Selections above the confirm
// threshold need confirm=true and are otherwise rejected with 409 before
// anything is read. Loading happens in the background; the response
// carries the progress snapshot right after enqueueing.
func (h *UploadHandler) Upload(c echo.Context) error {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, h.cfg.MaxUploadSize)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return c.JSON(http.StatusRequestEntityTooLarge, models.APIResponse{
				Message: fmt.Sprintf("Upload exceeds %s", humanize.IBytes(uint64(h.cfg.MaxUploadSize))),
				Code:    "upload_too_large",
			})
		}
		h.logValidationError("Invalid upload form", zap.Error(err))
		return c.JSON(http.StatusBadRequest, models.APIResponse{
			Message: NoticeNoFiles,
			Code:    "no_files",
		})
	}

	headers := form.File[UploadFormField]
	if len(headers) == 0 {
		return c.JSON(http.StatusBadRequest, models.APIResponse{
			Message: NoticeNoFiles,
			Code:    "no_files",
		})
	}

	accepted := queue.FilterAccepted(headers, func(fh *multipart.FileHeader) string {
		return fh.Filename
	}, gpxload.Extension)
	var skipped []string
	if len(accepted) < len(headers) {
		for _, fh := range headers {
			if !queue.HasExtension(fh.Filename, gpxload.Extension) {
				skipped = append(skipped, fh.Filename)
			}
		}
	}

	confirmed := ParseConfirm(c)
	threshold := h.processor.Options().ConfirmThreshold
	if len(accepted) > threshold && !confirmed {
		return c.JSON(http.StatusConflict, models.APIResponse{
			Message: fmt.Sprintf("About to import %d files. Resend with confirm=true to continue.", len(accepted)),
			Code:    "confirmation_required",
			Data: map[string]int{
				"count":     len(accepted),
				"threshold": threshold,
			},
		})
	}

	files := make([]models.TrackFile, 0, len(accepted))
	received := time.Now()
	for _, fh := range accepted {
		if err := h.validator.ValidateFileName(fh.Filename); err != nil {
			h.logValidationError("Rejected upload file name", zap.String("file", fh.Filename), zap.Error(err))
			return c.JSON(http.StatusBadRequest, models.APIResponse{
				Message: err.Error(),
				Code:    "invalid_file_name",
			})
		}
		if fh.Size > h.cfg.MaxFileSize {
			return c.JSON(http.StatusRequestEntityTooLarge, models.APIResponse{
				Message: fmt.Sprintf("%s is %s, the limit is %s", fh.Filename,
					humanize.IBytes(uint64(fh.Size)), humanize.IBytes(uint64(h.cfg.MaxFileSize))),
				Code: "file_too_large",
			})
		}
		data, err := readPart(fh)
		if err != nil {
			h.logError("Failed to read uploaded file", zap.String("file", fh.Filename), zap.Error(err))
			return c.JSON(http.StatusBadRequest, models.APIResponse{
				Message: fmt.Sprintf("Could not read %s", fh.Filename),
				Code:    "unreadable_file",
			})
		}
		files = append(files, models.TrackFile{Name: fh.Filename, Data: data, ReceivedAt: received})
	}

	// an empty selection still goes through Enqueue so the progress board gets the notice
	progress, err := h.processor.Enqueue(req.Context(), files, queue.Confirmed(confirmed))
	switch {
	case errors.Is(err, queue.ErrNoAcceptedFiles):
		return c.JSON(http.StatusBadRequest, models.APIResponse{
			Message: queue.NoticeNoAcceptedFiles,
			Code:    "no_gpx_files",
			Data:    models.UploadResponse{Received: len(headers), Skipped: skipped, Progress: progress},
		})
	case errors.Is(err, queue.ErrNotConfirmed):
		return c.JSON(http.StatusConflict, models.APIResponse{
			Message: "Import not confirmed",
			Code:    "confirmation_required",
		})
	case err != nil:
		h.logError("Failed to enqueue upload", zap.Int("files", len(files)), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, models.APIResponse{
			Message: "Failed to queue files",
		})
	}

	h.logger.Info("Upload queued",
		zap.Int("received", len(headers)),
		zap.Int("accepted", len(files)),
		zap.Int("skipped", len(skipped)),
		zap.Int("run", progress.Run),
		zap.String("client_ip", c.RealIP()))

	return c.JSON(http.StatusAccepted, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("%d files queued", len(files)),
		Data: models.UploadResponse{
			Received: len(headers),
			Accepted: len(files),
			Skipped:  skipped,
			Progress: progress,
		},
	})
}

func (h *UploadHandler) logError(msg string, fields ...zap.Field) {
	if h.cfg.EnableErrorLogging {
		h.logger.Error(msg, fields...)
	}
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
