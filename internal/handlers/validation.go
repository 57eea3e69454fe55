package handlers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"gpx-track-server/pkg/config"
	"gpx-track-server/pkg/models"
	"gpx-track-server/pkg/storage"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

const (
	defaultPageSize   = 100
	maxIDLength       = 128
	maxFileNameLength = 255
)

var validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// RequestValidator handles validation of incoming requests
type RequestValidator struct {
	config    *config.Config
	validator *validator.Validate
}

// NewRequestValidator creates a new request validator
func NewRequestValidator(cfg *config.Config) *RequestValidator {
	v := validator.New()
	v.RegisterValidation("track_id", func(fl validator.FieldLevel) bool {
		return validIDPattern.MatchString(fl.Field().String())
	})

	return &RequestValidator{
		config:    cfg,
		validator: v,
	}
}

// ValidateID validates track id format and length
func (v *RequestValidator) ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("ID is required")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("ID too long (max %d characters)", maxIDLength)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("ID contains invalid UTF-8 characters")
	}
	if err := v.validator.Var(id, "track_id"); err != nil {
		return fmt.Errorf("ID contains invalid characters (only alphanumeric, dots, hyphens, and underscores allowed)")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("ID contains dangerous path patterns")
	}
	return nil
}

// ValidateFileName checks an uploaded file name before it is stored
func (v *RequestValidator) ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("file name is required")
	}
	if len(name) > maxFileNameLength {
		return fmt.Errorf("file name too long (max %d characters)", maxFileNameLength)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("file name contains invalid UTF-8 characters")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("file name contains NUL")
	}
	return nil
}

// ParseTrackQuery binds and validates the list parameters
func (v *RequestValidator) ParseTrackQuery(c echo.Context) (models.TrackQuery, *storage.TrackFilter, error) {
	var q models.TrackQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return q, nil, fmt.Errorf("invalid query parameters: %w", err)
	}
	if err := v.validator.Struct(q); err != nil {
		return q, nil, fmt.Errorf("validation failed: %w", err)
	}
	if q.Limit > v.config.MaxPaginationLimit {
		return q, nil, fmt.Errorf("invalid limit parameter: maximum allowed is %d", v.config.MaxPaginationLimit)
	}
	if q.Limit == 0 {
		q.Limit = min(defaultPageSize, v.config.MaxPaginationLimit)
	}

	filter := &storage.TrackFilter{Search: strings.TrimSpace(q.Search)}
	if q.Visible != "" {
		visible := q.Visible == "true"
		filter.Visible = &visible
	}
	return q, filter, nil
}

// ParseConfirm reads the confirm flag from the query string or form
func ParseConfirm(c echo.Context) bool {
	raw := c.QueryParam("confirm")
	if raw == "" {
		raw = c.FormValue("confirm")
	}
	confirmed, err := strconv.ParseBool(raw)
	return err == nil && confirmed
}
