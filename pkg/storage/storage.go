package storage

import (
	"errors"

	"gpx-track-server/pkg/models"
)

var (
	// ErrTrackNotFound is returned when no track has the given ID
	ErrTrackNotFound = errors.New("track not found")

	// ErrTrackExists is returned when adding a track whose ID is already taken
	ErrTrackExists = errors.New("track already exists")

	// ErrStorageNotReady is returned when storage is closed or not initialised
	ErrStorageNotReady = errors.New("storage not ready")

	// ErrInvalidPagination is returned for a non-positive limit or negative offset
	ErrInvalidPagination = errors.New("invalid pagination parameters")
)

// TrackFilter narrows list and count operations
type TrackFilter struct {
	// Search matches tracks whose name contains it, ignoring case
	Search string

	// Visible, when set, keeps only tracks with that visibility
	Visible *bool
}

// VisibilityFunc decides the visibility of a track from its 1-based
// position in the registry after insertion.
type VisibilityFunc func(position int) bool

// Storage defines the track registry
type Storage interface {
	// Count returns the number of registered tracks
	Count() int

	// Add registers a track together with its raw GPX document. When
	// visible is non-nil it sets track.Visible atomically with the insert.
	Add(track *models.Track, raw []byte, visible VisibilityFunc) error

	// Get returns the track with the given ID
	Get(id string) (*models.Track, error)

	// GetGPX returns the raw GPX document of a track
	GetGPX(id string) ([]byte, error)

	// Remove deletes a track and its GPX document
	Remove(id string) error

	// SetVisible changes the visibility of a track
	SetVisible(id string, visible bool) (*models.Track, error)

	// Toggle flips the visibility of a track
	Toggle(id string) (*models.Track, error)

	// ShowAll makes every track visible and returns their combined bounds
	ShowAll() (models.Bounds, int, error)

	// List returns tracks in insertion order with pagination and filtering
	List(limit, offset int, filter *TrackFilter) ([]*models.Track, error)

	// CountWithFilter returns the number of tracks matching the filter
	CountWithFilter(filter *TrackFilter) int

	// RunGC runs a value log garbage collection cycle
	RunGC() error

	// CreateBackup writes a full backup and returns its path
	CreateBackup() (string, error)

	// Close stops background components and closes the database
	Close() error
}
