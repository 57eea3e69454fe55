package storage

import (
	"strings"

	"gpx-track-server/pkg/models"
)

// matchesFilter checks if a track matches the given filter criteria
func matchesFilter(track *models.Track, filter *TrackFilter) bool {
	if filter == nil {
		return true
	}

	if filter.Visible != nil && track.Visible != *filter.Visible {
		return false
	}

	if filter.Search != "" &&
		!strings.Contains(strings.ToLower(track.Name), strings.ToLower(filter.Search)) {
		return false
	}

	return true
}
