package models

import (
	"fmt"
	"math"
	"time"
)

// DefaultTrackColor is the stroke colour assigned to every new track.
const DefaultTrackColor = "#FF0000"

// Bounds is a lat/lon bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
	// Set is false for the empty box.
	Set bool `json:"set"`
}

// Include grows the box to contain the point.
func (b Bounds) Include(lat, lon float64) Bounds {
	if !b.Set {
		return Bounds{MinLat: lat, MaxLat: lat, MinLon: lon, MaxLon: lon, Set: true}
	}
	b.MinLat = math.Min(b.MinLat, lat)
	b.MaxLat = math.Max(b.MaxLat, lat)
	b.MinLon = math.Min(b.MinLon, lon)
	b.MaxLon = math.Max(b.MaxLon, lon)
	return b
}

// Extend returns the union of both boxes.
func (b Bounds) Extend(o Bounds) Bounds {
	if !o.Set {
		return b
	}
	return b.Include(o.MinLat, o.MinLon).Include(o.MaxLat, o.MaxLon)
}

// Track is a loaded GPX track as kept in the registry.
type Track struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	FileName       string     `json:"file_name"`
	Color          string     `json:"color"`
	Visible        bool       `json:"visible"`
	DistanceKm     float64    `json:"distance_km"`
	ElevationGainM float64    `json:"elevation_gain_m"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	PointCount     int        `json:"point_count"`
	SizeBytes      int64      `json:"size_bytes"`
	Bounds         Bounds     `json:"bounds"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Duration returns the time between the first and last timestamped point.
func (t *Track) Duration() (time.Duration, bool) {
	if t.StartTime == nil || t.EndTime == nil {
		return 0, false
	}
	return t.EndTime.Sub(*t.StartTime), true
}

// DistanceText renders the distance with one decimal, e.g. "12.3 km".
func (t *Track) DistanceText() string {
	return fmt.Sprintf("%.1f km", t.DistanceKm)
}

// ElevationText renders the gain rounded to whole metres, e.g. "450 m".
func (t *Track) ElevationText() string {
	return fmt.Sprintf("%.0f m", t.ElevationGainM)
}

// DurationText renders the duration as "2h 5m". Empty when unknown.
func (t *Track) DurationText() string {
	d, ok := t.Duration()
	if !ok {
		return ""
	}
	return FormatDuration(d)
}

// FormatDuration renders whole hours and minutes.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// TrackView adds the display strings to a track for API responses.
type TrackView struct {
	*Track
	Distance      string `json:"distance"`
	ElevationGain string `json:"elevation_gain"`
	Duration      string `json:"duration,omitempty"`
}

// NewTrackView wraps t with its formatted fields.
func NewTrackView(t *Track) TrackView {
	return TrackView{
		Track:         t,
		Distance:      t.DistanceText(),
		ElevationGain: t.ElevationText(),
		Duration:      t.DurationText(),
	}
}

// TrackFile is an uploaded file waiting to be loaded.
type TrackFile struct {
	Name       string    `json:"name"`
	Data       []byte    `json:"-"`
	ReceivedAt time.Time `json:"received_at"`
}

// TrackFileName returns the file name, for extension filtering.
func TrackFileName(f TrackFile) string {
	return f.Name
}

// TrackQuery are the list parameters accepted by the API and CLI.
type TrackQuery struct {
	Search  string `query:"search" validate:"max=200"`
	Visible string `query:"visible" validate:"omitempty,oneof=true false"`
	Limit   int    `query:"limit" validate:"min=0,max=1000"`
	Offset  int    `query:"offset" validate:"min=0"`
}

// ShowAllResult is returned after revealing every track.
type ShowAllResult struct {
	Count  int    `json:"count"`
	Bounds Bounds `json:"bounds"`
}
