// Package gpxload turns uploaded GPX files into registry tracks.
package gpxload

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"gpx-track-server/pkg/models"
	"gpx-track-server/pkg/queue"
	"gpx-track-server/pkg/storage"

	"github.com/google/uuid"
	"github.com/tkrajina/gpxgo/gpx"
	"go.uber.org/zap"
)

// Extension is the accepted upload file extension.
const Extension = ".gpx"

var (
	ErrEmptyFile     = errors.New("file is empty")
	ErrNoTrackPoints = errors.New("file contains no track or route points")
)

// VisibilityPolicy hides most tracks of a bulk import so the map stays readable.
type VisibilityPolicy struct {
	// BulkThreshold is the drain total above which the limit applies.
	BulkThreshold int
	// VisibleLimit is how many registered tracks stay visible in a bulk import.
	VisibleLimit int
}

// DefaultVisibilityPolicy shows the first 10 tracks of imports larger than 25.
var DefaultVisibilityPolicy = VisibilityPolicy{BulkThreshold: 25, VisibleLimit: 10}

// Visible reports whether the track at position (1-based, registry-wide)
// starts visible when the current drain totals total files.
func (p VisibilityPolicy) Visible(total, position int) bool {
	if total <= p.BulkThreshold {
		return true
	}
	return position <= p.VisibleLimit
}

// For binds the policy to a drain total.
func (p VisibilityPolicy) For(total int) storage.VisibilityFunc {
	return func(position int) bool {
		return p.Visible(total, position)
	}
}

// Loader parses files and registers them in a store.
type Loader struct {
	store  storage.Storage
	policy VisibilityPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewLoader creates a loader writing into store.
func NewLoader(store storage.Storage, policy VisibilityPolicy, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		store:  store,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Load parses one file and adds the track. It has the queue.LoadFunc shape.
func (l *Loader) Load(ctx context.Context, file models.TrackFile) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("load %s: %w", file.Name, err)
	}

	track, err := Parse(file)
	if err != nil {
		return fmt.Errorf("load %s: %w", file.Name, err)
	}
	track.ID = NewTrackID()
	track.CreatedAt = l.now()

	var total int
	if p, ok := queue.ProgressFromContext(ctx); ok {
		total = p.Total
	}

	// an abandoned load must not register a track already counted as failed
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("load %s: %w", file.Name, err)
	}
	if err := l.store.Add(track, file.Data, l.policy.For(total)); err != nil {
		return fmt.Errorf("store %s: %w", file.Name, err)
	}

	l.logger.Debug("Track loaded",
		zap.String("id", track.ID),
		zap.String("name", track.Name),
		zap.String("file", file.Name),
		zap.Bool("visible", track.Visible),
		zap.Float64("distance_km", track.DistanceKm),
		zap.Int("points", track.PointCount))
	return nil
}

// NewTrackID returns a time-ordered track identifier.
func NewTrackID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "track-" + uuid.NewString()
	}
	return "track-" + id.String()
}

// Parse derives track metadata from a GPX document. ID and CreatedAt are
// left for the caller.
func Parse(file models.TrackFile) (*models.Track, error) {
	if len(file.Data) == 0 {
		return nil, ErrEmptyFile
	}

	doc, err := gpx.ParseBytes(file.Data)
	if err != nil {
		return nil, fmt.Errorf("parse GPX: %w", err)
	}

	var (
		bounds models.Bounds
		points int
	)
	include := func(p gpx.GPXPoint) {
		bounds = bounds.Include(p.Latitude, p.Longitude)
		points++
	}
	for _, track := range doc.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				include(p)
			}
		}
	}
	for _, route := range doc.Routes {
		for _, p := range route.Points {
			include(p)
		}
	}
	if points == 0 {
		return nil, ErrNoTrackPoints
	}

	track := &models.Track{
		Name:           trackName(doc, file.Name),
		FileName:       file.Name,
		Color:          models.DefaultTrackColor,
		Visible:        true,
		DistanceKm:     round(doc.Length2D()/1000, 1),
		ElevationGainM: round(doc.UphillDownhill().Uphill, 0),
		PointCount:     points,
		SizeBytes:      int64(len(file.Data)),
		Bounds:         bounds,
	}

	timeBounds := doc.TimeBounds()
	if !timeBounds.StartTime.IsZero() && !timeBounds.EndTime.IsZero() {
		start, end := timeBounds.StartTime, timeBounds.EndTime
		track.StartTime = &start
		track.EndTime = &end
	}

	return track, nil
}

// trackName prefers the document name, then the first named track, then
// the file name.
func trackName(doc *gpx.GPX, fileName string) string {
	if name := strings.TrimSpace(doc.Name); name != "" {
		return name
	}
	for _, track := range doc.Tracks {
		if name := strings.TrimSpace(track.Name); name != "" {
			return name
		}
	}
	return filepath.Base(fileName)
}

func round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
