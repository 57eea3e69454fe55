package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"time"

	"gpx-track-server/internal/handlers"

	"github.com/tkrajina/gpxgo/gpx"
)

// Operation is one kind of request the workload issues
type Operation string

const (
	OpUpload   Operation = "POST /api/v1/uploads"
	OpList     Operation = "GET /api/v1/tracks"
	OpProgress Operation = "GET /api/v1/progress"
	OpHealth   Operation = "GET /health"
)

// Mix sets the share of each operation. Shares need not sum to one.
type Mix struct {
	Upload   float64
	List     float64
	Progress float64
	Health   float64
}

// DefaultMix is read heavy with a steady trickle of uploads
var DefaultMix = Mix{Upload: 0.1, List: 0.5, Progress: 0.3, Health: 0.1}

// Pick draws an operation for a uniform r in [0,1)
func (m Mix) Pick(r float64) Operation {
	total := m.Upload + m.List + m.Progress + m.Health
	if total <= 0 {
		return OpHealth
	}
	r *= total
	switch {
	case r < m.Upload:
		return OpUpload
	case r < m.Upload+m.List:
		return OpList
	case r < m.Upload+m.List+m.Progress:
		return OpProgress
	default:
		return OpHealth
	}
}

// Workload issues requests against one server
type Workload struct {
	client  *http.Client
	baseURL string
	apiKey  string
	mix     Mix
}

// Do runs op and returns the HTTP status
func (w *Workload) Do(ctx context.Context, id int64, op Operation) (int, error) {
	var (
		req *http.Request
		err error
	)
	switch op {
	case OpUpload:
		body, contentType, buildErr := uploadBody(id)
		if buildErr != nil {
			return 0, buildErr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/api/v1/uploads", bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", contentType)
		}
	case OpList:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/api/v1/tracks?limit=50", nil)
	case OpProgress:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/api/v1/progress", nil)
	default:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/health", nil)
	}
	if err != nil {
		return 0, err
	}
	if w.apiKey != "" {
		req.Header.Set("X-API-Key", w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	// drain so the connection is reused
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// uploadBody builds a single-file multipart upload
func uploadBody(id int64) ([]byte, string, error) {
	doc, err := SyntheticTrack(id, 50).ToXml(gpx.ToXmlParams{Version: "1.1", Indent: false})
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(handlers.UploadFormField, fmt.Sprintf("stress-%d.gpx", id))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(doc); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// SyntheticTrack is a random walk of points around a seed-dependent start
func SyntheticTrack(seed int64, points int) *gpx.GPX {
	rng := rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
	lat := 45 + rng.Float64()*2
	lon := 6 + rng.Float64()*4
	ele := 400 + rng.Float64()*1000
	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	segment := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, points)}
	for i := range points {
		lat += (rng.Float64() - 0.5) * 0.002
		lon += (rng.Float64() - 0.5) * 0.002
		ele += (rng.Float64() - 0.4) * 5
		pt := gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  lat,
				Longitude: lon,
				Elevation: *gpx.NewNullableFloat64(ele),
			},
			Timestamp: start.Add(time.Duration(i) * 10 * time.Second),
		}
		segment.Points = append(segment.Points, pt)
	}

	return &gpx.GPX{
		Creator: "gpx-track-server stress-test",
		Tracks: []gpx.GPXTrack{{
			Name:     fmt.Sprintf("Stress track %d", seed),
			Segments: []gpx.GPXTrackSegment{segment},
		}},
	}
}
