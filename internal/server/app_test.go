package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gpx-track-server/internal/handlers"
	"gpx-track-server/pkg/config"
	"gpx-track-server/pkg/models"
	"gpx-track-server/pkg/queue"
	"gpx-track-server/pkg/storage"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAPIKey = "test-key"

const trackGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><name>Ridge</name><trkseg>
    <trkpt lat="46.50" lon="7.90"></trkpt>
    <trkpt lat="46.52" lon="7.95"></trkpt>
  </trkseg></trk>
</gpx>`

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		EnableAuth:             true,
		APIKey:                 testAPIKey,
		BatchSize:              5,
		StepDelay:              time.Millisecond,
		ConfirmThreshold:       50,
		ProgressHideDelay:      time.Second,
		BulkThreshold:          25,
		VisibleLimit:           10,
		RevealConfirmThreshold: 25,
		MaxUploadSize:          16 << 20,
		MaxFileSize:            1 << 20,
		MaxPaginationLimit:     1000,
		EnableCompression:      true,
		CompressionLevel:       5,
		ShutdownTimeout:        5 * time.Second,
	}

	store, err := storage.NewBadgerStorage(storage.BadgerOptions{InMemory: true, BackupDir: t.TempDir()})
	require.NoError(t, err)

	app, err := New(cfg, zap.NewNop(), store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return app
}

func serve(app *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)
	return rec
}

func uploadBody(t *testing.T, names ...string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range names {
		fw, err := w.CreateFormFile(handlers.UploadFormField, name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, trackGPX)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestPublicEndpoints(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/", "/ping", "/health", "/health/detailed", "/metrics"} {
		rec := serve(app, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Less(t, rec.Code, 300, path)
	}

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/api/v1/tracks", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadToMetricsRoundTrip(t *testing.T) {
	app := newTestApp(t)

	body, contentType := uploadBody(t, "one.gpx", "two.gpx", "readme.md")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set("X-API-Key", testAPIKey)
	rec := serve(app, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, app.Processor.WaitIdle(ctx))
	assert.Equal(t, 2, app.Store.Count())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tracks?api_key="+testAPIKey, nil)
	rec = serve(app, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-Total-Count"))
	assert.Contains(t, rec.Body.String(), "Ridge")

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gpx_queue_enqueued_total 2")
	assert.Contains(t, rec.Body.String(), "gpx_queue_batches_total 1")
}

func TestGPXDownloadIsNotCompressed(t *testing.T) {
	app := newTestApp(t)

	body, contentType := uploadBody(t, "one.gpx")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set("X-API-Key", testAPIKey)
	require.Equal(t, http.StatusAccepted, serve(app, req).Code)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, app.Processor.WaitIdle(ctx))

	tracks, err := app.Store.List(1, 0, nil)
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/tracks/%s/gpx", tracks[0].ID), nil)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set(echo.HeaderAcceptEncoding, "gzip")
	rec := serve(app, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderContentEncoding))
	assert.Equal(t, trackGPX, rec.Body.String())
}

func TestDrainRefusesNewRequests(t *testing.T) {
	app := newTestApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Drain(ctx))

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	backups, err := app.Store.ListBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 1, "drain leaves a final backup")
}

func TestDrainBacksUpWhenQueueTimesOut(t *testing.T) {
	app := newTestApp(t)
	release := make(chan struct{})
	defer close(release)

	// hold the drain loop open with a loader that never finishes
	blocked, err := queue.NewProcessor[models.TrackFile](func(context.Context, models.TrackFile) error {
		<-release
		return nil
	}, queue.Options{StepDelay: time.Millisecond}, nil, nil)
	require.NoError(t, err)
	app.Processor = blocked
	_, err = blocked.Enqueue(context.Background(), []models.TrackFile{{Name: "slow.gpx"}}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, app.Drain(ctx), context.DeadlineExceeded)

	backups, err := app.Store.ListBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
