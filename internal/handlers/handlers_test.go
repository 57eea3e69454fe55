package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gpx-track-server/pkg/config"
	"gpx-track-server/pkg/gpxload"
	"gpx-track-server/pkg/models"
	"gpx-track-server/pkg/queue"
	"gpx-track-server/pkg/storage"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <name>Lake Loop</name>
    <trkseg>
      <trkpt lat="47.00" lon="8.00"><ele>400</ele></trkpt>
      <trkpt lat="47.01" lon="8.02"><ele>450</ele></trkpt>
    </trkseg>
  </trk>
</gpx>`

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

type testEnv struct {
	cfg       *config.Config
	store     *storage.BadgerStorage
	processor *queue.Processor[models.TrackFile]
	board     *queue.Board
	echo      *echo.Echo
}

func testConfig() *config.Config {
	return &config.Config{
		BatchSize:              5,
		StepDelay:              time.Millisecond,
		ConfirmThreshold:       50,
		ProgressHideDelay:      time.Hour,
		BulkThreshold:          25,
		VisibleLimit:           10,
		RevealConfirmThreshold: 25,
		MaxUploadSize:          64 << 20,
		MaxFileSize:            1 << 20,
		MaxPaginationLimit:     1000,
		EnableErrorLogging:     true,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()

	store, err := storage.NewBadgerStorage(storage.BadgerOptions{InMemory: true, BackupDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	board := queue.NewBoard(cfg.ProgressHideDelay)
	loader := gpxload.NewLoader(store, gpxload.DefaultVisibilityPolicy, nil)
	processor, err := queue.NewProcessor(loader.Load, queue.Options{
		BatchSize:        cfg.BatchSize,
		ConfirmThreshold: cfg.ConfirmThreshold,
		StepDelay:        cfg.StepDelay,
	}, board, nil)
	require.NoError(t, err)

	log := zap.NewNop()
	uploads := NewUploadHandler(processor, log, cfg)
	progress := NewProgressHandler(board)
	tracks := NewTrackHandler(store, log, cfg)
	health := NewHealthHandler(store, processor.Progress, log, cfg)

	e := echo.New()
	e.POST("/api/v1/uploads", uploads.Upload)
	e.GET("/api/v1/progress", progress.GetProgress)
	e.GET("/api/v1/tracks", tracks.ListTracks)
	e.GET("/api/v1/tracks/count", tracks.CountTracks)
	e.POST("/api/v1/tracks/show-all", tracks.ShowAll)
	e.GET("/api/v1/tracks/:id", tracks.GetTrack)
	e.GET("/api/v1/tracks/:id/gpx", tracks.GetTrackGPX)
	e.POST("/api/v1/tracks/:id/toggle", tracks.ToggleTrack)
	e.PUT("/api/v1/tracks/:id/visibility", tracks.SetVisibility)
	e.DELETE("/api/v1/tracks/:id", tracks.DeleteTrack)
	e.GET("/health", health.HealthCheck)
	e.GET("/health/detailed", health.DetailedHealthCheck)
	e.GET("/api/v1/stats", health.GetStats)
	e.POST("/api/v1/backup", health.CreateBackup)
	e.POST("/api/v1/gc", health.TriggerGC)

	return &testEnv{cfg: cfg, store: store, processor: processor, board: board, echo: e}
}

func (env *testEnv) do(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	var body envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func (env *testEnv) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, env.processor.WaitIdle(ctx))
}

// seed registers n tracks directly
func (env *testEnv) seed(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range n {
		track, err := gpxload.Parse(models.TrackFile{Name: fmt.Sprintf("seed-%02d.gpx", i), Data: []byte(sampleGPX)})
		require.NoError(t, err)
		track.ID = gpxload.NewTrackID()
		require.NoError(t, env.store.Add(track, []byte(sampleGPX), nil))
		ids[i] = track.ID
	}
	return ids
}

type part struct {
	name string
	data string
}

func uploadRequest(t *testing.T, query string, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := w.CreateFormFile(UploadFormField, p.name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads"+query, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestUpload_NoFiles(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(uploadRequest(t, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, NoticeNoFiles, body.Message)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", nil)
	rec, body = env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no_files", body.Code)
}

func TestUpload_NoGPXFiles(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(uploadRequest(t, "", part{"notes.txt", "x"}, part{"photo.jpg", "y"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, queue.NoticeNoAcceptedFiles, body.Message)
	assert.Equal(t, queue.NoticeNoAcceptedFiles, env.board.State().Notice)
	assert.Zero(t, env.processor.Progress().Total)
}

func TestUpload_QueuesGPXAndSkipsOthers(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(uploadRequest(t, "",
		part{"a.gpx", sampleGPX},
		part{"B.GPX", sampleGPX},
		part{"notes.txt", "skip me"},
		part{"c.gpx", sampleGPX},
	))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, body.Success)

	var resp struct {
		Received int            `json:"received"`
		Accepted int            `json:"accepted"`
		Skipped  []string       `json:"skipped"`
		Progress queue.Progress `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &resp))
	assert.Equal(t, 4, resp.Received)
	assert.Equal(t, 3, resp.Accepted)
	assert.Equal(t, []string{"notes.txt"}, resp.Skipped)
	assert.Equal(t, 3, resp.Progress.Total)

	env.waitIdle(t)
	assert.Equal(t, 3, env.store.Count())
	assert.Equal(t, 3, env.processor.Progress().Succeeded)
}

func TestUpload_ConfirmationRequired(t *testing.T) {
	env := newTestEnv(t)

	parts := make([]part, 51)
	for i := range parts {
		parts[i] = part{fmt.Sprintf("t%02d.gpx", i), sampleGPX}
	}

	rec, body := env.do(uploadRequest(t, "", parts...))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "confirmation_required", body.Code)
	assert.Zero(t, env.processor.Progress().Total, "nothing is queued without confirmation")

	rec, _ = env.do(uploadRequest(t, "?confirm=true", parts...))
	require.Equal(t, http.StatusAccepted, rec.Code)
	env.waitIdle(t)
	assert.Equal(t, 51, env.store.Count())

	visible := true
	assert.Equal(t, 10, env.store.CountWithFilter(&storage.TrackFilter{Visible: &visible}))
}

func TestUpload_FileTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxFileSize = 100

	rec, body := env.do(uploadRequest(t, "", part{"big.gpx", sampleGPX}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "file_too_large", body.Code)
	assert.Zero(t, env.processor.Progress().Total)
}

func TestUpload_RequestTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxUploadSize = 256

	rec, body := env.do(uploadRequest(t, "", part{"big.gpx", sampleGPX + sampleGPX}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "upload_too_large", body.Code)
}

func TestProgress(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var p models.ProgressResponse
	require.NoError(t, json.Unmarshal(body.Data, &p))
	assert.False(t, p.Visible)

	rec, _ = env.do(uploadRequest(t, "", part{"a.gpx", sampleGPX}, part{"b.gpx", sampleGPX}))
	require.Equal(t, http.StatusAccepted, rec.Code)
	env.waitIdle(t)

	// hide delay is an hour, so the finished bar is still showing
	_, body = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/progress", nil))
	require.NoError(t, json.Unmarshal(body.Data, &p))
	assert.True(t, p.Visible)
	assert.Equal(t, "Processing files: 2/2", p.Text)
	assert.Equal(t, 100.0, p.Percent)
	assert.False(t, p.Active)
}

func TestTracks_ListAndSearch(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 3)

	rec, body := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-Total-Count"))

	var list struct {
		Tracks []models.TrackView `json:"tracks"`
		Total  int                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &list))
	assert.Len(t, list.Tracks, 2)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, "Lake Loop", list.Tracks[0].Name)
	assert.NotEmpty(t, list.Tracks[0].Distance)

	rec, body = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks?search=nothing", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &list))
	assert.Empty(t, list.Tracks)

	rec, _ = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks?visible=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks?limit=5000", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks/count?visible=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":3}`, string(body.Data))
}

func TestTracks_GetToggleDelete(t *testing.T) {
	env := newTestEnv(t)
	id := env.seed(t, 1)[0]

	rec, body := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var view models.TrackView
	require.NoError(t, json.Unmarshal(body.Data, &view))
	assert.Equal(t, id, view.ID)
	assert.True(t, view.Visible)

	rec, body = env.do(httptest.NewRequest(http.MethodPost, "/api/v1/tracks/"+id+"/toggle", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &view))
	assert.False(t, view.Visible)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/tracks/"+id+"/visibility", bytes.NewBufferString(`{"visible":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec, body = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &view))
	assert.True(t, view.Visible)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/tracks/"+id+"/visibility", bytes.NewBufferString(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec, _ = env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks/"+id+"/gpx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, GPXContentType, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "seed-00.gpx")
	assert.Equal(t, sampleGPX, rec.Body.String())

	rec, _ = env.do(httptest.NewRequest(http.MethodDelete, "/api/v1/tracks/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body.Code)

	rec, _ = env.do(httptest.NewRequest(http.MethodDelete, "/api/v1/tracks/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks/bad%20id", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", body.Code)
}

func TestTracks_ShowAll(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seed(t, 26)
	for _, id := range ids {
		_, err := env.store.SetVisible(id, false)
		require.NoError(t, err)
	}

	rec, body := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/tracks/show-all", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "confirmation_required", body.Code)

	visible := true
	assert.Zero(t, env.store.CountWithFilter(&storage.TrackFilter{Visible: &visible}))

	rec, body = env.do(httptest.NewRequest(http.MethodPost, "/api/v1/tracks/show-all?confirm=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.ShowAllResult
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.Equal(t, 26, result.Count)
	assert.True(t, result.Bounds.Set)
	assert.Equal(t, 47.0, result.Bounds.MinLat)
	assert.Equal(t, 8.02, result.Bounds.MaxLon)
	assert.Equal(t, 26, env.store.CountWithFilter(&storage.TrackFilter{Visible: &visible}))
}

func TestTracks_ShowAllSmallNeedsNoConfirm(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 3)

	rec, _ := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/tracks/show-all", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 2)

	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.EqualValues(t, 2, health.Metrics["track_count"])

	rec = httptest.NewRecorder()
	env.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	assert.Contains(t, []int{http.StatusOK, http.StatusPartialContent}, rec.Code)
	assert.Contains(t, rec.Body.String(), "queue")

	rec, body := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.StatsResponse
	require.NoError(t, json.Unmarshal(body.Data, &stats))
	assert.Equal(t, 2, stats.TrackCount)
	assert.Equal(t, 2, stats.VisibleCount)

	rec, body = env.do(httptest.NewRequest(http.MethodPost, "/api/v1/gc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)

	rec, body = env.do(httptest.NewRequest(http.MethodPost, "/api/v1/backup", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var backup models.BackupResponse
	require.NoError(t, json.Unmarshal(body.Data, &backup))
	assert.FileExists(t, backup.BackupPath)
	assert.Positive(t, backup.BackupSize)
}

func TestShutdownMiddleware(t *testing.T) {
	sh := NewShutdownHandler(zap.NewNop())
	e := echo.New()
	e.Use(sh.Middleware())
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	sh.InitiateShutdown()
	sh.InitiateShutdown()
	assert.True(t, sh.IsShuttingDown())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "server_shutting_down")
}

func TestValidateID(t *testing.T) {
	v := NewRequestValidator(testConfig())
	assert.NoError(t, v.ValidateID(gpxload.NewTrackID()))
	assert.Error(t, v.ValidateID(""))
	assert.Error(t, v.ValidateID("a/b"))
	assert.Error(t, v.ValidateID("a..b"))
	assert.Error(t, v.ValidateID(string(bytes.Repeat([]byte("a"), 200))))
}
