// Package client uploads GPX files to a running track server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gpx-track-server/internal/handlers"
	"gpx-track-server/pkg/models"
	"gpx-track-server/pkg/queue"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// ErrConfirmationRequired is returned when the server wants confirm=true.
var ErrConfirmationRequired = errors.New("server requires confirmation for this many files")

// Options configure a Client. Zero values select the defaults.
type Options struct {
	APIKey   string
	RetryMax int
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Client talks to the /api/v1 endpoints.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	apiKey  string
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// UploadResult is the server's answer to an accepted upload.
type UploadResult struct {
	Received int            `json:"received"`
	Accepted int            `json:"accepted"`
	Skipped  []string       `json:"skipped"`
	Progress queue.Progress `json:"progress"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts Options) *Client {
	rc := retryablehttp.NewClient()
	if opts.RetryMax > 0 {
		rc.RetryMax = opts.RetryMax
	}
	if opts.Timeout > 0 {
		rc.HTTPClient.Timeout = opts.Timeout
	}
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	if opts.Logger != nil {
		rc.Logger = leveledLogger{opts.Logger.Sugar()}
	} else {
		rc.Logger = nil
	}

	return &Client{
		http:    rc,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  opts.APIKey,
	}
}

// Upload sends files in one multipart request. confirm is passed as the
// confirm query parameter.
func (c *Client) Upload(ctx context.Context, paths []string, confirm bool) (*UploadResult, error) {
	body, contentType, err := multipartBody(paths)
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "/api/v1/uploads"
	if confirm {
		url += "?confirm=true"
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	var result UploadResult
	if err := c.do(req, http.StatusAccepted, &result); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return nil, fmt.Errorf("%w: %s", ErrConfirmationRequired, apiErr.Message)
		}
		return nil, err
	}
	return &result, nil
}

// Progress returns the server's progress display state.
func (c *Client) Progress(ctx context.Context) (*models.ProgressResponse, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/progress", nil)
	if err != nil {
		return nil, err
	}
	var p models.ProgressResponse
	if err := c.do(req, http.StatusOK, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) do(req *retryablehttp.Request, want int, out any) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != want {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != want {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// multipartBody buffers the files so retries can resend them.
func multipartBody(paths []string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, path := range paths {
		if err := addFile(w, path); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func addFile(w *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := w.CreateFormFile(handlers.UploadFormField, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
