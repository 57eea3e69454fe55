package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ok(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func serve(e *echo.Echo, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(EchoAPIKeyMiddleware("secret", zap.NewNop()))
	e.GET("/health", ok)
	e.GET("/api/v1/tracks", ok)

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/api/v1/tracks", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		serve(e, http.MethodGet, "/api/v1/tracks", map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusOK,
		serve(e, http.MethodGet, "/api/v1/tracks", map[string]string{"X-API-Key": "secret"}).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/api/v1/tracks?api_key=secret", nil).Code)
}

func TestIPAllowlist(t *testing.T) {
	a := NewIPAllowlist([]string{"10.0.0.5", "192.168.1.0/24", "not-an-ip", " "}, nil)

	assert.Equal(t, []string{"10.0.0.5/32", "192.168.1.0/24"}, a.Networks())
	assert.True(t, a.Allowed("10.0.0.5"))
	assert.True(t, a.Allowed("192.168.1.77"))
	assert.True(t, a.Allowed("::ffff:192.168.1.2"))
	assert.False(t, a.Allowed("10.0.0.6"))
	assert.False(t, a.Allowed("garbage"))

	e := echo.New()
	e.Use(a.Middleware())
	e.GET("/ping", ok)
	e.GET("/api/v1/tracks", ok)

	allowed := map[string]string{"X-Real-IP": "192.168.1.10"}
	denied := map[string]string{"X-Real-IP": "8.8.8.8"}

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/api/v1/tracks", allowed).Code)
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/api/v1/tracks", denied).Code)
	// cached denial
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/api/v1/tracks", denied).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/ping", denied).Code)
}

func TestIPAllowlist_EmptyAllowsAll(t *testing.T) {
	a := NewIPAllowlist(nil, zap.NewNop())
	assert.True(t, a.Allowed("8.8.8.8"))
}

func TestThrottle_RejectsWhenBacklogFull(t *testing.T) {
	th := NewThrottle(1, 0, time.Second)

	release := make(chan struct{})
	entered := make(chan struct{})

	e := echo.New()
	e.Use(th.Middleware())
	e.GET("/slow", func(c echo.Context) error {
		close(entered)
		<-release
		return c.NoContent(http.StatusNoContent)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		serve(e, http.MethodGet, "/slow", nil)
	}()
	<-entered

	assert.Equal(t, int64(1), th.Stats().InFlight)
	assert.Equal(t, http.StatusTooManyRequests, serve(e, http.MethodGet, "/slow", nil).Code)
	assert.Equal(t, int64(1), th.Stats().Rejected)

	close(release)
	wg.Wait()
	assert.Zero(t, th.Stats().InFlight)
}

func TestThrottle_BacklogWaitsForSlot(t *testing.T) {
	th := NewThrottle(1, 1, 2*time.Second)

	release := make(chan struct{})
	var calls sync.WaitGroup
	calls.Add(1)

	e := echo.New()
	e.Use(th.Middleware())
	first := true
	var mu sync.Mutex
	e.GET("/work", func(c echo.Context) error {
		mu.Lock()
		isFirst := first
		first = false
		mu.Unlock()
		if isFirst {
			calls.Done()
			<-release
		}
		return c.NoContent(http.StatusNoContent)
	})

	done := make(chan int, 1)
	go func() { done <- serve(e, http.MethodGet, "/work", nil).Code }()
	calls.Wait()

	second := make(chan int, 1)
	go func() { second <- serve(e, http.MethodGet, "/work", nil).Code }()

	require.Eventually(t, func() bool { return th.Stats().Waiting == 1 }, time.Second, 5*time.Millisecond)
	close(release)

	assert.Equal(t, http.StatusNoContent, <-done)
	assert.Equal(t, http.StatusNoContent, <-second)
	assert.Zero(t, th.Stats().Rejected)
}

func TestThrottle_Disabled(t *testing.T) {
	th := NewThrottle(0, 0, 0)
	e := echo.New()
	e.Use(th.Middleware())
	e.GET("/x", ok)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", nil).Code)
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders(map[string]string{"X-Frame-Options": "DENY"}))
	e.GET("/x", ok)
	rec := serve(e, http.MethodGet, "/x", nil)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
