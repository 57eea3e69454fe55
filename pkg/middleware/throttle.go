package middleware

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"
)

// Throttle caps concurrent requests. Requests over the cap wait in a
// bounded backlog for up to timeout; once the backlog is full they are
// rejected with 429.
type Throttle struct {
	limit      int64
	maxBacklog int64
	timeout    time.Duration

	slots    *semaphore.Weighted
	inFlight atomic.Int64
	waiting  atomic.Int64
	rejected atomic.Int64
}

// ThrottleStats is a point-in-time snapshot
type ThrottleStats struct {
	Limit      int64  `json:"limit"`
	MaxBacklog int64  `json:"max_backlog"`
	InFlight   int64  `json:"in_flight"`
	Waiting    int64  `json:"waiting"`
	Rejected   int64  `json:"rejected"`
	Timeout    string `json:"timeout"`
}

// NewThrottle creates a throttle. A limit below 1 disables it.
func NewThrottle(limit, maxBacklog int, timeout time.Duration) *Throttle {
	t := &Throttle{
		limit:      int64(limit),
		maxBacklog: int64(max(maxBacklog, 0)),
		timeout:    timeout,
	}
	if limit > 0 {
		t.slots = semaphore.NewWeighted(int64(limit))
	}
	return t
}

// Middleware returns the echo middleware
func (t *Throttle) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if t.slots == nil || isPublic(c) {
				return next(c)
			}

			if !t.slots.TryAcquire(1) {
				if err := t.wait(c.Request().Context()); err != nil {
					return err
				}
			}
			defer t.slots.Release(1)

			t.inFlight.Add(1)
			defer t.inFlight.Add(-1)
			return next(c)
		}
	}
}

func (t *Throttle) wait(ctx context.Context) error {
	if t.waiting.Add(1) > t.maxBacklog {
		t.waiting.Add(-1)
		t.rejected.Add(1)
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests")
	}
	defer t.waiting.Add(-1)

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if err := t.slots.Acquire(ctx, 1); err != nil {
		t.rejected.Add(1)
		return echo.NewHTTPError(http.StatusTooManyRequests, "Request timeout in backlog")
	}
	return nil
}

// Stats returns current counters
func (t *Throttle) Stats() ThrottleStats {
	return ThrottleStats{
		Limit:      t.limit,
		MaxBacklog: t.maxBacklog,
		InFlight:   t.inFlight.Load(),
		Waiting:    t.waiting.Load(),
		Rejected:   t.rejected.Load(),
		Timeout:    t.timeout.String(),
	}
}
