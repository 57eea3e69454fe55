package queue

import (
	"context"
	"fmt"
	"time"
)

const percentMultiplier = 100

// Progress is a point-in-time snapshot of the processor counters.
type Progress struct {
	// Run identifies the drain this snapshot belongs to. It increments every
	// time a drain starts on an empty, idle queue.
	Run int `json:"run"`

	// Processed counts completed items (successful or failed) of the current run.
	Processed int `json:"processed"`

	// Total is the number of items enqueued since the run started.
	Total int `json:"total"`

	// Pending is the number of items still waiting in the queue.
	Pending int `json:"pending"`

	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Batches   int  `json:"batches"`
	Active    bool `json:"active"`

	StartedAt time.Time `json:"started_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Percent returns the completion percentage (0-100). It is 0 while no items
// have been enqueued.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Processed) / float64(p.Total) * percentMultiplier
}

// Renderable reports whether the snapshot carries anything worth displaying.
func (p Progress) Renderable() bool {
	return p.Total > 0
}

// Remaining returns items not yet completed.
func (p Progress) Remaining() int {
	return p.Total - p.Processed
}

// Elapsed returns the duration of the run so far.
func (p Progress) Elapsed() time.Duration {
	if p.StartedAt.IsZero() {
		return 0
	}
	return p.UpdatedAt.Sub(p.StartedAt)
}

func (p Progress) String() string {
	return fmt.Sprintf("Processing files: %d/%d", p.Processed, p.Total)
}

type progressKey struct{}

// WithProgress attaches a progress snapshot to ctx.
func WithProgress(ctx context.Context, p Progress) context.Context {
	return context.WithValue(ctx, progressKey{}, p)
}

// ProgressFromContext returns the snapshot the processor attached to a
// loader context. ok is false outside a drain.
func ProgressFromContext(ctx context.Context) (Progress, bool) {
	p, ok := ctx.Value(progressKey{}).(Progress)
	return p, ok
}
