package output

import (
	"fmt"
	"io"
	"sync"

	"gpx-track-server/pkg/queue"
)

// ProgressPrinter is a queue sink that redraws a single progress line.
type ProgressPrinter struct {
	queue.NoopSink

	mu sync.Mutex
	w  io.Writer
}

// NewProgressPrinter writes progress to w.
func NewProgressPrinter(w io.Writer) *ProgressPrinter {
	return &ProgressPrinter{w: w}
}

func (pp *ProgressPrinter) Notice(msg string) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	fmt.Fprintln(pp.w, msg)
}

func (pp *ProgressPrinter) Enqueued(_ int, p queue.Progress) {
	pp.draw(p, false)
}

func (pp *ProgressPrinter) BatchDone(_ int, p queue.Progress) {
	pp.draw(p, false)
}

func (pp *ProgressPrinter) Drained(p queue.Progress) {
	pp.draw(p, true)
}

func (pp *ProgressPrinter) draw(p queue.Progress, done bool) {
	if !p.Renderable() {
		return
	}
	pp.mu.Lock()
	defer pp.mu.Unlock()
	fmt.Fprintf(pp.w, "\r%s (%.0f%%)", p, p.Percent())
	if done {
		fmt.Fprintln(pp.w)
	}
}
