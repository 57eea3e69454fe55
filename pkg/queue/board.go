package queue

import (
	"sync"
	"time"
)

// DefaultHideDelay keeps a finished progress bar on screen briefly.
const DefaultHideDelay = 1500 * time.Millisecond

// BoardState is what a progress display shows.
type BoardState struct {
	Visible  bool     `json:"visible"`
	Text     string   `json:"text"`
	Percent  float64  `json:"percent"`
	Progress Progress `json:"progress"`
	Notice   string   `json:"notice,omitempty"`
}

// Board is a Sink holding the latest progress for a display. It shows while
// a drain runs and hides hideDelay after the drain that showed it completes.
type Board struct {
	NoopSink

	hideDelay time.Duration

	mu      sync.RWMutex
	latest  Progress
	visible bool
	notice  string
	timer   *time.Timer
}

// NewBoard creates a board. A non-positive hideDelay uses DefaultHideDelay.
func NewBoard(hideDelay time.Duration) *Board {
	if hideDelay <= 0 {
		hideDelay = DefaultHideDelay
	}
	return &Board{hideDelay: hideDelay}
}

// State returns what the display should currently show.
func (b *Board) State() BoardState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state := BoardState{
		Visible:  b.visible && b.latest.Renderable(),
		Progress: b.latest,
		Percent:  b.latest.Percent(),
		Notice:   b.notice,
	}
	if state.Visible {
		state.Text = b.latest.String()
	}
	return state
}

func (b *Board) Notice(msg string) {
	b.mu.Lock()
	b.notice = msg
	b.mu.Unlock()
}

func (b *Board) Started(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.Run < b.latest.Run {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.notice = ""
	b.visible = true
	b.latest = p
}

func (b *Board) Enqueued(_ int, p Progress) {
	b.update(p)
}

func (b *Board) BatchDone(_ int, p Progress) {
	b.update(p)
}

func (b *Board) Drained(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stale(p) {
		return
	}
	b.latest = p
	if b.timer != nil {
		b.timer.Stop()
	}
	run := p.Run
	b.timer = time.AfterFunc(b.hideDelay, func() {
		b.hide(run)
	})
}

func (b *Board) update(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stale(p) {
		return
	}
	b.latest = p
}

// stale reports whether p predates the progress already shown: an earlier
// run, or an older snapshot of the current one.
func (b *Board) stale(p Progress) bool {
	if p.Run != b.latest.Run {
		return p.Run < b.latest.Run
	}
	return p.UpdatedAt.Before(b.latest.UpdatedAt)
}

func (b *Board) hide(run int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest.Run != run || b.latest.Active {
		return
	}
	b.visible = false
	b.timer = nil
}
