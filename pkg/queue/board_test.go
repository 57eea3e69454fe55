package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoard_HiddenUntilStarted(t *testing.T) {
	b := NewBoard(0)
	state := b.State()
	assert.False(t, state.Visible)
	assert.Empty(t, state.Text)
	assert.Zero(t, state.Percent)
}

func TestBoard_HidesAfterDelay(t *testing.T) {
	b := NewBoard(200 * time.Millisecond)
	p := newTestProcessor(t, noopLoad, b)

	_, err := p.Enqueue(context.Background(), ints(7), nil)
	require.NoError(t, err)
	waitIdle(t, p)

	state := b.State()
	assert.True(t, state.Visible, "board stays up right after the drain")
	assert.Equal(t, "Processing files: 7/7", state.Text)
	assert.InDelta(t, 100.0, state.Percent, 0.001)

	assert.Eventually(t, func() bool { return !b.State().Visible }, 2*time.Second, 5*time.Millisecond)
}

func TestBoard_NewRunCancelsPendingHide(t *testing.T) {
	b := NewBoard(50 * time.Millisecond)

	b.Started(Progress{Run: 1, Total: 2, Active: true})
	b.Drained(Progress{Run: 1, Processed: 2, Total: 2})
	b.Started(Progress{Run: 2, Total: 4, Active: true})

	time.Sleep(80 * time.Millisecond)
	state := b.State()
	assert.True(t, state.Visible)
	assert.Equal(t, 2, state.Progress.Run)
}

func TestBoard_IgnoresStaleRun(t *testing.T) {
	b := NewBoard(10 * time.Millisecond)

	b.Started(Progress{Run: 2, Total: 3, Active: true})
	b.Drained(Progress{Run: 1, Processed: 9, Total: 9})
	b.BatchDone(5, Progress{Run: 1, Processed: 5, Total: 9})

	time.Sleep(30 * time.Millisecond)
	state := b.State()
	assert.True(t, state.Visible)
	assert.Equal(t, 3, state.Progress.Total)
}

func TestBoard_Notice(t *testing.T) {
	b := NewBoard(0)
	b.Notice(NoticeNoAcceptedFiles)
	assert.Equal(t, NoticeNoAcceptedFiles, b.State().Notice)
	assert.False(t, b.State().Visible)

	b.Started(Progress{Run: 1, Total: 1, Active: true})
	assert.Empty(t, b.State().Notice)
}

func TestBoard_IgnoresOlderSnapshotOfSameRun(t *testing.T) {
	b := NewBoard(20 * time.Millisecond)
	t0 := time.Now()

	b.Started(Progress{Run: 1, Total: 1, Active: true, UpdatedAt: t0})
	b.Drained(Progress{Run: 1, Processed: 3, Total: 3, UpdatedAt: t0.Add(2 * time.Millisecond)})
	// an enqueue snapshot taken before the drain finished, delivered after it
	b.Enqueued(2, Progress{Run: 1, Total: 3, Pending: 2, Active: true, UpdatedAt: t0.Add(time.Millisecond)})

	assert.Equal(t, 3, b.State().Progress.Processed)
	assert.Eventually(t, func() bool { return !b.State().Visible }, time.Second, 5*time.Millisecond)
}
