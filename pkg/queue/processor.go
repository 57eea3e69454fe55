// Package queue implements an asynchronous FIFO work queue drained in
// fixed-size batches. Items inside a batch run concurrently; batches run
// strictly one after another. Any number of producers may enqueue while a
// drain is in progress, new items simply join the tail.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBatchSize is the number of items loaded concurrently per step.
	DefaultBatchSize = 5

	// MaxBatchSize bounds the per-step concurrency.
	MaxBatchSize = 1000

	// DefaultConfirmThreshold is the burst size above which enqueue asks for confirmation.
	DefaultConfirmThreshold = 50

	// DefaultStepDelay yields between batches so producers and progress
	// readers get scheduled.
	DefaultStepDelay = 10 * time.Millisecond

	// NoticeNoAcceptedFiles is sent to the sink when an enqueue carries nothing.
	NoticeNoAcceptedFiles = "No GPX files found in selection"
)

var (
	ErrNoAcceptedFiles  = errors.New("no accepted files in selection")
	ErrNotConfirmed     = errors.New("bulk enqueue was not confirmed")
	ErrNilLoader        = errors.New("loader cannot be nil")
	ErrInvalidBatchSize = errors.New("batch size must be between 1 and 1000")
	ErrLoaderPanic      = errors.New("loader panicked")
)

// LoadFunc loads a single item. Returned errors are counted as failures and
// never stop the queue.
type LoadFunc[T any] func(ctx context.Context, item T) error

// Options tune a Processor. Zero values select the defaults.
type Options struct {
	BatchSize        int
	ConfirmThreshold int
	StepDelay        time.Duration
	// ItemTimeout bounds a single load. Zero waits indefinitely.
	ItemTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ConfirmThreshold <= 0 {
		o.ConfirmThreshold = DefaultConfirmThreshold
	}
	if o.StepDelay <= 0 {
		o.StepDelay = DefaultStepDelay
	}
	return o
}

// Processor owns the queue and its progress counters.
type Processor[T any] struct {
	load   LoadFunc[T]
	sink   Sink
	logger *zap.Logger
	opts   Options

	mu         sync.Mutex
	queue      []T
	processing bool
	run        int
	processed  int
	total      int
	succeeded  int
	failed     int
	batches    int
	startedAt  time.Time
	updatedAt  time.Time
	idle       chan struct{}

	// events are delivered in the order their snapshots were taken
	events sequencer
}

// NewProcessor creates a processor that loads items with load and reports to
// sink. A nil sink or logger is replaced by a no-op.
func NewProcessor[T any](load LoadFunc[T], opts Options, sink Sink, logger *zap.Logger) (*Processor[T], error) {
	if load == nil {
		return nil, ErrNilLoader
	}
	opts = opts.withDefaults()
	if opts.BatchSize < 1 || opts.BatchSize > MaxBatchSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, opts.BatchSize)
	}
	if sink == nil {
		sink = NoopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	idle := make(chan struct{})
	close(idle)

	return &Processor[T]{
		load:   load,
		sink:   sink,
		logger: logger,
		opts:   opts,
		idle:   idle,
	}, nil
}

// Options returns the effective options.
func (p *Processor[T]) Options() Options {
	return p.opts
}

// Enqueue appends items to the queue and starts a drain when none is
// running. Bursts above the confirm threshold are put to confirm first; a
// decline or a nil confirmer leaves the processor untouched.
func (p *Processor[T]) Enqueue(ctx context.Context, items []T, confirm Confirmer) (Progress, error) {
	if len(items) == 0 {
		p.sink.Notice(NoticeNoAcceptedFiles)
		return p.Progress(), ErrNoAcceptedFiles
	}

	if len(items) > p.opts.ConfirmThreshold {
		if confirm == nil {
			return p.Progress(), ErrNotConfirmed
		}
		ok, err := confirm.Confirm(ctx, len(items))
		if err != nil {
			return p.Progress(), fmt.Errorf("confirm %d items: %w", len(items), err)
		}
		if !ok {
			return p.Progress(), ErrNotConfirmed
		}
	}

	p.mu.Lock()
	fresh := !p.processing
	if fresh {
		now := time.Now()
		p.processing = true
		p.run++
		p.processed = 0
		p.total = 0
		p.succeeded = 0
		p.failed = 0
		p.batches = 0
		p.startedAt = now
		p.idle = make(chan struct{})
	}
	p.queue = append(p.queue, items...)
	p.total += len(items)
	p.updatedAt = time.Now()
	snap := p.snapshotLocked()
	turn := p.events.ticket()
	p.mu.Unlock()

	p.events.deliver(turn, func() {
		if fresh {
			p.sink.Started(snap)
		}
		p.sink.Enqueued(len(items), snap)
	})

	if fresh {
		go p.drain(snap.Run)
	}
	return snap, nil
}

// Progress returns the current counters.
func (p *Processor[T]) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// IsActive reports whether a drain loop is running.
func (p *Processor[T]) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processing
}

// WaitIdle blocks until no drain is running or ctx is done.
func (p *Processor[T]) WaitIdle(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor[T]) snapshotLocked() Progress {
	return Progress{
		Run:       p.run,
		Processed: p.processed,
		Total:     p.total,
		Pending:   len(p.queue),
		Succeeded: p.succeeded,
		Failed:    p.failed,
		Batches:   p.batches,
		Active:    p.processing,
		StartedAt: p.startedAt,
		UpdatedAt: p.updatedAt,
	}
}

func (p *Processor[T]) drain(run int) {
	p.logger.Debug("Drain loop started", zap.Int("run", run))
	for {
		batch, ok := p.next()
		if !ok {
			return
		}

		p.runBatch(batch)

		p.mu.Lock()
		p.processed += len(batch)
		p.batches++
		p.updatedAt = time.Now()
		snap := p.snapshotLocked()
		turn := p.events.ticket()
		p.mu.Unlock()

		p.events.deliver(turn, func() {
			p.sink.BatchDone(len(batch), snap)
		})

		time.Sleep(p.opts.StepDelay)
	}
}

// next removes up to BatchSize items from the head of the queue. When the
// queue is empty it ends the drain and returns false.
func (p *Processor[T]) next() ([]T, bool) {
	p.mu.Lock()
	n := min(p.opts.BatchSize, len(p.queue))
	if n == 0 {
		p.processing = false
		p.queue = nil
		p.updatedAt = time.Now()
		snap := p.snapshotLocked()
		idle := p.idle
		turn := p.events.ticket()
		p.mu.Unlock()

		p.events.deliver(turn, func() {
			p.sink.Drained(snap)
		})
		close(idle)
		return nil, false
	}

	batch := make([]T, n)
	copy(batch, p.queue[:n])
	clear(p.queue[:n])
	p.queue = p.queue[n:]
	p.mu.Unlock()
	return batch, true
}

func (p *Processor[T]) runBatch(batch []T) {
	var g errgroup.Group
	for _, item := range batch {
		g.Go(func() error {
			err := p.loadOne(item)

			p.mu.Lock()
			if err != nil {
				p.failed++
			} else {
				p.succeeded++
			}
			p.mu.Unlock()

			p.sink.ItemDone(err)
			return nil
		})
	}
	// Loaders never return errors to the group.
	_ = g.Wait()
}

func (p *Processor[T]) loadOne(item T) error {
	ctx := WithProgress(context.Background(), p.Progress())
	if p.opts.ItemTimeout <= 0 {
		return p.safeLoad(ctx, item)
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.ItemTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.safeLoad(ctx, item)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("load abandoned after %s: %w", p.opts.ItemTimeout, ctx.Err())
	}
}

func (p *Processor[T]) safeLoad(ctx context.Context, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Loader panic recovered", zap.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrLoaderPanic, r)
		}
	}()
	return p.load(ctx, item)
}

// sequencer hands out tickets and runs deliveries strictly in ticket order.
// Tickets are taken under Processor.mu together with the snapshot they
// carry; deliveries run without it so sinks may read the processor.
type sequencer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	issued  uint64
	serving uint64
}

func (s *sequencer) ticket() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.issued
	s.issued++
	return t
}

func (s *sequencer) deliver(turn uint64, fn func()) {
	s.mu.Lock()
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
	for s.serving != turn {
		s.cond.Wait()
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.serving++
		s.cond.Broadcast()
		s.mu.Unlock()
	}()
	fn()
}
