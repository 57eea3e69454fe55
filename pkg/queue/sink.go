package queue

import (
	"go.uber.org/zap"
)

// Sink receives processor events. Implementations must be safe for
// concurrent use; ItemDone is called from loader goroutines.
type Sink interface {
	// Notice carries a user-facing message (e.g. nothing was accepted).
	Notice(msg string)
	// Started fires once when a drain begins on an idle processor.
	Started(p Progress)
	// Enqueued fires after n items were appended.
	Enqueued(n int, p Progress)
	// ItemDone fires once per item; err is nil on success.
	ItemDone(err error)
	// BatchDone fires after every item of a batch completed.
	BatchDone(size int, p Progress)
	// Drained fires when the queue is empty and the drain loop stops.
	Drained(p Progress)
}

// NoopSink ignores every event. Embed it to implement a subset of Sink.
type NoopSink struct{}

func (NoopSink) Notice(string) {}
func (NoopSink) Started(Progress) {}
func (NoopSink) Enqueued(int, Progress) {}
func (NoopSink) ItemDone(error) {}
func (NoopSink) BatchDone(int, Progress) {}
func (NoopSink) Drained(Progress) {}

// MultiSink fans events out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Notice(msg string) {
	for _, s := range m {
		s.Notice(msg)
	}
}

func (m MultiSink) Started(p Progress) {
	for _, s := range m {
		s.Started(p)
	}
}

func (m MultiSink) Enqueued(n int, p Progress) {
	for _, s := range m {
		s.Enqueued(n, p)
	}
}

func (m MultiSink) ItemDone(err error) {
	for _, s := range m {
		s.ItemDone(err)
	}
}

func (m MultiSink) BatchDone(size int, p Progress) {
	for _, s := range m {
		s.BatchDone(size, p)
	}
}

func (m MultiSink) Drained(p Progress) {
	for _, s := range m {
		s.Drained(p)
	}
}

// LogSink writes processor events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink logging to logger. A nil logger yields a no-op logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Notice(msg string) {
	s.logger.Info("Queue notice", zap.String("message", msg))
}

func (s *LogSink) Started(p Progress) {
	s.logger.Info("Drain started",
		zap.Int("run", p.Run),
		zap.Int("total", p.Total))
}

func (s *LogSink) Enqueued(n int, p Progress) {
	s.logger.Debug("Items enqueued",
		zap.Int("count", n),
		zap.Int("total", p.Total),
		zap.Int("pending", p.Pending))
}

func (s *LogSink) ItemDone(err error) {
	if err != nil {
		s.logger.Warn("Item failed to load", zap.Error(err))
	}
}

func (s *LogSink) BatchDone(size int, p Progress) {
	s.logger.Debug("Batch completed",
		zap.Int("run", p.Run),
		zap.Int("batch_size", size),
		zap.Int("processed", p.Processed),
		zap.Int("total", p.Total),
		zap.Float64("percent", p.Percent()))
}

func (s *LogSink) Drained(p Progress) {
	s.logger.Info("Drain completed",
		zap.Int("run", p.Run),
		zap.Int("processed", p.Processed),
		zap.Int("succeeded", p.Succeeded),
		zap.Int("failed", p.Failed),
		zap.Int("batches", p.Batches),
		zap.Duration("elapsed", p.Elapsed()))
}
