package storage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ratelimiter/internal/models"
)

// recordTimeout bounds a single write so a slow database cannot stall the
// drain on shutdown.
const recordTimeout = 2 * time.Second

// Recorder writes violations to a ViolationStore on a background goroutine so
// the request path never waits on the database. When the buffer is full new
// violations are dropped and counted.
type Recorder struct {
	store   ViolationStore
	logger  *slog.Logger
	queue   chan *models.Violation
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewRecorder starts the writer goroutine. bufferSize <= 0 uses 256.
func NewRecorder(store ViolationStore, bufferSize int, logger *slog.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:  store,
		logger: logger,
		queue:  make(chan *models.Violation, bufferSize),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues v and reports whether it was accepted.
func (r *Recorder) Record(v *models.Violation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.dropped.Add(1)
		return false
	}
	select {
	case r.queue <- v:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for v := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		err := r.store.RecordViolation(ctx, v)
		cancel()
		if err != nil {
			r.failed.Add(1)
			r.logger.Error("Failed to record violation",
				"error", err,
				"identifier", v.Identifier,
				"tier", v.Tier)
			continue
		}
		r.written.Add(1)
	}
}

// RecorderStats reports recorder throughput.
type RecorderStats struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
	Pending int   `json:"pending"`
}

func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
		Pending: len(r.queue),
	}
}

// Close stops accepting violations and waits for queued ones to be written.
// It does not close the underlying store.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}
