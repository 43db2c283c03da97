package ratelimit

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

// entry holds a per-key token bucket and its last access time for eviction.
type entry struct {
	limiter  *rate.Limiter
	policy   Policy
	lastSeen time.Time
}

// MemoryLimiter is the process-local limiter used while the shared store is
// unreachable. Each key gets its own golang.org/x/time/rate token bucket sized
// from the key's policy. Counts are not shared between processes, so limits
// are only approximate in a multi-instance deployment.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	sweeper *cron.Cron
	sweeps  atomic.Int64
	evicted atomic.Int64
	logger  *slog.Logger
	closed  bool
}

// NewMemoryLimiter creates a MemoryLimiter. When sweepInterval is positive a
// cron job evicts idle entries on that schedule; cron granularity is one
// second.
func NewMemoryLimiter(sweepInterval time.Duration, logger *slog.Logger) *MemoryLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MemoryLimiter{
		entries: make(map[string]*entry),
		logger:  logger.With("component", "memory_limiter"),
	}
	if sweepInterval > 0 {
		m.sweeper = cron.New()
		schedule := "@every " + sweepInterval.String()
		if _, err := m.sweeper.AddFunc(schedule, func() { m.Sweep(time.Now()) }); err != nil {
			m.logger.Error("Failed to schedule fallback sweep", "schedule", schedule, "error", err)
		} else {
			m.sweeper.Start()
		}
	}
	return m
}

func refillRate(p Policy) rate.Limit {
	return rate.Every(p.Window / time.Duration(p.MaxRequests))
}

// sameBudget reports whether a and b allow the same traffic. The fallback is
// a token bucket whatever the algorithm, so Algorithm is ignored.
func sameBudget(a, b Policy) bool {
	return a.Window == b.Window && a.MaxRequests == b.MaxRequests && a.BlockDuration == b.BlockDuration
}

// Check consumes one request for key under policy p at now.
func (m *MemoryLimiter) Check(key string, p Policy, now time.Time) Decision {
	m.mu.Lock()
	e, exists := m.entries[key]
	if !exists || !sameBudget(e.policy, p) {
		e = &entry{
			limiter: rate.NewLimiter(refillRate(p), int(p.MaxRequests)),
			policy:  p,
		}
		m.entries[key] = e
	}
	e.lastSeen = now
	m.mu.Unlock()

	allowed := e.limiter.AllowN(now, 1)

	tokens := e.limiter.TokensAt(now)
	limit := e.limiter.Limit()

	// Reset time: when the bucket will be full again
	resetAt := now
	if missing := float64(p.MaxRequests) - tokens; missing > 0 && limit > 0 {
		resetAt = now.Add(time.Duration(missing / float64(limit) * float64(time.Second)))
	}

	d := Decision{
		Allowed:   allowed,
		Limit:     p.MaxRequests,
		Algorithm: MemoryFallback,
		ResetTime: resetAt,
	}
	if allowed {
		d.Remaining = int64(math.Max(0, math.Floor(tokens)))
		return d
	}

	reservation := e.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	d.RetryAfter = retryAfterSeconds(delay.Milliseconds())
	return d
}

// Reset forgets the bucket for key.
func (m *MemoryLimiter) Reset(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Sweep evicts entries idle for longer than their policy window; by then their
// bucket has refilled and a fresh one is equivalent. It returns the number of
// entries evicted.
func (m *MemoryLimiter) Sweep(now time.Time) int {
	m.mu.Lock()
	n := 0
	for key, e := range m.entries {
		if now.Sub(e.lastSeen) > e.policy.Window {
			delete(m.entries, key)
			n++
		}
	}
	remaining := len(m.entries)
	m.mu.Unlock()

	m.sweeps.Add(1)
	m.evicted.Add(int64(n))
	if n > 0 {
		m.logger.Debug("Evicted idle fallback entries", "evicted", n, "remaining", remaining)
	}
	return n
}

// Stats returns a snapshot of the limiter's size and sweep counters.
func (m *MemoryLimiter) Stats() FallbackStats {
	m.mu.Lock()
	keys := len(m.entries)
	m.mu.Unlock()
	return FallbackStats{
		Keys:    keys,
		Sweeps:  m.sweeps.Load(),
		Evicted: m.evicted.Load(),
	}
}

// Close stops the sweep schedule.
func (m *MemoryLimiter) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	if m.sweeper != nil {
		<-m.sweeper.Stop().Done()
	}
}
