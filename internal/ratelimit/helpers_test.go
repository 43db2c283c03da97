package ratelimit

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable clock for deterministic window arithmetic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// t0 is aligned to every window used in tests.
var t0 = time.UnixMilli(1_699_999_200_000)

func newTestStore(t *testing.T, opts RedisOptions) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	opts.Addr = mr.Addr()
	if opts.HealthCheckInterval == 0 {
		opts.HealthCheckInterval = time.Hour
	}
	store := NewRedisStore(opts, discardLogger())
	t.Cleanup(func() { store.Close() })
	return mr, store
}

func newTestLimiter(t *testing.T, store Store, policies PolicySet, clock *fakeClock) *Limiter {
	t.Helper()
	fallback := NewMemoryLimiter(0, discardLogger())
	l := New(store, policies,
		WithClock(clock.Now),
		WithLogger(discardLogger()),
		WithFallback(fallback),
	)
	t.Cleanup(func() { fallback.Close() })
	return l
}
