package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryLimiter(t *testing.T) {
	limiter := NewMemoryLimiter(time.Minute, discardLogger())
	defer limiter.Close()

	assert.NotNil(t, limiter)
	assert.Equal(t, 0, limiter.Stats().Keys)
}

func TestMemoryLimiter_Check_UnderLimit(t *testing.T) {
	limiter := NewMemoryLimiter(0, discardLogger())
	defer limiter.Close()

	p := Policy{Window: time.Minute, MaxRequests: 10, Algorithm: SlidingWindow}
	d := limiter.Check("rl:ip:api:1.1.1.1", p, t0)

	assert.True(t, d.Allowed)
	assert.Equal(t, MemoryFallback, d.Algorithm)
	assert.Equal(t, int64(10), d.Limit)
	assert.Equal(t, int64(9), d.Remaining)
	assert.Equal(t, int64(0), d.RetryAfter)
	assert.True(t, d.ResetTime.After(t0))
}

func TestMemoryLimiter_Check_ExceedsLimit(t *testing.T) {
	limiter := NewMemoryLimiter(0, discardLogger())
	defer limiter.Close()

	p := Policy{Window: time.Minute, MaxRequests: 3, Algorithm: FixedWindow}
	key := "rl:ip:auth:1.1.1.1"

	for i := 0; i < 3; i++ {
		d := limiter.Check(key, p, t0)
		assert.True(t, d.Allowed, "request %d should be allowed", i+1)
	}

	d := limiter.Check(key, p, t0)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(0), d.Remaining)
	// One token per 20s.
	assert.Equal(t, int64(20), d.RetryAfter)
}

func TestMemoryLimiter_Check_Refills(t *testing.T) {
	limiter := NewMemoryLimiter(0, discardLogger())
	defer limiter.Close()

	p := Policy{Window: time.Second, MaxRequests: 2, Algorithm: TokenBucket}
	key := "k"

	limiter.Check(key, p, t0)
	limiter.Check(key, p, t0)
	assert.False(t, limiter.Check(key, p, t0).Allowed)

	assert.True(t, limiter.Check(key, p, t0.Add(500*time.Millisecond)).Allowed)
}

func TestMemoryLimiter_Check_DifferentKeys(t *testing.T) {
	limiter := NewMemoryLimiter(0, discardLogger())
	defer limiter.Close()

	p := Policy{Window: time.Minute, MaxRequests: 1, Algorithm: FixedWindow}

	assert.True(t, limiter.Check("key1", p, t0).Allowed)
	assert.False(t, limiter.Check("key1", p, t0).Allowed, "key1 should be denied")
	assert.True(t, limiter.Check("key2", p, t0).Allowed, "key2 should be allowed")
}

func TestMemoryLimiter_PolicyChangeReplacesBucket(t *testing.T) {
	limiter := NewMemoryLimiter(0, discardLogger())
	defer limiter.Close()

	strict := Policy{Window: time.Minute, MaxRequests: 1, Algorithm: FixedWindow}
	loose := Policy{Window: time.Minute, MaxRequests: 5, Algorithm: FixedWindow}

	limiter.Check("k", strict, t0)
	assert.False(t, limiter.Check("k", strict, t0).Allowed)

	d := limiter.Check("k", loose, t0)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(5), d.Limit)
}

func TestMemoryLimiter_AlgorithmOverrideKeepsBucket(t *testing.T) {
	limiter := NewMemoryLimiter(0, discardLogger())
	defer limiter.Close()

	algs := []Algorithm{SlidingWindow, FixedWindow, TokenBucket}
	for i := range 3 {
		p := Policy{Window: time.Minute, MaxRequests: 3, Algorithm: algs[i]}
		assert.True(t, limiter.Check("k", p, t0).Allowed, "request %d", i+1)
	}

	d := limiter.Check("k", Policy{Window: time.Minute, MaxRequests: 3, Algorithm: SlidingWindow}, t0)
	assert.False(t, d.Allowed)
	assert.Equal(t, MemoryFallback, d.Algorithm)
}

func TestMemoryLimiter_Reset(t *testing.T) {
	limiter := NewMemoryLimiter(0, discardLogger())
	defer limiter.Close()

	p := Policy{Window: time.Minute, MaxRequests: 1, Algorithm: FixedWindow}
	limiter.Check("k", p, t0)
	require.False(t, limiter.Check("k", p, t0).Allowed)

	limiter.Reset("k")

	assert.True(t, limiter.Check("k", p, t0).Allowed)
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	limiter := NewMemoryLimiter(0, discardLogger())
	defer limiter.Close()

	short := Policy{Window: time.Second, MaxRequests: 5, Algorithm: FixedWindow}
	long := Policy{Window: time.Hour, MaxRequests: 5, Algorithm: FixedWindow}

	limiter.Check("short", short, t0)
	limiter.Check("long", long, t0)
	require.Equal(t, 2, limiter.Stats().Keys)

	evicted := limiter.Sweep(t0.Add(2 * time.Second))

	assert.Equal(t, 1, evicted)
	stats := limiter.Stats()
	assert.Equal(t, 1, stats.Keys)
	assert.Equal(t, int64(1), stats.Sweeps)
	assert.Equal(t, int64(1), stats.Evicted)
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	limiter := NewMemoryLimiter(0, discardLogger())
	defer limiter.Close()

	p := Policy{Window: time.Hour, MaxRequests: 50, Algorithm: FixedWindow}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := limiter.Check("shared", p, t0)
			limiter.Check(fmt.Sprintf("key-%d", i), p, t0)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
	assert.Equal(t, 101, limiter.Stats().Keys)
}

func TestMemoryLimiter_CloseIdempotent(t *testing.T) {
	limiter := NewMemoryLimiter(time.Second, discardLogger())
	limiter.Close()
	limiter.Close()
}
