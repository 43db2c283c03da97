package observability

import (
	"context"
	"errors"
	"testing"

	"ratelimiter/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionMetrics(t *testing.T) {
	tm := setupTelemetry(t)

	m, err := NewDecisionMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.ObserveDecision(ctx, ratelimit.Decision{Allowed: true, Tier: ratelimit.TierAuth, Scope: ratelimit.ScopeIP, Algorithm: ratelimit.SlidingWindow})
	m.ObserveDecision(ctx, ratelimit.Decision{Allowed: false, Tier: ratelimit.TierAuth, Scope: ratelimit.ScopeIP, Algorithm: ratelimit.SlidingWindow})
	m.ObserveDecision(ctx, ratelimit.Decision{Allowed: true, Tier: ratelimit.TierUser, Scope: ratelimit.ScopeUser, Algorithm: ratelimit.MemoryFallback})
	m.ObserveStoreError(ctx, "check", errors.New("timeout"))

	rm := tm.collect(t)
	assert.Equal(t, int64(3), sumCounter(t, rm, "ratelimit.decisions", nil))
	assert.Equal(t, int64(1), sumCounter(t, rm, "ratelimit.decisions", map[string]string{"tier": "auth", "allowed": "false"}))
	assert.Equal(t, int64(1), sumCounter(t, rm, "ratelimit.fallback", map[string]string{"tier": "user"}))
	assert.Equal(t, int64(1), sumCounter(t, rm, "ratelimit.store.failures", map[string]string{"operation": "check"}))
}

func TestDecisionMetrics_AnnotatesActiveSpan(t *testing.T) {
	tm := setupTelemetry(t)

	m, err := NewDecisionMetrics()
	require.NoError(t, err)

	ctx, span := tracerForTest().Start(context.Background(), "request")
	m.ObserveDecision(ctx, ratelimit.Decision{Allowed: false, Remaining: 0, Tier: ratelimit.TierAPI})
	span.End()

	ended := tm.spans.Ended()
	require.Len(t, ended, 1)
	var found bool
	for _, kv := range ended[0].Attributes() {
		if kv.Key == "ratelimit.allowed" {
			found = true
			assert.False(t, kv.Value.AsBool())
		}
	}
	assert.True(t, found, "span should carry ratelimit.allowed")
}
