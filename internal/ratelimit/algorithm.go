package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// algorithm evaluates a policy against the store. key is the base rate-limit
// key; each implementation derives its own storage keys from it.
type algorithm interface {
	check(ctx context.Context, store Store, key string, p Policy, now time.Time) (Decision, error)
	peek(ctx context.Context, store Store, key string, p Policy, now time.Time) (Status, error)
	// keys lists every storage key the algorithm may hold for key at now.
	keys(key string, p Policy, now time.Time) []string
}

func algorithmFor(a Algorithm) (algorithm, error) {
	switch a {
	case SlidingWindow:
		return slidingWindow{}, nil
	case FixedWindow:
		return fixedWindow{}, nil
	case TokenBucket:
		return tokenBucket{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAlgorithm, a)
	}
}

func runCheck(ctx context.Context, store Store, script *Script, keys []string, p Policy, now time.Time, extra interface{}) (Decision, error) {
	res, err := store.Eval(ctx, script, keys,
		now.UnixMilli(), p.windowMillis(), p.MaxRequests, p.blockMillis(), extra)
	if err != nil {
		return Decision{}, err
	}
	o, err := parseOutcome(res)
	if err != nil {
		return Decision{}, &StoreError{Op: script.Name, Err: err}
	}
	return newDecision(p, o), nil
}

func runPeek(ctx context.Context, store Store, script *Script, keys []string, p Policy, now time.Time) (Status, error) {
	res, err := store.Eval(ctx, script, keys, now.UnixMilli(), p.windowMillis(), p.MaxRequests)
	if err != nil {
		return Status{}, err
	}
	if len(res) < 5 {
		return Status{}, &StoreError{Op: script.Name, Err: fmt.Errorf("unexpected script result length %d", len(res))}
	}

	st := Status{
		State:     StatusEmpty,
		Algorithm: p.Algorithm,
		Limit:     p.MaxRequests,
		Count:     res[1],
		Remaining: res[2],
		TTLMillis: res[3],
	}
	if res[0] == 1 {
		st.State = StatusActive
		st.ResetTime = now.Add(time.Duration(res[3]) * time.Millisecond)
	}
	if blocked := res[4]; blocked > 0 {
		st.State = StatusActive
		st.Blocked = true
		st.Remaining = 0
		st.TTLMillis = max(st.TTLMillis, blocked)
		st.ResetTime = now.Add(time.Duration(blocked) * time.Millisecond)
	}
	return st, nil
}

// slidingWindow keeps one sorted-set member per admitted request, scored by
// its timestamp, and counts members inside the trailing window.
type slidingWindow struct{}

func (slidingWindow) check(ctx context.Context, store Store, key string, p Policy, now time.Time) (Decision, error) {
	member := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())
	return runCheck(ctx, store, slidingWindowCheck, []string{slidingKey(key), blockKey(key)}, p, now, member)
}

func (slidingWindow) peek(ctx context.Context, store Store, key string, p Policy, now time.Time) (Status, error) {
	return runPeek(ctx, store, slidingWindowPeek, []string{slidingKey(key), blockKey(key)}, p, now)
}

func (slidingWindow) keys(key string, _ Policy, _ time.Time) []string {
	return []string{slidingKey(key)}
}

// fixedWindow counts requests in aligned windows. The window start is part of
// the storage key, so a new window always starts from zero.
type fixedWindow struct{}

func windowStart(p Policy, now time.Time) int64 {
	w := p.windowMillis()
	ms := now.UnixMilli()
	return ms - ms%w
}

func (fixedWindow) check(ctx context.Context, store Store, key string, p Policy, now time.Time) (Decision, error) {
	start := windowStart(p, now)
	return runCheck(ctx, store, fixedWindowCheck, []string{fixedKey(key, start), blockKey(key)}, p, now, start)
}

func (fixedWindow) peek(ctx context.Context, store Store, key string, p Policy, now time.Time) (Status, error) {
	start := windowStart(p, now)
	return runPeek(ctx, store, fixedWindowPeek, []string{fixedKey(key, start), blockKey(key)}, p, now)
}

func (fixedWindow) keys(key string, p Policy, now time.Time) []string {
	start := windowStart(p, now)
	return []string{fixedKey(key, start), fixedKey(key, start-p.windowMillis())}
}

// tokenBucket holds up to MaxRequests tokens, refilled at MaxRequests per
// Window.
type tokenBucket struct{}

func (tokenBucket) check(ctx context.Context, store Store, key string, p Policy, now time.Time) (Decision, error) {
	return runCheck(ctx, store, tokenBucketCheck, []string{bucketKey(key), blockKey(key)}, p, now, 0)
}

func (tokenBucket) peek(ctx context.Context, store Store, key string, p Policy, now time.Time) (Status, error) {
	return runPeek(ctx, store, tokenBucketPeek, []string{bucketKey(key), blockKey(key)}, p, now)
}

func (tokenBucket) keys(key string, _ Policy, _ time.Time) []string {
	return []string{bucketKey(key)}
}
