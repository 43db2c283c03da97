// Package ratelimit implements distributed request rate limiting. Limits are
// evaluated atomically in a shared Redis store using a sliding window, fixed
// window or token bucket algorithm per tier, and degrade to a process-local
// token bucket while the store is unreachable. The package also provides HTTP
// middleware that sets standard rate limit response headers.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives every decision and every store failure. Implementations
// must be safe for concurrent use.
type Observer interface {
	ObserveDecision(ctx context.Context, d Decision)
	ObserveStoreError(ctx context.Context, op string, err error)
}

// CheckOptions selects the counter a check applies to.
type CheckOptions struct {
	Scope ScopeType
	Tier  Tier

	// Algorithm overrides the tier's algorithm when set to a valid value.
	Algorithm Algorithm
}

// Limiter is the rate limiting facade. It is safe for concurrent use.
type Limiter struct {
	store    Store
	fallback *MemoryLimiter
	policies PolicySet
	keys     KeyBuilder
	now      func() time.Time
	logger   *slog.Logger
	observer Observer

	checks      atomic.Int64
	allowed     atomic.Int64
	denied      atomic.Int64
	fallbacks   atomic.Int64
	storeErrors atomic.Int64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(l *Limiter) { l.observer = o }
}

func WithKeyPrefix(prefix string) Option {
	return func(l *Limiter) { l.keys = NewKeyBuilder(prefix) }
}

// WithFallback sets the limiter used while the store is unavailable.
func WithFallback(m *MemoryLimiter) Option {
	return func(l *Limiter) { l.fallback = m }
}

// New creates a Limiter. store may be nil, in which case every decision is
// made by the fallback limiter.
func New(store Store, policies PolicySet, opts ...Option) *Limiter {
	l := &Limiter{
		store:    store,
		policies: policies,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fallback == nil {
		l.fallback = NewMemoryLimiter(time.Minute, l.logger)
	}
	return l
}

func (l *Limiter) storeReady() bool {
	return l.store != nil && l.store.Available()
}

func (l *Limiter) policyFor(opts CheckOptions) Policy {
	p := l.policies.Resolve(opts.Tier)
	if opts.Algorithm != "" && opts.Algorithm != p.Algorithm {
		if _, err := ParseAlgorithm(string(opts.Algorithm)); err == nil {
			p.Algorithm = opts.Algorithm
		} else {
			l.logger.Debug("Ignoring algorithm override", "algorithm", opts.Algorithm)
		}
	}
	return p
}

func normalizeScope(s ScopeType) ScopeType {
	if s.Valid() {
		return s
	}
	return ScopeIP
}

// Check consumes one request for identifier and returns the decision. It never
// fails: store errors are logged and the fallback limiter decides instead.
func (l *Limiter) Check(ctx context.Context, identifier string, opts CheckOptions) Decision {
	scope := normalizeScope(opts.Scope)
	policy := l.policyFor(opts)
	key := l.keys.Build(scope, identifier, opts.Tier)
	now := l.now()

	var (
		d   Decision
		err error
	)
	if l.storeReady() {
		var alg algorithm
		if alg, err = algorithmFor(policy.Algorithm); err == nil {
			d, err = alg.check(ctx, l.store, key, policy, now)
		}
		if err != nil {
			l.storeErrors.Add(1)
			l.logger.Warn("Rate limit check failed, using fallback",
				"key", key,
				"algorithm", policy.Algorithm,
				"error", err,
			)
			if l.observer != nil {
				l.observer.ObserveStoreError(ctx, "check", err)
			}
		}
	} else {
		err = ErrStoreUnavailable
	}
	if err != nil {
		l.fallbacks.Add(1)
		d = l.fallback.Check(key, policy, now)
	}

	d.Identifier = identifier
	d.Scope = scope
	d.Tier = opts.Tier

	l.checks.Add(1)
	if d.Allowed {
		l.allowed.Add(1)
	} else {
		l.denied.Add(1)
	}
	if l.observer != nil {
		l.observer.ObserveDecision(ctx, d)
	}
	return d
}

// Reset deletes every counter held for identifier under scope and tier. It
// reports true when the store accepted the delete, including when there was
// nothing to delete, and ErrStoreUnavailable when the store cannot be reached.
// Fallback state is cleared regardless.
func (l *Limiter) Reset(ctx context.Context, identifier string, scope ScopeType, tier Tier) (bool, error) {
	scope = normalizeScope(scope)
	key := l.keys.Build(scope, identifier, tier)
	l.fallback.Reset(key)

	if !l.storeReady() {
		l.logger.Warn("Rate limit reset skipped, store unavailable", "key", key)
		return false, ErrStoreUnavailable
	}

	policy := l.policies.Resolve(tier)
	now := l.now()
	keys := []string{blockKey(key)}
	for _, a := range []algorithm{slidingWindow{}, fixedWindow{}, tokenBucket{}} {
		keys = append(keys, a.keys(key, policy, now)...)
	}

	n, err := l.store.Delete(ctx, keys...)
	if err != nil {
		l.storeErrors.Add(1)
		l.logger.Warn("Rate limit reset failed", "key", key, "error", err)
		if l.observer != nil {
			l.observer.ObserveStoreError(ctx, "reset", err)
		}
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	l.logger.Info("Rate limit reset", "key", key, "deleted", n)
	return true, nil
}

// Status reports the current counter for identifier without consuming a
// request.
func (l *Limiter) Status(ctx context.Context, identifier string, opts CheckOptions) Status {
	scope := normalizeScope(opts.Scope)
	policy := l.policyFor(opts)
	key := l.keys.Build(scope, identifier, opts.Tier)

	st := Status{State: StatusUnavailable}
	if l.storeReady() {
		alg, err := algorithmFor(policy.Algorithm)
		if err == nil {
			st, err = alg.peek(ctx, l.store, key, policy, l.now())
		}
		if err != nil {
			l.storeErrors.Add(1)
			l.logger.Warn("Rate limit status lookup failed", "key", key, "error", err)
			if l.observer != nil {
				l.observer.ObserveStoreError(ctx, "status", err)
			}
			st = Status{State: StatusUnavailable, Error: err.Error()}
		}
	} else {
		st.Error = ErrStoreUnavailable.Error()
	}

	st.Key = key
	st.Identifier = identifier
	st.Scope = scope
	st.Tier = opts.Tier
	if st.State == StatusUnavailable {
		st.Algorithm = policy.Algorithm
		st.Limit = policy.MaxRequests
	}
	return st
}

// Stats returns aggregate counters and store health. Store errors are reported
// in the result rather than returned.
func (l *Limiter) Stats(ctx context.Context) Stats {
	s := Stats{
		StoreAvailable:    l.storeReady(),
		Fallback:          l.fallback.Stats(),
		Checks:            l.checks.Load(),
		Allowed:           l.allowed.Load(),
		Denied:            l.denied.Load(),
		FallbackDecisions: l.fallbacks.Load(),
		StoreErrors:       l.storeErrors.Load(),
	}
	if l.store == nil {
		s.StoreError = ErrStoreUnavailable.Error()
		return s
	}
	storeStats, err := l.store.Stats(ctx)
	s.Store = &storeStats
	if err != nil {
		s.StoreError = err.Error()
	}
	return s
}

// KeyFor returns the base store key for identifier, scope and tier.
func (l *Limiter) KeyFor(identifier string, scope ScopeType, tier Tier) string {
	return l.keys.Build(normalizeScope(scope), identifier, tier)
}

// StoreAvailable reports whether checks are currently served by the store.
func (l *Limiter) StoreAvailable() bool {
	return l.storeReady()
}

// Policies returns the policy table.
func (l *Limiter) Policies() PolicySet {
	return l.policies
}

// Ping checks store connectivity.
func (l *Limiter) Ping(ctx context.Context) error {
	if l.store == nil {
		return ErrStoreUnavailable
	}
	return l.store.Ping(ctx)
}

// Close stops the fallback sweeper and closes the store.
func (l *Limiter) Close() error {
	l.fallback.Close()
	if l.store != nil {
		return l.store.Close()
	}
	return nil
}
