package ratelimit

import (
	"fmt"
	"time"
)

// Decision is the result of a single limit check.
//
// A denied decision always has Remaining == 0 and RetryAfter >= 1; an allowed
// decision always has RetryAfter == 0.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	Remaining  int64     `json:"remaining"`
	ResetTime  time.Time `json:"resetTime"`
	RetryAfter int64     `json:"retryAfter"` // seconds
	Limit      int64     `json:"limit"`
	Algorithm  Algorithm `json:"algorithm"`
	Identifier string    `json:"identifier"`
	Scope      ScopeType `json:"scopeType"`
	Tier       Tier      `json:"tier"`
	Blocked    bool      `json:"blocked,omitempty"`
}

// Degraded reports whether the decision came from the local fallback limiter.
func (d Decision) Degraded() bool {
	return d.Algorithm == MemoryFallback
}

// ScopeLabel renders scope and tier as "scope:tier".
func (d Decision) ScopeLabel() string {
	return fmt.Sprintf("%s:%s", d.Scope, d.Tier)
}

// outcome is the raw result returned by a check script:
// {allowed, remaining, reset_at_ms, retry_after_ms, blocked}.
type outcome struct {
	allowed      bool
	remaining    int64
	resetAtMs    int64
	retryAfterMs int64
	blocked      bool
}

func parseOutcome(res []int64) (outcome, error) {
	if len(res) < 5 {
		return outcome{}, fmt.Errorf("unexpected script result length %d", len(res))
	}
	return outcome{
		allowed:      res[0] == 1,
		remaining:    res[1],
		resetAtMs:    res[2],
		retryAfterMs: res[3],
		blocked:      res[4] == 1,
	}, nil
}

func newDecision(p Policy, o outcome) Decision {
	d := Decision{
		Allowed:   o.allowed,
		Limit:     p.MaxRequests,
		Algorithm: p.Algorithm,
		ResetTime: time.UnixMilli(o.resetAtMs),
		Blocked:   o.blocked,
	}
	if o.allowed {
		d.Remaining = max(o.remaining, 0)
		return d
	}
	d.RetryAfter = retryAfterSeconds(o.retryAfterMs)
	return d
}

// retryAfterSeconds rounds up to whole seconds with a floor of one.
func retryAfterSeconds(ms int64) int64 {
	if ms <= 0 {
		return 1
	}
	return (ms + 999) / 1000
}

// StatusState describes what a status lookup found.
type StatusState string

const (
	StatusActive      StatusState = "active"
	StatusEmpty       StatusState = "empty"
	StatusUnavailable StatusState = "unavailable"
)

// Status is a read-only snapshot of a key's counter.
type Status struct {
	State      StatusState `json:"state"`
	Key        string      `json:"key"`
	Identifier string      `json:"identifier"`
	Scope      ScopeType   `json:"scopeType"`
	Tier       Tier        `json:"tier"`
	Algorithm  Algorithm   `json:"algorithm"`
	Limit      int64       `json:"limit"`
	Count      int64       `json:"count"`
	Remaining  int64       `json:"remaining"`
	ResetTime  time.Time   `json:"resetTime,omitzero"`
	TTLMillis  int64       `json:"ttlMs"`
	Blocked    bool        `json:"blocked,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// StoreStats reports the shared store's size and connection health.
type StoreStats struct {
	Keys                int64     `json:"keys"`
	TotalConns          uint32    `json:"totalConns"`
	IdleConns           uint32    `json:"idleConns"`
	StaleConns          uint32    `json:"staleConns"`
	Hits                uint32    `json:"hits"`
	Misses              uint32    `json:"misses"`
	Timeouts            uint32    `json:"timeouts"`
	ConsecutiveFailures int64     `json:"consecutiveFailures"`
	LastError           string    `json:"lastError,omitempty"`
	LastFailure         time.Time `json:"lastFailure,omitzero"`
}

// FallbackStats reports the local fallback limiter's state.
type FallbackStats struct {
	Keys    int   `json:"keys"`
	Sweeps  int64 `json:"sweeps"`
	Evicted int64 `json:"evicted"`
}

// Stats is an aggregate view of the limiter.
type Stats struct {
	StoreAvailable    bool          `json:"storeAvailable"`
	Store             *StoreStats   `json:"store,omitempty"`
	StoreError        string        `json:"storeError,omitempty"`
	Fallback          FallbackStats `json:"fallback"`
	Checks            int64         `json:"checks"`
	Allowed           int64         `json:"allowed"`
	Denied            int64         `json:"denied"`
	FallbackDecisions int64         `json:"fallbackDecisions"`
	StoreErrors       int64         `json:"storeErrors"`
}
