package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Tier identifies a rate-limit policy. Each tier maps to exactly one Policy in a
// PolicySet; unknown tier names resolve to TierDefault.
type Tier int

const (
	TierDefault Tier = iota
	TierAuth
	TierAPI
	TierUser
	TierAdmin
)

var tierNames = [...]string{
	TierDefault: "default",
	TierAuth:    "auth",
	TierAPI:     "api",
	TierUser:    "user",
	TierAdmin:   "admin",
}

// Tiers lists every tier in declaration order.
func Tiers() []Tier {
	return []Tier{TierDefault, TierAuth, TierAPI, TierUser, TierAdmin}
}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return tierNames[TierDefault]
	}
	return tierNames[t]
}

// ParseTier maps a tier name to a Tier. Unknown or empty names map to TierDefault.
func ParseTier(name string) Tier {
	t, _ := LookupTier(name)
	return t
}

// LookupTier is like ParseTier but reports whether the name was recognised.
func LookupTier(name string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "auth":
		return TierAuth, true
	case "api":
		return TierAPI, true
	case "user":
		return TierUser, true
	case "admin":
		return TierAdmin, true
	case "default":
		return TierDefault, true
	default:
		return TierDefault, false
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	*t = ParseTier(string(text))
	return nil
}

// Algorithm names a limiting algorithm.
type Algorithm string

const (
	SlidingWindow Algorithm = "sliding_window"
	FixedWindow   Algorithm = "fixed_window"
	TokenBucket   Algorithm = "token_bucket"

	// MemoryFallback labels decisions produced by the in-process fallback
	// limiter. It is never a valid policy algorithm.
	MemoryFallback Algorithm = "memory_fallback"
)

// ParseAlgorithm accepts only the store-backed algorithms.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	switch a {
	case SlidingWindow, FixedWindow, TokenBucket:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAlgorithm, name)
	}
}

// Policy is an immutable limit definition: at most MaxRequests per Window using
// Algorithm. A non-zero BlockDuration locks the key out for that long after the
// first denied request.
type Policy struct {
	Window        time.Duration `json:"window"`
	MaxRequests   int64         `json:"maxRequests"`
	Algorithm     Algorithm     `json:"algorithm"`
	BlockDuration time.Duration `json:"blockDuration,omitempty"`
}

// Validate checks that the policy can be evaluated.
func (p Policy) Validate() error {
	if p.Window < time.Millisecond {
		return fmt.Errorf("%w: window must be at least 1ms, got %s", ErrInvalidPolicy, p.Window)
	}
	if p.MaxRequests < 1 {
		return fmt.Errorf("%w: max requests must be at least 1, got %d", ErrInvalidPolicy, p.MaxRequests)
	}
	if _, err := ParseAlgorithm(string(p.Algorithm)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if p.BlockDuration < 0 {
		return fmt.Errorf("%w: block duration must not be negative", ErrInvalidPolicy)
	}
	return nil
}

func (p Policy) windowMillis() int64 {
	if ms := p.Window.Milliseconds(); ms > 0 {
		return ms
	}
	return 1
}

func (p Policy) blockMillis() int64 {
	return p.BlockDuration.Milliseconds()
}

// PolicySet holds one policy per tier. Resolve is total: every Tier value,
// including out-of-range ones, yields a policy.
type PolicySet struct {
	Default Policy `json:"default"`
	Auth    Policy `json:"auth"`
	API     Policy `json:"api"`
	User    Policy `json:"user"`
	Admin   Policy `json:"admin"`
}

// DefaultPolicies returns the built-in policy table.
func DefaultPolicies() PolicySet {
	return PolicySet{
		Default: Policy{Window: 15 * time.Minute, MaxRequests: 100, Algorithm: FixedWindow},
		Auth:    Policy{Window: 15 * time.Minute, MaxRequests: 5, Algorithm: SlidingWindow},
		API:     Policy{Window: 15 * time.Minute, MaxRequests: 100, Algorithm: SlidingWindow},
		User:    Policy{Window: time.Minute, MaxRequests: 60, Algorithm: TokenBucket},
		Admin:   Policy{Window: time.Minute, MaxRequests: 100, Algorithm: FixedWindow},
	}
}

// Resolve returns the policy for t.
func (ps PolicySet) Resolve(t Tier) Policy {
	switch t {
	case TierAuth:
		return ps.Auth
	case TierAPI:
		return ps.API
	case TierUser:
		return ps.User
	case TierAdmin:
		return ps.Admin
	case TierDefault:
		return ps.Default
	default:
		return ps.Default
	}
}

// ResolveName resolves a tier by name, falling back to the default policy.
func (ps PolicySet) ResolveName(name string) Policy {
	return ps.Resolve(ParseTier(name))
}

// With returns a copy of ps with the policy for t replaced.
func (ps PolicySet) With(t Tier, p Policy) PolicySet {
	switch t {
	case TierAuth:
		ps.Auth = p
	case TierAPI:
		ps.API = p
	case TierUser:
		ps.User = p
	case TierAdmin:
		ps.Admin = p
	default:
		ps.Default = p
	}
	return ps
}

// Validate validates every policy in the set.
func (ps PolicySet) Validate() error {
	for _, t := range Tiers() {
		if err := ps.Resolve(t).Validate(); err != nil {
			return fmt.Errorf("tier %s: %w", t, err)
		}
	}
	return nil
}
