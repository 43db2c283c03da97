package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
)

// ScopeType is the dimension a limit is counted along.
type ScopeType string

const (
	ScopeIP       ScopeType = "ip"
	ScopeUser     ScopeType = "user"
	ScopeEndpoint ScopeType = "endpoint"
	ScopeGlobal   ScopeType = "global"
)

// Valid reports whether s is one of the known scope types.
func (s ScopeType) Valid() bool {
	switch s {
	case ScopeIP, ScopeUser, ScopeEndpoint, ScopeGlobal:
		return true
	}
	return false
}

// ParseScope parses a scope type name.
func ParseScope(name string) (ScopeType, error) {
	s := ScopeType(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, name)
	}
	return s, nil
}

// DefaultKeyPrefix namespaces every key written to the store.
const DefaultKeyPrefix = "rl"

// KeyBuilder derives store keys of the form prefix:scope:tier:identifier.
// The identifier is placed last and kept verbatim, so identifiers containing
// ':' cannot collide with keys of a different scope or tier.
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder returns a KeyBuilder using prefix, or DefaultKeyPrefix when empty.
func NewKeyBuilder(prefix string) KeyBuilder {
	return KeyBuilder{prefix: prefix}
}

// Prefix returns the effective key prefix.
func (kb KeyBuilder) Prefix() string {
	if kb.prefix == "" {
		return DefaultKeyPrefix
	}
	return kb.prefix
}

// Build returns the rate-limit key for identifier under scope and tier.
func (kb KeyBuilder) Build(scope ScopeType, identifier string, tier Tier) string {
	var b strings.Builder
	prefix := kb.Prefix()
	b.Grow(len(prefix) + len(scope) + len(identifier) + 16)
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(string(scope))
	b.WriteByte(':')
	b.WriteString(tier.String())
	b.WriteByte(':')
	b.WriteString(identifier)
	return b.String()
}

// BuildKey builds a key with the default prefix.
func BuildKey(scope ScopeType, identifier string, tier Tier) string {
	return KeyBuilder{}.Build(scope, identifier, tier)
}

// Per-algorithm storage keys hang off the base key with a fixed suffix so that
// switching a tier's algorithm never reinterprets another algorithm's state.

func slidingKey(base string) string { return base + ":sw" }

func bucketKey(base string) string { return base + ":tb" }

func blockKey(base string) string { return base + ":block" }

func fixedKey(base string, windowStartMs int64) string {
	return base + ":fw:" + strconv.FormatInt(windowStartMs, 10)
}
