package storage

import (
	"context"

	"ratelimiter/internal/models"
)

// ViolationStore persists rejected requests for later inspection. It is an
// audit log only; rate limit decisions never read from it.
type ViolationStore interface {
	// RecordViolation appends a violation.
	RecordViolation(ctx context.Context, v *models.Violation) error

	// RecentViolations returns up to limit violations, newest first.
	RecentViolations(ctx context.Context, limit int) ([]*models.Violation, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (memory, sqlite, postgres)
	Type string `json:"type" yaml:"type"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// MaxEntries caps the in-memory ring buffer
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`

	MaxOpenConns int `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns int `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
}

// DefaultListLimit is used when a caller asks for a non-positive number of
// violations.
const DefaultListLimit = 100

// MaxListLimit caps a single listing.
const MaxListLimit = 1000

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
