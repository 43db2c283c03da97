package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Violation records a single rejected request.
type Violation struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Scope      string    `json:"scope"`
	Tier       string    `json:"tier"`
	Algorithm  string    `json:"algorithm"`
	Limit      int64     `json:"limit"`
	RetryAfter int64     `json:"retryAfter"`
	Method     string    `json:"method,omitempty"`
	Path       string    `json:"path,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewViolation creates a violation with a fresh ID stamped at now.
func NewViolation(identifier, scope, tier, algorithm string, limit, retryAfter int64) *Violation {
	return &Violation{
		ID:         uuid.NewString(),
		Identifier: identifier,
		Scope:      scope,
		Tier:       tier,
		Algorithm:  algorithm,
		Limit:      limit,
		RetryAfter: retryAfter,
		OccurredAt: time.Now().UTC(),
	}
}

func (v *Violation) Validate() error {
	if v.ID == "" {
		return errors.New("violation ID is required")
	}
	if v.Identifier == "" {
		return errors.New("violation identifier is required")
	}
	if v.Scope == "" || v.Tier == "" {
		return errors.New("violation scope and tier are required")
	}
	if v.OccurredAt.IsZero() {
		return errors.New("violation time is required")
	}
	return nil
}
