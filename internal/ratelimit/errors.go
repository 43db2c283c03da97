package ratelimit

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable is returned by operations that require the shared
	// store while it is marked unavailable.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	ErrInvalidScope     = errors.New("invalid scope type")
	ErrInvalidAlgorithm = errors.New("invalid algorithm")
	ErrInvalidPolicy    = errors.New("invalid policy")
)

// StoreError wraps a failed store operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
