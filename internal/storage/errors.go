package storage

import "errors"

var (
	// ErrUnsupportedType is returned by the factory for unknown backend types.
	ErrUnsupportedType = errors.New("unsupported storage type")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("storage closed")
)
