// Package apperrors holds the sentinel errors shared across the gateway.
package apperrors

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidIdentifier     = errors.New("invalid identifier")
	ErrStoreUnavailable      = errors.New("graph store unavailable")
	ErrSkipThresholdExceeded = errors.New("skipped identifier threshold exceeded")
	ErrUnsupported           = errors.New("operation not supported by backend")
	ErrRegistryFrozen        = errors.New("prefix registry is frozen")
)
