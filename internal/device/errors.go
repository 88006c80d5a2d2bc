package device

import "errors"

// Domain-specific errors for the synchronization core.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidChannel is returned for channel numbers below 1.
	ErrInvalidChannel = errors.New("device: channel numbers start at 1")

	// ErrInvalidState is returned for states no controller accepts.
	ErrInvalidState = errors.New("device: invalid state")
)
