package protocol

import "errors"

// Domain-specific errors for payload decoding.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotStatus is returned when a well-formed payload is not a status
	// report. Callers ignore such messages rather than treating them as
	// failures.
	ErrNotStatus = errors.New("protocol: payload is not a status message")

	// ErrMalformed is returned when a payload cannot be decoded at all.
	ErrMalformed = errors.New("protocol: malformed payload")
)
