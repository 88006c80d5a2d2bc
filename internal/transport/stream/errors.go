package stream

import "errors"

// Domain-specific errors for stream operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when sending while the session is down.
	ErrNotConnected = errors.New("stream: not connected")

	// ErrConnectionFailed is returned when dialing the endpoint fails.
	ErrConnectionFailed = errors.New("stream: connection failed")

	// ErrFrameInvalid is returned for frames that cannot be decoded.
	ErrFrameInvalid = errors.New("stream: invalid frame")
)
