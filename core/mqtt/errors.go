package mqtt

import "errors"

var (
	// ErrNotConnected is returned when publishing while the broker link is down.
	ErrNotConnected = errors.New("mqtt client not connected")
	// ErrMalformedAccept is returned for accept messages that cannot be decoded.
	ErrMalformedAccept = errors.New("malformed accept message")
)
