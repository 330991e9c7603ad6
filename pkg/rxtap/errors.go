package rxtap

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned when the selector matches no device.
	// The receiver never streams after it.
	ErrDeviceNotFound = errors.New("no SDR device")

	// ErrPersistentShortRead is returned when a sub-block read keeps coming
	// back short past the configured retry limit.
	ErrPersistentShortRead = errors.New("persistent short read")

	ErrNotStreaming = errors.New("receiver is not streaming")
	ErrAlreadyRun   = errors.New("receiver already ran")

	errShortRead = errors.New("short read")
)

// RecoverableError is a transient stream failure reported by the driver
// (SoapySDR STREAM_ERROR). Callers may retry by re-opening the stream.
type RecoverableError struct {
	Stream string
	Err    error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("recoverable error on stream %s: %v", e.Stream, e.Err)
}

func (e *RecoverableError) Unwrap() error {
	return e.Err
}
