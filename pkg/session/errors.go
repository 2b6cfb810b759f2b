package session

import (
	"errors"
	"fmt"
)

var (
	// ErrControlNotHeld is returned for operations that need the live-control
	// grant while this session does not hold it.
	ErrControlNotHeld = errors.New("live control not held")

	// ErrClosed is returned by calls made after the session loop exited.
	ErrClosed = errors.New("session closed")
)

// DecodeError reports a telemetry frame that is not well-formed tagged data.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode telemetry: %v", e.Err)
	}
	return fmt.Sprintf("decode %s telemetry: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError reports operator input rejected before anything was sent.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}
