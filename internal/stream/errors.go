package stream

import (
	"errors"
	"fmt"
	"time"
)

// DefaultErrorMessage is used when a session.error event carries no message.
const DefaultErrorMessage = "Unknown error"

var (
	// ErrEmptyPrompt is returned by Open for a blank prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrClosed is returned by Next after the consumer closed the reader.
	ErrClosed = errors.New("stream closed")
)

// SendError is returned by Open when the session rejected the prompt.
type SendError struct {
	Cause error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Cause)
}

func (e *SendError) Unwrap() error {
	return e.Cause
}

// ServerError is a failure reported by the session through a session.error event.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// TimeoutError is returned when no event arrived within the idle window.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("response timed out after %s without any activity", e.Timeout)
}
