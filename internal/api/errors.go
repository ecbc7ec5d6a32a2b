package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for common API error conditions.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrPaymentRequired    = errors.New("insufficient credits")
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrStreamClosed       = errors.New("stream closed")
)

// ErrorBody is the error envelope OpenRouter returns, both as an HTTP error
// body and in-band inside a stream.
type ErrorBody struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// APIError is an error reported by the API. StatusCode is zero for errors
// reported inside an otherwise successful response.
type APIError struct {
	StatusCode int
	Message    string
	Body       string

	// RetryAfter is the delay requested by the server, if any.
	RetryAfter time.Duration
}

// newAPIError builds an APIError from a failed response, preferring the
// message in the JSON error envelope over the raw body.
func newAPIError(status int, header http.Header, body []byte) *APIError {
	e := &APIError{
		StatusCode: status,
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: parseRetryAfter(header.Get("Retry-After")),
	}
	var envelope struct {
		Error *ErrorBody `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		e.Message = envelope.Error.Message
	}
	return e
}

// inBandError converts an error envelope found in a response body.
func inBandError(body *ErrorBody) *APIError {
	return &APIError{StatusCode: body.Code, Message: body.Message}
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.StatusCode == 0 {
		return "API error: " + msg
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, msg)
}

// Unwrap returns the sentinel error matching the status code.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusPaymentRequired:
		return ErrPaymentRequired
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusServiceUnavailable:
		return ErrServiceUnavailable
	default:
		return nil
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// StreamError is a failure while reading a response stream.
type StreamError struct {
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stream error: %s: %v", e.Message, e.Cause)
	}
	return "stream error: " + e.Message
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}
