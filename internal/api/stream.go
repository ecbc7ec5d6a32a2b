package api

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"sync/atomic"
)

const (
	// maxEventSize bounds a single SSE line. Reasoning deltas and the final
	// usage chunk can exceed bufio's 64 KiB default.
	maxEventSize = 1 << 20

	doneSentinel = "[DONE]"
)

// StreamReader reads chat completion chunks from a server-sent event stream.
// Close may be called from another goroutine to unblock a pending Next.
type StreamReader struct {
	scanner *bufio.Scanner
	body    io.ReadCloser
	done    atomic.Bool
}

// NewStreamReader creates a StreamReader that owns body.
func NewStreamReader(body io.ReadCloser) *StreamReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	return &StreamReader{scanner: scanner, body: body}
}

// StreamChunk represents a chunk of streamed content. Usage is only set on
// the chunk that carries the provider's token accounting, normally the last.
type StreamChunk struct {
	Content      string
	Reasoning    string
	Done         bool
	FinishReason *string
	Usage        *Usage
	Model        string
}

// Next returns the next chunk. A chunk with Done set marks the end of the
// stream, after which Next returns nil, nil. Malformed events are skipped;
// an error event ends the stream with an *APIError.
func (r *StreamReader) Next() (*StreamChunk, error) {
	if r.done.Load() {
		return nil, nil
	}

	for r.scanner.Scan() {
		data, ok := eventData(r.scanner.Text())
		if !ok {
			continue
		}
		if data == doneSentinel {
			r.done.Store(true)
			return &StreamChunk{Done: true}, nil
		}

		chunk, err := parseChunk(data)
		if err != nil {
			r.done.Store(true)
			return nil, err
		}
		if chunk != nil {
			return chunk, nil
		}
	}

	if err := r.scanner.Err(); err != nil {
		if r.done.Swap(true) {
			// Closed underneath us.
			return nil, nil
		}
		return nil, &StreamError{Message: "reading stream", Cause: err}
	}

	// The body ended without [DONE].
	r.done.Store(true)
	return &StreamChunk{Done: true}, nil
}

// eventData extracts the payload of an SSE data line. Comments (used by
// OpenRouter as keep-alives), blank lines and other fields are skipped.
func eventData(line string) (string, bool) {
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(data, " "), true
}

// parseChunk decodes one event. It returns nil, nil for events that carry
// nothing to report.
func parseChunk(data string) (*StreamChunk, error) {
	var response ChatResponse
	if err := json.Unmarshal([]byte(data), &response); err != nil {
		return nil, nil
	}
	if response.Error != nil {
		return nil, inBandError(response.Error)
	}

	chunk := &StreamChunk{Usage: response.Usage, Model: response.Model}
	if len(response.Choices) == 0 {
		if response.Usage == nil {
			return nil, nil
		}
		return chunk, nil
	}
	choice := response.Choices[0]
	chunk.Content = choice.Delta.Content
	chunk.Reasoning = choice.Delta.Reasoning
	chunk.FinishReason = choice.FinishReason
	return chunk, nil
}

// Close closes the underlying stream.
func (r *StreamReader) Close() error {
	r.done.Store(true)
	return r.body.Close()
}

// ReadAll drains the stream and returns the concatenated content.
func (r *StreamReader) ReadAll() (string, error) {
	var content strings.Builder
	for {
		chunk, err := r.Next()
		if err != nil {
			return content.String(), err
		}
		if chunk == nil || chunk.Done {
			return content.String(), nil
		}
		content.WriteString(chunk.Content)
	}
}
