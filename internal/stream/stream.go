// Package stream adapts a session's push-based event callbacks into an
// ordered, pull-based sequence of response text chunks.
package stream

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/vstratful/orchat/internal/sdk"
	"go.uber.org/zap"
)

// Options configures Open.
type Options struct {
	// IdleTimeout fails the stream when no event of any kind arrives for this
	// long. Zero disables the timer.
	IdleTimeout time.Duration

	// Attachments are forwarded in the send payload.
	Attachments []sdk.Attachment

	// Mode is forwarded in the send payload.
	Mode string

	// OnEvent observes every event before it is otherwise handled.
	OnEvent func(sdk.Event)

	OnUsage     func(sdk.Usage)
	OnReasoning func(delta string)
	OnTurnStart func(turnID string)
	OnTurnEnd   func(turnID string)
	OnIntent    func(intent string)

	Logger *zap.Logger
}

// Reader is a single-use, single-consumer sequence of response chunks for one
// prompt.
type Reader struct {
	opts    Options
	logger  *zap.Logger
	queue   *queue
	timeout time.Duration

	mu          sync.Mutex
	unsubscribe func()
	terminated  bool
	closed      bool
	sawDelta    bool
	timer       *time.Timer
	gen         uint64

	// final is returned by every Next call once the stream has ended.
	final error
}

// Open subscribes to session, sends prompt and returns a Reader over the
// response. The subscription is in place before the prompt is sent. A send
// failure is returned as a *SendError and leaves nothing subscribed.
func Open(ctx context.Context, session sdk.Session, prompt string, opts Options) (*Reader, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Reader{
		opts:    opts,
		logger:  logger.With(zap.String("session", session.ID())),
		queue:   newQueue(),
		timeout: opts.IdleTimeout,
	}

	unsubscribe := session.On(r.handle)

	r.mu.Lock()
	r.unsubscribe = unsubscribe
	if r.terminated {
		// A terminal event raced the subscription call.
		r.releaseLocked()
	} else {
		r.armLocked()
	}
	r.mu.Unlock()

	if _, err := session.Send(ctx, sdk.MessageOptions{
		Prompt:      prompt,
		Attachments: opts.Attachments,
		Mode:        opts.Mode,
	}); err != nil {
		r.Close()
		r.logger.Debug("send failed", zap.Error(err))
		return nil, &SendError{Cause: err}
	}

	r.logger.Debug("prompt sent",
		zap.Int("attachments", len(opts.Attachments)),
		zap.Duration("idle_timeout", r.timeout))

	return r, nil
}

// handle is the session event callback. It runs under r.mu so that no
// callback can fire once the stream has terminated.
func (r *Reader) handle(event sdk.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.terminated {
		return
	}
	r.armLocked()

	if r.opts.OnEvent != nil {
		r.opts.OnEvent(event)
	}

	switch event.Type {
	case sdk.EventMessageDelta:
		r.sawDelta = true
		if event.Data.DeltaContent != "" {
			r.queue.push(item{chunk: event.Data.DeltaContent})
		}

	case sdk.EventMessage:
		if !r.sawDelta && event.Data.Content != "" {
			r.queue.push(item{chunk: event.Data.Content})
		}

	case sdk.EventUsage:
		if r.opts.OnUsage != nil && event.Data.Usage != nil {
			r.opts.OnUsage(*event.Data.Usage)
		}

	case sdk.EventReasoningDelta:
		if r.opts.OnReasoning != nil && event.Data.DeltaContent != "" {
			r.opts.OnReasoning(event.Data.DeltaContent)
		}

	case sdk.EventTurnStart:
		if r.opts.OnTurnStart != nil {
			r.opts.OnTurnStart(event.Data.TurnID)
		}

	case sdk.EventTurnEnd:
		if r.opts.OnTurnEnd != nil {
			r.opts.OnTurnEnd(event.Data.TurnID)
		}

	case sdk.EventIntent:
		if r.opts.OnIntent != nil {
			r.opts.OnIntent(event.Data.Intent)
		}

	case sdk.EventSessionIdle:
		r.queue.push(item{done: true})
		r.terminateLocked()

	case sdk.EventSessionError:
		msg := event.Data.Message
		if msg == "" {
			msg = DefaultErrorMessage
		}
		r.logger.Debug("session reported error", zap.String("message", msg))
		r.queue.push(item{err: &ServerError{Message: msg}})
		r.terminateLocked()

	default:
		// Reasoning snapshots, tool, compaction, truncation, subagent, hook
		// and unknown events are only observed through OnEvent.
	}
}

// armLocked (re)starts the idle timer. Each arm gets a new generation so a
// timer that fired concurrently with a reset is ignored.
func (r *Reader) armLocked() {
	if r.timeout <= 0 {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	r.timer = time.AfterFunc(r.timeout, func() { r.expire(gen) })
}

func (r *Reader) expire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.terminated || gen != r.gen {
		return
	}
	r.logger.Debug("idle timeout", zap.Duration("timeout", r.timeout))
	r.queue.push(item{err: &TimeoutError{Timeout: r.timeout}})
	r.terminateLocked()
}

func (r *Reader) terminateLocked() {
	r.terminated = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.releaseLocked()
}

func (r *Reader) releaseLocked() {
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
}

// Next returns the next chunk. It returns io.EOF once the session went idle,
// a *ServerError or *TimeoutError on failure, ErrClosed after Close, and
// ctx.Err() if ctx is done first (which also closes the reader).
func (r *Reader) Next(ctx context.Context) (string, error) {
	for {
		r.mu.Lock()
		closed, final := r.closed, r.final
		r.mu.Unlock()
		if closed {
			return "", ErrClosed
		}
		if final != nil {
			return "", final
		}

		if it, ok := r.queue.pop(); ok {
			switch {
			case it.err != nil:
				r.finish(it.err)
				return "", it.err
			case it.done:
				r.finish(io.EOF)
				return "", io.EOF
			default:
				return it.chunk, nil
			}
		}

		select {
		case <-r.queue.ready:
		case <-ctx.Done():
			r.Close()
			return "", ctx.Err()
		}
	}
}

func (r *Reader) finish(err error) {
	r.mu.Lock()
	r.final = err
	r.mu.Unlock()
}

// Close abandons the stream: the subscription is released and the idle timer
// stopped. It is safe to call more than once and from any goroutine.
func (r *Reader) Close() {
	r.mu.Lock()
	if !r.closed && r.final == nil {
		r.closed = true
	}
	if !r.terminated {
		r.terminateLocked()
	}
	r.mu.Unlock()

	select {
	case r.queue.ready <- struct{}{}:
	default:
	}
}

// Chunks returns the stream as an iterator. Iteration ends silently at the
// end of the response and yields a final non-nil error on failure. Breaking
// out of the loop, or a panic in the loop body, closes the reader.
func (r *Reader) Chunks(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer r.Close()
		for {
			chunk, err := r.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// ReadAll drains the stream and returns the concatenated text. The text read
// so far is returned along with any error.
func (r *Reader) ReadAll(ctx context.Context) (string, error) {
	var content strings.Builder
	for chunk, err := range r.Chunks(ctx) {
		if err != nil {
			return content.String(), err
		}
		content.WriteString(chunk)
	}
	return content.String(), nil
}
