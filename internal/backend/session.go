package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vstratful/orchat/internal/api"
	"github.com/vstratful/orchat/internal/config"
	"github.com/vstratful/orchat/internal/sdk"
	"go.uber.org/zap"
)

// ErrSessionClosed is returned by Send after Destroy.
var ErrSessionClosed = errors.New("session closed")

// record is the stored transcript shared by every open handle on one
// session id.
type record struct {
	mu   sync.Mutex
	data *config.Session
	refs int

	// wire holds the request messages sent by this process, with
	// attachments inlined. It is rebuilt from data on first use.
	wire []api.Message
}

// requestMessages returns the conversation to send, seeding wire from the
// stored transcript. Callers hold rec.mu.
func (r *record) requestMessagesLocked() []api.Message {
	if r.wire == nil {
		r.wire = make([]api.Message, 0, len(r.data.Messages))
		for _, m := range r.data.Messages {
			r.wire = append(r.wire, api.Message{Role: m.Role, Content: m.Content})
		}
	}
	return append([]api.Message(nil), r.wire...)
}

func (r *record) saveLocked(logger *zap.Logger) {
	if err := r.data.Save(); err != nil {
		logger.Warn("saving session failed", zap.String("session", r.data.ID), zap.Error(err))
	}
}

type subscription struct {
	id      uint64
	handler sdk.Handler
}

// Session is an sdk.Session over one stored conversation. It also implements
// sdk.HistoryProvider.
type Session struct {
	client *Client
	api    api.Client
	rec    *record
	cfg    sdk.SessionConfig
	logger *zap.Logger

	mu        sync.Mutex
	subs      []subscription
	nextSub   uint64
	cancel    context.CancelFunc
	done      chan struct{}
	destroyed bool
}

var (
	_ sdk.Session         = (*Session)(nil)
	_ sdk.HistoryProvider = (*Session)(nil)
)

func newSession(c *Client, rec *record, cfg sdk.SessionConfig) *Session {
	rec.mu.Lock()
	rec.refs++
	id := rec.data.ID
	rec.mu.Unlock()

	return &Session{
		client: c,
		api:    c.apiFor(cfg),
		rec:    rec,
		cfg:    cfg,
		logger: c.logger.With(zap.String("session", id)),
	}
}

func (s *Session) ID() string {
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	return s.rec.data.ID
}

// On subscribes handler. Handlers run synchronously, in emission order, on
// the goroutine serving the request.
func (s *Session) On(handler sdk.Handler) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, handler: handler})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Session) emit(eventType sdk.EventType, data sdk.EventData) {
	s.mu.Lock()
	subs := append([]subscription(nil), s.subs...)
	s.mu.Unlock()

	event := sdk.Event{
		Type:      eventType,
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Data:      data,
	}
	for _, sub := range subs {
		sub.handler(event)
	}
}

// Send records the prompt and starts the request in the background. Events
// for it are delivered to subscribers; the returned id groups them.
func (s *Session) Send(ctx context.Context, opts sdk.MessageOptions) (string, error) {
	parts, stored, err := buildUserMessage(opts)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	if s.cancel != nil {
		s.mu.Unlock()
		return "", sdk.ErrSessionBusy
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	if opts.Mode != "" {
		s.logger.Debug("ignoring send mode", zap.String("mode", opts.Mode))
	}

	s.rec.mu.Lock()
	messages := s.rec.requestMessagesLocked()
	user := api.Message{Role: api.RoleUser, Content: opts.Prompt, ContentParts: parts}
	messages = append(messages, user)
	s.rec.wire = append(s.rec.wire, user)
	s.rec.data.Messages = append(s.rec.data.Messages, stored)
	s.rec.saveLocked(s.logger)
	s.rec.mu.Unlock()

	req := &api.ChatRequest{
		Model:    s.cfg.Model,
		Messages: messages,
		Usage:    &api.UsageOptions{Include: true},
	}
	if s.cfg.ReasoningEffort != "" {
		req.Reasoning = &api.ReasoningOptions{Effort: s.cfg.ReasoningEffort}
	}

	messageID := uuid.NewString()
	go s.run(runCtx, req, messageID, done)
	return messageID, nil
}

// buildUserMessage reads the attachments and returns the request content
// parts and the stored message. Without attachments the prompt is sent as a
// plain string.
func buildUserMessage(opts sdk.MessageOptions) ([]api.ContentPart, config.SessionMessage, error) {
	stored := config.SessionMessage{Role: api.RoleUser, Content: opts.Prompt}
	if len(opts.Attachments) == 0 {
		return nil, stored, nil
	}

	parts := []api.ContentPart{api.TextPart(opts.Prompt)}
	for _, a := range opts.Attachments {
		data, err := os.ReadFile(a.Path)
		if err != nil {
			return nil, stored, fmt.Errorf("reading attachment %s: %w", a.DisplayName, err)
		}
		name := a.DisplayName
		if name == "" {
			name = a.Path
		}
		parts = append(parts, api.TextPart(fmt.Sprintf("--- %s ---\n%s", name, data)))
		stored.Attachments = append(stored.Attachments, config.SessionAttachment{
			Path: a.Path,
			Name: name,
			Size: int64(len(data)),
		})
	}
	return parts, stored, nil
}

// run serves one request. It always ends with session.idle or
// session.error, and done is closed after that event was delivered.
func (s *Session) run(ctx context.Context, req *api.ChatRequest, messageID string, done chan struct{}) {
	defer close(done)

	turnID := uuid.NewString()
	start := time.Now()
	s.emit(sdk.EventTurnStart, sdk.EventData{TurnID: turnID})

	var (
		content   string
		reasoning string
		usage     *api.Usage
		model     = req.Model
		err       error
	)
	if s.cfg.Streaming {
		content, reasoning, usage, model, err = s.stream(ctx, req, messageID)
	} else {
		content, reasoning, usage, model, err = s.complete(ctx, req)
	}
	s.client.track(err)
	aborted := ctx.Err() != nil
	s.persistReply(content, reasoning)

	// The session accepts the next Send before the terminal event is seen.
	s.mu.Lock()
	s.cancel()
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	switch {
	case aborted:
		s.logger.Debug("request aborted", zap.Int("partial_bytes", len(content)))
		s.emit(sdk.EventAbort, sdk.EventData{MessageID: messageID})
		s.emit(sdk.EventSessionIdle, sdk.EventData{})

	case err != nil:
		s.logger.Debug("request failed", zap.Error(err))
		s.emit(sdk.EventSessionError, sdk.EventData{Message: err.Error()})

	default:
		if reasoning != "" {
			s.emit(sdk.EventReasoning, sdk.EventData{MessageID: messageID, Content: reasoning})
		}
		s.emit(sdk.EventMessage, sdk.EventData{MessageID: messageID, Content: content})
		if usage != nil {
			s.emit(sdk.EventUsage, sdk.EventData{Usage: &sdk.Usage{
				Model:        model,
				InputTokens:  usage.PromptTokens,
				OutputTokens: usage.CompletionTokens,
				Cost:         usage.Cost,
				Duration:     time.Since(start),
			}})
		}
		s.emit(sdk.EventTurnEnd, sdk.EventData{TurnID: turnID})
		s.emit(sdk.EventSessionIdle, sdk.EventData{})
	}
}

func (s *Session) stream(ctx context.Context, req *api.ChatRequest, messageID string) (content, reasoning string, usage *api.Usage, model string, err error) {
	model = req.Model
	reader, err := s.api.ChatStream(ctx, req)
	if err != nil {
		return "", "", nil, model, err
	}
	defer reader.Close()
	stop := context.AfterFunc(ctx, func() { reader.Close() })
	defer stop()

	for {
		chunk, err := reader.Next()
		if err != nil {
			return content, reasoning, usage, model, err
		}
		if chunk == nil || chunk.Done {
			return content, reasoning, usage, model, nil
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.Reasoning != "" {
			reasoning += chunk.Reasoning
			s.emit(sdk.EventReasoningDelta, sdk.EventData{MessageID: messageID, DeltaContent: chunk.Reasoning})
		}
		if chunk.Content != "" {
			content += chunk.Content
			s.emit(sdk.EventMessageDelta, sdk.EventData{MessageID: messageID, DeltaContent: chunk.Content})
		}
	}
}

func (s *Session) complete(ctx context.Context, req *api.ChatRequest) (content, reasoning string, usage *api.Usage, model string, err error) {
	resp, err := s.api.Chat(ctx, req)
	if err != nil {
		return "", "", nil, req.Model, err
	}
	model = resp.Model
	if model == "" {
		model = req.Model
	}
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		reasoning = resp.Choices[0].Message.Reasoning
	}
	return content, reasoning, resp.Usage, model, nil
}

// persistReply stores the assistant reply. Empty replies are not stored.
func (s *Session) persistReply(content, reasoning string) {
	if content == "" && reasoning == "" {
		return
	}
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	s.rec.wire = append(s.rec.wire, api.Message{Role: api.RoleAssistant, Content: content})
	s.rec.data.Messages = append(s.rec.data.Messages, config.SessionMessage{
		Role:      api.RoleAssistant,
		Content:   content,
		Reasoning: reasoning,
	})
	s.rec.saveLocked(s.logger)
}

// Abort cancels the in-flight request, if any. The request goroutine then
// emits session.idle.
func (s *Session) Abort(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Destroy aborts any request, waits for it to finish and drops every
// subscription. The stored transcript is kept.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	s.subs = nil
	s.mu.Unlock()

	s.client.release(s.ID(), s.rec)
	return nil
}

// Messages returns the stored transcript.
func (s *Session) Messages(ctx context.Context) ([]sdk.HistoryMessage, error) {
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()

	out := make([]sdk.HistoryMessage, 0, len(s.rec.data.Messages))
	for _, m := range s.rec.data.Messages {
		hm := sdk.HistoryMessage{Role: m.Role, Content: m.Content}
		for _, a := range m.Attachments {
			hm.Attachments = append(hm.Attachments, sdk.Attachment{Path: a.Path, DisplayName: a.Name, Size: a.Size})
		}
		out = append(out, hm)
	}
	return out, nil
}

// InputHistory returns the prompts typed in this session, oldest first.
func (s *Session) InputHistory() []string {
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	return append([]string(nil), s.rec.data.History...)
}

// RecordInput appends a prompt to the input history.
func (s *Session) RecordInput(entry string) error {
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	return s.rec.data.AppendHistory(entry)
}
