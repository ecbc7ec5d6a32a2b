// Package conversation owns the chat transcript. The Controller turns user
// input into commands or prompts, drives the stream adapter and folds the
// response into an incrementally updated list of messages.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vstratful/orchat/internal/commands"
	"github.com/vstratful/orchat/internal/config"
	"github.com/vstratful/orchat/internal/mention"
	"github.com/vstratful/orchat/internal/sdk"
	"github.com/vstratful/orchat/internal/stream"
)

// FlushInterval is the minimum time between two content updates of a
// streaming message.
const FlushInterval = 50 * time.Millisecond

// CanceledNotice is appended when the user cancels a response.
const CanceledNotice = "Canceled"

// Action is a UI-only follow-up requested by a command.
type Action int

const (
	ActionNone Action = iota
	ActionExit
	ActionOpenModelPicker
)

// Result describes what Submit did with the input.
type Result struct {
	// Handled is false when the input was ignored: blank, or a response was
	// already in flight.
	Handled bool

	// ClearInput tells the UI to clear the input field.
	ClearInput bool

	Action Action

	// Outcome is set when the input was a command.
	Outcome *commands.Outcome
}

// Options configures a Controller.
type Options struct {
	Sessions *Sessions
	Registry *commands.Registry
	Config   *config.AppConfig

	// OnChange receives every new transcript snapshot, in order.
	OnChange func([]Message)

	// Clipboard backs the /copy command.
	Clipboard func(string) error

	// Now is the clock used for flush debouncing.
	Now func() time.Time

	Logger *zap.Logger
}

// Controller is the single source of truth for the transcript and the
// in-flight flag. It is safe for concurrent use: Submit runs on its own
// goroutine while Cancel and the accessors are called from the UI.
type Controller struct {
	sessions  *Sessions
	registry  *commands.Registry
	cfg       *config.AppConfig
	onChange  func([]Message)
	clipboard func(string) error
	now       func() time.Time
	logger    *zap.Logger

	mu        sync.Mutex
	messages  []Message
	busy      bool
	streaming bool
	canceled  bool
	current   string // id of the streaming assistant message
	version   uint64

	notifyMu  sync.Mutex
	delivered uint64
}

// New creates a Controller.
func New(opts Options) *Controller {
	registry := opts.Registry
	if registry == nil {
		registry = commands.Default()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewAppConfig()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = NewSessions(nil, sdk.SessionConfig{}, logger)
	}

	return &Controller{
		sessions:  sessions,
		registry:  registry,
		cfg:       cfg,
		onChange:  opts.OnChange,
		clipboard: opts.Clipboard,
		now:       now,
		logger:    logger.Named("conversation"),
	}
}

// Messages returns the current transcript snapshot.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages
}

// IsStreaming reports whether a response is in flight.
func (c *Controller) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// Canceled reports whether the in-flight response was canceled.
func (c *Controller) Canceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}

// Sessions returns the session manager.
func (c *Controller) Sessions() *Sessions {
	return c.sessions
}

// Registry returns the command registry.
func (c *Controller) Registry() *commands.Registry {
	return c.registry
}

// ClearMessages empties the transcript. A response still streaming keeps
// running but its message is gone for good: later updates to it are dropped.
func (c *Controller) ClearMessages() {
	c.mu.Lock()
	c.messages = nil
	snap, v := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap, v)
}

// AddNotice appends a system message.
func (c *Controller) AddNotice(kind Kind, content string) {
	c.mutate(func(msgs []Message) []Message {
		return append(msgs, systemMessage(kind, content))
	})
}

// Load replaces the transcript with history, typically after a resume.
func (c *Controller) Load(history []sdk.HistoryMessage) {
	msgs := make([]Message, 0, len(history))
	for _, h := range history {
		var m Message
		switch Role(h.Role) {
		case RoleUser, RoleAssistant:
			m = newMessage(Role(h.Role), h.Content)
		default:
			continue
		}
		m.Attachments = h.Attachments
		msgs = append(msgs, m)
	}

	c.mu.Lock()
	c.messages = msgs
	snap, v := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap, v)
}

// Submit handles one line of user input and blocks until it is fully
// processed, including the whole streamed response.
func (c *Controller) Submit(ctx context.Context, raw string) Result {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{}
	}

	c.mu.Lock()
	if c.busy || c.streaming {
		c.mu.Unlock()
		return Result{}
	}
	c.busy = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	if strings.HasPrefix(text, "//") {
		text = text[1:]
	} else if strings.HasPrefix(text, "/") {
		if out, ok := c.registry.Dispatch(ctx, c.commandContext(), text); ok {
			return c.apply(ctx, out)
		}
	}

	session := c.sessions.Current()
	if session == nil || !c.sessions.Ready() {
		msg := "Not connected: no active session."
		if err := c.sessions.Err(); err != nil {
			msg = fmt.Sprintf("Not connected: %v", err)
		}
		c.AddNotice(KindError, msg)
		return Result{Handled: true}
	}

	c.send(ctx, session, text)
	return Result{Handled: true, ClearInput: true}
}

func (c *Controller) send(ctx context.Context, session sdk.Session, text string) {
	resolved := mention.Resolve(text, c.cfg.WorkDir, c.cfg.MaxAttachmentBytes)

	user := newMessage(RoleUser, text)
	user.Attachments = resolved.Attachments
	assistant := newMessage(RoleAssistant, "")
	assistant.IsStreaming = true
	id := assistant.ID

	c.mu.Lock()
	msgs := slices.Clone(c.messages)
	if len(resolved.Errors) > 0 {
		msgs = append(msgs, systemMessage(KindError, strings.Join(resolved.Errors, "\n")))
	}
	c.messages = append(msgs, user, assistant)
	c.streaming = true
	c.canceled = false
	c.current = id
	snap, v := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap, v)

	c.logger.Debug("sending prompt",
		zap.String("session", session.ID()),
		zap.Int("attachments", len(resolved.Attachments)))

	err := c.consume(ctx, session, text, id, resolved.Attachments)

	if err != nil {
		c.logger.Debug("response failed", zap.String("message", id), zap.Error(err))
		c.update(id, func(m *Message) {
			m.Content = "Error: " + errorText(err)
			m.Kind = KindError
			m.IsStreaming = false
			m.TurnPhase = PhaseNone
		})
	} else {
		c.update(id, func(m *Message) {
			m.IsStreaming = false
			m.TurnPhase = PhaseNone
		})
	}

	c.mu.Lock()
	c.streaming = false
	c.canceled = false
	c.current = ""
	snap, v = c.publishLocked()
	c.mu.Unlock()
	c.notify(snap, v)
}

// consume drives the stream adapter and appends the response to message id,
// flushing at most once per FlushInterval plus once at the end.
func (c *Controller) consume(ctx context.Context, session sdk.Session, text, id string, attachments []sdk.Attachment) error {
	reader, err := stream.Open(ctx, session, text, stream.Options{
		IdleTimeout: c.cfg.IdleTimeout,
		Attachments: attachments,
		OnEvent:     func(e sdk.Event) { c.onEvent(id, e) },
		OnUsage: func(u sdk.Usage) {
			c.update(id, func(m *Message) { m.Usage = &u })
		},
		OnReasoning: func(delta string) {
			c.update(id, func(m *Message) { m.Reasoning += delta })
		},
		OnTurnStart: func(string) {
			c.update(id, func(m *Message) { m.TurnPhase = PhaseThinking })
		},
		OnTurnEnd: func(string) {
			c.update(id, func(m *Message) { m.TurnPhase = PhaseNone })
		},
		OnIntent: func(intent string) {
			c.update(id, func(m *Message) { m.Intent = intent })
		},
		Logger: c.logger,
	})
	if err != nil {
		return err
	}

	var (
		buf       strings.Builder
		lastFlush = c.now()
		streamErr error
	)
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunk := buf.String()
		buf.Reset()
		c.update(id, func(m *Message) {
			m.Content += chunk
			m.TurnPhase = PhaseResponding
		})
	}

	for chunk, err := range reader.Chunks(ctx) {
		if err != nil {
			streamErr = err
			break
		}
		buf.WriteString(chunk)
		if now := c.now(); now.Sub(lastFlush) >= FlushInterval {
			flush()
			lastFlush = now
		}
	}
	flush()

	return streamErr
}

// onEvent turns backend notices into system messages shown above the
// streaming answer.
func (c *Controller) onEvent(id string, e sdk.Event) {
	var (
		text string
		kind = KindInfo
	)
	d := e.Data
	switch e.Type {
	case sdk.EventToolExecutionStart:
		text = "Running tool " + orDefault(d.ToolName, "(unnamed)")
	case sdk.EventCompactionStart:
		text = "Compacting conversation..."
	case sdk.EventCompactionDone:
		text = "Conversation compacted"
	case sdk.EventSessionTruncation:
		text = "Conversation truncated"
		if d.TokensRemoved > 0 {
			text += fmt.Sprintf(" (%d tokens removed)", d.TokensRemoved)
		}
	case sdk.EventSubagentStarted:
		text = fmt.Sprintf("Subagent %s started", orDefault(d.AgentName, "(unnamed)"))
	case sdk.EventSubagentCompleted:
		text = fmt.Sprintf("Subagent %s completed", orDefault(d.AgentName, "(unnamed)"))
	case sdk.EventSubagentFailed:
		text = fmt.Sprintf("Subagent %s failed", orDefault(d.AgentName, "(unnamed)"))
		if d.Message != "" {
			text += ": " + d.Message
		}
		kind = KindError
	default:
		return
	}

	notice := systemMessage(kind, text)
	c.mutate(func(msgs []Message) []Message {
		if i := indexOf(msgs, id); i >= 0 {
			return slices.Insert(msgs, i, notice)
		}
		return append(msgs, notice)
	})
}

// Cancel aborts the in-flight response. The stream ends through the
// session's own idle or error event.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if !c.streaming || c.canceled {
		c.mu.Unlock()
		return nil
	}
	c.canceled = true
	c.messages = append(slices.Clone(c.messages), systemMessage(KindInfo, CanceledNotice))
	snap, v := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap, v)

	session := c.sessions.Current()
	if session == nil {
		return nil
	}
	if err := session.Abort(ctx); err != nil {
		c.logger.Warn("abort failed", zap.Error(err))
		return fmt.Errorf("failed to abort response: %w", err)
	}
	return nil
}

func (c *Controller) apply(ctx context.Context, out commands.Outcome) Result {
	res := Result{Handled: true, ClearInput: true, Outcome: &out}

	switch out.Type {
	case commands.OutcomeMessage:
		kind := KindInfo
		if out.Kind == commands.KindError {
			kind = KindError
		}
		c.AddNotice(kind, out.Message)

	case commands.OutcomeClear:
		c.ClearMessages()

	case commands.OutcomeExit:
		res.Action = ActionExit

	case commands.OutcomeOpenModelPicker:
		res.Action = ActionOpenModelPicker

	case commands.OutcomeSetModel:
		if err := c.sessions.SetModel(ctx, out.Model); err != nil {
			c.AddNotice(KindError, err.Error())
			break
		}
		c.AddNotice(KindInfo, "Model set to "+out.Model)

	case commands.OutcomeSetReasoningEffort:
		if err := c.sessions.SetReasoningEffort(ctx, out.ReasoningEffort); err != nil {
			c.AddNotice(KindError, err.Error())
			break
		}
		c.AddNotice(KindInfo, "Reasoning effort set to "+out.ReasoningEffort)

	case commands.OutcomeNewSession:
		session, err := c.sessions.New(ctx)
		if err != nil {
			c.AddNotice(KindError, err.Error())
			break
		}
		c.ClearMessages()
		c.AddNotice(KindInfo, "Started new session "+session.ID())

	case commands.OutcomeResumeSession:
		session, err := c.sessions.Resume(ctx, out.SessionID)
		if err != nil {
			c.AddNotice(KindError, err.Error())
			break
		}
		c.LoadHistory(ctx, session)
		c.AddNotice(KindInfo, "Resumed session "+session.ID())

	case commands.OutcomeNoop:
	}

	return res
}

// LoadHistory replaces the transcript with the session's stored messages,
// when the session can replay them.
func (c *Controller) LoadHistory(ctx context.Context, session sdk.Session) {
	hp, ok := session.(sdk.HistoryProvider)
	if !ok {
		c.ClearMessages()
		return
	}
	history, err := hp.Messages(ctx)
	if err != nil {
		c.ClearMessages()
		c.AddNotice(KindError, fmt.Sprintf("Failed to load history: %v", err))
		return
	}
	c.Load(history)
}

func (c *Controller) commandContext() *commands.Context {
	cfg := c.sessions.Config()
	cc := &commands.Context{
		Client:          c.sessions.Client(),
		Config:          c.cfg,
		Model:           cfg.Model,
		ReasoningEffort: cfg.ReasoningEffort,
		Clipboard:       c.clipboard,
	}
	if session := c.sessions.Current(); session != nil {
		cc.Session = session
	}

	msgs := c.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant && msgs[i].Kind != KindError && msgs[i].Content != "" {
			cc.LastResponse = msgs[i].Content
			break
		}
	}
	return cc
}

// update applies fn to the streaming message id. Updates to a message that
// is gone or already finalized are dropped.
func (c *Controller) update(id string, fn func(*Message)) {
	c.mu.Lock()
	i := indexOf(c.messages, id)
	if i < 0 || !c.messages[i].IsStreaming {
		c.mu.Unlock()
		return
	}
	msgs := slices.Clone(c.messages)
	fn(&msgs[i])
	c.messages = msgs
	snap, v := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap, v)
}

// mutate replaces the transcript with fn applied to a copy of it.
func (c *Controller) mutate(fn func([]Message) []Message) {
	c.mu.Lock()
	c.messages = fn(slices.Clone(c.messages))
	snap, v := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap, v)
}

func (c *Controller) publishLocked() ([]Message, uint64) {
	c.version++
	return c.messages, c.version
}

// notify delivers snap unless a newer snapshot was already delivered.
func (c *Controller) notify(snap []Message, version uint64) {
	if c.onChange == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if version <= c.delivered {
		return
	}
	c.delivered = version
	c.onChange(snap)
}

func indexOf(msgs []Message, id string) int {
	return slices.IndexFunc(msgs, func(m Message) bool { return m.ID == id })
}

func errorText(err error) string {
	var serverErr *stream.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return stream.DefaultErrorMessage
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
