package sdk

import (
	"context"
	"sync"
)

// MockSession is a Session for tests. Events are pushed with Emit.
type MockSession struct {
	// SessionID is returned by ID.
	SessionID string

	// SendFunc is called when Send is invoked. When nil, Send succeeds.
	SendFunc func(ctx context.Context, opts MessageOptions) (string, error)

	// AbortFunc is called when Abort is invoked.
	AbortFunc func(ctx context.Context) error

	// History is returned by Messages.
	History []HistoryMessage

	mu          sync.Mutex
	handlers    map[int]Handler
	nextHandler int
	sendCalls   []MessageOptions
	abortCalls  int
	destroyed   bool
}

// NewMockSession creates a MockSession with the given id.
func NewMockSession(id string) *MockSession {
	return &MockSession{
		SessionID: id,
		handlers:  make(map[int]Handler),
	}
}

// ID implements Session.ID.
func (s *MockSession) ID() string {
	return s.SessionID
}

// Send implements Session.Send.
func (s *MockSession) Send(ctx context.Context, opts MessageOptions) (string, error) {
	s.mu.Lock()
	s.sendCalls = append(s.sendCalls, opts)
	fn := s.SendFunc
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, opts)
	}
	return "msg-1", nil
}

// On implements Session.On.
func (s *MockSession) On(handler Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[int]Handler)
	}
	id := s.nextHandler
	s.nextHandler++
	s.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
		})
	}
}

// Emit delivers events synchronously to every current handler.
func (s *MockSession) Emit(events ...Event) {
	for _, event := range events {
		s.mu.Lock()
		handlers := make([]Handler, 0, len(s.handlers))
		for _, h := range s.handlers {
			handlers = append(handlers, h)
		}
		s.mu.Unlock()

		for _, h := range handlers {
			h(event)
		}
	}
}

// Abort implements Session.Abort.
func (s *MockSession) Abort(ctx context.Context) error {
	s.mu.Lock()
	s.abortCalls++
	fn := s.AbortFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// Destroy implements Session.Destroy.
func (s *MockSession) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	s.handlers = make(map[int]Handler)
	return nil
}

// Messages implements HistoryProvider.
func (s *MockSession) Messages(ctx context.Context) ([]HistoryMessage, error) {
	return s.History, nil
}

// HandlerCount returns the number of active subscriptions.
func (s *MockSession) HandlerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// SendCalls returns the recorded Send payloads.
func (s *MockSession) SendCalls() []MessageOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MessageOptions(nil), s.sendCalls...)
}

// AbortCalls returns how often Abort was called.
func (s *MockSession) AbortCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortCalls
}

// Destroyed reports whether Destroy was called.
func (s *MockSession) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// MockClient is a Client for tests. Unset function fields return zero values.
type MockClient struct {
	CreateSessionFunc func(ctx context.Context, cfg SessionConfig) (Session, error)
	ResumeSessionFunc func(ctx context.Context, id string, cfg SessionConfig) (Session, error)
	ListSessionsFunc  func(ctx context.Context) ([]SessionMetadata, error)
	DeleteSessionFunc func(ctx context.Context, id string) error
	PingFunc          func(ctx context.Context, tag string) (*PingResponse, error)
	StateFunc         func(ctx context.Context) (ConnectionState, error)
	ListModelsFunc    func(ctx context.Context) ([]ModelInfo, error)
	LastSessionFunc   func(ctx context.Context) (string, error)

	mu             sync.Mutex
	CreateCalls    []SessionConfig
	ResumeCalls    []string
	DeleteCalls    []string
	ListModelCalls int
}

// NewMockClient creates a MockClient whose CreateSession returns a new MockSession.
func NewMockClient() *MockClient {
	return &MockClient{
		CreateSessionFunc: func(ctx context.Context, cfg SessionConfig) (Session, error) {
			return NewMockSession("mock-session"), nil
		},
		StateFunc: func(ctx context.Context) (ConnectionState, error) {
			return StateConnected, nil
		},
	}
}

// CreateSession implements Client.CreateSession.
func (c *MockClient) CreateSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	c.mu.Lock()
	c.CreateCalls = append(c.CreateCalls, cfg)
	c.mu.Unlock()
	if c.CreateSessionFunc != nil {
		return c.CreateSessionFunc(ctx, cfg)
	}
	return nil, ErrUnsupported
}

// ResumeSession implements Client.ResumeSession.
func (c *MockClient) ResumeSession(ctx context.Context, id string, cfg SessionConfig) (Session, error) {
	c.mu.Lock()
	c.ResumeCalls = append(c.ResumeCalls, id)
	c.mu.Unlock()
	if c.ResumeSessionFunc != nil {
		return c.ResumeSessionFunc(ctx, id, cfg)
	}
	return nil, ErrSessionNotFound
}

// ListSessions implements Client.ListSessions.
func (c *MockClient) ListSessions(ctx context.Context) ([]SessionMetadata, error) {
	if c.ListSessionsFunc != nil {
		return c.ListSessionsFunc(ctx)
	}
	return nil, nil
}

// DeleteSession implements Client.DeleteSession.
func (c *MockClient) DeleteSession(ctx context.Context, id string) error {
	c.mu.Lock()
	c.DeleteCalls = append(c.DeleteCalls, id)
	c.mu.Unlock()
	if c.DeleteSessionFunc != nil {
		return c.DeleteSessionFunc(ctx, id)
	}
	return nil
}

// Ping implements Client.Ping.
func (c *MockClient) Ping(ctx context.Context, tag string) (*PingResponse, error) {
	if c.PingFunc != nil {
		return c.PingFunc(ctx, tag)
	}
	return nil, ErrUnsupported
}

// State implements Client.State.
func (c *MockClient) State(ctx context.Context) (ConnectionState, error) {
	if c.StateFunc != nil {
		return c.StateFunc(ctx)
	}
	return StateDisconnected, nil
}

// ListModels implements Client.ListModels.
func (c *MockClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	c.mu.Lock()
	c.ListModelCalls++
	c.mu.Unlock()
	if c.ListModelsFunc != nil {
		return c.ListModelsFunc(ctx)
	}
	return nil, nil
}

// LastSessionID implements Client.LastSessionID.
func (c *MockClient) LastSessionID(ctx context.Context) (string, error) {
	if c.LastSessionFunc != nil {
		return c.LastSessionFunc(ctx)
	}
	return "", ErrSessionNotFound
}
