package api

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// MockClient is a Client whose behavior is set per test through the Func
// fields. Chat and stream requests are recorded and safe to inspect while
// the code under test runs in other goroutines.
type MockClient struct {
	ChatFunc       func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	ChatStreamFunc func(ctx context.Context, req *ChatRequest) (*StreamReader, error)
	ListModelsFunc func(ctx context.Context, opts *ListModelsOptions) ([]Model, error)
	PingFunc       func(ctx context.Context) (time.Duration, error)
	KeyInfoFunc    func(ctx context.Context) (*KeyInfo, error)

	mu         sync.Mutex
	chats      []*ChatRequest
	streams    []*ChatRequest
	modelLists int
}

// NewMockClient returns a MockClient that answers "mock response" and lists
// a single model.
func NewMockClient() *MockClient {
	return &MockClient{
		ChatFunc: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{Choices: []Choice{{Message: Output{Content: "mock response"}}}}, nil
		},
		ChatStreamFunc: func(ctx context.Context, req *ChatRequest) (*StreamReader, error) {
			return SSEStream(`{"choices":[{"delta":{"content":"mock response"}}]}`), nil
		},
		ListModelsFunc: func(ctx context.Context, opts *ListModelsOptions) ([]Model, error) {
			return []Model{{ID: "mock-model", Name: "Mock Model"}}, nil
		},
		PingFunc: func(ctx context.Context) (time.Duration, error) {
			return time.Millisecond, nil
		},
		KeyInfoFunc: func(ctx context.Context) (*KeyInfo, error) {
			return &KeyInfo{Label: "mock-key"}, nil
		},
	}
}

// SSEStream builds a StreamReader that replays the given JSON payloads as SSE
// data lines followed by [DONE].
func SSEStream(payloads ...string) *StreamReader {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: " + p + "\n\n")
	}
	b.WriteString("data: " + doneSentinel + "\n\n")
	return NewStreamReader(io.NopCloser(strings.NewReader(b.String())))
}

func (m *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.chats = append(m.chats, req)
	m.mu.Unlock()
	if m.ChatFunc == nil {
		return nil, nil
	}
	return m.ChatFunc(ctx, req)
}

func (m *MockClient) ChatStream(ctx context.Context, req *ChatRequest) (*StreamReader, error) {
	m.mu.Lock()
	m.streams = append(m.streams, req)
	m.mu.Unlock()
	if m.ChatStreamFunc == nil {
		return nil, nil
	}
	return m.ChatStreamFunc(ctx, req)
}

func (m *MockClient) ListModels(ctx context.Context, opts *ListModelsOptions) ([]Model, error) {
	m.mu.Lock()
	m.modelLists++
	m.mu.Unlock()
	if m.ListModelsFunc == nil {
		return nil, nil
	}
	return m.ListModelsFunc(ctx, opts)
}

func (m *MockClient) Ping(ctx context.Context) (time.Duration, error) {
	if m.PingFunc == nil {
		return 0, nil
	}
	return m.PingFunc(ctx)
}

func (m *MockClient) KeyInfo(ctx context.Context) (*KeyInfo, error) {
	if m.KeyInfoFunc == nil {
		return nil, nil
	}
	return m.KeyInfoFunc(ctx)
}

// ChatRequests returns the requests passed to Chat, oldest first.
func (m *MockClient) ChatRequests() []*ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ChatRequest(nil), m.chats...)
}

// StreamRequests returns the requests passed to ChatStream, oldest first.
func (m *MockClient) StreamRequests() []*ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ChatRequest(nil), m.streams...)
}

// ListModelsCount reports how many times ListModels was called.
func (m *MockClient) ListModelsCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modelLists
}

// Reset forgets all recorded calls.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats, m.streams, m.modelLists = nil, nil, 0
}
