package sdk

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by backends.
var (
	// ErrUnsupported is returned by optional capabilities the backend does not offer.
	ErrUnsupported = errors.New("not supported by this backend")

	// ErrSessionBusy is returned by Send while a previous request is still running.
	ErrSessionBusy = errors.New("session is busy")

	// ErrSessionNotFound is returned when a session id cannot be resolved.
	ErrSessionNotFound = errors.New("session not found")
)

// Attachment is a resolved local file sent alongside a prompt.
type Attachment struct {
	Path        string
	DisplayName string
	Size        int64
}

// MessageOptions is the payload of Session.Send.
type MessageOptions struct {
	Prompt      string
	Attachments []Attachment
	Mode        string
}

// Handler receives session events.
type Handler func(Event)

// Session is one persistent conversation with the backend.
type Session interface {
	// ID returns the stable session identifier.
	ID() string

	// Send submits a prompt and returns the id of the accepted message.
	// Events for the request are delivered to subscribed handlers.
	Send(ctx context.Context, opts MessageOptions) (string, error)

	// On subscribes handler to session events and returns a function that
	// removes the subscription. The returned function is safe to call more
	// than once.
	On(handler Handler) func()

	// Abort stops the in-flight request. The session must follow up with a
	// session.idle or session.error event.
	Abort(ctx context.Context) error

	// Destroy releases the session.
	Destroy(ctx context.Context) error
}

// HistoryMessage is one persisted transcript entry.
type HistoryMessage struct {
	Role        string
	Content     string
	Attachments []Attachment
}

// HistoryProvider is implemented by sessions that can replay their transcript.
type HistoryProvider interface {
	Messages(ctx context.Context) ([]HistoryMessage, error)
}

// ProviderConfig describes a custom model provider.
type ProviderConfig struct {
	Type    string
	BaseURL string
	WireAPI string
}

// SessionConfig configures CreateSession and ResumeSession.
type SessionConfig struct {
	Model           string
	ReasoningEffort string
	Provider        *ProviderConfig
	Streaming       bool
}

// SessionMetadata summarizes a stored session.
type SessionMetadata struct {
	ID        string
	Summary   string
	Model     string
	UpdatedAt time.Time
}

// PingResponse is returned by Client.Ping.
type PingResponse struct {
	Message   string
	Timestamp time.Time
}

// ConnectionState describes the client's link to the backend.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

// ModelInfo describes a selectable model.
type ModelInfo struct {
	ID              string
	Name            string
	ContextLength   int
	PromptPrice     string
	CompletionPrice string
}

// Client manages sessions and reports on the backend.
type Client interface {
	CreateSession(ctx context.Context, cfg SessionConfig) (Session, error)
	ResumeSession(ctx context.Context, id string, cfg SessionConfig) (Session, error)
	ListSessions(ctx context.Context) ([]SessionMetadata, error)
	DeleteSession(ctx context.Context, id string) error
	Ping(ctx context.Context, tag string) (*PingResponse, error)
	State(ctx context.Context) (ConnectionState, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
	LastSessionID(ctx context.Context) (string, error)
}

// Status reports the backend version.
type Status struct {
	Version         string
	ProtocolVersion int
}

// StatusProvider is implemented by clients able to report their version.
type StatusProvider interface {
	Status(ctx context.Context) (*Status, error)
}

// AuthStatus reports authentication state.
type AuthStatus struct {
	Authenticated bool
	Login         string
	Detail        string
}

// AuthStatusProvider is implemented by clients able to report authentication.
type AuthStatusProvider interface {
	AuthStatus(ctx context.Context) (*AuthStatus, error)
}
