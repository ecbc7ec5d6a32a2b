package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/vstratful/orchat/internal/sdk"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Kind annotates system messages.
type Kind string

const (
	KindNone  Kind = ""
	KindInfo  Kind = "info"
	KindError Kind = "error"
)

// TurnPhase is the progress of the in-flight assistant turn.
type TurnPhase string

const (
	PhaseNone       TurnPhase = ""
	PhaseThinking   TurnPhase = "thinking"
	PhaseResponding TurnPhase = "responding"
)

// Message is one transcript entry. Messages in a snapshot are values and are
// never modified after the snapshot is published.
type Message struct {
	ID          string
	Role        Role
	Content     string
	IsStreaming bool
	Kind        Kind
	Attachments []sdk.Attachment
	CreatedAt   time.Time

	// Assistant-only metadata, frozen once streaming ends.
	Usage     *sdk.Usage
	Reasoning string
	TurnPhase TurnPhase
	Intent    string
}

func newMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func systemMessage(kind Kind, content string) Message {
	m := newMessage(RoleSystem, content)
	m.Kind = kind
	return m
}
