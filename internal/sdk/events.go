// Package sdk defines the contract between the chat core and the
// conversational backend: sessions that accept prompts and push events, and a
// client that manages sessions and reports on the backend.
package sdk

import "time"

// EventType identifies the kind of a session event.
type EventType string

const (
	EventTurnStart      EventType = "assistant.turn_start"
	EventTurnEnd        EventType = "assistant.turn_end"
	EventMessageDelta   EventType = "assistant.message_delta"
	EventMessage        EventType = "assistant.message"
	EventUsage          EventType = "assistant.usage"
	EventReasoningDelta EventType = "assistant.reasoning_delta"
	EventReasoning      EventType = "assistant.reasoning"
	EventIntent         EventType = "assistant.intent"

	EventToolExecutionStart    EventType = "tool.execution_start"
	EventToolExecutionProgress EventType = "tool.execution_progress"
	EventToolExecutionComplete EventType = "tool.execution_complete"

	EventSessionIdle       EventType = "session.idle"
	EventSessionError      EventType = "session.error"
	EventCompactionStart   EventType = "session.compaction_start"
	EventCompactionDone    EventType = "session.compaction_complete"
	EventSessionTruncation EventType = "session.truncation"

	EventSubagentStarted   EventType = "subagent.started"
	EventSubagentCompleted EventType = "subagent.completed"
	EventSubagentFailed    EventType = "subagent.failed"

	EventHookStart EventType = "hook.start"
	EventHookEnd   EventType = "hook.end"

	// EventAbort is emitted by backends when a request was aborted. Consumers
	// treat it like any other informational event.
	EventAbort EventType = "abort"
)

func (t EventType) String() string {
	return string(t)
}

// Event is a single notification pushed by a Session.
type Event struct {
	Type      EventType
	ID        string
	Timestamp time.Time
	Data      EventData
}

// EventData carries the payload of an Event. Only the fields relevant to the
// event type are populated.
type EventData struct {
	// MessageID groups deltas and the final message of one assistant reply.
	MessageID string

	// DeltaContent is set on message and reasoning deltas.
	DeltaContent string

	// Content is set on final message and reasoning events.
	Content string

	// Message is set on session.error and failure events.
	Message string

	// TurnID is set on turn start/end.
	TurnID string

	// Intent is set on assistant.intent.
	Intent string

	// ToolName and ToolCallID are set on tool execution events.
	ToolName   string
	ToolCallID string

	// AgentName is set on subagent events.
	AgentName string

	// HookType is set on hook events.
	HookType string

	// Usage is set on assistant.usage.
	Usage *Usage

	// TokensRemoved is set on truncation and compaction events.
	TokensRemoved int
}

// Usage is a normalized token accounting record.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
	CachedTokens int
	Cost         float64
	Duration     time.Duration
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}
