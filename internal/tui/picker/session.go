package picker

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/vstratful/orchat/internal/sdk"
)

const (
	sessionsTitle = "Resume a previous session"
	noSessions    = "No saved sessions."
)

// SessionItem wraps a stored session for display in a picker.
type SessionItem struct {
	Session sdk.SessionMetadata
}

func (i SessionItem) Title() string {
	return i.Session.UpdatedAt.Format("Jan 2, 15:04")
}

func (i SessionItem) Description() string {
	id := i.Session.ID
	if len(id) > 8 {
		id = id[:8]
	}
	if i.Session.Model != "" {
		return fmt.Sprintf("[%s] %q %s", i.Session.Model, i.Session.Summary, id)
	}
	return fmt.Sprintf("%q %s", i.Session.Summary, id)
}

func (i SessionItem) FilterValue() string {
	return i.Session.Summary + " " + i.Session.ID
}

func sessionItems(sessions []sdk.SessionMetadata) []list.Item {
	items := make([]list.Item, len(sessions))
	for i, s := range sessions {
		items[i] = SessionItem{Session: s}
	}
	return items
}

// NewSessionPicker creates a new picker for sessions.
func NewSessionPicker(sessions []sdk.SessionMetadata, width, height int) Model {
	return New(Config{
		Title:  sessionsTitle,
		Items:  sessionItems(sessions),
		Empty:  noSessions,
		Width:  width,
		Height: height,
	})
}

// NewSessionLoading creates a session picker that waits for SetSessions.
func NewSessionLoading(width, height int) Model {
	return NewLoading("Loading sessions...", width, height)
}

// SetSessions fills a loading picker with sessions.
func SetSessions(m *Model, sessions []sdk.SessionMetadata) {
	m.SetItems(sessionsTitle, sessionItems(sessions))
	m.Empty = noSessions
}

// GetSession extracts the session from a selected item.
func GetSession(item list.Item) *sdk.SessionMetadata {
	if si, ok := item.(SessionItem); ok {
		return &si.Session
	}
	return nil
}
