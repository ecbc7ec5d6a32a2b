package chat

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/vstratful/orchat/internal/conversation"
)

// Feed wakes the program when the transcript or the file index changed.
// Producers never block: pending signals coalesce into one and the model
// reads the latest state when it wakes up.
type Feed struct {
	signal chan struct{}
}

// NewFeed creates a Feed.
func NewFeed() *Feed {
	return &Feed{signal: make(chan struct{}, 1)}
}

// Notify records that something changed.
func (f *Feed) Notify() {
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// OnChange has the signature of conversation.Options.OnChange.
func (f *Feed) OnChange([]conversation.Message) {
	f.Notify()
}

// Wait returns a command that resolves on the next change.
func (f *Feed) Wait() tea.Cmd {
	return func() tea.Msg {
		<-f.signal
		return changedMsg{}
	}
}
