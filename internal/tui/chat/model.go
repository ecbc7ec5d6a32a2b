package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/vstratful/orchat/internal/conversation"
	"github.com/vstratful/orchat/internal/sdk"
	"github.com/vstratful/orchat/internal/tui"
	"github.com/vstratful/orchat/internal/tui/picker"
)

// Message types for tea.Msg
type (
	changedMsg    struct{}
	escTimeoutMsg struct{}

	submitDoneMsg struct {
		input  string
		result conversation.Result
	}

	modelsLoadedMsg struct {
		models []sdk.ModelInfo
		err    error
	}

	sessionsLoadedMsg struct {
		sessions []sdk.SessionMetadata
		err      error
	}
)

// inputHistory is implemented by sessions that persist the prompt history.
type inputHistory interface {
	InputHistory() []string
	RecordInput(entry string) error
}

// overlay is the full-screen picker on top of the chat, if any.
type overlay int

const (
	overlayNone overlay = iota
	overlayModels
	overlaySessions
)

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	// UI components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	ctx    context.Context
	ctrl   *conversation.Controller
	feed   *Feed
	logger *zap.Logger

	// Latest transcript snapshot
	messages []conversation.Message

	// busy is set while Submit runs.
	busy   bool
	ready  bool
	width  int
	height int

	banner  bool
	version string

	history      *HistoryNavigator
	autocomplete *AutocompleteState

	// Input summary mode (for very long text)
	showingSummary bool

	esc escState

	mdRenderer *tui.MarkdownRenderer

	overlay       overlay
	overlayPicker picker.Model
}

// Config holds configuration for creating a new chat model.
type Config struct {
	Controller *conversation.Controller

	// Feed must be the one passed as the controller's OnChange.
	Feed *Feed

	// Files backs @mention completion. May be nil.
	Files FileSource

	ShowBanner bool
	Version    string

	// Context bounds every command and prompt.
	Context context.Context
	Logger  *zap.Logger
}

// New creates a new chat Model.
func New(cfg Config) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message, / for commands, @ for files"
	ta.Focus()
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.SetWidth(80)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)
	// Arrow keys navigate the history and the picker
	ta.KeyMap.LineNext.SetEnabled(false)
	ta.KeyMap.LinePrevious.SetEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))

	// Falls back to plain text when nil
	mdRenderer, _ := tui.NewMarkdownRenderer(80)

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	feed := cfg.Feed
	if feed == nil {
		feed = NewFeed()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := Model{
		textarea:     ta,
		spinner:      sp,
		ctx:          ctx,
		ctrl:         cfg.Controller,
		feed:         feed,
		logger:       logger.Named("tui"),
		messages:     cfg.Controller.Messages(),
		banner:       cfg.ShowBanner,
		version:      cfg.Version,
		history:      NewHistoryNavigator(),
		autocomplete: NewAutocompleteState(cfg.Controller.Registry().Commands(), cfg.Files),
		mdRenderer:   mdRenderer,
	}
	m.loadInputHistory()
	return m
}

// Init initializes the chat model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.feed.Wait())
}

// State returns the input state shown in the footer.
func (m *Model) State() ChatState {
	switch {
	case m.ctrl.IsStreaming():
		return StateStreaming
	case m.busy:
		return StateBusy
	case m.esc.active:
		return StateEscPending
	case m.history.IsBrowsing():
		return StateBrowsing
	default:
		return StateIdle
	}
}

// loadInputHistory replaces the prompt history with the current session's.
func (m *Model) loadInputHistory() {
	if h, ok := m.ctrl.Sessions().Current().(inputHistory); ok {
		m.history.SetHistory(h.InputHistory())
		return
	}
	m.history.SetHistory(nil)
}

// recordInput adds entry to the navigator and the session's stored history.
func (m *Model) recordInput(entry string) {
	m.history.Add(entry)
	m.history.Reset()
	if h, ok := m.ctrl.Sessions().Current().(inputHistory); ok {
		if err := h.RecordInput(entry); err != nil {
			m.logger.Warn("failed to record input", zap.Error(err))
		}
	}
}

// submit runs input through the controller off the UI goroutine.
func (m *Model) submit(input string) tea.Cmd {
	m.busy = true
	ctrl, ctx := m.ctrl, m.ctx
	run := func() tea.Msg {
		return submitDoneMsg{input: input, result: ctrl.Submit(ctx, input)}
	}
	return tea.Batch(run, m.spinner.Tick)
}

// cancel aborts the in-flight response.
func (m *Model) cancel() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		if err := ctrl.Cancel(ctx); err != nil {
			ctrl.AddNotice(conversation.KindError, err.Error())
		}
		return nil
	}
}

func (m *Model) loadModels() tea.Cmd {
	client, ctx := m.ctrl.Sessions().Client(), m.ctx
	return func() tea.Msg {
		if client == nil {
			return modelsLoadedMsg{err: sdk.ErrUnsupported}
		}
		models, err := client.ListModels(ctx)
		return modelsLoadedMsg{models: models, err: err}
	}
}

func (m *Model) loadSessions() tea.Cmd {
	client, ctx := m.ctrl.Sessions().Client(), m.ctx
	return func() tea.Msg {
		if client == nil {
			return sessionsLoadedMsg{err: sdk.ErrUnsupported}
		}
		sessions, err := client.ListSessions(ctx)
		return sessionsLoadedMsg{sessions: sessions, err: err}
	}
}

// Run starts the chat TUI and blocks until it exits.
func Run(cfg Config) error {
	m := New(cfg)

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(m.ctx),
	)

	_, err := p.Run()
	return err
}

// escTimeout expires the first ESC press.
func escTimeout() tea.Cmd {
	return tea.Tick(escDoublePress, func(time.Time) tea.Msg {
		return escTimeoutMsg{}
	})
}
