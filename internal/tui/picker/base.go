// Package picker provides the list pickers used to choose a model or a stored
// session, both standalone and as an overlay over the chat.
package picker

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/vstratful/orchat/internal/tui"
)

const defaultLoadingLabel = "Loading..."

// Item is a picker row: a title line and an optional description line.
type Item interface {
	list.Item
	Title() string
	Description() string
}

var (
	cancelKey = key.NewBinding(key.WithKeys("esc", "q", "ctrl+c"), key.WithHelp("esc/q", "cancel"))
	chooseKey = key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select"))
)

// ItemDelegate draws Items with a "> " marker on the selected row.
type ItemDelegate struct{}

func (ItemDelegate) Height() int                         { return 2 }
func (ItemDelegate) Spacing() int                        { return 1 }
func (ItemDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

func (ItemDelegate) Render(w io.Writer, m list.Model, index int, li list.Item) {
	item, ok := li.(Item)
	if !ok {
		return
	}

	style, marker := tui.ItemStyle, ""
	if index == m.Index() {
		style, marker = tui.SelectedItemStyle, "> "
	}

	lines := []string{style.Render(marker + item.Title())}
	if desc := item.Description(); desc != "" {
		lines = append(lines, style.Render(strings.Repeat(" ", len(marker))+desc))
	}
	fmt.Fprint(w, strings.Join(lines, "\n"))
}

// Model is a filterable list picker. A picker is loading (spinner), failed
// (Err) or showing its list. Selection is left to the caller: Enter is
// swallowed and the caller reads SelectedItem.
type Model struct {
	List    list.Model
	Loading bool
	Spinner spinner.Model
	Err     error
	Width   int
	Height  int

	// Label is shown next to the spinner while loading.
	Label string

	// Empty is shown instead of an empty list.
	Empty string

	Quitting bool
}

type Config struct {
	Title  string
	Items  []list.Item
	Empty  string
	Width  int
	Height int
}

// New creates a populated picker.
func New(cfg Config) Model {
	return Model{
		List:   newList(cfg.Title, cfg.Items, cfg.Width, cfg.Height),
		Empty:  cfg.Empty,
		Width:  cfg.Width,
		Height: cfg.Height,
	}
}

// NewLoading creates a picker that spins until SetItems or SetError.
func NewLoading(label string, width, height int) Model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	return Model{Loading: true, Spinner: sp, Label: label, Width: width, Height: height}
}

// listHeight leaves room for the title bar.
func listHeight(height int) int {
	return max(height-2, 1)
}

func newList(title string, items []list.Item, width, height int) list.Model {
	l := list.New(items, ItemDelegate{}, width, listHeight(height))
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = tui.TitleStyle
	l.Styles.PaginationStyle = tui.PaginationStyle
	l.Styles.HelpStyle = tui.HelpListStyle
	l.AdditionalShortHelpKeys = func() []key.Binding { return []key.Binding{chooseKey, cancelKey} }
	return l
}

func (m Model) Init() tea.Cmd {
	if !m.Loading {
		return nil
	}
	return m.Spinner.Tick
}

// SetItems replaces the list and leaves the loading or failed state.
func (m *Model) SetItems(title string, items []list.Item) {
	m.List = newList(title, items, m.Width, m.Height)
	m.Loading, m.Err = false, nil
}

func (m *Model) SetError(err error) {
	m.Loading, m.Err = false, err
}

func (m Model) ready() bool {
	return !m.Loading && m.Err == nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		if !m.Loading {
			m.List.SetSize(msg.Width, listHeight(msg.Height))
		}
		return m, nil

	case tea.KeyMsg:
		// While typing a filter every key belongs to the list; with a filter
		// applied, the first esc clears it.
		filtering := m.IsFiltering() || (m.List.FilterState() == list.FilterApplied && msg.Type == tea.KeyEsc)
		switch {
		case filtering:
		case key.Matches(msg, cancelKey):
			m.Quitting = true
			return m, tea.Quit
		case key.Matches(msg, chooseKey):
			return m, nil
		}

	case spinner.TickMsg:
		if !m.Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	if !m.ready() {
		return m, nil
	}
	var cmd tea.Cmd
	m.List, cmd = m.List.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	switch {
	case m.Quitting:
		return ""
	case m.Loading:
		label := m.Label
		if label == "" {
			label = defaultLoadingLabel
		}
		return fmt.Sprintf("\n\n   %s %s\n", m.Spinner.View(), label)
	case m.Err != nil:
		return tui.ErrorStyle.Render(fmt.Sprintf("\n\n   Error: %v\n", m.Err))
	case len(m.List.Items()) == 0 && m.Empty != "":
		return tui.TitleStyle.Render(m.List.Title) + "\n\n" + tui.HelpStyle.Render("   "+m.Empty)
	}
	return m.List.View()
}

func (m Model) SelectedItem() list.Item {
	return m.List.SelectedItem()
}

// IsFiltering reports whether the user is typing a filter.
func (m Model) IsFiltering() bool {
	return m.List.FilterState() == list.Filtering
}
