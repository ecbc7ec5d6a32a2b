package chat

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vstratful/orchat/internal/commands"
	"github.com/vstratful/orchat/internal/conversation"
	"github.com/vstratful/orchat/internal/tui/picker"
)

// Update handles messages for the chat model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Delivered regardless of the overlay
	switch msg := msg.(type) {
	case changedMsg:
		m.messages = m.ctrl.Messages()
		m.autocomplete.Refresh()
		m.updateTextareaState()
		m.updateViewportContent()
		return m, m.feed.Wait()

	case submitDoneMsg:
		return m.submitDone(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		if m.overlay != overlayNone {
			var cmd tea.Cmd
			m.overlayPicker, cmd = m.overlayPicker.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if m.overlay != overlayNone {
		return m.updateOverlay(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.autocomplete.Visible() && !m.busy {
			return m.updateAutocomplete(msg)
		}

		// Backspace in summary mode clears the whole input
		if m.showingSummary && (msg.Type == tea.KeyBackspace || msg.Type == tea.KeyDelete) {
			m.textarea.Reset()
			m.updateTextareaState()
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.busy {
				return m, m.cancel()
			}
			return m.handleEsc()
		case tea.KeyCtrlU:
			m.clearInput()
			return m, nil
		case tea.KeyCtrlR:
			if m.busy {
				return m, nil
			}
			return m, m.openOverlay(overlaySessions)
		case tea.KeyPgUp:
			m.viewport.ViewUp()
			return m, nil
		case tea.KeyPgDown:
			m.viewport.ViewDown()
			return m, nil
		case tea.KeyUp, tea.KeyDown:
			if !m.busy {
				m.arrow(msg)
			}
			return m, nil
		case tea.KeyEnter:
			return m.handleEnter()
		}

	case tea.MouseMsg:
		if step, ok := wheelStep[msg.Button]; ok {
			m.viewport.SetYOffset(m.viewport.YOffset + step)
			return m, nil
		}

	case escTimeoutMsg:
		m.esc.active = false
		return m, nil

	case spinner.TickMsg:
		if m.busy {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}
		return m, nil
	}

	if !m.busy {
		m.textarea, tiCmd = m.textarea.Update(msg)
		if _, isKey := msg.(tea.KeyMsg); isKey {
			m.autocomplete.Update(m.textarea.Value())
		}
		m.updateTextareaState()
	}
	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

var wheelStep = map[tea.MouseButton]int{
	tea.MouseButtonWheelUp:   -3,
	tea.MouseButtonWheelDown: 3,
}

// clearInput empties the textarea and leaves history browsing.
func (m *Model) clearInput() {
	m.textarea.Reset()
	m.autocomplete.Update("")
	m.updateTextareaState()
	m.esc.active = false
	m.history.Reset()
}

// arrow walks the input history while the input is empty or already showing
// a history entry. Otherwise it moves the cursor between lines.
func (m *Model) arrow(msg tea.KeyMsg) {
	up := msg.Type == tea.KeyUp
	value := m.textarea.Value()
	switch {
	case strings.TrimSpace(value) != "" && !m.history.IsBrowsing():
		binding := &m.textarea.KeyMap.LineNext
		if up {
			binding = &m.textarea.KeyMap.LinePrevious
		}
		binding.SetEnabled(true)
		m.textarea, _ = m.textarea.Update(msg)
		binding.SetEnabled(false)
	case up:
		if entry := m.history.Up(value); entry != "" {
			m.textarea.SetValue(entry)
		}
	default:
		// Stepping past the newest entry restores the draft, possibly empty.
		if entry := m.history.Down(); entry != "" || m.history.Index() == -1 {
			m.textarea.SetValue(entry)
		}
	}
	m.updateTextareaState()
}

// handleEsc runs the double-press gesture: the first press arms it, the
// second clears the input, or exits when the input is empty.
func (m Model) handleEsc() (tea.Model, tea.Cmd) {
	now := time.Now()
	if m.esc.pending(now) {
		if m.esc.action == EscActionExit {
			return m, tea.Quit
		}
		m.clearInput()
		return m, nil
	}

	action := EscActionClear
	if strings.TrimSpace(m.textarea.Value()) == "" {
		action = EscActionExit
	}
	m.esc = escState{active: true, pressedAt: now, action: action}
	return m, escTimeout()
}

// handleEnter submits the input.
func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	input := m.textarea.Value()
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return m, nil
	}

	m.recordInput(trimmed)
	m.textarea.Reset()
	m.autocomplete.Hide()
	m.updateTextareaState()
	m.esc.active = false
	return m, m.submit(input)
}

// submitDone applies the UI side of a processed input.
func (m Model) submitDone(msg submitDoneMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	res := msg.result

	// Ignored or failed input is given back unless the user typed again
	if (!res.Handled || !res.ClearInput) && m.textarea.Value() == "" {
		m.textarea.SetValue(strings.TrimSpace(msg.input))
		m.updateTextareaState()
	}

	if res.Outcome != nil {
		switch res.Outcome.Type {
		case commands.OutcomeNewSession, commands.OutcomeResumeSession:
			m.loadInputHistory()
		}
	}

	m.messages = m.ctrl.Messages()
	m.updateViewportContent()

	switch res.Action {
	case conversation.ActionExit:
		return m, tea.Quit
	case conversation.ActionOpenModelPicker:
		return m, m.openOverlay(overlayModels)
	}
	return m, nil
}

// updateAutocomplete handles key events while the inline picker is visible.
func (m Model) updateAutocomplete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.autocomplete.Hide()
		return m, nil

	case tea.KeyUp:
		m.autocomplete.Up()
		return m, nil

	case tea.KeyDown:
		m.autocomplete.Down()
		return m, nil

	case tea.KeyEnter, tea.KeyTab:
		sel, ok := m.autocomplete.Apply(m.textarea.Value())
		if !ok {
			if msg.Type == tea.KeyEnter {
				m.autocomplete.Hide()
				return m.handleEnter()
			}
			return m, nil
		}
		if sel.Execute {
			m.textarea.Reset()
			m.autocomplete.Update(m.textarea.Value())
			m.updateTextareaState()
			m.recordInput(sel.Input)
			return m, m.submit(sel.Input)
		}
		m.textarea.SetValue(sel.Input)
		m.textarea.CursorEnd()
		m.autocomplete.Update(m.textarea.Value())
		m.updateTextareaState()
		return m, nil

	case tea.KeyCtrlC:
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		m.autocomplete.Update(m.textarea.Value())
		m.updateTextareaState()
		return m, cmd
	}
}

// openOverlay shows a loading picker and fetches its items.
func (m *Model) openOverlay(kind overlay) tea.Cmd {
	m.overlay = kind
	m.autocomplete.Hide()
	m.overlayPicker = picker.NewModelPicker(m.width, m.height)
	load := m.loadModels()
	if kind == overlaySessions {
		m.overlayPicker = picker.NewSessionLoading(m.width, m.height)
		load = m.loadSessions()
	}
	return tea.Batch(m.overlayPicker.Init(), load)
}

func (m *Model) closeOverlay() {
	m.overlay = overlayNone
	m.overlayPicker = picker.Model{}
	m.updateViewportContent()
}

// updateOverlay handles messages while a picker covers the chat. A selection
// is submitted as the equivalent command.
func (m Model) updateOverlay(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case modelsLoadedMsg:
		if msg.err != nil {
			m.overlayPicker.SetError(msg.err)
			return m, nil
		}
		picker.SetModels(&m.overlayPicker, msg.models, m.ctrl.Sessions().Config().Model)
		return m, nil

	case sessionsLoadedMsg:
		if msg.err != nil {
			m.overlayPicker.SetError(msg.err)
			return m, nil
		}
		picker.SetSessions(&m.overlayPicker, msg.sessions)
		return m, nil

	case tea.KeyMsg:
		if m.overlayPicker.IsFiltering() ||
			(msg.Type == tea.KeyEsc && m.overlayPicker.List.FilterState() == list.FilterApplied) {
			break
		}
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc", "q":
			m.closeOverlay()
			return m, nil
		case "enter":
			if m.overlayPicker.Loading || m.overlayPicker.Err != nil {
				return m, nil
			}
			input := m.overlayCommand(m.overlayPicker.SelectedItem())
			m.closeOverlay()
			if input == "" {
				return m, nil
			}
			return m, m.submit(input)
		}
	}

	var cmd tea.Cmd
	m.overlayPicker, cmd = m.overlayPicker.Update(msg)
	return m, cmd
}

// overlayCommand is the slash command equivalent to choosing item.
func (m *Model) overlayCommand(item list.Item) string {
	switch m.overlay {
	case overlayModels:
		if model := picker.GetModel(item); model != nil {
			return "/model " + model.ID
		}
	case overlaySessions:
		if session := picker.GetSession(item); session != nil {
			return "/session resume " + session.ID
		}
	}
	return ""
}

// resize lays out the viewport, the input and the markdown renderer.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	// Border and padding
	m.textarea.SetWidth(width - 8)

	contentWidth := width - 4
	if contentWidth < 10 {
		contentWidth = 80
	}
	if m.mdRenderer != nil {
		m.mdRenderer.SetWidth(contentWidth)
	}

	if !m.ready {
		m.viewport = viewport.New(width, height)
		m.viewport.YPosition = headerHeight
		m.ready = true
	}
	m.viewport.Width = width
	m.updateTextareaState()
	m.updateViewportContent()
}

// visualLines counts the rows content wraps to at width columns. Empty
// lines count as one row.
func visualLines(content string, width int) int {
	if content == "" || width <= 0 {
		return 1
	}
	rows := 0
	for _, line := range strings.Split(content, "\n") {
		rows += max(1, (utf8.RuneCountInString(line)+width-1)/width)
	}
	return rows
}

// calculateVisualLines is visualLines for the current input, measured a
// little narrower than the textarea.
func (m *Model) calculateVisualLines() int {
	return visualLines(m.textarea.Value(), m.width-10)
}

// updateTextareaState updates the textarea height, the summary mode and the
// viewport height left over.
func (m *Model) updateTextareaState() {
	visualLines := m.calculateVisualLines()

	inputHeight := 1
	if visualLines > maxTextareaHeight*2 {
		m.showingSummary = true
	} else {
		m.showingSummary = false

		// One line of slack once the text wraps
		newHeight := visualLines
		if visualLines > 1 {
			newHeight++
		}
		newHeight = min(max(newHeight, 1), maxTextareaHeight)
		m.textarea.SetHeight(newHeight)
		inputHeight = newHeight
	}

	if m.ready && m.height > 0 {
		pickerHeight := 0
		if m.autocomplete.Visible() {
			pickerHeight = len(m.autocomplete.Items()) + 2
		}
		// header, input box with border, footer, spacing
		margins := headerHeight + inputHeight + 2 + footerHeight + 1 + pickerHeight
		m.viewport.Height = max(m.height-margins, 1)
	}
}
