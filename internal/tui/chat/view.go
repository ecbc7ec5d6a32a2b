package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/vstratful/orchat/internal/conversation"
	"github.com/vstratful/orchat/internal/sdk"
	"github.com/vstratful/orchat/internal/tui"
)

const bannerArt = `                 _           _
  ___  _ __ ___ | |__   __ _| |_
 / _ \| '__/ __|| '_ \ / _' | __|
| (_) | | | (__ | | | | (_| | |_
 \___/|_|  \___||_| |_|\__,_|\__|`

// View renders the chat model.
func (m Model) View() string {
	if m.overlay != overlayNone {
		return m.overlayPicker.View()
	}
	if !m.ready {
		return "Initializing..."
	}

	sections := []string{m.header(), m.viewport.View()}
	if m.autocomplete.Visible() {
		sections = append(sections, m.renderAutocomplete())
	}
	sections = append(sections, m.inputBox(), m.footer())
	return strings.Join(sections, "\n")
}

func (m *Model) header() string {
	sessions := m.ctrl.Sessions()
	if err := sessions.Err(); err != nil {
		return tui.ErrorStyle.Render("Not connected: " + err.Error())
	}
	current := sessions.Current()
	if current == nil {
		return tui.HelpStyle.Render("Connecting...")
	}
	id := current.ID()
	if len(id) > 8 {
		id = id[:8]
	}
	return tui.HelpStyle.Render("session " + id)
}

// footer shows the model and what the input is doing.
func (m *Model) footer() string {
	cfg := m.ctrl.Sessions().Config()
	modelInfo := cfg.Model
	if modelInfo == "" {
		modelInfo = "default model"
	}
	if cfg.ReasoningEffort != "" {
		modelInfo += " (" + cfg.ReasoningEffort + ")"
	}
	status := tui.DimHelpStyle.Render(modelInfo)
	sep := tui.DimHelpStyle.Render(" • ")

	switch m.State() {
	case StateStreaming, StateBusy:
		activity := "Working..."
		if msg, ok := m.streamingMessage(); ok {
			activity = phaseLabel(msg)
		}
		return status + sep + m.spinner.View() + " " + activity +
			sep + tui.KeyHintStyle.Render("⎋") + tui.DimHelpStyle.Render(": cancel")

	case StateEscPending:
		action := "clear input"
		if m.esc.action == EscActionExit {
			action = "exit"
		}
		return status + sep + tui.EscWarningStyle.Render("Press ⎋ again to "+action)

	case StateBrowsing:
		pos := fmt.Sprintf("browsing history (%d/%d)",
			m.history.HistoryLen()-m.history.Index(), m.history.HistoryLen())
		return status + sep + tui.HistoryModeStyle.Render(pos) +
			sep + tui.DimHelpStyle.Render("↑↓: navigate • Enter: use • ⎋: cancel")
	}

	hints := []string{
		tui.KeyHintStyle.Render("Enter") + tui.DimHelpStyle.Render(": send"),
		tui.KeyHintStyle.Render("↑↓") + tui.DimHelpStyle.Render(": history"),
		tui.KeyHintStyle.Render("/") + tui.DimHelpStyle.Render(": commands"),
		tui.KeyHintStyle.Render("@") + tui.DimHelpStyle.Render(": files"),
		tui.KeyHintStyle.Render("^R") + tui.DimHelpStyle.Render(": sessions"),
	}
	return status + sep + strings.Join(hints, sep)
}

// streamingMessage returns the assistant message being streamed, if any.
func (m *Model) streamingMessage() (conversation.Message, bool) {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].IsStreaming {
			return m.messages[i], true
		}
	}
	return conversation.Message{}, false
}

func phaseLabel(msg conversation.Message) string {
	label := "Waiting..."
	switch msg.TurnPhase {
	case conversation.PhaseThinking:
		label = "Thinking..."
	case conversation.PhaseResponding:
		label = "Responding..."
	}
	if msg.Intent != "" {
		label += " " + tui.DimHelpStyle.Render(msg.Intent)
	}
	return label
}

func (m *Model) inputBox() string {
	style := tui.InputBoxStyle
	if m.esc.active {
		style = tui.EscWarningBoxStyle
	} else if m.history.IsBrowsing() {
		style = tui.HistoryBorderStyle
	}

	if m.showingSummary {
		summary := tui.DimHelpStyle.Render(fmt.Sprintf("[text input: %d lines] ", m.calculateVisualLines())) +
			"Enter: send | Backspace: clear"
		return style.Width(m.width - 4).Render(summary)
	}
	return style.Width(m.width - 4).Render(m.textarea.View())
}

// renderAutocomplete renders the inline picker.
func (m *Model) renderAutocomplete() string {
	var rows []string
	for i, item := range m.autocomplete.Items() {
		if item.Disabled && item.Kind != ItemCommand {
			style := tui.AutocompleteDisabledStyle
			if item.Kind == ItemError {
				style = tui.ErrorStyle
			}
			rows = append(rows, style.Render(item.Label))
			continue
		}

		label := item.Label
		if item.Kind == ItemCommand && item.Disabled {
			label = item.Usage
		}
		var line string
		if i == m.autocomplete.Index() && !item.Disabled {
			line = tui.AutocompleteSelectedStyle.Render("> " + label)
		} else {
			line = tui.AutocompleteItemStyle.Render(label)
		}
		if item.Meta != "" {
			line += " " + tui.AutocompleteMetaStyle.Render(item.Meta)
		}
		if item.Description != "" && item.Description != "." {
			line += " " + tui.AutocompleteDescStyle.Render(item.Description)
		}
		rows = append(rows, line)
	}
	return tui.AutocompleteBoxStyle.Render(strings.Join(rows, "\n"))
}

// wrapText wraps text to the specified width.
func (m *Model) wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	wrapped := lipgloss.NewStyle().Width(width).Render(text)
	return strings.TrimRight(wrapped, "\n")
}

// renderMarkdown renders content as markdown, falling back to plain text on
// error. Finished replies come from the renderer's cache.
func (m *Model) renderMarkdown(content string, width int, final bool) string {
	if m.mdRenderer == nil {
		return m.wrapText(content, width)
	}

	render := m.mdRenderer.Render
	if final {
		render = m.mdRenderer.RenderCached
	}
	rendered, err := render(content)
	if err != nil {
		return m.wrapText(content, width)
	}

	// glamour pads with newlines
	return strings.Trim(rendered, "\n")
}

// updateViewportContent renders the transcript snapshot into the viewport.
func (m *Model) updateViewportContent() {
	if !m.ready {
		return
	}
	contentWidth := m.width - 2
	if contentWidth < 10 {
		contentWidth = 80
	}

	var sb strings.Builder
	if m.banner && len(m.messages) == 0 {
		sb.WriteString(tui.BannerStyle.Render(bannerArt))
		sb.WriteString("\n")
		if m.version != "" {
			sb.WriteString(tui.HelpStyle.Render("  " + m.version))
		}
		sb.WriteString("\n\n")
	}

	for _, msg := range m.messages {
		switch msg.Role {
		case conversation.RoleUser:
			m.renderUser(&sb, msg, contentWidth)
		case conversation.RoleAssistant:
			m.renderAssistant(&sb, msg, contentWidth)
		default:
			m.renderSystem(&sb, msg, contentWidth)
		}
		sb.WriteString("\n\n")
	}

	m.viewport.SetContent(strings.TrimRight(sb.String(), "\n"))
	m.viewport.GotoBottom()
}

func (m *Model) renderUser(sb *strings.Builder, msg conversation.Message, width int) {
	sb.WriteString(tui.UserStyle.Render("You: "))
	sb.WriteString(m.wrapText(msg.Content, width-5))
	for _, a := range msg.Attachments {
		sb.WriteString("\n")
		sb.WriteString(tui.AttachmentStyle.Render(fmt.Sprintf("  + %s (%s)", a.DisplayName, humanize.Bytes(uint64(a.Size)))))
	}
}

func (m *Model) renderAssistant(sb *strings.Builder, msg conversation.Message, width int) {
	sb.WriteString(tui.AssistantStyle.Render("Assistant: "))

	// Reasoning is previewed until the answer starts
	if msg.IsStreaming && msg.Content == "" && msg.Reasoning != "" {
		sb.WriteString("\n")
		sb.WriteString(tui.ReasoningStyle.Render(m.wrapText(tailLines(msg.Reasoning, maxReasoningLines), width-2)))
		sb.WriteString("\n")
	}

	if msg.Content != "" {
		sb.WriteString(m.renderMarkdown(msg.Content, width-11, !msg.IsStreaming))
	}
	if msg.IsStreaming {
		sb.WriteString("▋")
		return
	}
	if msg.Usage != nil {
		sb.WriteString("\n")
		sb.WriteString(tui.UsageStyle.Render(formatUsage(*msg.Usage)))
	}
}

func (m *Model) renderSystem(sb *strings.Builder, msg conversation.Message, width int) {
	text := m.wrapText(msg.Content, width)
	switch msg.Kind {
	case conversation.KindError:
		sb.WriteString(tui.ErrorStyle.Render(text))
	case conversation.KindInfo:
		sb.WriteString(tui.InfoStyle.Render(text))
	default:
		sb.WriteString(tui.SystemStyle.Render("System: ") + text)
	}
}

// formatUsage summarizes the token accounting of one response.
func formatUsage(u sdk.Usage) string {
	var parts []string
	if u.Model != "" {
		parts = append(parts, u.Model)
	}
	parts = append(parts, fmt.Sprintf("%s in / %s out",
		humanize.Comma(int64(u.InputTokens)), humanize.Comma(int64(u.OutputTokens))))
	if u.CachedTokens > 0 {
		parts = append(parts, humanize.Comma(int64(u.CachedTokens))+" cached")
	}
	if u.Cost > 0 {
		parts = append(parts, fmt.Sprintf("$%.4f", u.Cost))
	}
	if u.Duration > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs", u.Duration.Seconds()))
	}
	return strings.Join(parts, " · ")
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
