// Package tui holds the styles and renderers shared by the chat view and
// the pickers.
package tui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
)

// Palette. ANSI indexes follow the terminal theme; hex values are fixed.
const (
	colorGreen   = lipgloss.Color("2")
	colorBlue    = lipgloss.Color("4")
	colorRed     = lipgloss.Color("1")
	colorMagenta = lipgloss.Color("5")
	colorCyan    = lipgloss.Color("6")
	colorAccent  = lipgloss.Color("62")
	colorBorder  = lipgloss.Color("63")
	colorPink    = lipgloss.Color("170")
	colorMuted   = lipgloss.Color("241")
	colorDim     = lipgloss.Color("243")
	colorFaint   = lipgloss.Color("245")
	colorCoral   = lipgloss.Color("#FF6B6B")
	colorLilac   = lipgloss.Color("#A78BFA")
	colorMint    = lipgloss.Color("#6EE7B7")
)

func boxed(border lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)
}

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

// Transcript
var (
	UserStyle       = fg(colorGreen).Bold(true)
	AssistantStyle  = fg(colorBlue).Bold(true)
	SystemStyle     = fg(colorMagenta).Bold(true)
	ErrorStyle      = fg(colorRed)
	InfoStyle       = fg(colorCyan)
	ReasoningStyle  = fg(colorDim).Italic(true)
	AttachmentStyle = fg(colorFaint)
	UsageStyle      = fg(colorMuted)
	BannerStyle     = fg(colorAccent).Bold(true)
)

// Input area and hints
var (
	InputBoxStyle      = boxed(colorAccent)
	HistoryBorderStyle = boxed(colorLilac)
	EscWarningBoxStyle = boxed(colorCoral)

	HelpStyle        = fg(colorMuted)
	DimHelpStyle     = fg(colorDim)
	KeyHintStyle     = fg(colorMint).Bold(true)
	EscWarningStyle  = fg(colorCoral).Bold(true)
	HistoryModeStyle = fg(colorLilac).Italic(true)
)

// Inline completion popup
var (
	AutocompleteBoxStyle      = boxed(colorBorder)
	AutocompleteItemStyle     = lipgloss.NewStyle().PaddingLeft(2)
	AutocompleteSelectedStyle = fg(colorPink)
	AutocompleteDescStyle     = fg(colorMuted)
	AutocompleteMetaStyle     = fg(colorLilac)
	AutocompleteDisabledStyle = fg(colorDim).Italic(true)
)

// Overlay pickers
var (
	TitleStyle        = lipgloss.NewStyle().MarginLeft(2)
	ItemStyle         = lipgloss.NewStyle().PaddingLeft(4)
	SelectedItemStyle = fg(colorPink).PaddingLeft(2)
	PaginationStyle   = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	HelpListStyle     = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
)
