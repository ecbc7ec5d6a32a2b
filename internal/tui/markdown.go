package tui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/vstratful/orchat/internal/config"
)

// maxRenderCache bounds the number of cached replies.
const maxRenderCache = 256

// MarkdownRenderer renders assistant replies with glamour. The transcript is
// re-rendered on every change, so finished replies are cached for the
// current width.
type MarkdownRenderer struct {
	renderer *glamour.TermRenderer
	style    string
	width    int
	cache    map[string]string
}

// NewMarkdownRenderer creates a renderer that wraps at width.
func NewMarkdownRenderer(width int) (*MarkdownRenderer, error) {
	m := &MarkdownRenderer{style: markdownStyle()}
	if err := m.SetWidth(width); err != nil {
		return nil, err
	}
	return m, nil
}

// markdownStyle picks a fixed glamour style. Auto-detection queries the
// terminal, which interferes with Bubble Tea's input handling.
func markdownStyle() string {
	if os.Getenv("NO_COLOR") != "" {
		return "notty"
	}
	return "dark"
}

// SetWidth changes the wrap width, dropping the cache when it changes.
func (m *MarkdownRenderer) SetWidth(width int) error {
	if width <= 0 {
		width = config.DefaultTerminalWidth
	}
	if m.renderer != nil && width == m.width {
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStylePath(m.style),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		return err
	}

	m.renderer = renderer
	m.width = width
	m.cache = make(map[string]string)
	return nil
}

// Width returns the current wrap width.
func (m *MarkdownRenderer) Width() int {
	return m.width
}

// Render renders content without caching. Use it for replies that are
// still streaming.
func (m *MarkdownRenderer) Render(content string) (string, error) {
	return m.renderer.Render(content)
}

// RenderCached renders content, reusing the previous result for the same
// content at the same width.
func (m *MarkdownRenderer) RenderCached(content string) (string, error) {
	if out, ok := m.cache[content]; ok {
		return out, nil
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return "", err
	}
	if len(m.cache) >= maxRenderCache {
		clear(m.cache)
	}
	m.cache[content] = out
	return out, nil
}
