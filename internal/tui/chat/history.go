package chat

// maxHistory bounds the entries kept for navigation.
const maxHistory = 1000

// HistoryNavigator walks the prompts submitted in the current session.
type HistoryNavigator struct {
	entries []string

	// index is the entry on display, -1 while not browsing.
	index int

	// draft is the input typed before browsing started.
	draft string
}

// NewHistoryNavigator creates an empty HistoryNavigator.
func NewHistoryNavigator() *HistoryNavigator {
	return &HistoryNavigator{index: -1}
}

// SetHistory replaces the entries, e.g. after switching sessions. The slice
// is copied and consecutive duplicates are collapsed.
func (h *HistoryNavigator) SetHistory(entries []string) {
	h.entries = nil
	h.Reset()
	for _, e := range entries {
		h.Add(e)
	}
}

// IsBrowsing reports whether an entry is on display.
func (h *HistoryNavigator) IsBrowsing() bool {
	return h.index >= 0
}

// Index returns the position on display, -1 while not browsing.
func (h *HistoryNavigator) Index() int {
	return h.index
}

// HistoryLen returns the number of entries.
func (h *HistoryNavigator) HistoryLen() int {
	return len(h.entries)
}

// Up moves to an older entry and returns it. The first press saves
// currentInput as the draft. It returns "" when there is no history.
func (h *HistoryNavigator) Up(currentInput string) string {
	if len(h.entries) == 0 {
		return ""
	}

	switch {
	case h.index == -1:
		h.draft = currentInput
		h.index = len(h.entries) - 1
	case h.index > 0:
		h.index--
	}
	return h.entries[h.index]
}

// Down moves to a newer entry and returns it. Moving past the newest entry
// stops browsing and returns the draft.
func (h *HistoryNavigator) Down() string {
	if h.index == -1 {
		return ""
	}

	if h.index < len(h.entries)-1 {
		h.index++
		return h.entries[h.index]
	}

	draft := h.draft
	h.Reset()
	return draft
}

// Reset stops browsing and drops the draft.
func (h *HistoryNavigator) Reset() {
	h.index = -1
	h.draft = ""
}

// Add appends entry unless it repeats the newest one.
func (h *HistoryNavigator) Add(entry string) {
	if entry == "" {
		return
	}
	if n := len(h.entries); n > 0 && h.entries[n-1] == entry {
		return
	}
	h.entries = append(h.entries, entry)
	if len(h.entries) > maxHistory {
		h.entries = h.entries[len(h.entries)-maxHistory:]
	}
}
