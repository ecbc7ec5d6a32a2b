package chat

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vstratful/orchat/internal/commands"
	"github.com/vstratful/orchat/internal/fileindex"
)

type fakeFiles struct {
	state fileindex.State
	files []string
	err   error
}

func (f *fakeFiles) Snapshot() (fileindex.State, []string, error) {
	return f.state, f.files, f.err
}

func testCommands() []commands.Command {
	return []commands.Command{
		{Name: "clear", Aliases: []string{"cls"}, Description: "Clear the conversation", Usage: "/clear"},
		{Name: "exit", Aliases: []string{"quit", "q"}, Description: "Exit", Usage: "/exit"},
		{Name: "help", Aliases: []string{"?"}, Description: "Show help", Usage: "/help"},
		{Name: "model", Description: "Switch model", Usage: "/model [name]"},
		{Name: "quiet", Description: "Mute notices", Usage: "/quiet"},
		{Name: "session", Description: "Manage sessions", Usage: "/session [list|new|resume <id>]"},
	}
}

func testFiles() *fakeFiles {
	return &fakeFiles{
		state: fileindex.StateReady,
		files: []string{
			"README.md",
			"cmd/root.go",
			"docs/my notes.md",
			"internal/chat/model.go",
			"internal/chat/update.go",
		},
	}
}

func labels(items []PickerItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Label
	}
	return out
}

func values(items []PickerItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Value
	}
	return out
}

func TestAutocompleteCommandMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		visible bool
		want    []string
	}{
		{"slash lists everything", "/", true, []string{"/clear", "/exit", "/help", "/model", "/quiet", "/session"}},
		{"name prefix", "/mo", true, []string{"/model"}},
		{"case insensitive", "/MO", true, []string{"/model"}},
		{"name before alias", "/qu", true, []string{"/quiet", "/exit"}},
		{"alias only", "/cls", true, []string{"/clear"}},
		{"exact match stays open", "/help", true, []string{"/help"}},
		{"no match", "/zzz", false, nil},
		{"double slash", "//", false, nil},
		{"arguments", "/help me", false, nil},
		{"not at start", "say /help", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAutocompleteState(testCommands(), nil)
			a.Update(tt.input)

			assert.Equal(t, tt.visible, a.Visible())
			if !tt.visible {
				return
			}
			assert.Equal(t, PickerCommand, a.Mode())
			assert.Equal(t, tt.want, labels(a.Items()))
		})
	}
}

func TestAutocompleteCommandItem(t *testing.T) {
	a := NewAutocompleteState(testCommands(), nil)
	a.Update("/ex")

	item, ok := a.Selected()
	require.True(t, ok)
	assert.Equal(t, PickerItem{
		ID:          "cmd:exit",
		Kind:        ItemCommand,
		Label:       "/exit",
		Value:       "exit",
		Description: "Exit",
		Meta:        "/quit, /q",
		Usage:       "/exit",
	}, item)
}

func TestAutocompleteCapsItems(t *testing.T) {
	var cmds []commands.Command
	for i := range 12 {
		cmds = append(cmds, commands.Command{Name: fmt.Sprintf("c%02d", i), Usage: "/x"})
	}
	a := NewAutocompleteState(cmds, nil)
	a.Update("/c")

	require.Len(t, a.Items(), maxPickerItems)
	assert.Equal(t, "/c00", a.Items()[0].Label)
	assert.Equal(t, "/c07", a.Items()[maxPickerItems-1].Label)
}

func TestAutocompleteNavigation(t *testing.T) {
	a := NewAutocompleteState(testCommands(), nil)
	a.Update("/")

	a.Up()
	assert.Equal(t, 0, a.Index())

	for range 10 {
		a.Down()
	}
	assert.Equal(t, len(a.Items())-1, a.Index())

	// Narrowing the list keeps the index in range
	a.Update("/he")
	assert.Equal(t, 0, a.Index())
	item, ok := a.Selected()
	require.True(t, ok)
	assert.Equal(t, "help", item.Value)
}

func TestAutocompleteFileMode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty query lists all files", "@", []string{
			"README.md", "cmd/root.go", "docs/my notes.md", "internal/chat/model.go", "internal/chat/update.go",
		}},
		{"matches base name", "see @mo", []string{"internal/chat/model.go"}},
		{"base name only", "@chat", nil},
		{"path query matches full path", "@chat/", []string{"internal/chat/model.go", "internal/chat/update.go"}},
		{"backslash separators", `@chat\up`, []string{"internal/chat/update.go"}},
		{"case insensitive", "@readme", []string{"README.md"}},
		{"double quoted", `@"my no`, []string{"docs/my notes.md"}},
		{"single quoted", `@'my`, []string{"docs/my notes.md"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAutocompleteState(testCommands(), testFiles())
			a.Update(tt.input)

			if tt.want == nil {
				assert.False(t, a.Visible())
				return
			}
			require.True(t, a.Visible())
			assert.Equal(t, PickerFile, a.Mode())
			assert.Equal(t, tt.want, values(a.Items()))
		})
	}
}

func TestAutocompleteFileItem(t *testing.T) {
	a := NewAutocompleteState(nil, testFiles())
	a.Update("@update")

	item, ok := a.Selected()
	require.True(t, ok)
	assert.Equal(t, ItemFile, item.Kind)
	assert.Equal(t, "update.go", item.Label)
	assert.Equal(t, "internal/chat", item.Description)
}

func TestAutocompleteMentionDetection(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		visible   bool
		start     int
		quote     byte
		wantQuery string
	}{
		{"start of input", "@mod", true, 0, 0, "mod"},
		{"after text", "look at @mod", true, 8, 0, "mod"},
		{"after newline", "x\n@mod", true, 2, 0, "mod"},
		{"double quote", `read @"my no`, true, 5, '"', "my no"},
		{"single quote", `read @'my`, true, 5, '\'', "my"},
		{"email address", "mail a@b", false, 0, 0, ""},
		{"completed mention", "@model.go ", false, 0, 0, ""},
		{"closed quote", `@"my notes.md"`, false, 0, 0, ""},
		{"last mention wins", "@cmd/root.go and @REA", true, 17, 0, "REA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAutocompleteState(nil, testFiles())
			a.Update(tt.input)

			require.Equal(t, tt.visible, a.Visible())
			if !tt.visible {
				return
			}
			start, quote := a.MentionStart()
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.quote, quote)
			assert.Equal(t, tt.wantQuery, a.Query())
		})
	}
}

func TestAutocompleteIndexStates(t *testing.T) {
	t.Run("building", func(t *testing.T) {
		files := &fakeFiles{state: fileindex.StateBuilding}
		a := NewAutocompleteState(nil, files)
		a.Update("@x")

		require.True(t, a.Visible())
		require.Len(t, a.Items(), 1)
		item := a.Items()[0]
		assert.Equal(t, ItemPlaceholder, item.Kind)
		assert.Equal(t, indexingLabel, item.Label)
		assert.True(t, item.Disabled)

		_, ok := a.Apply("@x")
		assert.False(t, ok)

		// Refresh picks up the finished index
		files.state = fileindex.StateReady
		files.files = []string{"x.go"}
		a.Refresh()
		assert.Equal(t, []string{"x.go"}, values(a.Items()))
	})

	t.Run("failed", func(t *testing.T) {
		a := NewAutocompleteState(nil, &fakeFiles{state: fileindex.StateFailed, err: errors.New("permission denied")})
		a.Update("@x")

		require.Len(t, a.Items(), 1)
		item := a.Items()[0]
		assert.Equal(t, ItemError, item.Kind)
		assert.Equal(t, indexFailedLabel+": permission denied", item.Label)
		assert.True(t, item.Disabled)
	})

	t.Run("no source", func(t *testing.T) {
		a := NewAutocompleteState(nil, nil)
		a.Update("@x")
		assert.False(t, a.Visible())
	})
}

func TestAutocompleteApplyCommandWithoutArgs(t *testing.T) {
	a := NewAutocompleteState(testCommands(), nil)
	a.Update("/he")

	sel, ok := a.Apply("/he")
	require.True(t, ok)
	assert.Equal(t, Selection{Input: "/help", Execute: true}, sel)
	assert.False(t, a.Visible())
}

func TestAutocompleteApplyCommandWithArgs(t *testing.T) {
	a := NewAutocompleteState(testCommands(), nil)
	a.Update("/mo")

	sel, ok := a.Apply("/mo")
	require.True(t, ok)
	assert.Equal(t, Selection{Input: "/model "}, sel)

	// The change caused by the selection is not re-detected
	a.Update("/model ")
	require.True(t, a.Visible())
	require.Len(t, a.Items(), 1)
	assert.True(t, a.Items()[0].Disabled)
	assert.Equal(t, "/model [name]", a.Items()[0].Usage)

	// Typing the argument keeps the hint
	a.Update("/model gpt-4")
	assert.True(t, a.Visible())
	_, ok = a.Apply("/model gpt-4")
	assert.False(t, ok, "the usage hint is not selectable")

	// A second argument closes it
	a.Update("/model gpt-4 extra")
	assert.False(t, a.Visible())
}

func TestAutocompleteScopeEndsWhenPrefixChanges(t *testing.T) {
	a := NewAutocompleteState(testCommands(), nil)
	a.Update("/se")
	_, ok := a.Apply("/se")
	require.True(t, ok)
	a.Update("/session ")

	a.Update("/sess")
	require.True(t, a.Visible())
	assert.False(t, a.Items()[0].Disabled)
	assert.Equal(t, "/session", a.Items()[0].Label)
}

func TestAutocompleteApplyFile(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "see @mo", "see @internal/chat/model.go "},
		{"quotes paths with spaces", "read @my", `read @"docs/my notes.md" `},
		{"replaces open quote", `read @"my no`, `read @"docs/my notes.md" `},
		{"keeps earlier text", "@cmd/root.go vs @up", "@cmd/root.go vs @internal/chat/update.go "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAutocompleteState(nil, testFiles())
			a.Update(tt.input)

			sel, ok := a.Apply(tt.input)
			require.True(t, ok)
			assert.Equal(t, tt.want, sel.Input)
			assert.False(t, sel.Execute)
			assert.False(t, a.Visible())

			a.Update(sel.Input)
			assert.False(t, a.Visible())
		})
	}
}

func TestAutocompleteSuppressesOnlyOnce(t *testing.T) {
	a := NewAutocompleteState(nil, testFiles())
	a.Update("@mo")
	sel, ok := a.Apply("@mo")
	require.True(t, ok)

	a.Update(sel.Input)
	assert.False(t, a.Visible())

	a.Update(sel.Input + "@REA")
	assert.True(t, a.Visible())
	assert.Equal(t, []string{"README.md"}, values(a.Items()))
}

func TestAutocompleteHide(t *testing.T) {
	a := NewAutocompleteState(testCommands(), nil)
	a.Update("/")
	a.Down()
	a.Hide()

	assert.False(t, a.Visible())
	assert.Equal(t, PickerNone, a.Mode())
	assert.Equal(t, 0, a.Index())
	_, ok := a.Selected()
	assert.False(t, ok)
}
