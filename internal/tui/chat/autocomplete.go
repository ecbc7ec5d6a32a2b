package chat

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/vstratful/orchat/internal/commands"
	"github.com/vstratful/orchat/internal/fileindex"
	"github.com/vstratful/orchat/internal/mention"
)

// PickerMode is what the inline picker is completing.
type PickerMode int

const (
	PickerNone PickerMode = iota
	PickerCommand
	PickerFile
)

// ItemKind distinguishes selectable items from informational ones.
type ItemKind int

const (
	ItemCommand ItemKind = iota
	ItemFile
	ItemPlaceholder
	ItemError
)

// PickerItem is one row of the inline picker.
type PickerItem struct {
	ID          string
	Kind        ItemKind
	Label       string
	Value       string
	Description string
	Meta        string
	Usage       string
	Disabled    bool
}

// FileSource provides the files offered after an @.
type FileSource interface {
	Snapshot() (fileindex.State, []string, error)
}

// Selection is the result of applying the highlighted item.
type Selection struct {
	// Input is the new input text.
	Input string

	// Execute is set when the input should be submitted right away.
	Execute bool
}

var (
	commandPattern = regexp.MustCompile(`^/([^/\s]\S*)?$`)
	mentionPattern = regexp.MustCompile(`(?:^|\s)@(?:"([^"]*)|'([^']*)|([^\s"']\S*))?$`)
)

// AutocompleteState is the inline command and file picker. It is recomputed
// from the input text on every change.
type AutocompleteState struct {
	commands []commands.Command
	files    FileSource

	visible bool
	mode    PickerMode
	query   string
	index   int
	items   []PickerItem

	// mentionStart is the byte offset of the @ being completed.
	mentionStart int
	quote        byte

	// scoped is the command whose arguments are being typed.
	scoped string

	// suppress holds the input produced by the last selection. The change
	// event it causes is not re-detected.
	suppress    string
	suppressSet bool
}

// NewAutocompleteState creates a picker over cmds and files. files may be nil.
func NewAutocompleteState(cmds []commands.Command, files FileSource) *AutocompleteState {
	return &AutocompleteState{
		commands: cmds,
		files:    files,
	}
}

// Update recomputes the picker for input.
func (a *AutocompleteState) Update(input string) {
	if a.suppressSet {
		a.suppressSet = false
		if input == a.suppress {
			return
		}
	}

	if a.scoped != "" {
		prefix := "/" + a.scoped + " "
		if rest, ok := strings.CutPrefix(input, prefix); ok && !strings.ContainsAny(rest, " \t") {
			return
		}
		a.scoped = ""
	}

	if m := commandPattern.FindStringSubmatch(input); m != nil {
		a.setItems(PickerCommand, m[1], a.filterCommands(m[1]))
		return
	}

	if loc := mentionPattern.FindStringSubmatchIndex(input); loc != nil {
		start := loc[0]
		if input[start] != '@' {
			start++
		}
		a.mentionStart = start
		a.quote = 0
		var query string
		switch {
		case loc[2] >= 0:
			a.quote = '"'
			query = input[loc[2]:loc[3]]
		case loc[4] >= 0:
			a.quote = '\''
			query = input[loc[4]:loc[5]]
		case loc[6] >= 0:
			query = input[loc[6]:loc[7]]
		}
		a.setItems(PickerFile, query, a.filterFiles(query))
		return
	}

	a.Hide()
}

// Refresh recomputes the items for the current query, e.g. after the file
// index changed.
func (a *AutocompleteState) Refresh() {
	if a.scoped != "" {
		return
	}
	switch a.mode {
	case PickerCommand:
		a.setItems(PickerCommand, a.query, a.filterCommands(a.query))
	case PickerFile:
		a.setItems(PickerFile, a.query, a.filterFiles(a.query))
	}
}

func (a *AutocompleteState) setItems(mode PickerMode, query string, items []PickerItem) {
	a.mode = mode
	a.query = query
	a.items = items
	a.visible = len(items) > 0
	if a.index >= len(items) {
		a.index = max(0, len(items)-1)
	}
}

// filterCommands ranks commands whose name or an alias starts with query:
// name matches first, then alias matches, alphabetical within each.
func (a *AutocompleteState) filterCommands(query string) []PickerItem {
	query = strings.ToLower(query)

	type ranked struct {
		cmd  commands.Command
		rank int
	}
	var matches []ranked
	for _, cmd := range a.commands {
		rank := -1
		if strings.HasPrefix(cmd.Name, query) {
			rank = 0
		} else {
			for _, alias := range cmd.Aliases {
				if strings.HasPrefix(alias, query) {
					rank = 1
					break
				}
			}
		}
		if rank >= 0 {
			matches = append(matches, ranked{cmd, rank})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].rank != matches[j].rank {
			return matches[i].rank < matches[j].rank
		}
		return matches[i].cmd.Name < matches[j].cmd.Name
	})

	items := make([]PickerItem, 0, min(len(matches), maxPickerItems))
	for _, m := range matches {
		if len(items) == maxPickerItems {
			break
		}
		items = append(items, commandItem(m.cmd))
	}
	return items
}

func commandItem(cmd commands.Command) PickerItem {
	var meta string
	if len(cmd.Aliases) > 0 {
		meta = "/" + strings.Join(cmd.Aliases, ", /")
	}
	return PickerItem{
		ID:          "cmd:" + cmd.Name,
		Kind:        ItemCommand,
		Label:       "/" + cmd.Name,
		Value:       cmd.Name,
		Description: cmd.Description,
		Meta:        meta,
		Usage:       cmd.Usage,
	}
}

// filterFiles matches query against the full path when it contains a
// separator and against the base name otherwise.
func (a *AutocompleteState) filterFiles(query string) []PickerItem {
	if a.files == nil {
		return nil
	}
	state, files, err := a.files.Snapshot()
	switch state {
	case fileindex.StateBuilding:
		return []PickerItem{{ID: "placeholder", Kind: ItemPlaceholder, Label: indexingLabel, Disabled: true}}
	case fileindex.StateFailed:
		label := indexFailedLabel
		if err != nil {
			label += ": " + err.Error()
		}
		return []PickerItem{{ID: "error", Kind: ItemError, Label: label, Disabled: true}}
	}

	q := strings.ToLower(strings.ReplaceAll(query, `\`, "/"))
	full := strings.Contains(q, "/")

	var matched []string
	for _, f := range files {
		target := f
		if !full {
			target = path.Base(f)
		}
		if strings.Contains(strings.ToLower(target), q) {
			matched = append(matched, f)
		}
	}
	sort.Strings(matched)

	items := make([]PickerItem, 0, min(len(matched), maxPickerItems))
	for _, f := range matched {
		if len(items) == maxPickerItems {
			break
		}
		items = append(items, PickerItem{
			ID:          "file:" + f,
			Kind:        ItemFile,
			Label:       path.Base(f),
			Value:       f,
			Description: path.Dir(f),
		})
	}
	return items
}

// Apply applies the highlighted item to input. It returns false when there
// is nothing selectable.
func (a *AutocompleteState) Apply(input string) (Selection, bool) {
	item, ok := a.Selected()
	if !ok || item.Disabled {
		return Selection{}, false
	}

	switch item.Kind {
	case ItemCommand:
		var cmd commands.Command
		for _, c := range a.commands {
			if c.Name == item.Value {
				cmd = c
				break
			}
		}
		if cmd.TakesArgs() {
			next := "/" + cmd.Name + " "
			a.scoped = cmd.Name
			a.mode = PickerCommand
			a.items = []PickerItem{commandItem(cmd)}
			a.items[0].Disabled = true
			a.index = 0
			a.visible = true
			a.suppressNext(next)
			return Selection{Input: next}, true
		}
		a.Hide()
		a.suppressNext("")
		return Selection{Input: "/" + cmd.Name, Execute: true}, true

	case ItemFile:
		if a.mentionStart > len(input) {
			return Selection{}, false
		}
		next := input[:a.mentionStart] + "@" + mention.Quote(item.Value) + " "
		a.Hide()
		a.suppressNext(next)
		return Selection{Input: next}, true
	}
	return Selection{}, false
}

func (a *AutocompleteState) suppressNext(input string) {
	a.suppress = input
	a.suppressSet = true
}

// Visible returns whether the picker is showing.
func (a *AutocompleteState) Visible() bool {
	return a.visible
}

// Hide closes the picker.
func (a *AutocompleteState) Hide() {
	a.visible = false
	a.mode = PickerNone
	a.items = nil
	a.index = 0
	a.scoped = ""
}

// Up moves the selection up.
func (a *AutocompleteState) Up() {
	if a.index > 0 {
		a.index--
	}
}

// Down moves the selection down.
func (a *AutocompleteState) Down() {
	if a.index < len(a.items)-1 {
		a.index++
	}
}

// Selected returns the highlighted item.
func (a *AutocompleteState) Selected() (PickerItem, bool) {
	if !a.visible || a.index >= len(a.items) {
		return PickerItem{}, false
	}
	return a.items[a.index], true
}

// Index returns the current selection index.
func (a *AutocompleteState) Index() int {
	return a.index
}

// Items returns the items on display.
func (a *AutocompleteState) Items() []PickerItem {
	return a.items
}

// Mode returns what the picker is completing.
func (a *AutocompleteState) Mode() PickerMode {
	return a.mode
}

// Query returns the text being matched.
func (a *AutocompleteState) Query() string {
	return a.query
}

// MentionStart returns the offset of the @ being completed and the open
// quote character, if any.
func (a *AutocompleteState) MentionStart() (int, byte) {
	return a.mentionStart, a.quote
}
