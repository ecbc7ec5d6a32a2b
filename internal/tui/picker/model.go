package picker

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/dustin/go-humanize"
	"github.com/vstratful/orchat/internal/sdk"
)

const (
	modelsTitle = "Select a model"
	noModels    = "No chat models available."
)

// FormatPricePerMillion turns a USD per-token price string into a price per
// million tokens. Sub-cent prices keep four decimals; strings that do not
// parse, and zero, come back unchanged.
func FormatPricePerMillion(perToken string) string {
	price, err := strconv.ParseFloat(perToken, 64)
	if err != nil || price == 0 {
		return perToken
	}
	perMillion := price * 1e6
	if math.Round(perMillion*100) == 0 {
		return strconv.FormatFloat(perMillion, 'f', 4, 64)
	}
	return strconv.FormatFloat(perMillion, 'f', 2, 64)
}

// ModelItem is a model row. Current marks the active session's model.
type ModelItem struct {
	Model   sdk.ModelInfo
	Current bool
}

func (i ModelItem) Title() string {
	if i.Current {
		return i.Model.ID + " (current)"
	}
	return i.Model.ID
}

// Description lists the display name, context size and pricing, whichever
// are known.
func (i ModelItem) Description() string {
	m := i.Model
	var parts []string
	if m.Name != "" && m.Name != m.ID {
		parts = append(parts, m.Name)
	}
	if m.ContextLength > 0 {
		parts = append(parts, contextSize(m.ContextLength)+" ctx")
	}
	if m.PromptPrice != "" || m.CompletionPrice != "" {
		parts = append(parts, fmt.Sprintf("$%s/$%s per 1M tokens",
			FormatPricePerMillion(m.PromptPrice), FormatPricePerMillion(m.CompletionPrice)))
	}
	return strings.Join(parts, " | ")
}

// contextSize abbreviates a token count: 128000 is "128k", 1048576 is "1M".
func contextSize(tokens int) string {
	switch {
	case tokens >= 1_000_000:
		return humanize.FtoaWithDigits(float64(tokens)/1e6, 1) + "M"
	case tokens >= 1000:
		return strconv.Itoa(tokens/1000) + "k"
	}
	return strconv.Itoa(tokens)
}

func (i ModelItem) FilterValue() string {
	return i.Model.ID + " " + i.Model.Name
}

// NewModelPicker creates a model picker that waits for SetModels.
func NewModelPicker(width, height int) Model {
	return NewLoading("Loading models...", width, height)
}

// SetModels fills the picker and puts the cursor on the current model.
func SetModels(m *Model, models []sdk.ModelInfo, current string) {
	items := make([]list.Item, len(models))
	cursor := 0
	for i, model := range models {
		items[i] = ModelItem{Model: model, Current: model.ID == current}
		if model.ID == current {
			cursor = i
		}
	}
	m.SetItems(modelsTitle, items)
	m.Empty = noModels
	m.List.Select(cursor)
}

// GetModel returns the model behind a selected item, or nil.
func GetModel(item list.Item) *sdk.ModelInfo {
	if mi, ok := item.(ModelItem); ok {
		return &mi.Model
	}
	return nil
}
