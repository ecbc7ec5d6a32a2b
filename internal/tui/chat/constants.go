package chat

import "time"

const (
	// maxPickerItems caps the rows shown by the inline picker.
	maxPickerItems = 8

	maxTextareaHeight = 5

	headerHeight = 1
	footerHeight = 1

	// maxReasoningLines is how much of the reasoning is shown while streaming.
	maxReasoningLines = 6

	indexingLabel    = "Indexing files..."
	indexFailedLabel = "File index unavailable"

	escDoublePress = 2 * time.Second
)
