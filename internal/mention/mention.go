// Package mention resolves @path references in chat input into file
// attachments.
package mention

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vstratful/orchat/internal/sdk"
)

// trailingPunct is stripped from unquoted mentions so "see @a.txt." works.
const trailingPunct = "),.;:!?"

// mentionPattern matches @"quoted", @'quoted' or @unquoted at the start of
// the text or after whitespace.
var mentionPattern = regexp.MustCompile(`(?:^|\s)@(?:"([^"]*)"|'([^']*)'|(\S+))`)

// Result is the outcome of Resolve. Errors are user-facing strings, one per
// mention that could not be attached.
type Result struct {
	Attachments []sdk.Attachment
	Errors      []string
}

// Extract returns the mention values in text, in order of appearance, with
// quotes removed and trailing punctuation stripped from unquoted values.
func Extract(text string) []string {
	var values []string
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		var value string
		switch {
		case m[1] != "":
			value = m[1]
		case m[2] != "":
			value = m[2]
		default:
			value = strings.TrimRight(m[3], trailingPunct)
		}
		if value != "" {
			values = append(values, value)
		}
	}
	return values
}

// Resolve extracts mentions from text and stats each one relative to baseDir.
// Files larger than maxBytes are rejected; maxBytes <= 0 disables the cap.
// A failing mention never prevents the others from resolving.
func Resolve(text, baseDir string, maxBytes int64) Result {
	var res Result
	seen := make(map[string]bool)

	for _, value := range Extract(text) {
		path := absPath(value, baseDir)
		if seen[path] {
			continue
		}
		seen[path] = true

		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				res.Errors = append(res.Errors, fmt.Sprintf("@%s was not found", value))
			} else {
				res.Errors = append(res.Errors, fmt.Sprintf("@%s could not be read: %v", value, err))
			}
			continue
		}
		if !info.Mode().IsRegular() {
			res.Errors = append(res.Errors, fmt.Sprintf("@%s is not a file", value))
			continue
		}
		if maxBytes > 0 && info.Size() > maxBytes {
			res.Errors = append(res.Errors, fmt.Sprintf("@%s is too large (%d bytes, max %d)", value, info.Size(), maxBytes))
			continue
		}

		res.Attachments = append(res.Attachments, sdk.Attachment{
			Path:        path,
			DisplayName: filepath.Base(path),
			Size:        info.Size(),
		})
	}

	return res
}

func absPath(value, baseDir string) string {
	if value == "~" || strings.HasPrefix(value, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			value = filepath.Join(home, strings.TrimPrefix(value, "~"))
		}
	}
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Join(baseDir, value)
}

// Quote formats path for insertion after an @, quoting it when it contains
// whitespace.
func Quote(path string) string {
	if !strings.ContainsAny(path, " \t") {
		return path
	}
	if strings.Contains(path, `"`) {
		return "'" + path + "'"
	}
	return `"` + path + `"`
}
