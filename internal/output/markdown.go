package output

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// defaultWrap is the word-wrap width used when none is given.
const defaultWrap = 80

// Markdown renders a task description for the terminal. Without color the
// text is returned as written; a rendering failure falls back to it too.
func Markdown(text string, width int) string {
	if !colorEnabled {
		return text
	}
	if width <= 0 {
		width = defaultWrap
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}
