package format

import (
	"fmt"
	"strings"
)

// PageBlock renders one page as "--- Page n ---" followed by its text.
// Trailing newlines of text are trimmed and a single one re-added; a page
// without text renders as the header line alone.
func PageBlock(pageNumber int, text string) string {
	body := strings.TrimRight(text, "\n")
	if body == "" {
		return fmt.Sprintf("--- Page %d ---\n", pageNumber)
	}
	return fmt.Sprintf("--- Page %d ---\n%s\n", pageNumber, body)
}

// Combine joins page blocks with a newline, trims surrounding whitespace and
// terminates the document with exactly one newline.
func Combine(blocks []string) string {
	return strings.TrimSpace(strings.Join(blocks, "\n")) + "\n"
}
