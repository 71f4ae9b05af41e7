// ABOUTME: Markdown rendering of stored bodies and summaries for terminal and agent output
// ABOUTME: Converts the safe tag subset kept by Safe directly, falling back to stripped text

package sanitize

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Markdown converts a stored body or summary to Markdown. Input is expected
// to be the output of Safe, so it is always treated as HTML: entities are
// decoded and figure captions, links and emphasis carry over.
func Markdown(stored string) string {
	if strings.TrimSpace(stored) == "" {
		return ""
	}

	markdown, err := htmltomarkdown.ConvertString(stored)
	if err != nil {
		return StripMarkup(stored)
	}
	return strings.TrimSpace(markdown)
}
