// ABOUTME: Markup sanitization for syndicated text fields
// ABOUTME: Strips all tags from titles and keeps a safe tag subset in bodies and summaries

package sanitize

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// safePolicy is the tag subset allowed in stored bodies and summaries.
// Built once, bluemonday policies are safe for concurrent use afterwards.
func safePolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.RequireNoFollowOnLinks(false)
		p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("p", "span", "div", "figure", "pre", "code")
		p.AllowElements("figure", "figcaption")
		policy = p
	})
	return policy
}

// Safe returns s with every tag outside the safe subset removed.
// Scripts, styles, iframes, event handlers and javascript: URLs never survive.
func Safe(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(safePolicy().Sanitize(s))
}

// StripMarkup removes every tag from s and returns the decoded text with
// runs of whitespace collapsed. Script and style contents are dropped.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way the text so far is the result
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			if isRawText(z) {
				skip++
			}
		case html.EndTagToken:
			if isRawText(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isRawText(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}
