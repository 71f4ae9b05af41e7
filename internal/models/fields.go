// ABOUTME: ItemFields, the content set mirrored from upstream onto a SyndicatedItem
// ABOUTME: Used for change detection and partial updates

package models

import "time"

// Field names used in partial updates.
const (
	FieldTitle     = "title"
	FieldBody      = "body"
	FieldSummary   = "summary"
	FieldPermalink = "source_permalink"
)

// ItemFields holds the mirrored content of one item.
type ItemFields struct {
	Title           string
	Body            string
	Summary         string
	SourcePermalink string
}

// Equal reports whether every mirrored field matches.
func (f ItemFields) Equal(o ItemFields) bool {
	return len(f.Diff(o)) == 0
}

// Diff returns the names of fields whose value in o differs from f.
func (f ItemFields) Diff(o ItemFields) []string {
	var changed []string
	if f.Title != o.Title {
		changed = append(changed, FieldTitle)
	}
	if f.Body != o.Body {
		changed = append(changed, FieldBody)
	}
	if f.Summary != o.Summary {
		changed = append(changed, FieldSummary)
	}
	if f.SourcePermalink != o.SourcePermalink {
		changed = append(changed, FieldPermalink)
	}
	return changed
}

// UpstreamItem is one parsed entry of a fetched feed.
type UpstreamItem struct {
	GUID        string
	Title       string
	Description string
	Content     string
	Permalink   string
	Date        *time.Time
}
