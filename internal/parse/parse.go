// ABOUTME: RSS/Atom feed parsing using gofeed library
// ABOUTME: Converts gofeed.Feed into upstream items with stable GUIDs and normalized dates

package parse

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/harper/syndicate/internal/models"
)

// Feed is a parsed upstream document.
type Feed struct {
	Title   string
	Link    string
	Items   []models.UpstreamItem
	Dropped int // Items with neither GUID nor link
}

// Error is a payload that could not be parsed as RSS or Atom.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("parse feed: %v", e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Parse parses RSS or Atom feed data. Item order follows the document.
// Items without a GUID fall back to their link; items with neither are dropped.
func Parse(data []byte) (*Feed, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &Error{Err: fmt.Errorf("empty document")}
	}

	parser := gofeed.NewParser()
	feed, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Err: err}
	}

	parsed := &Feed{
		Title: strings.TrimSpace(feed.Title),
		Link:  strings.TrimSpace(feed.Link),
		Items: make([]models.UpstreamItem, 0, len(feed.Items)),
	}

	for _, item := range feed.Items {
		guid := strings.TrimSpace(item.GUID)
		link := strings.TrimSpace(item.Link)
		if guid == "" {
			guid = link
		}
		if guid == "" {
			parsed.Dropped++
			continue
		}

		parsed.Items = append(parsed.Items, models.UpstreamItem{
			GUID:        guid,
			Title:       strings.TrimSpace(item.Title),
			Description: strings.TrimSpace(item.Description),
			Content:     strings.TrimSpace(item.Content),
			Permalink:   link,
			Date:        itemDate(item),
		})
	}

	return parsed, nil
}

// itemDate prefers the published date and falls back to the updated date.
func itemDate(item *gofeed.Item) *time.Time {
	var t *time.Time
	switch {
	case item.PublishedParsed != nil:
		t = item.PublishedParsed
	case item.UpdatedParsed != nil:
		t = item.UpdatedParsed
	default:
		return nil
	}
	utc := t.UTC()
	return &utc
}
