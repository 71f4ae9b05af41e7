// ABOUTME: SyndicatedItem model for a local record mirroring one upstream feed item
// ABOUTME: Defines the Published/Expired/LocallySuppressed states and the mirrored field set

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harper/syndicate/internal/hash"
)

// State is the lifecycle state of a SyndicatedItem.
type State string

const (
	StatePublished  State = "published"
	StateExpired    State = "expired"
	StateSuppressed State = "suppressed"
)

// TrashedSuffix marks the slug of a locally trashed record.
const TrashedSuffix = "__trashed"

// ParseState converts a stored or user supplied string into a State.
func ParseState(s string) (State, error) {
	switch State(strings.ToLower(strings.TrimSpace(s))) {
	case StatePublished:
		return StatePublished, nil
	case StateExpired:
		return StateExpired, nil
	case StateSuppressed, "suppressed_locally", "draft", "trash":
		return StateSuppressed, nil
	default:
		return "", fmt.Errorf("unknown state %q", s)
	}
}

func (s State) String() string { return string(s) }

// SyndicatedItem is one upstream item mirrored into the local store.
type SyndicatedItem struct {
	ID              string
	ItemKey         string // Hash of SourceGUID
	Slug            string // ItemKey, or ItemKey+TrashedSuffix once trashed locally
	GroupKey        string
	State           State
	Title           string
	Body            string
	Summary         string
	SourcePermalink string
	SourceGUID      string
	PublishedAt     time.Time // Set at creation, never changed by re-sync
	CreatedAt       time.Time
	ModifiedAt      time.Time // Last write of any kind
}

// NewSyndicatedItem creates a Published record for guid in groupKey.
func NewSyndicatedItem(groupKey, guid string, fields ItemFields, publishedAt, now time.Time) *SyndicatedItem {
	key := hash.ItemKey(guid)
	return &SyndicatedItem{
		ID:              uuid.New().String(),
		ItemKey:         key,
		Slug:            key,
		GroupKey:        groupKey,
		State:           StatePublished,
		Title:           fields.Title,
		Body:            fields.Body,
		Summary:         fields.Summary,
		SourcePermalink: fields.SourcePermalink,
		SourceGUID:      guid,
		PublishedAt:     publishedAt,
		CreatedAt:       now,
		ModifiedAt:      now,
	}
}

// Fields returns the mirrored content of the record.
func (i *SyndicatedItem) Fields() ItemFields {
	return ItemFields{
		Title:           i.Title,
		Body:            i.Body,
		Summary:         i.Summary,
		SourcePermalink: i.SourcePermalink,
	}
}

// Apply copies fields onto the record.
func (i *SyndicatedItem) Apply(f ItemFields) {
	i.Title = f.Title
	i.Body = f.Body
	i.Summary = f.Summary
	i.SourcePermalink = f.SourcePermalink
}

// Link returns the URL a visitor should be sent to for this record.
// Syndicated records always point back at the source.
func (i *SyndicatedItem) Link() string {
	return i.SourcePermalink
}

// PrefixedTitle returns the title prefixed with the name of its source,
// the form used in outgoing feeds and listings.
func PrefixedTitle(groupName, title string) string {
	if groupName == "" {
		return title
	}
	return groupName + ": " + title
}

// TrashedSlug returns the slug a locally trashed record is stored under.
func TrashedSlug(itemKey string) string {
	return itemKey + TrashedSuffix
}
