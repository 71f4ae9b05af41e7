// ABOUTME: SourceGroup model representing one upstream feed as a local grouping record
// ABOUTME: Tracks display metadata plus conditional request headers (ETag, Last-Modified)

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/harper/syndicate/internal/hash"
)

// SourceGroup is the local grouping entity for one feed URL.
type SourceGroup struct {
	ID            string     // Unique identifier for the record
	GroupKey      string     // Hash of the feed URL, stable forever
	FeedURL       string     // Feed URL the key was derived from
	DisplayName   string     // Markup-free feed title
	SourceLink    string     // Link to the syndicated site
	ETag          *string    // HTTP ETag header for conditional requests
	LastModified  *string    // HTTP Last-Modified header for conditional requests
	LastFetchedAt *time.Time // Timestamp of last successful fetch
	LastError     *string    // Last poll error message (if any)
	ErrorCount    int        // Consecutive poll failures
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewSourceGroup creates a group for feedURL with a generated ID and timestamps.
func NewSourceGroup(feedURL, displayName, sourceLink string) *SourceGroup {
	now := time.Now().UTC()
	return &SourceGroup{
		ID:          uuid.New().String(),
		GroupKey:    hash.GroupKey(feedURL),
		FeedURL:     feedURL,
		DisplayName: displayName,
		SourceLink:  sourceLink,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SetCacheHeaders updates the group's HTTP caching headers for conditional requests
func (g *SourceGroup) SetCacheHeaders(etag, lastModified string) {
	if etag != "" {
		g.ETag = &etag
	}
	if lastModified != "" {
		g.LastModified = &lastModified
	}
}

// Link returns the URL visitors should follow for this group.
func (g *SourceGroup) Link() string {
	if g.SourceLink != "" {
		return g.SourceLink
	}
	return g.FeedURL
}
