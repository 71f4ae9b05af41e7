// ABOUTME: FeedConfig describing one registered feed and its ingest/display flags
// ABOUTME: Supplied by the registry on every poll and never persisted by the core

package models

import "github.com/harper/syndicate/internal/hash"

// FeedConfig is the registry entry for one upstream feed.
type FeedConfig struct {
	Title    string `yaml:"title" validate:"required"`
	FeedURL  string `yaml:"feed_url" validate:"required,url"`
	SiteLink string `yaml:"site_link" validate:"required,url"`
	Ingest   bool   `yaml:"ingest"`
	Display  bool   `yaml:"display"`
	Folder   string `yaml:"folder,omitempty"`
}

// GroupKey returns the key of the SourceGroup this feed reconciles into.
func (c FeedConfig) GroupKey() string {
	return hash.GroupKey(c.FeedURL)
}
