// ABOUTME: Feed registry holding the configured upstream feeds
// ABOUTME: Loads YAML or OPML, validates entries, and answers lookup and visibility queries

package registry

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/tomakado/containers/set"
	"gopkg.in/yaml.v3"

	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/opml"
)

// Registry is the set of configured feeds keyed by feed URL.
// It is safe for concurrent use; Replace swaps the whole set atomically.
type Registry struct {
	mu    sync.RWMutex
	feeds []models.FeedConfig
	byURL map[string]models.FeedConfig
}

// fileFormat is the YAML registry layout.
type fileFormat struct {
	Feeds []fileFeed `yaml:"feeds"`
}

// fileFeed mirrors models.FeedConfig with optional toggles so that
// absent ingest/display keys default to true.
type fileFeed struct {
	Title    string `yaml:"title"`
	FeedURL  string `yaml:"feed_url"`
	SiteLink string `yaml:"site_link"`
	Ingest   *bool  `yaml:"ingest,omitempty"`
	Display  *bool  `yaml:"display,omitempty"`
	Folder   string `yaml:"folder,omitempty"`
}

var validate = validator.New()

// New builds a registry from feeds, validating each entry and rejecting
// duplicate feed URLs.
func New(feeds []models.FeedConfig) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(feeds); err != nil {
		return nil, err
	}
	return r, nil
}

// Load reads a registry file. Files ending in .opml or .xml are parsed as
// OPML; anything else as YAML. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	feeds, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(feeds)
}

// ReadFile reads feed configs from a registry file without validating them.
func ReadFile(path string) ([]models.FeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".opml", ".xml":
		doc, err := opml.Parse(strings.NewReader(string(data)))
		if err != nil {
			return nil, fmt.Errorf("parse registry: %w", err)
		}
		return lo.Map(doc.AllFeeds(), func(f opml.Feed, _ int) models.FeedConfig {
			return toConfig(fileFeed{
				Title:    f.Title,
				FeedURL:  f.URL,
				SiteLink: f.SiteURL,
				Ingest:   f.Ingest,
				Display:  f.Display,
				Folder:   f.Folder,
			})
		}), nil
	default:
		var file fileFormat
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse registry: %w", err)
		}
		return lo.Map(file.Feeds, func(f fileFeed, _ int) models.FeedConfig { return toConfig(f) }), nil
	}
}

// WriteFile writes feeds to path in the format implied by its extension.
func WriteFile(path string, feeds []models.FeedConfig) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".opml", ".xml":
		return ToOPML("Syndicated Feeds", feeds).WriteFile(path)
	}

	file := fileFormat{Feeds: lo.Map(feeds, func(c models.FeedConfig, _ int) fileFeed {
		ingest, display := c.Ingest, c.Display
		return fileFeed{
			Title:    c.Title,
			FeedURL:  c.FeedURL,
			SiteLink: c.SiteLink,
			Ingest:   &ingest,
			Display:  &display,
			Folder:   c.Folder,
		}
	})}
	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ToOPML renders feeds as an OPML document, keeping folders and toggles.
func ToOPML(title string, feeds []models.FeedConfig) *opml.Document {
	doc := opml.NewDocument(title)
	for _, c := range feeds {
		ingest, display := c.Ingest, c.Display
		// Duplicates were rejected when the registry was built
		_ = doc.AddFeed(opml.Feed{
			URL:     c.FeedURL,
			Title:   c.Title,
			Folder:  c.Folder,
			SiteURL: c.SiteLink,
			Ingest:  &ingest,
			Display: &display,
		})
	}
	return doc
}

func toConfig(f fileFeed) models.FeedConfig {
	return models.FeedConfig{
		Title:    strings.TrimSpace(f.Title),
		FeedURL:  strings.TrimSpace(f.FeedURL),
		SiteLink: strings.TrimSpace(f.SiteLink),
		Ingest:   f.Ingest == nil || *f.Ingest,
		Display:  f.Display == nil || *f.Display,
		Folder:   f.Folder,
	}
}

// Replace validates feeds and swaps them in as the registry contents.
func (r *Registry) Replace(feeds []models.FeedConfig) error {
	byURL := make(map[string]models.FeedConfig, len(feeds))
	for i, feed := range feeds {
		if err := validate.Struct(feed); err != nil {
			return fmt.Errorf("feed %d (%q): %w", i, feed.FeedURL, err)
		}
		if _, dup := byURL[feed.FeedURL]; dup {
			return fmt.Errorf("duplicate feed URL %s", feed.FeedURL)
		}
		byURL[feed.FeedURL] = feed
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds = slices.Clone(feeds)
	r.byURL = byURL
	return nil
}

// Lookup returns the configuration for feedURL.
func (r *Registry) Lookup(feedURL string) (models.FeedConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.byURL[feedURL]
	return cfg, ok
}

// All returns every configured feed in file order.
func (r *Registry) All() []models.FeedConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.feeds)
}

// URLs returns the feed URLs in file order.
func (r *Registry) URLs() []string {
	return lo.Map(r.All(), func(c models.FeedConfig, _ int) string { return c.FeedURL })
}

// Displayed returns the feeds with Display set, sorted by title.
func (r *Registry) Displayed() []models.FeedConfig {
	displayed := lo.Filter(r.All(), func(c models.FeedConfig, _ int) bool { return c.Display })
	slices.SortStableFunc(displayed, func(a, b models.FeedConfig) int {
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	})
	return displayed
}

// ExcludedGroups returns the group keys of every feed with Display unset.
// Listing queries pass these as storage.ItemFilter.ExcludedGroups.
func (r *Registry) ExcludedGroups() []string {
	hidden := lo.Filter(r.All(), func(c models.FeedConfig, _ int) bool { return !c.Display })
	return lo.Map(hidden, func(c models.FeedConfig, _ int) string { return c.GroupKey() })
}

// IsAllowedHost reports whether host belongs to a configured feed or site.
func (r *Registry) IsAllowedHost(host string) bool {
	return set.New(r.AllowedHosts()...).Contains(strings.ToLower(host))
}

// AllowedHosts returns the lowercase hosts of every feed URL and site link,
// sorted and without duplicates.
func (r *Registry) AllowedHosts() []string {
	var hosts []string
	for _, c := range r.All() {
		for _, raw := range []string{c.FeedURL, c.SiteLink} {
			u, err := url.Parse(raw)
			if err != nil || u.Hostname() == "" {
				continue
			}
			hosts = append(hosts, strings.ToLower(u.Hostname()))
		}
	}
	hosts = lo.Uniq(hosts)
	slices.Sort(hosts)
	return hosts
}

// Len returns the number of configured feeds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.feeds)
}
