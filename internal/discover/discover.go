// ABOUTME: Feed discovery for registry entries, finding RSS/Atom feeds from site URLs
// ABOUTME: Tries the URL as a feed, then HTML alternate links, then common feed paths

package discover

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/harper/syndicate/internal/fetch"
	"github.com/harper/syndicate/internal/parse"
)

// Common feed paths to probe when other discovery methods fail
var commonFeedPaths = []string{
	"/feed.xml",
	"/feed",
	"/rss.xml",
	"/rss",
	"/atom.xml",
	"/atom",
	"/index.xml",
	"/feed/rss",
	"/feed/atom",
	"/feeds/posts/default",
}

// Errors returned by discovery functions
var (
	ErrNoFeedFound = errors.New("no RSS/Atom feed found at URL")
	ErrInvalidURL  = errors.New("invalid URL")
)

// Fetcher retrieves raw documents.
type Fetcher interface {
	Fetch(ctx context.Context, url string, etag, lastModified *string) (*fetch.Result, error)
}

// DiscoveredFeed is a feed found during discovery, with enough detail to
// become a registry entry.
type DiscoveredFeed struct {
	URL      string // Absolute URL of the feed
	Title    string // Feed title (from content or link element)
	SiteLink string // Channel link, or the page the feed was found on
}

// Discoverer finds feeds using a Fetcher.
type Discoverer struct {
	fetcher Fetcher
}

// New creates a Discoverer.
func New(fetcher Fetcher) *Discoverer {
	return &Discoverer{fetcher: fetcher}
}

// Discover attempts to find an RSS/Atom feed from the given URL.
// It tries the following strategies in order:
//  1. Parse URL as a direct feed
//  2. Parse URL as HTML and extract <link rel="alternate"> headers
//  3. Probe common feed URL patterns
func (d *Discoverer) Discover(ctx context.Context, inputURL string) (*DiscoveredFeed, error) {
	parsedURL, err := url.Parse(inputURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("%w: missing scheme or host", ErrInvalidURL)
	}

	feed, body, err := d.tryDirectFeed(ctx, inputURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	if feed != nil {
		return feed, nil
	}

	for _, candidate := range extractFeedLinks(body, parsedURL) {
		verified, _, verifyErr := d.tryDirectFeed(ctx, candidate.URL)
		if verifyErr != nil || verified == nil {
			continue
		}
		if verified.Title == "" {
			verified.Title = candidate.Title
		}
		if verified.SiteLink == "" {
			verified.SiteLink = inputURL
		}
		return verified, nil
	}

	probeBase := &url.URL{Scheme: parsedURL.Scheme, Host: parsedURL.Host}
	for _, path := range commonFeedPaths {
		feed, _, err := d.tryDirectFeed(ctx, probeBase.String()+path)
		if err == nil && feed != nil {
			if feed.SiteLink == "" {
				feed.SiteLink = probeBase.String()
			}
			return feed, nil
		}
	}

	return nil, ErrNoFeedFound
}

// tryDirectFeed fetches feedURL and parses it as a feed. A body that does
// not parse is returned with a nil feed for HTML link extraction.
func (d *Discoverer) tryDirectFeed(ctx context.Context, feedURL string) (*DiscoveredFeed, []byte, error) {
	result, err := d.fetcher.Fetch(ctx, feedURL, nil, nil)
	if err != nil {
		return nil, nil, err
	}

	parsed, parseErr := parse.Parse(result.Body)
	if parseErr != nil {
		return nil, result.Body, nil //nolint:nilerr // parseErr means not a feed, which is expected
	}

	return &DiscoveredFeed{
		URL:      feedURL,
		Title:    parsed.Title,
		SiteLink: parsed.Link,
	}, result.Body, nil
}

// extractFeedLinks returns feed URLs from <link rel="alternate"> elements.
func extractFeedLinks(htmlBody []byte, baseURL *url.URL) []DiscoveredFeed {
	doc, err := html.Parse(bytes.NewReader(htmlBody))
	if err != nil {
		return nil
	}

	var feeds []DiscoveredFeed
	var findLinks func(*html.Node)
	findLinks = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "link" {
			var rel, linkType, href, title string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "rel":
					rel = attr.Val
				case "type":
					linkType = attr.Val
				case "href":
					href = attr.Val
				case "title":
					title = attr.Val
				}
			}

			if rel == "alternate" && isFeedContentType(linkType) && href != "" {
				if resolved, err := resolveURL(href, baseURL); err == nil {
					feeds = append(feeds, DiscoveredFeed{URL: resolved, Title: title})
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findLinks(c)
		}
	}

	findLinks(doc)
	return feeds
}

func resolveURL(href string, baseURL *url.URL) (string, error) {
	refURL, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

func isFeedContentType(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "rss") ||
		strings.Contains(contentType, "atom") ||
		strings.Contains(contentType, "xml")
}
