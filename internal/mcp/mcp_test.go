// ABOUTME: Shared fixtures for MCP server tests
// ABOUTME: Builds a server over a temporary SQLite store with one visible and one hidden feed

package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/reconcile"
	"github.com/harper/syndicate/internal/registry"
	"github.com/harper/syndicate/internal/storage"
	"github.com/harper/syndicate/internal/storage/storagetest"
	"github.com/harper/syndicate/internal/syndicate"
)

var (
	testNow     = time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)
	visibleFeed = models.FeedConfig{Title: "Visible", FeedURL: "https://visible.example.com/feed", SiteLink: "https://visible.example.com", Ingest: true, Display: true}
	hiddenFeed  = models.FeedConfig{Title: "Hidden", FeedURL: "https://hidden.example.net/rss", SiteLink: "https://hidden.example.net", Ingest: true, Display: false}
)

type fakeSyndicator struct {
	polled     []string
	forced     int
	reports    []*reconcile.Report
	candidates []*models.SyndicatedItem
	swept      int
}

func (f *fakeSyndicator) Poll(_ context.Context, feedURL string, opts ...syndicate.PollOption) (*reconcile.Report, error) {
	if feedURL == "https://gone.example.com/feed" {
		return nil, &syndicate.ConfigDriftError{FeedURL: feedURL}
	}
	f.polled = append(f.polled, feedURL)
	f.forced += len(opts)
	return &reconcile.Report{FeedURL: feedURL, Created: 1, Unchanged: 3}, nil
}

func (f *fakeSyndicator) PollAll(ctx context.Context, opts ...syndicate.PollOption) []syndicate.PollResult {
	var out []syndicate.PollResult
	for _, u := range []string{visibleFeed.FeedURL, hiddenFeed.FeedURL} {
		r, err := f.Poll(ctx, u, opts...)
		out = append(out, syndicate.PollResult{FeedURL: u, Report: r, Err: err})
	}
	return out
}

func (f *fakeSyndicator) Sweep(context.Context, time.Time) (int, error) {
	f.swept++
	return len(f.candidates), nil
}

func (f *fakeSyndicator) SweepCandidates(context.Context, time.Time) ([]*models.SyndicatedItem, error) {
	return f.candidates, nil
}

func (f *fakeSyndicator) Retention() time.Duration { return 30 * 24 * time.Hour }

func (f *fakeSyndicator) Reports() []*reconcile.Report { return f.reports }

type fixture struct {
	server *Server
	store  storage.Store
	fake   *fakeSyndicator
	ids    map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storagetest.NewSQLite(t)

	reg, err := registry.New([]models.FeedConfig{visibleFeed, hiddenFeed})
	require.NoError(t, err)

	ids := make(map[string]string)
	published := testNow.Add(-48 * time.Hour)
	for _, feed := range []models.FeedConfig{visibleFeed, hiddenFeed} {
		group := models.NewSourceGroup(feed.FeedURL, feed.Title, feed.SiteLink)
		require.NoError(t, store.CreateGroup(ctx, group))
		item := models.NewSyndicatedItem(group.GroupKey, feed.FeedURL+"#1", models.ItemFields{
			Title:           "Kubernetes release notes",
			Body:            "<p>The <strong>new</strong> release is out.</p>",
			Summary:         "<p>Release summary</p>",
			SourcePermalink: feed.SiteLink + "/release",
		}, published, published)
		require.NoError(t, store.CreateItem(ctx, item))
		ids[feed.Title] = item.ID
	}

	fake := &fakeSyndicator{}
	s := NewServer(store, reg, fake, zerolog.Nop())
	s.now = func() time.Time { return testNow }
	return &fixture{server: s, store: store, fake: fake, ids: ids}
}

func callTool(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func decode[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out T
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out), text.Text)
	return out
}
