// ABOUTME: Tests for MCP tool handlers
// ABOUTME: Calls handlers directly against a SQLite store and a fake syndication service

package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/syndicate/internal/models"
)

func TestRegisteredTools(t *testing.T) {
	f := newFixture(t)
	tools := f.server.mcpServer.ListTools()
	for _, name := range []string{
		"list_items", "get_item", "list_groups", "list_feeds", "poll_feed",
		"sweep_expired", "search_items", "suppress_item", "restore_item",
	} {
		assert.Contains(t, tools, name)
	}
}

func TestListItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("hides feeds not marked for display", func(t *testing.T) {
		result, err := f.server.handleListItems(ctx, callTool(nil))
		require.NoError(t, err)
		out := decode[ListItemsOutput](t, result)
		require.Equal(t, 1, out.Count)
		assert.Equal(t, visibleFeed.GroupKey(), out.Items[0].GroupKey)
		assert.Equal(t, "Visible: Kubernetes release notes", out.Items[0].Title)
		assert.Equal(t, "https://visible.example.com/release", out.Items[0].Link)
	})

	t.Run("include hidden", func(t *testing.T) {
		result, err := f.server.handleListItems(ctx, callTool(map[string]any{"include_hidden": true}))
		require.NoError(t, err)
		out := decode[ListItemsOutput](t, result)
		assert.Equal(t, 2, out.Count)
		assert.Equal(t, true, out.Filters["include_hidden"])
	})

	t.Run("state filter", func(t *testing.T) {
		result, err := f.server.handleListItems(ctx, callTool(map[string]any{"state": "expired"}))
		require.NoError(t, err)
		assert.Zero(t, decode[ListItemsOutput](t, result).Count)
	})

	t.Run("since window", func(t *testing.T) {
		result, err := f.server.handleListItems(ctx, callTool(map[string]any{"since": "1d"}))
		require.NoError(t, err)
		assert.Zero(t, decode[ListItemsOutput](t, result).Count)

		result, err = f.server.handleListItems(ctx, callTool(map[string]any{"since": "7d"}))
		require.NoError(t, err)
		assert.Equal(t, 1, decode[ListItemsOutput](t, result).Count)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := f.server.handleListItems(ctx, callTool(map[string]any{"state": "bogus"}))
		assert.Error(t, err)
		_, err = f.server.handleListItems(ctx, callTool(map[string]any{"limit": -1}))
		assert.Error(t, err)
		_, err = f.server.handleListItems(ctx, callTool(map[string]any{"since": "sometime"}))
		assert.Error(t, err)
	})
}

func TestGetItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleGetItem(ctx, callTool(map[string]any{"item_id": f.ids["Visible"][:8]}))
	require.NoError(t, err)
	out := decode[GetItemOutput](t, result)
	assert.Equal(t, f.ids["Visible"], out.ID)
	assert.Equal(t, "Visible", out.GroupName)
	assert.Equal(t, visibleFeed.FeedURL+"#1", out.GUID)
	assert.Contains(t, out.Content, "**new**")
	assert.NotContains(t, out.Content, "<p>")

	_, err = f.server.handleGetItem(ctx, callTool(map[string]any{}))
	assert.Error(t, err)
	_, err = f.server.handleGetItem(ctx, callTool(map[string]any{"item_id": "ffffffff"}))
	assert.Error(t, err)
}

func TestListGroupsAndFeeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleListGroups(ctx, callTool(nil))
	require.NoError(t, err)
	groups := decode[ListGroupsOutput](t, result)
	require.Equal(t, 2, groups.Count)
	for _, g := range groups.Groups {
		assert.True(t, g.Registered)
		assert.Equal(t, 1, g.Published)
		assert.Equal(t, g.GroupKey == visibleFeed.GroupKey(), g.Display)
	}

	result, err = f.server.handleListFeeds(ctx, callTool(nil))
	require.NoError(t, err)
	feeds := decode[ListFeedsOutput](t, result)
	require.Equal(t, 1, feeds.Count)
	assert.Equal(t, "Visible", feeds.Feeds[0].Title)

	result, err = f.server.handleListFeeds(ctx, callTool(map[string]any{"include_hidden": true}))
	require.NoError(t, err)
	assert.Equal(t, 2, decode[ListFeedsOutput](t, result).Count)
}

func TestPollFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("single feed", func(t *testing.T) {
		result, err := f.server.handlePollFeed(ctx, callTool(map[string]any{"url": visibleFeed.FeedURL, "force": true}))
		require.NoError(t, err)
		out := decode[PollFeedOutput](t, result)
		require.Equal(t, 1, out.TotalFeeds)
		assert.Equal(t, 1, out.TotalWrites)
		assert.Equal(t, 3, out.Results[0].Unchanged)
		assert.Equal(t, 1, f.fake.forced)
	})

	t.Run("all feeds", func(t *testing.T) {
		result, err := f.server.handlePollFeed(ctx, callTool(nil))
		require.NoError(t, err)
		out := decode[PollFeedOutput](t, result)
		assert.Equal(t, 2, out.TotalFeeds)
		assert.Zero(t, out.TotalErrors)
	})

	t.Run("unregistered feed is reported", func(t *testing.T) {
		result, err := f.server.handlePollFeed(ctx, callTool(map[string]any{"url": "https://gone.example.com/feed"}))
		require.NoError(t, err)
		out := decode[PollFeedOutput](t, result)
		assert.Equal(t, 1, out.TotalErrors)
		require.NotNil(t, out.Results[0].Error)
		assert.Contains(t, *out.Results[0].Error, "gone.example.com")
	})
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fake.candidates = []*models.SyndicatedItem{{ID: "a"}, {ID: "b"}}

	result, err := f.server.handleSweep(ctx, callTool(map[string]any{"dry_run": true}))
	require.NoError(t, err)
	out := decode[SweepOutput](t, result)
	assert.True(t, out.DryRun)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "30d", out.Retention)
	assert.True(t, out.Cutoff.Equal(testNow.AddDate(0, 0, -30)))
	assert.Zero(t, f.fake.swept)

	result, err = f.server.handleSweep(ctx, callTool(nil))
	require.NoError(t, err)
	out = decode[SweepOutput](t, result)
	assert.False(t, out.DryRun)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, 1, f.fake.swept)
}

func TestSearchItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleSearchItems(ctx, callTool(map[string]any{"query": "kubernetes"}))
	require.NoError(t, err)
	out := decode[ListItemsOutput](t, result)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, visibleFeed.GroupKey(), out.Items[0].GroupKey)

	result, err = f.server.handleSearchItems(ctx, callTool(map[string]any{"query": "kubernetes", "include_hidden": true}))
	require.NoError(t, err)
	assert.Equal(t, 2, decode[ListItemsOutput](t, result).Count)

	_, err = f.server.handleSearchItems(ctx, callTool(map[string]any{}))
	assert.Error(t, err)
}

func TestSuppressAndRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.ids["Visible"]

	result, err := f.server.handleSuppressItem(ctx, callTool(map[string]any{"item_id": id}))
	require.NoError(t, err)
	out := decode[ItemActionOutput](t, result)
	assert.True(t, out.Success)
	assert.Equal(t, "suppressed", out.State)

	item, err := f.store.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateSuppressed, item.State)
	assert.Equal(t, models.TrashedSlug(item.ItemKey), item.Slug)

	result, err = f.server.handleRestoreItem(ctx, callTool(map[string]any{"item_id": id}))
	require.NoError(t, err)
	assert.Equal(t, "published", decode[ItemActionOutput](t, result).State)

	_, err = f.server.handleRestoreItem(ctx, callTool(map[string]any{"item_id": id}))
	assert.Error(t, err, "restoring a published item fails")
}
