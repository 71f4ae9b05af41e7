// ABOUTME: Tests for MCP resources and prompts
// ABOUTME: Checks resource payloads and prompt templates without a transport

package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/reconcile"
)

func TestFeedsResource(t *testing.T) {
	f := newFixture(t)
	data, count, _, err := f.server.feedsResource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	feeds := data.([]FeedOutput)
	assert.Equal(t, "Visible", feeds[0].Title)
	assert.Equal(t, "Hidden", feeds[1].Title)
	assert.False(t, feeds[1].Display)
}

func TestItemsResourceHonorsDisplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	data, count, filters, err := f.server.itemsResource(models.StatePublished)(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, "published", filters["state"])
	assert.Equal(t, visibleFeed.GroupKey(), data.([]ItemOutput)[0].GroupKey)

	require.NoError(t, f.store.SetItemState(ctx, f.ids["Visible"], models.StateExpired, testNow))
	_, count, _, err = f.server.itemsResource(models.StateExpired)(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStatsAndGroupsResources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	data, count, _, err := f.server.statsResource(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	stats := data.(map[string]interface{})
	assert.Equal(t, 2, stats["groups"])
	assert.Equal(t, 2, stats["published"])

	_, count, _, err = f.server.groupsResource(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestReportsResource(t *testing.T) {
	f := newFixture(t)
	f.fake.reports = []*reconcile.Report{{FeedURL: visibleFeed.FeedURL, Expired: 4}}

	data, count, _, err := f.server.reportsResource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 4, data.([]PollResult)[0].Expired)
}

func TestPrompts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleFeedHealth(ctx, mcp.GetPromptRequest{})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Contains(t, result.Messages[0].Content.(mcp.TextContent).Text, "poll_feed")

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"group": "abc123"}
	result, err = f.server.handleReviewExpired(ctx, req)
	require.NoError(t, err)
	text := result.Messages[0].Content.(mcp.TextContent).Text
	assert.Contains(t, text, `group="abc123"`)
	assert.Contains(t, text, "sweep_expired")
}
