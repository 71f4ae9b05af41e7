// ABOUTME: Behavioral suite every storage.Store implementation must pass
// ABOUTME: Run against SQLite always and against Postgres when a test DSN is configured

package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/storage"
)

// Factory returns an empty store that lives until the test ends.
type Factory func(t *testing.T) storage.Store

// RunStoreSuite exercises the full Store contract against stores from newStore.
func RunStoreSuite(t *testing.T, newStore Factory) {
	t.Run("Groups", func(t *testing.T) { testGroups(t, newStore(t)) })
	t.Run("GroupFetchState", func(t *testing.T) { testGroupFetchState(t, newStore(t)) })
	t.Run("ItemLookups", func(t *testing.T) { testItemLookups(t, newStore(t)) })
	t.Run("ItemWrites", func(t *testing.T) { testItemWrites(t, newStore(t)) })
	t.Run("ListItemsFilter", func(t *testing.T) { testListItemsFilter(t, newStore(t)) })
	t.Run("ConditionalExpiryDelete", func(t *testing.T) { testConditionalExpiryDelete(t, newStore(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newStore(t)) })
	t.Run("Search", func(t *testing.T) { testSearch(t, newStore(t)) })
}

// base is whole seconds so every backend round-trips it exactly.
var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func addGroup(t *testing.T, store storage.Store, feedURL, name string) *models.SourceGroup {
	t.Helper()
	group := models.NewSourceGroup(feedURL, name, "https://site.example/"+name)
	group.CreatedAt = base
	group.UpdatedAt = base
	require.NoError(t, store.CreateGroup(context.Background(), group))
	return group
}

func addItem(t *testing.T, store storage.Store, groupKey, guid, title string, publishedAt time.Time) *models.SyndicatedItem {
	t.Helper()
	fields := models.ItemFields{
		Title:           title,
		Body:            "<p>" + title + " body</p>",
		Summary:         title + " summary",
		SourcePermalink: "https://site.example/" + guid,
	}
	item := models.NewSyndicatedItem(groupKey, guid, fields, publishedAt, base)
	require.NoError(t, store.CreateItem(context.Background(), item))
	return item
}

func ids(items []*models.SyndicatedItem) []string {
	return lo.Map(items, func(i *models.SyndicatedItem, _ int) string { return i.ID })
}

func testGroups(t *testing.T, store storage.Store) {
	ctx := context.Background()
	zeta := addGroup(t, store, "https://zeta.example/feed", "Zeta")
	alpha := addGroup(t, store, "https://alpha.example/feed", "Alpha")

	got, err := store.GetGroup(ctx, zeta.GroupKey)
	require.NoError(t, err)
	assert.Equal(t, zeta.ID, got.ID)
	assert.Equal(t, "https://zeta.example/feed", got.FeedURL)
	assert.Nil(t, got.ETag)
	assert.Nil(t, got.LastFetchedAt)

	groups, err := store.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, alpha.GroupKey, groups[0].GroupKey)
	assert.Equal(t, zeta.GroupKey, groups[1].GroupKey)

	zeta.DisplayName = "Zeta Renamed"
	zeta.SourceLink = "https://zeta.example"
	zeta.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, store.UpdateGroup(ctx, zeta))

	got, err = store.GetGroup(ctx, zeta.GroupKey)
	require.NoError(t, err)
	assert.Equal(t, "Zeta Renamed", got.DisplayName)
	assert.Equal(t, "https://zeta.example", got.SourceLink)

	_, err = store.GetGroup(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "GetGroup(missing) = %v", err)

	missing := models.NewSourceGroup("https://missing.example/feed", "Missing", "")
	assert.True(t, errors.Is(store.UpdateGroup(ctx, missing), storage.ErrNotFound))
}

func testGroupFetchState(t *testing.T, store storage.Store) {
	ctx := context.Background()
	group := addGroup(t, store, "https://partner.example/feed", "Partner")

	require.NoError(t, store.UpdateGroupError(ctx, group.GroupKey, "connection refused"))
	require.NoError(t, store.UpdateGroupError(ctx, group.GroupKey, "timeout"))

	got, err := store.GetGroup(ctx, group.GroupKey)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ErrorCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "timeout", *got.LastError)

	etag, lastModified := `"v1"`, "Wed, 01 May 2024 12:00:00 GMT"
	fetchedAt := base.Add(2 * time.Hour)
	require.NoError(t, store.UpdateGroupFetchState(ctx, group.GroupKey, &etag, &lastModified, fetchedAt))

	got, err = store.GetGroup(ctx, group.GroupKey)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ErrorCount)
	assert.Nil(t, got.LastError)
	require.NotNil(t, got.ETag)
	assert.Equal(t, etag, *got.ETag)
	require.NotNil(t, got.LastModified)
	assert.Equal(t, lastModified, *got.LastModified)
	require.NotNil(t, got.LastFetchedAt)
	assert.True(t, fetchedAt.Equal(*got.LastFetchedAt), "last fetched %v", got.LastFetchedAt)

	require.NoError(t, store.UpdateGroupFetchState(ctx, group.GroupKey, nil, nil, fetchedAt))
	got, err = store.GetGroup(ctx, group.GroupKey)
	require.NoError(t, err)
	assert.Nil(t, got.ETag)
	assert.Nil(t, got.LastModified)

	assert.True(t, errors.Is(store.UpdateGroupError(ctx, "missing", "x"), storage.ErrNotFound))
}

func testItemLookups(t *testing.T, store storage.Store) {
	ctx := context.Background()
	group := addGroup(t, store, "https://partner.example/feed", "Partner")
	other := addGroup(t, store, "https://other.example/feed", "Other")
	item := addItem(t, store, group.GroupKey, "guid-1", "First", base)
	addItem(t, store, other.GroupKey, "guid-1", "Same guid elsewhere", base)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ItemKey, got.ItemKey)
	assert.Equal(t, models.StatePublished, got.State)
	assert.Equal(t, item.Fields(), got.Fields())
	assert.True(t, base.Equal(got.PublishedAt))

	got, err = store.GetItemByIDOrPrefix(ctx, item.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)

	_, err = store.GetItemByIDOrPrefix(ctx, item.ID[:3])
	assert.Error(t, err)

	_, err = store.GetItem(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	got, err = store.FindByItemKey(ctx, group.GroupKey, item.ItemKey)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)

	// a trashed slug still matches its item key
	item.Slug = models.TrashedSlug(item.ItemKey)
	item.State = models.StateSuppressed
	item.ModifiedAt = base.Add(time.Minute)
	require.NoError(t, store.UpdateItem(ctx, item))

	got, err = store.FindByItemKey(ctx, group.GroupKey, item.ItemKey)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, models.StateSuppressed, got.State)
	assert.Equal(t, models.TrashedSlug(item.ItemKey), got.Slug)

	_, err = store.FindByItemKey(ctx, group.GroupKey, "unknown")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	suppressed := models.StateSuppressed
	found, err := store.FindItems(ctx, group.GroupKey, &suppressed)
	require.NoError(t, err)
	assert.Equal(t, []string{item.ID}, ids(found))

	published := models.StatePublished
	found, err = store.FindItems(ctx, group.GroupKey, &published)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func testItemWrites(t *testing.T, store storage.Store) {
	ctx := context.Background()
	group := addGroup(t, store, "https://partner.example/feed", "Partner")
	item := addItem(t, store, group.GroupKey, "guid-1", "Original", base)

	fresh := item.Fields()
	fresh.Title = "Edited"
	fresh.Body = "<p>ignored because not named</p>"
	modified := base.Add(time.Hour)
	require.NoError(t, store.UpdateItemFields(ctx, item.ID, fresh, []string{models.FieldTitle}, modified))

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited", got.Title)
	assert.Equal(t, item.Body, got.Body)
	assert.True(t, modified.Equal(got.ModifiedAt))
	assert.True(t, base.Equal(got.PublishedAt), "published_at must not move")

	require.NoError(t, store.SetItemState(ctx, item.ID, models.StateExpired, modified.Add(time.Hour)))
	got, err = store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateExpired, got.State)
	assert.Equal(t, "Edited", got.Title)

	assert.True(t, errors.Is(store.SetItemState(ctx, "missing", models.StateExpired, base), storage.ErrNotFound))
	assert.True(t, errors.Is(store.UpdateItemFields(ctx, "missing", fresh, []string{models.FieldTitle}, base), storage.ErrNotFound))

	require.NoError(t, store.DeleteItem(ctx, item.ID))
	_, err = store.GetItem(ctx, item.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.True(t, errors.Is(store.DeleteItem(ctx, item.ID), storage.ErrNotFound))
}

func testListItemsFilter(t *testing.T, store storage.Store) {
	ctx := context.Background()
	visible := addGroup(t, store, "https://visible.example/feed", "Visible")
	hidden := addGroup(t, store, "https://hidden.example/feed", "Hidden")

	oldest := addItem(t, store, visible.GroupKey, "v-1", "Oldest", base)
	middle := addItem(t, store, visible.GroupKey, "v-2", "Middle", base.Add(time.Hour))
	newest := addItem(t, store, visible.GroupKey, "v-3", "Newest", base.Add(2*time.Hour))
	secret := addItem(t, store, hidden.GroupKey, "h-1", "Secret", base.Add(3*time.Hour))
	require.NoError(t, store.SetItemState(ctx, middle.ID, models.StateExpired, base.Add(4*time.Hour)))

	all, err := store.ListItems(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{secret.ID, newest.ID, middle.ID, oldest.ID}, ids(all))

	got, err := store.ListItems(ctx, &storage.ItemFilter{ExcludedGroups: []string{hidden.GroupKey}})
	require.NoError(t, err)
	assert.Equal(t, []string{newest.ID, middle.ID, oldest.ID}, ids(got))

	got, err = store.ListItems(ctx, &storage.ItemFilter{GroupKeys: []string{hidden.GroupKey}})
	require.NoError(t, err)
	assert.Equal(t, []string{secret.ID}, ids(got))

	got, err = store.ListItems(ctx, &storage.ItemFilter{
		ExcludedGroups: []string{hidden.GroupKey},
		States:         []models.State{models.StatePublished},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{newest.ID, oldest.ID}, ids(got))

	since, until := base.Add(time.Hour), base.Add(3*time.Hour)
	got, err = store.ListItems(ctx, &storage.ItemFilter{Since: &since, Until: &until})
	require.NoError(t, err)
	assert.Equal(t, []string{newest.ID, middle.ID}, ids(got))

	got, err = store.ListItems(ctx, &storage.ItemFilter{Limit: lo.ToPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, []string{secret.ID, newest.ID}, ids(got))

	got, err = store.ListItems(ctx, &storage.ItemFilter{Limit: lo.ToPtr(2), Offset: lo.ToPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, []string{newest.ID, middle.ID}, ids(got))

	// offset without a limit returns the whole tail
	got, err = store.ListItems(ctx, &storage.ItemFilter{Offset: lo.ToPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, []string{middle.ID, oldest.ID}, ids(got))
}

func testConditionalExpiryDelete(t *testing.T, store storage.Store) {
	ctx := context.Background()
	group := addGroup(t, store, "https://partner.example/feed", "Partner")
	cutoff := base.Add(-30 * 24 * time.Hour)

	stale := addItem(t, store, group.GroupKey, "stale", "Stale", base)
	recent := addItem(t, store, group.GroupKey, "recent", "Recent", base)
	live := addItem(t, store, group.GroupKey, "live", "Live", base)
	require.NoError(t, store.SetItemState(ctx, stale.ID, models.StateExpired, cutoff.Add(-time.Minute)))
	require.NoError(t, store.SetItemState(ctx, recent.ID, models.StateExpired, cutoff.Add(24*time.Hour)))
	require.NoError(t, store.SetItemState(ctx, live.ID, models.StatePublished, cutoff.Add(-time.Hour)))

	candidates, err := store.ListExpiredBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{stale.ID}, ids(candidates))

	deleted, err := store.DeleteIfExpired(ctx, recent.ID, cutoff)
	require.NoError(t, err)
	assert.False(t, deleted, "recently expired item must survive")

	deleted, err = store.DeleteIfExpired(ctx, live.ID, cutoff)
	require.NoError(t, err)
	assert.False(t, deleted, "published item must survive")

	deleted, err = store.DeleteIfExpired(ctx, stale.ID, cutoff)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteIfExpired(ctx, stale.ID, cutoff)
	require.NoError(t, err)
	assert.False(t, deleted, "second delete finds nothing")

	remaining, err := store.ListItems(ctx, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{recent.ID, live.ID}, ids(remaining))
}

func testStats(t *testing.T, store storage.Store) {
	ctx := context.Background()
	busy := addGroup(t, store, "https://busy.example/feed", "Busy")
	empty := addGroup(t, store, "https://empty.example/feed", "Empty")

	addItem(t, store, busy.GroupKey, "a", "A", base)
	expired := addItem(t, store, busy.GroupKey, "b", "B", base)
	suppressed := addItem(t, store, busy.GroupKey, "c", "C", base)
	require.NoError(t, store.SetItemState(ctx, expired.ID, models.StateExpired, base))
	require.NoError(t, store.SetItemState(ctx, suppressed.ID, models.StateSuppressed, base))
	require.NoError(t, store.UpdateGroupError(ctx, empty.GroupKey, "dns failure"))

	rows, err := store.GetGroupStats(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byKey := lo.KeyBy(rows, func(r storage.GroupStatsRow) string { return r.GroupKey })
	assert.Equal(t, 1, byKey[busy.GroupKey].Published)
	assert.Equal(t, 1, byKey[busy.GroupKey].Expired)
	assert.Equal(t, 1, byKey[busy.GroupKey].Suppressed)
	assert.Equal(t, 0, byKey[empty.GroupKey].Published)
	assert.Equal(t, 0, byKey[empty.GroupKey].Expired)
	assert.Equal(t, 1, byKey[empty.GroupKey].ErrorCount)
	require.NotNil(t, byKey[empty.GroupKey].LastError)
	assert.Equal(t, "dns failure", *byKey[empty.GroupKey].LastError)

	overall, err := store.GetOverallStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.OverallStats{TotalGroups: 2, TotalItems: 3, Published: 1, Expired: 1, Suppressed: 1}, *overall)
}

func testSearch(t *testing.T, store storage.Store) {
	ctx := context.Background()
	visible := addGroup(t, store, "https://visible.example/feed", "Visible")
	hidden := addGroup(t, store, "https://hidden.example/feed", "Hidden")

	match := addItem(t, store, visible.GroupKey, "k8s", "Kubernetes release", base)
	addItem(t, store, visible.GroupKey, "go", "Go toolchain notes", base)
	hiddenMatch := addItem(t, store, hidden.GroupKey, "k8s-hidden", "Kubernetes internals", base)

	got, err := store.Search(ctx, "kubernetes", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{match.ID, hiddenMatch.ID}, ids(got))

	got, err = store.Search(ctx, "kubernetes", &storage.ItemFilter{ExcludedGroups: []string{hidden.GroupKey}})
	require.NoError(t, err)
	assert.Equal(t, []string{match.ID}, ids(got))

	got, err = store.Search(ctx, "toolchain", nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = store.Search(ctx, "nonexistentterm", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
