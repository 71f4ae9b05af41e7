// ABOUTME: Tests for item reconciliation against a SQLite store
// ABOUTME: Covers idempotence, identity, suppression, restore, ingest gating and failures

package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/syndicate/internal/hash"
	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/storage/storagetest"
)

type harness struct {
	t     *testing.T
	store *storagetest.FaultyStore
	rec   *Reconciler
	cfg   models.FeedConfig
	group *models.SourceGroup
	now   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		store: storagetest.Wrap(storagetest.NewSQLite(t)),
		cfg: models.FeedConfig{
			Title:    "Partner",
			FeedURL:  "https://partner.example.com/feed",
			SiteLink: "https://partner.example.com",
			Ingest:   true,
			Display:  true,
		},
		now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.group = models.NewSourceGroup(h.cfg.FeedURL, h.cfg.Title, h.cfg.SiteLink)
	require.NoError(t, h.store.CreateGroup(context.Background(), h.group))
	h.store.Reset()

	h.rec = New(h.store, zerolog.Nop(), Options{Now: func() time.Time { return h.now }})
	return h
}

// run reconciles items and advances the clock by an hour.
func (h *harness) run(items ...models.UpstreamItem) *Report {
	h.t.Helper()
	report, err := h.rec.Reconcile(context.Background(), items, h.cfg, h.group)
	require.NoError(h.t, err)
	h.now = h.now.Add(time.Hour)
	return report
}

func (h *harness) item(guid string) *models.SyndicatedItem {
	h.t.Helper()
	rec, err := h.store.FindByItemKey(context.Background(), h.group.GroupKey, hash.ItemKey(guid))
	require.NoError(h.t, err)
	return rec
}

func (h *harness) count() int {
	h.t.Helper()
	all, err := h.store.FindItems(context.Background(), h.group.GroupKey, nil)
	require.NoError(h.t, err)
	return len(all)
}

func upstream(guid, title string) models.UpstreamItem {
	date := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	return models.UpstreamItem{
		GUID:        guid,
		Title:       title,
		Description: "<p>About " + guid + "</p>",
		Content:     "<p>Full story of " + guid + "</p>",
		Permalink:   "https://partner.example.com/" + guid,
		Date:        &date,
	}
}

func TestReconcileCreatesNewItems(t *testing.T) {
	h := newHarness(t)

	report := h.run(upstream("a", "A"), upstream("b", "<em>B</em>"))

	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 2, report.Writes())
	assert.False(t, report.HasErrors())

	b := h.item("b")
	assert.Equal(t, models.StatePublished, b.State)
	assert.Equal(t, "B", b.Title, "title markup is stripped")
	assert.Equal(t, "<p>About b</p>", b.Body)
	assert.Equal(t, "<p>About b</p>", b.Summary)
	assert.Equal(t, "https://partner.example.com/b", b.SourcePermalink)
	assert.Equal(t, "b", b.SourceGUID)
	assert.Equal(t, hash.ItemKey("b"), b.Slug)
	assert.True(t, b.PublishedAt.Equal(time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)))
}

func TestReconcileFullContent(t *testing.T) {
	h := newHarness(t)
	h.rec = New(h.store, zerolog.Nop(), Options{FullContent: true, Now: func() time.Time { return h.now }})

	h.run(upstream("a", "A"))

	a := h.item("a")
	assert.Equal(t, "<p>Full story of a</p>", a.Body)
	assert.Equal(t, "<p>About a</p>", a.Summary)
}

func TestReconcileMissingDateUsesNow(t *testing.T) {
	h := newHarness(t)
	item := upstream("a", "A")
	item.Date = nil
	created := h.now

	h.run(item)

	assert.True(t, h.item("a").PublishedAt.Equal(created))
}

func TestReconcileIdempotent(t *testing.T) {
	h := newHarness(t)
	items := []models.UpstreamItem{upstream("a", "A"), upstream("b", "B"), upstream("c", "C")}

	h.run(items...)
	writes := h.store.Writes("")

	second := h.run(items...)

	assert.Equal(t, 0, second.Writes())
	assert.Equal(t, 3, second.Unchanged)
	assert.Equal(t, writes, h.store.Writes(""), "second reconcile must not write")
}

func TestReconcileIdentityStable(t *testing.T) {
	h := newHarness(t)
	h.run(upstream("a", "A"))
	original := h.item("a")

	edited := upstream("a", "A, revised")
	edited.Description = "<p>Rewritten</p>"
	later := time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)
	edited.Date = &later

	report := h.run(edited)

	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, h.count(), "an edit never creates a duplicate")

	updated := h.item("a")
	assert.Equal(t, original.ID, updated.ID)
	assert.Equal(t, original.ItemKey, updated.ItemKey)
	assert.Equal(t, "A, revised", updated.Title)
	assert.Equal(t, "<p>Rewritten</p>", updated.Body)
	assert.True(t, updated.PublishedAt.Equal(original.PublishedAt), "published_at is never re-synced")
}

func TestReconcileUpdatesOnlyChangedFields(t *testing.T) {
	h := newHarness(t)
	h.run(upstream("a", "A"))

	report := h.run(upstream("a", "A2"))

	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, h.store.Writes("UpdateItemFields"))
	assert.Equal(t, 0, h.store.Writes("UpdateItem"))
}

func TestReconcileSuppressionIsSticky(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.run(upstream("a", "A"), upstream("b", "B"))

	a := h.item("a")
	a.State = models.StateSuppressed
	a.Slug = models.TrashedSlug(a.ItemKey)
	require.NoError(t, h.store.UpdateItem(ctx, a))

	b := h.item("b")
	require.NoError(t, h.store.SetItemState(ctx, b.ID, models.StateSuppressed, h.now))

	h.store.Reset()

	edited := upstream("a", "A edited")
	h.run(edited, upstream("b", "B edited"))
	h.run()
	h.run(upstream("b", "B"))
	h.cfg.Ingest = false
	h.run(edited)
	h.run()

	assert.Equal(t, 0, h.store.Writes(""), "suppressed records are never written")

	for _, guid := range []string{"a", "b"} {
		rec := h.item(guid)
		assert.Equal(t, models.StateSuppressed, rec.State, guid)
	}
	assert.Equal(t, "A", h.item("a").Title)
	assert.Equal(t, models.TrashedSlug(a.ItemKey), h.item("a").Slug)
}

func TestReconcileProtectedCount(t *testing.T) {
	h := newHarness(t)
	h.run(upstream("a", "A"))
	a := h.item("a")
	require.NoError(t, h.store.SetItemState(context.Background(), a.ID, models.StateSuppressed, h.now))

	report := h.run(upstream("a", "A edited"))

	assert.Equal(t, 1, report.Protected)
	assert.Equal(t, 0, report.Writes())
}

func TestReconcileExpireThenRestore(t *testing.T) {
	h := newHarness(t)

	h.run(upstream("a", "A"))
	original := h.item("a")

	absent := h.run()
	assert.Equal(t, 1, absent.Expired)
	assert.Equal(t, models.StateExpired, h.item("a").State)

	back := upstream("a", "A")
	later := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	back.Date = &later
	restored := h.run(back)

	assert.Equal(t, 1, restored.Republished)
	a := h.item("a")
	assert.Equal(t, models.StatePublished, a.State)
	assert.Equal(t, original.ID, a.ID)
	assert.True(t, a.PublishedAt.Equal(original.PublishedAt), "published_at survives expire and restore")
}

func TestReconcileRepublishRefreshesFields(t *testing.T) {
	h := newHarness(t)
	h.run(upstream("a", "A"))
	h.run()

	edited := upstream("a", "A returns")
	edited.Permalink = "https://partner.example.com/a-returns"
	h.run(edited)

	a := h.item("a")
	assert.Equal(t, models.StatePublished, a.State)
	assert.Equal(t, "A returns", a.Title)
	assert.Equal(t, "https://partner.example.com/a-returns", a.SourcePermalink)
}

func TestReconcileIngestDisabled(t *testing.T) {
	t.Run("new item is not created", func(t *testing.T) {
		h := newHarness(t)
		h.cfg.Ingest = false

		report := h.run(upstream("a", "A"))

		assert.Equal(t, 1, report.Skipped)
		assert.Equal(t, 0, h.count())
		assert.Equal(t, 0, h.store.Writes(""))
	})

	t.Run("changed published item expires", func(t *testing.T) {
		h := newHarness(t)
		h.run(upstream("a", "A"))
		h.cfg.Ingest = false

		report := h.run(upstream("a", "A edited"))

		assert.Equal(t, 1, report.Expired)
		assert.Equal(t, 0, report.Updated)
		a := h.item("a")
		assert.Equal(t, models.StateExpired, a.State)
		assert.Equal(t, "A", a.Title, "content change is not applied")
	})

	t.Run("unchanged published item stays", func(t *testing.T) {
		h := newHarness(t)
		h.run(upstream("a", "A"))
		h.cfg.Ingest = false

		report := h.run(upstream("a", "A"))

		assert.Equal(t, 1, report.Unchanged)
		assert.Equal(t, models.StatePublished, h.item("a").State)
	})

	t.Run("expired item never returns", func(t *testing.T) {
		h := newHarness(t)
		h.run(upstream("a", "A"))
		h.run()
		h.cfg.Ingest = false

		report := h.run(upstream("a", "A"))

		assert.Equal(t, 1, report.Skipped)
		assert.Equal(t, models.StateExpired, h.item("a").State)
	})
}

func TestReconcileExpiryIndependentOfIngest(t *testing.T) {
	h := newHarness(t)
	h.run(upstream("a", "A"), upstream("b", "B"))
	h.cfg.Ingest = false

	report := h.run(upstream("a", "A"))

	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, models.StateExpired, h.item("b").State)
	assert.Equal(t, models.StatePublished, h.item("a").State)
}

func TestReconcileEmptyFeedExpiresEverything(t *testing.T) {
	h := newHarness(t)
	h.run(upstream("a", "A"), upstream("b", "B"), upstream("c", "C"))

	report := h.run()

	assert.Equal(t, 3, report.Expired)
	for _, guid := range []string{"a", "b", "c"} {
		assert.Equal(t, models.StateExpired, h.item(guid).State, guid)
	}
}

func TestReconcileScenarioABC(t *testing.T) {
	h := newHarness(t)

	first := h.run(upstream("A", "Alpha"), upstream("B", "Bravo"), upstream("C", "Charlie"))
	assert.Equal(t, 3, first.Created)
	originalB := h.item("B")
	h.store.Reset()

	second := h.run(upstream("A", "Alpha (edited)"), upstream("C", "Charlie"))
	assert.Equal(t, 1, second.Updated)
	assert.Equal(t, 1, second.Expired)
	assert.Equal(t, 1, second.Unchanged)
	assert.Equal(t, 2, h.store.Writes(""), "C is not written")
	assert.Equal(t, "Alpha (edited)", h.item("A").Title)
	assert.Equal(t, models.StateExpired, h.item("B").State)
	assert.Equal(t, models.StatePublished, h.item("C").State)

	third := h.run(upstream("A", "Alpha (edited)"), upstream("B", "Bravo"), upstream("C", "Charlie"))
	assert.Equal(t, 1, third.Republished)
	assert.Equal(t, 2, third.Unchanged)
	assert.Equal(t, 0, third.Created)

	b := h.item("B")
	assert.Equal(t, models.StatePublished, b.State)
	assert.True(t, b.PublishedAt.Equal(originalB.PublishedAt))
	assert.Equal(t, 3, h.count())
}

func TestReconcileDuplicateGUIDFirstWins(t *testing.T) {
	h := newHarness(t)

	report := h.run(upstream("a", "First"), upstream("a", "Second"))

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, h.count())
	assert.Equal(t, "First", h.item("a").Title)
}

func TestReconcileOrderIndependent(t *testing.T) {
	sequence := [][]models.UpstreamItem{
		{upstream("a", "A"), upstream("b", "B"), upstream("c", "C")},
		{upstream("c", "C2"), upstream("a", "A")},
		{upstream("b", "B"), upstream("c", "C2"), upstream("d", "D")},
	}

	final := func(reverse bool) map[string]models.State {
		h := newHarness(t)
		for _, items := range sequence {
			batch := append([]models.UpstreamItem(nil), items...)
			if reverse {
				for i, j := 0, len(batch)-1; i < j; i, j = i+1, j-1 {
					batch[i], batch[j] = batch[j], batch[i]
				}
			}
			h.run(batch...)
		}
		states := make(map[string]models.State)
		for _, guid := range []string{"a", "b", "c", "d"} {
			rec := h.item(guid)
			states[guid+":"+rec.Title] = rec.State
		}
		return states
	}

	assert.Equal(t, final(false), final(true))
}

func TestReconcileItemErrorsDoNotAbort(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("disk full")
	h.store.Fail("CreateItem", hash.ItemKey("b"), boom)

	report := h.run(upstream("a", "A"), upstream("b", "B"), upstream("c", "C"))

	assert.Equal(t, 2, report.Created)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, hash.ItemKey("b"), report.Errors[0].ItemKey)
	assert.Equal(t, "create", report.Errors[0].Op)
	assert.ErrorIs(t, report.Errors[0], boom)
	assert.True(t, report.HasErrors())

	// The failed item is picked up again on the next poll.
	h.store.Reset()
	retry := h.run(upstream("a", "A"), upstream("b", "B"), upstream("c", "C"))
	assert.Equal(t, 1, retry.Created)
	assert.False(t, retry.HasErrors())
}

func TestReconcileExpireErrorsRecorded(t *testing.T) {
	h := newHarness(t)
	h.run(upstream("a", "A"), upstream("b", "B"))
	a := h.item("a")
	h.store.Fail("SetItemState", a.ID, errors.New("locked"))

	report := h.run()

	assert.Equal(t, 1, report.Expired)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "expire", report.Errors[0].Op)
	assert.Equal(t, a.ItemKey, report.Errors[0].ItemKey)
}

func TestReconcileListFailureAbortsBeforeItems(t *testing.T) {
	h := newHarness(t)
	h.store.Fail("FindItems", h.group.GroupKey, errors.New("connection reset"))

	report, err := h.rec.Reconcile(context.Background(), []models.UpstreamItem{upstream("a", "A")}, h.cfg, h.group)

	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.Writes())
	assert.Equal(t, 0, h.store.Writes(""))
}

func TestReconcileLookupErrorRecorded(t *testing.T) {
	h := newHarness(t)
	h.store.Fail("FindByItemKey", hash.ItemKey("a"), errors.New("timeout"))

	report := h.run(upstream("a", "A"), upstream("b", "B"))

	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "load", report.Errors[0].Op)
}

func TestReconcileIgnoresCanceledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.rec.Reconcile(ctx, []models.UpstreamItem{upstream("a", "A")}, h.cfg, h.group)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
}

func TestSelectFields(t *testing.T) {
	tests := []struct {
		name        string
		item        models.UpstreamItem
		fullContent bool
		want        models.ItemFields
	}{
		{
			name: "excerpt mode uses description",
			item: models.UpstreamItem{Title: "T", Description: "<p>desc</p>", Content: "<p>full</p>", Permalink: " https://x/1 "},
			want: models.ItemFields{Title: "T", Body: "<p>desc</p>", Summary: "<p>desc</p>", SourcePermalink: "https://x/1"},
		},
		{
			name:        "full mode uses content",
			item:        models.UpstreamItem{Title: "T", Description: "<p>desc</p>", Content: "<p>full</p>"},
			fullContent: true,
			want:        models.ItemFields{Title: "T", Body: "<p>full</p>", Summary: "<p>desc</p>"},
		},
		{
			name:        "full mode falls back to description",
			item:        models.UpstreamItem{Title: "T", Description: "<p>desc</p>"},
			fullContent: true,
			want:        models.ItemFields{Title: "T", Body: "<p>desc</p>", Summary: "<p>desc</p>"},
		},
		{
			name: "excerpt mode falls back to content",
			item: models.UpstreamItem{Title: "T", Content: "<p>full</p>"},
			want: models.ItemFields{Title: "T", Body: "<p>full</p>", Summary: "<p>full</p>"},
		},
		{
			name:        "content-only item fills summary in full mode",
			item:        models.UpstreamItem{Title: "T", Content: "<p>encoded</p>", Description: "  "},
			fullContent: true,
			want:        models.ItemFields{Title: "T", Body: "<p>encoded</p>", Summary: "<p>encoded</p>"},
		},
		{
			name: "unsafe markup is removed",
			item: models.UpstreamItem{Title: "<script>x</script>Hi <b>there</b>", Description: `<p onclick="x()">ok</p><script>alert(1)</script>`},
			want: models.ItemFields{Title: "Hi there", Body: "<p>ok</p>", Summary: "<p>ok</p>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectFields(tt.item, tt.fullContent))
		})
	}
}
