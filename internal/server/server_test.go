// ABOUTME: Tests for the HTTP status API
// ABOUTME: Checks the explicit visibility filter, group links, hosts, reports and poll triggers

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/reconcile"
	"github.com/harper/syndicate/internal/registry"
	"github.com/harper/syndicate/internal/storage"
	"github.com/harper/syndicate/internal/storage/storagetest"
	"github.com/harper/syndicate/internal/syndicate"
)

type fakeSyndicator struct {
	reports []*reconcile.Report
	polled  []string
}

func (f *fakeSyndicator) Poll(_ context.Context, feedURL string, _ ...syndicate.PollOption) (*reconcile.Report, error) {
	if feedURL == "https://gone.example.com/feed" {
		return nil, &syndicate.ConfigDriftError{FeedURL: feedURL}
	}
	f.polled = append(f.polled, feedURL)
	return &reconcile.Report{FeedURL: feedURL, Created: 2}, nil
}

func (f *fakeSyndicator) Reports() []*reconcile.Report { return f.reports }

var (
	visibleFeed = models.FeedConfig{Title: "Visible", FeedURL: "https://visible.example.com/feed", SiteLink: "https://visible.example.com", Ingest: true, Display: true}
	hiddenFeed  = models.FeedConfig{Title: "Hidden", FeedURL: "https://hidden.example.net/rss", SiteLink: "https://www.hidden.example.net", Ingest: true, Display: false}
)

func setup(t *testing.T) (*Server, storage.Store, *fakeSyndicator) {
	t.Helper()
	ctx := context.Background()
	store := storagetest.NewSQLite(t)

	reg, err := registry.New([]models.FeedConfig{visibleFeed, hiddenFeed})
	require.NoError(t, err)

	published := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, feed := range []models.FeedConfig{visibleFeed, hiddenFeed} {
		group := models.NewSourceGroup(feed.FeedURL, feed.Title, feed.SiteLink)
		require.NoError(t, store.CreateGroup(ctx, group))
		item := models.NewSyndicatedItem(group.GroupKey, feed.FeedURL+"#1", models.ItemFields{
			Title:           "Post",
			Body:            "<p>body</p>",
			Summary:         "<p>summary</p>",
			SourcePermalink: feed.SiteLink + "/post",
		}, published, published)
		require.NoError(t, store.CreateItem(ctx, item))
	}

	fake := &fakeSyndicator{}
	return New(store, reg, fake, zerolog.Nop()), store, fake
}

func get(t *testing.T, s *Server, method, target string, out interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	s, _, _ := setup(t)
	var body map[string]interface{}
	assert.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/healthz", &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["feeds"])
}

func TestListItemsHonorsDisplayFlag(t *testing.T) {
	s, _, _ := setup(t)

	var items []itemView
	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/items", &items))
	require.Len(t, items, 1)
	assert.Equal(t, visibleFeed.GroupKey(), items[0].Group)
	assert.Equal(t, "Visible: Post", items[0].Title)
	assert.Equal(t, "https://visible.example.com/post", items[0].Link)
	assert.Empty(t, items[0].Body)

	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/items?all_groups=1", &items))
	assert.Len(t, items, 2)
}

func TestListItemsStateFilter(t *testing.T) {
	s, store, _ := setup(t)
	items, err := store.FindItems(context.Background(), visibleFeed.GroupKey(), nil)
	require.NoError(t, err)
	require.NoError(t, store.SetItemState(context.Background(), items[0].ID, models.StateExpired, time.Now()))

	var views []itemView
	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/items", &views))
	assert.Empty(t, views)

	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/items?state=expired", &views))
	assert.Len(t, views, 1)

	assert.Equal(t, http.StatusBadRequest, get(t, s, http.MethodGet, "/api/items?state=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, s, http.MethodGet, "/api/items?limit=-1", nil))
}

func TestGetItem(t *testing.T) {
	s, store, _ := setup(t)
	items, err := store.FindItems(context.Background(), visibleFeed.GroupKey(), nil)
	require.NoError(t, err)

	var view itemView
	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/items/"+items[0].ID, &view))
	assert.Equal(t, "<p>body</p>", view.Body)

	assert.Equal(t, http.StatusNotFound, get(t, s, http.MethodGet, "/api/items/00000000-0000-0000-0000-000000000000", nil))
}

func TestListGroups(t *testing.T) {
	s, _, _ := setup(t)

	var groups []groupView
	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/groups", &groups))
	require.Len(t, groups, 2)

	byKey := map[string]groupView{}
	for _, g := range groups {
		byKey[g.GroupKey] = g
	}
	hidden := byKey[hiddenFeed.GroupKey()]
	assert.False(t, hidden.Display)
	assert.Equal(t, "https://www.hidden.example.net", hidden.Link)
	assert.Equal(t, 1, hidden.Published)
}

func TestListFeeds(t *testing.T) {
	s, _, _ := setup(t)

	var feeds []feedView
	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/feeds", &feeds))
	require.Len(t, feeds, 1)
	assert.Equal(t, "Visible", feeds[0].Title)

	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/feeds?all=1", &feeds))
	assert.Len(t, feeds, 2)
}

func TestHosts(t *testing.T) {
	s, _, _ := setup(t)

	var hosts []string
	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/hosts", &hosts))
	assert.Contains(t, hosts, "www.hidden.example.net")
	assert.Contains(t, hosts, "visible.example.com")

	var check map[string]interface{}
	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/hosts?check=Visible.Example.com", &check))
	assert.Equal(t, true, check["allowed"])

	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/hosts?check=evil.example.org", &check))
	assert.Equal(t, false, check["allowed"])
}

func TestReports(t *testing.T) {
	s, _, fake := setup(t)
	fake.reports = []*reconcile.Report{{
		FeedURL: visibleFeed.FeedURL,
		Created: 1,
		Errors:  []*reconcile.ItemPersistError{{ItemKey: "abc", Op: "create", Err: assert.AnError}},
	}}

	var reports []reportView
	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/reports", &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Created)
	require.Len(t, reports[0].Errors, 1)
	assert.Contains(t, reports[0].Errors[0], "create item abc")
}

func TestPoll(t *testing.T) {
	s, _, fake := setup(t)

	var report reportView
	require.Equal(t, http.StatusOK, get(t, s, http.MethodPost, "/api/poll?url="+visibleFeed.FeedURL, &report))
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, []string{visibleFeed.FeedURL}, fake.polled)

	assert.Equal(t, http.StatusNotFound, get(t, s, http.MethodPost, "/api/poll?url=https://gone.example.com/feed", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, s, http.MethodPost, "/api/poll", nil))
}
