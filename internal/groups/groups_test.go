// ABOUTME: Tests for source group reconciliation
// ABOUTME: Covers creation, idempotence, name/link updates, events and persist failures

package groups

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

func testConfig() models.FeedConfig {
	return models.FeedConfig{
		Title:    "<b>Partner</b> News",
		FeedURL:  "https://partner.example.com/feed",
		SiteLink: "https://partner.example.com",
		Ingest:   true,
		Display:  true,
	}
}

func TestEnsureCreates(t *testing.T) {
	store := storagetest.Wrap(storagetest.NewSQLite(t))
	var events []GroupEvent
	r := NewReconciler(store, zerolog.Nop(), WithEvents(func(e GroupEvent) { events = append(events, e) }))

	group, err := r.Ensure(context.Background(), testConfig())
	require.NoError(t, err)

	assert.Equal(t, hash.Key("https://partner.example.com/feed"), group.GroupKey)
	assert.Equal(t, "Partner News", group.DisplayName, "markup is stripped from the name")
	assert.Equal(t, "https://partner.example.com", group.SourceLink)

	stored, err := store.GetGroup(context.Background(), group.GroupKey)
	require.NoError(t, err)
	assert.Equal(t, group.ID, stored.ID)

	require.Len(t, events, 1)
	assert.Equal(t, EventCreated, events[0].Kind)
}

func TestEnsureIdempotent(t *testing.T) {
	store := storagetest.Wrap(storagetest.NewSQLite(t))
	var events []GroupEvent
	r := NewReconciler(store, zerolog.Nop(), WithEvents(func(e GroupEvent) { events = append(events, e) }))
	ctx := context.Background()

	first, err := r.Ensure(ctx, testConfig())
	require.NoError(t, err)
	writes := store.Writes("")

	second, err := r.Ensure(ctx, testConfig())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, writes, store.Writes(""), "second ensure must not write")
	assert.Len(t, events, 1)
}

func TestEnsureUpdatesNameAndLink(t *testing.T) {
	store := storagetest.Wrap(storagetest.NewSQLite(t))
	var events []GroupEvent
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewReconciler(store, zerolog.Nop(),
		WithEvents(func(e GroupEvent) { events = append(events, e) }),
		WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	original, err := r.Ensure(ctx, testConfig())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Title = "Partner Daily"
	cfg.SiteLink = "https://www.partner.example.com"
	now = now.Add(time.Hour)

	updated, err := r.Ensure(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, original.GroupKey, updated.GroupKey, "group key never changes")
	assert.Equal(t, "Partner Daily", updated.DisplayName)
	assert.Equal(t, "https://www.partner.example.com", updated.SourceLink)

	stored, err := store.GetGroup(ctx, original.GroupKey)
	require.NoError(t, err)
	assert.Equal(t, "Partner Daily", stored.DisplayName)
	assert.True(t, stored.UpdatedAt.Equal(now))

	require.Len(t, events, 2)
	assert.Equal(t, EventUpdated, events[1].Kind)
}

func TestEnsurePersistErrors(t *testing.T) {
	boom := errors.New("disk full")

	tests := []struct {
		name   string
		method string
		seed   bool
		op     string
	}{
		{"create fails", "CreateGroup", false, "create"},
		{"load fails", "GetGroup", false, "load"},
		{"update fails", "UpdateGroup", true, "update"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storagetest.Wrap(storagetest.NewSQLite(t))
			r := NewReconciler(store, zerolog.Nop())
			ctx := context.Background()

			if tt.seed {
				_, err := r.Ensure(ctx, testConfig())
				require.NoError(t, err)
			}
			store.Fail(tt.method, "", boom)

			cfg := testConfig()
			cfg.Title = "Changed"
			_, err := r.Ensure(ctx, cfg)

			var persistErr *GroupPersistError
			require.ErrorAs(t, err, &persistErr)
			assert.Equal(t, tt.op, persistErr.Op)
			assert.Equal(t, cfg.FeedURL, persistErr.FeedURL)
			assert.ErrorIs(t, err, boom)
		})
	}
}
