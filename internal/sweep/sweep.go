// ABOUTME: Expiry sweeper permanently deleting records expired longer than the retention window
// ABOUTME: Deletes conditionally so records republished mid-sweep are skipped

package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/storage"
	"github.com/harper/syndicate/internal/timeutil"
)

// DefaultRetention is how long a record stays Expired before it is deleted.
const DefaultRetention = 30 * timeutil.Day

// Sweeper removes long-expired records.
type Sweeper struct {
	store storage.Store
	log   zerolog.Logger
}

// New creates a Sweeper.
func New(store storage.Store, log zerolog.Logger) *Sweeper {
	return &Sweeper{store: store, log: log}
}

// Sweep deletes every Expired record last modified before now minus
// retention and returns how many were deleted. A record that left the
// Expired state after it was listed is skipped. A non-positive retention
// falls back to DefaultRetention. The sweep runs to completion once started.
func (s *Sweeper) Sweep(ctx context.Context, retention time.Duration, now time.Time) (int, error) {
	ctx = context.WithoutCancel(ctx)
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := now.UTC().Add(-retention)

	candidates, err := s.Candidates(ctx, retention, now)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, item := range candidates {
		ok, err := s.store.DeleteIfExpired(ctx, item.ID, cutoff)
		if err != nil {
			return deleted, fmt.Errorf("delete %s: %w", item.ID, err)
		}
		if !ok {
			s.log.Debug().Str("item", item.ItemKey).Msg("skipped item no longer eligible for deletion")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("candidates", len(candidates)).
		Time("cutoff", cutoff).
		Msg("swept expired items")
	return deleted, nil
}

// Candidates lists the records a sweep at now would delete.
func (s *Sweeper) Candidates(ctx context.Context, retention time.Duration, now time.Time) ([]*models.SyndicatedItem, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	items, err := s.store.ListExpiredBefore(ctx, now.UTC().Add(-retention))
	if err != nil {
		return nil, fmt.Errorf("list expired items: %w", err)
	}
	return items, nil
}
