// ABOUTME: Operator actions that suppress or restore a record outside reconciliation
// ABOUTME: Suppression trashes the slug so reconciliation treats the record as protected

package syndicate

import (
	"context"
	"fmt"
	"time"

	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/storage"
)

// Suppress moves the record matching ref (ID or ID prefix) to the locally
// suppressed state and stores it under its trashed slug.
func Suppress(ctx context.Context, store storage.Store, ref string, now time.Time) (*models.SyndicatedItem, error) {
	item, err := store.GetItemByIDOrPrefix(ctx, ref)
	if err != nil {
		return nil, err
	}
	if item.State == models.StateSuppressed {
		return item, nil
	}

	item.State = models.StateSuppressed
	item.Slug = models.TrashedSlug(item.ItemKey)
	item.ModifiedAt = now.UTC()
	if err := store.UpdateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("suppress %s: %w", item.ID, err)
	}
	return item, nil
}

// Restore returns a suppressed record to Published under its plain slug.
// Records in any other state are left alone.
func Restore(ctx context.Context, store storage.Store, ref string, now time.Time) (*models.SyndicatedItem, error) {
	item, err := store.GetItemByIDOrPrefix(ctx, ref)
	if err != nil {
		return nil, err
	}
	if item.State != models.StateSuppressed {
		return nil, fmt.Errorf("item %s is %s, only suppressed items can be restored", item.ID, item.State)
	}

	item.State = models.StatePublished
	item.Slug = item.ItemKey
	item.ModifiedAt = now.UTC()
	if err := store.UpdateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("restore %s: %w", item.ID, err)
	}
	return item, nil
}
