// ABOUTME: Data migration between syndicate storage backends
// ABOUTME: Copies source groups and their items from source to destination store

package storage

import (
	"context"
	"fmt"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary struct {
	Groups int
	Items  int
}

// MigrateData copies all data from src to dst storage.
// Groups are created before their items so foreign keys hold.
// The destination should be empty before calling this function.
func MigrateData(ctx context.Context, src, dst Store) (*MigrateSummary, error) {
	summary := &MigrateSummary{}

	groups, err := src.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source groups: %w", err)
	}

	for _, group := range groups {
		if err := dst.CreateGroup(ctx, group); err != nil {
			return nil, fmt.Errorf("create group %q: %w", group.FeedURL, err)
		}
		summary.Groups++

		if err := migrateGroupItems(ctx, src, dst, group.GroupKey, summary); err != nil {
			return nil, err
		}
	}

	return summary, nil
}

// migrateGroupItems copies every item of a single group, whatever its state.
func migrateGroupItems(ctx context.Context, src, dst Store, groupKey string, summary *MigrateSummary) error {
	items, err := src.FindItems(ctx, groupKey, nil)
	if err != nil {
		return fmt.Errorf("list items for group %s: %w", groupKey, err)
	}

	for _, item := range items {
		if err := dst.CreateItem(ctx, item); err != nil {
			return fmt.Errorf("create item %s in group %s: %w", item.ID, groupKey, err)
		}
		summary.Items++
	}
	return nil
}
