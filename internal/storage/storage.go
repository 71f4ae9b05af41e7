// ABOUTME: Storage interface and types for syndicated record persistence
// ABOUTME: Defines the group and item primitives the reconciler, sweeper and listings rely on

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/harper/syndicate/internal/models"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("not found")

// ItemFilter specifies criteria for listing items.
// ExcludedGroups is the explicit visibility filter: listings never hide
// groups unless the caller asks for it here.
type ItemFilter struct {
	GroupKeys      []string
	ExcludedGroups []string
	States         []models.State
	Since          *time.Time
	Until          *time.Time
	Limit          *int
	Offset         *int
}

// GroupStatsRow represents statistics for a single source group.
type GroupStatsRow struct {
	GroupKey      string
	FeedURL       string
	DisplayName   string
	LastFetchedAt *time.Time
	ErrorCount    int
	LastError     *string
	Published     int
	Expired       int
	Suppressed    int
}

// OverallStats represents overall statistics.
type OverallStats struct {
	TotalGroups int
	TotalItems  int
	Published   int
	Expired     int
	Suppressed  int
}

// Store defines the storage interface for syndicated data.
type Store interface {
	// Close closes the store and releases resources.
	Close() error

	// Group Operations

	// CreateGroup stores a new source group.
	CreateGroup(ctx context.Context, group *models.SourceGroup) error

	// GetGroup finds a group by its group key.
	GetGroup(ctx context.Context, groupKey string) (*models.SourceGroup, error)

	// ListGroups returns all groups ordered by display name.
	ListGroups(ctx context.Context) ([]*models.SourceGroup, error)

	// UpdateGroup updates display name and source link of an existing group.
	UpdateGroup(ctx context.Context, group *models.SourceGroup) error

	// UpdateGroupFetchState records caching headers and clears errors.
	UpdateGroupFetchState(ctx context.Context, groupKey string, etag, lastModified *string, fetchedAt time.Time) error

	// UpdateGroupError records a poll error for a group.
	UpdateGroupError(ctx context.Context, groupKey string, errMsg string) error

	// Item Operations

	// CreateItem stores a new item.
	CreateItem(ctx context.Context, item *models.SyndicatedItem) error

	// GetItem retrieves an item by ID.
	GetItem(ctx context.Context, id string) (*models.SyndicatedItem, error)

	// GetItemByIDOrPrefix tries an exact ID first, then an ID prefix (min 6 chars).
	GetItemByIDOrPrefix(ctx context.Context, ref string) (*models.SyndicatedItem, error)

	// FindItems returns the items of a group, optionally restricted to one state.
	FindItems(ctx context.Context, groupKey string, state *models.State) ([]*models.SyndicatedItem, error)

	// FindByItemKey finds the item of a group whose slug is itemKey,
	// with or without the trashed suffix.
	FindByItemKey(ctx context.Context, groupKey, itemKey string) (*models.SyndicatedItem, error)

	// UpdateItemFields writes the named mirrored fields of an item.
	UpdateItemFields(ctx context.Context, id string, fields models.ItemFields, changed []string, modifiedAt time.Time) error

	// SetItemState changes only the state of an item.
	SetItemState(ctx context.Context, id string, state models.State, modifiedAt time.Time) error

	// UpdateItem writes state, slug and every mirrored field of an item in one statement.
	UpdateItem(ctx context.Context, item *models.SyndicatedItem) error

	// DeleteItem removes an item.
	DeleteItem(ctx context.Context, id string) error

	// ListItems returns items matching the filter, newest published first.
	ListItems(ctx context.Context, filter *ItemFilter) ([]*models.SyndicatedItem, error)

	// ListExpiredBefore returns Expired items last modified before cutoff.
	ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]*models.SyndicatedItem, error)

	// DeleteIfExpired deletes the item only while it is still Expired and
	// last modified before cutoff. Reports whether a row was deleted.
	DeleteIfExpired(ctx context.Context, id string, cutoff time.Time) (bool, error)

	// Statistics

	// GetGroupStats retrieves per-group item counts.
	GetGroupStats(ctx context.Context) ([]GroupStatsRow, error)

	// GetOverallStats retrieves overall statistics.
	GetOverallStats(ctx context.Context) (*OverallStats, error)

	// Search performs full-text search over titles and bodies, honoring the
	// visibility filter's excluded groups.
	Search(ctx context.Context, query string, filter *ItemFilter) ([]*models.SyndicatedItem, error)

	// Compact performs database maintenance.
	Compact(ctx context.Context) error
}
