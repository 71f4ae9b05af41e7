// ABOUTME: SQLite storage implementation using modernc.org/sqlite (pure Go)
// ABOUTME: Provides group and item persistence with FTS5 full-text search

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harper/syndicate/internal/models"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite storage instance.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	// WAL for concurrent readers; sqlite time format keeps stored timestamps comparable
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database tables if they don't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS source_groups (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT UNIQUE NOT NULL,
			group_key TEXT UNIQUE NOT NULL,
			feed_url TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			source_link TEXT NOT NULL DEFAULT '',
			etag TEXT,
			last_modified TEXT,
			last_fetched_at TIMESTAMP,
			last_error TEXT,
			error_count INTEGER DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS items (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT UNIQUE NOT NULL,
			item_key TEXT NOT NULL,
			slug TEXT NOT NULL,
			group_key TEXT NOT NULL REFERENCES source_groups(group_key),
			state TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			source_permalink TEXT NOT NULL DEFAULT '',
			source_guid TEXT NOT NULL,
			published_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			modified_at TIMESTAMP NOT NULL,
			UNIQUE(group_key, item_key)
		);

		CREATE INDEX IF NOT EXISTS idx_items_group_state ON items(group_key, state);
		CREATE INDEX IF NOT EXISTS idx_items_slug ON items(group_key, slug);
		CREATE INDEX IF NOT EXISTS idx_items_state_modified ON items(state, modified_at);
		CREATE INDEX IF NOT EXISTS idx_items_published_at ON items(published_at);

		-- FTS5 for content search
		CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			title,
			body,
			content=items,
			content_rowid=rowid
		);

		-- Triggers to keep FTS in sync
		CREATE TRIGGER IF NOT EXISTS items_ai AFTER INSERT ON items BEGIN
			INSERT INTO items_fts(rowid, title, body)
			VALUES (new.rowid, new.title, new.body);
		END;

		CREATE TRIGGER IF NOT EXISTS items_ad AFTER DELETE ON items BEGIN
			INSERT INTO items_fts(items_fts, rowid, title, body)
			VALUES ('delete', old.rowid, old.title, old.body);
		END;

		CREATE TRIGGER IF NOT EXISTS items_au AFTER UPDATE OF title, body ON items BEGIN
			INSERT INTO items_fts(items_fts, rowid, title, body)
			VALUES ('delete', old.rowid, old.title, old.body);
			INSERT INTO items_fts(rowid, title, body)
			VALUES (new.rowid, new.title, new.body);
		END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Group Operations

const groupColumns = `id, group_key, feed_url, display_name, source_link, etag, last_modified,
	last_fetched_at, last_error, error_count, created_at, updated_at`

// CreateGroup stores a new source group.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.SourceGroup) error {
	query := `INSERT INTO source_groups (` + groupColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		group.ID, group.GroupKey, group.FeedURL, group.DisplayName, group.SourceLink,
		group.ETag, group.LastModified, timeToSQL(group.LastFetchedAt),
		group.LastError, group.ErrorCount, group.CreatedAt.UTC(), group.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// GetGroup finds a group by its group key.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupKey string) (*models.SourceGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM source_groups WHERE group_key = ?`
	return scanGroup(s.db.QueryRowContext(ctx, query, groupKey))
}

// ListGroups returns all groups ordered by display name.
func (s *SQLiteStore) ListGroups(ctx context.Context) ([]*models.SourceGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM source_groups ORDER BY display_name, created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.SourceGroup
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// UpdateGroup updates display name and source link of an existing group.
func (s *SQLiteStore) UpdateGroup(ctx context.Context, group *models.SourceGroup) error {
	query := `UPDATE source_groups SET display_name = ?, source_link = ?, updated_at = ? WHERE group_key = ?`
	result, err := s.db.ExecContext(ctx, query, group.DisplayName, group.SourceLink, group.UpdatedAt.UTC(), group.GroupKey)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return expectRow(result, "group", group.GroupKey)
}

// UpdateGroupFetchState records caching headers and clears errors.
func (s *SQLiteStore) UpdateGroupFetchState(ctx context.Context, groupKey string, etag, lastModified *string, fetchedAt time.Time) error {
	query := `
		UPDATE source_groups SET
			etag = ?, last_modified = ?, last_fetched_at = ?,
			last_error = NULL, error_count = 0
		WHERE group_key = ?
	`
	result, err := s.db.ExecContext(ctx, query, etag, lastModified, fetchedAt.UTC(), groupKey)
	if err != nil {
		return fmt.Errorf("update group fetch state: %w", err)
	}
	return expectRow(result, "group", groupKey)
}

// UpdateGroupError records a poll error for a group.
func (s *SQLiteStore) UpdateGroupError(ctx context.Context, groupKey string, errMsg string) error {
	query := `UPDATE source_groups SET last_error = ?, error_count = error_count + 1 WHERE group_key = ?`
	result, err := s.db.ExecContext(ctx, query, errMsg, groupKey)
	if err != nil {
		return fmt.Errorf("update group error: %w", err)
	}
	return expectRow(result, "group", groupKey)
}

// Item Operations

// CreateItem stores a new item.
func (s *SQLiteStore) CreateItem(ctx context.Context, item *models.SyndicatedItem) error {
	query := `INSERT INTO items (` + itemColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.ItemKey, item.Slug, item.GroupKey, string(item.State),
		item.Title, item.Body, item.Summary, item.SourcePermalink, item.SourceGUID,
		item.PublishedAt.UTC(), item.CreatedAt.UTC(), item.ModifiedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// GetItem retrieves an item by ID.
func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*models.SyndicatedItem, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = ?`
	return scanItem(s.db.QueryRowContext(ctx, query, id))
}

// GetItemByIDOrPrefix tries an exact ID first, then an ID prefix (min 6 chars).
func (s *SQLiteStore) GetItemByIDOrPrefix(ctx context.Context, ref string) (*models.SyndicatedItem, error) {
	item, err := s.GetItem(ctx, ref)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if len(ref) < 6 {
		return nil, fmt.Errorf("prefix must be at least 6 characters")
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE id LIKE ?`
	rows, err := s.db.QueryContext(ctx, query, ref+"%")
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var matches []*models.SyndicatedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, item)
	}
	return singleMatch(matches, ref)
}

// FindItems returns the items of a group, optionally restricted to one state.
func (s *SQLiteStore) FindItems(ctx context.Context, groupKey string, state *models.State) ([]*models.SyndicatedItem, error) {
	filter := &ItemFilter{GroupKeys: []string{groupKey}}
	if state != nil {
		filter.States = []models.State{*state}
	}
	return s.ListItems(ctx, filter)
}

// FindByItemKey finds the item of a group whose slug is itemKey,
// with or without the trashed suffix.
func (s *SQLiteStore) FindByItemKey(ctx context.Context, groupKey, itemKey string) (*models.SyndicatedItem, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE group_key = ? AND (slug = ? OR slug = ? OR item_key = ?) LIMIT 1`
	return scanItem(s.db.QueryRowContext(ctx, query, groupKey, itemKey, models.TrashedSlug(itemKey), itemKey))
}

// UpdateItemFields writes the named mirrored fields of an item.
func (s *SQLiteStore) UpdateItemFields(ctx context.Context, id string, fields models.ItemFields, changed []string, modifiedAt time.Time) error {
	sets, args, err := fieldAssignments(fields, changed)
	if err != nil {
		return err
	}
	sets = append(sets, "modified_at = ?")
	args = append(args, modifiedAt.UTC(), id)

	query := `UPDATE items SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update item fields: %w", err)
	}
	return expectRow(result, "item", id)
}

// SetItemState changes only the state of an item.
func (s *SQLiteStore) SetItemState(ctx context.Context, id string, state models.State, modifiedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE items SET state = ?, modified_at = ? WHERE id = ?`, string(state), modifiedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("set item state: %w", err)
	}
	return expectRow(result, "item", id)
}

// UpdateItem writes state, slug and every mirrored field of an item in one statement.
func (s *SQLiteStore) UpdateItem(ctx context.Context, item *models.SyndicatedItem) error {
	query := `
		UPDATE items SET
			slug = ?, state = ?, title = ?, body = ?, summary = ?,
			source_permalink = ?, modified_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		item.Slug, string(item.State), item.Title, item.Body, item.Summary,
		item.SourcePermalink, item.ModifiedAt.UTC(), item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return expectRow(result, "item", item.ID)
}

// DeleteItem removes an item.
func (s *SQLiteStore) DeleteItem(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return expectRow(result, "item", id)
}

// ListItems returns items matching the filter, newest published first.
func (s *SQLiteStore) ListItems(ctx context.Context, filter *ItemFilter) ([]*models.SyndicatedItem, error) {
	query := `SELECT ` + itemColumns + ` FROM items`

	conditions, args := buildItemConditions(filter, "")
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY published_at DESC, rowid DESC"
	query += limitClause(filter, "-1")

	return s.queryItems(ctx, query, args...)
}

// ListExpiredBefore returns Expired items last modified before cutoff.
func (s *SQLiteStore) ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]*models.SyndicatedItem, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE state = ? AND modified_at < ? ORDER BY modified_at`
	return s.queryItems(ctx, query, string(models.StateExpired), cutoff.UTC())
}

// DeleteIfExpired deletes the item only while it is still Expired and
// last modified before cutoff.
func (s *SQLiteStore) DeleteIfExpired(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE id = ? AND state = ? AND modified_at < ?`,
		id, string(models.StateExpired), cutoff.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("delete expired item: %w", err)
	}
	return deletedRow(result)
}

// Statistics

// GetGroupStats retrieves per-group item counts.
func (s *SQLiteStore) GetGroupStats(ctx context.Context) ([]GroupStatsRow, error) {
	query := `
		SELECT g.group_key, g.feed_url, g.display_name, g.last_fetched_at, g.error_count, g.last_error,
			SUM(CASE WHEN i.state = 'published' THEN 1 ELSE 0 END),
			SUM(CASE WHEN i.state = 'expired' THEN 1 ELSE 0 END),
			SUM(CASE WHEN i.state = 'suppressed' THEN 1 ELSE 0 END)
		FROM source_groups g
		LEFT JOIN items i ON g.group_key = i.group_key
		GROUP BY g.group_key
		ORDER BY g.display_name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query group stats: %w", err)
	}
	defer rows.Close()

	var stats []GroupStatsRow
	for rows.Next() {
		var row GroupStatsRow
		var lastFetched sql.NullTime
		var published, expired, suppressed sql.NullInt64
		if err := rows.Scan(
			&row.GroupKey, &row.FeedURL, &row.DisplayName, &lastFetched,
			&row.ErrorCount, &row.LastError, &published, &expired, &suppressed,
		); err != nil {
			return nil, fmt.Errorf("scan group stats: %w", err)
		}
		if lastFetched.Valid {
			row.LastFetchedAt = &lastFetched.Time
		}
		row.Published = int(published.Int64)
		row.Expired = int(expired.Int64)
		row.Suppressed = int(suppressed.Int64)
		stats = append(stats, row)
	}
	return stats, rows.Err()
}

// GetOverallStats retrieves overall statistics.
func (s *SQLiteStore) GetOverallStats(ctx context.Context) (*OverallStats, error) {
	return overallStats(ctx, s.db)
}

// Search performs full-text search over titles and bodies.
func (s *SQLiteStore) Search(ctx context.Context, query string, filter *ItemFilter) ([]*models.SyndicatedItem, error) {
	sqlQuery := `
		SELECT i.id, i.item_key, i.slug, i.group_key, i.state, i.title, i.body, i.summary,
			i.source_permalink, i.source_guid, i.published_at, i.created_at, i.modified_at
		FROM items i
		INNER JOIN items_fts fts ON i.rowid = fts.rowid
		WHERE items_fts MATCH ?
	`
	args := []interface{}{query}

	conditions, condArgs := buildItemConditions(filter, "i")
	if len(conditions) > 0 {
		sqlQuery += " AND " + strings.Join(conditions, " AND ")
		args = append(args, condArgs...)
	}
	sqlQuery += " ORDER BY rank"
	sqlQuery += limitClause(filter, "-1")

	items, err := s.queryItems(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	return items, nil
}

// Compact performs database maintenance (VACUUM).
func (s *SQLiteStore) Compact(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// Helper functions

func (s *SQLiteStore) queryItems(ctx context.Context, query string, args ...interface{}) ([]*models.SyndicatedItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*models.SyndicatedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
