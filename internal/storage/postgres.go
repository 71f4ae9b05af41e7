// ABOUTME: PostgreSQL storage implementation using sqlx and lib/pq
// ABOUTME: Shares filter SQL with the SQLite store and rebinds placeholders for Postgres

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/harper/syndicate/internal/models"
)

// PostgresStore implements the Store interface on PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// dbItem is the row shape of the items table.
type dbItem struct {
	ID              string    `db:"id"`
	ItemKey         string    `db:"item_key"`
	Slug            string    `db:"slug"`
	GroupKey        string    `db:"group_key"`
	State           string    `db:"state"`
	Title           string    `db:"title"`
	Body            string    `db:"body"`
	Summary         string    `db:"summary"`
	SourcePermalink string    `db:"source_permalink"`
	SourceGUID      string    `db:"source_guid"`
	PublishedAt     time.Time `db:"published_at"`
	CreatedAt       time.Time `db:"created_at"`
	ModifiedAt      time.Time `db:"modified_at"`
}

func (r dbItem) model() *models.SyndicatedItem {
	return &models.SyndicatedItem{
		ID:              r.ID,
		ItemKey:         r.ItemKey,
		Slug:            r.Slug,
		GroupKey:        r.GroupKey,
		State:           models.State(r.State),
		Title:           r.Title,
		Body:            r.Body,
		Summary:         r.Summary,
		SourcePermalink: r.SourcePermalink,
		SourceGUID:      r.SourceGUID,
		PublishedAt:     r.PublishedAt,
		CreatedAt:       r.CreatedAt,
		ModifiedAt:      r.ModifiedAt,
	}
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS source_groups (
			id TEXT PRIMARY KEY,
			group_key TEXT UNIQUE NOT NULL,
			feed_url TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			source_link TEXT NOT NULL DEFAULT '',
			etag TEXT,
			last_modified TEXT,
			last_fetched_at TIMESTAMPTZ,
			last_error TEXT,
			error_count INTEGER DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			item_key TEXT NOT NULL,
			slug TEXT NOT NULL,
			group_key TEXT NOT NULL REFERENCES source_groups(group_key),
			state TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			source_permalink TEXT NOT NULL DEFAULT '',
			source_guid TEXT NOT NULL,
			published_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			modified_at TIMESTAMPTZ NOT NULL,
			UNIQUE(group_key, item_key)
		);

		CREATE INDEX IF NOT EXISTS idx_items_group_state ON items(group_key, state);
		CREATE INDEX IF NOT EXISTS idx_items_slug ON items(group_key, slug);
		CREATE INDEX IF NOT EXISTS idx_items_state_modified ON items(state, modified_at);
		CREATE INDEX IF NOT EXISTS idx_items_published_at ON items(published_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.db.Rebind(query), args...)
}

// CreateGroup stores a new source group.
func (s *PostgresStore) CreateGroup(ctx context.Context, group *models.SourceGroup) error {
	query := `INSERT INTO source_groups (` + groupColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.exec(ctx, query,
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
func (s *PostgresStore) GetGroup(ctx context.Context, groupKey string) (*models.SourceGroup, error) {
	query := s.db.Rebind(`SELECT ` + groupColumns + ` FROM source_groups WHERE group_key = ?`)
	return scanGroup(s.db.QueryRowxContext(ctx, query, groupKey))
}

// ListGroups returns all groups ordered by display name.
func (s *PostgresStore) ListGroups(ctx context.Context) ([]*models.SourceGroup, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT `+groupColumns+` FROM source_groups ORDER BY display_name, created_at`)
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
func (s *PostgresStore) UpdateGroup(ctx context.Context, group *models.SourceGroup) error {
	result, err := s.exec(ctx,
		`UPDATE source_groups SET display_name = ?, source_link = ?, updated_at = ? WHERE group_key = ?`,
		group.DisplayName, group.SourceLink, group.UpdatedAt.UTC(), group.GroupKey,
	)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return expectRow(result, "group", group.GroupKey)
}

// UpdateGroupFetchState records caching headers and clears errors.
func (s *PostgresStore) UpdateGroupFetchState(ctx context.Context, groupKey string, etag, lastModified *string, fetchedAt time.Time) error {
	result, err := s.exec(ctx, `
		UPDATE source_groups SET
			etag = ?, last_modified = ?, last_fetched_at = ?,
			last_error = NULL, error_count = 0
		WHERE group_key = ?`,
		etag, lastModified, fetchedAt.UTC(), groupKey,
	)
	if err != nil {
		return fmt.Errorf("update group fetch state: %w", err)
	}
	return expectRow(result, "group", groupKey)
}

// UpdateGroupError records a poll error for a group.
func (s *PostgresStore) UpdateGroupError(ctx context.Context, groupKey string, errMsg string) error {
	result, err := s.exec(ctx, `UPDATE source_groups SET last_error = ?, error_count = error_count + 1 WHERE group_key = ?`, errMsg, groupKey)
	if err != nil {
		return fmt.Errorf("update group error: %w", err)
	}
	return expectRow(result, "group", groupKey)
}

// CreateItem stores a new item.
func (s *PostgresStore) CreateItem(ctx context.Context, item *models.SyndicatedItem) error {
	query := `INSERT INTO items (` + itemColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.exec(ctx, query,
		item.ID, item.ItemKey, item.Slug, item.GroupKey, string(item.State),
		item.Title, item.Body, item.Summary, item.SourcePermalink, item.SourceGUID,
		item.PublishedAt.UTC(), item.CreatedAt.UTC(), item.ModifiedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *PostgresStore) getItem(ctx context.Context, query string, args ...interface{}) (*models.SyndicatedItem, error) {
	var row dbItem
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return row.model(), nil
}

func (s *PostgresStore) selectItems(ctx context.Context, query string, args ...interface{}) ([]*models.SyndicatedItem, error) {
	var rows []dbItem
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	return lo.Map(rows, func(r dbItem, _ int) *models.SyndicatedItem { return r.model() }), nil
}

// GetItem retrieves an item by ID.
func (s *PostgresStore) GetItem(ctx context.Context, id string) (*models.SyndicatedItem, error) {
	return s.getItem(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
}

// GetItemByIDOrPrefix tries an exact ID first, then an ID prefix (min 6 chars).
func (s *PostgresStore) GetItemByIDOrPrefix(ctx context.Context, ref string) (*models.SyndicatedItem, error) {
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
	matches, err := s.selectItems(ctx, `SELECT `+itemColumns+` FROM items WHERE id LIKE ?`, ref+"%")
	if err != nil {
		return nil, err
	}
	return singleMatch(matches, ref)
}

// FindItems returns the items of a group, optionally restricted to one state.
func (s *PostgresStore) FindItems(ctx context.Context, groupKey string, state *models.State) ([]*models.SyndicatedItem, error) {
	filter := &ItemFilter{GroupKeys: []string{groupKey}}
	if state != nil {
		filter.States = []models.State{*state}
	}
	return s.ListItems(ctx, filter)
}

// FindByItemKey finds the item of a group whose slug is itemKey,
// with or without the trashed suffix.
func (s *PostgresStore) FindByItemKey(ctx context.Context, groupKey, itemKey string) (*models.SyndicatedItem, error) {
	return s.getItem(ctx,
		`SELECT `+itemColumns+` FROM items WHERE group_key = ? AND (slug = ? OR slug = ? OR item_key = ?) LIMIT 1`,
		groupKey, itemKey, models.TrashedSlug(itemKey), itemKey,
	)
}

// UpdateItemFields writes the named mirrored fields of an item.
func (s *PostgresStore) UpdateItemFields(ctx context.Context, id string, fields models.ItemFields, changed []string, modifiedAt time.Time) error {
	sets, args, err := fieldAssignments(fields, changed)
	if err != nil {
		return err
	}
	sets = append(sets, "modified_at = ?")
	args = append(args, modifiedAt.UTC(), id)

	result, err := s.exec(ctx, `UPDATE items SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update item fields: %w", err)
	}
	return expectRow(result, "item", id)
}

// SetItemState changes only the state of an item.
func (s *PostgresStore) SetItemState(ctx context.Context, id string, state models.State, modifiedAt time.Time) error {
	result, err := s.exec(ctx, `UPDATE items SET state = ?, modified_at = ? WHERE id = ?`, string(state), modifiedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("set item state: %w", err)
	}
	return expectRow(result, "item", id)
}

// UpdateItem writes state, slug and every mirrored field of an item in one statement.
func (s *PostgresStore) UpdateItem(ctx context.Context, item *models.SyndicatedItem) error {
	result, err := s.exec(ctx, `
		UPDATE items SET
			slug = ?, state = ?, title = ?, body = ?, summary = ?,
			source_permalink = ?, modified_at = ?
		WHERE id = ?`,
		item.Slug, string(item.State), item.Title, item.Body, item.Summary,
		item.SourcePermalink, item.ModifiedAt.UTC(), item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return expectRow(result, "item", item.ID)
}

// DeleteItem removes an item.
func (s *PostgresStore) DeleteItem(ctx context.Context, id string) error {
	result, err := s.exec(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return expectRow(result, "item", id)
}

// ListItems returns items matching the filter, newest published first.
func (s *PostgresStore) ListItems(ctx context.Context, filter *ItemFilter) ([]*models.SyndicatedItem, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	conditions, args := buildItemConditions(filter, "")
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY published_at DESC, created_at DESC"
	query += limitClause(filter, "ALL")
	return s.selectItems(ctx, query, args...)
}

// ListExpiredBefore returns Expired items last modified before cutoff.
func (s *PostgresStore) ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]*models.SyndicatedItem, error) {
	return s.selectItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE state = ? AND modified_at < ? ORDER BY modified_at`,
		string(models.StateExpired), cutoff.UTC(),
	)
}

// DeleteIfExpired deletes the item only while it is still Expired and
// last modified before cutoff.
func (s *PostgresStore) DeleteIfExpired(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	result, err := s.exec(ctx,
		`DELETE FROM items WHERE id = ? AND state = ? AND modified_at < ?`,
		id, string(models.StateExpired), cutoff.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("delete expired item: %w", err)
	}
	return deletedRow(result)
}

// GetGroupStats retrieves per-group item counts.
func (s *PostgresStore) GetGroupStats(ctx context.Context) ([]GroupStatsRow, error) {
	query := `
		SELECT g.group_key, g.feed_url, g.display_name, g.last_fetched_at, g.error_count, g.last_error,
			COUNT(*) FILTER (WHERE i.state = 'published'),
			COUNT(*) FILTER (WHERE i.state = 'expired'),
			COUNT(*) FILTER (WHERE i.state = 'suppressed')
		FROM source_groups g
		LEFT JOIN items i ON g.group_key = i.group_key
		GROUP BY g.group_key, g.feed_url, g.display_name, g.last_fetched_at, g.error_count, g.last_error
		ORDER BY g.display_name
	`
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query group stats: %w", err)
	}
	defer rows.Close()

	var stats []GroupStatsRow
	for rows.Next() {
		var row GroupStatsRow
		var lastFetched sql.NullTime
		if err := rows.Scan(
			&row.GroupKey, &row.FeedURL, &row.DisplayName, &lastFetched,
			&row.ErrorCount, &row.LastError, &row.Published, &row.Expired, &row.Suppressed,
		); err != nil {
			return nil, fmt.Errorf("scan group stats: %w", err)
		}
		if lastFetched.Valid {
			row.LastFetchedAt = &lastFetched.Time
		}
		stats = append(stats, row)
	}
	return stats, rows.Err()
}

// GetOverallStats retrieves overall statistics.
func (s *PostgresStore) GetOverallStats(ctx context.Context) (*OverallStats, error) {
	return overallStats(ctx, s.db)
}

// Search performs full-text search over titles and bodies.
func (s *PostgresStore) Search(ctx context.Context, query string, filter *ItemFilter) ([]*models.SyndicatedItem, error) {
	sqlQuery := `SELECT ` + itemColumns + ` FROM items
		WHERE to_tsvector('simple', title || ' ' || body) @@ plainto_tsquery('simple', ?)`
	args := []interface{}{query}

	conditions, condArgs := buildItemConditions(filter, "")
	if len(conditions) > 0 {
		sqlQuery += " AND " + strings.Join(conditions, " AND ")
		args = append(args, condArgs...)
	}
	sqlQuery += " ORDER BY published_at DESC"
	sqlQuery += limitClause(filter, "ALL")

	items, err := s.selectItems(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	return items, nil
}

// Compact performs database maintenance (VACUUM ANALYZE).
func (s *PostgresStore) Compact(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM ANALYZE"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// Ensure PostgresStore implements Store interface
var _ Store = (*PostgresStore)(nil)
