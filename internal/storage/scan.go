// ABOUTME: Row scanning and result helpers shared by the SQL stores
// ABOUTME: Maps NULL columns to pointers and sql.ErrNoRows to ErrNotFound

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harper/syndicate/internal/models"
)

// scanner is satisfied by *sql.Row, *sql.Rows and their sqlx wrappers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGroup(row scanner) (*models.SourceGroup, error) {
	var group models.SourceGroup
	var lastFetched sql.NullTime
	if err := row.Scan(
		&group.ID, &group.GroupKey, &group.FeedURL, &group.DisplayName, &group.SourceLink,
		&group.ETag, &group.LastModified, &lastFetched,
		&group.LastError, &group.ErrorCount, &group.CreatedAt, &group.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("group: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan group: %w", err)
	}
	if lastFetched.Valid {
		group.LastFetchedAt = &lastFetched.Time
	}
	return &group, nil
}

func scanItem(row scanner) (*models.SyndicatedItem, error) {
	var item models.SyndicatedItem
	var state string
	if err := row.Scan(
		&item.ID, &item.ItemKey, &item.Slug, &item.GroupKey, &state,
		&item.Title, &item.Body, &item.Summary, &item.SourcePermalink, &item.SourceGUID,
		&item.PublishedAt, &item.CreatedAt, &item.ModifiedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	item.State = models.State(state)
	return &item, nil
}

// fieldAssignments renders SET assignments for the named mirrored fields.
func fieldAssignments(fields models.ItemFields, changed []string) ([]string, []interface{}, error) {
	if len(changed) == 0 {
		return nil, nil, fmt.Errorf("no fields to update")
	}
	sets := make([]string, 0, len(changed)+1)
	args := make([]interface{}, 0, len(changed)+2)
	for _, name := range changed {
		switch name {
		case models.FieldTitle:
			args = append(args, fields.Title)
		case models.FieldBody:
			args = append(args, fields.Body)
		case models.FieldSummary:
			args = append(args, fields.Summary)
		case models.FieldPermalink:
			args = append(args, fields.SourcePermalink)
		default:
			return nil, nil, fmt.Errorf("unknown item field %q", name)
		}
		sets = append(sets, name+" = ?")
	}
	return sets, args, nil
}

// deletedRow reports whether a conditional DELETE removed a row.
func deletedRow(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete expired item: rows affected: %w", err)
	}
	return rows > 0, nil
}

func expectRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: rows affected: %w", kind, id, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func singleMatch(matches []*models.SyndicatedItem, prefix string) (*models.SyndicatedItem, error) {
	if len(matches) == 0 {
		return nil, fmt.Errorf("no item found with prefix %s: %w", prefix, ErrNotFound)
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("ambiguous prefix %s matches %d items", prefix, len(matches))
	}
	return matches[0], nil
}

// queryRower is the subset of *sql.DB and *sqlx.DB used for counting.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func overallStats(ctx context.Context, db queryRower) (*OverallStats, error) {
	var stats OverallStats

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM source_groups`).Scan(&stats.TotalGroups); err != nil {
		return nil, fmt.Errorf("count groups: %w", err)
	}

	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN state = 'published' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'expired' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'suppressed' THEN 1 ELSE 0 END), 0)
		FROM items
	`
	if err := db.QueryRowContext(ctx, query).Scan(
		&stats.TotalItems, &stats.Published, &stats.Expired, &stats.Suppressed,
	); err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}

	return &stats, nil
}

func timeToSQL(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
