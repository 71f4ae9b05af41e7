// ABOUTME: SQL condition builder shared by the SQLite and Postgres stores
// ABOUTME: Turns an ItemFilter into a WHERE clause with ? placeholders

package storage

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/harper/syndicate/internal/models"
)

const itemColumns = `id, item_key, slug, group_key, state, title, body, summary,
	source_permalink, source_guid, published_at, created_at, modified_at`

// buildItemConditions returns the conditions and arguments for filter.
// Column names are qualified with prefix when it is non-empty.
func buildItemConditions(filter *ItemFilter, prefix string) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}
	if filter == nil {
		return conditions, args
	}

	col := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "." + name
	}

	if len(filter.GroupKeys) > 0 {
		conditions = append(conditions, col("group_key")+" IN ("+placeholders(len(filter.GroupKeys))+")")
		args = append(args, lo.ToAnySlice(filter.GroupKeys)...)
	}

	if len(filter.ExcludedGroups) > 0 {
		conditions = append(conditions, col("group_key")+" NOT IN ("+placeholders(len(filter.ExcludedGroups))+")")
		args = append(args, lo.ToAnySlice(filter.ExcludedGroups)...)
	}

	if len(filter.States) > 0 {
		states := lo.Map(filter.States, func(s models.State, _ int) string { return string(s) })
		conditions = append(conditions, col("state")+" IN ("+placeholders(len(states))+")")
		args = append(args, lo.ToAnySlice(states)...)
	}

	if filter.Since != nil {
		conditions = append(conditions, col("published_at")+" >= ?")
		args = append(args, filter.Since.UTC())
	}

	if filter.Until != nil {
		conditions = append(conditions, col("published_at")+" < ?")
		args = append(args, filter.Until.UTC())
	}

	return conditions, args
}

// limitClause renders LIMIT/OFFSET for filter. noLimit is the dialect's
// "unbounded" LIMIT value used when only an offset is given.
func limitClause(filter *ItemFilter, noLimit string) string {
	if filter == nil {
		return ""
	}
	var clause string
	if filter.Limit != nil {
		clause += fmt.Sprintf(" LIMIT %d", *filter.Limit)
	}
	if filter.Offset != nil {
		if filter.Limit == nil {
			clause += " LIMIT " + noLimit
		}
		clause += fmt.Sprintf(" OFFSET %d", *filter.Offset)
	}
	return clause
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
