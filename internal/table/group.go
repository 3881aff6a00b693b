package table

import (
	"context"
	"fmt"

	"scrub/internal/domain"
	"scrub/internal/query"
)

// GroupBy partitions the table by the given columns, refining partition
// by partition for each column in sequence and flattening the results.
// Every row of a partition shares the grouped columns' values; partitions
// are pairwise disjoint and together cover the table.
func (t *DBTable) GroupBy(ctx context.Context, columns ...domain.Column) GroupResult {
	result := GroupResult{Partitions: []Table{Table(t)}, Source: GroupFromStore}
	for _, column := range columns {
		var next []Table
		for _, part := range result.Partitions {
			var r GroupResult
			if dt, ok := part.(*DBTable); ok {
				r = dt.groupOn(ctx, column)
			} else {
				r = part.GroupBy(ctx, column)
			}
			if r.Source == GroupFromMemory {
				result.Source = GroupFromMemory
				if result.Err == nil {
					result.Err = r.Err
				}
			}
			next = append(next, r.Partitions...)
		}
		result.Partitions = next
	}
	return result
}

// groupOn partitions by one column. The store path creates a best-effort
// index, scans the distinct values, and derives one table per value by
// extending the current query spec with an equality predicate. Any store
// failure falls back to partitioning the already-materialized rows in
// memory.
func (t *DBTable) groupOn(ctx context.Context, column domain.Column) GroupResult {
	colName := column.ColumnName
	if err := query.ValidateIdentifier(colName); err != nil {
		return t.groupInMemory(ctx, column, fmt.Errorf("invalid group column %q: %w", colName, err))
	}

	// Index creation is purely an optimization; failure never aborts the
	// read path.
	indexSQL := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		query.QuoteIdentifier("idx_"+t.name+"_"+colName),
		query.QuoteIdentifier(t.name),
		query.QuoteIdentifier(colName))
	if _, err := t.source.ExecContext(ctx, indexSQL); err != nil {
		t.logger.Debug("ad-hoc index creation skipped",
			"table", t.name, "column", colName, "error", err)
	}

	distinctSQL := fmt.Sprintf("SELECT DISTINCT %s FROM %s",
		query.QuoteIdentifier(colName), query.QuoteIdentifier(t.name))
	result, err := t.source.QueryContext(ctx, distinctSQL)
	if err != nil {
		return t.groupInMemory(ctx, column, err)
	}
	defer result.Close()

	t.mu.Lock()
	spec := t.spec
	t.mu.Unlock()

	var partitions []Table
	for result.Next() {
		var value interface{}
		if err := result.Scan(&value); err != nil {
			return t.groupInMemory(ctx, column, err)
		}
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		partitions = append(partitions, &DBTable{
			source: t.source,
			name:   t.name,
			logger: t.logger,
			spec:   spec.WithWhere(query.Eq(column, value)),
		})
	}
	if err := result.Err(); err != nil {
		return t.groupInMemory(ctx, column, err)
	}
	return GroupResult{Partitions: partitions, Source: GroupFromStore}
}

// groupInMemory is the backup plan: partition whatever is already
// materialized (or materializable from cache) by the column's value.
func (t *DBTable) groupInMemory(ctx context.Context, column domain.Column, cause error) GroupResult {
	t.logger.Warn("grouping via store failed, partitioning in memory",
		"table", t.name, "column", column.ColumnName, "error", cause)

	t.syncDataIfNeeded(ctx)
	t.mu.Lock()
	rows := t.rows
	schema := t.schema
	t.mu.Unlock()

	partitions := partitionRows(t.name, schema, rows, column)
	return GroupResult{Partitions: partitions, Source: GroupFromMemory, Err: cause}
}

// partitionRows splits rows into one MemTable per distinct value of the
// column, preserving first-seen order of the group keys.
func partitionRows(name string, schema *domain.Schema, rows []*domain.Row, column domain.Column) []Table {
	var order []string
	buckets := make(map[string][]*domain.Row)

	for _, row := range rows {
		key := groupKey(row, column)
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], row)
	}

	partitions := make([]Table, 0, len(order))
	for _, key := range order {
		partitions = append(partitions, NewMemTable(name, schema, buckets[key]))
	}
	return partitions
}

// groupKey renders a row's value under the column as a partition key.
// The column is resolved by name so a caller's column casing does not
// have to match the discovered schema exactly.
func groupKey(row *domain.Row, column domain.Column) string {
	resolved, ok := row.Schema().ColumnNamed(column.ColumnName)
	if !ok {
		return ""
	}
	v, err := row.Get(resolved)
	if err != nil {
		return ""
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
