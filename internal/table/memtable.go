package table

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"scrub/internal/domain"
	"scrub/internal/query"
)

// MemTable is a Table over already-materialized rows. It backs the
// in-memory fallback of grouping and carries no store connection, so its
// shaping calls are evaluated directly against the cached rows.
type MemTable struct {
	name     string
	schema   *domain.Schema
	rows     []*domain.Row
	recycled bool
}

// NewMemTable creates a MemTable over the given rows. The table takes
// ownership of the slice.
func NewMemTable(name string, schema *domain.Schema, rows []*domain.Row) *MemTable {
	return &MemTable{name: name, schema: schema, rows: rows}
}

// Name returns the source table name.
func (t *MemTable) Name() string { return t.name }

// Size returns the number of rows.
func (t *MemTable) Size(_ context.Context) int { return len(t.rows) }

// Schema returns the table schema.
func (t *MemTable) Schema(_ context.Context) *domain.Schema { return t.schema }

// Get returns the i-th row, or false when out of range.
func (t *MemTable) Get(_ context.Context, i int) (*domain.Row, bool) {
	if i < 0 || i >= len(t.rows) {
		return nil, false
	}
	return t.rows[i], true
}

// Project narrows the table to the given columns, rebuilding each row
// against the narrowed schema. Shaping calls never fail: a column absent
// from the schema leaves the table unchanged, unlike Row.Select, which
// reports a lookup error. Fallback partitions keep the laxer contract so
// a rule shaping them behaves like it does on store-backed tables.
func (t *MemTable) Project(columns ...domain.Column) Table {
	if t.recycled {
		return t
	}
	resolved := make([]domain.Column, 0, len(columns))
	for _, c := range columns {
		rc, ok := t.schema.ColumnNamed(c.ColumnName)
		if !ok {
			return t
		}
		resolved = append(resolved, rc)
	}
	newSchema := domain.NewSchema(t.name, resolved)

	projected := make([]*domain.Row, 0, len(t.rows))
	for _, row := range t.rows {
		values := make([]interface{}, 0, len(resolved))
		for _, c := range resolved {
			v, err := row.Get(c)
			if err != nil {
				return t
			}
			values = append(values, v)
		}
		nrow, err := domain.NewRow(row.Tid(), newSchema, values)
		if err != nil {
			return t
		}
		projected = append(projected, nrow)
	}
	t.schema = newSchema
	t.rows = projected
	return t
}

// Filter keeps only rows matching every predicate.
func (t *MemTable) Filter(predicates ...query.Predicate) Table {
	if t.recycled {
		return t
	}
	kept := make([]*domain.Row, 0, len(t.rows))
	for _, row := range t.rows {
		match := true
		for _, p := range predicates {
			if !rowMatches(row, p) {
				match = false
				break
			}
		}
		if match {
			kept = append(kept, row)
		}
	}
	t.rows = kept
	return t
}

// OrderBy sorts rows by the given columns, in sequence.
func (t *MemTable) OrderBy(columns ...domain.Column) Table {
	if t.recycled {
		return t
	}
	sort.SliceStable(t.rows, func(i, j int) bool {
		for _, c := range columns {
			rc, ok := t.schema.ColumnNamed(c.ColumnName)
			if !ok {
				continue
			}
			a, _ := t.rows[i].Get(rc)
			b, _ := t.rows[j].Get(rc)
			if cmp := compareValues(a, b); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	return t
}

// GroupBy partitions the rows by the given columns, refining column by
// column.
func (t *MemTable) GroupBy(ctx context.Context, columns ...domain.Column) GroupResult {
	result := GroupResult{Partitions: []Table{Table(t)}, Source: GroupFromMemory}
	for _, column := range columns {
		var next []Table
		for _, part := range result.Partitions {
			mt, ok := part.(*MemTable)
			if !ok {
				r := part.GroupBy(ctx, column)
				next = append(next, r.Partitions...)
				continue
			}
			next = append(next, partitionRows(mt.name, mt.schema, mt.rows, column)...)
		}
		result.Partitions = next
	}
	return result
}

// Recycle releases the rows. The instance is unusable afterwards.
func (t *MemTable) Recycle() {
	t.rows = nil
	t.schema = nil
	t.recycled = true
}

// rowMatches evaluates one predicate against a row.
func rowMatches(row *domain.Row, p query.Predicate) bool {
	rc, ok := row.Schema().ColumnNamed(p.Column.ColumnName)
	if !ok {
		return false
	}
	v, err := row.Get(rc)
	if err != nil {
		return false
	}
	if b, okB := v.([]byte); okB {
		v = string(b)
	}

	switch p.Op {
	case query.OpEq:
		return compareValues(v, p.Value) == 0
	case query.OpNeq:
		return compareValues(v, p.Value) != 0
	case query.OpGt:
		return compareValues(v, p.Value) > 0
	case query.OpGte:
		return compareValues(v, p.Value) >= 0
	case query.OpLt:
		return compareValues(v, p.Value) < 0
	case query.OpLte:
		return compareValues(v, p.Value) <= 0
	case query.OpLike:
		return likeMatch(fmt.Sprintf("%v", v), fmt.Sprintf("%v", p.Value))
	default:
		return false
	}
}

// compareValues orders two store values: numerically when both coerce to
// numbers, lexically otherwise. NULL sorts first.
func compareValues(a, b interface{}) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// likeMatch supports the common LIKE shapes: %x, x%, %x% and exact.
func likeMatch(value, pattern string) bool {
	leading := strings.HasPrefix(pattern, "%")
	trailing := strings.HasSuffix(pattern, "%")
	core := strings.Trim(pattern, "%")
	switch {
	case leading && trailing:
		return strings.Contains(value, core)
	case leading:
		return strings.HasSuffix(value, core)
	case trailing:
		return strings.HasPrefix(value, core)
	default:
		return value == pattern
	}
}
