// Package table provides the queryable table abstraction over source stores.
package table

import (
	"context"

	"scrub/internal/domain"
	"scrub/internal/query"
)

// Table is an ordered, queryable row collection. Store-backed tables defer
// work to the store and materialize lazily; shaping calls narrow the query
// before the next materialization and return the receiver for chaining.
// A table is released with Recycle when its owner is done with it, after
// which it must not be reused.
type Table interface {
	// Name returns the source table name.
	Name() string
	// Size returns the number of materialized rows.
	Size(ctx context.Context) int
	// Schema returns the materialized schema.
	Schema(ctx context.Context) *domain.Schema
	// Get returns the i-th row, or false when out of range.
	Get(ctx context.Context, i int) (*domain.Row, bool)
	// Project appends columns to the select list.
	Project(columns ...domain.Column) Table
	// Filter appends predicates to the query description.
	Filter(predicates ...query.Predicate) Table
	// OrderBy appends ordering columns to the query description.
	OrderBy(columns ...domain.Column) Table
	// GroupBy partitions the table by the given columns, refining
	// column by column.
	GroupBy(ctx context.Context, columns ...domain.Column) GroupResult
	// Recycle releases cached rows. The instance is unusable afterwards.
	Recycle()
}

// GroupSource says which path produced a partition set.
type GroupSource int

const (
	// GroupFromStore means the partitions are store-backed derived tables.
	GroupFromStore GroupSource = iota
	// GroupFromMemory means the store failed and the partitions were
	// computed from the already-materialized in-memory rows.
	GroupFromMemory
)

func (s GroupSource) String() string {
	if s == GroupFromMemory {
		return "memory"
	}
	return "store"
}

// GroupResult is the outcome of a GroupBy: the partitions, which path
// produced them, and the store error that forced a fallback, if any.
type GroupResult struct {
	Partitions []Table
	Source     GroupSource
	Err        error
}
