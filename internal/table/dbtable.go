package table

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"

	"scrub/internal/domain"
	"scrub/internal/query"
	"scrub/internal/store"
)

// state tracks where a table stands relative to its backing store.
type state int

const (
	stateUnsynced state = iota // never materialized
	stateDirty                 // shaped since the last materialization
	stateSynced                // cache consistent with the query description
	stateRecycled              // released; unusable
)

// DBTable is a Table backed by a source store. It accumulates an immutable
// query spec instead of executing eagerly and materializes schema and rows
// on first access. Materialization is guarded by a per-instance single
// flight so concurrent accessors trigger at most one store round trip.
//
// Store failures during synchronization are logged and degraded: accessors
// proceed with the previous materialization, or an empty one if none
// exists. GroupBy is the exception — it reports its fallback explicitly.
type DBTable struct {
	source *store.Source
	name   string
	logger *slog.Logger

	mu         sync.Mutex
	st         state
	dataLoaded bool
	spec       query.Spec
	schema     *domain.Schema
	rows       []*domain.Row

	flight singleflight.Group
}

// New creates a DBTable over the named relation in the given source store.
func New(source *store.Source, name string, logger *slog.Logger) (*DBTable, error) {
	if source == nil {
		return nil, fmt.Errorf("table %q: source store is required", name)
	}
	if err := query.ValidateIdentifier(name); err != nil {
		return nil, fmt.Errorf("invalid table name %q: %w", name, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DBTable{
		source: source,
		name:   name,
		logger: logger,
		spec:   query.NewSpec(name),
	}, nil
}

// Name returns the source table name.
func (t *DBTable) Name() string { return t.name }

// NeedsSync reports whether the next accessor call will re-materialize.
func (t *DBTable) NeedsSync() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st == stateUnsynced || t.st == stateDirty
}

// Project appends columns to the select list and marks the table dirty.
func (t *DBTable) Project(columns ...domain.Column) Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st == stateRecycled {
		t.logger.Warn("shaping call on recycled table ignored", "table", t.name)
		return t
	}
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, c.ColumnName)
	}
	t.spec = t.spec.WithSelect(names...)
	t.markDirtyLocked()
	return t
}

// Filter appends predicates to the query description and marks the table dirty.
func (t *DBTable) Filter(predicates ...query.Predicate) Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st == stateRecycled {
		t.logger.Warn("shaping call on recycled table ignored", "table", t.name)
		return t
	}
	t.spec = t.spec.WithWhere(predicates...)
	t.markDirtyLocked()
	return t
}

// OrderBy appends ordering columns to the query description and marks the
// table dirty.
func (t *DBTable) OrderBy(columns ...domain.Column) Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st == stateRecycled {
		t.logger.Warn("shaping call on recycled table ignored", "table", t.name)
		return t
	}
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, c.ColumnName)
	}
	t.spec = t.spec.WithOrderBy(names...)
	t.markDirtyLocked()
	return t
}

func (t *DBTable) markDirtyLocked() {
	if t.st == stateSynced {
		t.st = stateDirty
	}
}

// Size returns the number of materialized rows.
func (t *DBTable) Size(ctx context.Context) int {
	t.syncDataIfNeeded(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Schema returns the materialized schema, discovering it from the store
// with a row limit of one when no full materialization exists yet.
func (t *DBTable) Schema(ctx context.Context) *domain.Schema {
	t.syncSchemaIfNeeded(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.schema
}

// Get returns the i-th materialized row, or false when out of range.
func (t *DBTable) Get(ctx context.Context, i int) (*domain.Row, bool) {
	t.syncDataIfNeeded(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.rows) {
		return nil, false
	}
	return t.rows[i], true
}

// Recycle releases cached rows and poisons the instance. Not intended to
// be called while other holders still use the table.
func (t *DBTable) Recycle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = nil
	t.schema = nil
	t.st = stateRecycled
}

// Equal reports whether the other table is the same relation: equal store
// config and equal table name short-circuit regardless of accumulated
// query state; otherwise the materialized row collections are compared.
func (t *DBTable) Equal(ctx context.Context, other *DBTable) bool {
	if t == other {
		return true
	}
	if other == nil {
		return false
	}
	if t.source.Config == other.source.Config && t.name == other.name {
		return true
	}

	if t.Size(ctx) != other.Size(ctx) {
		return false
	}
	for i := 0; i < t.Size(ctx); i++ {
		a, _ := t.Get(ctx, i)
		b, _ := other.Get(ctx, i)
		if a == nil || !a.HasSameValue(b) {
			return false
		}
	}
	return true
}

// Hash combines the store config and the table name order-sensitively.
func (t *DBTable) Hash() uint64 {
	h := xxh3.New()
	cfg := t.source.Config
	for _, s := range []string{cfg.Name, cfg.Driver, cfg.DSN, t.name} {
		_, _ = h.WriteString(s)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// syncSchemaIfNeeded materializes the schema only, running the accumulated
// query with a row limit of one and discovering columns from the result
// metadata.
func (t *DBTable) syncSchemaIfNeeded(ctx context.Context) {
	t.mu.Lock()
	if t.st == stateRecycled || t.st == stateSynced {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	_, _, _ = t.flight.Do("schema", func() (interface{}, error) {
		t.mu.Lock()
		if t.st == stateRecycled || t.st == stateSynced {
			t.mu.Unlock()
			return nil, nil
		}
		spec := t.spec.WithLimit(1)
		t.mu.Unlock()

		schema, _, err := t.runQuery(ctx, spec, true)

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.st == stateRecycled {
			return nil, nil
		}
		if err != nil {
			t.logger.Error("schema sync failed, keeping previous schema",
				"table", t.name, "error", err)
			t.st = stateSynced
			t.dataLoaded = false
			return nil, nil
		}
		t.schema = schema
		t.st = stateSynced
		t.dataLoaded = false
		return nil, nil
	})
}

// syncDataIfNeeded materializes schema and rows by running the accumulated
// query without a limit.
func (t *DBTable) syncDataIfNeeded(ctx context.Context) {
	t.mu.Lock()
	if t.st == stateRecycled || (t.st == stateSynced && t.dataLoaded) {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	_, _, _ = t.flight.Do("data", func() (interface{}, error) {
		t.mu.Lock()
		if t.st == stateRecycled || (t.st == stateSynced && t.dataLoaded) {
			t.mu.Unlock()
			return nil, nil
		}
		spec := t.spec
		t.mu.Unlock()

		schema, rows, err := t.runQuery(ctx, spec, false)

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.st == stateRecycled {
			return nil, nil
		}
		if err != nil {
			t.logger.Error("table sync failed, proceeding with previous materialization",
				"table", t.name, "cached_rows", len(t.rows), "error", err)
			if t.rows == nil {
				t.rows = []*domain.Row{}
			}
			t.st = stateSynced
			t.dataLoaded = true
			return nil, nil
		}
		t.schema = schema
		t.rows = rows
		t.st = stateSynced
		t.dataLoaded = true
		return nil, nil
	})
}

// runQuery executes the spec against the source store and builds the
// schema (and rows, unless schemaOnly) from the result. The row id is
// extracted from the conventional identifier column when present;
// otherwise rows get snapshot-local ordinal ids.
func (t *DBTable) runQuery(ctx context.Context, spec query.Spec, schemaOnly bool) (*domain.Schema, []*domain.Row, error) {
	sqlText := spec.SQL()
	t.logger.Debug("executing query", "table", t.name, "sql", sqlText)

	result, err := t.source.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, domain.ErrStoreUnavailable(err, "query table %s", t.name)
	}
	defer result.Close()

	colNames, err := result.Columns()
	if err != nil {
		return nil, nil, domain.ErrStoreUnavailable(err, "column metadata for table %s", t.name)
	}
	columns := make([]domain.Column, 0, len(colNames))
	tidIndex := -1
	for i, name := range colNames {
		if strings.EqualFold(name, domain.TidColumn) {
			tidIndex = i
		}
		columns = append(columns, domain.NewColumn(t.name, name))
	}
	schema := domain.NewSchema(t.name, columns)

	if schemaOnly {
		return schema, nil, result.Err()
	}

	var rows []*domain.Row
	for result.Next() {
		values := make([]interface{}, len(colNames))
		ptrs := make([]interface{}, len(colNames))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := result.Scan(ptrs...); err != nil {
			return nil, nil, domain.ErrStoreUnavailable(err, "scan row of table %s", t.name)
		}

		tid := len(rows) + 1 // degraded mode: snapshot-local ordinal id
		if tidIndex >= 0 {
			if id, ok := asInt(values[tidIndex]); ok {
				tid = id
			}
		}
		row, err := domain.NewRow(tid, schema, values)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, nil, domain.ErrStoreUnavailable(err, "iterate table %s", t.name)
	}
	return schema, rows, nil
}

// asInt coerces a scanned store value to an int row id.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}
