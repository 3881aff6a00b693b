package domain

import (
	"bytes"
	"reflect"
	"strings"
)

// Cell is one addressable (column, row, value) unit. Repair actions
// target cells.
type Cell struct {
	Column Column
	Tid    int
	Value  interface{}
}

// Row is an ordered value vector bound to a schema, with a stable
// surrogate identifier unique within one materialized snapshot.
type Row struct {
	tid    int
	schema *Schema
	values []interface{}
}

// NewRow creates a Row. The value vector must be positionally aligned
// with the schema and the row id must be at least 1.
func NewRow(tid int, schema *Schema, values []interface{}) (*Row, error) {
	if schema == nil || values == nil {
		return nil, ErrIntegrity("row schema/values cannot be nil")
	}
	if schema.Size() != len(values) {
		return nil, ErrIntegrity(
			"row values do not match the schema: schema has %d columns but values has %d",
			schema.Size(), len(values))
	}
	if tid < 1 {
		return nil, ErrIntegrity("row id cannot be less than 1, got %d", tid)
	}
	return &Row{tid: tid, schema: schema, values: values}, nil
}

// Tid returns the row id.
func (r *Row) Tid() int { return r.tid }

// Schema returns the row's schema.
func (r *Row) Schema() *Schema { return r.schema }

// Get returns the value at the given column.
func (r *Row) Get(c Column) (interface{}, error) {
	i, err := r.schema.IndexOf(c)
	if err != nil {
		return nil, err
	}
	return r.values[i], nil
}

// GetByName returns the value at the named column of the row's own table.
func (r *Row) GetByName(columnName string) (interface{}, error) {
	return r.Get(NewColumn(r.schema.TableName(), columnName))
}

// GetString returns the value at the given column cast to text.
func (r *Row) GetString(c Column) (string, error) {
	v, err := r.Get(c)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", ErrType("value of column %s is %T, not text", c, v)
	}
}

// GetCell returns the addressable cell at the given column.
func (r *Row) GetCell(c Column) (Cell, error) {
	v, err := r.Get(c)
	if err != nil {
		return Cell{}, err
	}
	return Cell{Column: c, Tid: r.tid, Value: v}, nil
}

// Cells returns the addressable cells of the row, excluding the reserved
// row-identifier column.
func (r *Row) Cells() []Cell {
	cells := make([]Cell, 0, len(r.values))
	for i, c := range r.schema.Columns() {
		if strings.EqualFold(c.ColumnName, TidColumn) {
			continue
		}
		cells = append(cells, Cell{Column: c, Tid: r.tid, Value: r.values[i]})
	}
	return cells
}

// HasSameValue reports whether the other row carries the same values.
// Rows sharing an equal row-identifier value under a row-id-bearing schema
// are treated as identical without comparing the remaining values; this
// assumes row ids are never reused for different content within one
// snapshot's lifetime. Otherwise values are compared positionally, skipping
// the identifier column.
func (r *Row) HasSameValue(other *Row) bool {
	if other == nil {
		return false
	}
	if r == other || len(r.values) > 0 && len(other.values) == len(r.values) && &r.values[0] == &other.values[0] {
		return true
	}
	if len(r.values) != len(other.values) {
		return false
	}

	tidIndex, hasTid := r.schema.TidIndex()
	if hasTid && valueEqual(r.values[tidIndex], other.values[tidIndex]) {
		return true
	}

	for i := range r.values {
		if hasTid && i == tidIndex {
			continue
		}
		if !valueEqual(r.values[i], other.values[i]) {
			return false
		}
	}
	return true
}

// valueEqual compares two materialized values. Byte slices compare by
// content; everything else by deep equality.
func valueEqual(a, b interface{}) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}
	return reflect.DeepEqual(a, b)
}

// Select reorders and narrows the value vector to match the new schema's
// column order, replacing both schema and values on the row. Every column
// of the new schema must exist in the current schema.
func (r *Row) Select(newSchema *Schema) error {
	if newSchema == nil {
		return ErrIntegrity("projection target schema cannot be nil")
	}
	nvalues := make([]interface{}, 0, newSchema.Size())
	for _, c := range newSchema.Columns() {
		i, err := r.schema.IndexOf(c)
		if err != nil {
			return err
		}
		nvalues = append(nvalues, r.values[i])
	}
	r.schema = newSchema
	r.values = nvalues
	return nil
}

// IsFromTable reports whether the row originates from the named table.
// Tables materialized from flat-file imports carry the import prefix and
// match on the remainder of the name.
func (r *Row) IsFromTable(name string) bool {
	tableName := r.schema.TableName()
	if strings.EqualFold(tableName, name) {
		return true
	}
	if strings.HasPrefix(tableName, ImportPrefix) {
		return strings.EqualFold(tableName[len(ImportPrefix):], name)
	}
	return false
}
