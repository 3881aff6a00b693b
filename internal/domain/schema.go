package domain

import "strings"

// TidColumn is the conventional name of the integer identifier column
// every queryable relation is expected to expose. Relations without it
// materialize rows with no usable row id.
const TidColumn = "tid"

// ImportPrefix tags tables that were materialized from flat-file imports
// and internally renamed.
const ImportPrefix = "csv_"

// Column identifies one column of one table.
type Column struct {
	TableName  string
	ColumnName string
}

// NewColumn creates a Column for the given table and column name.
func NewColumn(tableName, columnName string) Column {
	return Column{TableName: tableName, ColumnName: columnName}
}

func (c Column) String() string {
	return c.TableName + "." + c.ColumnName
}

// Schema is an ordered, duplicate-free sequence of columns for one table.
type Schema struct {
	tableName string
	columns   []Column
	index     map[Column]int
}

// NewSchema creates a Schema from the given columns, preserving order and
// dropping duplicates.
func NewSchema(tableName string, columns []Column) *Schema {
	s := &Schema{
		tableName: tableName,
		index:     make(map[Column]int, len(columns)),
	}
	for _, c := range columns {
		if _, ok := s.index[c]; ok {
			continue
		}
		s.index[c] = len(s.columns)
		s.columns = append(s.columns, c)
	}
	return s
}

// TableName returns the name of the table this schema describes.
func (s *Schema) TableName() string { return s.tableName }

// Size returns the number of columns.
func (s *Schema) Size() int { return len(s.columns) }

// Columns returns the columns in order. The slice must not be modified.
func (s *Schema) Columns() []Column { return s.columns }

// IndexOf returns the position of the given column, or an error if the
// column is not part of the schema.
func (s *Schema) IndexOf(c Column) (int, error) {
	i, ok := s.index[c]
	if !ok {
		return 0, ErrLookup("column %s not found in schema of table %s", c, s.tableName)
	}
	return i, nil
}

// Has reports whether the column is part of the schema.
func (s *Schema) Has(c Column) bool {
	_, ok := s.index[c]
	return ok
}

// ColumnNamed returns the schema column with the given name,
// case-insensitively.
func (s *Schema) ColumnNamed(name string) (Column, bool) {
	for _, c := range s.columns {
		if strings.EqualFold(c.ColumnName, name) {
			return c, true
		}
	}
	return Column{}, false
}

// TidIndex returns the position of the reserved row-identifier column,
// if the schema carries one.
func (s *Schema) TidIndex() (int, bool) {
	for i, c := range s.columns {
		if strings.EqualFold(c.ColumnName, TidColumn) {
			return i, true
		}
	}
	return 0, false
}
