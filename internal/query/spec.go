package query

import (
	"strconv"
	"strings"
)

// Spec is an immutable query description: select list, source table,
// predicates, ordering, and row limit. Shaping methods return extended
// copies; holders of an existing Spec never observe later changes.
type Spec struct {
	selects []string
	from    string
	wheres  []string
	orders  []string
	limit   int
}

// NewSpec creates a Spec selecting everything from the given table.
func NewSpec(table string) Spec {
	return Spec{from: table}
}

// Table returns the source table name.
func (s Spec) Table() string { return s.from }

// WithSelect returns a copy of the spec with the given columns appended
// to the select list.
func (s Spec) WithSelect(columns ...string) Spec {
	s.selects = appendCopy(s.selects, columns)
	return s
}

// WithWhere returns a copy of the spec with the given predicates appended.
func (s Spec) WithWhere(predicates ...Predicate) Spec {
	rendered := make([]string, 0, len(predicates))
	for _, p := range predicates {
		rendered = append(rendered, p.SQL())
	}
	s.wheres = appendCopy(s.wheres, rendered)
	return s
}

// WithOrderBy returns a copy of the spec with the given order columns appended.
func (s Spec) WithOrderBy(columns ...string) Spec {
	s.orders = appendCopy(s.orders, columns)
	return s
}

// WithLimit returns a copy of the spec with the given row limit.
// A limit of 0 means no limit.
func (s Spec) WithLimit(n int) Spec {
	s.limit = n
	return s
}

// Limit returns the row limit, 0 meaning none.
func (s Spec) Limit() int { return s.limit }

// SQL serializes the spec to one executable query string.
func (s Spec) SQL() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(s.selects) == 0 {
		b.WriteString("*")
	} else {
		for i, c := range s.selects {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(QuoteIdentifier(c))
		}
	}
	b.WriteString(" FROM ")
	b.WriteString(QuoteIdentifier(s.from))

	if len(s.wheres) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(s.wheres, " AND "))
	}
	if len(s.orders) > 0 {
		b.WriteString(" ORDER BY ")
		for i, c := range s.orders {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(QuoteIdentifier(c))
		}
	}
	if s.limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(s.limit))
	}
	return b.String()
}

// appendCopy appends extra to base without aliasing base's backing array,
// so a derived spec never mutates the spec it came from.
func appendCopy(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}
