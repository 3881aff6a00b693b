package query

import (
	"fmt"

	"scrub/internal/domain"
)

// Op is a comparison operator usable in a predicate.
type Op string

const (
	OpEq   Op = "="
	OpNeq  Op = "<>"
	OpGt   Op = ">"
	OpGte  Op = ">="
	OpLt   Op = "<"
	OpLte  Op = "<="
	OpLike Op = "LIKE"
)

// Predicate is one comparison of a column against a literal value.
type Predicate struct {
	Column domain.Column
	Op     Op
	Value  interface{}
}

// Eq creates an equality predicate bound to the given literal.
func Eq(column domain.Column, value interface{}) Predicate {
	return Predicate{Column: column, Op: OpEq, Value: value}
}

// Gt creates a greater-than predicate bound to the given literal.
func Gt(column domain.Column, value interface{}) Predicate {
	return Predicate{Column: column, Op: OpGt, Value: value}
}

// Lt creates a less-than predicate bound to the given literal.
func Lt(column domain.Column, value interface{}) Predicate {
	return Predicate{Column: column, Op: OpLt, Value: value}
}

// SQL renders the predicate as a SQL condition. Text literals are quoted
// and escaped; NULL comparisons use IS NULL / IS NOT NULL.
func (p Predicate) SQL() string {
	col := QuoteIdentifier(p.Column.ColumnName)
	if p.Value == nil {
		switch p.Op {
		case OpNeq:
			return col + " IS NOT NULL"
		default:
			return col + " IS NULL"
		}
	}
	return fmt.Sprintf("%s %s %s", col, p.Op, renderLiteral(p.Value))
}

// renderLiteral renders a Go value as a SQL literal.
func renderLiteral(v interface{}) string {
	switch t := v.(type) {
	case string:
		return QuoteLiteral(t)
	case []byte:
		return QuoteLiteral(string(t))
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case float32, float64:
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
