// Package pipeline assembles and runs per-rule cleaning flows.
package pipeline

import (
	"context"

	"scrub/internal/domain"
	"scrub/internal/table"
)

// Rule is an opaque cleaning capability. The engine never looks inside a
// rule: it asks for an identity, the source relations and input arity,
// lets the rule shape the query, and calls the matching detect or repair
// hook from the corresponding stage.
type Rule interface {
	// ID returns the rule's identity, usable as a cache key.
	ID() string
	// Tables returns the names of the source relations the rule reads.
	Tables() []string
	// SupportsPair reports whether the rule detects over a pair of input
	// relations rather than a single one.
	SupportsPair() bool
	// Shape narrows each input table's query description before
	// materialization. Implementations may return the inputs unchanged.
	Shape(tables []table.Table) []table.Table
	// DetectSingle finds violations over one input relation.
	DetectSingle(ctx context.Context, tbl table.Table) ([]*domain.Violation, error)
	// DetectPair finds violations over a pair of input relations.
	DetectPair(ctx context.Context, left, right table.Table) ([]*domain.Violation, error)
	// Repair proposes fixes for previously detected violations.
	Repair(ctx context.Context, violations []*domain.Violation) ([]domain.Fix, error)
}

// ViolationStore persists and retrieves detected violations.
type ViolationStore interface {
	SaveViolations(ctx context.Context, violations []*domain.Violation) error
	ListByRule(ctx context.Context, ruleID string) ([]*domain.Violation, error)
	DeleteByRule(ctx context.Context, ruleID string) error
}

// RepairStore records applied fixes.
type RepairStore interface {
	SaveFixes(ctx context.Context, ruleID string, fixes []domain.Fix) error
}

// Plan binds a rule list to a named source store. It is passed explicitly
// into orchestrator construction and threaded through flow assembly.
type Plan struct {
	Name        string
	SourceStore string
	Rules       []Rule
}
