package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"scrub/internal/domain"
	"scrub/internal/query"
	"scrub/internal/store"
	"scrub/internal/table"
)

// env carries the collaborators every stage may need. It is built once
// per orchestrator and shared read-only by the stages.
type env struct {
	registry   *store.Registry
	storeName  string
	violations ViolationStore
	repairs    RepairStore
	logger     *slog.Logger
}

// ruleInput is the unit handed between the source-side stages.
type ruleInput struct {
	rule   Rule
	tables []table.Table
}

// DetectSummary is the terminal output of a detect flow.
type DetectSummary struct {
	RuleID     string
	Violations int
}

// RepairSummary is the terminal output of a repair flow.
type RepairSummary struct {
	RuleID  string
	Applied int
}

// sourceDeserializer turns the cached rule into store-backed tables, one
// per source relation the rule declares.
type sourceDeserializer struct {
	env *env
}

func (s *sourceDeserializer) Name() string { return "deserializer" }

func (s *sourceDeserializer) Run(_ context.Context, in interface{}) (interface{}, error) {
	rule, ok := in.(Rule)
	if !ok {
		return nil, fmt.Errorf("deserializer: expected a rule input, got %T", in)
	}

	src, err := s.env.registry.Source(s.env.storeName)
	if err != nil {
		return nil, fmt.Errorf("deserializer: %w", err)
	}

	tables := make([]table.Table, 0, len(rule.Tables()))
	for _, name := range rule.Tables() {
		tbl, err := table.New(src, name, s.env.logger)
		if err != nil {
			recycleAll(tables)
			return nil, fmt.Errorf("deserializer: %w", err)
		}
		tables = append(tables, tbl)
	}
	return &ruleInput{rule: rule, tables: tables}, nil
}

// ruleQuery lets the rule shape each table's query description before the
// detector materializes anything.
type ruleQuery struct {
	env *env
}

func (s *ruleQuery) Name() string { return "query" }

func (s *ruleQuery) Run(_ context.Context, in interface{}) (interface{}, error) {
	ri, ok := in.(*ruleInput)
	if !ok {
		return nil, fmt.Errorf("query: expected rule tables, got %T", in)
	}
	shaped := ri.rule.Shape(ri.tables)
	if len(shaped) == 0 {
		recycleAll(ri.tables)
		return nil, fmt.Errorf("query: rule %s shaped away every input relation", ri.rule.ID())
	}
	return &ruleInput{rule: ri.rule, tables: shaped}, nil
}

// detectSingle runs a single-relation rule over every input table.
type detectSingle struct {
	env *env
}

func (s *detectSingle) Name() string { return "detector" }

func (s *detectSingle) Run(ctx context.Context, in interface{}) (interface{}, error) {
	ri, ok := in.(*ruleInput)
	if !ok {
		return nil, fmt.Errorf("detector: expected rule tables, got %T", in)
	}
	defer recycleAll(ri.tables)

	var violations []*domain.Violation
	for _, tbl := range ri.tables {
		found, err := ri.rule.DetectSingle(ctx, tbl)
		if err != nil {
			return nil, fmt.Errorf("detector: rule %s on table %s: %w", ri.rule.ID(), tbl.Name(), err)
		}
		violations = append(violations, found...)
	}
	return &detectOutput{rule: ri.rule, violations: violations}, nil
}

// detectPair runs a pair-input rule across the first two input relations;
// a rule declaring a pair over one relation is paired with itself.
type detectPair struct {
	env *env
}

func (s *detectPair) Name() string { return "detector" }

func (s *detectPair) Run(ctx context.Context, in interface{}) (interface{}, error) {
	ri, ok := in.(*ruleInput)
	if !ok {
		return nil, fmt.Errorf("detector: expected rule tables, got %T", in)
	}
	defer recycleAll(ri.tables)

	left := ri.tables[0]
	right := left
	if len(ri.tables) > 1 {
		right = ri.tables[1]
	}
	violations, err := ri.rule.DetectPair(ctx, left, right)
	if err != nil {
		return nil, fmt.Errorf("detector: rule %s: %w", ri.rule.ID(), err)
	}
	return &detectOutput{rule: ri.rule, violations: violations}, nil
}

type detectOutput struct {
	rule       Rule
	violations []*domain.Violation
}

// exportViolations persists the detected violations.
type exportViolations struct {
	env *env
}

func (s *exportViolations) Name() string { return "export" }

func (s *exportViolations) Run(ctx context.Context, in interface{}) (interface{}, error) {
	do, ok := in.(*detectOutput)
	if !ok {
		return nil, fmt.Errorf("export: expected detector output, got %T", in)
	}
	if err := s.env.violations.SaveViolations(ctx, do.violations); err != nil {
		return nil, fmt.Errorf("export: rule %s: %w", do.rule.ID(), err)
	}
	s.env.logger.Info("violations exported",
		"rule", do.rule.ID(), "count", len(do.violations))
	return DetectSummary{RuleID: do.rule.ID(), Violations: len(do.violations)}, nil
}

// violationDeserializer loads the rule's previously exported violations.
type violationDeserializer struct {
	env *env
}

func (s *violationDeserializer) Name() string { return "deserializer" }

func (s *violationDeserializer) Run(ctx context.Context, in interface{}) (interface{}, error) {
	rule, ok := in.(Rule)
	if !ok {
		return nil, fmt.Errorf("deserializer: expected a rule input, got %T", in)
	}
	violations, err := s.env.violations.ListByRule(ctx, rule.ID())
	if err != nil {
		return nil, fmt.Errorf("deserializer: rule %s: %w", rule.ID(), err)
	}
	return &repairInput{rule: rule, violations: violations}, nil
}

type repairInput struct {
	rule       Rule
	violations []*domain.Violation
}

// applyRepair asks the rule for fixes and applies each one as an update
// against the source store, keyed by the cell's row id.
type applyRepair struct {
	env *env
}

func (s *applyRepair) Name() string { return "repair" }

func (s *applyRepair) Run(ctx context.Context, in interface{}) (interface{}, error) {
	ri, ok := in.(*repairInput)
	if !ok {
		return nil, fmt.Errorf("repair: expected violations, got %T", in)
	}

	fixes, err := ri.rule.Repair(ctx, ri.violations)
	if err != nil {
		return nil, fmt.Errorf("repair: rule %s: %w", ri.rule.ID(), err)
	}

	src, err := s.env.registry.Source(s.env.storeName)
	if err != nil {
		return nil, fmt.Errorf("repair: %w", err)
	}

	applied := 0
	for _, fix := range fixes {
		if err := applyFix(ctx, src, fix); err != nil {
			return nil, fmt.Errorf("repair: rule %s: %w", ri.rule.ID(), err)
		}
		applied++
	}

	if s.env.repairs != nil && applied > 0 {
		if err := s.env.repairs.SaveFixes(ctx, ri.rule.ID(), fixes); err != nil {
			return nil, fmt.Errorf("repair: record fixes for rule %s: %w", ri.rule.ID(), err)
		}
	}

	s.env.logger.Info("repairs applied", "rule", ri.rule.ID(), "count", applied)
	return RepairSummary{RuleID: ri.rule.ID(), Applied: applied}, nil
}

// applyFix updates one cell in the source store.
func applyFix(ctx context.Context, src *store.Source, fix domain.Fix) error {
	cell := fix.Cell
	if cell.Tid < 1 {
		return domain.ErrIntegrity("fix targets cell %s with no usable row id", cell.Column)
	}
	if err := query.ValidateIdentifier(cell.Column.TableName); err != nil {
		return fmt.Errorf("fix table name: %w", err)
	}
	if err := query.ValidateIdentifier(cell.Column.ColumnName); err != nil {
		return fmt.Errorf("fix column name: %w", err)
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		query.QuoteIdentifier(cell.Column.TableName),
		query.QuoteIdentifier(cell.Column.ColumnName),
		src.Placeholder(1),
		query.QuoteIdentifier(domain.TidColumn),
		src.Placeholder(2))
	if _, err := src.ExecContext(ctx, stmt, fix.NewValue, cell.Tid); err != nil {
		return domain.ErrStoreUnavailable(err, "update %s row %d", cell.Column, cell.Tid)
	}
	return nil
}

// recycleAll releases a set of tables on every exit path.
func recycleAll(tables []table.Table) {
	for _, t := range tables {
		t.Recycle()
	}
}
