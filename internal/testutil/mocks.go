// Package testutil provides shared mock implementations of engine
// interfaces for use in tests across the codebase.
package testutil

import (
	"context"
	"sync"

	"scrub/internal/domain"
	"scrub/internal/table"
)

// MockRule implements pipeline.Rule for testing. Zero-value hooks make
// the rule a no-op that detects nothing and proposes no fixes.
type MockRule struct {
	RuleID     string
	TableNames []string
	Pair       bool

	ShapeFn        func(tables []table.Table) []table.Table
	DetectSingleFn func(ctx context.Context, tbl table.Table) ([]*domain.Violation, error)
	DetectPairFn   func(ctx context.Context, left, right table.Table) ([]*domain.Violation, error)
	RepairFn       func(ctx context.Context, violations []*domain.Violation) ([]domain.Fix, error)

	mu            sync.Mutex
	SingleCalls   int
	PairCalls     int
	ShapedTables  [][]table.Table
	RepairedBatch []*domain.Violation
}

func (m *MockRule) ID() string { return m.RuleID }

func (m *MockRule) Tables() []string { return m.TableNames }

func (m *MockRule) SupportsPair() bool { return m.Pair }

func (m *MockRule) Shape(tables []table.Table) []table.Table {
	m.mu.Lock()
	m.ShapedTables = append(m.ShapedTables, tables)
	m.mu.Unlock()
	if m.ShapeFn != nil {
		return m.ShapeFn(tables)
	}
	return tables
}

func (m *MockRule) DetectSingle(ctx context.Context, tbl table.Table) ([]*domain.Violation, error) {
	m.mu.Lock()
	m.SingleCalls++
	m.mu.Unlock()
	if m.DetectSingleFn != nil {
		return m.DetectSingleFn(ctx, tbl)
	}
	return nil, nil
}

func (m *MockRule) DetectPair(ctx context.Context, left, right table.Table) ([]*domain.Violation, error) {
	m.mu.Lock()
	m.PairCalls++
	m.mu.Unlock()
	if m.DetectPairFn != nil {
		return m.DetectPairFn(ctx, left, right)
	}
	return nil, nil
}

func (m *MockRule) Repair(ctx context.Context, violations []*domain.Violation) ([]domain.Fix, error) {
	m.mu.Lock()
	m.RepairedBatch = violations
	m.mu.Unlock()
	if m.RepairFn != nil {
		return m.RepairFn(ctx, violations)
	}
	return nil, nil
}

// MockViolationStore implements pipeline.ViolationStore for testing.
type MockViolationStore struct {
	SaveFn   func(ctx context.Context, violations []*domain.Violation) error
	ListFn   func(ctx context.Context, ruleID string) ([]*domain.Violation, error)
	DeleteFn func(ctx context.Context, ruleID string) error

	mu    sync.Mutex
	Saved []*domain.Violation
}

func (m *MockViolationStore) SaveViolations(ctx context.Context, violations []*domain.Violation) error {
	if m.SaveFn != nil {
		if err := m.SaveFn(ctx, violations); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Saved = append(m.Saved, violations...)
	m.mu.Unlock()
	return nil
}

func (m *MockViolationStore) ListByRule(ctx context.Context, ruleID string) ([]*domain.Violation, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, ruleID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Violation
	for _, v := range m.Saved {
		if v.RuleID == ruleID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *MockViolationStore) DeleteByRule(ctx context.Context, ruleID string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, ruleID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.Saved[:0]
	for _, v := range m.Saved {
		if v.RuleID != ruleID {
			kept = append(kept, v)
		}
	}
	m.Saved = kept
	return nil
}

// SavedForRule returns the collected violations for one rule.
func (m *MockViolationStore) SavedForRule(ruleID string) []*domain.Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Violation
	for _, v := range m.Saved {
		if v.RuleID == ruleID {
			out = append(out, v)
		}
	}
	return out
}

// MockRepairStore implements pipeline.RepairStore for testing.
type MockRepairStore struct {
	SaveFixesFn func(ctx context.Context, ruleID string, fixes []domain.Fix) error

	mu    sync.Mutex
	Fixes map[string][]domain.Fix
}

func (m *MockRepairStore) SaveFixes(ctx context.Context, ruleID string, fixes []domain.Fix) error {
	if m.SaveFixesFn != nil {
		if err := m.SaveFixesFn(ctx, ruleID, fixes); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fixes == nil {
		m.Fixes = make(map[string][]domain.Fix)
	}
	m.Fixes[ruleID] = append(m.Fixes[ruleID], fixes...)
	return nil
}
