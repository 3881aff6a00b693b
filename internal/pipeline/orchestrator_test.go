package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrub/internal/domain"
	"scrub/internal/store"
	"scrub/internal/table"
	"scrub/internal/testutil"
)

func newTestRegistry(t *testing.T) (*store.Registry, *store.Source) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.sqlite")
	reg, err := store.NewRegistry(store.Config{
		Name:         "source",
		Driver:       "sqlite3",
		DSN:          path,
		QueryTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	src, err := reg.Source("source")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = src.ExecContext(ctx, `CREATE TABLE orders (tid INTEGER PRIMARY KEY, region TEXT, quantity INTEGER)`)
	require.NoError(t, err)
	_, err = src.ExecContext(ctx, `INSERT INTO orders (tid, region, quantity) VALUES
		(1, 'EU', 10), (2, 'US', -3)`)
	require.NoError(t, err)
	return reg, src
}

func newTestOrchestrator(t *testing.T, reg *store.Registry, rules ...Rule) (*Orchestrator, *testutil.MockViolationStore, *testutil.MockRepairStore) {
	t.Helper()
	violations := &testutil.MockViolationStore{}
	repairs := &testutil.MockRepairStore{}
	plan := &Plan{Name: "test-plan", SourceStore: "source", Rules: rules}
	o, err := NewOrchestrator(plan, reg, violations, repairs, NewCache(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return o, violations, repairs
}

func TestOrchestrator_DetectorVariantPerRuleArity(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	ruleA := &testutil.MockRule{RuleID: "ruleA", TableNames: []string{"orders", "orders"}, Pair: true}
	ruleB := &testutil.MockRule{RuleID: "ruleB", TableNames: []string{"orders"}}

	o, _, _ := newTestOrchestrator(t, reg, ruleA, ruleB)
	results, err := o.Detect(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}

	// The pair-declaring rule gets the pair detector, the other the
	// single-input detector.
	assert.Equal(t, 1, ruleA.PairCalls)
	assert.Equal(t, 0, ruleA.SingleCalls)
	assert.Equal(t, 0, ruleB.PairCalls)
	assert.Equal(t, 1, ruleB.SingleCalls)
}

func TestOrchestrator_AssemblyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	good1 := &testutil.MockRule{RuleID: "good1", TableNames: []string{"orders"}}
	bad := &testutil.MockRule{RuleID: "", TableNames: []string{"orders"}}
	good2 := &testutil.MockRule{RuleID: "good2", TableNames: []string{"orders"}}

	o, violations, _ := newTestOrchestrator(t, reg, good1, bad, good2)
	results, err := o.Detect(ctx)

	require.Error(t, err)
	var assemblyErr *domain.AssemblyError
	assert.ErrorAs(t, err, &assemblyErr)
	assert.Nil(t, results)

	// None of the three rules' flows executed.
	assert.Equal(t, 0, good1.SingleCalls)
	assert.Equal(t, 0, good2.SingleCalls)
	assert.Empty(t, violations.Saved)
	// Keys minted before the failure were dropped again.
	assert.Equal(t, 0, o.cache.Len())
}

func TestOrchestrator_DetectExportsViolations(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	rule := &testutil.MockRule{
		RuleID:     "negative-quantity",
		TableNames: []string{"orders"},
		DetectSingleFn: func(ctx context.Context, tbl table.Table) ([]*domain.Violation, error) {
			var out []*domain.Violation
			for i := 0; i < tbl.Size(ctx); i++ {
				row, _ := tbl.Get(ctx, i)
				q, err := row.GetByName("quantity")
				if err != nil {
					return nil, err
				}
				if n, ok := q.(int64); ok && n < 0 {
					cell, err := row.GetCell(domain.NewColumn("orders", "quantity"))
					if err != nil {
						return nil, err
					}
					out = append(out, domain.NewViolation("negative-quantity", cell))
				}
			}
			return out, nil
		},
	}

	o, violations, _ := newTestOrchestrator(t, reg, rule)
	results, err := o.Detect(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	summary, ok := results[0].Output.(DetectSummary)
	require.True(t, ok)
	assert.Equal(t, 1, summary.Violations)

	saved := violations.SavedForRule("negative-quantity")
	require.Len(t, saved, 1)
	require.Len(t, saved[0].Cells, 1)
	assert.Equal(t, 2, saved[0].Cells[0].Tid)
}

func TestOrchestrator_FlowFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	failing := &testutil.MockRule{
		RuleID:     "failing",
		TableNames: []string{"orders"},
		DetectSingleFn: func(context.Context, table.Table) ([]*domain.Violation, error) {
			return nil, errors.New("detector exploded")
		},
	}
	panicking := &testutil.MockRule{
		RuleID:     "panicking",
		TableNames: []string{"orders"},
		DetectSingleFn: func(context.Context, table.Table) ([]*domain.Violation, error) {
			panic("boom")
		},
	}
	healthy := &testutil.MockRule{RuleID: "healthy", TableNames: []string{"orders"}}

	o, _, _ := newTestOrchestrator(t, reg, failing, panicking, healthy)
	results, err := o.Detect(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byRule := make(map[string]FlowResult, len(results))
	for _, r := range results {
		byRule[r.RuleID] = r
	}
	assert.Error(t, byRule["failing"].Err)
	assert.Error(t, byRule["panicking"].Err)
	assert.NoError(t, byRule["healthy"].Err)
	assert.Equal(t, 1, healthy.SingleCalls)
}

func TestOrchestrator_RepairAppliesFixes(t *testing.T) {
	ctx := context.Background()
	reg, src := newTestRegistry(t)

	quantity := domain.NewColumn("orders", "quantity")
	violation := domain.NewViolation("negative-quantity",
		domain.Cell{Column: quantity, Tid: 2, Value: int64(-3)})

	rule := &testutil.MockRule{
		RuleID:     "negative-quantity",
		TableNames: []string{"orders"},
		RepairFn: func(_ context.Context, violations []*domain.Violation) ([]domain.Fix, error) {
			fixes := make([]domain.Fix, 0, len(violations))
			for _, v := range violations {
				for _, cell := range v.Cells {
					fixes = append(fixes, domain.Fix{ViolationID: v.ID, Cell: cell, NewValue: 0})
				}
			}
			return fixes, nil
		},
	}

	o, violations, repairs := newTestOrchestrator(t, reg, rule)
	require.NoError(t, violations.SaveViolations(ctx, []*domain.Violation{violation}))

	results, err := o.Repair(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	summary, ok := results[0].Output.(RepairSummary)
	require.True(t, ok)
	assert.Equal(t, 1, summary.Applied)
	assert.Len(t, repairs.Fixes["negative-quantity"], 1)

	// The source row was updated in place.
	rows, err := src.QueryContext(ctx, `SELECT quantity FROM orders WHERE tid = 2`)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var q int64
	require.NoError(t, rows.Scan(&q))
	assert.EqualValues(t, 0, q)
}

func TestOrchestrator_Cancellation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	rule := &testutil.MockRule{RuleID: "rule", TableNames: []string{"orders"}}

	o, _, _ := newTestOrchestrator(t, reg, rule)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := o.Detect(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}
