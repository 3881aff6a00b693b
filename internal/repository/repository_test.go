package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrub/internal/domain"
	"scrub/internal/pipeline"
	"scrub/internal/store"
)

// The repos are the metastore implementations of the engine's
// persistence ports.
var (
	_ pipeline.ViolationStore = (*ViolationRepo)(nil)
	_ pipeline.RepairStore    = (*RepairRepo)(nil)
)

func TestViolationRepo_SaveAndListGroupsCells(t *testing.T) {
	ctx := context.Background()
	db := store.OpenTestMetastore(t)
	repo := NewViolationRepo(db)

	region := domain.NewColumn("orders", "region")
	quantity := domain.NewColumn("orders", "quantity")

	multi := domain.NewViolation("region-quantity",
		domain.Cell{Column: region, Tid: 1, Value: "EU"},
		domain.Cell{Column: quantity, Tid: 1, Value: int64(-3)})
	single := domain.NewViolation("region-quantity",
		domain.Cell{Column: quantity, Tid: 2, Value: nil})
	other := domain.NewViolation("other-rule",
		domain.Cell{Column: region, Tid: 3, Value: "US"})

	require.NoError(t, repo.SaveViolations(ctx, []*domain.Violation{multi, single}))
	require.NoError(t, repo.SaveViolations(ctx, []*domain.Violation{other}))

	// Saving assigned distinct ids.
	assert.NotZero(t, multi.ID)
	assert.NotEqual(t, multi.ID, single.ID)
	assert.NotEqual(t, single.ID, other.ID)

	got, err := repo.ListByRule(ctx, "region-quantity")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Cells of one violation come back under one id, in insert order.
	require.Len(t, got[0].Cells, 2)
	assert.Equal(t, multi.ID, got[0].ID)
	assert.Equal(t, region, got[0].Cells[0].Column)
	assert.Equal(t, "EU", got[0].Cells[0].Value)
	assert.Equal(t, quantity, got[0].Cells[1].Column)
	assert.Equal(t, "-3", got[0].Cells[1].Value)

	require.Len(t, got[1].Cells, 1)
	assert.Nil(t, got[1].Cells[0].Value)
	assert.Equal(t, 2, got[1].Cells[0].Tid)
}

func TestViolationRepo_SaveEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := NewViolationRepo(store.OpenTestMetastore(t))
	require.NoError(t, repo.SaveViolations(ctx, nil))

	counts, err := repo.CountByRule(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestViolationRepo_DeleteByRule(t *testing.T) {
	ctx := context.Background()
	repo := NewViolationRepo(store.OpenTestMetastore(t))

	col := domain.NewColumn("orders", "region")
	require.NoError(t, repo.SaveViolations(ctx, []*domain.Violation{
		domain.NewViolation("keep", domain.Cell{Column: col, Tid: 1, Value: "EU"}),
		domain.NewViolation("drop", domain.Cell{Column: col, Tid: 2, Value: "US"}),
	}))

	require.NoError(t, repo.DeleteByRule(ctx, "drop"))

	gone, err := repo.ListByRule(ctx, "drop")
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := repo.ListByRule(ctx, "keep")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestViolationRepo_CountByRule(t *testing.T) {
	ctx := context.Background()
	repo := NewViolationRepo(store.OpenTestMetastore(t))

	region := domain.NewColumn("orders", "region")
	quantity := domain.NewColumn("orders", "quantity")
	require.NoError(t, repo.SaveViolations(ctx, []*domain.Violation{
		domain.NewViolation("a",
			domain.Cell{Column: region, Tid: 1, Value: "EU"},
			domain.Cell{Column: quantity, Tid: 1, Value: int64(1)}),
		domain.NewViolation("a",
			domain.Cell{Column: region, Tid: 2, Value: "US"}),
		domain.NewViolation("b",
			domain.Cell{Column: region, Tid: 3, Value: "EU"}),
	}))

	counts, err := repo.CountByRule(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, RuleCount{RuleID: "a", Violations: 2, Cells: 3}, counts[0])
	assert.Equal(t, RuleCount{RuleID: "b", Violations: 1, Cells: 1}, counts[1])
}

func TestRepairRepo_SaveAndList(t *testing.T) {
	ctx := context.Background()
	db := store.OpenTestMetastore(t)
	repo := NewRepairRepo(db)

	quantity := domain.NewColumn("orders", "quantity")
	fixes := []domain.Fix{
		{
			ViolationID: 7,
			Cell:        domain.Cell{Column: quantity, Tid: 4, Value: int64(-5)},
			NewValue:    int64(0),
		},
	}
	require.NoError(t, repo.SaveFixes(ctx, "negative-quantity", fixes))
	require.NoError(t, repo.SaveFixes(ctx, "negative-quantity", nil))

	got, err := repo.ListByRule(ctx, "negative-quantity")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.EqualValues(t, 7, got[0].ViolationID)
	assert.Equal(t, quantity, got[0].Column)
	assert.Equal(t, 4, got[0].Tid)
	assert.Equal(t, "-5", got[0].OldValue)
	assert.Equal(t, "0", got[0].NewValue)
	assert.False(t, got[0].AppliedAt.IsZero())

	none, err := repo.ListByRule(ctx, "absent")
	require.NoError(t, err)
	assert.Empty(t, none)
}
