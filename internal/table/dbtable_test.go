package table

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrub/internal/domain"
	"scrub/internal/query"
	"scrub/internal/store"
)

func seedOrders(t *testing.T, src *store.Source) {
	t.Helper()
	ctx := context.Background()
	_, err := src.ExecContext(ctx, `CREATE TABLE orders (tid INTEGER PRIMARY KEY, region TEXT, quantity INTEGER)`)
	require.NoError(t, err)
	_, err = src.ExecContext(ctx, `INSERT INTO orders (tid, region, quantity) VALUES
		(1, 'EU', 1),
		(2, 'EU', 2),
		(3, 'US', 3),
		(4, 'US', -5)`)
	require.NoError(t, err)
}

func newOrders(t *testing.T, src *store.Source) *DBTable {
	t.Helper()
	tbl, err := New(src, "orders", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return tbl
}

func TestDBTable_FilterMaterializesMatchingRows(t *testing.T) {
	ctx := context.Background()
	src := store.OpenTestSource(t)
	seedOrders(t, src)

	tbl := newOrders(t, src)
	tbl.Filter(query.Gt(domain.NewColumn("orders", "quantity"), 0))

	require.Equal(t, 3, tbl.Size(ctx))

	// Schema is discovered from the result's columns in order.
	schema := tbl.Schema(ctx)
	require.NotNil(t, schema)
	names := make([]string, 0, schema.Size())
	for _, c := range schema.Columns() {
		names = append(names, c.ColumnName)
	}
	assert.Equal(t, []string{"tid", "region", "quantity"}, names)

	// Row ids come from the identifier column.
	row, ok := tbl.Get(ctx, 2)
	require.True(t, ok)
	assert.Equal(t, 3, row.Tid())

	_, ok = tbl.Get(ctx, 3)
	assert.False(t, ok)
}

func TestDBTable_ShapingForcesResync(t *testing.T) {
	ctx := context.Background()
	src := store.OpenTestSource(t)
	seedOrders(t, src)

	tbl := newOrders(t, src)
	assert.True(t, tbl.NeedsSync())

	require.Equal(t, 4, tbl.Size(ctx))
	assert.False(t, tbl.NeedsSync())

	tbl.Filter(query.Eq(domain.NewColumn("orders", "region"), "EU"))
	assert.True(t, tbl.NeedsSync())
	assert.Equal(t, 2, tbl.Size(ctx))

	tbl.Project(domain.NewColumn("orders", "region"))
	assert.True(t, tbl.NeedsSync())
	assert.Equal(t, 1, tbl.Schema(ctx).Size())

	tbl2 := newOrders(t, src)
	_ = tbl2.Size(ctx)
	tbl2.OrderBy(domain.NewColumn("orders", "quantity"))
	assert.True(t, tbl2.NeedsSync())
	first, ok := tbl2.Get(ctx, 0)
	require.True(t, ok)
	q, err := first.GetByName("quantity")
	require.NoError(t, err)
	assert.EqualValues(t, -5, q)
}

func TestDBTable_SchemaOnlySyncUsesLimitOne(t *testing.T) {
	ctx := context.Background()
	src := store.OpenTestSource(t)
	seedOrders(t, src)

	tbl := newOrders(t, src)
	schema := tbl.Schema(ctx)
	require.NotNil(t, schema)
	assert.Equal(t, 3, schema.Size())

	// Schema sync must not have materialized rows; the next Size call
	// still runs the full query.
	assert.Equal(t, 4, tbl.Size(ctx))
}

func TestDBTable_DegradedModeWithoutTidColumn(t *testing.T) {
	ctx := context.Background()
	src := store.OpenTestSource(t)
	_, err := src.ExecContext(ctx, `CREATE TABLE plain (region TEXT)`)
	require.NoError(t, err)
	_, err = src.ExecContext(ctx, `INSERT INTO plain (region) VALUES ('EU'), ('US')`)
	require.NoError(t, err)

	tbl, err := New(src, "plain", slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	// Rows get snapshot-local ordinal ids when no identifier column exists.
	require.Equal(t, 2, tbl.Size(ctx))
	a, _ := tbl.Get(ctx, 0)
	b, _ := tbl.Get(ctx, 1)
	assert.Equal(t, 1, a.Tid())
	assert.Equal(t, 2, b.Tid())
}

func TestDBTable_StoreFailureDegradesToPreviousMaterialization(t *testing.T) {
	ctx := context.Background()
	src := store.OpenTestSource(t)
	seedOrders(t, src)

	tbl := newOrders(t, src)
	require.Equal(t, 4, tbl.Size(ctx))

	// Break the store, then force a re-sync. The accessor proceeds with
	// the previous materialization instead of propagating.
	_, err := src.ExecContext(ctx, `DROP TABLE orders`)
	require.NoError(t, err)

	tbl.Filter(query.Gt(domain.NewColumn("orders", "quantity"), 0))
	assert.Equal(t, 4, tbl.Size(ctx))
}

func TestDBTable_StoreFailureWithNoPriorSyncYieldsEmpty(t *testing.T) {
	ctx := context.Background()
	src := store.OpenTestSource(t)

	tbl, err := New(src, "missing", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Size(ctx))
}

func TestDBTable_SingleFlightMaterialization(t *testing.T) {
	ctx := context.Background()
	src := store.OpenTestSource(t)
	seedOrders(t, src)

	counter := &countingHandler{}
	tbl, err := New(src, "orders", slog.New(counter))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, 4, tbl.Size(ctx))
		}()
	}
	wg.Wait()

	// Concurrent accessors share one materialization. Allow a benign
	// extra run for goroutines that entered after the first completed.
	assert.LessOrEqual(t, counter.count("executing query"), 2)
}

func TestDBTable_Recycle(t *testing.T) {
	ctx := context.Background()
	src := store.OpenTestSource(t)
	seedOrders(t, src)

	tbl := newOrders(t, src)
	require.Equal(t, 4, tbl.Size(ctx))

	tbl.Recycle()
	assert.Equal(t, 0, tbl.Size(ctx))
	assert.Nil(t, tbl.Schema(ctx))

	// Shaping a recycled table is ignored.
	tbl.Filter(query.Eq(domain.NewColumn("orders", "region"), "EU"))
	assert.Equal(t, 0, tbl.Size(ctx))
}

func TestDBTable_EqualityAndHash(t *testing.T) {
	ctx := context.Background()
	src := store.OpenTestSource(t)
	seedOrders(t, src)

	a := newOrders(t, src)
	b := newOrders(t, src)
	// Accumulated query state does not affect identity.
	b.Filter(query.Eq(domain.NewColumn("orders", "region"), "EU"))

	assert.True(t, a.Equal(ctx, b))
	assert.True(t, b.Equal(ctx, a))
	assert.Equal(t, a.Hash(), b.Hash())

	_, err := src.ExecContext(ctx, `CREATE TABLE other (tid INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	c, err := New(src, "other", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.False(t, a.Equal(ctx, c))
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestDBTable_ContextCancellation(t *testing.T) {
	src := store.OpenTestSource(t)
	seedOrders(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tbl := newOrders(t, src)
	// A cancelled context fails the store round trip; the accessor
	// degrades to an empty materialization instead of blocking.
	assert.Equal(t, 0, tbl.Size(ctx))
}

// countingHandler is a slog.Handler that counts records by message.
type countingHandler struct {
	mu      sync.Mutex
	records []string
}

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *countingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Message)
	return nil
}

func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }

func (h *countingHandler) count(message string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.records {
		if m == message {
			n++
		}
	}
	return n
}
