package storage

import (
	"context"
	"path/filepath"
	"testing"

	"stock-cache/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	store, err := NewSQLiteDB(filepath.Join(t.TempDir(), "stock.db"), nil)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func seedInstruments(t *testing.T, store *SQLStore) map[string]int64 {
	t.Helper()

	stored, err := store.InsertInstruments(context.Background(), []models.MInstrument{
		{Symbol: "AAPL", Name: "Apple Inc."},
		{Symbol: "AAP", Name: "Advance Auto Parts"},
		{Symbol: "MSFT", Name: "Microsoft Corporation"},
		{Symbol: "A_B", Name: "Underscore 100% Corp"},
	})
	require.NoError(t, err)
	require.Len(t, stored, 4)

	ids := make(map[string]int64)
	for _, inst := range stored {
		ids[inst.Symbol] = inst.ID
	}
	return ids
}

// -----------------------------------------------------------------------------

func TestInsertInstrumentsIgnoresKnownSymbols(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := seedInstruments(t, store)

	again, err := store.InsertInstruments(ctx, []models.MInstrument{{Symbol: "AAPL", Name: "Renamed"}})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, ids["AAPL"], again[0].ID)
	assert.Equal(t, "Apple Inc.", again[0].Name)

	all, err := store.LoadInstruments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestListInstrumentsWildcards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedInstruments(t, store)

	symbols := func(names ...string) []string {
		list, err := store.ListInstruments(ctx, names)
		require.NoError(t, err)
		out := make([]string, 0, len(list))
		for _, inst := range list {
			out = append(out, inst.Symbol)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"AAPL", "AAP"}, symbols("AAP*"))
	assert.ElementsMatch(t, []string{"AAP"}, symbols("aap"))
	assert.ElementsMatch(t, []string{"MSFT"}, symbols("*micro*"))
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, symbols("AAPL", "MSFT"))
	assert.ElementsMatch(t, []string{"A_B"}, symbols("*100%*"))
	assert.Empty(t, symbols("A_"))
	assert.Len(t, symbols(), 4)
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, `AAP%`, LikePattern("AAP*"))
	assert.Equal(t, `50\%`, LikePattern("50%"))
	assert.Equal(t, `A\_B`, LikePattern("A_B"))
	assert.Equal(t, `C:\\x`, LikePattern(`C:\x`))
}

func TestRebindDollar(t *testing.T) {
	assert.Equal(t, "a = $1 AND b IN ($2, $3)", rebindDollar("a = ? AND b IN (?, ?)"))
}

// -----------------------------------------------------------------------------

func TestDayTransactionCommitAndRollback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := seedInstruments(t, store)

	const dayStart, dayEnd = int64(1_000_000), int64(2_000_000)

	exists, err := store.HistoricalDayExists(ctx, dayStart, dayEnd)
	require.NoError(t, err)
	assert.False(t, exists)

	tx, err := store.BeginDay(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertHistorical(ctx, []models.MStockPrice{{StockID: ids["AAPL"], Time: dayStart + 1, Price: 1_000_000}}))
	require.NoError(t, tx.Rollback())

	exists, err = store.HistoricalDayExists(ctx, dayStart, dayEnd)
	require.NoError(t, err)
	assert.False(t, exists)

	tx, err = store.BeginDay(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertHistorical(ctx, []models.MStockPrice{{StockID: ids["AAPL"], Time: dayStart, Price: 1_000_000}}))
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback())

	exists, err = store.HistoricalDayExists(ctx, dayStart, dayEnd)
	require.NoError(t, err)
	assert.True(t, exists)

	// end bound is exclusive
	exists, err = store.HistoricalDayExists(ctx, dayEnd, dayEnd+1000)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInsertHistoricalChunksLargeBatches(t *testing.T) {
	store := newTestStore(t)
	store.BatchSize = 7
	ctx := context.Background()
	ids := seedInstruments(t, store)

	prices := make([]models.MStockPrice, 50)
	for i := range prices {
		prices[i] = models.MStockPrice{StockID: ids["MSFT"], Time: int64(i), Price: int64(i * 100)}
	}

	tx, err := store.BeginDay(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertHistorical(ctx, prices))
	require.NoError(t, tx.Commit())

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), stats.HistoricalRows)
	assert.Equal(t, int64(4), stats.Instruments)
	assert.Zero(t, stats.TodayRows)
}

// -----------------------------------------------------------------------------

func TestReplaceTodayPrices(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := seedInstruments(t, store)

	require.NoError(t, store.ReplaceTodayPrices(ctx, 0, []models.MStockPrice{
		{StockID: ids["AAPL"], Time: 100, Price: 1},
		{StockID: ids["MSFT"], Time: 100, Price: 2},
	}))

	// refreshing AAPL on a new day drops yesterday's MSFT row and the old AAPL row
	require.NoError(t, store.ReplaceTodayPrices(ctx, 200, []models.MStockPrice{
		{StockID: ids["AAPL"], Time: 300, Price: 3},
	}))

	rows, err := store.QueryPrices(ctx, models.TableToday, models.MPriceQuery{Limit: 1000})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "AAPL", rows[0].Symbol)
	assert.Equal(t, int64(3), rows[0].Price)

	// same-day refresh of MSFT keeps AAPL
	require.NoError(t, store.ReplaceTodayPrices(ctx, 200, []models.MStockPrice{
		{StockID: ids["MSFT"], Time: 400, Price: 4},
	}))
	rows, err = store.QueryPrices(ctx, models.TableToday, models.MPriceQuery{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestQueryPricesFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := seedInstruments(t, store)

	tx, err := store.BeginDay(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertHistorical(ctx, []models.MStockPrice{
		{StockID: ids["AAPL"], Time: 30, Price: 150_000},
		{StockID: ids["AAPL"], Time: 10, Price: 100_000},
		{StockID: ids["AAP"], Time: 20, Price: 200_000},
		{StockID: ids["MSFT"], Time: 40, Price: 250_000},
		{StockID: ids["MSFT"], Time: 40, Price: 250_000},
	}))
	require.NoError(t, tx.Commit())

	i64 := func(v int64) *int64 { return &v }
	query := func(q models.MPriceQuery) []models.MPriceRow {
		q.Limit = 1000
		rows, err := store.QueryPrices(ctx, models.TableHistorical, q)
		require.NoError(t, err)
		return rows
	}

	all := query(models.MPriceQuery{})
	require.Len(t, all, 4, "duplicates collapse")
	assert.Equal(t, int64(10), all[0].Time)
	assert.Equal(t, int64(40), all[3].Time)
	assert.Equal(t, ids["AAPL"], all[0].ID)
	assert.Equal(t, "Apple Inc.", all[0].Name)

	assert.Len(t, query(models.MPriceQuery{StartMs: i64(20), EndMs: i64(30)}), 2)
	assert.Len(t, query(models.MPriceQuery{Low: i64(100_000), High: i64(200_000)}), 3)
	assert.Len(t, query(models.MPriceQuery{Low: i64(200_000)}), 2)
	assert.Len(t, query(models.MPriceQuery{High: i64(150_000)}), 2)
	assert.Len(t, query(models.MPriceQuery{Names: []string{"AAP*"}}), 3)
	assert.Len(t, query(models.MPriceQuery{Names: []string{"msft"}, Low: i64(1)}), 1)

	limited, err := store.QueryPrices(ctx, models.TableHistorical, models.MPriceQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = store.QueryPrices(ctx, "stock; DROP TABLE stock", models.MPriceQuery{})
	assert.Error(t, err)
}
