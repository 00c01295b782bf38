package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stock-cache/src/interfaces"
	"stock-cache/src/models"
	"stock-cache/src/provider"
	"stock-cache/src/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu          sync.Mutex
	instruments []models.MInstrument
	current     []models.MStockPrice
	history     map[string][]models.MStockPrice
	historyErr  error
	historyDays []string
	currentReqs [][]string

	// emptyLists answers the first n listings with nothing
	emptyLists int
	listCalls  int

	// when set, history waits on gate after signalling entered
	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeProvider) Location() *time.Location { return time.UTC }

func (f *fakeProvider) ListInstruments(context.Context) []models.MInstrument {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listCalls <= f.emptyLists {
		return nil
	}
	return f.instruments
}

func (f *fakeProvider) CurrentPrices(ctx context.Context, symbols []string) []models.MStockPrice {
	f.mu.Lock()
	f.currentReqs = append(f.currentReqs, symbols)
	f.mu.Unlock()
	return f.current
}

func (f *fakeProvider) HistoricalPrices(ctx context.Context, day time.Time, onBatch interfaces.BatchFunc) error {
	key := day.Format(time.DateOnly)
	f.mu.Lock()
	f.historyDays = append(f.historyDays, key)
	f.mu.Unlock()

	if f.gate != nil {
		close(f.entered)
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if prices, ok := f.history[key]; ok {
		// two batches to exercise the shared transaction
		half := len(prices) / 2
		if err := onBatch(ctx, prices[:half]); err != nil {
			return err
		}
		if err := onBatch(ctx, prices[half:]); err != nil {
			return err
		}
	}
	return f.historyErr
}

func (f *fakeProvider) backfills() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.historyDays...)
}

// -----------------------------------------------------------------------------

var (
	testNow = time.Date(2024, 6, 14, 15, 0, 0, 0, time.UTC)
	pastDay = time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
)

func newTestCache(t *testing.T, p *fakeProvider) (*StockCache, *storage.SQLStore) {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteDB(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(ctx))
	t.Cleanup(func() { store.Close() })

	c, err := New(ctx, store, p, models.MCacheConfig{RowLimit: 1000}, nil)
	require.NoError(t, err)
	c.Now = func() time.Time { return testNow }
	return c, store
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func ptrTime(t time.Time) *time.Time { return &t }

func ptrDec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// -----------------------------------------------------------------------------

func TestNewSeedsInstrumentsFromProvider(t *testing.T) {
	p := &fakeProvider{instruments: []models.MInstrument{{Symbol: "ABC", Name: "ABC Corp"}}}
	c, _ := newTestCache(t, p)

	list, err := c.ListInstruments(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ABC", list[0].Symbol)
	assert.Equal(t, "ABC Corp", list[0].Name)

	id, ok := c.SymbolID("ABC")
	assert.True(t, ok)
	assert.Equal(t, list[0].ID, id)
	assert.Equal(t, 1, c.InstrumentCount())
}

func TestNewKeepsExistingInstruments(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteDB(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(ctx))
	defer store.Close()

	_, err = store.InsertInstruments(ctx, []models.MInstrument{{Symbol: "OLD", Name: "Old Corp"}})
	require.NoError(t, err)

	p := &fakeProvider{instruments: []models.MInstrument{{Symbol: "NEW", Name: "New Corp"}}}
	c, err := New(ctx, store, p, models.MCacheConfig{}, nil)
	require.NoError(t, err)

	_, ok := c.SymbolID("OLD")
	assert.True(t, ok)
	_, ok = c.SymbolID("NEW")
	assert.False(t, ok)
	assert.Equal(t, DefaultRowLimit, c.RowLimit)
}

func TestEmptyProviderIsAskedAgain(t *testing.T) {
	p := &fakeProvider{
		instruments: []models.MInstrument{{Symbol: "ABC", Name: "ABC Corp"}},
		emptyLists:  2,
	}
	c, _ := newTestCache(t, p)
	ctx := context.Background()
	assert.Zero(t, c.InstrumentCount())

	list, err := c.ListInstruments(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = c.ListInstruments(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ABC", list[0].Symbol)

	_, ok := c.SymbolID("ABC")
	assert.True(t, ok)

	// seeded once, later calls stay on storage
	_, err = c.QueryPrices(ctx, models.MPriceFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, p.listCalls)
}

// -----------------------------------------------------------------------------

func TestEnsureDayIsIdempotent(t *testing.T) {
	p := &fakeProvider{
		instruments: []models.MInstrument{{Symbol: "ABC", Name: "ABC Corp"}},
		history: map[string][]models.MStockPrice{
			"2024-06-12": {
				{Symbol: "ABC", Time: ms(pastDay.Add(14 * time.Hour)), Price: 100_000},
				{Symbol: "ABC", Time: ms(pastDay.Add(15 * time.Hour)), Price: 110_000},
				{Symbol: "UNKNOWN", Time: ms(pastDay.Add(15 * time.Hour)), Price: 1},
			},
		},
	}
	c, store := newTestCache(t, p)
	ctx := context.Background()

	ran, err := c.EnsureDay(ctx, pastDay)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = c.EnsureDay(ctx, pastDay.Add(6*time.Hour))
	require.NoError(t, err)
	assert.False(t, ran)

	assert.Equal(t, []string{"2024-06-12"}, p.backfills())

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.HistoricalRows, "unknown symbols are dropped")
}

func TestFailedBackfillLeavesDayAbsent(t *testing.T) {
	p := &fakeProvider{
		instruments: []models.MInstrument{{Symbol: "ABC", Name: "ABC Corp"}},
		history: map[string][]models.MStockPrice{
			"2024-06-12": {
				{Symbol: "ABC", Time: ms(pastDay.Add(14 * time.Hour)), Price: 100_000},
				{Symbol: "ABC", Time: ms(pastDay.Add(15 * time.Hour)), Price: 110_000},
			},
		},
		historyErr: errors.New("connection reset"),
	}
	c, store := newTestCache(t, p)
	ctx := context.Background()

	_, err := c.EnsureDay(ctx, pastDay)
	require.Error(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.HistoricalRows)

	// the next attempt fetches again
	p.historyErr = nil
	ran, err := c.EnsureDay(ctx, pastDay)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Len(t, p.backfills(), 2)
}

func TestEnsureDaySurvivesCancelledCaller(t *testing.T) {
	p := &fakeProvider{
		instruments: []models.MInstrument{{Symbol: "ABC", Name: "ABC Corp"}},
		history: map[string][]models.MStockPrice{
			"2024-06-12": {
				{Symbol: "ABC", Time: ms(pastDay.Add(14 * time.Hour)), Price: 100_000},
				{Symbol: "ABC", Time: ms(pastDay.Add(15 * time.Hour)), Price: 110_000},
			},
		},
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	c, store := newTestCache(t, p)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.EnsureDay(ctxA, pastDay)
		errA <- err
	}()
	<-p.entered

	type result struct {
		ran bool
		err error
	}
	resB := make(chan result, 1)
	go func() {
		ran, err := c.EnsureDay(context.Background(), pastDay)
		resB <- result{ran, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(p.gate)
	b := <-resB
	require.NoError(t, b.err)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.HistoricalRows)
	assert.Len(t, p.backfills(), 1)
}

// -----------------------------------------------------------------------------

func TestQueryPricesWalksEveryDayAndRefreshesToday(t *testing.T) {
	p := &fakeProvider{
		instruments: []models.MInstrument{{Symbol: "ABC", Name: "ABC Corp"}, {Symbol: "XYZ", Name: "XYZ Inc."}},
		current: []models.MStockPrice{
			{Symbol: "ABC", Time: ms(testNow), Price: models.FixedFromDecimal(decimal.RequireFromString("123.4567"))},
			{Symbol: "XYZ", Time: ms(testNow), Price: 10_000},
		},
		history: map[string][]models.MStockPrice{
			"2024-06-12": {
				{Symbol: "ABC", Time: ms(pastDay.Add(14 * time.Hour)), Price: 100_000},
				{Symbol: "ABC", Time: ms(pastDay.Add(15 * time.Hour)), Price: 110_000},
			},
		},
		historyErr: nil,
	}
	c, _ := newTestCache(t, p)
	ctx := context.Background()

	records, err := c.QueryPrices(ctx, models.MPriceFilter{
		Start: ptrTime(pastDay),
		End:   ptrTime(testNow.Add(time.Hour)),
		Names: []string{"ABC"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-06-12", "2024-06-13", "2024-06-14"}, p.backfills())
	require.Len(t, p.currentReqs, 1)
	assert.Equal(t, []string{"ABC"}, p.currentReqs[0])

	require.Len(t, records, 3)
	assert.Equal(t, "10", records[0].Price.String())
	assert.Equal(t, "2024-06-12T14:00:00.000Z", records[0].Time)
	assert.Equal(t, "ABC Corp", records[0].Name)
	assert.Equal(t, "123.45", records[2].Price.String(), "today row last, truncated to cents")

	// days already present are not fetched again; empty days are retried
	_, err = c.QueryPrices(ctx, models.MPriceFilter{Start: ptrTime(pastDay), End: ptrTime(pastDay)})
	require.NoError(t, err)
	assert.Len(t, p.backfills(), 3)
}

func TestLatestQueryOnlyRefreshesToday(t *testing.T) {
	p := &fakeProvider{
		instruments: []models.MInstrument{{Symbol: "ABC", Name: "ABC Corp"}},
		current:     []models.MStockPrice{{Symbol: "ABC", Time: ms(testNow), Price: 1_234_500}},
	}
	c, _ := newTestCache(t, p)

	records, err := c.QueryPrices(context.Background(), models.MPriceFilter{})
	require.NoError(t, err)
	assert.Empty(t, p.backfills())
	require.Len(t, records, 1)
	assert.Equal(t, "123.45", records[0].Price.String())

	// a second refresh replaces rather than appends
	records, err = c.QueryPrices(context.Background(), models.MPriceFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestQueryPricesPriceRange(t *testing.T) {
	p := &fakeProvider{
		instruments: []models.MInstrument{{Symbol: "LOW", Name: "Low Corp"}, {Symbol: "MID", Name: "Mid Corp"}},
		history: map[string][]models.MStockPrice{
			"2024-06-12": {
				{Symbol: "LOW", Time: ms(pastDay.Add(14 * time.Hour)), Price: 50_000},
				{Symbol: "MID", Time: ms(pastDay.Add(14 * time.Hour)), Price: 150_000},
			},
		},
	}
	c, _ := newTestCache(t, p)

	records, err := c.QueryPrices(context.Background(), models.MPriceFilter{
		Start: ptrTime(pastDay),
		End:   ptrTime(pastDay.Add(23 * time.Hour)),
		Low:   ptrDec("10"),
		High:  ptrDec("20"),
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "MID", records[0].Symbol)
	assert.Equal(t, "15", records[0].Price.String())
}

func TestQueryPricesNameWildcard(t *testing.T) {
	p := &fakeProvider{
		instruments: []models.MInstrument{
			{Symbol: "AAPL", Name: "Apple Inc."},
			{Symbol: "AAPX", Name: "Apex Partners"},
			{Symbol: "GOOG", Name: "Alphabet Inc."},
		},
		current: []models.MStockPrice{
			{Symbol: "AAPL", Time: ms(testNow), Price: 10_000},
			{Symbol: "AAPX", Time: ms(testNow), Price: 20_000},
			{Symbol: "GOOG", Time: ms(testNow), Price: 30_000},
		},
	}
	c, _ := newTestCache(t, p)

	records, err := c.QueryPrices(context.Background(), models.MPriceFilter{Names: []string{"AAP*"}})
	require.NoError(t, err)

	symbols := make([]string, 0, len(records))
	for _, r := range records {
		symbols = append(symbols, r.Symbol)
	}
	assert.ElementsMatch(t, []string{"AAPL", "AAPX"}, symbols)
}

func TestNotImplementedHistoryIsNotFatal(t *testing.T) {
	p := &fakeProvider{
		instruments: []models.MInstrument{{Symbol: "ABC", Name: "ABC Corp"}},
		historyErr:  provider.ErrNotImplemented,
	}
	c, _ := newTestCache(t, p)

	_, err := c.QueryPrices(context.Background(), models.MPriceFilter{
		Start: ptrTime(testNow.Add(-time.Hour)),
		End:   ptrTime(testNow),
	})
	assert.NoError(t, err)
}
