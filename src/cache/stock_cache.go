package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/models"
	"stock-cache/src/provider"
	"stock-cache/src/utils"

	"golang.org/x/sync/singleflight"
)

// DefaultRowLimit bounds each price table read.
const DefaultRowLimit = 1000

// PriceProvider is what the cache needs from the upstream provider. Location
// is the zone its calendar days are defined in.
type PriceProvider interface {
	Location() *time.Location
	ListInstruments(ctx context.Context) []models.MInstrument
	CurrentPrices(ctx context.Context, symbols []string) []models.MStockPrice
	HistoricalPrices(ctx context.Context, day time.Time, onBatch interfaces.BatchFunc) error
}

// StockCache answers instrument and price queries from storage, filling in
// missing days from the provider as a side effect of price queries.
type StockCache struct {
	DB       interfaces.IDatabase
	Provider PriceProvider
	Logger   *logger.Logger
	RowLimit int
	Location *time.Location
	Now      func() time.Time

	mu         sync.RWMutex
	symbolToID map[string]int64

	days  singleflight.Group
	seeds singleflight.Group
}

// -----------------------------------------------------------------------------

// New loads the symbol map, seeding the instrument table from the provider
// when it is empty. Days are walked in the provider's zone.
func New(ctx context.Context, db interfaces.IDatabase, p PriceProvider, cfg models.MCacheConfig, log *logger.Logger) (*StockCache, error) {
	if log == nil {
		log = logger.NewNop()
	}

	loc := p.Location()
	if loc == nil {
		loc = time.UTC
	}

	limit := cfg.RowLimit
	if limit <= 0 {
		limit = DefaultRowLimit
	}

	c := &StockCache{
		DB:         db,
		Provider:   p,
		Logger:     log,
		RowLimit:   limit,
		Location:   loc,
		Now:        time.Now,
		symbolToID: make(map[string]int64),
	}
	if err := c.loadSymbols(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// -----------------------------------------------------------------------------

func (c *StockCache) loadSymbols(ctx context.Context) error {
	instruments, err := c.DB.LoadInstruments(ctx)
	if err != nil {
		return err
	}

	if len(instruments) == 0 {
		fetched := c.Provider.ListInstruments(ctx)
		if len(fetched) == 0 {
			c.Logger.Warning("Instrument table is empty and the provider returned nothing")
			return nil
		}
		instruments, err = c.DB.InsertInstruments(ctx, fetched)
		if err != nil {
			return err
		}
		c.Logger.Info("Seeded %d instruments from the provider", len(instruments))
	}

	c.mu.Lock()
	for _, inst := range instruments {
		c.symbolToID[inst.Symbol] = inst.ID
	}
	c.mu.Unlock()

	c.Logger.Info("Loaded %d instruments", len(instruments))
	return nil
}

// ensureSymbols retries seeding while the symbol map is still empty, so a
// provider that had nothing at startup is asked again. Concurrent callers
// share one attempt.
func (c *StockCache) ensureSymbols(ctx context.Context) {
	if c.InstrumentCount() > 0 {
		return
	}
	_, err, _ := c.seeds.Do("instruments", func() (interface{}, error) {
		if c.InstrumentCount() > 0 {
			return nil, nil
		}
		return nil, c.loadSymbols(ctx)
	})
	if err != nil {
		c.Logger.Error("Loading instruments failed: %v", err)
	}
}

// -----------------------------------------------------------------------------

// SymbolID returns the storage id of symbol.
func (c *StockCache) SymbolID(symbol string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.symbolToID[symbol]
	return id, ok
}

// InstrumentCount returns the size of the symbol map.
func (c *StockCache) InstrumentCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbolToID)
}

// -----------------------------------------------------------------------------

// ListInstruments returns instruments matching any of the wildcard names.
func (c *StockCache) ListInstruments(ctx context.Context, names []string) ([]models.MInstrument, error) {
	c.ensureSymbols(ctx)
	return c.DB.ListInstruments(ctx, names)
}

// -----------------------------------------------------------------------------

// QueryPrices reconciles storage with the filter's range, then reads the
// historical and today tables, in that order.
func (c *StockCache) QueryPrices(ctx context.Context, filter models.MPriceFilter) ([]models.MPriceRecord, error) {
	c.ensureSymbols(ctx)
	if filter.HasRange() {
		c.populateRange(ctx, *filter.Start, *filter.End, filter.Names)
	} else {
		c.refreshToday(ctx, filter.Names)
	}

	q := filter.Query(c.RowLimit)
	var records []models.MPriceRecord
	for _, table := range []models.MPriceTable{models.TableHistorical, models.TableToday} {
		rows, err := c.DB.QueryPrices(ctx, table, q)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			records = append(records, models.NewPriceRecord(row))
		}
	}
	return records, nil
}

// -----------------------------------------------------------------------------

// populateRange walks the provider's calendar days of [start, end]. A failed day
// is logged and stays absent so a later query retries it.
func (c *StockCache) populateRange(ctx context.Context, start, end time.Time, names []string) {
	today := utils.StartOfDay(c.Now(), c.Location)
	last := utils.StartOfDay(end, c.Location)

	for day := utils.StartOfDay(start, c.Location); !day.After(last); day = day.AddDate(0, 0, 1) {
		if day.Equal(today) {
			c.refreshToday(ctx, names)
		}

		if _, err := c.EnsureDay(ctx, day); err != nil {
			if errors.Is(err, provider.ErrNotImplemented) {
				c.Logger.Debug("No history for %s: %v", day.Format(time.DateOnly), err)
				continue
			}
			c.Logger.Error("Backfill of %s failed: %v", day.Format(time.DateOnly), err)
		}
	}
}

// -----------------------------------------------------------------------------

// EnsureDay backfills day unless the historical table already has a row in
// it. All of the day's batches commit together or not at all. The bool
// reports whether a backfill ran.
//
// The backfill is shared by every caller asking for the same day and is not
// cancelled when one of them goes away; ctx only bounds this caller's wait.
func (c *StockCache) EnsureDay(ctx context.Context, day time.Time) (bool, error) {
	day = utils.StartOfDay(day, c.Location)
	startMs, endMs := utils.DayBounds(day, c.Location)
	key := day.Format(time.DateOnly)
	fctx := context.WithoutCancel(ctx)

	ch := c.days.DoChan(key, func() (interface{}, error) {
		exists, err := c.DB.HistoricalDayExists(fctx, startMs, endMs)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
		return true, c.backfillDay(fctx, day, key)
	})

	select {
	case res := <-ch:
		return res.Val.(bool), res.Err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *StockCache) backfillDay(ctx context.Context, day time.Time, key string) error {
	tx, err := c.DB.BeginDay(ctx)
	if err != nil {
		return err
	}

	rows := 0
	err = c.Provider.HistoricalPrices(ctx, day, func(ctx context.Context, prices []models.MStockPrice) error {
		resolved := c.resolve(prices)
		rows += len(resolved)
		return tx.InsertHistorical(ctx, resolved)
	})
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.Logger.Warning("Rollback of %s failed: %v", key, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if rows > 0 {
		c.Logger.Info("Backfilled %d rows for %s", rows, key)
	}
	return nil
}

// -----------------------------------------------------------------------------

// refreshToday replaces the today snapshot of the instruments matching names.
// A provider failure yields no prices and only expires earlier days.
func (c *StockCache) refreshToday(ctx context.Context, names []string) {
	instruments, err := c.DB.ListInstruments(ctx, names)
	if err != nil {
		c.Logger.Error("Listing instruments for today refresh failed: %v", err)
		return
	}

	wanted := make(map[string]struct{}, len(instruments))
	symbols := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		wanted[inst.Symbol] = struct{}{}
		symbols = append(symbols, inst.Symbol)
	}

	var scoped []models.MStockPrice
	if len(symbols) > 0 {
		for _, p := range c.Provider.CurrentPrices(ctx, symbols) {
			if _, ok := wanted[p.Symbol]; ok {
				scoped = append(scoped, p)
			}
		}
	}

	dayStart, _ := utils.DayBounds(c.Now(), c.Location)
	if err := c.DB.ReplaceTodayPrices(ctx, dayStart, c.resolve(scoped)); err != nil {
		c.Logger.Error("Today refresh failed: %v", err)
	}
}

// -----------------------------------------------------------------------------

// resolve attaches storage ids and drops unknown symbols.
func (c *StockCache) resolve(prices []models.MStockPrice) []models.MStockPrice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.MStockPrice, 0, len(prices))
	for _, p := range prices {
		id, ok := c.symbolToID[p.Symbol]
		if !ok {
			continue
		}
		p.StockID = id
		out = append(out, p)
	}
	return out
}

// -----------------------------------------------------------------------------

// Stats reports table sizes.
func (c *StockCache) Stats(ctx context.Context) (models.MStoreStats, error) {
	return c.DB.Stats(ctx)
}
