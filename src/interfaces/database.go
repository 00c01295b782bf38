package interfaces

import (
	"context"

	"stock-cache/src/models"
)

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage operations.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// Initialize opens the connection and creates missing tables.
	Initialize(ctx context.Context) error

	// -----------------------------------------------------------------------------

	// LoadInstruments returns every stored instrument.
	LoadInstruments(ctx context.Context) ([]models.MInstrument, error)

	// InsertInstruments stores new instruments, ignoring known symbols, and
	// returns the stored rows for the given symbols.
	InsertInstruments(ctx context.Context, instruments []models.MInstrument) ([]models.MInstrument, error)

	// ListInstruments returns instruments matching any of the wildcard names.
	ListInstruments(ctx context.Context, names []string) ([]models.MInstrument, error)

	// -----------------------------------------------------------------------------

	// ReplaceTodayPrices drops rows older than dayStartMs and the previous rows of
	// the refreshed instruments, then stores prices.
	ReplaceTodayPrices(ctx context.Context, dayStartMs int64, prices []models.MStockPrice) error

	// HistoricalDayExists reports whether any historical row has start <= time < end.
	HistoricalDayExists(ctx context.Context, startMs, endMs int64) (bool, error)

	// BeginDay opens the transaction that receives one day of backfilled rows.
	BeginDay(ctx context.Context) (IDayTx, error)

	// -----------------------------------------------------------------------------

	// QueryPrices reads one price table joined with its instruments.
	QueryPrices(ctx context.Context, table models.MPriceTable, q models.MPriceQuery) ([]models.MPriceRow, error)

	// Stats returns table sizes.
	Stats(ctx context.Context) (models.MStoreStats, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}

// -----------------------------------------------------------------------------
// IDayTx is a backfill transaction scoped to one calendar day.
// -----------------------------------------------------------------------------

type IDayTx interface {
	InsertHistorical(ctx context.Context, prices []models.MStockPrice) error
	Commit() error
	Rollback() error
}
