package interfaces

import (
	"context"
	"time"

	"stock-cache/src/models"
)

// DeliverFunc hands one live observation for symbol to the subscription registry.
type DeliverFunc func(symbol string, price models.MStockPrice)

// BatchFunc persists one batch of historical observations. The producer does not
// continue until it returns.
type BatchFunc func(ctx context.Context, prices []models.MStockPrice) error

// -----------------------------------------------------------------------------
// IDataSource is the capability set of an upstream market-data vendor.
// -----------------------------------------------------------------------------

type IDataSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// ListInstruments returns every instrument the vendor knows about.
	ListInstruments(ctx context.Context) ([]models.MInstrument, error)

	// -----------------------------------------------------------------------------

	// CurrentPrices returns the latest snapshot, scoped to symbols when the vendor
	// allows it. Callers filter the result.
	CurrentPrices(ctx context.Context, symbols []string) ([]models.MStockPrice, error)

	// -----------------------------------------------------------------------------

	// Location is the zone in which the vendor's trading days are defined.
	Location() *time.Location

	// -----------------------------------------------------------------------------

	// HistoricalPrices streams every observation of the calendar day in batches.
	// Only day's printed date counts; it is read in Location.
	HistoricalPrices(ctx context.Context, day time.Time, onBatch BatchFunc) error

	// -----------------------------------------------------------------------------

	// SubscribeSymbol and UnsubscribeSymbol are the upstream wire calls for live ticks.
	SubscribeSymbol(symbol string) error
	UnsubscribeSymbol(symbol string) error

	// -----------------------------------------------------------------------------

	// Start opens the live connection; every tick goes through deliver.
	// ctx controls the lifecycle.
	Start(ctx context.Context, deliver DeliverFunc) error

	// -----------------------------------------------------------------------------

	// Close releases the live connection.
	Close() error
}
