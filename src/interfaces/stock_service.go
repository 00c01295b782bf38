package interfaces

import (
	"context"

	"stock-cache/src/models"
)

// -----------------------------------------------------------------------------
// IStockService is the query side of the stock cache.
// -----------------------------------------------------------------------------

type IStockService interface {
	ListInstruments(ctx context.Context, names []string) ([]models.MInstrument, error)
	QueryPrices(ctx context.Context, filter models.MPriceFilter) ([]models.MPriceRecord, error)
	Stats(ctx context.Context) (models.MStoreStats, error)
}

// -----------------------------------------------------------------------------
// ISubscriptions manages live-tick listeners per symbol.
// -----------------------------------------------------------------------------

type ISubscriptions interface {
	Subscribe(symbols []string, listener IPriceListener)
	Unsubscribe(symbols []string, listener IPriceListener)
	UnsubscribeAll(listener IPriceListener)
}
