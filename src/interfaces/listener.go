package interfaces

import "stock-cache/src/models"

// IPriceListener receives live ticks. Implementations must be comparable,
// since they are stored as map keys.
type IPriceListener interface {
	OnPrice(price models.MStockPrice)
}
