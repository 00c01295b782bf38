package models

// MPriceTable names one of the two price tables.
type MPriceTable string

const (
	TableHistorical MPriceTable = "stock_price"
	TableToday      MPriceTable = "stock_price_today"
)

// MStoreStats summarizes table sizes for health and status endpoints.
type MStoreStats struct {
	Instruments    int64 `json:"instruments"`
	TodayRows      int64 `json:"today_rows"`
	HistoricalRows int64 `json:"historical_rows"`
}
