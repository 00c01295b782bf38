package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale is the fixed-point multiplier used for every stored price.
const PriceScale = 10000

// isoLayout matches the millisecond ISO-8601 form clients expect.
const isoLayout = "2006-01-02T15:04:05.000Z"

var priceScale = decimal.NewFromInt(PriceScale)

// MStockPrice is a single price observation. Time is milliseconds since epoch
// and Price is fixed-point (price × PriceScale).
type MStockPrice struct {
	StockID int64  `json:"-"`
	Symbol  string `json:"symbol"`
	Time    int64  `json:"time"`
	Price   int64  `json:"price"`
}

// -----------------------------------------------------------------------------

// MPriceRow is a persisted observation joined with its instrument.
type MPriceRow struct {
	ID     int64
	Name   string
	Symbol string
	Price  int64
	Time   int64
}

// -----------------------------------------------------------------------------

// MPriceRecord is the client-facing form of a price observation.
type MPriceRecord struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Price  Price  `json:"price"`
	Time   string `json:"time"`
}

// NewPriceRecord converts a stored row into its client-facing form.
func NewPriceRecord(row MPriceRow) MPriceRecord {
	return MPriceRecord{
		ID:     row.ID,
		Name:   row.Name,
		Symbol: row.Symbol,
		Price:  PriceFromFixed(row.Price),
		Time:   FormatTime(row.Time),
	}
}

// -----------------------------------------------------------------------------

// Price is a decimal price that serializes as a bare JSON number.
type Price struct {
	decimal.Decimal
}

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Price) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return err
	}
	p.Decimal = d
	return nil
}

// -----------------------------------------------------------------------------
// Fixed-point conversion
// -----------------------------------------------------------------------------

// FixedFromDecimal truncates a quoted price to cents before scaling, so
// 123.4567 becomes 1234500 and never 1234567.
func FixedFromDecimal(d decimal.Decimal) int64 {
	return d.Truncate(2).Mul(priceScale).IntPart()
}

// FixedFromFloat is FixedFromDecimal for JSON quotes decoded as float64.
func FixedFromFloat(f float64) int64 {
	return FixedFromDecimal(decimal.NewFromFloat(f))
}

// ScaleBound converts a user-supplied price bound to the stored scale
// without truncating to cents.
func ScaleBound(d decimal.Decimal) int64 {
	return d.Mul(priceScale).IntPart()
}

// PriceFromFixed converts a stored fixed-point price back to a decimal.
func PriceFromFixed(p int64) Price {
	return Price{decimal.New(p, -4)}
}

// -----------------------------------------------------------------------------

// FormatTime renders milliseconds since epoch as an ISO-8601 UTC string.
func FormatTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(isoLayout)
}
