package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MPriceFilter holds the optional constraints of a price query.
// Start and End are set together; a query without them asks for latest prices.
type MPriceFilter struct {
	Start *time.Time
	End   *time.Time
	High  *decimal.Decimal
	Low   *decimal.Decimal
	Names []string
}

// HasRange reports whether the filter names an explicit time range.
func (f MPriceFilter) HasRange() bool {
	return f.Start != nil && f.End != nil
}

// -----------------------------------------------------------------------------

// MPriceQuery is MPriceFilter translated into stored units.
type MPriceQuery struct {
	StartMs *int64
	EndMs   *int64
	Low     *int64
	High    *int64
	Names   []string
	Limit   int
}

// Query translates the filter into milliseconds and fixed-point bounds.
func (f MPriceFilter) Query(limit int) MPriceQuery {
	q := MPriceQuery{Names: f.Names, Limit: limit}
	if f.HasRange() {
		start, end := f.Start.UnixMilli(), f.End.UnixMilli()
		q.StartMs, q.EndMs = &start, &end
	}
	if f.Low != nil {
		low := ScaleBound(*f.Low)
		q.Low = &low
	}
	if f.High != nil {
		high := ScaleBound(*f.High)
		q.High = &high
	}
	return q
}
