package utils

import "time"

const (
	// DefaultCalendarMIC is the exchange whose sessions IEX follows.
	DefaultCalendarMIC = "xnys"
	MarketTimezone     = "America/New_York"
)

// -----------------------------------------------------------------------------

// DayBounds returns [start, end) in epoch milliseconds of the civil day
// containing t in loc.
func DayBounds(t time.Time, loc *time.Location) (int64, int64) {
	start := StartOfDay(t, loc)
	return start.UnixMilli(), start.AddDate(0, 0, 1).UnixMilli()
}

// -----------------------------------------------------------------------------

// OnDate returns midnight in loc of the calendar date printed on day,
// whatever day's own zone is.
func OnDate(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
}

// -----------------------------------------------------------------------------

// StartOfDay truncates t to local midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
