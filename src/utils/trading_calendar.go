package utils

import (
	"strings"
	"time"

	"stock-cache/src/logger"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers whether an exchange traded on a given day.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// NewTradingCalendar loads the calendar for mic (ISO 10383, e.g. "xnys").
// Unknown codes fall back to xnys, then to a plain Mon-Fri week in New York.
func NewTradingCalendar(mic string, log *logger.Logger) *TradingCalendar {
	if log == nil {
		log = logger.NewNop()
	}
	mic = strings.ToLower(strings.TrimSpace(mic))
	if mic == "" {
		mic = DefaultCalendarMIC
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil && mic != DefaultCalendarMIC {
		log.Warning("Unknown calendar '%s', using %s", mic, DefaultCalendarMIC)
		cal = calendar.GetCalendar(DefaultCalendarMIC)
	}

	if cal == nil {
		log.Warning("Failed to load calendar '%s'. Using Mon-Fri fallback.", mic)
		nyLoc, err := time.LoadLocation(MarketTimezone)
		if err != nil {
			nyLoc = time.UTC
		}
		return &TradingCalendar{Fallback: true, Timezone: nyLoc}
	}

	return &TradingCalendar{Calendar: cal, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

// IsTradingDay reports whether the exchange's civil date containing date was a
// business day.
func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// PreviousTradingDay returns the last trading day strictly before date, looking
// back at most two weeks.
func (tc *TradingCalendar) PreviousTradingDay(date time.Time) (time.Time, bool) {
	day := date
	for i := 0; i < 14; i++ {
		day = day.AddDate(0, 0, -1)
		if tc.IsTradingDay(day) {
			return day, true
		}
	}
	return time.Time{}, false
}
