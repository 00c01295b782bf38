package server

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"stock-cache/src/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// pricesQuery is the raw /prices query string.
type pricesQuery struct {
	Start string   `form:"start" validate:"required_with=End,omitempty,isodate"`
	End   string   `form:"end" validate:"required_with=Start,omitempty,isodate"`
	High  string   `form:"high" validate:"omitempty,positive"`
	Low   string   `form:"low" validate:"omitempty,positive"`
	Name  []string `form:"name"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

// -----------------------------------------------------------------------------

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report fields by their query or JSON name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			if name := strings.Split(f.Tag.Get(tag), ",")[0]; name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})

	v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := parseDate(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("positive", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	})
	return v
}

// -----------------------------------------------------------------------------

// parseDate accepts ISO-8601 timestamps and plain dates. Values without a
// zone are UTC.
func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 date", s)
}

func isDateOnly(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

// -----------------------------------------------------------------------------

// parsePricesQuery validates q and converts it into a cache filter.
func (s *APIServer) parsePricesQuery(q pricesQuery) (models.MPriceFilter, []string) {
	if err := s.validate.Struct(q); err != nil {
		return models.MPriceFilter{}, validationMessages(err)
	}

	filter := models.MPriceFilter{Names: splitNames(q.Name)}
	if q.Start != "" && q.End != "" {
		start, _ := parseDate(q.Start)
		end, _ := parseDate(q.End)
		if isDateOnly(q.End) {
			// a plain end date covers that whole day
			end = end.AddDate(0, 0, 1).Add(-time.Millisecond)
		}
		if end.Before(start) {
			return filter, []string{`"end" must not be before "start"`}
		}
		filter.Start, filter.End = &start, &end
	}
	if q.High != "" {
		high := decimal.RequireFromString(q.High)
		filter.High = &high
	}
	if q.Low != "" {
		low := decimal.RequireFromString(q.Low)
		filter.Low = &low
	}
	return filter, nil
}

// -----------------------------------------------------------------------------

func validationMessages(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_with":
			msgs = append(msgs, fmt.Sprintf("%q is required", fe.Field()))
		case "isodate":
			msgs = append(msgs, fmt.Sprintf("%q must be an ISO-8601 date", fe.Field()))
		case "positive":
			msgs = append(msgs, fmt.Sprintf("%q must be a positive number", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%q must be one of [%s]", fe.Field(), fe.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%q must contain at least %s item", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%q failed on %s", fe.Field(), fe.Tag()))
		}
	}
	return msgs
}

// -----------------------------------------------------------------------------

// splitNames flattens repeated and comma-separated name parameters.
func splitNames(values []string) []string {
	var names []string
	for _, v := range values {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	return names
}
