// Package finance derives monthly money views from the same appointment and
// expense records the scheduler mutates. Nothing here is persisted; every
// summary is recomputed from storage.
package finance

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod rejects malformed month/day/range parameters.
var ErrInvalidPeriod = errors.New("finance: invalid period")

// Period is a half-open aggregation window [Start, End).
type Period struct {
	Label string
	Start time.Time
	End   time.Time
}

// ParsePeriod picks the aggregation window. Preference order follows the
// admin UI: explicit from/to range, then a single day, then a month; with
// nothing supplied the current month (as of now) is used.
func ParsePeriod(now time.Time, month, day, dateFrom, dateTo string) (Period, error) {
	switch {
	case dateFrom != "" && dateTo != "":
		return parseRange(dateFrom, dateTo)
	case day != "":
		return parseDay(day)
	case month != "":
		return parseMonth(month)
	default:
		return parseMonth(now.UTC().Format("2006-01"))
	}
}

func parseMonth(month string) (Period, error) {
	start, err := time.ParseInLocation("2006-01", month, time.UTC)
	if err != nil {
		return Period{}, fmt.Errorf("%w: month must be YYYY-MM", ErrInvalidPeriod)
	}
	return Period{
		Label: month,
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}, nil
}

func parseDay(day string) (Period, error) {
	start, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		return Period{}, fmt.Errorf("%w: day must be YYYY-MM-DD", ErrInvalidPeriod)
	}
	return Period{
		Label: day,
		Start: start,
		End:   start.AddDate(0, 0, 1),
	}, nil
}

func parseRange(dateFrom, dateTo string) (Period, error) {
	start, err := time.ParseInLocation("2006-01-02", dateFrom, time.UTC)
	if err != nil {
		return Period{}, fmt.Errorf("%w: date_from must be YYYY-MM-DD", ErrInvalidPeriod)
	}
	endDay, err := time.ParseInLocation("2006-01-02", dateTo, time.UTC)
	if err != nil {
		return Period{}, fmt.Errorf("%w: date_to must be YYYY-MM-DD", ErrInvalidPeriod)
	}
	if endDay.Before(start) {
		return Period{}, fmt.Errorf("%w: date_to precedes date_from", ErrInvalidPeriod)
	}
	return Period{
		Label: dateFrom + " - " + dateTo,
		Start: start,
		End:   endDay.AddDate(0, 0, 1),
	}, nil
}
