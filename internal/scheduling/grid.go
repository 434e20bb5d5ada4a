package scheduling

import (
	"fmt"
	"time"
)

// SlotCandidate is one prospective slot produced by grid expansion.
type SlotCandidate struct {
	StartAt time.Time
	EndAt   time.Time
}

// BulkCreateRequest describes one day's slot grid.
type BulkCreateRequest struct {
	Date            string `json:"date"`       // YYYY-MM-DD
	StartTime       string `json:"start_time"` // HH:MM
	EndTime         string `json:"end_time"`   // HH:MM
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
}

// ExpandGrid turns a day, a time window, and a fixed duration into discrete
// slot candidates. The cursor advances by the duration; a candidate whose end
// would pass the window end is not emitted.
func ExpandGrid(req BulkCreateRequest) ([]SlotCandidate, error) {
	day, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidWindow)
	}
	start, err := parseClock(day, req.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseClock(day, req.EndTime)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", ErrInvalidWindow)
	}
	if req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration_minutes must be positive", ErrInvalidWindow)
	}
	if req.PriceCents < 0 {
		return nil, fmt.Errorf("%w: price must be non-negative", ErrInvalidWindow)
	}

	dur := time.Duration(req.DurationMinutes) * time.Minute
	var slots []SlotCandidate
	for cur := start; !cur.Add(dur).After(end); cur = cur.Add(dur) {
		slots = append(slots, SlotCandidate{StartAt: cur, EndAt: cur.Add(dur)})
	}
	return slots, nil
}

func parseClock(day time.Time, clock string) (time.Time, error) {
	t, err := time.ParseInLocation("15:04", clock, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: times must be HH:MM", ErrInvalidWindow)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}
