package models

import (
	"fmt"
	"strings"
	"time"
)

// DateRange is an inclusive [Start, End] window. A nil bound is open.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the range, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool {
	return r.Start == nil && r.End == nil
}

// ParseDateRange parses optional start and end strings. Dates may be YYYY-MM-DD or RFC 3339;
// a bare end date covers its whole day.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	if s := strings.TrimSpace(start); s != "" {
		t, _, err := parseDate(s)
		if err != nil {
			return r, fmt.Errorf("invalid start_date %q: %w", s, err)
		}
		r.Start = &t
	}
	if e := strings.TrimSpace(end); e != "" {
		t, dateOnly, err := parseDate(e)
		if err != nil {
			return r, fmt.Errorf("invalid end_date %q: %w", e, err)
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		r.End = &t
	}
	if r.Start != nil && r.End != nil && r.Start.After(*r.End) {
		return r, fmt.Errorf("start_date is after end_date")
	}
	return r, nil
}

func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}
