// Package date parses the calendar dates and date ranges accepted on the
// command line for due dates and due-date filters.
package date

import (
	"fmt"
	"strings"
	"time"
)

const format = "2006-01-02"

// rangeSep separates the bounds of a range, e.g. "2025-01-01..2025-01-31".
const rangeSep = ".."

// New creates a UTC midnight timestamp from year, month, day.
func New(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Today returns today's date at UTC midnight.
func Today() time.Time {
	return Truncate(time.Now())
}

// Truncate drops the time-of-day part of t.
func Truncate(t time.Time) time.Time {
	return New(t.Year(), t.Month(), t.Day())
}

// Parse parses a due date. It accepts YYYY-MM-DD, RFC 3339 timestamps,
// and the keywords "today" and "tomorrow".
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "today":
		return Today(), nil
	case "tomorrow":
		return Today().AddDate(0, 0, 1), nil
	}
	if t, err := time.Parse(format, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", s)
}

// String formats t as YYYY-MM-DD.
func String(t time.Time) string {
	return t.Format(format)
}

// Range is an inclusive due-date range. Either bound may be nil.
type Range struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// IsZero reports whether neither bound is set.
func (r Range) IsZero() bool {
	return r.From == nil && r.To == nil
}

// Contains reports whether t lies within the range, bounds included.
func (r Range) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// ParseRange parses "FROM..TO", "FROM..", or "..TO". A date-only upper
// bound covers the whole day.
func ParseRange(s string) (Range, error) {
	from, to, ok := strings.Cut(s, rangeSep)
	if !ok {
		return Range{}, fmt.Errorf("invalid range %q: expected FROM..TO", s)
	}
	var r Range
	if from = strings.TrimSpace(from); from != "" {
		t, err := Parse(from)
		if err != nil {
			return Range{}, err
		}
		r.From = &t
	}
	if to = strings.TrimSpace(to); to != "" {
		t, err := Parse(to)
		if err != nil {
			return Range{}, err
		}
		if _, err := time.Parse(format, to); err == nil {
			t = EndOfDay(t)
		}
		r.To = &t
	}
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return Range{}, fmt.Errorf("invalid range %q: end before start", s)
	}
	return r, nil
}

// EndOfDay returns the last representable instant of t's day.
func EndOfDay(t time.Time) time.Time {
	return Truncate(t).Add(24*time.Hour - time.Nanosecond)
}

// Equal reports whether both ranges have the same bounds.
func (r Range) Equal(o Range) bool {
	return equalTime(r.From, o.From) && equalTime(r.To, o.To)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
