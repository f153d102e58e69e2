package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical textual form of a Date.
const DateLayout = "2006-01-02"

// Date is a nullable calendar date. The time of day is always discarded and
// the zero value is the null date.
type Date struct {
	t     time.Time
	valid bool
}

// NewDate returns the calendar date y-m-d.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), valid: true}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// NullDate returns the null date.
func NullDate() Date {
	return Date{}
}

// IsNull reports whether the date is missing.
func (d Date) IsNull() bool {
	return !d.valid
}

// Time returns the date as midnight UTC, or the zero time for a null date.
func (d Date) Time() time.Time {
	return d.t
}

// AddDays returns the date shifted by n days. A null date stays null.
func (d Date) AddDays(n int) Date {
	if !d.valid {
		return d
	}
	return Date{t: d.t.AddDate(0, 0, n), valid: true}
}

// DaysUntil returns other − d in whole days. ok is false when either date
// is null.
func (d Date) DaysUntil(other Date) (days int, ok bool) {
	if !d.valid || !other.valid {
		return 0, false
	}
	return int(other.t.Sub(d.t) / (24 * time.Hour)), true
}

// Before reports whether d is strictly before other. Null dates are never
// before anything.
func (d Date) Before(other Date) bool {
	return d.valid && other.valid && d.t.Before(other.t)
}

// Equal reports whether both dates are null or both denote the same day.
func (d Date) Equal(other Date) bool {
	if d.valid != other.valid {
		return false
	}
	return !d.valid || d.t.Equal(other.t)
}

func (d Date) String() string {
	if !d.valid {
		return ""
	}
	return d.t.Format(DateLayout)
}

// MarshalJSON encodes a null date as JSON null.
func (d Date) MarshalJSON() ([]byte, error) {
	if !d.valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts null or a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	*d = DateOf(t)
	return nil
}

// MinDate returns the earliest non-null date of the given dates, or the null
// date when all of them are null.
func MinDate(dates ...Date) Date {
	var min Date
	for _, d := range dates {
		if d.IsNull() {
			continue
		}
		if min.IsNull() || d.Before(min) {
			min = d
		}
	}
	return min
}
