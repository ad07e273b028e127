// Package period provides the YearMonth value type used for all month-level
// bookkeeping boundaries. Calendar months are the unit of closing and reserve
// fund scheduling; no other package parses "YYYY-MM" strings on its own.
package period

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidMonth is returned when a month key cannot be parsed.
var ErrInvalidMonth = errors.New("period: month must be YYYY-MM")

// YearMonth identifies one calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// Parse parses a "2006-01" month key.
func Parse(value string) (YearMonth, error) {
	if value == "" {
		return YearMonth{}, ErrInvalidMonth
	}
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return YearMonth{}, ErrInvalidMonth
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// Of builds a YearMonth from year and month numbers.
func Of(year int, month time.Month) (YearMonth, error) {
	if year < 1 || month < time.January || month > time.December {
		return YearMonth{}, ErrInvalidMonth
	}
	return YearMonth{Year: year, Month: month}, nil
}

// FromTime returns the calendar month containing t (UTC).
func FromTime(t time.Time) YearMonth {
	u := t.UTC()
	return YearMonth{Year: u.Year(), Month: u.Month()}
}

// String returns the "2006-01" key.
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// IsZero reports whether ym is the zero value.
func (ym YearMonth) IsZero() bool {
	return ym.Year == 0 && ym.Month == 0
}

// FirstDay returns midnight UTC on the first day of the month.
func (ym YearMonth) FirstDay() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

// NextFirstDay returns midnight UTC on the first day of the following month.
// Entries dated in [FirstDay, NextFirstDay) belong to the month.
func (ym YearMonth) NextFirstDay() time.Time {
	return ym.FirstDay().AddDate(0, 1, 0)
}

// AddMonths returns the month n whole months after ym (n may be negative).
func (ym YearMonth) AddMonths(n int) YearMonth {
	return FromTime(ym.FirstDay().AddDate(0, n, 0))
}

// Next returns the following month.
func (ym YearMonth) Next() YearMonth { return ym.AddMonths(1) }

// Prev returns the preceding month.
func (ym YearMonth) Prev() YearMonth { return ym.AddMonths(-1) }

// Compare orders two months chronologically: -1, 0 or +1.
func (ym YearMonth) Compare(other YearMonth) int {
	a := ym.Year*12 + int(ym.Month)
	b := other.Year*12 + int(other.Month)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Before reports whether ym is strictly earlier than other.
func (ym YearMonth) Before(other YearMonth) bool { return ym.Compare(other) < 0 }

// After reports whether ym is strictly later than other.
func (ym YearMonth) After(other YearMonth) bool { return ym.Compare(other) > 0 }

// Contains reports whether t falls inside the month.
func (ym YearMonth) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(ym.FirstDay()) && u.Before(ym.NextFirstDay())
}
