package recap

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - A calendar month
// =============================================================================

// Period is the recap unit: one calendar month of one year.
// Income is always aggregated for a period, never at a point in time.
type Period struct {
	Month time.Month
	Year  int
}

// NewPeriod validates month (1-12) and year (1-9999).
func NewPeriod(month, year int) (Period, error) {
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		return Period{}, &PeriodBoundaryError{Month: month, Year: year}
	}
	return Period{Month: time.Month(month), Year: year}, nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Month: t.Month(), Year: t.Year()}
}

// Validate re-checks a Period built without NewPeriod.
func (p Period) Validate() error {
	_, err := NewPeriod(int(p.Month), p.Year)
	return err
}

// Start is the first day of the month (00:00 UTC).
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the last day of the month (00:00 UTC).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Contains returns true if t's calendar date is within [Start, End].
// Time of day and location offset are ignored: only the date in t's own
// location counts, so 23:59 on the last day is inside.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && t.Month() == p.Month
}

// Next returns the following month.
func (p Period) Next() Period { return PeriodOf(p.Start().AddDate(0, 1, 0)) }

// Previous returns the preceding month.
func (p Period) Previous() Period { return PeriodOf(p.Start().AddDate(0, -1, 0)) }

// String formats as "2025-03".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}
