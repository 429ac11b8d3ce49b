package billing

import (
	"fmt"
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
)

const periodLayout = "2006-01"

// Period is a billing month
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses a YYYY-MM period
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(periodLayout, s)
	if err != nil {
		return Period{}, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Invalid billing period %q, expected YYYY-MM", s))
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// PeriodOf returns the period containing t
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

// String formats the period as YYYY-MM
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero reports whether the period is unset
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Start returns midnight UTC on the first day of the period
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the exclusive end of the period, the start of the next month
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// AddMonths returns the period n months away
func (p Period) AddMonths(n int) Period {
	return PeriodOf(p.Start().AddDate(0, n, 0))
}

// Contains reports whether t falls within the period
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start()) && t.Before(p.End())
}
