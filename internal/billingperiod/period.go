// Package billingperiod handles the YYYY-MM calendar month keys that tie a
// usage reading to at most one bill.
package billingperiod

import (
	"strings"
	"time"

	"github.com/smallbiznis/aquabill/pkg/errs"
)

const layout = "2006-01"

var ErrInvalidPeriod = errs.New(errs.KindValidation, "invalid_billing_period")

type Period struct {
	Year  int
	Month time.Month
}

// Parse validates a YYYY-MM key.
func Parse(value string) (Period, error) {
	value = strings.TrimSpace(value)
	if len(value) != len(layout) {
		return Period{}, ErrInvalidPeriod
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// FromTime returns the period containing t (UTC).
func FromTime(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) String() string {
	return p.Start().Format(layout)
}

// Start is the first instant of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant after the period.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Contains reports whether t falls within the period.
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start()) && t.Before(p.End())
}
