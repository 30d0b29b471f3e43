package models

import (
	"fmt"
	"time"
)

// BusinessDayLayout is the wire and storage format of a business day.
const BusinessDayLayout = "2006-01-02"

// BusinessDay is a clinic calendar date (Asia/Kolkata by default) in
// YYYY-MM-DD form. Lexical order equals chronological order.
type BusinessDay string

// ParseBusinessDay validates s and returns it as a BusinessDay
func ParseBusinessDay(s string) (BusinessDay, error) {
	t, err := time.Parse(BusinessDayLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidBusinessDay, s)
	}
	return BusinessDay(t.Format(BusinessDayLayout)), nil
}

// BusinessDayOf formats t in loc as a business day.
func BusinessDayOf(t time.Time, loc *time.Location) BusinessDay {
	return BusinessDay(t.In(loc).Format(BusinessDayLayout))
}

func (d BusinessDay) String() string {
	return string(d)
}

// Before reports whether d is strictly earlier than other.
func (d BusinessDay) Before(other BusinessDay) bool {
	return d < other
}

// AddDays shifts the day by n calendar days (n may be negative).
func (d BusinessDay) AddDays(n int) BusinessDay {
	t, err := time.Parse(BusinessDayLayout, string(d))
	if err != nil {
		return d
	}
	return BusinessDay(t.AddDate(0, 0, n).Format(BusinessDayLayout))
}
