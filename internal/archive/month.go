package archive

import (
	"fmt"
	"strconv"
	"strings"
)

// Month is a year-month version stamp, the granularity at which the
// catalog dates archive versions. The zero value means "unknown" and
// orders before any known month.
type Month struct {
	Year  int
	Month int
}

// ParseMonth parses a "YYYY-MM" string.
func ParseMonth(s string) (Month, error) {
	y, m, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Month{}, fmt.Errorf("invalid month %q: want YYYY-MM", s)
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return Month{}, fmt.Errorf("invalid year in %q: %w", s, err)
	}
	month, err := strconv.Atoi(m)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month in %q: %w", s, err)
	}
	if year < 1 || month < 1 || month > 12 {
		return Month{}, fmt.Errorf("month %q out of range", s)
	}
	return Month{Year: year, Month: month}, nil
}

// IsZero reports whether m is the unknown month.
func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// Compare returns -1, 0 or 1 as m sorts before, equal to or after o.
// The unknown month sorts before every known month.
func (m Month) Compare(o Month) int {
	a := m.Year*12 + m.Month
	b := o.Year*12 + o.Month
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Before reports whether m sorts strictly before o.
func (m Month) Before(o Month) bool {
	return m.Compare(o) < 0
}

// String renders "YYYY-MM", or "" for the unknown month.
func (m Month) String() string {
	if m.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}
