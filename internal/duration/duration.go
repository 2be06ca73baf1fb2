// Package duration parses human-readable windows such as "6mo" or "2y".
package duration

import (
	"fmt"
	"time"
)

// Parse parses a count followed by a unit, e.g. "30d", "6mo", "2y".
// Months are 30 days and years are 365 days.
func Parse(s string) (time.Duration, error) {
	var n int
	var unit string

	if _, err := fmt.Sscanf(s, "%d%s", &n, &unit); err != nil {
		return 0, fmt.Errorf("invalid duration format: %s (use e.g., 30d, 6mo, 2y)", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative duration: %s", s)
	}

	const day = 24 * time.Hour
	switch unit {
	case "d", "day", "days":
		return time.Duration(n) * day, nil
	case "w", "wk", "wks", "week", "weeks":
		return time.Duration(n) * 7 * day, nil
	case "mo", "month", "months":
		return time.Duration(n) * 30 * day, nil
	case "y", "yr", "yrs", "year", "years":
		return time.Duration(n) * 365 * day, nil
	default:
		return 0, fmt.Errorf("unknown duration unit: %s", unit)
	}
}

// Since returns the date s before now, formatted as YYYY-MM-DD in UTC.
func Since(s string, now time.Time) (string, error) {
	d, err := Parse(s)
	if err != nil {
		return "", err
	}
	return now.Add(-d).UTC().Format("2006-01-02"), nil
}
