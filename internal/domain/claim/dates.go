package claim

import (
	"strings"
	"time"
)

// billDateLayouts is tried in order; the first layout that parses wins.
// Day-first layouts precede month-first ones, so "05/03/2024" is 5 March.
var billDateLayouts = []string{
	"2006-1-2",
	"2-1-2006",
	"1-2-2006",
	"2006/1/2",
	"2/1/2006",
	"1/2/2006",
	"2/1/06",
	"1/2/06",
	"06/1/2",
	"06-1-2",
}

// ParseBillDate parses a free-form date printed on a bill.
// Two-digit years are always read as 2000+YY.
func ParseBillDate(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range billDateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if strings.Contains(layout, "06") && !strings.Contains(layout, "2006") {
			t = time.Date(2000+t.Year()%100, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		return t, true
	}
	return time.Time{}, false
}

// Day truncates t to a UTC calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// SameDay reports whether a and b fall on the same calendar date
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
