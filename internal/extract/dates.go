package extract

import (
	"strings"
	"time"
)

// weekdays is ordered so a phrase naming several days always resolves to the
// first listed match.
var weekdays = []struct {
	name string
	day  time.Weekday
}{
	{"sunday", time.Sunday},
	{"monday", time.Monday},
	{"tuesday", time.Tuesday},
	{"wednesday", time.Wednesday},
	{"thursday", time.Thursday},
	{"friday", time.Friday},
	{"saturday", time.Saturday},
}

// resolveRelativeDate converts a RELATIVE:<word> date marker into a concrete
// YYYY-MM-DD date. Absolute dates and empty values pass through unchanged;
// an unrecognized relative word resolves to empty.
func resolveRelativeDate(date string) string {
	return resolveRelativeDateAt(date, time.Now())
}

func resolveRelativeDateAt(date string, now time.Time) string {
	relative, found := strings.CutPrefix(date, "RELATIVE:")
	if !found {
		return date
	}
	relative = strings.ToLower(strings.TrimSpace(relative))

	switch relative {
	case "today":
		return now.Format(time.DateOnly)
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format(time.DateOnly)
	}

	for _, weekday := range weekdays {
		if strings.Contains(relative, weekday.name) {
			// next occurrence of the named weekday, never today
			days := int(weekday.day - now.Weekday())
			if days <= 0 {
				days += 7
			}
			return now.AddDate(0, 0, days).Format(time.DateOnly)
		}
	}

	return ""
}
