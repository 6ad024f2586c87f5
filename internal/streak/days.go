package streak

import (
	"time"

	"github.com/planloop/planloop/internal/models"
)

// Qualification is a calendar-day concept in the user's configured timezone,
// never server-local time. All helpers here take the profile's location.

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(models.DayLayout)
}

// dayBounds returns the [start, end) instants of a calendar day. AddDate is
// used rather than adding 24h so DST transition days keep their real length.
func dayBounds(day string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(models.DayLayout, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}

func nextDay(day string, loc *time.Location) (string, error) {
	start, err := time.ParseInLocation(models.DayLayout, day, loc)
	if err != nil {
		return "", err
	}
	return start.AddDate(0, 0, 1).Format(models.DayLayout), nil
}

// daysBetween lists the days strictly after `after` and up to `until`
// inclusive, oldest first. DayLayout strings order lexicographically, so
// simple comparisons are date comparisons.
func daysBetween(after, until string, loc *time.Location) ([]string, error) {
	if after >= until {
		return nil, nil
	}
	var days []string
	day := after
	for {
		next, err := nextDay(day, loc)
		if err != nil {
			return nil, err
		}
		if next > until {
			return days, nil
		}
		days = append(days, next)
		day = next
	}
}

func maxDay(a, b string) string {
	if a > b {
		return a
	}
	return b
}
