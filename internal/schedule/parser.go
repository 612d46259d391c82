// Package schedule defers a culling job to a later start time, typically an
// off-peak window after a provider's quota resets.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// layouts are tried in order against absolute start times.
var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseStartAt resolves a start time relative to now. Accepted forms:
//   - "+90m" or "90m": a Go duration from now
//   - "HH:MM": today if still ahead, otherwise tomorrow
//   - "YYYY-MM-DD", "YYYY-MM-DD HH:MM", "YYYY-MM-DDTHH:MM", RFC 3339
//
// Times without a zone are read in now's location.
func ParseStartAt(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, fmt.Errorf("empty start time")
	}
	local := now.Location()

	if d, err := time.ParseDuration(strings.TrimPrefix(input, "+")); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("start offset must not be negative: %s", input)
		}
		return now.Add(d), nil
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, input, local); err == nil {
			return t, nil
		}
	}

	if t, err := time.ParseInLocation("15:04", input, local); err == nil {
		scheduled := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, local)
		if scheduled.Before(now) {
			scheduled = scheduled.AddDate(0, 0, 1)
		}
		return scheduled, nil
	}

	return time.Time{}, fmt.Errorf("invalid start time %q (supported: +DURATION, HH:MM, YYYY-MM-DD, \"YYYY-MM-DD HH:MM\", YYYY-MM-DDTHH:MM, RFC 3339)", input)
}
