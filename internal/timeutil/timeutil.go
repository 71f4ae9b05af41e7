// ABOUTME: Time helpers for retention windows and listing periods
// ABOUTME: Parses day-suffixed durations and resolves named periods like today or week

package timeutil

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Day is a calendar-agnostic 24 hour day.
const Day = 24 * time.Hour

// maxRetentionDays is the largest day count a time.Duration can hold.
const maxRetentionDays = math.MaxInt64 / int64(Day)

// ParseRetention parses a retention window. It accepts a whole number of
// days with a "d" suffix ("30d") as well as any time.ParseDuration form
// ("720h"). The result must be positive.
func ParseRetention(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty retention")
	}

	var d time.Duration
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse retention %q: %w", s, err)
		}
		if n > maxRetentionDays {
			return 0, fmt.Errorf("retention %q exceeds %d days", s, maxRetentionDays)
		}
		d = time.Duration(n) * Day
	} else {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("parse retention %q: %w", s, err)
		}
		d = parsed
	}

	if d <= 0 {
		return 0, fmt.Errorf("retention %q must be positive", s)
	}
	return d, nil
}

// FormatRetention renders d in days when it is a whole number of days.
func FormatRetention(d time.Duration) string {
	if d > 0 && d%Day == 0 {
		return fmt.Sprintf("%dd", d/Day)
	}
	return d.String()
}

// StartOfDay returns midnight of the day containing t, in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns midnight of the most recent Sunday.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// StartOfMonth returns midnight of the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// ParsePeriod converts a period name to the start of that period relative
// to now. Supported values: "today", "yesterday", "week", "month".
func ParsePeriod(period string, now time.Time) (time.Time, bool) {
	switch period {
	case "today":
		return StartOfDay(now), true
	case "yesterday":
		return StartOfDay(now).AddDate(0, 0, -1), true
	case "week":
		return StartOfWeek(now), true
	case "month":
		return StartOfMonth(now), true
	default:
		return time.Time{}, false
	}
}

// ParseSince resolves a --since value: a named period, a retention-style
// window counted back from now ("7d", "12h"), or an RFC 3339 timestamp.
func ParseSince(value string, now time.Time) (time.Time, error) {
	if t, ok := ParsePeriod(value, now); ok {
		return t, nil
	}
	if d, err := ParseRetention(value); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q (use today, yesterday, week, month, 7d or RFC 3339)", value)
	}
	return t, nil
}
