package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// AlignFromTo truncates both ends of a range to the given minute width.
// Widths below one minute align to whole minutes.
func AlignFromTo(from, to time.Time, minutes int) (time.Time, time.Time) {
	if minutes < 1 {
		minutes = 1
	}
	d := time.Duration(minutes) * time.Minute
	return from.UTC().Truncate(d), to.UTC().Truncate(d)
}

// TrailingWindow returns [now-lookback, now) aligned to the minute width.
func TrailingWindow(now time.Time, lookback time.Duration, minutes int) (time.Time, time.Time) {
	return AlignFromTo(now.Add(-lookback), now, minutes)
}
