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
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// NormalizeUnix folds millisecond timestamps down to seconds.
func NormalizeUnix(ts int64) int64 {
	if ts > 1e11 {
		return ts / 1000
	}
	return ts
}

// AlignFromTo rounds the time range to bar boundaries for the timeframe.
func AlignFromTo(from, to time.Time, tf string) (time.Time, time.Time) {
	switch tf {
	case "1m":
		from = from.Truncate(time.Minute)
		to = to.Truncate(time.Minute)
	case "1h":
		from = from.Truncate(time.Hour)
		to = to.Truncate(time.Hour)
	case "1d":
		d := 24 * time.Hour
		from = from.Truncate(d)
		to = to.Truncate(d)
	default:
		from = from.Truncate(time.Hour)
		to = to.Truncate(time.Hour)
	}
	return from, to
}
