package util

import "time"

// IntervalDuration maps a bar interval string onto its duration.
// Returns (0, false) for intervals no provider supports.
func IntervalDuration(interval string) (time.Duration, bool) {
	switch interval {
	case "1m":
		return time.Minute, true
	case "5m":
		return 5 * time.Minute, true
	case "1h":
		return time.Hour, true
	default:
		return 0, false
	}
}

// AlignToGrid rounds t down to the interval boundary.
func AlignToGrid(t time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return t
	}
	return t.Truncate(interval)
}
