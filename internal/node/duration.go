package node

import (
	"strconv"
	"strings"
	"time"
)

// FormatDuration renders d as an uptime-style string: "0s", "42s",
// "5m 3s", "1h 1m", "3d 4h 5m". Seconds are dropped once d reaches an hour.
// Negative durations get a leading minus sign.
func FormatDuration(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}

	secs := int64(d / time.Second)
	if secs == 0 {
		return "0s"
	}

	days := secs / 86400
	hours := secs / 3600 % 24
	mins := secs / 60 % 60

	var parts []string
	if days > 0 {
		parts = append(parts, strconv.FormatInt(days, 10)+"d")
	}
	if days > 0 || hours > 0 {
		parts = append(parts, strconv.FormatInt(hours, 10)+"h")
	}
	if secs >= 60 {
		parts = append(parts, strconv.FormatInt(mins, 10)+"m")
	}
	if secs < 3600 {
		parts = append(parts, strconv.FormatInt(secs%60, 10)+"s")
	}

	out := strings.Join(parts, " ")
	if neg {
		return "-" + out
	}
	return out
}

// FormatAge describes how long ago t was, relative to now.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return FormatDuration(now.Sub(t)) + " ago"
}
