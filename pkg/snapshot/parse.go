package snapshot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTime accepts both "HHMM" and "HH:MM[:SS]" and returns the minute of
// day, in [0, 1440). Fallible: returns an error rather than panicking on
// unparseable input (spec §4.4).
func ParseTime(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}

	var hour, minute int
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) < 2 {
			return 0, fmt.Errorf("malformed time %q", s)
		}
		h, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, fmt.Errorf("malformed hour in %q: %w", s, err)
		}
		m, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, fmt.Errorf("malformed minute in %q: %w", s, err)
		}
		hour, minute = h, m
	} else {
		if len(s) != 4 {
			return 0, fmt.Errorf("malformed HHMM time %q", s)
		}
		h, err := strconv.Atoi(s[:2])
		if err != nil {
			return 0, fmt.Errorf("malformed hour in %q: %w", s, err)
		}
		m, err := strconv.Atoi(s[2:])
		if err != nil {
			return 0, fmt.Errorf("malformed minute in %q: %w", s, err)
		}
		hour, minute = h, m
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return hour*60 + minute, nil
}

// FormatTime is the inverse of ParseTime, using "HHMM" form. Round-tripping
// via FormatTime -> ParseTime recovers the original minute-of-day for every
// m in [0, 1440), satisfying property P2.
func FormatTime(minuteOfDay int) string {
	h := minuteOfDay / 60
	m := minuteOfDay % 60
	return fmt.Sprintf("%02d%02d", h, m)
}

// ParseDate accepts "MM/DD/YYYY" and "YYYY-MM-DD".
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("01/02/2006", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
