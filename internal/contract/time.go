package contract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Define the regular expression to capture "N [units] ago"
// e.g., "2 years ago", "3 months ago", "1 week ago".
var relativeTimeRe = regexp.MustCompile(`^(\d+)\s+(year|month|week|day)s?\s+ago$`)

// ParseRelativeTime converts strings like "2 years ago" into a date in the past.
// The result is truncated to midnight UTC since observations are daily.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	matches := relativeTimeRe.FindStringSubmatch(s)
	if len(matches) == 0 {
		return time.Time{}, fmt.Errorf("invalid relative time format: %s", s)
	}

	value, _ := strconv.Atoi(matches[1])
	var t time.Time
	switch matches[2] {
	case "year":
		t = now.AddDate(-value, 0, 0)
	case "month":
		t = now.AddDate(0, -value, 0)
	case "week":
		t = now.AddDate(0, 0, -7*value)
	default: // day
		t = now.AddDate(0, 0, -value)
	}
	return TruncateDay(t), nil
}

// ParseDate accepts YYYY-MM-DD, RFC3339 or "N [units] ago".
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return TruncateDay(t), nil
	}
	t, err := ParseRelativeTime(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD, RFC3339 or 'N [units] ago'", s)
	}
	return t, nil
}

// TruncateDay drops the clock part of t in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Define the regular expression to capture "N [units]".
var lookbackDurationRe = regexp.MustCompile(`^(\d+)\s+(year|month|week|day|hour|minute)s?$`)

// ParseLookbackDuration converts strings like "31 days" or "720h" into a single time.Duration.
// It first tries Go's built-in time.ParseDuration for standard formats, then falls back
// to custom parsing for human-readable formats.
func ParseLookbackDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	if duration, err := time.ParseDuration(s); err == nil {
		if duration == 0 {
			return 0, errors.New("zero duration is not useful")
		}
		return duration, nil
	}

	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	matches := lookbackDurationRe.FindStringSubmatch(s)
	if len(matches) == 0 {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}

	value, _ := strconv.Atoi(matches[1])
	var total time.Duration
	switch matches[2] {
	case "year":
		// Approximation: 1 year ≈ 365 days
		total = time.Duration(value) * 365 * 24 * time.Hour
	case "month":
		// Approximation: 1 month ≈ 30 days
		total = time.Duration(value) * 30 * 24 * time.Hour
	case "week":
		total = time.Duration(value) * 7 * 24 * time.Hour
	case "day":
		total = time.Duration(value) * 24 * time.Hour
	case "hour":
		total = time.Duration(value) * time.Hour
	default: // minute
		total = time.Duration(value) * time.Minute
	}

	if total == 0 {
		return 0, errors.New("zero duration is not useful")
	}
	return total, nil
}
