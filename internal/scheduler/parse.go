package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// timePattern matches "5pm", "5:30 pm", "17:30" inside a schedule.
var timePattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)

// everyNPattern matches "every 30 minutes" / "every 2 hours".
var everyNPattern = regexp.MustCompile(`(?i)\bevery\s+(\d+)\s+(minute|hour)s?\b`)

// ParseSchedule translates a plain-language schedule into a five-field
// cron spec. A string that already looks like a cron spec passes
// through unchanged.
func ParseSchedule(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty schedule")
	}
	if fields := strings.Fields(text); len(fields) == 5 && !hasLetters(text) {
		return text, nil
	}
	lower := strings.ToLower(text)

	if m := everyNPattern.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n <= 0 {
			return "", fmt.Errorf("invalid interval in %q", text)
		}
		if m[2] == "minute" {
			return fmt.Sprintf("*/%d * * * *", n), nil
		}
		return fmt.Sprintf("0 */%d * * *", n), nil
	}

	hour, minute := 9, 0 // default firing time
	if h, m, ok := parseClock(lower); ok {
		hour, minute = h, m
	}

	switch {
	case strings.Contains(lower, "hourly") || strings.Contains(lower, "every hour"):
		return "0 * * * *", nil
	case strings.Contains(lower, "weekly") || strings.Contains(lower, "every week") || strings.Contains(lower, "every monday"):
		return fmt.Sprintf("%d %d * * 1", minute, hour), nil
	case strings.Contains(lower, "daily") || strings.Contains(lower, "every day") || strings.Contains(lower, "every morning") || strings.Contains(lower, "every evening"):
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	}
	return "", fmt.Errorf("cannot parse schedule %q", text)
}

// parseClock extracts an hour/minute from the schedule text, honoring
// am/pm suffixes.
func parseClock(lower string) (hour, minute int, ok bool) {
	m := timePattern.FindStringSubmatch(lower)
	if m == nil {
		return 0, 0, false
	}
	// A bare number with no minutes and no meridiem is too ambiguous
	// to treat as a time ("every 2 hours" must not match here).
	if m[2] == "" && m[3] == "" {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

func hasLetters(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}
