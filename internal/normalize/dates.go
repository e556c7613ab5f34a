package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	dayFirstDate  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})(?:[ T](\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)
	yearFirstDate = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?: (\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)

	isoLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05Z0700",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
	}
)

// ParseDate parses s trying ISO-8601, DD/MM/YYYY[ HH:MM[:SS]],
// YYYY-MM-DD[ HH:MM:SS] and then a generic parser. Anything else,
// including out-of-range components, yields now.
func ParseDate(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return now
	}

	if strings.Contains(s, "T") {
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}

	if m := dayFirstDate.FindStringSubmatch(s); m != nil {
		if t, ok := buildDate(m[3], m[2], m[1], m[4], m[5], m[6]); ok {
			return t
		}
		return now
	}
	if m := yearFirstDate.FindStringSubmatch(s); m != nil {
		if t, ok := buildDate(m[1], m[2], m[3], m[4], m[5], m[6]); ok {
			return t
		}
		return now
	}

	if t, err := dateparse.ParseIn(s, time.UTC); err == nil {
		return t.UTC()
	}
	return now
}

// buildDate assembles a UTC time and rejects components that time.Date
// would otherwise normalise, such as day 32 or month 13.
func buildDate(year, month, day, hour, minute, second string) (time.Time, bool) {
	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	h, mi, sec := atoiOr0(hour), atoiOr0(minute), atoiOr0(second)

	if mo < 1 || mo > 12 || d < 1 || d > 31 || h > 23 || mi > 59 || sec > 59 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, h, mi, sec, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != mo {
		return time.Time{}, false
	}
	return t, true
}

func atoiOr0(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}
