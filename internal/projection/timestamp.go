package projection

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NoDate is displayed for timestamps that could not be parsed.
const NoDate = "No date"

// DisplayLayout renders parsed timestamps.
const DisplayLayout = "2006-01-02 15:04:05"

var epoch = time.Unix(0, 0).UTC()

// isoLayouts are tried first, in order.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	time.DateTime,
	"2006-01-02T15:04",
	time.DateOnly,
}

// twelveHour matches "M/D/YYYY, h:mm:ss AM|PM"; the comma is optional.
var twelveHour = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4}),?\s+(\d{1,2}):(\d{2}):(\d{2})\s*([AaPp][Mm])$`)

// Timestamp is the result of parsing an Event.Time value: either a parsed
// instant or unparseable.
type Timestamp struct {
	t  time.Time
	ok bool
}

// Valid reports whether the value was parsed.
func (ts Timestamp) Valid() bool { return ts.ok }

// Time returns the parsed instant, or the zero time when invalid.
func (ts Timestamp) Time() time.Time { return ts.t }

// SortKey orders timestamps; unparseable values sort as the epoch.
func (ts Timestamp) SortKey() time.Time {
	if !ts.ok {
		return epoch
	}
	return ts.t
}

// Display formats a parsed value with DisplayLayout, or returns NoDate.
func (ts Timestamp) Display() string {
	if !ts.ok {
		return NoDate
	}
	return ts.t.Format(DisplayLayout)
}

// After compares sort keys.
func (ts Timestamp) After(other Timestamp) bool {
	return ts.SortKey().After(other.SortKey())
}

// ParseTimestamp parses s in the local time zone.
func ParseTimestamp(s string) Timestamp {
	return ParseTimestampIn(s, time.Local)
}

// ParseTimestampIn parses ISO-like values first and falls back to the
// 12-hour producer format. Values without a zone are read in loc.
func ParseTimestampIn(s string, loc *time.Location) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return Timestamp{t: t, ok: true}
		}
	}
	return parseTwelveHour(s, loc)
}

func parseTwelveHour(s string, loc *time.Location) Timestamp {
	m := twelveHour.FindStringSubmatch(s)
	if m == nil {
		return Timestamp{}
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	second, _ := strconv.Atoi(m[6])

	if month < 1 || month > 12 || hour < 1 || hour > 12 || minute > 59 || second > 59 {
		return Timestamp{}
	}
	switch pm := strings.EqualFold(m[7], "PM"); {
	case pm && hour < 12:
		hour += 12
	case !pm && hour == 12:
		hour = 0
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	if t.Day() != day || t.Month() != time.Month(month) {
		// time.Date normalizes 2/30 into March.
		return Timestamp{}
	}
	return Timestamp{t: t, ok: true}
}
