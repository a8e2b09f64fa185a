package clock

import (
	"strconv"
	"strings"
	"time"
)

// ZonedParts holds the calendar and clock components a wall clock in some
// timezone would display at a given instant. Keeping zone-sensitive date math
// behind this type and its two conversions means the DST handling lives in
// exactly one place.
type ZonedParts struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

// PartsAt returns the wall-clock components shown in loc at instant t
func PartsAt(t time.Time, loc *time.Location) ZonedParts {
	local := t.In(loc)
	return ZonedParts{
		Year:   local.Year(),
		Month:  local.Month(),
		Day:    local.Day(),
		Hour:   local.Hour(),
		Minute: local.Minute(),
		Second: local.Second(),
	}
}

// In converts wall-clock components back to an absolute instant. The offset
// for loc depends on the instant itself across DST transitions; time.Date
// resolves that against the zone database, so PartsAt and In round-trip on
// both sides of a transition. Components falling inside a spring-forward gap
// normalize to the instant the clock actually reached.
func (p ZonedParts) In(loc *time.Location) time.Time {
	return time.Date(p.Year, p.Month, p.Day, p.Hour, p.Minute, p.Second, 0, loc)
}

// EventStart combines an event's stored calendar date with its wall-clock
// start time, interpreted in loc. Malformed time strings degrade to midnight
// rather than failing; a reminder at 00:00 beats no reminder at all.
func EventStart(date time.Time, timeOfDay string, loc *time.Location) time.Time {
	hour, minute := parseTimeOfDay(timeOfDay)

	parts := ZonedParts{
		Year:   date.Year(),
		Month:  date.Month(),
		Day:    date.Day(),
		Hour:   hour,
		Minute: minute,
	}
	return parts.In(loc)
}

// parseTimeOfDay parses "HH:MM" or "HH:MM:SS", returning 00:00 for anything
// it cannot make sense of
func parseTimeOfDay(s string) (hour, minute int) {
	fields := strings.Split(strings.TrimSpace(s), ":")
	if len(fields) < 2 {
		return 0, 0
	}

	h, err := strconv.Atoi(fields[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0
	}

	m, err := strconv.Atoi(fields[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0
	}

	return h, m
}
