package ical

import (
	"strconv"
	"strings"
	"time"
)

// zoneRule describes the simplified offset model for one named zone: a
// standard offset, a daylight offset, and the months (inclusive) in which
// daylight time is assumed to be in effect. This is a documented
// approximation, not a calendar-exact timezone engine: transitions happen on
// specific Sundays the month-range test does not model. Production-critical
// paths should not depend on sub-day accuracy for floating local times.
type zoneRule struct {
	stdOffset time.Duration
	dstOffset time.Duration
	dstStart  time.Month // zero when the zone observes no DST
	dstEnd    time.Month
	southern  bool // DST window wraps the new year
}

// zoneRules covers the zones the channel managers we sync with actually emit.
var zoneRules = map[string]zoneRule{
	"America/New_York":    {stdOffset: -5 * time.Hour, dstOffset: -4 * time.Hour, dstStart: time.March, dstEnd: time.October},
	"America/Los_Angeles": {stdOffset: -8 * time.Hour, dstOffset: -7 * time.Hour, dstStart: time.March, dstEnd: time.October},
	"Europe/London":       {stdOffset: 0, dstOffset: 1 * time.Hour, dstStart: time.March, dstEnd: time.September},
	"Europe/Paris":        {stdOffset: 1 * time.Hour, dstOffset: 2 * time.Hour, dstStart: time.March, dstEnd: time.September},
	"Europe/Berlin":       {stdOffset: 1 * time.Hour, dstOffset: 2 * time.Hour, dstStart: time.March, dstEnd: time.September},
	"Asia/Tokyo":          {stdOffset: 9 * time.Hour, dstOffset: 9 * time.Hour},
	"Australia/Sydney":    {stdOffset: 10 * time.Hour, dstOffset: 11 * time.Hour, dstStart: time.October, dstEnd: time.March, southern: true},
}

// ParseDateTime converts an iCal date-time token into an absolute instant.
// Supported forms: "20060102T150405Z" (UTC), "20060102T150405" (floating,
// interpreted as host-local wall clock) and "20060102" (all-day date).
// Malformed tokens return the current instant rather than an error; callers
// must not rely on that fallback for correctness-critical paths.
func ParseDateTime(token string) time.Time {
	t, ok := parseToken(token, time.Local)
	if !ok {
		return time.Now().UTC()
	}
	return t
}

// ParseDateTimeInZone parses a floating token as wall-clock time in the named
// zone, using the simplified offset table. UTC tokens keep their suffix
// meaning and unknown zones degrade to the plain parse.
func ParseDateTimeInZone(token, zone string) time.Time {
	token = strings.TrimSpace(token)
	if strings.HasSuffix(token, "Z") {
		return ParseDateTime(token)
	}

	rule, ok := zoneRules[zone]
	if !ok {
		return ParseDateTime(token)
	}

	t, ok := parseToken(token, time.UTC)
	if !ok {
		return time.Now().UTC()
	}
	return t.Add(-rule.offsetAt(t.Month()))
}

// ZoneOffset returns the UTC offset assumed for the named zone at the given
// instant, and whether the zone is known.
func ZoneOffset(zone string, at time.Time) (time.Duration, bool) {
	rule, ok := zoneRules[zone]
	if !ok {
		return 0, false
	}
	return rule.offsetAt(at.Month()), true
}

// FormatDateTime renders an instant as a UTC iCal date-time token.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func (r zoneRule) offsetAt(month time.Month) time.Duration {
	if r.dstStart == 0 {
		return r.stdOffset
	}
	inDST := month >= r.dstStart && month <= r.dstEnd
	if r.southern {
		inDST = month >= r.dstStart || month <= r.dstEnd
	}
	if inDST {
		return r.dstOffset
	}
	return r.stdOffset
}

// parseToken extracts the date-time fields by fixed character offsets.
func parseToken(token string, loc *time.Location) (time.Time, bool) {
	token = strings.TrimSpace(token)

	switch len(token) {
	case 16: // 20060102T150405Z
		if token[8] != 'T' || token[15] != 'Z' {
			return time.Time{}, false
		}
		return assemble(token[:8], token[9:15], time.UTC)
	case 15: // 20060102T150405
		if token[8] != 'T' {
			return time.Time{}, false
		}
		return assemble(token[:8], token[9:15], loc)
	case 8: // 20060102
		return assemble(token, "000000", loc)
	default:
		return time.Time{}, false
	}
}

func assemble(date, clock string, loc *time.Location) (time.Time, bool) {
	year, ok1 := atoi(date[0:4])
	month, ok2 := atoi(date[4:6])
	day, ok3 := atoi(date[6:8])
	hour, ok4 := atoi(clock[0:2])
	minute, ok5 := atoi(clock[2:4])
	second, ok6 := atoi(clock[4:6])

	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, loc), true
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
