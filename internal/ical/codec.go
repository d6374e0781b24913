package ical

import (
	"strings"
	"time"
)

const prodIDVendor = "-//RoomWave//"

// Decode parses raw iCalendar text into the events it contains. The decoder
// tolerates CRLF or LF line endings and folded (continuation) lines, ignores
// calendar-level headers and unrecognized properties, and never fails: a
// malformed event yields a defensively initialized record instead of an
// error. Callers must discard events with an empty UID.
func Decode(text string) []Event {
	lines := unfoldLines(text)

	events := make([]Event, 0)
	var current *Event

	for _, line := range lines {
		name, params, value, ok := splitProperty(line)
		if !ok {
			continue
		}

		switch name {
		case "BEGIN":
			if value == "VEVENT" {
				ev := defensiveEvent()
				current = &ev
			}
		case "END":
			if value == "VEVENT" && current != nil {
				clampRange(current)
				events = append(events, *current)
				current = nil
			}
		case "UID":
			if current != nil {
				current.UID = value
			}
		case "SUMMARY":
			if current != nil {
				current.Summary = unescapeText(value)
			}
		case "DESCRIPTION":
			if current != nil {
				current.Description = unescapeText(value)
			}
		case "LOCATION":
			if current != nil {
				current.Location = unescapeText(value)
			}
		case "DTSTART":
			if current != nil {
				current.StartDate = parseWithParams(value, params)
			}
		case "DTEND":
			if current != nil {
				current.EndDate = parseWithParams(value, params)
			}
		case "STATUS":
			if current != nil {
				status := Status(strings.ToUpper(strings.TrimSpace(value)))
				if status.IsValid() {
					current.Status = status
				}
			}
		case "CREATED":
			if current != nil {
				current.CreatedAt = ParseDateTime(value)
			}
		case "LAST-MODIFIED":
			if current != nil {
				current.LastModified = ParseDateTime(value)
			}
		}
	}

	return events
}

// Encode serializes events into a well-formed VCALENDAR using CRLF line
// endings. The calendar name is embedded in the PRODID. Events without an
// explicit status are exported as CONFIRMED.
func Encode(events []Event, calendarName string) string {
	now := time.Now().UTC()

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + prodIDVendor + escapeText(calendarName) + "//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"X-WR-CALNAME:" + escapeText(calendarName),
	}

	for _, ev := range events {
		status := ev.Status
		if !status.IsValid() {
			status = StatusConfirmed
		}

		lines = append(lines,
			"BEGIN:VEVENT",
			"UID:"+ev.UID,
			"DTSTAMP:"+FormatDateTime(now),
			"DTSTART:"+FormatDateTime(ev.StartDate),
			"DTEND:"+FormatDateTime(ev.EndDate),
			"SUMMARY:"+escapeText(ev.Summary),
		)
		if ev.Description != "" {
			lines = append(lines, "DESCRIPTION:"+escapeText(ev.Description))
		}
		if ev.Location != "" {
			lines = append(lines, "LOCATION:"+escapeText(ev.Location))
		}
		lines = append(lines,
			"STATUS:"+string(status),
			"END:VEVENT",
		)
	}

	lines = append(lines, "END:VCALENDAR")
	return strings.Join(lines, "\r\n") + "\r\n"
}

// unfoldLines splits raw text into logical lines, joining folded
// continuations (lines starting with a space or tab) onto their parent.
func unfoldLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line == "" {
			continue
		}
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += strings.TrimLeft(line, " \t")
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// splitProperty splits "NAME;PARAM=VALUE:value" into its parts. Parameters
// are returned as the raw text between the name and the colon.
func splitProperty(line string) (name, params, value string, ok bool) {
	colonIdx := strings.Index(line, ":")
	if colonIdx == -1 {
		return "", "", "", false
	}

	name = line[:colonIdx]
	value = line[colonIdx+1:]

	if semiIdx := strings.Index(name, ";"); semiIdx != -1 {
		params = name[semiIdx+1:]
		name = name[:semiIdx]
	}

	return strings.ToUpper(strings.TrimSpace(name)), params, value, true
}

// parseWithParams parses a date-time value honoring a TZID parameter when one
// of the known zones is named. Unknown zones fall back to the plain parse.
func parseWithParams(value, params string) time.Time {
	for _, param := range strings.Split(params, ";") {
		if name, tzid, found := strings.Cut(param, "="); found && strings.EqualFold(name, "TZID") {
			return ParseDateTimeInZone(value, tzid)
		}
	}
	return ParseDateTime(value)
}

// defensiveEvent returns the defaults applied to an event whose required
// fields never arrive before END:VEVENT.
func defensiveEvent() Event {
	now := time.Now().UTC()
	return Event{
		Status:       StatusConfirmed,
		StartDate:    now,
		EndDate:      now,
		CreatedAt:    now,
		LastModified: now,
	}
}

// clampRange repairs zero-length or inverted date ranges so the end date
// invariant holds for every decoded event. One night is the smallest stay
// the booking model understands.
func clampRange(ev *Event) {
	if !ev.EndDate.After(ev.StartDate) {
		ev.EndDate = ev.StartDate.Add(24 * time.Hour)
	}
}

// unescapeText reverses iCal text escaping.
func unescapeText(value string) string {
	r := strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)
	return r.Replace(value)
}

// escapeText applies iCal text escaping.
func escapeText(value string) string {
	r := strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\n", `\n`)
	return r.Replace(value)
}
