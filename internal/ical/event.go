// Package ical implements a tolerant iCalendar (RFC 5545 style) event codec
// and date-time normalization for channel calendar feeds.
package ical

import "time"

// Status represents the iCal STATUS property of an event.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusTentative Status = "TENTATIVE"
	StatusCancelled Status = "CANCELLED"
)

// ValidStatuses contains all recognized event status values.
var ValidStatuses = map[Status]bool{
	StatusConfirmed: true,
	StatusTentative: true,
	StatusCancelled: true,
}

// IsValid returns true if the status is a known valid value.
func (s Status) IsValid() bool {
	return ValidStatuses[s]
}

// Event is a decoded calendar event. Events are transient: they exist for the
// duration of one sync or export cycle, the durable entity is the Booking.
type Event struct {
	UID          string    `json:"uid"`
	Summary      string    `json:"summary"`
	Description  string    `json:"description,omitempty"`
	Location     string    `json:"location,omitempty"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// Overlaps reports whether two date ranges conflict. Ranges are half-open:
// back-to-back stays where one checkout equals the other check-in do not
// overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
