// Package export builds outbound iCal feeds from stored bookings. External
// calendar platforms disable feeds that fail to parse, so generation never
// returns an error: any failure degrades to a minimal placeholder calendar.
package export

import (
	"context"
	"log"
	"time"

	"github.com/krisso99/roomwave-sync/internal/db"
	"github.com/krisso99/roomwave-sync/internal/ical"
)

// FallbackCalendarName is the display name used when the real property
// cannot be resolved.
const FallbackCalendarName = "RoomWave Calendar"

// Generator renders the export calendar for a property or room.
type Generator struct {
	db *db.DB
}

// NewGenerator creates an export generator backed by the booking store.
func NewGenerator(database *db.DB) *Generator {
	return &Generator{db: database}
}

// Generate returns iCal text listing the non-cancelled bookings that overlap
// [periodStart, periodEnd) for a property, optionally narrowed to one room.
// It always returns a parseable calendar; on any failure it returns the
// fallback calendar instead of an error.
func (g *Generator) Generate(_ context.Context, propertyID, roomID string, periodStart, periodEnd time.Time) string {
	name, err := g.calendarName(propertyID, roomID)
	if err != nil {
		log.Printf("Export: failed to resolve calendar %s/%s: %v", propertyID, roomID, err)
		return FallbackCalendar()
	}

	bookings, err := g.db.ListBookings(propertyID, roomID, periodStart, periodEnd)
	if err != nil {
		log.Printf("Export: failed to list bookings for %s/%s: %v", propertyID, roomID, err)
		return FallbackCalendar()
	}

	events := make([]ical.Event, 0, len(bookings))
	for _, b := range bookings {
		if b.Status == db.BookingCancelled {
			continue
		}
		events = append(events, ical.Event{
			// Stable per booking so consumers see updates, not duplicates.
			UID:       b.ID + "@roomwave",
			Summary:   "Reserved - " + name,
			StartDate: b.CheckIn,
			EndDate:   b.CheckOut,
			Status:    exportStatus(b.Status),
		})
	}

	return ical.Encode(events, name)
}

// FallbackCalendar is the degraded response for any generation failure:
// a single tentative placeholder so the consuming platform keeps the feed
// alive instead of disabling it.
func FallbackCalendar() string {
	now := time.Now().UTC()
	placeholder := ical.Event{
		UID:       "unavailable@roomwave",
		Summary:   "Calendar temporarily unavailable - contact support",
		StartDate: now,
		EndDate:   now.Add(24 * time.Hour),
		Status:    ical.StatusTentative,
	}
	return ical.Encode([]ical.Event{placeholder}, FallbackCalendarName)
}

// calendarName derives the display name from the property and, when one is
// selected, the room. Guest details never appear in exported summaries.
func (g *Generator) calendarName(propertyID, roomID string) (string, error) {
	property, err := g.db.GetPropertyByID(propertyID)
	if err != nil {
		return "", err
	}
	if roomID == "" {
		return property.Name, nil
	}
	room, err := g.db.GetRoomByID(roomID)
	if err != nil {
		return "", err
	}
	return property.Name + " " + room.Name, nil
}

func exportStatus(status db.BookingStatus) ical.Status {
	if status == db.BookingTentative {
		return ical.StatusTentative
	}
	return ical.StatusConfirmed
}
