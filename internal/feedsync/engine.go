package feedsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/krisso99/roomwave-sync/internal/activity"
	"github.com/krisso99/roomwave-sync/internal/db"
	"github.com/krisso99/roomwave-sync/internal/ical"
)

// ConflictsDetectedMessage is recorded on a feed whose sync found overlaps.
const ConflictsDetectedMessage = "Conflicts detected during sync"

// Result represents the outcome of one feed sync invocation. A sync with any
// unresolved conflict reports Success=false even when individual event
// writes succeeded: availability data is suspect until the conflicts are
// resolved.
type Result struct {
	Success         bool           `json:"success"`
	Message         string         `json:"message"`
	EventsProcessed int            `json:"events_processed"`
	EventsCreated   int            `json:"events_created"`
	EventsUpdated   int            `json:"events_updated"`
	EventsRemoved   int            `json:"events_removed"`
	Conflicts       []*db.Conflict `json:"conflicts"`
	Errors          []string       `json:"errors,omitempty"`
	Duration        time.Duration  `json:"duration"`
}

// Engine orchestrates one feed synchronization cycle. It holds no per-sync
// state; concurrent syncs of different feeds are safe, concurrent syncs of
// the same feed are the scheduler's single-flight lock to prevent.
type Engine struct {
	db       *db.DB
	fetcher  Fetcher
	tracker  *activity.Tracker
	resolver *Resolver
}

// NewEngine creates a sync engine. The tracker may be nil.
func NewEngine(database *db.DB, fetcher Fetcher, tracker *activity.Tracker) *Engine {
	return &Engine{
		db:       database,
		fetcher:  fetcher,
		tracker:  tracker,
		resolver: NewResolver(database),
	}
}

// SyncFeed performs synchronization for a single feed: fetch, decode, diff
// against stored bookings, classify each event, and apply side effects.
func (e *Engine) SyncFeed(ctx context.Context, feed *db.Feed) *Result {
	start := time.Now()
	result := &Result{
		Conflicts: make([]*db.Conflict, 0),
		Errors:    make([]string, 0),
	}

	e.tracker.StartSync(feed.ID, feed.Name)

	raw, err := e.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		// Leave lastSync untouched so the feed is retried as if this sync
		// never started.
		result.Message = "Failed to fetch feed"
		result.Errors = append(result.Errors, err.Error())
		result.Duration = time.Since(start)
		e.finishSync(feed, result, false)
		return result
	}

	events := ical.Decode(raw)

	prevUIDs, err := e.db.GetFeedEventUIDs(feed.ID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to load previous events: %v", err))
		prevUIDs = map[string]bool{}
	}

	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		if ev.UID == "" {
			// Defensive decode output without an identity; nothing to match on.
			continue
		}
		result.EventsProcessed++
		seen[ev.UID] = true

		e.applyEvent(feed, ev, result)

		if err := e.db.UpsertFeedEvent(feed.ID, ev.UID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to record event %s: %v", ev.UID, err))
		}
	}

	e.removeVanished(feed, prevUIDs, seen, result)

	result.Duration = time.Since(start)
	if len(result.Conflicts) > 0 {
		result.Success = false
		result.Message = ConflictsDetectedMessage
	} else if len(result.Errors) > 0 {
		result.Success = false
		result.Message = fmt.Sprintf("Sync completed with %d errors", len(result.Errors))
	} else {
		result.Success = true
		result.Message = fmt.Sprintf("Synced %d events: %d created, %d updated, %d removed",
			result.EventsProcessed, result.EventsCreated, result.EventsUpdated, result.EventsRemoved)
	}

	e.finishSync(feed, result, true)
	return result
}

// applyEvent classifies one decoded event against the booking store:
// matched by external ref -> update; unmatched and overlapping a different
// booking -> conflict; otherwise -> create. Earlier writes in the batch are
// never rolled back by a later conflict.
func (e *Engine) applyEvent(feed *db.Feed, ev ical.Event, result *Result) {
	existing, err := e.db.GetBookingByExternalRef(feed.ID, ev.UID)
	if err == nil {
		if !bookingDiffers(existing, ev) {
			return
		}
		applyEventToBooking(existing, ev)
		if err := e.db.UpdateBooking(existing); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to update booking for %s: %v", ev.UID, err))
			return
		}
		result.EventsUpdated++
		return
	}
	if !errors.Is(err, db.ErrNotFound) {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to look up %s: %v", ev.UID, err))
		return
	}

	// Cancelled events we never recorded need no booking.
	if ev.Status == ical.StatusCancelled {
		return
	}

	overlapping, err := e.db.GetOverlappingBookings(feed.PropertyID, feed.RoomID, ev.StartDate, ev.EndDate)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed overlap check for %s: %v", ev.UID, err))
		return
	}

	if len(overlapping) > 0 {
		// A different booking claims overlapping stay dates: record the
		// conflict and leave the existing booking untouched.
		conflict := &db.Conflict{
			FeedID:            feed.ID,
			PropertyID:        feed.PropertyID,
			RoomID:            feed.RoomID,
			ExistingBookingID: overlapping[0].ID,
			IncomingUID:       ev.UID,
			IncomingSummary:   ev.Summary,
			IncomingStart:     ev.StartDate,
			IncomingEnd:       ev.EndDate,
		}
		if err := e.db.CreateConflict(conflict); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to record conflict for %s: %v", ev.UID, err))
			return
		}
		if feed.AutoResolve {
			resolved, err := e.resolver.AutoResolve(conflict)
			if err != nil {
				log.Printf("Auto-resolution failed for conflict %s: %v", conflict.ID, err)
			} else if !resolved.Pending() {
				// Settled by priority policy; not a blocking conflict.
				return
			}
		}
		result.Conflicts = append(result.Conflicts, conflict)
		return
	}

	booking := &db.Booking{
		PropertyID:  feed.PropertyID,
		RoomID:      feed.RoomID,
		FeedID:      feed.ID,
		ExternalUID: ev.UID,
		Channel:     feed.Name,
	}
	applyEventToBooking(booking, ev)
	if err := e.db.CreateBooking(booking); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to create booking for %s: %v", ev.UID, err))
		return
	}
	result.EventsCreated++
}

// removeVanished cancels bookings whose events disappeared from an
// authoritative (importing) feed since the previous decode.
func (e *Engine) removeVanished(feed *db.Feed, prevUIDs, seen map[string]bool, result *Result) {
	if !feed.Direction.Imports() {
		return
	}

	for uid := range prevUIDs {
		if seen[uid] {
			continue
		}

		booking, err := e.db.GetBookingByExternalRef(feed.ID, uid)
		if err == nil && booking.Status != db.BookingCancelled {
			booking.Status = db.BookingCancelled
			if err := e.db.UpdateBooking(booking); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to cancel booking for %s: %v", uid, err))
				continue
			}
			result.EventsRemoved++
		} else if err != nil && !errors.Is(err, db.ErrNotFound) {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to look up vanished %s: %v", uid, err))
			continue
		}

		if err := e.db.DeleteFeedEvent(feed.ID, uid); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to forget event %s: %v", uid, err))
		}
	}
}

// finishSync records the sync outcome on the feed, writes a sync log and
// closes the activity entry. completed is false for fetch failures, which
// must not touch lastSync.
func (e *Engine) finishSync(feed *db.Feed, result *Result, completed bool) {
	status := db.FeedStatusActive
	errMsg := ""
	if !result.Success {
		status = db.FeedStatusError
		errMsg = result.Message
	}

	if err := e.db.UpdateFeedSyncStatus(feed.ID, status, errMsg, completed); err != nil {
		log.Printf("Failed to update feed sync status: %v", err)
	}

	syncLog := &db.SyncLog{
		FeedID:          feed.ID,
		Status:          status,
		Message:         result.Message,
		EventsProcessed: result.EventsProcessed,
		EventsCreated:   result.EventsCreated,
		EventsUpdated:   result.EventsUpdated,
		EventsRemoved:   result.EventsRemoved,
		Conflicts:       len(result.Conflicts),
		Duration:        result.Duration,
	}
	if err := e.db.CreateSyncLog(syncLog); err != nil {
		log.Printf("Failed to create sync log: %v", err)
	}

	e.tracker.FinishSync(feed.ID, result.Success, result.Message,
		result.EventsProcessed, result.EventsCreated, result.EventsUpdated,
		result.EventsRemoved, len(result.Conflicts))
}

// bookingDiffers reports whether the decoded event carries changes the
// stored booking does not reflect.
func bookingDiffers(b *db.Booking, ev ical.Event) bool {
	if !b.CheckIn.Equal(ev.StartDate) || !b.CheckOut.Equal(ev.EndDate) {
		return true
	}
	if b.GuestName != ev.Summary {
		return true
	}
	if eventStatus(ev) != b.Status {
		return true
	}
	return false
}

// applyEventToBooking copies the event's fields onto the booking.
func applyEventToBooking(b *db.Booking, ev ical.Event) {
	b.CheckIn = ev.StartDate
	b.CheckOut = ev.EndDate
	b.GuestName = ev.Summary
	b.Notes = ev.Description
	b.Status = eventStatus(ev)
}

func eventStatus(ev ical.Event) db.BookingStatus {
	switch ev.Status {
	case ical.StatusTentative:
		return db.BookingTentative
	case ical.StatusCancelled:
		return db.BookingCancelled
	default:
		return db.BookingConfirmed
	}
}
