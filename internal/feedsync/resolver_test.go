package feedsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/krisso99/roomwave-sync/internal/db"
)

// seedConflict creates a booking on feed and a conflict against it from the
// given incoming feed.
func seedConflict(t *testing.T, database *db.DB, bookingFeed, incomingFeed *db.Feed) (*db.Booking, *db.Conflict) {
	t.Helper()

	booking := &db.Booking{
		PropertyID:  bookingFeed.PropertyID,
		RoomID:      bookingFeed.RoomID,
		FeedID:      bookingFeed.ID,
		ExternalUID: "existing-stay",
		GuestName:   "Guest A",
		CheckIn:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:    time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
		Status:      db.BookingConfirmed,
	}
	if err := database.CreateBooking(booking); err != nil {
		t.Fatalf("failed to create booking: %v", err)
	}

	conflict := &db.Conflict{
		FeedID:            incomingFeed.ID,
		PropertyID:        bookingFeed.PropertyID,
		ExistingBookingID: booking.ID,
		IncomingUID:       "incoming-stay",
		IncomingSummary:   "Guest B",
		IncomingStart:     time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		IncomingEnd:       time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC),
	}
	if err := database.CreateConflict(conflict); err != nil {
		t.Fatalf("failed to create conflict: %v", err)
	}
	return booking, conflict
}

func TestResolve(t *testing.T) {
	t.Run("keep_existing leaves the booking untouched", func(t *testing.T) {
		database, cleanup := setupTestDB(t)
		defer cleanup()
		feed := createTestFeed(t, database, "resolver", 5)
		booking, conflict := seedConflict(t, database, feed, feed)

		resolver := NewResolver(database)
		resolved, err := resolver.Resolve(conflict.ID, db.ResolutionKeepExisting)
		if err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}
		if resolved.Resolution != db.ResolutionKeepExisting || resolved.ResolvedAt == nil {
			t.Errorf("conflict not resolved: %+v", resolved)
		}
		if resolved.Pending() {
			t.Error("keep_existing must not stay pending")
		}

		got, err := database.GetBookingByID(booking.ID)
		if err != nil {
			t.Fatalf("failed to get booking: %v", err)
		}
		if !got.CheckIn.Equal(booking.CheckIn) || got.GuestName != "Guest A" {
			t.Errorf("booking was mutated: %+v", got)
		}
	})

	t.Run("use_incoming overwrites the booking", func(t *testing.T) {
		database, cleanup := setupTestDB(t)
		defer cleanup()
		feed := createTestFeed(t, database, "resolver", 5)
		booking, conflict := seedConflict(t, database, feed, feed)

		resolver := NewResolver(database)
		resolved, err := resolver.Resolve(conflict.ID, db.ResolutionUseIncoming)
		if err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}
		if resolved.Resolution != db.ResolutionUseIncoming {
			t.Errorf("unexpected resolution %s", resolved.Resolution)
		}

		got, err := database.GetBookingByID(booking.ID)
		if err != nil {
			t.Fatalf("failed to get booking: %v", err)
		}
		if !got.CheckIn.Equal(conflict.IncomingStart) || !got.CheckOut.Equal(conflict.IncomingEnd) {
			t.Errorf("booking dates not replaced: %v - %v", got.CheckIn, got.CheckOut)
		}
		if got.GuestName != "Guest B" {
			t.Errorf("guest name not replaced: %s", got.GuestName)
		}
	})

	t.Run("manual flags without resolving", func(t *testing.T) {
		database, cleanup := setupTestDB(t)
		defer cleanup()
		feed := createTestFeed(t, database, "resolver", 5)
		_, conflict := seedConflict(t, database, feed, feed)

		resolver := NewResolver(database)
		resolved, err := resolver.Resolve(conflict.ID, db.ResolutionManual)
		if err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}
		if !resolved.Pending() || resolved.ResolvedAt != nil {
			t.Errorf("manual must stay pending: %+v", resolved)
		}

		pending, err := database.ListPendingConflicts(feed.PropertyID)
		if err != nil {
			t.Fatalf("failed to list conflicts: %v", err)
		}
		if len(pending) != 1 {
			t.Errorf("expected conflict still pending, got %d", len(pending))
		}
	})

	t.Run("repeated resolution is a no-op", func(t *testing.T) {
		database, cleanup := setupTestDB(t)
		defer cleanup()
		feed := createTestFeed(t, database, "resolver", 5)
		booking, conflict := seedConflict(t, database, feed, feed)

		resolver := NewResolver(database)
		if _, err := resolver.Resolve(conflict.ID, db.ResolutionUseIncoming); err != nil {
			t.Fatalf("first resolve failed: %v", err)
		}

		// Mutate the booking out-of-band; a repeat resolve must not clobber it.
		got, err := database.GetBookingByID(booking.ID)
		if err != nil {
			t.Fatalf("failed to get booking: %v", err)
		}
		got.GuestName = "Renamed after resolution"
		if err := database.UpdateBooking(got); err != nil {
			t.Fatalf("failed to update booking: %v", err)
		}

		if _, err := resolver.Resolve(conflict.ID, db.ResolutionUseIncoming); err != nil {
			t.Fatalf("repeat resolve failed: %v", err)
		}

		got, err = database.GetBookingByID(booking.ID)
		if err != nil {
			t.Fatalf("failed to get booking: %v", err)
		}
		if got.GuestName != "Renamed after resolution" {
			t.Error("repeat resolution re-applied side effects")
		}
	})

	t.Run("rejects unknown choices", func(t *testing.T) {
		database, cleanup := setupTestDB(t)
		defer cleanup()
		feed := createTestFeed(t, database, "resolver", 5)
		_, conflict := seedConflict(t, database, feed, feed)

		resolver := NewResolver(database)
		if _, err := resolver.Resolve(conflict.ID, db.Resolution("split_difference")); !errors.Is(err, ErrUnknownResolution) {
			t.Errorf("expected ErrUnknownResolution, got %v", err)
		}
	})

	t.Run("use_incoming on a deleted booking reports it gone", func(t *testing.T) {
		database, cleanup := setupTestDB(t)
		defer cleanup()
		feed := createTestFeed(t, database, "resolver", 5)
		booking, conflict := seedConflict(t, database, feed, feed)

		if err := database.DeleteBooking(booking.ID); err != nil {
			t.Fatalf("failed to delete booking: %v", err)
		}

		resolver := NewResolver(database)
		if _, err := resolver.Resolve(conflict.ID, db.ResolutionUseIncoming); !errors.Is(err, ErrBookingGone) {
			t.Errorf("expected ErrBookingGone, got %v", err)
		}
	})
}

func TestAutoChoice(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name     string
		existing *db.Feed
		incoming *db.Feed
		want     db.Resolution
	}{
		{"nil existing keeps local booking", nil, &db.Feed{Priority: 10}, db.ResolutionKeepExisting},
		{"higher incoming priority wins", &db.Feed{Priority: 3}, &db.Feed{Priority: 8}, db.ResolutionUseIncoming},
		{"lower incoming priority loses", &db.Feed{Priority: 8}, &db.Feed{Priority: 3}, db.ResolutionKeepExisting},
		{"equal priority defaults to existing", &db.Feed{Priority: 5}, &db.Feed{Priority: 5}, db.ResolutionKeepExisting},
		{
			"equal priority, older incoming data wins",
			&db.Feed{Priority: 5, LastSyncAt: &now},
			&db.Feed{Priority: 5, LastSyncAt: &earlier},
			db.ResolutionUseIncoming,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AutoChoice(tt.existing, tt.incoming); got != tt.want {
				t.Errorf("AutoChoice() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAutoResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("higher priority feed overrides lower", func(t *testing.T) {
		database, cleanup := setupTestDB(t)
		defer cleanup()

		lowFeed := createTestFeed(t, database, "low-priority", 3)
		highFeed := &db.Feed{
			Name:         "high-priority",
			URL:          "https://channel.example.com/high.ics",
			PropertyID:   lowFeed.PropertyID,
			RoomID:       lowFeed.RoomID,
			SyncInterval: 60,
			Direction:    db.DirectionImport,
			Priority:     8,
		}
		if err := database.CreateFeed(highFeed); err != nil {
			t.Fatalf("failed to create feed: %v", err)
		}

		// The low-priority feed books the room first.
		engine := NewEngine(database, &fakeFetcher{body: calendar(vevent("low-stay", 1, 5, "Guest A"))}, nil)
		if result := engine.SyncFeed(ctx, lowFeed); !result.Success {
			t.Fatalf("low feed sync failed: %s", result.Message)
		}

		// The high-priority channel then claims overlapping dates.
		engine = NewEngine(database, &fakeFetcher{body: calendar(vevent("high-stay", 3, 7, "Guest B"))}, nil)
		result := engine.SyncFeed(ctx, highFeed)
		if len(result.Conflicts) != 1 {
			t.Fatalf("expected 1 conflict, got %d", len(result.Conflicts))
		}

		resolver := NewResolver(database)
		resolved, err := resolver.AutoResolve(result.Conflicts[0])
		if err != nil {
			t.Fatalf("auto-resolve failed: %v", err)
		}
		if resolved.Resolution != db.ResolutionUseIncoming {
			t.Errorf("expected use_incoming, got %s", resolved.Resolution)
		}

		booking, err := database.GetBookingByExternalRef(lowFeed.ID, "low-stay")
		if err != nil {
			t.Fatalf("failed to get booking: %v", err)
		}
		if booking.CheckIn.Day() != 3 || booking.CheckOut.Day() != 7 {
			t.Errorf("booking not rewritten to incoming dates: %v - %v", booking.CheckIn, booking.CheckOut)
		}
	})

	t.Run("lower priority feed yields to incumbent", func(t *testing.T) {
		database, cleanup := setupTestDB(t)
		defer cleanup()

		highFeed := createTestFeed(t, database, "high-priority", 8)
		lowFeed := &db.Feed{
			Name:         "low-priority",
			URL:          "https://channel.example.com/low.ics",
			PropertyID:   highFeed.PropertyID,
			RoomID:       highFeed.RoomID,
			SyncInterval: 60,
			Direction:    db.DirectionImport,
			Priority:     3,
		}
		if err := database.CreateFeed(lowFeed); err != nil {
			t.Fatalf("failed to create feed: %v", err)
		}

		engine := NewEngine(database, &fakeFetcher{body: calendar(vevent("high-stay", 1, 5, "Guest A"))}, nil)
		if result := engine.SyncFeed(ctx, highFeed); !result.Success {
			t.Fatalf("high feed sync failed: %s", result.Message)
		}

		engine = NewEngine(database, &fakeFetcher{body: calendar(vevent("low-stay", 3, 7, "Guest B"))}, nil)
		result := engine.SyncFeed(ctx, lowFeed)
		if len(result.Conflicts) != 1 {
			t.Fatalf("expected 1 conflict, got %d", len(result.Conflicts))
		}

		resolver := NewResolver(database)
		resolved, err := resolver.AutoResolve(result.Conflicts[0])
		if err != nil {
			t.Fatalf("auto-resolve failed: %v", err)
		}
		if resolved.Resolution != db.ResolutionKeepExisting {
			t.Errorf("expected keep_existing, got %s", resolved.Resolution)
		}

		booking, err := database.GetBookingByExternalRef(highFeed.ID, "high-stay")
		if err != nil {
			t.Fatalf("failed to get booking: %v", err)
		}
		if booking.CheckIn.Day() != 1 || booking.CheckOut.Day() != 5 {
			t.Errorf("incumbent booking mutated: %v - %v", booking.CheckIn, booking.CheckOut)
		}
	})
}
