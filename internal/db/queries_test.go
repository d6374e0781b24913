package db

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestDB creates a temporary test database.
func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "roomwave-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tempDir, "test.db")
	db, err := New(dbPath)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tempDir)
	}

	return db, cleanup
}

// createTestProperty creates a test property and returns its ID.
func createTestProperty(t *testing.T, db *DB, name string) string {
	t.Helper()

	p := &Property{Name: name}
	if err := db.CreateProperty(p); err != nil {
		t.Fatalf("failed to create test property: %v", err)
	}
	return p.ID
}

// createTestFeed creates a test feed for a property.
func createTestFeed(t *testing.T, db *DB, propertyID, name string) *Feed {
	t.Helper()

	feed := &Feed{
		Name:         name,
		URL:          "https://channel.example.com/" + name + ".ics",
		PropertyID:   propertyID,
		AutoSync:     true,
		SyncInterval: 60,
		Direction:    DirectionImport,
		Priority:     5,
	}
	if err := db.CreateFeed(feed); err != nil {
		t.Fatalf("failed to create test feed: %v", err)
	}
	return feed
}

// createTestBooking creates a booking for the given dates (days in June 2024).
func createTestBooking(t *testing.T, db *DB, propertyID, roomID, feedID, uid string, checkInDay, checkOutDay int) *Booking {
	t.Helper()

	b := &Booking{
		PropertyID:  propertyID,
		RoomID:      roomID,
		FeedID:      feedID,
		ExternalUID: uid,
		CheckIn:     time.Date(2024, 6, checkInDay, 0, 0, 0, 0, time.UTC),
		CheckOut:    time.Date(2024, 6, checkOutDay, 0, 0, 0, 0, time.UTC),
		Status:      BookingConfirmed,
	}
	if err := db.CreateBooking(b); err != nil {
		t.Fatalf("failed to create test booking: %v", err)
	}
	return b
}

func TestFeedCRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	propertyID := createTestProperty(t, db, "Riad Test")

	t.Run("create defaults status to pending", func(t *testing.T) {
		feed := createTestFeed(t, db, propertyID, "airbnb")
		if feed.Status != FeedStatusPending {
			t.Errorf("expected pending status, got %s", feed.Status)
		}

		got, err := db.GetFeedByID(feed.ID)
		if err != nil {
			t.Fatalf("failed to get feed: %v", err)
		}
		if got.Name != "airbnb" || got.Priority != 5 {
			t.Errorf("unexpected feed: %+v", got)
		}
		if got.LastSyncAt != nil {
			t.Error("expected nil last_sync_at for a new feed")
		}
	})

	t.Run("list filters by property", func(t *testing.T) {
		otherProperty := createTestProperty(t, db, "Riad Other")
		createTestFeed(t, db, otherProperty, "booking-com")

		feeds, err := db.ListFeeds(otherProperty)
		if err != nil {
			t.Fatalf("failed to list feeds: %v", err)
		}
		if len(feeds) != 1 {
			t.Errorf("expected 1 feed, got %d", len(feeds))
		}
	})

	t.Run("update missing feed returns not found", func(t *testing.T) {
		err := db.UpdateFeed(&Feed{ID: "does-not-exist", Name: "x", URL: "https://x", Direction: DirectionImport})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete removes feed", func(t *testing.T) {
		feed := createTestFeed(t, db, propertyID, "deleteme")
		if err := db.DeleteFeed(feed.ID); err != nil {
			t.Fatalf("failed to delete feed: %v", err)
		}
		if _, err := db.GetFeedByID(feed.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})
}

func TestUpdateFeedSyncStatus(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	propertyID := createTestProperty(t, db, "Riad Test")

	t.Run("fetch failure leaves last_sync_at unchanged", func(t *testing.T) {
		feed := createTestFeed(t, db, propertyID, "failing")

		if err := db.UpdateFeedSyncStatus(feed.ID, FeedStatusError, "fetch failed", false); err != nil {
			t.Fatalf("failed to update status: %v", err)
		}

		got, err := db.GetFeedByID(feed.ID)
		if err != nil {
			t.Fatalf("failed to get feed: %v", err)
		}
		if got.Status != FeedStatusError || got.Error != "fetch failed" {
			t.Errorf("unexpected status %s error %q", got.Status, got.Error)
		}
		if got.LastSyncAt != nil {
			t.Error("last_sync_at must stay unset on fetch failure")
		}
	})

	t.Run("completion sets last_sync_at", func(t *testing.T) {
		feed := createTestFeed(t, db, propertyID, "completing")

		if err := db.UpdateFeedSyncStatus(feed.ID, FeedStatusActive, "", true); err != nil {
			t.Fatalf("failed to update status: %v", err)
		}

		got, err := db.GetFeedByID(feed.ID)
		if err != nil {
			t.Fatalf("failed to get feed: %v", err)
		}
		if got.Status != FeedStatusActive {
			t.Errorf("expected active status, got %s", got.Status)
		}
		if got.LastSyncAt == nil {
			t.Error("expected last_sync_at to be set")
		}
	})
}

func TestBookingQueries(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	propertyID := createTestProperty(t, db, "Riad Test")
	feed := createTestFeed(t, db, propertyID, "airbnb")

	t.Run("external ref lookup is scoped to the feed", func(t *testing.T) {
		b := createTestBooking(t, db, propertyID, "room-1", feed.ID, "ev-1", 1, 5)

		got, err := db.GetBookingByExternalRef(feed.ID, "ev-1")
		if err != nil {
			t.Fatalf("failed to get booking: %v", err)
		}
		if got.ID != b.ID {
			t.Errorf("expected booking %s, got %s", b.ID, got.ID)
		}

		otherFeed := createTestFeed(t, db, propertyID, "booking-com")
		if _, err := db.GetBookingByExternalRef(otherFeed.ID, "ev-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for another feed, got %v", err)
		}
	})

	t.Run("overlap query uses strict interval overlap", func(t *testing.T) {
		createTestBooking(t, db, propertyID, "room-2", feed.ID, "ov-1", 10, 13)

		// Overlapping window
		overlapping, err := db.GetOverlappingBookings(propertyID, "room-2",
			time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("failed overlap query: %v", err)
		}
		if len(overlapping) != 1 {
			t.Errorf("expected 1 overlapping booking, got %d", len(overlapping))
		}

		// Back-to-back: checkout day 13 equals window check-in
		adjacent, err := db.GetOverlappingBookings(propertyID, "room-2",
			time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("failed overlap query: %v", err)
		}
		if len(adjacent) != 0 {
			t.Errorf("back-to-back stays must not overlap, got %d", len(adjacent))
		}
	})

	t.Run("cancelled bookings do not block dates", func(t *testing.T) {
		b := createTestBooking(t, db, propertyID, "room-3", feed.ID, "cx-1", 20, 25)
		b.Status = BookingCancelled
		if err := db.UpdateBooking(b); err != nil {
			t.Fatalf("failed to cancel booking: %v", err)
		}

		overlapping, err := db.GetOverlappingBookings(propertyID, "room-3",
			time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 6, 23, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("failed overlap query: %v", err)
		}
		if len(overlapping) != 0 {
			t.Errorf("cancelled booking should not overlap, got %d", len(overlapping))
		}
	})

	t.Run("property-wide bookings block every room", func(t *testing.T) {
		createTestBooking(t, db, propertyID, "", feed.ID, "pw-1", 26, 28)

		overlapping, err := db.GetOverlappingBookings(propertyID, "room-9",
			time.Date(2024, 6, 26, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 6, 27, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("failed overlap query: %v", err)
		}
		if len(overlapping) != 1 {
			t.Errorf("expected property-wide booking to block room, got %d", len(overlapping))
		}
	})
}

func TestConflictQueries(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	propertyID := createTestProperty(t, db, "Riad Test")
	feed := createTestFeed(t, db, propertyID, "airbnb")
	booking := createTestBooking(t, db, propertyID, "room-1", feed.ID, "ev-1", 1, 5)

	conflict := &Conflict{
		FeedID:            feed.ID,
		PropertyID:        propertyID,
		RoomID:            "room-1",
		ExistingBookingID: booking.ID,
		IncomingUID:       "ev-2",
		IncomingSummary:   "Reserved",
		IncomingStart:     time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		IncomingEnd:       time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC),
	}
	if err := db.CreateConflict(conflict); err != nil {
		t.Fatalf("failed to create conflict: %v", err)
	}

	t.Run("new conflict is pending", func(t *testing.T) {
		got, err := db.GetConflictByID(conflict.ID)
		if err != nil {
			t.Fatalf("failed to get conflict: %v", err)
		}
		if !got.Pending() {
			t.Error("expected a pending conflict")
		}

		pending, err := db.ListPendingConflicts(propertyID)
		if err != nil {
			t.Fatalf("failed to list conflicts: %v", err)
		}
		if len(pending) != 1 {
			t.Errorf("expected 1 pending conflict, got %d", len(pending))
		}
	})

	t.Run("manual resolution keeps the conflict pending", func(t *testing.T) {
		if err := db.UpdateConflictResolution(conflict.ID, ResolutionManual); err != nil {
			t.Fatalf("failed to update resolution: %v", err)
		}

		got, err := db.GetConflictByID(conflict.ID)
		if err != nil {
			t.Fatalf("failed to get conflict: %v", err)
		}
		if !got.Pending() {
			t.Error("manual conflicts must remain pending")
		}
		if got.ResolvedAt != nil {
			t.Error("manual conflicts must not have resolved_at")
		}
	})

	t.Run("keep_existing resolves the conflict", func(t *testing.T) {
		if err := db.UpdateConflictResolution(conflict.ID, ResolutionKeepExisting); err != nil {
			t.Fatalf("failed to update resolution: %v", err)
		}

		got, err := db.GetConflictByID(conflict.ID)
		if err != nil {
			t.Fatalf("failed to get conflict: %v", err)
		}
		if got.Pending() {
			t.Error("expected conflict to be resolved")
		}
		if got.ResolvedAt == nil {
			t.Error("expected resolved_at to be set")
		}

		pending, err := db.ListPendingConflicts(propertyID)
		if err != nil {
			t.Fatalf("failed to list conflicts: %v", err)
		}
		if len(pending) != 0 {
			t.Errorf("expected no pending conflicts, got %d", len(pending))
		}
	})
}

func TestFeedEventSnapshot(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	propertyID := createTestProperty(t, db, "Riad Test")
	feed := createTestFeed(t, db, propertyID, "airbnb")

	for _, uid := range []string{"a", "b", "c"} {
		if err := db.UpsertFeedEvent(feed.ID, uid); err != nil {
			t.Fatalf("failed to upsert feed event: %v", err)
		}
	}
	// Upsert again must be idempotent
	if err := db.UpsertFeedEvent(feed.ID, "a"); err != nil {
		t.Fatalf("failed to re-upsert feed event: %v", err)
	}

	uids, err := db.GetFeedEventUIDs(feed.ID)
	if err != nil {
		t.Fatalf("failed to get feed events: %v", err)
	}
	if len(uids) != 3 {
		t.Errorf("expected 3 uids, got %d", len(uids))
	}

	if err := db.DeleteFeedEvent(feed.ID, "b"); err != nil {
		t.Fatalf("failed to delete feed event: %v", err)
	}
	uids, err = db.GetFeedEventUIDs(feed.ID)
	if err != nil {
		t.Fatalf("failed to get feed events: %v", err)
	}
	if uids["b"] {
		t.Error("expected uid b to be forgotten")
	}
}

func TestSyncLogs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	propertyID := createTestProperty(t, db, "Riad Test")
	feed := createTestFeed(t, db, propertyID, "airbnb")

	logEntry := &SyncLog{
		FeedID:          feed.ID,
		Status:          FeedStatusActive,
		Message:         "ok",
		EventsProcessed: 4,
		EventsCreated:   2,
		EventsUpdated:   1,
		Duration:        1500 * time.Millisecond,
	}
	if err := db.CreateSyncLog(logEntry); err != nil {
		t.Fatalf("failed to create sync log: %v", err)
	}

	logs, err := db.GetSyncLogsByFeedID(feed.ID, 10)
	if err != nil {
		t.Fatalf("failed to get sync logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].Duration != 1500*time.Millisecond {
		t.Errorf("expected duration to round-trip, got %v", logs[0].Duration)
	}

	deleted, err := db.CleanOldSyncLogs(time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to clean sync logs: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted log, got %d", deleted)
	}
}
