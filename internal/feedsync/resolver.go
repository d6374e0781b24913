package feedsync

import (
	"errors"
	"fmt"

	"github.com/krisso99/roomwave-sync/internal/db"
)

var (
	ErrUnknownResolution = errors.New("unknown resolution choice")
	ErrBookingGone       = errors.New("existing booking no longer exists")
)

// Resolver applies resolution decisions to recorded conflicts.
type Resolver struct {
	db *db.DB
}

// NewResolver creates a conflict resolver.
func NewResolver(database *db.DB) *Resolver {
	return &Resolver{db: database}
}

// Resolve applies a resolution choice to a conflict and returns the updated
// record. Resolving an already-resolved conflict with the same choice is a
// no-op: side effects are never applied twice.
func (r *Resolver) Resolve(conflictID string, choice db.Resolution) (*db.Conflict, error) {
	if !choice.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResolution, choice)
	}

	conflict, err := r.db.GetConflictByID(conflictID)
	if err != nil {
		return nil, err
	}

	if conflict.Resolution == choice {
		return conflict, nil
	}

	switch choice {
	case db.ResolutionKeepExisting:
		// Incoming event is discarded; the existing booking stays untouched.

	case db.ResolutionUseIncoming:
		booking, err := r.db.GetBookingByID(conflict.ExistingBookingID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrBookingGone, conflict.ExistingBookingID)
			}
			return nil, err
		}
		booking.CheckIn = conflict.IncomingStart
		booking.CheckOut = conflict.IncomingEnd
		booking.GuestName = conflict.IncomingSummary
		if err := r.db.UpdateBooking(booking); err != nil {
			return nil, err
		}

	case db.ResolutionManual:
		// Flag for a human decision; the conflict stays pending.
	}

	if err := r.db.UpdateConflictResolution(conflict.ID, choice); err != nil {
		return nil, err
	}

	return r.db.GetConflictByID(conflict.ID)
}

// AutoChoice decides a resolution for fully automated feeds: the feed with
// the higher priority wins; on equal priority the incumbent data (the feed
// with the earlier lastSync) wins, defaulting to keep_existing. existingFeed
// may be nil when the conflicting booking was created locally, in which case
// the local booking is kept.
func AutoChoice(existingFeed, incomingFeed *db.Feed) db.Resolution {
	if existingFeed == nil || incomingFeed == nil {
		return db.ResolutionKeepExisting
	}

	if incomingFeed.Priority > existingFeed.Priority {
		return db.ResolutionUseIncoming
	}
	if incomingFeed.Priority < existingFeed.Priority {
		return db.ResolutionKeepExisting
	}

	// Equal priority: the feed synced earlier holds the incumbent data.
	if existingFeed.LastSyncAt != nil && incomingFeed.LastSyncAt != nil &&
		incomingFeed.LastSyncAt.Before(*existingFeed.LastSyncAt) {
		return db.ResolutionUseIncoming
	}
	return db.ResolutionKeepExisting
}

// AutoResolve applies the priority policy to a conflict without a human in
// the loop.
func (r *Resolver) AutoResolve(conflict *db.Conflict) (*db.Conflict, error) {
	incomingFeed, err := r.db.GetFeedByID(conflict.FeedID)
	if err != nil {
		return nil, err
	}

	var existingFeed *db.Feed
	booking, err := r.db.GetBookingByID(conflict.ExistingBookingID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if err == nil && booking.FeedID != "" {
		existingFeed, err = r.db.GetFeedByID(booking.FeedID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
	}

	return r.Resolve(conflict.ID, AutoChoice(existingFeed, incomingFeed))
}
