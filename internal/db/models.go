package db

import (
	"time"
)

// FeedStatus represents the lifecycle status of an iCal feed.
type FeedStatus string

const (
	FeedStatusPending FeedStatus = "pending"
	FeedStatusActive  FeedStatus = "active"
	FeedStatusError   FeedStatus = "error"
)

// FeedDirection represents which way a feed moves bookings.
type FeedDirection string

const (
	DirectionImport FeedDirection = "import"
	DirectionExport FeedDirection = "export"
	DirectionBoth   FeedDirection = "both"
)

// BookingStatus represents the status of a stored booking.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingTentative BookingStatus = "tentative"
	BookingCancelled BookingStatus = "cancelled"
)

// Resolution represents the chosen outcome for a booking conflict. The empty
// string means the conflict is still pending.
type Resolution string

const (
	ResolutionKeepExisting Resolution = "keep_existing"
	ResolutionUseIncoming  Resolution = "use_incoming"
	ResolutionManual       Resolution = "manual"
)

// Sync interval bounds in minutes.
const (
	MinSyncInterval = 15
	MaxSyncInterval = 1440
)

// Feed priority bounds; the higher priority wins automatic conflict resolution.
const (
	MinFeedPriority = 1
	MaxFeedPriority = 10
)

// ValidDirections contains all valid feed direction values.
var ValidDirections = map[FeedDirection]bool{
	DirectionImport: true,
	DirectionExport: true,
	DirectionBoth:   true,
}

// IsValid returns true if the direction is a known valid value.
func (d FeedDirection) IsValid() bool {
	return ValidDirections[d]
}

// Imports reports whether the feed pulls events from its remote calendar.
func (d FeedDirection) Imports() bool {
	return d == DirectionImport || d == DirectionBoth
}

// ValidResolutions contains all valid resolution values.
var ValidResolutions = map[Resolution]bool{
	ResolutionKeepExisting: true,
	ResolutionUseIncoming:  true,
	ResolutionManual:       true,
}

// IsValid returns true if the resolution is a known valid value.
func (r Resolution) IsValid() bool {
	return ValidResolutions[r]
}

// Property represents a managed property (riad, hotel).
type Property struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Room represents a bookable unit within a property.
type Room struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Feed represents a configured external calendar source or destination.
type Feed struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	URL          string        `json:"url"`
	PropertyID   string        `json:"property_id"`
	RoomID       string        `json:"room_id,omitempty"` // empty = whole property
	LastSyncAt   *time.Time    `json:"last_sync_at"`
	AutoSync     bool          `json:"auto_sync"`
	AutoResolve  bool          `json:"auto_resolve"`
	SyncInterval int           `json:"sync_interval"` // minutes
	Status       FeedStatus    `json:"status"`
	Error        string        `json:"error,omitempty"`
	Direction    FeedDirection `json:"direction"`
	Priority     int           `json:"priority"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Booking represents a locally stored reservation. Bookings created by a
// sync keep the source feed id and the event UID as their external reference.
type Booking struct {
	ID          string        `json:"id"`
	PropertyID  string        `json:"property_id"`
	RoomID      string        `json:"room_id,omitempty"`
	FeedID      string        `json:"feed_id,omitempty"` // empty = created locally
	ExternalUID string        `json:"external_uid,omitempty"`
	Channel     string        `json:"channel,omitempty"`
	GuestName   string        `json:"guest_name,omitempty"`
	CheckIn     time.Time     `json:"check_in"`
	CheckOut    time.Time     `json:"check_out"`
	Status      BookingStatus `json:"status"`
	Notes       string        `json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Conflict pairs an existing booking with an incoming event whose date
// ranges overlap. It stays pending until a resolution is recorded.
type Conflict struct {
	ID                string     `json:"id"`
	FeedID            string     `json:"feed_id"`
	PropertyID        string     `json:"property_id"`
	RoomID            string     `json:"room_id,omitempty"`
	ExistingBookingID string     `json:"existing_booking_id"`
	IncomingUID       string     `json:"incoming_uid"`
	IncomingSummary   string     `json:"incoming_summary"`
	IncomingStart     time.Time  `json:"incoming_start"`
	IncomingEnd       time.Time  `json:"incoming_end"`
	Resolution        Resolution `json:"resolution,omitempty"` // empty = pending
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Pending reports whether the conflict still needs a decision. A conflict
// marked manual remains pending until re-resolved with a different choice.
func (c *Conflict) Pending() bool {
	return c.Resolution == "" || c.Resolution == ResolutionManual
}

// SyncLog represents one completed (or failed) sync invocation for a feed.
type SyncLog struct {
	ID              string        `json:"id"`
	FeedID          string        `json:"feed_id"`
	Status          FeedStatus    `json:"status"`
	Message         string        `json:"message"`
	EventsProcessed int           `json:"events_processed"`
	EventsCreated   int           `json:"events_created"`
	EventsUpdated   int           `json:"events_updated"`
	EventsRemoved   int           `json:"events_removed"`
	Conflicts       int           `json:"conflicts"`
	Duration        time.Duration `json:"duration"`
	CreatedAt       time.Time     `json:"created_at"`
}

// FeedEvent records a UID seen in a feed's last decode, for removal
// detection on the following sync.
type FeedEvent struct {
	FeedID     string    `json:"feed_id"`
	EventUID   string    `json:"event_uid"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
