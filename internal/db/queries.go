package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// CreateProperty creates a new property.
func (db *DB) CreateProperty(p *Property) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()

	query := `INSERT INTO properties (id, name, created_at) VALUES (?, ?, ?)`
	if _, err := db.conn.Exec(query, p.ID, p.Name, p.CreatedAt); err != nil {
		return fmt.Errorf("failed to create property: %w", err)
	}
	return nil
}

// GetPropertyByID returns a property by its ID.
func (db *DB) GetPropertyByID(id string) (*Property, error) {
	query := `SELECT id, name, created_at FROM properties WHERE id = ?`
	row := db.conn.QueryRow(query, id)

	p := &Property{}
	err := row.Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return p, nil
}

// CreateRoom creates a new room within a property.
func (db *DB) CreateRoom(r *Room) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.CreatedAt = time.Now().UTC()

	query := `INSERT INTO rooms (id, property_id, name, created_at) VALUES (?, ?, ?, ?)`
	if _, err := db.conn.Exec(query, r.ID, r.PropertyID, r.Name, r.CreatedAt); err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// GetRoomByID returns a room by its ID.
func (db *DB) GetRoomByID(id string) (*Room, error) {
	query := `SELECT id, property_id, name, created_at FROM rooms WHERE id = ?`
	row := db.conn.QueryRow(query, id)

	r := &Room{}
	err := row.Scan(&r.ID, &r.PropertyID, &r.Name, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return r, nil
}

// CreateFeed creates a new feed configuration.
func (db *DB) CreateFeed(feed *Feed) error {
	if feed.ID == "" {
		feed.ID = uuid.New().String()
	}
	feed.CreatedAt = time.Now().UTC()
	feed.UpdatedAt = feed.CreatedAt
	feed.Status = FeedStatusPending

	if feed.Direction == "" {
		feed.Direction = DirectionImport
	}
	if feed.Priority == 0 {
		feed.Priority = 5
	}

	query := `INSERT INTO feeds (
		id, name, url, property_id, room_id, auto_sync, auto_resolve,
		sync_interval, status, error, direction, priority, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(query,
		feed.ID, feed.Name, feed.URL, feed.PropertyID, feed.RoomID,
		feed.AutoSync, feed.AutoResolve, feed.SyncInterval, feed.Status,
		feed.Error, feed.Direction, feed.Priority, feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create feed: %w", err)
	}
	return nil
}

const feedColumns = `id, name, url, property_id, room_id, last_sync_at, auto_sync,
	auto_resolve, sync_interval, status, error, direction, priority, created_at, updated_at`

// GetFeedByID returns a feed by its ID.
func (db *DB) GetFeedByID(id string) (*Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds WHERE id = ?`
	return scanFeed(db.conn.QueryRow(query, id))
}

// ListFeeds returns all feeds, optionally filtered by property.
func (db *DB) ListFeeds(propertyID string) ([]*Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds`
	args := []any{}
	if propertyID != "" {
		query += ` WHERE property_id = ?`
		args = append(args, propertyID)
	}
	query += ` ORDER BY name`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	return collectFeeds(rows)
}

// GetAutoSyncFeeds returns all feeds that import on a schedule.
func (db *DB) GetAutoSyncFeeds() ([]*Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds
		WHERE auto_sync = 1 AND direction IN ('import', 'both')`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query auto-sync feeds: %w", err)
	}
	defer rows.Close()

	return collectFeeds(rows)
}

// UpdateFeed updates an existing feed configuration.
func (db *DB) UpdateFeed(feed *Feed) error {
	feed.UpdatedAt = time.Now().UTC()

	if feed.Direction == "" {
		feed.Direction = DirectionImport
	}

	query := `UPDATE feeds SET
		name = ?, url = ?, room_id = ?, auto_sync = ?, auto_resolve = ?,
		sync_interval = ?, direction = ?, priority = ?, updated_at = ?
		WHERE id = ?`

	result, err := db.conn.Exec(query,
		feed.Name, feed.URL, feed.RoomID, feed.AutoSync, feed.AutoResolve,
		feed.SyncInterval, feed.Direction, feed.Priority, feed.UpdatedAt, feed.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update feed: %w", err)
	}
	return requireAffected(result)
}

// DeleteFeed removes a feed and its dependent records.
func (db *DB) DeleteFeed(id string) error {
	result, err := db.conn.Exec(`DELETE FROM feeds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	return requireAffected(result)
}

// UpdateFeedSyncStatus records the outcome of a sync attempt. lastSync is
// only touched when touchLastSync is set: a fetch failure or external abort
// must leave it unchanged so a retry is safe.
func (db *DB) UpdateFeedSyncStatus(id string, status FeedStatus, errMsg string, touchLastSync bool) error {
	now := time.Now().UTC()

	var result sql.Result
	var err error
	if touchLastSync {
		query := `UPDATE feeds SET status = ?, error = ?, last_sync_at = ?, updated_at = ? WHERE id = ?`
		result, err = db.conn.Exec(query, status, errMsg, now, now, id)
	} else {
		query := `UPDATE feeds SET status = ?, error = ?, updated_at = ? WHERE id = ?`
		result, err = db.conn.Exec(query, status, errMsg, now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update feed sync status: %w", err)
	}
	return requireAffected(result)
}

const bookingColumns = `id, property_id, room_id, feed_id, external_uid, channel,
	guest_name, check_in, check_out, status, notes, created_at, updated_at`

// CreateBooking creates a new booking.
func (db *DB) CreateBooking(b *Booking) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	if b.Status == "" {
		b.Status = BookingConfirmed
	}

	query := `INSERT INTO bookings (
		id, property_id, room_id, feed_id, external_uid, channel, guest_name,
		check_in, check_out, status, notes, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(query,
		b.ID, b.PropertyID, b.RoomID, b.FeedID, b.ExternalUID, b.Channel,
		b.GuestName, b.CheckIn, b.CheckOut, b.Status, b.Notes, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetBookingByID returns a booking by its ID.
func (db *DB) GetBookingByID(id string) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	return scanBooking(db.conn.QueryRow(query, id))
}

// GetBookingByExternalRef returns the booking created from a given feed
// event, matched by the source feed and the event UID.
func (db *DB) GetBookingByExternalRef(feedID, uid string) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE feed_id = ? AND external_uid = ?`
	return scanBooking(db.conn.QueryRow(query, feedID, uid))
}

// GetOverlappingBookings returns non-cancelled bookings whose date range
// strictly overlaps [start, end) for a property. When roomID is set, bookings
// for that room and property-wide bookings (empty room) both count, since a
// property-wide booking blocks every room.
func (db *DB) GetOverlappingBookings(propertyID, roomID string, start, end time.Time) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE property_id = ? AND status != ? AND check_in < ? AND ? < check_out`
	args := []any{propertyID, BookingCancelled, end, start}

	if roomID != "" {
		query += ` AND (room_id = ? OR room_id = '' OR room_id IS NULL)`
		args = append(args, roomID)
	}
	query += ` ORDER BY check_in`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

// UpdateBooking updates an existing booking.
func (db *DB) UpdateBooking(b *Booking) error {
	b.UpdatedAt = time.Now().UTC()

	query := `UPDATE bookings SET
		room_id = ?, channel = ?, guest_name = ?, check_in = ?, check_out = ?,
		status = ?, notes = ?, updated_at = ?
		WHERE id = ?`

	result, err := db.conn.Exec(query,
		b.RoomID, b.Channel, b.GuestName, b.CheckIn, b.CheckOut,
		b.Status, b.Notes, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	return requireAffected(result)
}

// DeleteBooking removes a booking.
func (db *DB) DeleteBooking(id string) error {
	result, err := db.conn.Exec(`DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return requireAffected(result)
}

// ListBookings returns bookings for a property (optionally one room)
// overlapping the [start, end) window, in check-in order.
func (db *DB) ListBookings(propertyID, roomID string, start, end time.Time) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE property_id = ? AND check_in < ? AND ? < check_out`
	args := []any{propertyID, end, start}

	if roomID != "" {
		query += ` AND room_id = ?`
		args = append(args, roomID)
	}
	query += ` ORDER BY check_in`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

const conflictColumns = `id, feed_id, property_id, room_id, existing_booking_id,
	incoming_uid, incoming_summary, incoming_start, incoming_end, resolution,
	resolved_at, created_at`

// CreateConflict records a new pending conflict.
func (db *DB) CreateConflict(c *Conflict) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()

	query := `INSERT INTO conflicts (
		id, feed_id, property_id, room_id, existing_booking_id,
		incoming_uid, incoming_summary, incoming_start, incoming_end,
		resolution, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(query,
		c.ID, c.FeedID, c.PropertyID, c.RoomID, c.ExistingBookingID,
		c.IncomingUID, c.IncomingSummary, c.IncomingStart, c.IncomingEnd,
		c.Resolution, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conflict: %w", err)
	}
	return nil
}

// GetConflictByID returns a conflict by its ID.
func (db *DB) GetConflictByID(id string) (*Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE id = ?`
	return scanConflict(db.conn.QueryRow(query, id))
}

// ListPendingConflicts returns unresolved conflicts (including those marked
// manual), oldest first, optionally filtered by property.
func (db *DB) ListPendingConflicts(propertyID string) ([]*Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE resolution IN ('', ?)`
	args := []any{ResolutionManual}
	if propertyID != "" {
		query += ` AND property_id = ?`
		args = append(args, propertyID)
	}
	query += ` ORDER BY created_at`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conflicts: %w", err)
	}
	return conflicts, nil
}

// UpdateConflictResolution records the resolution decision for a conflict.
// Manual keeps the conflict pending, so resolved_at stays unset for it.
func (db *DB) UpdateConflictResolution(id string, resolution Resolution) error {
	var resolvedAt any
	if resolution != ResolutionManual {
		resolvedAt = time.Now().UTC()
	}

	query := `UPDATE conflicts SET resolution = ?, resolved_at = ? WHERE id = ?`
	result, err := db.conn.Exec(query, resolution, resolvedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update conflict resolution: %w", err)
	}
	return requireAffected(result)
}

// GetFeedEventUIDs returns the UIDs seen in the feed's previous decode.
func (db *DB) GetFeedEventUIDs(feedID string) (map[string]bool, error) {
	rows, err := db.conn.Query(`SELECT event_uid FROM feed_events WHERE feed_id = ?`, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed events: %w", err)
	}
	defer rows.Close()

	uids := make(map[string]bool)
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to scan feed event: %w", err)
		}
		uids[uid] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed events: %w", err)
	}
	return uids, nil
}

// UpsertFeedEvent marks a UID as seen in the feed's current decode.
func (db *DB) UpsertFeedEvent(feedID, uid string) error {
	query := `INSERT INTO feed_events (feed_id, event_uid, last_seen_at) VALUES (?, ?, ?)
		ON CONFLICT(feed_id, event_uid) DO UPDATE SET last_seen_at = excluded.last_seen_at`
	if _, err := db.conn.Exec(query, feedID, uid, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert feed event: %w", err)
	}
	return nil
}

// DeleteFeedEvent forgets a UID that disappeared from the feed.
func (db *DB) DeleteFeedEvent(feedID, uid string) error {
	if _, err := db.conn.Exec(`DELETE FROM feed_events WHERE feed_id = ? AND event_uid = ?`, feedID, uid); err != nil {
		return fmt.Errorf("failed to delete feed event: %w", err)
	}
	return nil
}

// CreateSyncLog records a completed sync invocation.
func (db *DB) CreateSyncLog(l *SyncLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = time.Now().UTC()

	query := `INSERT INTO sync_logs (
		id, feed_id, status, message, events_processed, events_created,
		events_updated, events_removed, conflicts, duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(query,
		l.ID, l.FeedID, l.Status, l.Message, l.EventsProcessed, l.EventsCreated,
		l.EventsUpdated, l.EventsRemoved, l.Conflicts, l.Duration.Milliseconds(), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}
	return nil
}

// GetSyncLogsByFeedID returns the most recent sync logs for a feed.
func (db *DB) GetSyncLogsByFeedID(feedID string, limit int) ([]*SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, feed_id, status, message, events_processed, events_created,
		events_updated, events_removed, conflicts, duration_ms, created_at
		FROM sync_logs WHERE feed_id = ? ORDER BY created_at DESC LIMIT ?`

	rows, err := db.conn.Query(query, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*SyncLog
	for rows.Next() {
		l := &SyncLog{}
		var durationMs int64
		err := rows.Scan(&l.ID, &l.FeedID, &l.Status, &l.Message, &l.EventsProcessed,
			&l.EventsCreated, &l.EventsUpdated, &l.EventsRemoved, &l.Conflicts,
			&durationMs, &l.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		l.Duration = time.Duration(durationMs) * time.Millisecond
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}
	return logs, nil
}

// CleanOldSyncLogs deletes sync logs created before the cutoff.
func (db *DB) CleanOldSyncLogs(cutoff time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM sync_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean sync logs: %w", err)
	}
	return result.RowsAffected()
}

// CountFeedsByStatus returns feed counts keyed by status.
func (db *DB) CountFeedsByStatus() (map[FeedStatus]int, error) {
	rows, err := db.conn.Query(`SELECT status, COUNT(*) FROM feeds GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count feeds: %w", err)
	}
	defer rows.Close()

	counts := make(map[FeedStatus]int)
	for rows.Next() {
		var status FeedStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan feed count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed counts: %w", err)
	}
	return counts, nil
}

// CountPendingConflicts returns the number of unresolved conflicts.
func (db *DB) CountPendingConflicts() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM conflicts WHERE resolution IN ('', ?)`, ResolutionManual).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count conflicts: %w", err)
	}
	return n, nil
}

// CountSyncsSince returns total and failed sync counts since a point in time.
func (db *DB) CountSyncsSince(since time.Time) (total, failed int, err error) {
	query := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM sync_logs WHERE created_at >= ?`
	if err := db.conn.QueryRow(query, FeedStatusError, since).Scan(&total, &failed); err != nil {
		return 0, 0, fmt.Errorf("failed to count syncs: %w", err)
	}
	return total, failed, nil
}

func scanFeed(s rowScanner) (*Feed, error) {
	feed := &Feed{}
	var roomID, errMsg sql.NullString
	var lastSync sql.NullTime

	err := s.Scan(&feed.ID, &feed.Name, &feed.URL, &feed.PropertyID, &roomID,
		&lastSync, &feed.AutoSync, &feed.AutoResolve, &feed.SyncInterval,
		&feed.Status, &errMsg, &feed.Direction, &feed.Priority,
		&feed.CreatedAt, &feed.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan feed: %w", err)
	}

	feed.RoomID = roomID.String
	feed.Error = errMsg.String
	if lastSync.Valid {
		t := lastSync.Time
		feed.LastSyncAt = &t
	}
	return feed, nil
}

func collectFeeds(rows *sql.Rows) ([]*Feed, error) {
	var feeds []*Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feeds: %w", err)
	}
	return feeds, nil
}

func scanBooking(s rowScanner) (*Booking, error) {
	b := &Booking{}
	var roomID, feedID, externalUID, channel, guestName, notes sql.NullString

	err := s.Scan(&b.ID, &b.PropertyID, &roomID, &feedID, &externalUID, &channel,
		&guestName, &b.CheckIn, &b.CheckOut, &b.Status, &notes, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}

	b.RoomID = roomID.String
	b.FeedID = feedID.String
	b.ExternalUID = externalUID.String
	b.Channel = channel.String
	b.GuestName = guestName.String
	b.Notes = notes.String
	return b, nil
}

func collectBookings(rows *sql.Rows) ([]*Booking, error) {
	var bookings []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}

func scanConflict(s rowScanner) (*Conflict, error) {
	c := &Conflict{}
	var roomID, summary sql.NullString
	var resolvedAt sql.NullTime

	err := s.Scan(&c.ID, &c.FeedID, &c.PropertyID, &roomID, &c.ExistingBookingID,
		&c.IncomingUID, &summary, &c.IncomingStart, &c.IncomingEnd, &c.Resolution,
		&resolvedAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conflict: %w", err)
	}

	c.RoomID = roomID.String
	c.IncomingSummary = summary.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return c, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
