package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/krisso99/roomwave-sync/internal/db"
	"github.com/krisso99/roomwave-sync/internal/export"
	"github.com/krisso99/roomwave-sync/internal/feedsync"
)

// sanitizeError returns a user-safe error message without exposing internal details.
// Internal error details are logged but not returned to the client.
func sanitizeError(err error, userMessage string) string {
	if err != nil {
		// Log the full error for debugging (server-side only)
		log.Printf("Error: %s - Details: %v", userMessage, err)
	}
	return userMessage
}

// APIFeed represents a feed in JSON format for the API.
type APIFeed struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	URL          string  `json:"url"`
	PropertyID   string  `json:"property_id"`
	RoomID       string  `json:"room_id,omitempty"`
	AutoSync     bool    `json:"auto_sync"`
	AutoResolve  bool    `json:"auto_resolve"`
	SyncInterval int     `json:"sync_interval"`
	Direction    string  `json:"direction"`
	Priority     int     `json:"priority"`
	Status       string  `json:"status"`
	Error        string  `json:"error,omitempty"`
	LastSyncAt   *string `json:"last_sync_at"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func feedToAPI(f *db.Feed) *APIFeed {
	api := &APIFeed{
		ID:           f.ID,
		Name:         f.Name,
		URL:          f.URL,
		PropertyID:   f.PropertyID,
		RoomID:       f.RoomID,
		AutoSync:     f.AutoSync,
		AutoResolve:  f.AutoResolve,
		SyncInterval: f.SyncInterval,
		Direction:    string(f.Direction),
		Priority:     f.Priority,
		Status:       string(f.Status),
		Error:        f.Error,
		CreatedAt:    f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    f.UpdatedAt.Format(time.RFC3339),
	}
	if f.LastSyncAt != nil {
		s := f.LastSyncAt.Format(time.RFC3339)
		api.LastSyncAt = &s
	}
	return api
}

// APISyncLog represents a sync log in JSON format for the API.
type APISyncLog struct {
	ID              string  `json:"id"`
	FeedID          string  `json:"feed_id"`
	Status          string  `json:"status"`
	Message         string  `json:"message"`
	EventsProcessed int     `json:"events_processed"`
	EventsCreated   int     `json:"events_created"`
	EventsUpdated   int     `json:"events_updated"`
	EventsRemoved   int     `json:"events_removed"`
	Conflicts       int     `json:"conflicts"`
	DurationSeconds float64 `json:"duration_seconds"`
	CreatedAt       string  `json:"created_at"`
}

// APIDashboardStats represents dashboard statistics.
type APIDashboardStats struct {
	TotalFeeds       int `json:"total_feeds"`
	ActiveFeeds      int `json:"active_feeds"`
	ErrorFeeds       int `json:"error_feeds"`
	PendingConflicts int `json:"pending_conflicts"`
	SyncsToday       int `json:"syncs_today"`
	FailedSyncsToday int `json:"failed_syncs_today"`
}

// APICreatePropertyRequest represents the request body for creating a property.
type APICreatePropertyRequest struct {
	Name string `json:"name"`
}

// APICreateProperty creates a new property.
func (h *Handlers) APICreateProperty(c *gin.Context) {
	var req APICreatePropertyRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	property := &db.Property{Name: req.Name}
	if err := h.db.CreateProperty(property); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to create property")})
		return
	}

	c.JSON(http.StatusCreated, property)
}

// APICreateRoomRequest represents the request body for creating a room.
type APICreateRoomRequest struct {
	Name string `json:"name"`
}

// APICreateRoom creates a room under a property.
func (h *Handlers) APICreateRoom(c *gin.Context) {
	propertyID := c.Param("id")
	if _, err := h.db.GetPropertyByID(propertyID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	}

	var req APICreateRoomRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	room := &db.Room{PropertyID: propertyID, Name: req.Name}
	if err := h.db.CreateRoom(room); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to create room")})
		return
	}

	c.JSON(http.StatusCreated, room)
}

// APIExportURL returns the export calendar path for a property or room.
func (h *Handlers) APIExportURL(c *gin.Context) {
	propertyID := c.Param("id")
	if _, err := h.db.GetPropertyByID(propertyID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	}

	token := export.EncodeToken(propertyID, c.Query("room_id"))
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"path":  "/calendar/" + token + "/calendar.ics",
	})
}

// APIListFeeds returns feeds, optionally filtered by property.
func (h *Handlers) APIListFeeds(c *gin.Context) {
	feeds, err := h.db.ListFeeds(c.Query("property_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load feeds")})
		return
	}

	apiFeeds := make([]*APIFeed, len(feeds))
	for i, f := range feeds {
		apiFeeds[i] = feedToAPI(f)
	}
	c.JSON(http.StatusOK, apiFeeds)
}

// APIGetFeed returns a single feed.
func (h *Handlers) APIGetFeed(c *gin.Context) {
	feed, err := h.db.GetFeedByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}
	c.JSON(http.StatusOK, feedToAPI(feed))
}

// APICreateFeedRequest represents the request body for creating a feed.
type APICreateFeedRequest struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	PropertyID   string `json:"property_id"`
	RoomID       string `json:"room_id"`
	AutoSync     bool   `json:"auto_sync"`
	AutoResolve  bool   `json:"auto_resolve"`
	SyncInterval int    `json:"sync_interval"`
	Direction    string `json:"direction"`
	Priority     int    `json:"priority"`
}

// APICreateFeed creates a new feed. The URL is checked for format and,
// for import feeds, probed to confirm it serves a calendar.
func (h *Handlers) APICreateFeed(c *gin.Context) {
	var req APICreateFeedRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.Name == "" || req.URL == "" || req.PropertyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	if _, err := h.db.GetPropertyByID(req.PropertyID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	}

	if err := h.validator.ValidateURL(req.URL, h.cfg.IsProduction()); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": sanitizeError(err, "Invalid feed URL")})
		return
	}

	direction := db.FeedDirection(req.Direction)
	if req.Direction == "" {
		direction = db.DirectionImport
	}
	if !direction.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid direction"})
		return
	}

	if direction.Imports() {
		if err := h.validator.ValidateFeedURL(c.Request.Context(), req.URL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": sanitizeError(err, "Feed URL is not a reachable calendar")})
			return
		}
	}

	feed := &db.Feed{
		Name:         req.Name,
		URL:          req.URL,
		PropertyID:   req.PropertyID,
		RoomID:       req.RoomID,
		AutoSync:     req.AutoSync,
		AutoResolve:  req.AutoResolve,
		SyncInterval: clampInterval(req.SyncInterval, h.cfg.Sync.MinInterval, h.cfg.Sync.MaxInterval),
		Direction:    direction,
		Priority:     clampPriority(req.Priority),
	}
	if err := h.db.CreateFeed(feed); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to create feed")})
		return
	}

	// Export-only feeds have nothing to pull; no job for them.
	if feed.AutoSync && feed.Direction.Imports() {
		h.scheduler.AddJob(feed.ID, time.Duration(feed.SyncInterval)*time.Minute)
	}

	c.JSON(http.StatusCreated, feedToAPI(feed))
}

// APIUpdateFeedRequest represents the request body for updating a feed.
type APIUpdateFeedRequest struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	RoomID       string `json:"room_id"`
	AutoResolve  *bool  `json:"auto_resolve"`
	SyncInterval int    `json:"sync_interval"`
	Direction    string `json:"direction"`
	Priority     int    `json:"priority"`
}

// APIUpdateFeed updates an existing feed.
func (h *Handlers) APIUpdateFeed(c *gin.Context) {
	feed, err := h.db.GetFeedByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	var req APIUpdateFeedRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.Name != "" {
		feed.Name = req.Name
	}
	if req.URL != "" && req.URL != feed.URL {
		if err := h.validator.ValidateURL(req.URL, h.cfg.IsProduction()); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": sanitizeError(err, "Invalid feed URL")})
			return
		}
		feed.URL = req.URL
	}
	if req.RoomID != "" {
		feed.RoomID = req.RoomID
	}
	if req.AutoResolve != nil {
		feed.AutoResolve = *req.AutoResolve
	}
	if req.SyncInterval != 0 {
		feed.SyncInterval = clampInterval(req.SyncInterval, h.cfg.Sync.MinInterval, h.cfg.Sync.MaxInterval)
	}
	if req.Direction != "" {
		direction := db.FeedDirection(req.Direction)
		if !direction.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid direction"})
			return
		}
		feed.Direction = direction
	}
	if req.Priority != 0 {
		feed.Priority = clampPriority(req.Priority)
	}

	if err := h.db.UpdateFeed(feed); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to update feed")})
		return
	}

	// Reconcile the job: a direction flip to export-only must drop the
	// schedule even when auto_sync stays on.
	if feed.AutoSync && feed.Direction.Imports() {
		h.scheduler.AddJob(feed.ID, time.Duration(feed.SyncInterval)*time.Minute)
	} else {
		h.scheduler.RemoveJob(feed.ID)
	}

	c.JSON(http.StatusOK, feedToAPI(feed))
}

// APIDeleteFeed deletes a feed and stops its scheduled job.
func (h *Handlers) APIDeleteFeed(c *gin.Context) {
	feedID := c.Param("id")
	if _, err := h.db.GetFeedByID(feedID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	h.scheduler.RemoveJob(feedID)

	if err := h.db.DeleteFeed(feedID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to delete feed")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Feed deleted"})
}

// APIToggleFeed toggles a feed's auto-sync.
func (h *Handlers) APIToggleFeed(c *gin.Context) {
	feed, err := h.db.GetFeedByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	feed.AutoSync = !feed.AutoSync
	if err := h.db.UpdateFeed(feed); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to update feed")})
		return
	}

	if feed.AutoSync && feed.Direction.Imports() {
		h.scheduler.AddJob(feed.ID, time.Duration(feed.SyncInterval)*time.Minute)
	} else {
		h.scheduler.RemoveJob(feed.ID)
	}

	c.JSON(http.StatusOK, feedToAPI(feed))
}

// APITriggerSync triggers a sync for a feed.
func (h *Handlers) APITriggerSync(c *gin.Context) {
	feedID := c.Param("id")
	feed, err := h.db.GetFeedByID(feedID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}
	if !feed.Direction.Imports() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Export-only feeds cannot be synced"})
		return
	}

	h.scheduler.TriggerSync(feedID)

	c.JSON(http.StatusAccepted, gin.H{"message": "Sync triggered"})
}

// APIGetFeedLogs returns recent sync logs for a feed.
func (h *Handlers) APIGetFeedLogs(c *gin.Context) {
	feedID := c.Param("id")
	if _, err := h.db.GetFeedByID(feedID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	limit := 20
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	logs, err := h.db.GetSyncLogsByFeedID(feedID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load logs")})
		return
	}

	apiLogs := make([]*APISyncLog, len(logs))
	for i, l := range logs {
		apiLogs[i] = &APISyncLog{
			ID:              l.ID,
			FeedID:          l.FeedID,
			Status:          string(l.Status),
			Message:         l.Message,
			EventsProcessed: l.EventsProcessed,
			EventsCreated:   l.EventsCreated,
			EventsUpdated:   l.EventsUpdated,
			EventsRemoved:   l.EventsRemoved,
			Conflicts:       l.Conflicts,
			DurationSeconds: l.Duration.Seconds(),
			CreatedAt:       l.CreatedAt.Format(time.RFC3339),
		}
	}
	c.JSON(http.StatusOK, apiLogs)
}

// APIListConflicts returns pending conflicts, optionally for one property.
func (h *Handlers) APIListConflicts(c *gin.Context) {
	conflicts, err := h.db.ListPendingConflicts(c.Query("property_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load conflicts")})
		return
	}
	if conflicts == nil {
		conflicts = []*db.Conflict{}
	}
	c.JSON(http.StatusOK, conflicts)
}

// APIResolveConflictRequest represents the request body for resolving a conflict.
type APIResolveConflictRequest struct {
	Resolution string `json:"resolution"`
}

// APIResolveConflict applies a resolution choice to a conflict.
func (h *Handlers) APIResolveConflict(c *gin.Context) {
	var req APIResolveConflictRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	conflict, err := h.resolver.Resolve(c.Param("id"), db.Resolution(req.Resolution))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, conflict)
	case errors.Is(err, feedsync.ErrUnknownResolution):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown resolution choice"})
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conflict not found"})
	case errors.Is(err, feedsync.ErrBookingGone):
		c.JSON(http.StatusConflict, gin.H{"error": "Existing booking no longer exists"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to resolve conflict")})
	}
}

// APIListBookings returns bookings for a property in a date window.
func (h *Handlers) APIListBookings(c *gin.Context) {
	propertyID := c.Query("property_id")
	if propertyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "property_id is required"})
		return
	}

	now := time.Now().UTC()
	start := parseDateQuery(c.Query("start"), now.AddDate(0, -1, 0))
	end := parseDateQuery(c.Query("end"), now.AddDate(1, 0, 0))

	bookings, err := h.db.ListBookings(propertyID, c.Query("room_id"), start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load bookings")})
		return
	}
	if bookings == nil {
		bookings = []*db.Booking{}
	}
	c.JSON(http.StatusOK, bookings)
}

// APICreateBookingRequest represents the request body for a direct booking.
type APICreateBookingRequest struct {
	PropertyID string `json:"property_id"`
	RoomID     string `json:"room_id"`
	GuestName  string `json:"guest_name"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	Notes      string `json:"notes"`
}

// APICreateBooking records a direct (non-feed) booking. Overlapping an
// existing booking is rejected so direct entry cannot double-book a room.
func (h *Handlers) APICreateBooking(c *gin.Context) {
	var req APICreateBookingRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.PropertyID == "" || req.CheckIn == "" || req.CheckOut == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	checkIn, err := parseDate(req.CheckIn)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid check_in date"})
		return
	}
	checkOut, err := parseDate(req.CheckOut)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid check_out date"})
		return
	}
	if !checkIn.Before(checkOut) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "check_out must be after check_in"})
		return
	}

	overlapping, err := h.db.GetOverlappingBookings(req.PropertyID, req.RoomID, checkIn, checkOut)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to check availability")})
		return
	}
	if len(overlapping) > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Dates overlap an existing booking"})
		return
	}

	booking := &db.Booking{
		PropertyID: req.PropertyID,
		RoomID:     req.RoomID,
		Channel:    "direct",
		GuestName:  req.GuestName,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Status:     db.BookingConfirmed,
		Notes:      req.Notes,
	}
	if err := h.db.CreateBooking(booking); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to create booking")})
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// APIDashboardStats returns aggregate counts for the dashboard.
func (h *Handlers) APIDashboardStats(c *gin.Context) {
	byStatus, err := h.db.CountFeedsByStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load stats")})
		return
	}

	pending, err := h.db.CountPendingConflicts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load stats")})
		return
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	total, failed, err := h.db.CountSyncsSince(today)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeError(err, "Failed to load stats")})
		return
	}

	stats := APIDashboardStats{
		ActiveFeeds:      byStatus[db.FeedStatusActive],
		ErrorFeeds:       byStatus[db.FeedStatusError],
		PendingConflicts: pending,
		SyncsToday:       total,
		FailedSyncsToday: failed,
	}
	for _, n := range byStatus {
		stats.TotalFeeds += n
	}

	c.JSON(http.StatusOK, stats)
}

// APIActivity returns in-flight and recently finished syncs.
func (h *Handlers) APIActivity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active": h.tracker.Active(),
		"recent": h.tracker.Recent(),
	})
}

// clampInterval snaps an out-of-range interval to the nearest bound.
func clampInterval(minutes, min, max int) int {
	if minutes < min {
		return min
	}
	if minutes > max {
		return max
	}
	return minutes
}

// clampPriority snaps an out-of-range priority to the nearest bound. Zero
// means unset and is left for the store's default.
func clampPriority(priority int) int {
	if priority == 0 {
		return 0
	}
	if priority < db.MinFeedPriority {
		return db.MinFeedPriority
	}
	if priority > db.MaxFeedPriority {
		return db.MaxFeedPriority
	}
	return priority
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

func parseDateQuery(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := parseDate(s)
	if err != nil {
		return fallback
	}
	return t
}
