package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/krisso99/roomwave-sync/internal/activity"
	"github.com/krisso99/roomwave-sync/internal/config"
	"github.com/krisso99/roomwave-sync/internal/db"
	"github.com/krisso99/roomwave-sync/internal/export"
	"github.com/krisso99/roomwave-sync/internal/feedsync"
	"github.com/krisso99/roomwave-sync/internal/scheduler"
	"github.com/krisso99/roomwave-sync/internal/validator"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	cfg       *config.Config
	db        *db.DB
	engine    *feedsync.Engine
	resolver  *feedsync.Resolver
	scheduler *scheduler.Scheduler
	generator *export.Generator
	validator *validator.Validator
	tracker   *activity.Tracker
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	cfg *config.Config,
	database *db.DB,
	engine *feedsync.Engine,
	resolver *feedsync.Resolver,
	sched *scheduler.Scheduler,
	generator *export.Generator,
	v *validator.Validator,
	tracker *activity.Tracker,
) *Handlers {
	return &Handlers{
		cfg:       cfg,
		db:        database,
		engine:    engine,
		resolver:  resolver,
		scheduler: sched,
		generator: generator,
		validator: v,
		tracker:   tracker,
	}
}

// HealthCheck reports service and database health.
func (h *Handlers) HealthCheck(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": "ok",
	})
}

// Liveness returns a simple liveness check.
func (h *Handlers) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// ExportCalendar serves the outbound iCal feed for a property or room.
// The contract with channel managers is strict: always HTTP 200 with a
// parseable calendar body, even for tokens we cannot decode. Platforms
// disable feeds that return errors, which would silently stop blocking
// dates on the channel.
func (h *Handlers) ExportCalendar(c *gin.Context) {
	c.Header("Content-Type", "text/calendar; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="calendar.ics"`)

	token, err := export.DecodeToken(c.Param("token"))
	if err != nil {
		sanitizeError(err, "Invalid export token")
		c.String(http.StatusOK, export.FallbackCalendar())
		return
	}

	now := time.Now().UTC()
	months := h.cfg.Export.WindowMonths
	start := now.AddDate(0, -months, 0)
	end := now.AddDate(0, months, 0)

	body := h.generator.Generate(c.Request.Context(), token.PropertyID, token.RoomID, start, end)
	c.String(http.StatusOK, body)
}
