package web

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all application routes.
func SetupRoutes(r *gin.Engine, h *Handlers) {
	// Health endpoints (no rate limit)
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.Liveness)

	// Outbound calendar feed, polled frequently by channel managers.
	// Served outside /api: always 200, always a parseable calendar.
	exportRateLimiter := RateLimiter(10, 20)
	r.GET("/calendar/:token/calendar.ics", exportRateLimiter, h.ExportCalendar)

	// API routes with rate limiting and content-type validation
	apiRateLimiter := RateLimiter(h.cfg.RateLimiting.RPS, h.cfg.RateLimiting.Burst)
	api := r.Group("/api")
	api.Use(apiRateLimiter)
	api.Use(RequireJSONContentType())
	{
		api.GET("/dashboard/stats", h.APIDashboardStats)
		api.GET("/activity", h.APIActivity)

		api.POST("/properties", h.APICreateProperty)
		api.POST("/properties/:id/rooms", h.APICreateRoom)
		api.GET("/properties/:id/export-url", h.APIExportURL)

		api.GET("/feeds", h.APIListFeeds)
		api.GET("/feeds/:id", h.APIGetFeed)
		api.PUT("/feeds/:id", h.APIUpdateFeed)
		api.DELETE("/feeds/:id", h.APIDeleteFeed)
		api.POST("/feeds/:id/toggle", h.APIToggleFeed)
		api.POST("/feeds/:id/sync", h.APITriggerSync)
		api.GET("/feeds/:id/logs", h.APIGetFeedLogs)

		api.GET("/conflicts", h.APIListConflicts)
		api.POST("/conflicts/:id/resolve", h.APIResolveConflict)

		api.GET("/bookings", h.APIListBookings)
		api.POST("/bookings", h.APICreateBooking)
	}

	// Feed creation probes the remote URL, so it gets a stricter limit
	expensiveRateLimiter := RateLimiter(2, 5)
	expensive := r.Group("/api")
	expensive.Use(expensiveRateLimiter)
	expensive.Use(RequireJSONContentType())
	{
		expensive.POST("/feeds", h.APICreateFeed)
	}
}
