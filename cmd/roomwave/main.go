package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/krisso99/roomwave-sync/internal/activity"
	"github.com/krisso99/roomwave-sync/internal/config"
	"github.com/krisso99/roomwave-sync/internal/db"
	"github.com/krisso99/roomwave-sync/internal/export"
	"github.com/krisso99/roomwave-sync/internal/feedsync"
	"github.com/krisso99/roomwave-sync/internal/scheduler"
	"github.com/krisso99/roomwave-sync/internal/validator"
	"github.com/krisso99/roomwave-sync/internal/web"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting RoomWave Sync...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	// Initialize sync engine and collaborators
	tracker := activity.NewTracker()
	engine := feedsync.NewEngine(database, feedsync.NewHTTPFetcher(), tracker)
	resolver := feedsync.NewResolver(database)
	generator := export.NewGenerator(database)

	var validatorOpts []validator.Option
	if cfg.IsDevelopment() {
		validatorOpts = append(validatorOpts, validator.WithAllowPrivateIPs())
	}
	urlValidator := validator.New(validatorOpts...)

	// Initialize scheduler
	sched := scheduler.New(database, engine)

	// Initialize handlers
	handlers := web.NewHandlers(
		cfg,
		database,
		engine,
		resolver,
		sched,
		generator,
		urlValidator,
		tracker,
	)

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(web.RequestLogger())
	router.Use(web.SecurityHeaders())

	// Setup routes
	web.SetupRoutes(router, handlers)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	// Start scheduler
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop scheduler
	sched.Stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
