// Package scheduler runs background feed syncs on per-feed intervals.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/krisso99/roomwave-sync/internal/db"
	"github.com/krisso99/roomwave-sync/internal/feedsync"
)

const (
	cleanupInterval  = 24 * time.Hour
	logRetentionDays = 30
	syncTimeout      = 10 * time.Minute // Maximum time for a single feed sync
)

// Job represents a scheduled sync job for one feed.
type Job struct {
	feedID   string
	interval time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
}

// Scheduler manages background sync jobs.
type Scheduler struct {
	db     *db.DB
	engine *feedsync.Engine

	mu        sync.RWMutex
	jobs      map[string]*Job
	syncLocks map[string]*sync.Mutex // Per-feed locks so two syncs never race on the same feed
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
}

// New creates a new scheduler.
func New(database *db.DB, engine *feedsync.Engine) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		db:        database,
		engine:    engine,
		jobs:      make(map[string]*Job),
		syncLocks: make(map[string]*sync.Mutex),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start loads all auto-sync feeds and starts their jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	feeds, err := s.db.GetAutoSyncFeeds()
	if err != nil {
		return err
	}

	for _, feed := range feeds {
		s.AddJob(feed.ID, time.Duration(feed.SyncInterval)*time.Minute)
	}

	s.wg.Add(1)
	go s.cleanupRoutine()

	log.Printf("Scheduler started with %d jobs", len(feeds))
	return nil
}

// Stop gracefully shuts down all jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.cancel()

	s.mu.Lock()
	for _, job := range s.jobs {
		close(job.stopCh)
		job.ticker.Stop()
	}
	s.jobs = make(map[string]*Job)
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("Scheduler stopped")
}

// AddJob adds or replaces a sync job for a feed.
func (s *Scheduler) AddJob(feedID string, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.jobs[feedID]; exists {
		close(existing.stopCh)
		existing.ticker.Stop()
	}

	job := &Job{
		feedID:   feedID,
		interval: interval,
		ticker:   time.NewTicker(interval),
		stopCh:   make(chan struct{}),
	}
	s.jobs[feedID] = job

	s.wg.Add(1)
	go s.runJob(job)

	log.Printf("Added sync job for feed %s with interval %v", feedID, interval)
}

// RemoveJob removes a sync job.
func (s *Scheduler) RemoveJob(feedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, exists := s.jobs[feedID]; exists {
		close(job.stopCh)
		job.ticker.Stop()
		delete(s.jobs, feedID)
		log.Printf("Removed sync job for feed %s", feedID)
	}
}

// TriggerSync manually triggers a sync for a feed. Manual triggers run even
// when the feed's automatic syncing is switched off.
func (s *Scheduler) TriggerSync(feedID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.executeSync(feedID, true)
	}()
}

// GetJobCount returns the number of active jobs.
func (s *Scheduler) GetJobCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Scheduler) runJob(job *Job) {
	defer s.wg.Done()

	// Run immediately on start
	s.executeSync(job.feedID, false)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-job.stopCh:
			return
		case <-job.ticker.C:
			s.executeSync(job.feedID, false)
		}
	}
}

// getSyncLock returns the mutex for a feed, creating one if needed.
func (s *Scheduler) getSyncLock(feedID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, exists := s.syncLocks[feedID]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	s.syncLocks[feedID] = lock
	return lock
}

// executeSync runs the sync for a feed. Syncs of the same feed are
// single-flight: if one is already in progress the trigger is skipped, so
// two invocations never read-then-write overlapping bookings concurrently.
// Scheduled runs re-check auto_sync so a stale ticker cannot sync a feed
// that was switched off; manual triggers skip that check.
func (s *Scheduler) executeSync(feedID string, manual bool) {
	lock := s.getSyncLock(feedID)
	if !lock.TryLock() {
		log.Printf("Skipping sync for feed %s - another sync is already in progress", feedID)
		return
	}
	defer lock.Unlock()

	feed, err := s.db.GetFeedByID(feedID)
	if err != nil {
		log.Printf("Failed to get feed %s: %v", feedID, err)
		return
	}

	if !feed.Direction.Imports() {
		log.Printf("Skipping sync for feed %s - export-only feeds have nothing to import", feedID)
		return
	}

	if !manual && !feed.AutoSync {
		return
	}

	log.Printf("Starting sync for feed %s (%s)", feed.Name, feedID)

	ctx, cancel := context.WithTimeout(s.ctx, syncTimeout)
	defer cancel()

	result := s.engine.SyncFeed(ctx, feed)

	if result.Success {
		log.Printf("Sync completed for feed %s: %d processed, %d created, %d updated, %d removed in %v",
			feed.Name, result.EventsProcessed, result.EventsCreated, result.EventsUpdated,
			result.EventsRemoved, result.Duration)
	} else {
		log.Printf("Sync failed for feed %s: %s", feed.Name, result.Message)
	}
}

// cleanupRoutine runs periodic cleanup of old sync logs.
func (s *Scheduler) cleanupRoutine() {
	defer s.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanupOldLogs()
		}
	}
}

func (s *Scheduler) cleanupOldLogs() {
	cutoff := time.Now().AddDate(0, 0, -logRetentionDays)
	deleted, err := s.db.CleanOldSyncLogs(cutoff)
	if err != nil {
		log.Printf("Failed to clean old sync logs: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Cleaned %d old sync logs", deleted)
	}
}
