// Package activity tracks in-flight and recently completed feed syncs for
// the dashboard.
package activity

import (
	"sync"
	"time"
)

// SyncActivity represents the current state of one feed sync.
type SyncActivity struct {
	FeedID          string     `json:"feed_id"`
	FeedName        string     `json:"feed_name"`
	Status          string     `json:"status"` // "running", "completed", "error"
	EventsProcessed int        `json:"events_processed"`
	EventsCreated   int        `json:"events_created"`
	EventsUpdated   int        `json:"events_updated"`
	EventsRemoved   int        `json:"events_removed"`
	Conflicts       int        `json:"conflicts"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Message         string     `json:"message,omitempty"`
}

// Tracker tracks sync activity across all feeds.
type Tracker struct {
	mu             sync.RWMutex
	active         map[string]*SyncActivity // feedID -> activity
	recent         []*SyncActivity          // recently completed syncs, newest first
	maxRecentSyncs int
}

// NewTracker creates a new activity tracker.
func NewTracker() *Tracker {
	return &Tracker{
		active:         make(map[string]*SyncActivity),
		recent:         make([]*SyncActivity, 0),
		maxRecentSyncs: 20,
	}
}

// StartSync begins tracking a sync for a feed.
func (t *Tracker) StartSync(feedID, feedName string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active[feedID] = &SyncActivity{
		FeedID:    feedID,
		FeedName:  feedName,
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
}

// FinishSync completes tracking for a feed and files the result under
// recent activity.
func (t *Tracker) FinishSync(feedID string, success bool, message string, processed, created, updated, removed, conflicts int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	act, ok := t.active[feedID]
	if !ok {
		act = &SyncActivity{FeedID: feedID, StartedAt: time.Now().UTC()}
	}
	delete(t.active, feedID)

	now := time.Now().UTC()
	act.CompletedAt = &now
	act.Message = message
	act.EventsProcessed = processed
	act.EventsCreated = created
	act.EventsUpdated = updated
	act.EventsRemoved = removed
	act.Conflicts = conflicts
	act.Status = "completed"
	if !success {
		act.Status = "error"
	}

	t.recent = append([]*SyncActivity{act}, t.recent...)
	if len(t.recent) > t.maxRecentSyncs {
		t.recent = t.recent[:t.maxRecentSyncs]
	}
}

// Active returns a snapshot of in-flight syncs.
func (t *Tracker) Active() []*SyncActivity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*SyncActivity, 0, len(t.active))
	for _, act := range t.active {
		copied := *act
		out = append(out, &copied)
	}
	return out
}

// Recent returns a snapshot of recently completed syncs, newest first.
func (t *Tracker) Recent() []*SyncActivity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*SyncActivity, 0, len(t.recent))
	for _, act := range t.recent {
		copied := *act
		out = append(out, &copied)
	}
	return out
}
