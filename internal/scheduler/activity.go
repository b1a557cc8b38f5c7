package scheduler

import (
	"sync"
	"time"
)

// ActivityTracker records the signals the background jobs from spec.md §5
// decide on: link mutations since the last community rebuild, and how long
// the request queue has been idle. Dispatcher updates it on every call;
// CommunityRebuildJob and any idle-triggered job read it on each tick.
type ActivityTracker struct {
	mu                    sync.Mutex
	lastMutationAt        time.Time
	mutationsSinceRebuild int
	lastRequestAt         time.Time
}

// NewActivityTracker returns a tracker initialized as freshly active.
func NewActivityTracker() *ActivityTracker {
	now := time.Now()
	return &ActivityTracker{lastMutationAt: now, lastRequestAt: now}
}

// RecordRequest marks that a request was just handled, resetting the idle
// clock the dream pass watches.
func (a *ActivityTracker) RecordRequest() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastRequestAt = time.Now()
}

// RecordLinkMutation marks that a link was just added or removed.
func (a *ActivityTracker) RecordLinkMutation() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mutationsSinceRebuild++
	a.lastMutationAt = time.Now()
}

// ShouldRebuildCommunities reports whether enough link mutations have
// accumulated, or enough idle time has passed since the last one, to
// justify a community rebuild.
func (a *ActivityTracker) ShouldRebuildCommunities(mutationThreshold int, idleThreshold time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mutationsSinceRebuild == 0 {
		return false
	}
	if a.mutationsSinceRebuild >= mutationThreshold {
		return true
	}
	return time.Since(a.lastMutationAt) >= idleThreshold
}

// MarkCommunitiesRebuilt resets the mutation counter after a rebuild.
func (a *ActivityTracker) MarkCommunitiesRebuilt() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mutationsSinceRebuild = 0
}

// IdleFor reports how long it has been since the last request.
func (a *ActivityTracker) IdleFor() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Since(a.lastRequestAt)
}
