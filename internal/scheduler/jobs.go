package scheduler

import (
	"context"
	"time"
)

// CommunityRebuildJob adapts the community-graph rebuild into a Job the
// Scheduler can tick: it runs its Rebuild func only when ActivityTracker
// reports enough accumulated link mutations, or enough idle time since the
// last one, per spec.md §5.
type CommunityRebuildJob struct {
	Tracker           *ActivityTracker
	MutationThreshold int
	IdleThreshold     time.Duration
	Rebuild           func(ctx context.Context) error
}

func (j *CommunityRebuildJob) Name() string { return "community_rebuild" }

func (j *CommunityRebuildJob) Run(ctx context.Context) error {
	if !j.Tracker.ShouldRebuildCommunities(j.MutationThreshold, j.IdleThreshold) {
		return nil
	}
	if err := j.Rebuild(ctx); err != nil {
		return err
	}
	j.Tracker.MarkCommunitiesRebuilt()
	return nil
}

// IdleJob runs Task only once the request queue has been idle for at least
// IdleThreshold, per spec.md §5's dream-pass trigger.
type IdleJob struct {
	Tracker       *ActivityTracker
	IdleThreshold time.Duration
	Task          func(ctx context.Context) error
	name          string
}

// NewIdleJob names an idle-triggered job; Scheduler polls it at a short
// interval and it no-ops until the idle threshold is crossed.
func NewIdleJob(name string, tracker *ActivityTracker, idleThreshold time.Duration, task func(ctx context.Context) error) *IdleJob {
	return &IdleJob{Tracker: tracker, IdleThreshold: idleThreshold, Task: task, name: name}
}

func (j *IdleJob) Name() string { return j.name }

func (j *IdleJob) Run(ctx context.Context) error {
	if j.Tracker.IdleFor() < j.IdleThreshold {
		return nil
	}
	return j.Task(ctx)
}
