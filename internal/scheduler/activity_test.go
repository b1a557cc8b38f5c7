package scheduler

import (
	"testing"
	"time"
)

func TestShouldRebuildCommunitiesNoMutationsIsFalse(t *testing.T) {
	a := NewActivityTracker()
	if a.ShouldRebuildCommunities(50, 15*time.Minute) {
		t.Fatal("expected no rebuild with zero mutations recorded")
	}
}

func TestShouldRebuildCommunitiesMutationThreshold(t *testing.T) {
	a := NewActivityTracker()
	for i := 0; i < 49; i++ {
		a.RecordLinkMutation()
	}
	if a.ShouldRebuildCommunities(50, 15*time.Minute) {
		t.Fatal("expected no rebuild below mutation threshold and within idle window")
	}
	a.RecordLinkMutation()
	if !a.ShouldRebuildCommunities(50, 15*time.Minute) {
		t.Fatal("expected rebuild once mutation threshold reached")
	}
}

func TestShouldRebuildCommunitiesIdleThreshold(t *testing.T) {
	a := NewActivityTracker()
	a.RecordLinkMutation()
	a.lastMutationAt = time.Now().Add(-20 * time.Minute)
	if !a.ShouldRebuildCommunities(50, 15*time.Minute) {
		t.Fatal("expected rebuild once idle threshold elapsed since last mutation")
	}
}

func TestMarkCommunitiesRebuiltResetsCounter(t *testing.T) {
	a := NewActivityTracker()
	a.RecordLinkMutation()
	a.MarkCommunitiesRebuilt()
	if a.ShouldRebuildCommunities(1, 15*time.Minute) {
		t.Fatal("expected no rebuild immediately after resetting the counter")
	}
}

func TestIdleForReflectsLastRequest(t *testing.T) {
	a := NewActivityTracker()
	a.lastRequestAt = time.Now().Add(-90 * time.Second)
	if a.IdleFor() < 90*time.Second {
		t.Fatal("expected IdleFor to reflect time since last recorded request")
	}
	a.RecordRequest()
	if a.IdleFor() > time.Second {
		t.Fatal("expected IdleFor to reset after RecordRequest")
	}
}
