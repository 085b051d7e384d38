package funnel

import (
	"testing"
	"time"
)

func TestRegistryEvictsIdleSessions(t *testing.T) {
	r := NewRegistry(Config{})
	s := r.Create("casa", "")

	r.mu.Lock()
	r.sessions[s.ID()].lastSeen = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	if _, ok := r.Get(s.ID()); ok {
		t.Fatalf("idle session should have been evicted")
	}
	r.mu.Lock()
	left := len(r.sessions)
	r.mu.Unlock()
	if left != 0 {
		t.Fatalf("expected empty registry, got %d sessions", left)
	}
}

func TestRegistryGetKeepsSessionAlive(t *testing.T) {
	r := NewRegistry(Config{SessionTTL: time.Minute})
	s := r.Create("casa", "")

	r.mu.Lock()
	r.sessions[s.ID()].lastSeen = time.Now().Add(-50 * time.Second)
	r.mu.Unlock()

	if _, ok := r.Get(s.ID()); !ok {
		t.Fatalf("session within TTL must survive")
	}

	// The Get above refreshed the idle clock.
	r.mu.Lock()
	age := time.Since(r.sessions[s.ID()].lastSeen)
	r.mu.Unlock()
	if age > time.Second {
		t.Fatalf("expected lastSeen refreshed on access, age %s", age)
	}
}

func TestRegistryCreateSweepsOtherSessions(t *testing.T) {
	r := NewRegistry(Config{SessionTTL: time.Minute})
	stale := r.Create("casa", "")
	r.mu.Lock()
	r.sessions[stale.ID()].lastSeen = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	fresh := r.Create("casa", "")
	if _, ok := r.Get(stale.ID()); ok {
		t.Fatalf("stale session should be gone after a later Create")
	}
	if _, ok := r.Get(fresh.ID()); !ok {
		t.Fatalf("fresh session must remain")
	}
}
