package funnel

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const defaultSessionTTL = 30 * time.Minute

// Registry owns the live funnel sessions. Sessions are in-memory only;
// a new session means a new draft, so nothing is persisted across
// restarts. Sessions idle past the TTL are evicted lazily on access so
// abandoned drafts do not accumulate in a long-lived process.
type Registry struct {
	cfg Config
	ttl time.Duration

	mu       sync.Mutex
	sessions map[string]*registryEntry
}

type registryEntry struct {
	session  *Session
	lastSeen time.Time
}

func NewRegistry(cfg Config) *Registry {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Registry{
		cfg:      cfg,
		ttl:      ttl,
		sessions: map[string]*registryEntry{},
	}
}

func (r *Registry) Create(domain, userText string) *Session {
	id := fmt.Sprintf("fnl_%d_%d", time.Now().UnixNano(), rand.Intn(100000))
	s := NewSession(id, domain, userText, r.cfg)
	now := time.Now()
	r.mu.Lock()
	r.evictIdleLocked(now)
	r.sessions[id] = &registryEntry{session: s, lastSeen: now}
	r.mu.Unlock()
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictIdleLocked(now)
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = now
	return e.session, true
}

// Remove cancels the session so in-flight collaborator results are
// discarded, then drops it from the registry.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		e.session.Cancel()
	}
	return ok
}

func (r *Registry) evictIdleLocked(now time.Time) {
	for id, e := range r.sessions {
		if now.Sub(e.lastSeen) > r.ttl {
			e.session.Cancel()
			delete(r.sessions, id)
		}
	}
}
