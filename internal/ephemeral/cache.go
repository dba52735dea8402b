package ephemeral

import (
	"sync"
	"time"

	domain "github.com/scribehub/scribe-auth/internal/domain/ephemeral"
)

// cacheEntryTTL bounds how long a cached copy is trusted before the
// authoritative store is consulted again.
const cacheEntryTTL = 30 * time.Second

type cachedSession struct {
	session  domain.Session
	cachedAt time.Time
}

// sessionCache is a read-through accelerator in front of the session store.
// It is never authoritative: entries expire with the session itself and
// after a short local TTL, whichever comes first.
type sessionCache struct {
	mu      sync.RWMutex
	entries map[string]cachedSession
}

func newSessionCache() *sessionCache {
	return &sessionCache{entries: make(map[string]cachedSession)}
}

func (c *sessionCache) get(id string, now time.Time) (*domain.Session, bool) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if now.Sub(entry.cachedAt) > cacheEntryTTL || entry.session.Expired(now) {
		c.remove(id)
		return nil, false
	}
	session := entry.session
	return &session, true
}

func (c *sessionCache) put(session domain.Session, now time.Time) {
	c.mu.Lock()
	c.entries[session.ID] = cachedSession{session: session, cachedAt: now}
	c.mu.Unlock()
}

func (c *sessionCache) remove(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}
