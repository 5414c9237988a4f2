package session

import (
	"sync"
	"time"

	"gradia.org/internal/cache"
)

// sessionCache pairs the TTL cache with a per-user index of session ids so
// that bulk revocation can purge every entry belonging to one user.
type sessionCache struct {
	entries *cache.Cache[Session]

	mu     sync.Mutex
	byUser map[string]map[string]struct{}
}

func newSessionCache(opts ...cache.Option[Session]) *sessionCache {
	return &sessionCache{
		entries: cache.New[Session](opts...),
		byUser:  make(map[string]map[string]struct{}),
	}
}

func (c *sessionCache) get(id string) (Session, bool) {
	return c.entries.Get(id)
}

// put stores the session for its remaining lifetime. A fixed TTL would risk
// outliving the row's real expiry.
func (c *sessionCache) put(s Session, now time.Time) {
	ttl := s.Remaining(now)
	if ttl <= 0 {
		return
	}
	c.entries.Set(s.ID, s, ttl)

	c.mu.Lock()
	ids, ok := c.byUser[s.UserID]
	if !ok {
		ids = make(map[string]struct{})
		c.byUser[s.UserID] = ids
	}
	ids[s.ID] = struct{}{}
	c.mu.Unlock()
}

func (c *sessionCache) remove(userID, id string) {
	c.entries.Delete(id)

	c.mu.Lock()
	if ids, ok := c.byUser[userID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(c.byUser, userID)
		}
	}
	c.mu.Unlock()
}

// sweep evicts expired entries and drops their ids from the per-user index,
// so sessions that are cached once and never looked up again do not pin
// memory for their whole lifetime.
func (c *sessionCache) sweep() {
	c.entries.Sweep()

	c.mu.Lock()
	defer c.mu.Unlock()
	for userID, ids := range c.byUser {
		for id := range ids {
			if _, ok := c.entries.Get(id); !ok {
				delete(ids, id)
			}
		}
		if len(ids) == 0 {
			delete(c.byUser, userID)
		}
	}
}

// startJanitor sweeps on the given interval until the returned stop function
// is called.
func (c *sessionCache) startJanitor(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// removeUser purges every cached session of the user and returns the ids
// that were indexed.
func (c *sessionCache) removeUser(userID string) []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.byUser[userID]))
	for id := range c.byUser[userID] {
		ids = append(ids, id)
	}
	delete(c.byUser, userID)
	c.mu.Unlock()

	c.entries.DeleteMany(ids)
	return ids
}
