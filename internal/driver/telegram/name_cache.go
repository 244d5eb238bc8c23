package telegram

import "sync"

// DisplayNameCache tracks the last known display name per Telegram user.
//
// Profile-name updates only carry the new name, so the previous value has
// to come from names observed on earlier updates in the same session.
type DisplayNameCache struct {
	mu       sync.RWMutex
	byUserID map[int64]string
}

// NewDisplayNameCache creates an empty, concurrency-safe display-name cache.
func NewDisplayNameCache() *DisplayNameCache {
	return &DisplayNameCache{
		byUserID: make(map[int64]string),
	}
}

// Remember stores the current display name for one user.
func (c *DisplayNameCache) Remember(userID int64, displayName string) {
	if c == nil || userID == 0 || displayName == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byUserID[userID] = displayName
}

// Lookup returns the last observed display name for one user.
func (c *DisplayNameCache) Lookup(userID int64) (string, bool) {
	if c == nil || userID == 0 {
		return "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.byUserID[userID]

	return name, ok
}
