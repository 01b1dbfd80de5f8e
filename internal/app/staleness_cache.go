package app

import (
	"sync"
	"time"
)

// CacheEntry is the last evaluation of a wallet.
type CacheEntry struct {
	Stats       *WalletStats
	LastChecked time.Time
}

// StalenessCache remembers when each wallet was last evaluated so that
// recently checked wallets are not re-fetched.
// Entries live for the process lifetime; there is no eviction.
type StalenessCache struct {
	mu      sync.RWMutex
	window  time.Duration
	entries map[string]CacheEntry
}

// NewStalenessCache creates a cache that treats entries younger than window as fresh.
func NewStalenessCache(window time.Duration) *StalenessCache {
	if window < 0 {
		window = 0
	}
	return &StalenessCache{
		window:  window,
		entries: make(map[string]CacheEntry),
	}
}

// ShouldSkip reports whether wallet was checked less than the re-check window before now.
// Unknown wallets are never skipped.
func (c *StalenessCache) ShouldSkip(wallet string, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[wallet]
	if !ok {
		return false
	}
	return now.Sub(entry.LastChecked) < c.window
}

// Record upserts the wallet's entry.
func (c *StalenessCache) Record(wallet string, stats *WalletStats, now time.Time) {
	c.mu.Lock()
	c.entries[wallet] = CacheEntry{Stats: stats, LastChecked: now}
	c.mu.Unlock()
}

// Get returns the cached entry for wallet.
func (c *StalenessCache) Get(wallet string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[wallet]
	return entry, ok
}

// SetWindow changes the re-check window. Existing entries are kept.
func (c *StalenessCache) SetWindow(window time.Duration) {
	if window < 0 {
		window = 0
	}
	c.mu.Lock()
	c.window = window
	c.mu.Unlock()
}

// Window returns the current re-check window.
func (c *StalenessCache) Window() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window
}

// Len returns the number of cached wallets.
func (c *StalenessCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
