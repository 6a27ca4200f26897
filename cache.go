package sheetstore

import (
	"sync"
	"time"
)

type cacheEntry struct {
	records  []*Record
	headers  []string
	storedAt time.Time
}

// Cache holds decoded sheet reads for a fixed time-to-live.
//
// Every Invalidate bumps a per-sheet generation. A read-through that captured
// the generation before fetching stores its result with PutIfCurrent, which
// refuses the write when an invalidation happened in between.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*cacheEntry
	gens    map[string]uint64
}

// NewCache creates a cache whose entries expire after ttl. A nil now uses time.Now.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]*cacheEntry),
		gens:    make(map[string]uint64),
	}
}

// Get returns copies of the cached records and headers of a sheet while the
// entry is younger than the TTL.
func (c *Cache) Get(sheet string) ([]*Record, []string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[sheet]
	if !ok || c.expired(entry) {
		return nil, nil, false
	}
	return copyRecords(entry.records), append([]string(nil), entry.headers...), true
}

// Put stores a sheet read unconditionally.
func (c *Cache) Put(sheet string, headers []string, records []*Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(sheet, headers, records)
}

// PutIfCurrent stores a sheet read only if no invalidation happened since gen
// was observed. It reports whether the entry was stored.
func (c *Cache) PutIfCurrent(sheet string, gen uint64, headers []string, records []*Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[sheet] != gen {
		return false
	}
	c.store(sheet, headers, records)
	return true
}

func (c *Cache) store(sheet string, headers []string, records []*Record) {
	c.entries[sheet] = &cacheEntry{
		records:  copyRecords(records),
		headers:  append([]string(nil), headers...),
		storedAt: c.now(),
	}
}

// Invalidate drops the entry of a sheet and advances its generation.
func (c *Cache) Invalidate(sheet string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, sheet)
	c.gens[sheet]++
}

// Generation returns the current invalidation counter of a sheet.
func (c *Cache) Generation(sheet string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[sheet]
}

// Purge removes expired entries and returns how many were dropped.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for sheet, entry := range c.entries {
		if c.expired(entry) {
			delete(c.entries, sheet)
			n++
		}
	}
	return n
}

// Clear drops every entry. Generations keep counting.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sheet := range c.entries {
		c.gens[sheet]++
	}
	c.entries = make(map[string]*cacheEntry)
}

// Size returns the number of stored entries, expired ones included.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) expired(entry *cacheEntry) bool {
	return c.now().Sub(entry.storedAt) > c.ttl
}

func copyRecords(records []*Record) []*Record {
	out := make([]*Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
