package permissions

import (
	"sync"
	"time"
)

// RecordCache holds permission records for at most one TTL. Expired entries
// are never returned, so a change made by another process is honored once
// the TTL has elapsed.
//
// Fills are guarded by a per-table generation: a caller takes a Generation
// before reading the database and hands it back to Fill, which drops the value
// if Invalidate or Purge ran in between.
type RecordCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]recordCacheEntry
	gens    map[string]uint64
	epoch   uint64 // bumped by Purge
}

type recordCacheEntry struct {
	record    *Record // nil = negative cache (table has no record)
	expiresAt time.Time
}

// Generation identifies the cache state of one table at a point in time.
type Generation struct {
	epoch uint64
	gen   uint64
}

// NewRecordCache creates a cache with the given TTL.
func NewRecordCache(ttl time.Duration) *RecordCache {
	return &RecordCache{
		ttl:     ttl,
		entries: make(map[string]recordCacheEntry),
		gens:    make(map[string]uint64),
	}
}

// Get returns a copy of the cached record and whether a fresh entry exists.
// A fresh negative entry yields (nil, true).
func (c *RecordCache) Get(table string) (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[table]
	if !ok {
		return nil, false
	}
	if !time.Now().Before(entry.expiresAt) {
		delete(c.entries, table)
		return nil, false
	}
	return copyRecord(entry.record), true
}

// Generation returns the token to pass to Fill for table.
func (c *RecordCache) Generation(table string) Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Generation{epoch: c.epoch, gen: c.gens[table]}
}

// Fill stores rec for table if nothing invalidated it since gen was taken.
// Passing nil stores a negative entry. It reports whether the value was kept.
func (c *RecordCache) Fill(table string, rec *Record, gen Generation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen.epoch != c.epoch || gen.gen != c.gens[table] {
		return false
	}
	c.entries[table] = recordCacheEntry{
		record:    copyRecord(rec),
		expiresAt: time.Now().Add(c.ttl),
	}
	return true
}

// Invalidate drops the entry for table and fails any in-flight Fill for it.
func (c *RecordCache) Invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, table)
	c.gens[table]++
}

// Purge drops every entry and fails every in-flight Fill.
func (c *RecordCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]recordCacheEntry)
	c.gens = make(map[string]uint64)
	c.epoch++
}

func copyRecord(rec *Record) *Record {
	if rec == nil {
		return nil
	}
	cp := *rec
	return &cp
}
