package core

import (
	"sync"
	"time"

	"github.com/ebogdum/jobgate/jobs"
)

// CacheEntry represents a cached job descriptor with expiration
type CacheEntry struct {
	Job       *jobs.Job
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// DescriptorCache keeps recently resolved job descriptors for the admin view.
// Admission decisions never read from it.
type DescriptorCache struct {
	cache    map[int64]*CacheEntry
	mu       sync.RWMutex
	ttl      time.Duration
	maxSize  int
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewDescriptorCache creates a new descriptor cache with the specified TTL and max size
func NewDescriptorCache(ttl time.Duration, maxSize int) *DescriptorCache {
	cache := &DescriptorCache{
		cache:    make(map[int64]*CacheEntry),
		ttl:      ttl,
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
	}

	go cache.cleanupExpiredEntries()

	return cache
}

// Get retrieves a descriptor from the cache
func (c *DescriptorCache) Get(jobID int64) (*jobs.Job, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.cache[jobID]
	if !exists || entry.IsExpired() {
		return nil, false
	}
	return entry.Job, true
}

// Set stores a descriptor in the cache
func (c *DescriptorCache) Set(jobID int64, job *jobs.Job) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache[jobID]; !exists && len(c.cache) >= c.maxSize {
		c.evictOneEntry()
	}

	c.cache[jobID] = &CacheEntry{
		Job:       job,
		ExpiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate removes an entry from the cache
func (c *DescriptorCache) Invalidate(jobID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.cache, jobID)
}

// Len returns the number of entries, expired ones included
func (c *DescriptorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Close stops the background cleanup
func (c *DescriptorCache) Close() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// evictOneEntry removes one entry to make space (caller must hold lock)
func (c *DescriptorCache) evictOneEntry() {
	now := time.Now()

	for id, entry := range c.cache {
		if now.After(entry.ExpiresAt) {
			delete(c.cache, id)
			return
		}
	}

	// TODO: evict by insertion order once the admin view pages over large lock tables
	for id := range c.cache {
		delete(c.cache, id)
		return
	}
}

func (c *DescriptorCache) cleanupExpiredEntries() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.performCleanup()
		case <-c.stopChan:
			return
		}
	}
}

func (c *DescriptorCache) performCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, entry := range c.cache {
		if now.After(entry.ExpiresAt) {
			delete(c.cache, id)
		}
	}
}
