package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/Kusanagi/models"
)

type memoryEntry struct {
	link      models.Link
	expiresAt time.Time
}

type memoryScore struct {
	count     int64
	lastVisit time.Time
}

// MemoryCache implements LinkCache in process memory for the memory cache
// provider and for tests. A single RWMutex guards both the entry map and the
// score map, so the ranking cannot be corrupted by concurrent writers.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	scores  map[string]memoryScore
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		scores:  make(map[string]memoryScore),
	}
}

func (c *MemoryCache) Get(ctx context.Context, code string) (*models.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	e, ok := c.entries[code]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, code)
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}
	cp := e.link
	return &cp, nil
}

func (c *MemoryCache) Put(ctx context.Context, link *models.Link, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[link.Code] = memoryEntry{link: *link, expiresAt: expiresAt}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.entries, code)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) IncrementScore(ctx context.Context, code string, visitedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	s := c.scores[code]
	s.count++
	if visitedAt.After(s.lastVisit) {
		s.lastVisit = visitedAt
	}
	c.scores[code] = s
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) TopPopular(ctx context.Context, n int) ([]PopularityEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	entries := make([]PopularityEntry, 0, len(c.scores))
	for code, s := range c.scores {
		entries = append(entries, PopularityEntry{Code: code, Count: s.count, LastVisit: s.lastVisit})
	}
	c.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].LastVisit.After(entries[j].LastVisit)
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (c *MemoryCache) ReplacePopular(ctx context.Context, entries []PopularityEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	scores := make(map[string]memoryScore, len(entries))
	for _, e := range entries {
		scores[e.Code] = memoryScore{count: e.Count, lastVisit: e.LastVisit}
	}
	c.mu.Lock()
	c.scores = scores
	c.mu.Unlock()
	return nil
}
