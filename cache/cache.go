// Package cache provides the fast-path lookup layer for hot short links and
// the ranked popularity view. The cache is never the source of truth: every
// entry can be evicted or lost without losing durable data.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/Kusanagi/models"
)

// ErrCacheMiss is returned when no entry exists for the requested code.
var ErrCacheMiss = errors.New("cache miss")

// PopularityEntry is one row of the ranked popularity view
type PopularityEntry struct {
	Code      string    `json:"code"`
	Count     int64     `json:"count"`
	LastVisit time.Time `json:"last_visit"`
}

// LinkCache defines the two concerns of the cache layer: link entries keyed
// by code with a TTL, and a ranked popularity structure updated incrementally
// on each visit. Implementations must keep the ranking consistent under
// concurrent writers.
type LinkCache interface {
	Get(ctx context.Context, code string) (*models.Link, error)
	Put(ctx context.Context, link *models.Link, ttl time.Duration) error
	Invalidate(ctx context.Context, code string) error

	IncrementScore(ctx context.Context, code string, visitedAt time.Time) error
	TopPopular(ctx context.Context, n int) ([]PopularityEntry, error)
	ReplacePopular(ctx context.Context, entries []PopularityEntry) error
}
