package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/amirphl/Kusanagi/models"
	"github.com/redis/go-redis/v9"
)

const (
	linkKeyPrefix    = "link:"
	popularSetKey    = "popular"
	lastVisitHashKey = "popular:last_visit"
)

// RedisCache implements LinkCache on Redis. Link entries are JSON values with
// a TTL; the popularity ranking is a ZSET incremented on each visit with a
// companion hash holding last-visit timestamps for tie breaking.
// Every call is bounded by opTimeout so a slow Redis degrades to a miss
// instead of stalling the redirect path.
type RedisCache struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, opTimeout time.Duration) *RedisCache {
	if opTimeout <= 0 {
		opTimeout = 200 * time.Millisecond
	}
	return &RedisCache{client: client, prefix: prefix, opTimeout: opTimeout}
}

func (c *RedisCache) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += p
	}
	return k
}

func (c *RedisCache) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *RedisCache) Get(ctx context.Context, code string) (*models.Link, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	bs, err := c.client.Get(ctx, c.key(linkKeyPrefix, code)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var link models.Link
	if err := json.Unmarshal(bs, &link); err != nil {
		// corrupt entry, drop it and report a miss
		_ = c.client.Del(ctx, c.key(linkKeyPrefix, code)).Err()
		return nil, ErrCacheMiss
	}
	return &link, nil
}

func (c *RedisCache) Put(ctx context.Context, link *models.Link, ttl time.Duration) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	bs, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}
	if err := c.client.Set(ctx, c.key(linkKeyPrefix, link.Code), bs, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, code string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.client.Del(ctx, c.key(linkKeyPrefix, code)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// IncrementScore bumps the popularity score for code. ZINCRBY is atomic on the
// server, so concurrent visits never lose increments.
func (c *RedisCache) IncrementScore(ctx context.Context, code string, visitedAt time.Time) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	pipe := c.client.Pipeline()
	pipe.ZIncrBy(ctx, c.key(popularSetKey), 1, code)
	pipe.HSet(ctx, c.key(lastVisitHashKey), code, visitedAt.UTC().UnixNano())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis score increment failed: %w", err)
	}
	return nil
}

func (c *RedisCache) TopPopular(ctx context.Context, n int) ([]PopularityEntry, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	zs, err := c.client.ZRevRangeWithScores(ctx, c.key(popularSetKey), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange failed: %w", err)
	}
	if len(zs) == 0 {
		return nil, nil
	}

	codes := make([]string, len(zs))
	for i, z := range zs {
		codes[i], _ = z.Member.(string)
	}
	visits, err := c.client.HMGet(ctx, c.key(lastVisitHashKey), codes...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget failed: %w", err)
	}

	entries := make([]PopularityEntry, len(zs))
	for i, z := range zs {
		e := PopularityEntry{Code: codes[i], Count: int64(z.Score)}
		if i < len(visits) {
			if s, ok := visits[i].(string); ok {
				if ns, err := strconv.ParseInt(s, 10, 64); err == nil {
					e.LastVisit = time.Unix(0, ns).UTC()
				}
			}
		}
		entries[i] = e
	}

	// ZSET ties break lexicographically; re-sort so ties break by most recent visit
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].LastVisit.After(entries[j].LastVisit)
	})
	return entries, nil
}

// ReplacePopular atomically swaps the ranked view with entries rebuilt from
// durable visit counts.
func (c *RedisCache) ReplacePopular(ctx context.Context, entries []PopularityEntry) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.key(popularSetKey), c.key(lastVisitHashKey))
	if len(entries) > 0 {
		members := make([]redis.Z, len(entries))
		visits := make([]any, 0, len(entries)*2)
		for i, e := range entries {
			members[i] = redis.Z{Score: float64(e.Count), Member: e.Code}
			visits = append(visits, e.Code, e.LastVisit.UTC().UnixNano())
		}
		pipe.ZAdd(ctx, c.key(popularSetKey), members...)
		pipe.HSet(ctx, c.key(lastVisitHashKey), visits...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis popularity rebuild failed: %w", err)
	}
	return nil
}
