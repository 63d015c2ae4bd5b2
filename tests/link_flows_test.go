// Package tests contains test cases for the business flows wired against
// in-memory infrastructure
package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/Kusanagi/app/accumulator"
	"github.com/amirphl/Kusanagi/app/dto"
	businessflow "github.com/amirphl/Kusanagi/business_flow"
	"github.com/amirphl/Kusanagi/cache"
	"github.com/amirphl/Kusanagi/codegen"
	"github.com/amirphl/Kusanagi/config"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedGenerator always emits the same code, for collision tests
type fixedGenerator struct {
	code string
}

func (g *fixedGenerator) Generate() (string, error) {
	return g.code, nil
}

type flowEnv struct {
	linkRepo  *repository.MemoryLinkRepository
	visitRepo *repository.MemoryVisitRecordRepository
	linkCache *cache.MemoryCache
	acc       *accumulator.Accumulator
	stopAcc   func()

	shorten businessflow.ShortenFlow
	resolve businessflow.ResolveFlow
	stats   businessflow.StatsFlow
	manage  businessflow.ManageFlow
}

func newFlowEnv(t *testing.T, gen codegen.Generator) *flowEnv {
	t.Helper()

	linkRepo := repository.NewMemoryLinkRepository()
	visitRepo := repository.NewMemoryVisitRecordRepository()
	linkCache := cache.NewMemoryCache()

	shortenerCfg := config.ShortenerConfig{
		Strategy:    "random",
		CodeLength:  7,
		MaxAttempts: 5,
		AllowAlias:  true,
	}
	cacheCfg := config.CacheConfig{
		Enabled:    true,
		Provider:   "memory",
		DefaultTTL: time.Hour,
	}
	statsCfg := config.StatsConfig{
		QueueSize: 1024,
		Workers:   4,
	}

	acc := accumulator.New(linkRepo, visitRepo, linkCache, statsCfg)
	stop := acc.Start(context.Background())
	t.Cleanup(stop)

	return &flowEnv{
		linkRepo:  linkRepo,
		visitRepo: visitRepo,
		linkCache: linkCache,
		acc:       acc,
		stopAcc:   stop,
		shorten:   businessflow.NewShortenFlow(linkRepo, linkCache, gen, shortenerCfg, cacheCfg),
		resolve:   businessflow.NewResolveFlow(linkRepo, linkCache, acc, cacheCfg),
		stats:     businessflow.NewStatsFlow(linkRepo, linkCache),
		manage:    businessflow.NewManageFlow(linkRepo, linkCache),
	}
}

func TestShortenAndResolveRoundTrip(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	created, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
		TargetURL: "https://example.com/articles/42",
	})
	require.NoError(t, err)
	require.Len(t, created.Link.Code, 7)
	assert.True(t, created.Link.IsActive)

	// first resolve is served from the cache seeded at creation
	target, err := env.resolve.Resolve(ctx, created.Link.Code, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/articles/42", target)

	// drop the cache entry; the store fallback must still resolve
	require.NoError(t, env.linkCache.Invalidate(ctx, created.Link.Code))
	target, err = env.resolve.Resolve(ctx, created.Link.Code, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/articles/42", target)

	// the fallback writes through, so the entry is back
	cached, err := env.linkCache.Get(ctx, created.Link.Code)
	require.NoError(t, err)
	assert.Equal(t, created.Link.Code, cached.Code)
}

func TestResolveUnknownCode(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	_, err := env.resolve.Resolve(ctx, "zzzz999", nil, nil)
	assert.True(t, businessflow.IsCodeNotFound(err))

	// malformed codes are rejected before any lookup
	_, err = env.resolve.Resolve(ctx, "no_t-ok!", nil, nil)
	assert.True(t, businessflow.IsCodeNotFound(err))

	_, err = env.resolve.Resolve(ctx, "ab", nil, nil)
	assert.True(t, businessflow.IsCodeNotFound(err))
}

func TestResolveDisabledLink(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	created, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
		TargetURL: "https://example.com/gone",
	})
	require.NoError(t, err)

	_, err = env.manage.SetActive(ctx, created.Link.Code, 1, false)
	require.NoError(t, err)

	// disable must be visible immediately, even though the link was cached
	_, err = env.resolve.Resolve(ctx, created.Link.Code, nil, nil)
	assert.True(t, businessflow.IsLinkDisabled(err))

	// re-enabling restores resolution
	_, err = env.manage.SetActive(ctx, created.Link.Code, 1, true)
	require.NoError(t, err)

	target, err := env.resolve.Resolve(ctx, created.Link.Code, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/gone", target)
}

func TestShortenWithCustomAlias(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	created, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
		TargetURL:   "https://example.com/launch",
		CustomAlias: "launch24",
	})
	require.NoError(t, err)
	assert.Equal(t, "launch24", created.Link.Code)

	// a second link cannot claim the same alias
	_, err = env.shorten.Shorten(ctx, 2, &dto.ShortenRequest{
		TargetURL:   "https://example.com/other",
		CustomAlias: "launch24",
	})
	assert.True(t, businessflow.IsAliasTaken(err))

	// malformed alias
	_, err = env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
		TargetURL:   "https://example.com/other",
		CustomAlias: "no spaces",
	})
	assert.True(t, businessflow.IsInvalidAlias(err))
}

func TestShortenInvalidTargetURL(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	for _, target := range []string{
		"",
		"not-a-url",
		"ftp://example.com/file",
		"/relative/path",
	} {
		_, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{TargetURL: target})
		assert.True(t, businessflow.IsInvalidTargetURL(err), "target %q should be rejected", target)
	}
}

func TestShortenExhaustedRetries(t *testing.T) {
	env := newFlowEnv(t, &fixedGenerator{code: "samecode"})
	ctx := context.Background()

	// first creation claims the only code the generator can produce
	_, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
		TargetURL: "https://example.com/first",
	})
	require.NoError(t, err)

	_, err = env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
		TargetURL: "https://example.com/second",
	})
	assert.True(t, businessflow.IsExhaustedRetries(err))
}

func TestConcurrentResolvesAreAllCounted(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	created, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
		TargetURL: "https://example.com/busy",
	})
	require.NoError(t, err)
	code := created.Link.Code

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				target, err := env.resolve.Resolve(ctx, code, nil, nil)
				assert.NoError(t, err)
				assert.Equal(t, "https://example.com/busy", target)
			}
		}()
	}
	wg.Wait()

	// stop drains the queue so every accepted visit is durable
	env.stopAcc()

	link, err := env.linkRepo.ByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, int64(100), link.VisitCount)

	count, err := env.visitRepo.CountByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, int64(100), count)
}

func TestPopularRanking(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	codes := make([]string, 3)
	for i := range codes {
		created, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
			TargetURL: "https://example.com/page",
		})
		require.NoError(t, err)
		codes[i] = created.Link.Code
	}

	// codes[2] gets 3 visits, codes[1] gets 2, codes[0] gets 1
	for i, code := range codes {
		for j := 0; j <= i; j++ {
			_, err := env.resolve.Resolve(ctx, code, nil, nil)
			require.NoError(t, err)
		}
	}
	env.stopAcc()

	result, err := env.stats.Popular(ctx, 10)
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	assert.Equal(t, codes[2], result.Items[0].Code)
	assert.Equal(t, int64(3), result.Items[0].VisitCount)
	assert.Equal(t, codes[1], result.Items[1].Code)
	assert.Equal(t, codes[0], result.Items[2].Code)
}

func TestPopularFallbackReseedsCache(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	created, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
		TargetURL: "https://example.com/hot",
	})
	require.NoError(t, err)

	_, err = env.resolve.Resolve(ctx, created.Link.Code, nil, nil)
	require.NoError(t, err)
	env.stopAcc()

	// wipe the cached ranking; the flow must fall back to the store
	require.NoError(t, env.linkCache.ReplacePopular(ctx, nil))

	result, err := env.stats.Popular(ctx, 10)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, created.Link.Code, result.Items[0].Code)

	// and the fallback reseeded the cache
	entries, err := env.linkCache.TopPopular(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, created.Link.Code, entries[0].Code)
}

func TestStatsOwnerScoping(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	created, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
		TargetURL: "https://example.com/mine",
	})
	require.NoError(t, err)

	stats, err := env.stats.Stats(ctx, created.Link.Code, 1)
	require.NoError(t, err)
	assert.Equal(t, created.Link.Code, stats.Code)
	assert.Zero(t, stats.VisitCount)

	_, err = env.stats.Stats(ctx, created.Link.Code, 2)
	assert.True(t, businessflow.IsLinkAccessDenied(err))

	_, err = env.stats.Stats(ctx, "zzzz999", 1)
	assert.True(t, businessflow.IsCodeNotFound(err))
}

func TestStatsReflectVisits(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	created, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
		TargetURL: "https://example.com/tracked",
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := env.resolve.Resolve(ctx, created.Link.Code, utils.ToPtr("agent"), nil)
		require.NoError(t, err)
	}
	env.stopAcc()

	stats, err := env.stats.Stats(ctx, created.Link.Code, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.VisitCount)
	assert.NotNil(t, stats.LastVisitedAt)
}

func TestListByOwner(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
			TargetURL: "https://example.com/owned",
		})
		require.NoError(t, err)
	}
	_, err := env.shorten.Shorten(ctx, 2, &dto.ShortenRequest{
		TargetURL: "https://example.com/other",
	})
	require.NoError(t, err)

	result, err := env.manage.ListByOwner(ctx, 1, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Total)
	assert.Len(t, result.Items, 3)

	result, err = env.manage.ListByOwner(ctx, 1, 2, 3)
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)

	_, err = env.manage.ListByOwner(ctx, 1, 0, 10)
	assert.True(t, businessflow.IsInvalidPage(err))

	_, err = env.manage.ListByOwner(ctx, 1, 1, 1000)
	assert.True(t, businessflow.IsInvalidPageSize(err))
}

func TestSetActiveOwnership(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	created, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
		TargetURL: "https://example.com/guarded",
	})
	require.NoError(t, err)

	_, err = env.manage.SetActive(ctx, created.Link.Code, 2, false)
	assert.True(t, businessflow.IsLinkAccessDenied(err))

	_, err = env.manage.SetActive(ctx, "zzzz999", 1, false)
	assert.True(t, businessflow.IsCodeNotFound(err))
}

func TestOverview(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	var codes []string
	for i := 0; i < 3; i++ {
		created, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
			TargetURL: "https://example.com/summary",
		})
		require.NoError(t, err)
		codes = append(codes, created.Link.Code)
	}
	_, err := env.manage.SetActive(ctx, codes[0], 1, false)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := env.resolve.Resolve(ctx, codes[1], nil, nil)
		require.NoError(t, err)
	}
	env.stopAcc()

	overview, err := env.stats.Overview(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), overview.TotalLinks)
	assert.Equal(t, int64(2), overview.ActiveLinks)
	assert.Equal(t, int64(4), overview.TotalVisits)

	empty, err := env.stats.Overview(ctx, 99)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalLinks)
	assert.Zero(t, empty.TotalVisits)
}

func TestShortenRejectsPastExpiry(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))

	_, err := env.shorten.Shorten(context.Background(), 1, &dto.ShortenRequest{
		TargetURL: "https://example.com/soon",
		ExpiresAt: utils.ToPtr(utils.UTCNow().Add(-time.Minute)),
	})
	assert.True(t, businessflow.IsInvalidExpiry(err))
}

func TestResolveExpiredLink(t *testing.T) {
	env := newFlowEnv(t, codegen.NewRandomGenerator(7))
	ctx := context.Background()

	// a link with a future expiry resolves normally
	created, err := env.shorten.Shorten(ctx, 1, &dto.ShortenRequest{
		TargetURL: "https://example.com/tmp",
		ExpiresAt: utils.ToPtr(utils.UTCNow().Add(time.Hour)),
	})
	require.NoError(t, err)
	target, err := env.resolve.Resolve(ctx, created.Link.Code, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/tmp", target)

	// a stored link whose expiry has passed is gone, not missing
	expired := &models.Link{
		Code:      "gone1234",
		TargetURL: "https://example.com/expired",
		OwnerID:   1,
		IsActive:  utils.ToPtr(true),
		ExpiresAt: utils.ToPtr(utils.UTCNow().Add(-time.Minute)),
	}
	require.NoError(t, env.linkRepo.Save(ctx, expired))

	_, err = env.resolve.Resolve(ctx, "gone1234", nil, nil)
	assert.True(t, businessflow.IsLinkDisabled(err))
	assert.False(t, businessflow.IsCodeNotFound(err))

	// a stale cache entry does not resurrect an expired link
	require.NoError(t, env.linkCache.Put(ctx, expired, time.Hour))
	_, err = env.resolve.Resolve(ctx, "gone1234", nil, nil)
	assert.True(t, businessflow.IsLinkDisabled(err))
}
