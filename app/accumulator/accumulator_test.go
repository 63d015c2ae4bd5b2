package accumulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/Kusanagi/cache"
	"github.com/amirphl/Kusanagi/config"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/stretchr/testify/require"
)

func newTestAccumulator(t *testing.T, cfg config.StatsConfig) (*Accumulator, repository.LinkRepository, repository.VisitRecordRepository, cache.LinkCache) {
	t.Helper()
	linkRepo := repository.NewMemoryLinkRepository()
	visitRepo := repository.NewMemoryVisitRecordRepository()
	linkCache := cache.NewMemoryCache()
	return New(linkRepo, visitRepo, linkCache, cfg), linkRepo, visitRepo, linkCache
}

func seedLink(t *testing.T, repo repository.LinkRepository, code string) *models.Link {
	t.Helper()
	link := &models.Link{
		Code:      code,
		TargetURL: "https://example.com/" + code,
		OwnerID:   1,
		IsActive:  utils.ToPtr(true),
	}
	require.NoError(t, repo.Save(context.Background(), link))
	return link
}

func TestAccumulatorRecordsVisits(t *testing.T) {
	acc, linkRepo, visitRepo, _ := newTestAccumulator(t, config.StatsConfig{
		QueueSize: 64,
		Workers:   2,
	})
	seedLink(t, linkRepo, "abc1234")

	stop := acc.Start(context.Background())

	ua := utils.ToPtr("test-agent")
	for i := 0; i < 10; i++ {
		require.True(t, acc.Record("abc1234", utils.UTCNow(), ua, nil))
	}
	stop()

	link, err := linkRepo.ByCode(context.Background(), "abc1234")
	require.NoError(t, err)
	require.NotNil(t, link)
	require.Equal(t, int64(10), link.VisitCount)
	require.NotNil(t, link.LastVisitedAt)

	count, err := visitRepo.CountByCode(context.Background(), "abc1234")
	require.NoError(t, err)
	require.Equal(t, int64(10), count)
}

func TestAccumulatorConcurrentRecording(t *testing.T) {
	acc, linkRepo, visitRepo, _ := newTestAccumulator(t, config.StatsConfig{
		QueueSize: 1024,
		Workers:   4,
	})
	seedLink(t, linkRepo, "busy123")

	stop := acc.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				acc.Record("busy123", utils.UTCNow(), nil, nil)
			}
		}()
	}
	wg.Wait()
	stop()

	link, err := linkRepo.ByCode(context.Background(), "busy123")
	require.NoError(t, err)
	require.Equal(t, int64(100), link.VisitCount)

	count, err := visitRepo.CountByCode(context.Background(), "busy123")
	require.NoError(t, err)
	require.Equal(t, int64(100), count)
}

func TestAccumulatorDropsWhenQueueFull(t *testing.T) {
	// no workers started, so the queue never drains
	acc, linkRepo, _, _ := newTestAccumulator(t, config.StatsConfig{
		QueueSize: 2,
		Workers:   1,
	})
	seedLink(t, linkRepo, "full123")

	require.True(t, acc.Record("full123", utils.UTCNow(), nil, nil))
	require.True(t, acc.Record("full123", utils.UTCNow(), nil, nil))
	require.False(t, acc.Record("full123", utils.UTCNow(), nil, nil))
}

func TestAccumulatorIgnoresUnknownCode(t *testing.T) {
	acc, _, visitRepo, _ := newTestAccumulator(t, config.StatsConfig{
		QueueSize: 8,
		Workers:   1,
	})

	stop := acc.Start(context.Background())
	require.True(t, acc.Record("missing", utils.UTCNow(), nil, nil))
	stop()

	count, err := visitRepo.CountByCode(context.Background(), "missing")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestAccumulatorStopDrainsQueue(t *testing.T) {
	acc, linkRepo, _, _ := newTestAccumulator(t, config.StatsConfig{
		QueueSize: 256,
		Workers:   1,
	})
	seedLink(t, linkRepo, "drain12")

	stop := acc.Start(context.Background())
	for i := 0; i < 50; i++ {
		require.True(t, acc.Record("drain12", utils.UTCNow(), nil, nil))
	}
	stop()

	link, err := linkRepo.ByCode(context.Background(), "drain12")
	require.NoError(t, err)
	require.Equal(t, int64(50), link.VisitCount)
}

func TestRebuildPopularity(t *testing.T) {
	acc, linkRepo, _, linkCache := newTestAccumulator(t, config.StatsConfig{
		QueueSize:   8,
		Workers:     1,
		RebuildSize: 10,
	})

	ctx := context.Background()
	now := utils.UTCNow()
	for i, code := range []string{"aaa1111", "bbb2222", "ccc3333"} {
		link := seedLink(t, linkRepo, code)
		for j := 0; j <= i; j++ {
			require.NoError(t, linkRepo.IncrementVisit(ctx, link.Code, now))
		}
	}
	// a never-visited link must not appear in the ranking
	seedLink(t, linkRepo, "ddd4444")

	require.NoError(t, acc.RebuildPopularity(ctx))

	entries, err := linkCache.TopPopular(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "ccc3333", entries[0].Code)
	require.Equal(t, int64(3), entries[0].Count)
	require.Equal(t, "bbb2222", entries[1].Code)
	require.Equal(t, "aaa1111", entries[2].Code)
}

func TestSweepExpiredDisablesLinks(t *testing.T) {
	acc, linkRepo, _, linkCache := newTestAccumulator(t, config.StatsConfig{
		QueueSize:   8,
		Workers:     1,
		RebuildSize: 10,
	})

	ctx := context.Background()
	now := utils.UTCNow()

	expired := &models.Link{
		Code:      "old1234",
		TargetURL: "https://example.com/old1234",
		OwnerID:   1,
		IsActive:  utils.ToPtr(true),
		ExpiresAt: utils.ToPtr(now.Add(-time.Minute)),
	}
	require.NoError(t, linkRepo.Save(ctx, expired))
	require.NoError(t, linkRepo.IncrementVisit(ctx, expired.Code, now))

	live := seedLink(t, linkRepo, "new1234")
	require.NoError(t, linkRepo.IncrementVisit(ctx, live.Code, now))

	require.NoError(t, acc.SweepExpired(ctx))
	require.NoError(t, acc.RebuildPopularity(ctx))

	entries, err := linkCache.TopPopular(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "new1234", entries[0].Code)

	row, err := linkRepo.ByCode(ctx, expired.Code)
	require.NoError(t, err)
	require.False(t, utils.IsTrue(row.IsActive))
}

func TestAccumulatorUpdatesPopularityScores(t *testing.T) {
	acc, linkRepo, _, linkCache := newTestAccumulator(t, config.StatsConfig{
		QueueSize: 64,
		Workers:   2,
	})
	seedLink(t, linkRepo, "hot1234")

	stop := acc.Start(context.Background())
	for i := 0; i < 5; i++ {
		require.True(t, acc.Record("hot1234", utils.UTCNow(), nil, nil))
	}
	stop()

	entries, err := linkCache.TopPopular(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "hot1234", entries[0].Code)
	require.Equal(t, int64(5), entries[0].Count)
}
