package businessflow

import (
	"context"
	"errors"
	"log"

	"github.com/amirphl/Kusanagi/cache"
	"github.com/amirphl/Kusanagi/codegen"
	"github.com/amirphl/Kusanagi/config"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/amirphl/Kusanagi/utils"
)

// ResolveFlow resolves a short code to its target URL and records the visit.
// Lookup order is cache then store with write-through on miss; visit recording
// is fire-and-forget so the redirect never waits on the accounting write.
// Public flow, no authentication required.
type ResolveFlow interface {
	Resolve(ctx context.Context, code string, userAgent, ipHash *string) (string, error)
}

type ResolveFlowImpl struct {
	linkRepo  repository.LinkRepository
	linkCache cache.LinkCache
	recorder  VisitRecorder
	cacheCfg  config.CacheConfig
}

func NewResolveFlow(
	linkRepo repository.LinkRepository,
	linkCache cache.LinkCache,
	recorder VisitRecorder,
	cacheCfg config.CacheConfig,
) ResolveFlow {
	return &ResolveFlowImpl{
		linkRepo:  linkRepo,
		linkCache: linkCache,
		recorder:  recorder,
		cacheCfg:  cacheCfg,
	}
}

func (f *ResolveFlowImpl) Resolve(ctx context.Context, code string, userAgent, ipHash *string) (string, error) {
	// reject malformed codes before touching cache or store
	if !codegen.Valid(code, utils.MinCodeLength, utils.MaxCodeLength) {
		return "", ErrCodeNotFound
	}

	link := f.cacheLookup(ctx, code)
	if link == nil {
		var err error
		link, err = f.linkRepo.ByCode(ctx, code)
		if err != nil {
			return "", NewBusinessError("LINK_LOOKUP_FAILED", "Failed to look up short link", err)
		}
		if link == nil {
			return "", ErrCodeNotFound
		}
		if utils.IsTrue(link.IsActive) && !link.Expired(utils.UTCNow()) && f.linkCache != nil {
			// write-through so the next hit skips the store
			if err := f.linkCache.Put(ctx, link, entryTTL(link, f.cacheCfg.DefaultTTL)); err != nil {
				log.Println("Failed to fill link cache", code, err)
			}
		}
	}

	// expired links are gone, not missing, same as an explicit disable
	if !utils.IsTrue(link.IsActive) || link.Expired(utils.UTCNow()) {
		return "", ErrLinkDisabled
	}

	// Fire and forget: the redirect is returned without waiting for the
	// accounting write, and an enqueued visit outlives request cancellation.
	if f.recorder != nil {
		f.recorder.Record(code, utils.UTCNow(), userAgent, ipHash)
	}

	return link.TargetURL, nil
}

// cacheLookup returns nil on any cache failure; a slow or broken cache only
// costs one extra store round-trip.
func (f *ResolveFlowImpl) cacheLookup(ctx context.Context, code string) *models.Link {
	if f.linkCache == nil {
		return nil
	}
	link, err := f.linkCache.Get(ctx, code)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Println("Link cache lookup degraded to miss", code, err)
		}
		return nil
	}
	return link
}
