package businessflow

import (
	"context"
	"log"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/cache"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/amirphl/Kusanagi/utils"
)

const maxPopularLimit = 100

// StatsFlow serves per-link statistics and the popularity ranking.
// Stats come from the store (the source of truth); the popular view is served
// from the cache with a store fallback that reseeds it.
type StatsFlow interface {
	Stats(ctx context.Context, code string, ownerID uint) (*dto.LinkStatsResponse, error)
	Popular(ctx context.Context, n int) (*dto.PopularResponse, error)
	Overview(ctx context.Context, ownerID uint) (*dto.OverviewResponse, error)
}

type StatsFlowImpl struct {
	linkRepo  repository.LinkRepository
	linkCache cache.LinkCache
}

func NewStatsFlow(linkRepo repository.LinkRepository, linkCache cache.LinkCache) StatsFlow {
	return &StatsFlowImpl{linkRepo: linkRepo, linkCache: linkCache}
}

func (s *StatsFlowImpl) Stats(ctx context.Context, code string, ownerID uint) (*dto.LinkStatsResponse, error) {
	if ownerID == 0 {
		return nil, NewBusinessError("VALIDATION_ERROR", "Owner is required", ErrOwnerIDRequired)
	}
	link, err := s.linkRepo.ByCode(ctx, code)
	if err != nil {
		return nil, NewBusinessError("LINK_LOOKUP_FAILED", "Failed to look up short link", err)
	}
	if link == nil {
		return nil, ErrCodeNotFound
	}
	if link.OwnerID != ownerID {
		// reported as not-found to avoid leaking code ownership
		return nil, ErrLinkAccessDenied
	}
	return &dto.LinkStatsResponse{
		Code:          link.Code,
		VisitCount:    link.VisitCount,
		LastVisitedAt: link.LastVisitedAt,
		ExpiresAt:     link.ExpiresAt,
	}, nil
}

func (s *StatsFlowImpl) Popular(ctx context.Context, n int) (*dto.PopularResponse, error) {
	if n < 1 {
		n = 10
	}
	if n > maxPopularLimit {
		n = maxPopularLimit
	}

	if s.linkCache != nil {
		entries, err := s.linkCache.TopPopular(ctx, n)
		if err == nil && len(entries) > 0 {
			return &dto.PopularResponse{
				Message: "Popular links retrieved from cache",
				Items:   mapPopularDTO(entries),
			}, nil
		}
		if err != nil {
			log.Println("Popularity cache read failed, falling back to store", err)
		}
	}

	// correctness fallback: recompute from durable counts and reseed the cache
	links, err := s.linkRepo.TopByVisits(ctx, n)
	if err != nil {
		return nil, NewBusinessError("POPULAR_LOOKUP_FAILED", "Failed to compute popular links", err)
	}
	entries := popularityFromLinks(links)
	if s.linkCache != nil && len(entries) > 0 {
		if err := s.linkCache.ReplacePopular(ctx, entries); err != nil {
			log.Println("Failed to reseed popularity cache", err)
		}
	}
	return &dto.PopularResponse{
		Message: "Popular links retrieved",
		Items:   mapPopularDTO(entries),
	}, nil
}

func (s *StatsFlowImpl) Overview(ctx context.Context, ownerID uint) (*dto.OverviewResponse, error) {
	if ownerID == 0 {
		return nil, NewBusinessError("VALIDATION_ERROR", "Owner is required", ErrOwnerIDRequired)
	}
	total, err := s.linkRepo.Count(ctx, models.LinkFilter{OwnerID: &ownerID})
	if err != nil {
		return nil, NewBusinessError("OVERVIEW_FAILED", "Failed to count links", err)
	}
	active, err := s.linkRepo.Count(ctx, models.LinkFilter{OwnerID: &ownerID, IsActive: utils.ToPtr(true)})
	if err != nil {
		return nil, NewBusinessError("OVERVIEW_FAILED", "Failed to count active links", err)
	}
	visits, err := s.linkRepo.SumVisits(ctx, ownerID)
	if err != nil {
		return nil, NewBusinessError("OVERVIEW_FAILED", "Failed to sum visits", err)
	}
	return &dto.OverviewResponse{
		TotalLinks:  total,
		TotalVisits: visits,
		ActiveLinks: active,
	}, nil
}

func popularityFromLinks(links []*models.Link) []cache.PopularityEntry {
	entries := make([]cache.PopularityEntry, 0, len(links))
	for _, l := range links {
		if l.VisitCount == 0 {
			continue
		}
		e := cache.PopularityEntry{Code: l.Code, Count: l.VisitCount}
		if l.LastVisitedAt != nil {
			e.LastVisit = *l.LastVisitedAt
		}
		entries = append(entries, e)
	}
	return entries
}

func mapPopularDTO(entries []cache.PopularityEntry) []dto.PopularEntryDTO {
	out := make([]dto.PopularEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.PopularEntryDTO{
			Code:       e.Code,
			VisitCount: e.Count,
			LastVisit:  e.LastVisit,
		})
	}
	return out
}
