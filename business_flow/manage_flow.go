package businessflow

import (
	"context"
	"log"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/cache"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
)

// ManageFlow covers owner-facing link management: listing and the soft
// enable/disable toggle. Links are never physically deleted while visit
// records reference them.
type ManageFlow interface {
	ListByOwner(ctx context.Context, ownerID uint, page, pageSize int) (*dto.ListLinksResponse, error)
	SetActive(ctx context.Context, code string, ownerID uint, active bool) (*dto.ShortenResponse, error)
}

type ManageFlowImpl struct {
	linkRepo  repository.LinkRepository
	linkCache cache.LinkCache
}

func NewManageFlow(linkRepo repository.LinkRepository, linkCache cache.LinkCache) ManageFlow {
	return &ManageFlowImpl{linkRepo: linkRepo, linkCache: linkCache}
}

func (f *ManageFlowImpl) ListByOwner(ctx context.Context, ownerID uint, page, pageSize int) (*dto.ListLinksResponse, error) {
	if ownerID == 0 {
		return nil, NewBusinessError("VALIDATION_ERROR", "Owner is required", ErrOwnerIDRequired)
	}
	if page < 1 {
		return nil, NewBusinessError("VALIDATION_ERROR", "Invalid page", ErrInvalidPage)
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, NewBusinessError("VALIDATION_ERROR", "Invalid page size", ErrInvalidPageSize)
	}

	total, err := f.linkRepo.Count(ctx, models.LinkFilter{OwnerID: &ownerID})
	if err != nil {
		return nil, NewBusinessError("LIST_LINKS_FAILED", "Failed to count links", err)
	}
	rows, err := f.linkRepo.ByOwner(ctx, ownerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("LIST_LINKS_FAILED", "Failed to list links", err)
	}

	items := make([]dto.LinkDTO, 0, len(rows))
	for _, r := range rows {
		items = append(items, mapLinkDTO(r))
	}
	return &dto.ListLinksResponse{
		Message: "Links retrieved",
		Items:   items,
		Page:    page,
		Total:   total,
	}, nil
}

// SetActive toggles the active flag and invalidates the cache entry so the
// change is visible to redirects immediately, not after TTL expiry.
func (f *ManageFlowImpl) SetActive(ctx context.Context, code string, ownerID uint, active bool) (*dto.ShortenResponse, error) {
	if ownerID == 0 {
		return nil, NewBusinessError("VALIDATION_ERROR", "Owner is required", ErrOwnerIDRequired)
	}
	link, err := f.linkRepo.ByCode(ctx, code)
	if err != nil {
		return nil, NewBusinessError("LINK_LOOKUP_FAILED", "Failed to look up short link", err)
	}
	if link == nil {
		return nil, ErrCodeNotFound
	}
	if link.OwnerID != ownerID {
		return nil, ErrLinkAccessDenied
	}

	updated, err := f.linkRepo.SetActive(ctx, code, active)
	if err != nil {
		return nil, NewBusinessError("SET_ACTIVE_FAILED", "Failed to update link", err)
	}
	if !updated {
		return nil, ErrCodeNotFound
	}

	if f.linkCache != nil {
		if err := f.linkCache.Invalidate(ctx, code); err != nil {
			log.Println("Failed to invalidate link cache", code, err)
		}
	}

	a := active
	link.IsActive = &a
	return &dto.ShortenResponse{
		Message: "Link updated",
		Link:    mapLinkDTO(link),
	}, nil
}
