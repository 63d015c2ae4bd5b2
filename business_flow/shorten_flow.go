package businessflow

import (
	"context"
	"errors"
	"log"
	"net/url"
	"time"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/cache"
	"github.com/amirphl/Kusanagi/codegen"
	"github.com/amirphl/Kusanagi/config"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/google/uuid"
)

// ShortenFlow creates short links for authenticated owners.
// A link is acknowledged only after it is durably stored; the cache seed that
// follows is best effort.
type ShortenFlow interface {
	Shorten(ctx context.Context, ownerID uint, req *dto.ShortenRequest) (*dto.ShortenResponse, error)
}

type ShortenFlowImpl struct {
	linkRepo  repository.LinkRepository
	linkCache cache.LinkCache
	gen       codegen.Generator
	cfg       config.ShortenerConfig
	cacheCfg  config.CacheConfig
}

func NewShortenFlow(
	linkRepo repository.LinkRepository,
	linkCache cache.LinkCache,
	gen codegen.Generator,
	cfg config.ShortenerConfig,
	cacheCfg config.CacheConfig,
) ShortenFlow {
	return &ShortenFlowImpl{
		linkRepo:  linkRepo,
		linkCache: linkCache,
		gen:       gen,
		cfg:       cfg,
		cacheCfg:  cacheCfg,
	}
}

func (s *ShortenFlowImpl) Shorten(ctx context.Context, ownerID uint, req *dto.ShortenRequest) (*dto.ShortenResponse, error) {
	if req == nil {
		return nil, NewBusinessError("VALIDATION_ERROR", "Request body is required", nil)
	}
	if ownerID == 0 {
		return nil, NewBusinessError("VALIDATION_ERROR", "Owner is required", ErrOwnerIDRequired)
	}
	if err := validateTargetURL(req.TargetURL); err != nil {
		return nil, NewBusinessError("INVALID_TARGET_URL", "Target URL must be an absolute http(s) URL", err)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(utils.UTCNow()) {
		return nil, NewBusinessError("INVALID_EXPIRY", "Expiry must be in the future", ErrInvalidExpiry)
	}

	link := &models.Link{
		UUID:      uuid.New(),
		TargetURL: req.TargetURL,
		OwnerID:   ownerID,
		ProjectID: req.ProjectID,
		IsActive:  utils.ToPtr(true),
		ExpiresAt: req.ExpiresAt,
		CreatedAt: utils.UTCNow(),
		UpdatedAt: utils.UTCNow(),
	}

	if req.CustomAlias != "" {
		if !s.cfg.AllowAlias {
			return nil, NewBusinessError("ALIAS_NOT_ALLOWED", "Custom aliases are disabled", ErrInvalidAlias)
		}
		if !codegen.Valid(req.CustomAlias, utils.MinCodeLength, utils.MaxCodeLength) {
			return nil, NewBusinessError("INVALID_ALIAS", "Custom alias has an invalid format", ErrInvalidAlias)
		}
		link.Code = req.CustomAlias
		if err := s.linkRepo.Save(ctx, link); err != nil {
			if errors.Is(err, repository.ErrDuplicateCode) {
				return nil, NewBusinessError("ALIAS_TAKEN", "Custom alias already exists", ErrAliasTaken)
			}
			return nil, NewBusinessError("CREATE_LINK_FAILED", "Failed to create short link", err)
		}
	} else {
		if err := s.saveWithGeneratedCode(ctx, link); err != nil {
			return nil, err
		}
	}

	s.seedCache(ctx, link)

	return &dto.ShortenResponse{
		Message: "Short link created",
		Link:    mapLinkDTO(link),
	}, nil
}

// saveWithGeneratedCode retries generation on duplicate-key collisions up to
// the configured cap. The store's unique index is the only arbiter of
// uniqueness, so concurrent creators can never both succeed with one code.
func (s *ShortenFlowImpl) saveWithGeneratedCode(ctx context.Context, link *models.Link) error {
	attempts := s.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		code, err := s.gen.Generate()
		if err != nil {
			return NewBusinessError("CODE_GENERATION_FAILED", "Failed to generate short code", err)
		}
		link.Code = code
		err = s.linkRepo.Save(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateCode) {
			return NewBusinessError("CREATE_LINK_FAILED", "Failed to create short link", err)
		}
	}
	return NewBusinessError("EXHAUSTED_RETRIES", "Could not find a free short code", ErrExhaustedRetries)
}

func (s *ShortenFlowImpl) seedCache(ctx context.Context, link *models.Link) {
	if s.linkCache == nil {
		return
	}
	if err := s.linkCache.Put(ctx, link, entryTTL(link, s.cacheCfg.DefaultTTL)); err != nil {
		log.Println("Failed to seed link cache", link.Code, err)
	}
}

// entryTTL caps the cache TTL at the link's remaining lifetime so a cached
// entry can never outlive its expiry.
func entryTTL(link *models.Link, ttl time.Duration) time.Duration {
	if link.ExpiresAt == nil {
		return ttl
	}
	remaining := time.Until(*link.ExpiresAt)
	if remaining < ttl {
		return remaining
	}
	return ttl
}

func validateTargetURL(raw string) error {
	if raw == "" {
		return ErrInvalidTargetURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidTargetURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidTargetURL
	}
	return nil
}
