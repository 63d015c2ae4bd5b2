// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/Kusanagi/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// ErrDuplicateCode is returned when an insert collides with an existing short code.
// The unique index on links.code is the sole concurrency control for creation.
var ErrDuplicateCode = errors.New("short code already exists")

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// LinkRepository defines operations for short link records.
// ByCode returns (nil, nil) when no link exists for the code.
// IncrementVisit must be atomic under concurrent callers.
type LinkRepository interface {
	Repository[models.Link, models.LinkFilter]
	ByCode(ctx context.Context, code string) (*models.Link, error)
	ByOwner(ctx context.Context, ownerID uint, limit, offset int) ([]*models.Link, error)
	SetActive(ctx context.Context, code string, active bool) (bool, error)
	IncrementVisit(ctx context.Context, code string, visitedAt time.Time) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	TopByVisits(ctx context.Context, n int) ([]*models.Link, error)
	SumVisits(ctx context.Context, ownerID uint) (int64, error)
}

// VisitRecordRepository defines operations for visit records (append-only)
type VisitRecordRepository interface {
	Repository[models.VisitRecord, models.VisitRecordFilter]
	CountByCode(ctx context.Context, code string) (int64, error)
	LastVisit(ctx context.Context, code string) (*models.VisitRecord, error)
}
