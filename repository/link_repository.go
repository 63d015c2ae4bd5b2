package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/Kusanagi/models"
	"gorm.io/gorm"
)

// LinkRepositoryImpl implements LinkRepository on PostgreSQL via gorm
type LinkRepositoryImpl struct {
	*BaseRepository[models.Link, models.LinkFilter]
}

func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &LinkRepositoryImpl{BaseRepository: NewBaseRepository[models.Link, models.LinkFilter](db)}
}

// Save inserts a link, mapping unique-index violations on code to ErrDuplicateCode.
// Requires gorm error translation to be enabled on the connection.
func (r *LinkRepositoryImpl) Save(ctx context.Context, link *models.Link) error {
	err := r.BaseRepository.Save(ctx, link)
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("code %q: %w", link.Code, ErrDuplicateCode)
	}
	return err
}

func (r *LinkRepositoryImpl) ByCode(ctx context.Context, code string) (*models.Link, error) {
	db := r.getDB(ctx)
	var row models.Link
	if err := db.Where("code = ?", code).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *LinkRepositoryImpl) ByOwner(ctx context.Context, ownerID uint, limit, offset int) ([]*models.Link, error) {
	return r.ByFilter(ctx, models.LinkFilter{OwnerID: &ownerID}, "created_at DESC", limit, offset)
}

// SetActive toggles the active flag; returns false when no link matches the code.
func (r *LinkRepositoryImpl) SetActive(ctx context.Context, code string, active bool) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Link{}).
		Where("code = ?", code).
		Updates(map[string]any{"is_active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementVisit bumps the visit counter with a single atomic UPDATE.
// Concurrent increments never lose updates; last_visited_at keeps the latest timestamp.
func (r *LinkRepositoryImpl) IncrementVisit(ctx context.Context, code string, visitedAt time.Time) error {
	db := r.getDB(ctx)
	res := db.Model(&models.Link{}).
		Where("code = ?", code).
		Updates(map[string]any{
			"visit_count":     gorm.Expr("visit_count + 1"),
			"last_visited_at": gorm.Expr("GREATEST(COALESCE(last_visited_at, 'epoch'::timestamptz), ?)", visitedAt),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TopByVisits returns the n most visited active links, ties broken by most recent visit.
// This is the authoritative source the popularity cache is rebuilt from.
func (r *LinkRepositoryImpl) TopByVisits(ctx context.Context, n int) ([]*models.Link, error) {
	db := r.getDB(ctx)
	var rows []*models.Link
	err := db.Model(&models.Link{}).
		Where("is_active = ?", true).
		Order("visit_count DESC, last_visited_at DESC NULLS LAST").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DeactivateExpired disables every active link whose expiry has passed and
// returns how many rows were updated.
func (r *LinkRepositoryImpl) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Link{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Updates(map[string]any{"is_active": false, "updated_at": now})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *LinkRepositoryImpl) SumVisits(ctx context.Context, ownerID uint) (int64, error) {
	db := r.getDB(ctx)
	var total *int64
	err := db.Model(&models.Link{}).
		Where("owner_id = ?", ownerID).
		Select("SUM(visit_count)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (r *LinkRepositoryImpl) applyFilter(db *gorm.DB, f models.LinkFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.Code != nil {
		db = db.Where("code = ?", *f.Code)
	}
	if f.OwnerID != nil {
		db = db.Where("owner_id = ?", *f.OwnerID)
	}
	if f.ProjectID != nil {
		db = db.Where("project_id = ?", *f.ProjectID)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *LinkRepositoryImpl) ByFilter(ctx context.Context, filter models.LinkFilter, orderBy string, limit, offset int) ([]*models.Link, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Link{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Link
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *LinkRepositoryImpl) Count(ctx context.Context, filter models.LinkFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Link{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *LinkRepositoryImpl) Exists(ctx context.Context, filter models.LinkFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
