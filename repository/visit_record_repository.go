package repository

import (
	"context"
	"errors"

	"github.com/amirphl/Kusanagi/models"
	"gorm.io/gorm"
)

// VisitRecordRepositoryImpl implements VisitRecordRepository
type VisitRecordRepositoryImpl struct {
	*BaseRepository[models.VisitRecord, models.VisitRecordFilter]
}

func NewVisitRecordRepository(db *gorm.DB) VisitRecordRepository {
	return &VisitRecordRepositoryImpl{BaseRepository: NewBaseRepository[models.VisitRecord, models.VisitRecordFilter](db)}
}

func (r *VisitRecordRepositoryImpl) CountByCode(ctx context.Context, code string) (int64, error) {
	return r.Count(ctx, models.VisitRecordFilter{Code: &code})
}

func (r *VisitRecordRepositoryImpl) LastVisit(ctx context.Context, code string) (*models.VisitRecord, error) {
	db := r.getDB(ctx)
	var row models.VisitRecord
	err := db.Where("code = ?", code).Order("visited_at DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *VisitRecordRepositoryImpl) applyFilter(db *gorm.DB, f models.VisitRecordFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.LinkID != nil {
		db = db.Where("link_id = ?", *f.LinkID)
	}
	if f.Code != nil {
		db = db.Where("code = ?", *f.Code)
	}
	if f.VisitedAfter != nil {
		db = db.Where("visited_at >= ?", *f.VisitedAfter)
	}
	if f.VisitedBefore != nil {
		db = db.Where("visited_at < ?", *f.VisitedBefore)
	}
	return db
}

func (r *VisitRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.VisitRecordFilter, orderBy string, limit, offset int) ([]*models.VisitRecord, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.VisitRecord{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.VisitRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *VisitRecordRepositoryImpl) Count(ctx context.Context, filter models.VisitRecordFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.VisitRecord{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *VisitRecordRepositoryImpl) Exists(ctx context.Context, filter models.VisitRecordFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
