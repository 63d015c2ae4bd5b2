package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/Kusanagi/models"
	"gorm.io/gorm"
)

// MemoryLinkRepository is an in-memory LinkRepository used by tests and the
// single-process deployment profile. All methods are safe for concurrent use;
// the mutex serializes visit-count updates so increments are never lost.
type MemoryLinkRepository struct {
	mu     sync.RWMutex
	byID   map[uint]*models.Link
	byCode map[string]*models.Link
	lastID uint
}

func NewMemoryLinkRepository() *MemoryLinkRepository {
	return &MemoryLinkRepository{
		byID:   make(map[uint]*models.Link),
		byCode: make(map[string]*models.Link),
	}
}

func (r *MemoryLinkRepository) Save(ctx context.Context, link *models.Link) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byCode[link.Code]; exists {
		return fmt.Errorf("code %q: %w", link.Code, ErrDuplicateCode)
	}
	r.lastID++
	link.ID = r.lastID
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	link.UpdatedAt = link.CreatedAt
	cp := *link
	r.byID[cp.ID] = &cp
	r.byCode[cp.Code] = &cp
	return nil
}

func (r *MemoryLinkRepository) SaveBatch(ctx context.Context, links []*models.Link) error {
	for _, l := range links {
		if err := r.Save(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryLinkRepository) ByID(ctx context.Context, id uint) (*models.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *MemoryLinkRepository) ByCode(ctx context.Context, code string) (*models.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.byCode[code]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *MemoryLinkRepository) ByOwner(ctx context.Context, ownerID uint, limit, offset int) ([]*models.Link, error) {
	return r.ByFilter(ctx, models.LinkFilter{OwnerID: &ownerID}, "created_at DESC", limit, offset)
}

func (r *MemoryLinkRepository) SetActive(ctx context.Context, code string, active bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.byCode[code]
	if !ok {
		return false, nil
	}
	a := active
	row.IsActive = &a
	row.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryLinkRepository) IncrementVisit(ctx context.Context, code string, visitedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.byCode[code]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	row.VisitCount++
	if row.LastVisitedAt == nil || visitedAt.After(*row.LastVisitedAt) {
		t := visitedAt
		row.LastVisitedAt = &t
	}
	return nil
}

func (r *MemoryLinkRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var swept int64
	for _, row := range r.byCode {
		if row.IsActive != nil && *row.IsActive && row.Expired(now) {
			f := false
			row.IsActive = &f
			row.UpdatedAt = now
			swept++
		}
	}
	return swept, nil
}

func (r *MemoryLinkRepository) TopByVisits(ctx context.Context, n int) ([]*models.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	rows := make([]*models.Link, 0, len(r.byCode))
	for _, row := range r.byCode {
		if row.IsActive != nil && *row.IsActive {
			cp := *row
			rows = append(rows, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].VisitCount != rows[j].VisitCount {
			return rows[i].VisitCount > rows[j].VisitCount
		}
		return lastVisitAfter(rows[i].LastVisitedAt, rows[j].LastVisitedAt)
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

func (r *MemoryLinkRepository) SumVisits(ctx context.Context, ownerID uint) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, row := range r.byCode {
		if row.OwnerID == ownerID {
			total += row.VisitCount
		}
	}
	return total, nil
}

func (r *MemoryLinkRepository) ByFilter(ctx context.Context, filter models.LinkFilter, orderBy string, limit, offset int) ([]*models.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	rows := make([]*models.Link, 0)
	for _, row := range r.byID {
		if matchLinkFilter(row, filter) {
			cp := *row
			rows = append(rows, &cp)
		}
	}
	r.mu.RUnlock()

	// only the orderings the flows actually ask for
	switch orderBy {
	case "created_at DESC", "":
		sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	case "id DESC":
		sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	}
	if offset > 0 {
		if offset >= len(rows) {
			return nil, nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r *MemoryLinkRepository) Count(ctx context.Context, filter models.LinkFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (r *MemoryLinkRepository) Exists(ctx context.Context, filter models.LinkFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

func matchLinkFilter(row *models.Link, f models.LinkFilter) bool {
	if f.ID != nil && row.ID != *f.ID {
		return false
	}
	if f.UUID != nil && row.UUID != *f.UUID {
		return false
	}
	if f.Code != nil && row.Code != *f.Code {
		return false
	}
	if f.OwnerID != nil && row.OwnerID != *f.OwnerID {
		return false
	}
	if f.ProjectID != nil && (row.ProjectID == nil || *row.ProjectID != *f.ProjectID) {
		return false
	}
	if f.IsActive != nil && (row.IsActive == nil || *row.IsActive != *f.IsActive) {
		return false
	}
	if f.CreatedAfter != nil && row.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !row.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

func lastVisitAfter(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

// MemoryVisitRecordRepository is the in-memory counterpart of VisitRecordRepository
type MemoryVisitRecordRepository struct {
	mu     sync.RWMutex
	rows   []*models.VisitRecord
	lastID uint
}

func NewMemoryVisitRecordRepository() *MemoryVisitRecordRepository {
	return &MemoryVisitRecordRepository{}
}

func (r *MemoryVisitRecordRepository) Save(ctx context.Context, rec *models.VisitRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	rec.ID = r.lastID
	cp := *rec
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *MemoryVisitRecordRepository) SaveBatch(ctx context.Context, recs []*models.VisitRecord) error {
	for _, rec := range recs {
		if err := r.Save(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryVisitRecordRepository) ByID(ctx context.Context, id uint) (*models.VisitRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, row := range r.rows {
		if row.ID == id {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryVisitRecordRepository) CountByCode(ctx context.Context, code string) (int64, error) {
	return r.Count(ctx, models.VisitRecordFilter{Code: &code})
}

func (r *MemoryVisitRecordRepository) LastVisit(ctx context.Context, code string) (*models.VisitRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var last *models.VisitRecord
	for _, row := range r.rows {
		if row.Code != code {
			continue
		}
		if last == nil || row.VisitedAt.After(last.VisitedAt) {
			last = row
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (r *MemoryVisitRecordRepository) ByFilter(ctx context.Context, filter models.VisitRecordFilter, orderBy string, limit, offset int) ([]*models.VisitRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]*models.VisitRecord, 0)
	for _, row := range r.rows {
		if matchVisitFilter(row, filter) {
			cp := *row
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()

	if orderBy == "visited_at DESC" {
		sort.Slice(out, func(i, j int) bool { return out[i].VisitedAt.After(out[j].VisitedAt) })
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryVisitRecordRepository) Count(ctx context.Context, filter models.VisitRecordFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (r *MemoryVisitRecordRepository) Exists(ctx context.Context, filter models.VisitRecordFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

func matchVisitFilter(row *models.VisitRecord, f models.VisitRecordFilter) bool {
	if f.ID != nil && row.ID != *f.ID {
		return false
	}
	if f.LinkID != nil && row.LinkID != *f.LinkID {
		return false
	}
	if f.Code != nil && row.Code != *f.Code {
		return false
	}
	if f.VisitedAfter != nil && row.VisitedAt.Before(*f.VisitedAfter) {
		return false
	}
	if f.VisitedBefore != nil && !row.VisitedAt.Before(*f.VisitedBefore) {
		return false
	}
	return true
}
