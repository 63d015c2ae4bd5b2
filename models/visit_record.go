package models

import "time"

// VisitRecord represents a single visit to a short link
// We keep both LinkID and Code so aggregate queries never need a join
// UserAgent and IPHash capture visit-time context; rows are append-only
type VisitRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LinkID    uint      `gorm:"not null;index:idx_visit_records_link_id" json:"link_id"`
	Code      string    `gorm:"size:64;not null;index:idx_visit_records_code" json:"code"`
	VisitedAt time.Time `gorm:"not null;index:idx_visit_records_visited_at" json:"visited_at"`
	UserAgent *string   `gorm:"type:text" json:"user_agent,omitempty"`
	IPHash    *string   `gorm:"size:64" json:"ip_hash,omitempty"`
}

// TableName returns the table name for VisitRecord
func (VisitRecord) TableName() string { return "visit_records" }

// VisitRecordFilter provides filter fields for repository queries
type VisitRecordFilter struct {
	ID            *uint
	LinkID        *uint
	Code          *string
	VisitedAfter  *time.Time
	VisitedBefore *time.Time
}
