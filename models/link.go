package models

import (
	"time"

	"github.com/google/uuid"
)

// Link represents a shortened link record
// Code is the short unique token that maps to the target URL
// OwnerID references the authenticated owner (opaque, issued by the auth layer)
// ProjectID is an optional grouping reference (no FK, validated elsewhere)
// VisitCount is maintained with an atomic SQL increment, never read-modify-write
type Link struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UUID          uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_links_uuid" json:"uuid"`
	Code          string     `gorm:"size:64;not null;uniqueIndex:uk_links_code" json:"code"`
	TargetURL     string     `gorm:"type:text;not null" json:"target_url"`
	OwnerID       uint       `gorm:"not null;index:idx_links_owner_id" json:"owner_id"`
	ProjectID     *uint      `gorm:"index:idx_links_project_id" json:"project_id,omitempty"`
	IsActive      *bool      `gorm:"not null;default:true" json:"is_active"`
	VisitCount    int64      `gorm:"not null;default:0" json:"visit_count"`
	LastVisitedAt *time.Time `gorm:"index:idx_links_last_visited_at" json:"last_visited_at,omitempty"`
	ExpiresAt     *time.Time `gorm:"index:idx_links_expires_at" json:"expires_at,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_links_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for Link
func (Link) TableName() string { return "links" }

// Expired reports whether the link's expiry, if set, has passed
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// LinkFilter provides filter fields for repository queries
type LinkFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	Code          *string
	OwnerID       *uint
	ProjectID     *uint
	IsActive      *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
