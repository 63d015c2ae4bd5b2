package dto

import "time"

// ShortenRequest defines input for creating a short link.
// CustomAlias, when present, is used verbatim as the short code after format
// and uniqueness checks.
type ShortenRequest struct {
	TargetURL   string     `json:"target_url" validate:"required,max=2048"`
	ProjectID   *uint      `json:"project_id,omitempty"`
	CustomAlias string     `json:"custom_alias,omitempty" validate:"omitempty,min=4,max=10,alphanum"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// LinkDTO is the client-facing shape of a short link
type LinkDTO struct {
	UUID          string     `json:"uuid"`
	Code          string     `json:"code"`
	TargetURL     string     `json:"target_url"`
	ProjectID     *uint      `json:"project_id,omitempty"`
	IsActive      bool       `json:"is_active"`
	VisitCount    int64      `json:"visit_count"`
	LastVisitedAt *time.Time `json:"last_visited_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ShortenResponse struct {
	Message string  `json:"message"`
	Link    LinkDTO `json:"link"`
}

type ListLinksResponse struct {
	Message string    `json:"message"`
	Items   []LinkDTO `json:"items"`
	Page    int       `json:"page"`
	Total   int64     `json:"total"`
}

// LinkStatsResponse carries per-link visit statistics
type LinkStatsResponse struct {
	Code          string     `json:"code"`
	VisitCount    int64      `json:"visit_count"`
	LastVisitedAt *time.Time `json:"last_visited_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// PopularEntryDTO is one row of the popularity ranking
type PopularEntryDTO struct {
	Code       string    `json:"code"`
	VisitCount int64     `json:"visit_count"`
	LastVisit  time.Time `json:"last_visit"`
}

type PopularResponse struct {
	Message string            `json:"message"`
	Items   []PopularEntryDTO `json:"items"`
}

// OverviewResponse aggregates an owner's links
type OverviewResponse struct {
	TotalLinks  int64 `json:"total_links"`
	TotalVisits int64 `json:"total_visits"`
	ActiveLinks int64 `json:"active_links"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}
