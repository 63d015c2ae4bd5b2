package businessflow

import (
	"time"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
)

// VisitRecorder accepts visit events for asynchronous recording.
// Record must never block; it reports whether the event was accepted.
// An accepted event survives cancellation of the enqueuing request.
type VisitRecorder interface {
	Record(code string, visitedAt time.Time, userAgent, ipHash *string) bool
}

func mapLinkDTO(m *models.Link) dto.LinkDTO {
	return dto.LinkDTO{
		UUID:          m.UUID.String(),
		Code:          m.Code,
		TargetURL:     m.TargetURL,
		ProjectID:     m.ProjectID,
		IsActive:      utils.IsTrue(m.IsActive),
		VisitCount:    m.VisitCount,
		LastVisitedAt: m.LastVisitedAt,
		ExpiresAt:     m.ExpiresAt,
		CreatedAt:     m.CreatedAt,
	}
}
