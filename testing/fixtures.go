// Package testing provides test utilities and database setup for testing the short link service
package testing

import (
	"fmt"
	"math/rand"

	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestLink creates a link owned by the given owner with a random code
func (tf *TestFixtures) CreateTestLink(ownerID uint) (*models.Link, error) {
	code := fmt.Sprintf("t%06d", rand.Intn(1000000))

	link := &models.Link{
		UUID:      uuid.New(),
		Code:      code,
		TargetURL: fmt.Sprintf("https://example.com/articles/%s", code),
		OwnerID:   ownerID,
		IsActive:  utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(link).Error; err != nil {
		return nil, fmt.Errorf("failed to create test link: %w", err)
	}

	return link, nil
}

// CreateTestLinkWithCode creates a link with an exact code
func (tf *TestFixtures) CreateTestLinkWithCode(ownerID uint, code, targetURL string) (*models.Link, error) {
	link := &models.Link{
		UUID:      uuid.New(),
		Code:      code,
		TargetURL: targetURL,
		OwnerID:   ownerID,
		IsActive:  utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(link).Error; err != nil {
		return nil, fmt.Errorf("failed to create test link %s: %w", code, err)
	}

	return link, nil
}

// CreateTestVisit creates a visit record for a link
func (tf *TestFixtures) CreateTestVisit(link *models.Link) (*models.VisitRecord, error) {
	visit := &models.VisitRecord{
		LinkID:    link.ID,
		Code:      link.Code,
		VisitedAt: utils.UTCNow(),
		UserAgent: utils.ToPtr("fixtures-agent"),
	}

	if err := tf.DB.DB.Create(visit).Error; err != nil {
		return nil, fmt.Errorf("failed to create test visit: %w", err)
	}

	return visit, nil
}
