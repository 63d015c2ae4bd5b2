package tests

import (
	"errors"
	"testing"
	"time"

	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	testingutil "github.com/amirphl/Kusanagi/testing"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB provisions a throwaway database or skips when PostgreSQL is not
// reachable, so the suite still runs in environments without a database.
func setupTestDB(t *testing.T) *testingutil.TestDB {
	t.Helper()
	testDB, err := testingutil.SetupTestDB()
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	t.Cleanup(func() {
		if err := testDB.TeardownTestDB(); err != nil {
			t.Logf("Warning: failed to cleanup test database: %v", err)
		}
	})
	return testDB
}

func TestLinkRepository(t *testing.T) {
	testDB := setupTestDB(t)
	repo := repository.NewLinkRepository(testDB.DB)
	fixtures := testingutil.NewTestFixtures(testDB)
	ctx := testingutil.CreateTestContext()

	t.Run("Save", func(t *testing.T) {
		link, err := fixtures.CreateTestLink(1)
		require.NoError(t, err)
		assert.NotZero(t, link.ID)
		assert.NotEqual(t, uuid.Nil, link.UUID)

		// a second fixture row must not collide on the uuid unique index
		_, err = fixtures.CreateTestLink(1)
		require.NoError(t, err)
	})

	t.Run("SaveDuplicateCode", func(t *testing.T) {
		_, err := fixtures.CreateTestLinkWithCode(1, "dup1234", "https://example.com/a")
		require.NoError(t, err)

		link := &models.Link{
			Code:      "dup1234",
			TargetURL: "https://example.com/b",
			OwnerID:   2,
			IsActive:  utils.ToPtr(true),
		}
		err = repo.Save(ctx, link)
		assert.True(t, errors.Is(err, repository.ErrDuplicateCode))
	})

	t.Run("ByCode", func(t *testing.T) {
		original, err := fixtures.CreateTestLink(1)
		require.NoError(t, err)

		link, err := repo.ByCode(ctx, original.Code)
		require.NoError(t, err)
		require.NotNil(t, link)
		assert.Equal(t, original.ID, link.ID)
		assert.Equal(t, original.TargetURL, link.TargetURL)
	})

	t.Run("ByCodeNotFound", func(t *testing.T) {
		link, err := repo.ByCode(ctx, "missing1")
		assert.NoError(t, err)
		assert.Nil(t, link)
	})

	t.Run("SetActive", func(t *testing.T) {
		original, err := fixtures.CreateTestLink(1)
		require.NoError(t, err)

		updated, err := repo.SetActive(ctx, original.Code, false)
		require.NoError(t, err)
		assert.True(t, updated)

		link, err := repo.ByCode(ctx, original.Code)
		require.NoError(t, err)
		assert.False(t, utils.IsTrue(link.IsActive))

		updated, err = repo.SetActive(ctx, "missing1", false)
		require.NoError(t, err)
		assert.False(t, updated)
	})

	t.Run("IncrementVisit", func(t *testing.T) {
		original, err := fixtures.CreateTestLink(1)
		require.NoError(t, err)

		now := utils.UTCNow()
		for i := 0; i < 3; i++ {
			require.NoError(t, repo.IncrementVisit(ctx, original.Code, now))
		}

		link, err := repo.ByCode(ctx, original.Code)
		require.NoError(t, err)
		assert.Equal(t, int64(3), link.VisitCount)
		require.NotNil(t, link.LastVisitedAt)
		assert.WithinDuration(t, now, *link.LastVisitedAt, time.Second)

		err = repo.IncrementVisit(ctx, "missing1", now)
		assert.Error(t, err)
	})

	t.Run("IncrementVisitKeepsLatestTimestamp", func(t *testing.T) {
		original, err := fixtures.CreateTestLink(1)
		require.NoError(t, err)

		later := utils.UTCNow()
		earlier := later.Add(-time.Hour)

		require.NoError(t, repo.IncrementVisit(ctx, original.Code, later))
		// an out-of-order visit must not move the last-visited timestamp back
		require.NoError(t, repo.IncrementVisit(ctx, original.Code, earlier))

		link, err := repo.ByCode(ctx, original.Code)
		require.NoError(t, err)
		assert.Equal(t, int64(2), link.VisitCount)
		assert.WithinDuration(t, later, *link.LastVisitedAt, time.Second)
	})

	t.Run("TopByVisits", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())

		now := utils.UTCNow()
		linkA, err := fixtures.CreateTestLinkWithCode(1, "top1111", "https://example.com/a")
		require.NoError(t, err)
		linkB, err := fixtures.CreateTestLinkWithCode(1, "top2222", "https://example.com/b")
		require.NoError(t, err)
		linkC, err := fixtures.CreateTestLinkWithCode(1, "top3333", "https://example.com/c")
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			require.NoError(t, repo.IncrementVisit(ctx, linkB.Code, now))
		}
		require.NoError(t, repo.IncrementVisit(ctx, linkA.Code, now))

		// disabled links are excluded from the ranking
		_, err = repo.SetActive(ctx, linkC.Code, false)
		require.NoError(t, err)
		require.NoError(t, repo.IncrementVisit(ctx, linkC.Code, now))

		rows, err := repo.TopByVisits(ctx, 10)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, linkB.Code, rows[0].Code)
		assert.Equal(t, linkA.Code, rows[1].Code)
	})

	t.Run("ByOwnerAndCount", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())

		for i := 0; i < 4; i++ {
			_, err := fixtures.CreateTestLink(7)
			require.NoError(t, err)
		}
		_, err := fixtures.CreateTestLink(8)
		require.NoError(t, err)

		ownerID := uint(7)
		count, err := repo.Count(ctx, models.LinkFilter{OwnerID: &ownerID})
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)

		rows, err := repo.ByOwner(ctx, 7, 3, 0)
		require.NoError(t, err)
		assert.Len(t, rows, 3)

		rows, err = repo.ByOwner(ctx, 7, 3, 3)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("DeactivateExpired", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())

		expired := &models.Link{
			UUID:      uuid.New(),
			Code:      "exp1234",
			TargetURL: "https://example.com/exp",
			OwnerID:   1,
			IsActive:  utils.ToPtr(true),
			ExpiresAt: utils.ToPtr(utils.UTCNow().Add(-time.Hour)),
		}
		require.NoError(t, repo.Save(ctx, expired))
		_, err := fixtures.CreateTestLinkWithCode(1, "live123", "https://example.com/live")
		require.NoError(t, err)

		swept, err := repo.DeactivateExpired(ctx, utils.UTCNow())
		require.NoError(t, err)
		assert.Equal(t, int64(1), swept)

		row, err := repo.ByCode(ctx, "exp1234")
		require.NoError(t, err)
		assert.False(t, utils.IsTrue(row.IsActive))

		row, err = repo.ByCode(ctx, "live123")
		require.NoError(t, err)
		assert.True(t, utils.IsTrue(row.IsActive))
	})

	t.Run("SumVisits", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())

		now := utils.UTCNow()
		linkA, err := fixtures.CreateTestLink(9)
		require.NoError(t, err)
		linkB, err := fixtures.CreateTestLink(9)
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			require.NoError(t, repo.IncrementVisit(ctx, linkA.Code, now))
		}
		require.NoError(t, repo.IncrementVisit(ctx, linkB.Code, now))

		total, err := repo.SumVisits(ctx, 9)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)

		total, err = repo.SumVisits(ctx, 99)
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestVisitRecordRepository(t *testing.T) {
	testDB := setupTestDB(t)
	repo := repository.NewVisitRecordRepository(testDB.DB)
	fixtures := testingutil.NewTestFixtures(testDB)
	ctx := testingutil.CreateTestContext()

	t.Run("SaveAndCount", func(t *testing.T) {
		link, err := fixtures.CreateTestLink(1)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := fixtures.CreateTestVisit(link)
			require.NoError(t, err)
		}

		count, err := repo.CountByCode(ctx, link.Code)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		count, err = repo.CountByCode(ctx, "missing1")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("LastVisit", func(t *testing.T) {
		link, err := fixtures.CreateTestLink(1)
		require.NoError(t, err)

		first := &models.VisitRecord{
			LinkID:    link.ID,
			Code:      link.Code,
			VisitedAt: utils.UTCNow().Add(-time.Hour),
		}
		require.NoError(t, repo.Save(ctx, first))

		second := &models.VisitRecord{
			LinkID:    link.ID,
			Code:      link.Code,
			VisitedAt: utils.UTCNow(),
			UserAgent: utils.ToPtr("latest-agent"),
		}
		require.NoError(t, repo.Save(ctx, second))

		last, err := repo.LastVisit(ctx, link.Code)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, second.ID, last.ID)

		last, err = repo.LastVisit(ctx, "missing1")
		require.NoError(t, err)
		assert.Nil(t, last)
	})
}
