package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/domain/shared/valueobject"
	"github.com/postcard/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB opens an in-memory sqlite database with every model migrated.
// One connection keeps the in-memory database shared across queries.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newTestCampaign(t *testing.T, tenantID uuid.UUID, name string) *campaign.Campaign {
	t.Helper()
	c, err := campaign.NewCampaign(tenantID, name, campaign.MailClassFirstClass, campaign.DefaultMailSize)
	require.NoError(t, err)
	return c
}

func TestGormCampaignRepository_SaveAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormCampaignRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	c := newTestCampaign(t, tenantID, "Spring promo")
	require.NoError(t, c.SetArtwork(
		campaign.Artwork{Kind: campaign.ArtworkKindPDFURL, URL: "https://cdn.example.com/f.pdf"},
		campaign.Artwork{Kind: campaign.ArtworkKindHTML, HTML: "<p>{{name}}</p>"},
	))
	require.NoError(t, c.SetReturnAddress("Acme", valueobject.MustNewPostalAddress("1 Main St", "Springfield", "IL", "62701")))
	require.NoError(t, repo.Save(ctx, c))

	t.Run("finds within tenant", func(t *testing.T) {
		found, err := repo.FindByIDForTenant(ctx, tenantID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Spring promo", found.Name)
		assert.Equal(t, campaign.CampaignStatusDraft, found.Status)
		assert.Equal(t, c.Back, found.Back)
		assert.Equal(t, "Springfield", found.FromAddress.City())
	})

	t.Run("other tenant gets not found", func(t *testing.T) {
		_, err := repo.FindByIDForTenant(ctx, uuid.New(), c.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("save updates existing row", func(t *testing.T) {
		require.NoError(t, c.UpdateDetails("Summer promo", "updated"))
		require.NoError(t, repo.Save(ctx, c))

		found, err := repo.FindByIDForTenant(ctx, tenantID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Summer promo", found.Name)
		assert.Equal(t, "updated", found.Description)
	})
}

func TestGormCampaignRepository_ListAndCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormCampaignRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		require.NoError(t, repo.Save(ctx, newTestCampaign(t, tenantID, name)))
	}
	require.NoError(t, repo.Save(ctx, newTestCampaign(t, uuid.New(), "Other tenant")))

	filter := shared.DefaultFilter()
	filter.OrderBy = "name"
	filter.OrderDir = "asc"
	filter.PageSize = 2

	page, err := repo.FindAllForTenant(ctx, tenantID, filter)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "Alpha", page[0].Name)

	total, err := repo.CountForTenant(ctx, tenantID, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	filter.Search = "rav"
	total, err = repo.CountForTenant(ctx, tenantID, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestGormCampaignRepository_FindDueScheduled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormCampaignRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	due := newTestCampaign(t, uuid.New(), "Due")
	require.NoError(t, due.Schedule(now.Add(time.Hour), now.Add(-24*time.Hour)))
	later := newTestCampaign(t, uuid.New(), "Later")
	require.NoError(t, later.Schedule(now.Add(48*time.Hour), now))
	draft := newTestCampaign(t, uuid.New(), "Draft")

	for _, c := range []*campaign.Campaign{due, later, draft} {
		require.NoError(t, repo.Save(ctx, c))
	}

	found, err := repo.FindDueScheduled(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, due.ID, found[0].ID)
}

func TestGormCampaignRepository_FindProcessing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormCampaignRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	stale := newTestCampaign(t, uuid.New(), "Stale")
	stale.Status = campaign.CampaignStatusProcessing
	staleAt := now.Add(-3 * time.Hour)
	stale.SentAt = &staleAt

	fresh := newTestCampaign(t, uuid.New(), "Fresh")
	fresh.Status = campaign.CampaignStatusProcessing
	freshAt := now.Add(-time.Minute)
	fresh.SentAt = &freshAt

	for _, c := range []*campaign.Campaign{stale, fresh, newTestCampaign(t, uuid.New(), "Draft")} {
		require.NoError(t, repo.Save(ctx, c))
	}

	found, err := repo.FindProcessing(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stale.ID, found[0].ID)
}

func TestGormCampaignRepository_SaveRollup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormCampaignRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	c := newTestCampaign(t, tenantID, "Rollup")
	c.Status = campaign.CampaignStatusCompleted
	c.CompletedAt = &now
	c.ChargedAt = &now
	require.NoError(t, repo.Save(ctx, c))

	stale := *c
	stale.Status = campaign.CampaignStatusProcessing
	stale.CompletedAt = nil
	stale.ChargedAt = nil
	require.NoError(t, stale.ApplyRollup(campaign.Rollup{RecipientCount: 3, SentCount: 2, FailedCount: 1, DeliveredCount: 1, ActualCost: 120}))
	require.NoError(t, repo.SaveRollup(ctx, &stale))

	found, err := repo.FindByIDForTenant(ctx, tenantID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.CampaignStatusCompleted, found.Status, "status untouched")
	assert.NotNil(t, found.CompletedAt)
	assert.True(t, found.IsCharged())
	assert.Equal(t, 3, found.RecipientCount)
	assert.Equal(t, 2, found.SentCount)
	assert.Equal(t, 1, found.FailedCount)
	assert.Equal(t, 1, found.DeliveredCount)
	assert.Equal(t, int64(120), found.ActualCost)

	other := *c
	other.TenantID = uuid.New()
	assert.ErrorIs(t, repo.SaveRollup(ctx, &other), shared.ErrNotFound)
}
