package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recipientEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestRecipient(t *testing.T, tenantID, campaignID uuid.UUID, i int) *campaign.Recipient {
	t.Helper()
	r, err := campaign.NewRecipient(tenantID, campaignID, campaign.RecipientInput{
		Name:    fmt.Sprintf("Recipient %d", i),
		Address: valueobject.MustNewPostalAddress(fmt.Sprintf("%d Main St", i+1), "Austin", "TX", "73301"),
		Email:   fmt.Sprintf("r%d@example.com", i),
	})
	require.NoError(t, err)
	r.CreatedAt = recipientEpoch.Add(time.Duration(i) * time.Second)
	return r
}

func markSent(t *testing.T, r *campaign.Recipient, vendorID string, cost int64) {
	t.Helper()
	require.NoError(t, r.MarkSending())
	require.NoError(t, r.MarkSent(campaign.SentDetails{VendorObjectID: vendorID, Cost: cost}, time.Now()))
}

func TestGormRecipientRepository_FindSendable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRecipientRepository(db)
	ctx := context.Background()
	tenantID, campaignID := uuid.New(), uuid.New()

	var batch []*campaign.Recipient
	for i := 0; i < 4; i++ {
		batch = append(batch, newTestRecipient(t, tenantID, campaignID, i))
	}
	batch[1].ApplySuppression(true, "recent order")
	markSent(t, batch[3], "psc_sent", 87)
	require.NoError(t, repo.SaveBatch(ctx, batch))

	t.Run("excludes suppressed and non-pending in creation order", func(t *testing.T) {
		found, err := repo.FindSendable(ctx, tenantID, campaignID, false)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, batch[0].ID, found[0].ID)
		assert.Equal(t, batch[2].ID, found[1].ID)
	})

	t.Run("override includes suppressed", func(t *testing.T) {
		found, err := repo.FindSendable(ctx, tenantID, campaignID, true)
		require.NoError(t, err)
		require.Len(t, found, 3)
		assert.Equal(t, batch[1].ID, found[1].ID)
		assert.Equal(t, "recent order", found[1].SuppressionReason)
	})

	t.Run("other tenant sees nothing", func(t *testing.T) {
		found, err := repo.FindSendable(ctx, uuid.New(), campaignID, true)
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

func TestGormRecipientRepository_VendorObjectUniqueness(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRecipientRepository(db)
	ctx := context.Background()
	tenantID, campaignID := uuid.New(), uuid.New()

	first := newTestRecipient(t, tenantID, campaignID, 0)
	second := newTestRecipient(t, tenantID, campaignID, 1)
	third := newTestRecipient(t, tenantID, campaignID, 2)
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))
	require.NoError(t, repo.Save(ctx, third), "rows without a vendor id never collide")

	markSent(t, first, "psc_dup", 87)
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, first), "re-saving the holder is fine")

	markSent(t, second, "psc_dup", 87)
	err := repo.Save(ctx, second)
	assert.ErrorIs(t, err, campaign.ErrDuplicateVendorObject)

	stored, err := repo.FindByIDForTenant(ctx, tenantID, second.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.VendorObjectID)
	assert.Equal(t, campaign.RecipientStatusPending, stored.Status)
}

func TestGormRecipientRepository_StatusTotals(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRecipientRepository(db)
	ctx := context.Background()
	tenantID, campaignID := uuid.New(), uuid.New()

	a := newTestRecipient(t, tenantID, campaignID, 0)
	b := newTestRecipient(t, tenantID, campaignID, 1)
	c := newTestRecipient(t, tenantID, campaignID, 2)
	markSent(t, a, "psc_a", 87)
	markSent(t, b, "psc_b", 90)
	require.NoError(t, c.MarkSending())
	require.NoError(t, c.MarkFailed("Invalid address", ""))
	require.NoError(t, repo.SaveBatch(ctx, []*campaign.Recipient{a, b, c}))

	totals, err := repo.StatusTotals(ctx, tenantID, campaignID)
	require.NoError(t, err)

	byStatus := map[campaign.RecipientStatus]campaign.StatusTotal{}
	for _, st := range totals {
		byStatus[st.Status] = st
	}
	assert.Equal(t, 2, byStatus[campaign.RecipientStatusSent].Count)
	assert.Equal(t, int64(177), byStatus[campaign.RecipientStatusSent].Cost)
	assert.Equal(t, 1, byStatus[campaign.RecipientStatusFailed].Count)
	assert.Equal(t, int64(0), byStatus[campaign.RecipientStatusFailed].Cost)
}

func TestGormRecipientRepository_FindForReconciliation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRecipientRepository(db)
	ctx := context.Background()
	tenantID, campaignID := uuid.New(), uuid.New()

	var sent []*campaign.Recipient
	for i := 0; i < 5; i++ {
		r := newTestRecipient(t, tenantID, campaignID, i)
		markSent(t, r, fmt.Sprintf("psc_%d", i), 87)
		sent = append(sent, r)
	}
	pending := newTestRecipient(t, uuid.New(), uuid.New(), 9)
	require.NoError(t, repo.SaveBatch(ctx, append(sent, pending)))

	seen := map[uuid.UUID]bool{}
	cursor := uuid.Nil
	for {
		page, err := repo.FindForReconciliation(ctx, cursor, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		assert.LessOrEqual(t, len(page), 2)
		for _, r := range page {
			seen[r.ID] = true
			cursor = r.ID
		}
	}
	assert.Len(t, seen, 5)
	assert.False(t, seen[pending.ID])
}

func TestGormRecipientRepository_FindByCampaign(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRecipientRepository(db)
	ctx := context.Background()
	tenantID, campaignID := uuid.New(), uuid.New()

	var batch []*campaign.Recipient
	for i := 0; i < 3; i++ {
		batch = append(batch, newTestRecipient(t, tenantID, campaignID, i))
	}
	batch[2].ApplySuppression(true, "do-not-mail list")
	require.NoError(t, repo.SaveBatch(ctx, batch))

	filter := shared.DefaultFilter()
	filter.OrderBy = ""
	all, err := repo.FindByCampaign(ctx, tenantID, campaignID, filter)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, batch[0].ID, all[0].ID)

	filter.Filters["suppressed"] = true
	count, err := repo.CountByCampaign(ctx, tenantID, campaignID, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = repo.FindByIDForTenant(ctx, uuid.New(), batch[0].ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
