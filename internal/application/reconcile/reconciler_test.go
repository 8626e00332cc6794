package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/fulfillment"
	"github.com/postcard/backend/internal/domain/shared/valueobject"
	"github.com/postcard/backend/internal/infrastructure/persistence"
	"github.com/postcard/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockGateway is a mock implementation of fulfillment.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) ResolveArtwork(ctx context.Context, c *campaign.Campaign) (fulfillment.ResolvedArtwork, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(fulfillment.ResolvedArtwork), args.Error(1)
}

func (m *MockGateway) CreateMailPiece(ctx context.Context, req fulfillment.CreateRequest) (*fulfillment.MailPiece, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.MailPiece), args.Error(1)
}

func (m *MockGateway) GetMailPiece(ctx context.Context, tenantID uuid.UUID, vendorObjectID string) (*fulfillment.MailPiece, error) {
	args := m.Called(ctx, tenantID, vendorObjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.MailPiece), args.Error(1)
}

type fixture struct {
	campaigns  *persistence.GormCampaignRepository
	recipients *persistence.GormRecipientRepository
	gateway    *MockGateway
	now        time.Time
	sleeps     int
	tenantID   uuid.UUID
	campaign   *campaign.Campaign
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	f := &fixture{
		campaigns:  persistence.NewGormCampaignRepository(db),
		recipients: persistence.NewGormRecipientRepository(db),
		gateway:    new(MockGateway),
		now:        time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC),
		tenantID:   uuid.New(),
	}
	c, err := campaign.NewCampaign(f.tenantID, "Summer", campaign.MailClassStandard, campaign.MailSize4x6)
	require.NoError(t, err)
	c.Status = campaign.CampaignStatusCompleted
	require.NoError(t, f.campaigns.Save(context.Background(), c))
	f.campaign = c
	return f
}

func (f *fixture) reconciler(batchSize int) *Reconciler {
	return NewReconciler(f.campaigns, f.recipients, f.gateway,
		Config{BatchSize: batchSize, InterCallDelay: time.Second},
		WithClock(func() time.Time { return f.now }),
		WithSleep(func(context.Context, time.Duration) error {
			f.sleeps++
			return nil
		}),
	)
}

func (f *fixture) sentRecipient(t *testing.T, name, vendorID string) *campaign.Recipient {
	t.Helper()
	addr := valueobject.MustNewPostalAddress("1 Main St", "Springfield", "IL", "62701")
	r, err := campaign.NewRecipient(f.tenantID, f.campaign.ID, campaign.RecipientInput{Name: name, Address: addr})
	require.NoError(t, err)
	require.NoError(t, r.MarkSending())
	require.NoError(t, r.MarkSent(campaign.SentDetails{VendorObjectID: vendorID, Cost: 50}, f.now.Add(-48*time.Hour)))
	require.NoError(t, f.recipients.Save(context.Background(), r))
	return r
}

func (f *fixture) load(t *testing.T, r *campaign.Recipient) *campaign.Recipient {
	t.Helper()
	found, err := f.recipients.FindByIDForTenant(context.Background(), f.tenantID, r.ID)
	require.NoError(t, err)
	return found
}

func vendorStatus(status string) *fulfillment.MailPiece {
	return &fulfillment.MailPiece{Status: status}
}

func TestReconciler_AppliesVendorStatuses(t *testing.T) {
	f := newFixture(t)
	local := f.sentRecipient(t, "Local", "psc_local")
	delivered := f.sentRecipient(t, "Delivered", "psc_delivered")
	returned := f.sentRecipient(t, "Returned", "psc_returned")
	unknown := f.sentRecipient(t, "Unknown", "psc_unknown")

	f.gateway.On("GetMailPiece", mock.Anything, f.tenantID, "psc_local").Return(vendorStatus("In Local Area"), nil)
	f.gateway.On("GetMailPiece", mock.Anything, f.tenantID, "psc_delivered").Return(vendorStatus("delivered"), nil)
	f.gateway.On("GetMailPiece", mock.Anything, f.tenantID, "psc_returned").Return(vendorStatus("returned_to_sender"), nil)
	f.gateway.On("GetMailPiece", mock.Anything, f.tenantID, "psc_unknown").Return(vendorStatus("re-routed"), nil)

	summary, err := f.reconciler(10).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 4, Changed: 3}, summary)
	assert.Equal(t, 3, f.sleeps)

	inTransit := f.load(t, local)
	assert.Equal(t, campaign.RecipientStatusInTransit, inTransit.Status)
	assert.Nil(t, inTransit.DeliveredAt)

	done := f.load(t, delivered)
	assert.Equal(t, campaign.RecipientStatusDelivered, done.Status)
	require.NotNil(t, done.DeliveredAt)
	assert.True(t, f.now.Equal(*done.DeliveredAt))

	assert.Equal(t, campaign.RecipientStatusReturned, f.load(t, returned).Status)
	assert.Equal(t, campaign.RecipientStatusSent, f.load(t, unknown).Status)

	c, err := f.campaigns.FindByIDForTenant(context.Background(), f.tenantID, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, c.RecipientCount)
	assert.Equal(t, 4, c.SentCount)
	assert.Equal(t, 1, c.DeliveredCount)
	assert.Equal(t, int64(200), c.ActualCost)
}

func TestReconciler_VendorErrorIsIsolated(t *testing.T) {
	f := newFixture(t)
	broken := f.sentRecipient(t, "Broken", "psc_broken")
	fine := f.sentRecipient(t, "Fine", "psc_fine")

	f.gateway.On("GetMailPiece", mock.Anything, mock.Anything, "psc_broken").Return(nil, errors.New("vendor unavailable"))
	f.gateway.On("GetMailPiece", mock.Anything, mock.Anything, "psc_fine").Return(vendorStatus("in_transit"), nil)

	summary, err := f.reconciler(10).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 2, Changed: 1, Failed: 1}, summary)
	assert.Equal(t, campaign.RecipientStatusSent, f.load(t, broken).Status)
	assert.Equal(t, campaign.RecipientStatusInTransit, f.load(t, fine).Status)
}

func TestReconciler_PagesThroughAllRecipients(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"psc_1", "psc_2", "psc_3", "psc_4", "psc_5"} {
		f.sentRecipient(t, id, id)
	}
	f.gateway.On("GetMailPiece", mock.Anything, mock.Anything, mock.Anything).Return(vendorStatus("processed for delivery"), nil)

	summary, err := f.reconciler(2).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Checked)
	f.gateway.AssertNumberOfCalls(t, "GetMailPiece", 5)
}

func TestReconciler_SkipsFinishedRecipients(t *testing.T) {
	f := newFixture(t)
	r := f.sentRecipient(t, "Done", "psc_done")
	require.True(t, r.ApplyDeliveryStatus(campaign.RecipientStatusDelivered, f.now))
	require.NoError(t, f.recipients.Save(context.Background(), r))

	summary, err := f.reconciler(10).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	f.gateway.AssertNotCalled(t, "GetMailPiece", mock.Anything, mock.Anything, mock.Anything)
}

// racingCampaigns runs meanwhile once, right after the first campaign load,
// the way a dispatch finishing in parallel would
type racingCampaigns struct {
	*persistence.GormCampaignRepository
	meanwhile func()
}

func (r *racingCampaigns) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*campaign.Campaign, error) {
	c, err := r.GormCampaignRepository.FindByIDForTenant(ctx, tenantID, id)
	if err == nil && r.meanwhile != nil {
		r.meanwhile()
		r.meanwhile = nil
	}
	return c, err
}

func TestReconciler_RollupKeepsConcurrentLifecycleChanges(t *testing.T) {
	tests := []struct {
		name          string
		status        campaign.CampaignStatus
		finish        func(c *campaign.Campaign, now time.Time) error
		wantDelivered int
	}{
		{
			name:   "dispatch finishes after load",
			status: campaign.CampaignStatusProcessing,
			finish: func(c *campaign.Campaign, now time.Time) error {
				c.RecipientCount = 1
				if err := c.Finalize(1, 0, 50, now); err != nil {
					return err
				}
				return c.MarkCharged(now)
			},
			wantDelivered: 0,
		},
		{
			name:   "charge recorded after load",
			status: campaign.CampaignStatusCompleted,
			finish: func(c *campaign.Campaign, now time.Time) error {
				c.CompletedAt = &now
				return c.MarkCharged(now)
			},
			wantDelivered: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.campaign.Status = tt.status
			require.NoError(t, f.campaigns.Save(ctx, f.campaign))
			f.sentRecipient(t, "Ann Lee", "psc_ann")
			f.gateway.On("GetMailPiece", mock.Anything, f.tenantID, "psc_ann").Return(vendorStatus("delivered"), nil)

			racing := &racingCampaigns{GormCampaignRepository: f.campaigns}
			racing.meanwhile = func() {
				stored, err := f.campaigns.FindByIDForTenant(ctx, f.tenantID, f.campaign.ID)
				require.NoError(t, err)
				require.NoError(t, tt.finish(stored, f.now))
				require.NoError(t, f.campaigns.Save(ctx, stored))
			}
			r := NewReconciler(racing, f.recipients, f.gateway, Config{BatchSize: 10},
				WithClock(func() time.Time { return f.now }))

			summary, err := r.Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, Summary{Checked: 1, Changed: 1}, summary)

			stored, err := f.campaigns.FindByIDForTenant(ctx, f.tenantID, f.campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, campaign.CampaignStatusCompleted, stored.Status)
			assert.NotNil(t, stored.CompletedAt)
			assert.True(t, stored.IsCharged())
			assert.Equal(t, tt.wantDelivered, stored.DeliveredCount)
		})
	}
}
