package dispatch

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/billing"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/fulfillment"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/domain/shared/valueobject"
	"github.com/postcard/backend/internal/infrastructure/cache"
	"github.com/postcard/backend/internal/infrastructure/persistence"
	"github.com/postcard/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
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

// MockLedger is a mock implementation of billing.Ledger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) HasSufficientBalance(ctx context.Context, tenantID uuid.UUID, amountCents int64) (bool, error) {
	args := m.Called(ctx, tenantID, amountCents)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) ChargeForCampaign(ctx context.Context, tenantID, campaignID uuid.UUID, amountCents int64, actorID *uuid.UUID) (*billing.ChargeResult, error) {
	args := m.Called(ctx, tenantID, campaignID, amountCents, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ChargeResult), args.Error(1)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyCampaignResult(ctx context.Context, c *campaign.Campaign, status campaign.CampaignStatus, cause error) error {
	args := m.Called(ctx, c, status, cause)
	return args.Error(0)
}

type recordingPublisher struct {
	types []string
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	for _, e := range events {
		p.types = append(p.types, e.EventType())
	}
	return nil
}

type fixture struct {
	campaigns  *persistence.GormCampaignRepository
	recipients *persistence.GormRecipientRepository
	gateway    *MockGateway
	ledger     *MockLedger
	notifier   *MockNotifier
	claims     *cache.InMemoryClaimStore
	events     *recordingPublisher
	sleeps     int
	now        time.Time
	orch       *Orchestrator
	tenantID   uuid.UUID
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
		ledger:     new(MockLedger),
		notifier:   new(MockNotifier),
		claims:     cache.NewInMemoryClaimStore(),
		events:     &recordingPublisher{},
		now:        time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC),
		tenantID:   uuid.New(),
	}
	t.Cleanup(func() { f.claims.Close() })

	f.orch = NewOrchestrator(f.campaigns, f.recipients, f.gateway, f.ledger, f.claims,
		Config{InterCallDelay: 250 * time.Millisecond, ClaimTTL: time.Hour},
		WithNotifier(f.notifier),
		WithEventPublisher(f.events),
		WithClock(func() time.Time { return f.now }),
		WithSleep(func(context.Context, time.Duration) error {
			f.sleeps++
			return nil
		}),
	)
	return f
}

var testAddress = valueobject.MustNewPostalAddress("185 Berry St", "San Francisco", "CA", "94107")

// processingCampaign stores a campaign that has been sent, with one pending
// recipient per name
func (f *fixture) processingCampaign(t *testing.T, names ...string) (*campaign.Campaign, []*campaign.Recipient) {
	t.Helper()
	ctx := context.Background()
	c, err := campaign.NewCampaign(f.tenantID, "Spring sale", campaign.MailClassFirstClass, campaign.MailSize6x9)
	require.NoError(t, err)
	require.NoError(t, c.SetArtwork(
		campaign.Artwork{Kind: campaign.ArtworkKindPDFURL, URL: "https://cdn.example.com/front.pdf"},
		campaign.Artwork{Kind: campaign.ArtworkKindPDFURL, URL: "https://cdn.example.com/back.pdf"},
	))
	require.NoError(t, c.SetReturnAddress("Acme Bakery", testAddress))

	recipients := make([]*campaign.Recipient, 0, len(names))
	for i, name := range names {
		r, err := campaign.NewRecipient(f.tenantID, c.ID, campaign.RecipientInput{Name: name, Address: testAddress})
		require.NoError(t, err)
		r.CreatedAt = f.now.Add(time.Duration(i) * time.Second)
		recipients = append(recipients, r)
	}
	require.NoError(t, f.recipients.SaveBatch(ctx, recipients))

	c.RecipientCount = len(names)
	require.NoError(t, c.SendNow(f.now))
	c.ClearDomainEvents()
	require.NoError(t, f.campaigns.Save(ctx, c))
	return c, recipients
}

func forRecipient(name string) interface{} {
	return mock.MatchedBy(func(req fulfillment.CreateRequest) bool {
		return req.Recipient.Name == name
	})
}

func piece(id string, cents int64) *fulfillment.MailPiece {
	return &fulfillment.MailPiece{ID: id, URL: "https://dashboard.example.com/" + id, Status: "processed", PriceCents: cents}
}

func (f *fixture) reload(t *testing.T, c *campaign.Campaign) *campaign.Campaign {
	t.Helper()
	found, err := f.campaigns.FindByIDForTenant(context.Background(), f.tenantID, c.ID)
	require.NoError(t, err)
	return found
}

func (f *fixture) recipient(t *testing.T, r *campaign.Recipient) *campaign.Recipient {
	t.Helper()
	found, err := f.recipients.FindByIDForTenant(context.Background(), f.tenantID, r.ID)
	require.NoError(t, err)
	return found
}

func TestOrchestrator_PartialFailureCompletesWithErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, recipients := f.processingCampaign(t, "Ann Lee", "Bo Diaz", "Cy Park")

	f.gateway.On("ResolveArtwork", mock.Anything, mock.Anything).Return(fulfillment.ResolvedArtwork{
		FrontURL: "https://cdn.example.com/front.pdf", BackURL: "https://cdn.example.com/back.pdf",
	}, nil)
	f.gateway.On("CreateMailPiece", mock.Anything, forRecipient("Ann Lee")).Return(piece("psc_1", 87), nil)
	f.gateway.On("CreateMailPiece", mock.Anything, forRecipient("Bo Diaz")).
		Return(nil, &fulfillment.VendorError{StatusCode: 422, Code: "invalid_address", Message: "address_zip is invalid"})
	f.gateway.On("CreateMailPiece", mock.Anything, forRecipient("Cy Park")).Return(piece("psc_3", 87), nil)
	f.ledger.On("ChargeForCampaign", mock.Anything, f.tenantID, c.ID, int64(174), mock.Anything).
		Return(&billing.ChargeResult{EntryID: uuid.New(), AmountCents: 174, BalanceAfter: decimal.NewFromInt(10)}, nil)
	f.notifier.On("NotifyCampaignResult", mock.Anything, mock.Anything, campaign.CampaignStatusCompletedWithErrors, nil).Return(nil)

	result, err := f.orch.Run(ctx, f.tenantID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.CampaignStatusCompletedWithErrors, result.Status)
	assert.Equal(t, 2, result.Submitted)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, result.Charged)
	assert.Equal(t, 2, f.sleeps, "delay only between calls")

	stored := f.reload(t, c)
	assert.Equal(t, campaign.CampaignStatusCompletedWithErrors, stored.Status)
	assert.Equal(t, 2, stored.SentCount)
	assert.Equal(t, 1, stored.FailedCount)
	assert.Equal(t, int64(174), stored.ActualCost)
	assert.True(t, stored.IsCharged())
	assert.LessOrEqual(t, stored.SentCount+stored.FailedCount, stored.RecipientCount)

	failed := f.recipient(t, recipients[1])
	assert.Equal(t, campaign.RecipientStatusFailed, failed.Status)
	assert.Equal(t, fulfillment.CauseInvalidAddress.UserMessage(), failed.SendError)
	assert.Nil(t, failed.VendorObjectID)

	sent := f.recipient(t, recipients[0])
	assert.Equal(t, campaign.RecipientStatusSent, sent.Status)
	require.NotNil(t, sent.VendorObjectID)
	assert.Equal(t, "psc_1", *sent.VendorObjectID)
	assert.Equal(t, 1, sent.Attempts)

	assert.Contains(t, f.events.types, campaign.EventTypeCampaignFinalized)
	assert.Contains(t, f.events.types, campaign.EventTypeCampaignDispatchCompleted)
	f.gateway.AssertNumberOfCalls(t, "CreateMailPiece", 3)
	f.ledger.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestOrchestrator_SingleTimeoutFailsCampaign(t *testing.T) {
	f := newFixture(t)
	c, recipients := f.processingCampaign(t, "Ann Lee")

	f.gateway.On("ResolveArtwork", mock.Anything, mock.Anything).Return(fulfillment.ResolvedArtwork{FrontURL: "u", BackURL: "u"}, nil)
	f.gateway.On("CreateMailPiece", mock.Anything, mock.Anything).
		Return(nil, &net.OpError{Op: "dial", Err: context.DeadlineExceeded})
	f.notifier.On("NotifyCampaignResult", mock.Anything, mock.Anything, campaign.CampaignStatusFailed, nil).Return(nil)

	result, err := f.orch.Run(context.Background(), f.tenantID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.CampaignStatusFailed, result.Status)
	assert.False(t, result.Charged)

	rec := f.recipient(t, recipients[0])
	assert.Equal(t, campaign.RecipientStatusFailed, rec.Status)
	assert.Equal(t, fulfillment.CauseTimeout.UserMessage(), rec.SendError)
	f.ledger.AssertNotCalled(t, "ChargeForCampaign", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_MissingReturnAddressAbortsBatch(t *testing.T) {
	f := newFixture(t)
	c, recipients := f.processingCampaign(t, "Ann Lee", "Bo Diaz")
	c.FromAddress = valueobject.EmptyPostalAddress()
	require.NoError(t, f.campaigns.Save(context.Background(), c))

	f.notifier.On("NotifyCampaignResult", mock.Anything, mock.Anything, campaign.CampaignStatusFailed, mock.Anything).Return(nil)

	result, err := f.orch.Run(context.Background(), f.tenantID, c.ID)
	require.ErrorIs(t, err, ErrSetupFailed)
	assert.Equal(t, campaign.CampaignStatusFailed, result.Status)

	stored := f.reload(t, c)
	assert.Equal(t, campaign.CampaignStatusFailed, stored.Status)
	assert.Equal(t, "Campaign has no return address", stored.FailureReason)
	assert.Equal(t, campaign.RecipientStatusPending, f.recipient(t, recipients[0]).Status)
	f.gateway.AssertNotCalled(t, "CreateMailPiece", mock.Anything, mock.Anything)
	f.notifier.AssertExpectations(t)
	assert.False(t, Retryable(err))
}

func TestOrchestrator_ArtworkSetupError(t *testing.T) {
	f := newFixture(t)
	c, _ := f.processingCampaign(t, "Ann Lee")

	unavailable := shared.NewDomainError("ARTWORK_UNAVAILABLE", "Uploaded artwork cannot be reached by the mail vendor")
	f.gateway.On("ResolveArtwork", mock.Anything, mock.Anything).Return(fulfillment.ResolvedArtwork{}, unavailable)
	f.notifier.On("NotifyCampaignResult", mock.Anything, mock.Anything, campaign.CampaignStatusFailed, mock.Anything).Return(nil)

	_, err := f.orch.Run(context.Background(), f.tenantID, c.ID)
	require.ErrorIs(t, err, ErrSetupFailed)
	assert.ErrorIs(t, err, unavailable)
	assert.Equal(t, unavailable.Message, f.reload(t, c).FailureReason)
}

func TestOrchestrator_DuplicateVendorObjectIsIntegrityError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := campaign.NewRecipient(f.tenantID, uuid.New(), campaign.RecipientInput{Name: "Earlier", Address: testAddress})
	require.NoError(t, err)
	require.NoError(t, other.MarkSending())
	require.NoError(t, other.MarkSent(campaign.SentDetails{VendorObjectID: "psc_dup", Cost: 87}, f.now))
	require.NoError(t, f.recipients.Save(ctx, other))

	c, recipients := f.processingCampaign(t, "Ann Lee")
	f.gateway.On("ResolveArtwork", mock.Anything, mock.Anything).Return(fulfillment.ResolvedArtwork{FrontURL: "u", BackURL: "u"}, nil)
	f.gateway.On("CreateMailPiece", mock.Anything, mock.Anything).Return(piece("psc_dup", 87), nil)
	f.notifier.On("NotifyCampaignResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := f.orch.Run(ctx, f.tenantID, c.ID)
	require.ErrorIs(t, err, shared.ErrDataIntegrity)
	assert.Equal(t, 1, result.IntegrityErrors)
	assert.Equal(t, 0, result.Failed)

	rec := f.recipient(t, recipients[0])
	assert.Equal(t, campaign.RecipientStatusFailed, rec.Status)
	assert.Equal(t, DuplicateSubmissionMessage, rec.SendError)
	assert.Nil(t, rec.VendorObjectID)
	assert.Equal(t, campaign.CampaignStatusFailed, f.reload(t, c).Status, "finalized before reporting")
	assert.False(t, Retryable(err))
}

func TestOrchestrator_RecoversInterruptedRecipients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, recipients := f.processingCampaign(t, "Ann Lee", "Bo Diaz")

	require.NoError(t, recipients[0].MarkSending())
	require.NoError(t, f.recipients.Save(ctx, recipients[0]))

	f.gateway.On("ResolveArtwork", mock.Anything, mock.Anything).Return(fulfillment.ResolvedArtwork{FrontURL: "u", BackURL: "u"}, nil)
	f.gateway.On("CreateMailPiece", mock.Anything, forRecipient("Bo Diaz")).Return(piece("psc_2", 60), nil)
	f.ledger.On("ChargeForCampaign", mock.Anything, f.tenantID, c.ID, int64(60), mock.Anything).
		Return(&billing.ChargeResult{AmountCents: 60}, nil)
	f.notifier.On("NotifyCampaignResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := f.orch.Run(ctx, f.tenantID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recovered)
	assert.Equal(t, 1, result.Submitted)
	assert.Equal(t, campaign.CampaignStatusCompletedWithErrors, result.Status)

	interrupted := f.recipient(t, recipients[0])
	assert.Equal(t, campaign.RecipientStatusFailed, interrupted.Status)
	assert.Equal(t, campaign.DispatchInterruptedMessage, interrupted.SendError)
	f.gateway.AssertNumberOfCalls(t, "CreateMailPiece", 1)
}

func TestOrchestrator_SuppressedRecipients(t *testing.T) {
	tests := []struct {
		name      string
		override  bool
		wantCalls int
	}{
		{name: "skipped without override", override: false, wantCalls: 1},
		{name: "included with override", override: true, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			c, recipients := f.processingCampaign(t, "Ann Lee", "Bo Diaz")
			recipients[1].ApplySuppression(true, "Ordered within the last 30 days")
			require.NoError(t, f.recipients.Save(ctx, recipients[1]))
			c.SuppressionOverride = tt.override
			require.NoError(t, f.campaigns.Save(ctx, c))

			f.gateway.On("ResolveArtwork", mock.Anything, mock.Anything).Return(fulfillment.ResolvedArtwork{FrontURL: "u", BackURL: "u"}, nil)
			f.gateway.On("CreateMailPiece", mock.Anything, forRecipient("Ann Lee")).Return(piece("psc_a", 50), nil)
			f.gateway.On("CreateMailPiece", mock.Anything, forRecipient("Bo Diaz")).Return(piece("psc_b", 50), nil)
			f.ledger.On("ChargeForCampaign", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(&billing.ChargeResult{}, nil)
			f.notifier.On("NotifyCampaignResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

			result, err := f.orch.Run(ctx, f.tenantID, c.ID)
			require.NoError(t, err)
			assert.Equal(t, campaign.CampaignStatusCompleted, result.Status)
			f.gateway.AssertNumberOfCalls(t, "CreateMailPiece", tt.wantCalls)

			suppressed := f.recipient(t, recipients[1])
			assert.Equal(t, "Ordered within the last 30 days", suppressed.SuppressionReason)
		})
	}
}

func TestOrchestrator_RecipientResetMidRunIsSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, recipients := f.processingCampaign(t, "Ann Lee", "Bo Diaz")

	var rerunErr error
	f.gateway.On("ResolveArtwork", mock.Anything, mock.Anything).Return(fulfillment.ResolvedArtwork{FrontURL: "u", BackURL: "u"}, nil)
	f.gateway.On("CreateMailPiece", mock.Anything, forRecipient("Ann Lee")).
		Return(nil, &fulfillment.VendorError{StatusCode: 503, Message: "service unavailable"}).Once()
	f.gateway.On("CreateMailPiece", mock.Anything, forRecipient("Bo Diaz")).
		Run(func(mock.Arguments) {
			ann := f.recipient(t, recipients[0])
			require.NoError(t, ann.ResetForRetry())
			require.NoError(t, f.recipients.Save(ctx, ann))
			_, rerunErr = f.orch.Run(ctx, f.tenantID, c.ID)
		}).
		Return(piece("psc_bo", 60), nil)
	f.gateway.On("CreateMailPiece", mock.Anything, forRecipient("Ann Lee")).Return(piece("psc_ann", 60), nil)
	f.ledger.On("ChargeForCampaign", mock.Anything, f.tenantID, c.ID, int64(120), mock.Anything).
		Return(&billing.ChargeResult{AmountCents: 120}, nil)
	f.notifier.On("NotifyCampaignResult", mock.Anything, mock.Anything, campaign.CampaignStatusCompleted, nil).Return(nil)

	result, err := f.orch.Run(ctx, f.tenantID, c.ID)
	require.NoError(t, err)
	require.ErrorIs(t, rerunErr, ErrClaimHeld)
	assert.Equal(t, campaign.CampaignStatusCompleted, result.Status)
	assert.Equal(t, 2, result.Submitted)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, f.sleeps)

	ann := f.recipient(t, recipients[0])
	assert.Equal(t, campaign.RecipientStatusSent, ann.Status)
	require.NotNil(t, ann.VendorObjectID)
	assert.Equal(t, "psc_ann", *ann.VendorObjectID)
	assert.Equal(t, 2, ann.Attempts)

	stored := f.reload(t, c)
	assert.Equal(t, 2, stored.SentCount)
	assert.Equal(t, 0, stored.FailedCount)
	assert.Equal(t, int64(120), stored.ActualCost)
	f.gateway.AssertNumberOfCalls(t, "CreateMailPiece", 3)
	f.ledger.AssertExpectations(t)
}

// failingRecipients fails the sending save of one recipient
type failingRecipients struct {
	campaign.RecipientRepository
	failFor uuid.UUID
}

func (r *failingRecipients) Save(ctx context.Context, rec *campaign.Recipient) error {
	if rec.ID == r.failFor && rec.Status == campaign.RecipientStatusSending {
		return errors.New("database connection lost")
	}
	return r.RecipientRepository.Save(ctx, rec)
}

func TestOrchestrator_StorageErrorMidBatchFailsCampaign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, recipients := f.processingCampaign(t, "Ann Lee", "Bo Diaz", "Cy Park")

	orch := NewOrchestrator(f.campaigns, &failingRecipients{RecipientRepository: f.recipients, failFor: recipients[1].ID},
		f.gateway, f.ledger, f.claims, Config{ClaimTTL: time.Hour},
		WithNotifier(f.notifier),
		WithClock(func() time.Time { return f.now }),
	)
	f.gateway.On("ResolveArtwork", mock.Anything, mock.Anything).Return(fulfillment.ResolvedArtwork{FrontURL: "u", BackURL: "u"}, nil)
	f.gateway.On("CreateMailPiece", mock.Anything, forRecipient("Ann Lee")).Return(piece("psc_ann", 87), nil)
	f.ledger.On("ChargeForCampaign", mock.Anything, f.tenantID, c.ID, int64(87), mock.Anything).
		Return(&billing.ChargeResult{AmountCents: 87}, nil)
	f.notifier.On("NotifyCampaignResult", mock.Anything, mock.Anything, campaign.CampaignStatusFailed, mock.Anything).Return(nil)

	result, err := orch.Run(ctx, f.tenantID, c.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connection lost")
	assert.Equal(t, campaign.CampaignStatusFailed, result.Status)
	assert.Equal(t, 1, result.Submitted)
	assert.True(t, result.Charged)

	stored := f.reload(t, c)
	assert.Equal(t, campaign.CampaignStatusFailed, stored.Status)
	assert.Equal(t, "Dispatch stopped unexpectedly. Sent postcards are kept and billed.", stored.FailureReason)
	assert.Equal(t, 1, stored.SentCount)
	assert.Equal(t, int64(87), stored.ActualCost)
	assert.True(t, stored.IsCharged())

	sent := f.recipient(t, recipients[0])
	assert.Equal(t, campaign.RecipientStatusSent, sent.Status)
	require.NotNil(t, sent.VendorObjectID)
	assert.Equal(t, "psc_ann", *sent.VendorObjectID)
	assert.Equal(t, campaign.RecipientStatusPending, f.recipient(t, recipients[2]).Status)

	f.gateway.AssertNumberOfCalls(t, "CreateMailPiece", 1)
	f.ledger.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestOrchestrator_ClaimHeldSkips(t *testing.T) {
	f := newFixture(t)
	c, _ := f.processingCampaign(t, "Ann Lee")

	ok, err := f.claims.Claim(context.Background(), ClaimKey(c.ID), time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	result, err := f.orch.Run(context.Background(), f.tenantID, c.ID)
	require.ErrorIs(t, err, ErrClaimHeld)
	assert.True(t, Retryable(err))
	assert.True(t, result.Skipped)
	assert.Equal(t, campaign.CampaignStatusProcessing, f.reload(t, c).Status)
	f.gateway.AssertNotCalled(t, "ResolveArtwork", mock.Anything, mock.Anything)
}

func TestOrchestrator_ReleasesClaim(t *testing.T) {
	f := newFixture(t)
	c, _ := f.processingCampaign(t, "Ann Lee")
	f.gateway.On("ResolveArtwork", mock.Anything, mock.Anything).Return(fulfillment.ResolvedArtwork{FrontURL: "u", BackURL: "u"}, nil)
	f.gateway.On("CreateMailPiece", mock.Anything, mock.Anything).Return(piece("psc_1", 50), nil)
	f.ledger.On("ChargeForCampaign", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&billing.ChargeResult{}, nil)
	f.notifier.On("NotifyCampaignResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.orch.Run(context.Background(), f.tenantID, c.ID)
	require.NoError(t, err)

	held, err := f.claims.IsClaimed(context.Background(), ClaimKey(c.ID))
	require.NoError(t, err)
	assert.False(t, held)
}

func TestOrchestrator_ChargeFailureIsRetriedAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, _ := f.processingCampaign(t, "Ann Lee")

	f.gateway.On("ResolveArtwork", mock.Anything, mock.Anything).Return(fulfillment.ResolvedArtwork{FrontURL: "u", BackURL: "u"}, nil)
	f.gateway.On("CreateMailPiece", mock.Anything, mock.Anything).Return(piece("psc_1", 87), nil).Once()
	f.ledger.On("ChargeForCampaign", mock.Anything, f.tenantID, c.ID, int64(87), mock.Anything).
		Return(nil, errors.New("connection reset")).Once()
	f.ledger.On("ChargeForCampaign", mock.Anything, f.tenantID, c.ID, int64(87), mock.Anything).
		Return(nil, billing.ErrAlreadyCharged).Once()
	f.notifier.On("NotifyCampaignResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	result, err := f.orch.Run(ctx, f.tenantID, c.ID)
	require.ErrorIs(t, err, ErrChargeFailed)
	assert.True(t, Retryable(err))
	assert.False(t, result.Charged)
	assert.Equal(t, campaign.CampaignStatusCompleted, f.reload(t, c).Status, "mail already sent is not rolled back")

	result, err = f.orch.Run(ctx, f.tenantID, c.ID)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.True(t, result.Charged)
	assert.True(t, f.reload(t, c).IsCharged())

	f.gateway.AssertNumberOfCalls(t, "CreateMailPiece", 1)
	f.ledger.AssertExpectations(t)
}

func TestOrchestrator_NotifierPanicIsContained(t *testing.T) {
	f := newFixture(t)
	c, _ := f.processingCampaign(t, "Ann Lee")
	f.gateway.On("ResolveArtwork", mock.Anything, mock.Anything).Return(fulfillment.ResolvedArtwork{FrontURL: "u", BackURL: "u"}, nil)
	f.gateway.On("CreateMailPiece", mock.Anything, mock.Anything).Return(piece("psc_1", 50), nil)
	f.ledger.On("ChargeForCampaign", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&billing.ChargeResult{}, nil)
	f.notifier.On("NotifyCampaignResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("smtp exploded") })

	var (
		result *Result
		err    error
	)
	require.NotPanics(t, func() {
		result, err = f.orch.Run(context.Background(), f.tenantID, c.ID)
	})
	require.NoError(t, err)
	assert.Equal(t, campaign.CampaignStatusCompleted, result.Status)
}

func TestOrchestrator_DraftCampaignIsRejected(t *testing.T) {
	f := newFixture(t)
	c, err := campaign.NewCampaign(f.tenantID, "Draft", "", "")
	require.NoError(t, err)
	require.NoError(t, f.campaigns.Save(context.Background(), c))

	_, err = f.orch.Run(context.Background(), f.tenantID, c.ID)
	assert.ErrorIs(t, err, ErrNotProcessing)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"storage error", errors.New("connection refused"), true},
		{"charge failure", ErrChargeFailed, true},
		{"setup failure", ErrSetupFailed, false},
		{"cancelled", context.Canceled, false},
		{"domain error", shared.ErrNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
