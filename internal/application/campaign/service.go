// Package campaign implements the campaign use cases: drafting content,
// managing recipients, pricing, sending and scheduling.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	suppressionapp "github.com/postcard/backend/internal/application/suppression"
	"github.com/postcard/backend/internal/application/validation"
	"github.com/postcard/backend/internal/domain/billing"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/cost"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/infrastructure/artwork"
	"github.com/postcard/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

const (
	defaultImportLimit  = 10000
	defaultUploadExpiry = 15 * time.Minute
	reevaluatePageSize  = 500
	sweepBatchSize      = 100
)

// Service errors
var (
	ErrProofsUnavailable  = shared.NewDomainError("PROOFS_UNAVAILABLE", "Artwork proofs are not configured")
	ErrUploadsUnavailable = shared.NewDomainError("UPLOADS_UNAVAILABLE", "Artwork uploads are not configured")
	ErrForeignArtworkKey  = shared.NewDomainError("INVALID_ARTWORK", "Uploaded artwork must use a storage key issued for this campaign")
	ErrArtworkNotUploaded = shared.NewDomainError("INVALID_ARTWORK", "Uploaded artwork has not been received yet")
	ErrCampaignFinished   = shared.NewDomainError("INVALID_STATE", "Campaign has finished; failed recipients can no longer be retried")
)

// Dispatcher hands a processing campaign to the dispatch worker
type Dispatcher interface {
	Enqueue(ctx context.Context, tenantID, campaignID uuid.UUID) error
}

// ProofGenerator renders previews of a campaign's artwork
type ProofGenerator interface {
	Generate(ctx context.Context, c *campaign.Campaign, vars map[string]string) (*artwork.Proof, error)
}

// ArtworkStore issues presigned upload URLs and confirms uploads arrived
type ArtworkStore interface {
	GenerateUploadURL(ctx context.Context, key, contentType string, expiresIn time.Duration) (string, time.Time, error)
	ObjectExists(ctx context.Context, key string) (bool, error)
}

// TemplateValidator checks HTML artwork parses as a merge template
type TemplateValidator interface {
	Validate(html string) error
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEventPublisher publishes campaign and recipient events after each save
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithProofs enables proof generation
func WithProofs(p ProofGenerator) Option {
	return func(s *Service) { s.proofs = p }
}

// WithArtworkStore enables presigned artwork uploads
func WithArtworkStore(store ArtworkStore, expiry time.Duration) Option {
	return func(s *Service) {
		s.uploads = store
		if expiry > 0 {
			s.uploadExpiry = expiry
		}
	}
}

// WithTemplateValidator rejects HTML artwork that does not parse
func WithTemplateValidator(v TemplateValidator) Option {
	return func(s *Service) { s.templates = v }
}

// WithImportLimit caps the rows accepted by one CSV import
func WithImportLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.importLimit = n
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service handles campaign business operations
type Service struct {
	campaigns  campaign.CampaignRepository
	recipients campaign.RecipientRepository
	evaluator  *suppressionapp.Evaluator
	estimator  *cost.Estimator
	ledger     billing.Ledger
	dispatcher Dispatcher

	proofs       ProofGenerator
	uploads      ArtworkStore
	uploadExpiry time.Duration
	templates    TemplateValidator
	events       shared.EventPublisher
	importLimit  int
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a new campaign Service
func NewService(
	campaigns campaign.CampaignRepository,
	recipients campaign.RecipientRepository,
	evaluator *suppressionapp.Evaluator,
	estimator *cost.Estimator,
	ledger billing.Ledger,
	dispatcher Dispatcher,
	opts ...Option,
) *Service {
	s := &Service{
		campaigns:    campaigns,
		recipients:   recipients,
		evaluator:    evaluator,
		estimator:    estimator,
		ledger:       ledger,
		dispatcher:   dispatcher,
		uploadExpiry: defaultUploadExpiry,
		importLimit:  defaultImportLimit,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create creates a new draft campaign
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, req CreateCampaignRequest) (*CampaignResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	c, err := campaign.NewCampaign(tenantID, req.Name, req.MailClass, req.MailSize)
	if err != nil {
		return nil, err
	}
	if req.Description != "" {
		if err := c.UpdateDetails(c.Name, req.Description); err != nil {
			return nil, err
		}
	}
	if req.CreatedBy != nil {
		c.SetCreatedBy(*req.CreatedBy)
	}

	if err := s.campaigns.Save(ctx, c); err != nil {
		return nil, err
	}
	s.publish(ctx, c)
	logger.Enrich(ctx, s.logger).Info("Campaign created",
		zap.String("campaign_id", c.ID.String()),
		zap.String("mail_class", c.MailClass.String()),
		zap.String("mail_size", c.MailSize.String()))

	resp := ToCampaignResponse(c)
	return &resp, nil
}

// GetByID retrieves a campaign by ID
func (s *Service) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*CampaignResponse, error) {
	c, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	resp := ToCampaignResponse(c)
	return &resp, nil
}

// List retrieves a paginated list of campaigns
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter CampaignListFilter) ([]CampaignListResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.OrderBy == "" {
		filter.OrderBy = "created_at"
	}
	if filter.OrderDir == "" {
		filter.OrderDir = "desc"
	}

	domainFilter := shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		OrderBy:  filter.OrderBy,
		OrderDir: filter.OrderDir,
		Search:   filter.Search,
		Filters:  make(map[string]interface{}),
	}
	if filter.Status != "" {
		domainFilter.Filters["status"] = filter.Status
	}
	if filter.MailClass != "" {
		domainFilter.Filters["mail_class"] = filter.MailClass
	}

	campaigns, err := s.campaigns.FindAllForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.campaigns.CountForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		return nil, 0, err
	}

	items := make([]CampaignListResponse, len(campaigns))
	for i := range campaigns {
		items[i] = ToCampaignListResponse(&campaigns[i])
	}
	return items, total, nil
}

// UpdateContent changes a draft campaign's details, artwork, return address,
// mail options or suppression policy, then re-estimates its cost
func (s *Service) UpdateContent(ctx context.Context, tenantID, id uuid.UUID, req UpdateContentRequest) (*CampaignResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := c.EnsureEditable(); err != nil {
		return nil, err
	}

	if req.Name != nil || req.Description != nil {
		name, description := c.Name, c.Description
		if req.Name != nil {
			name = *req.Name
		}
		if req.Description != nil {
			description = *req.Description
		}
		if err := c.UpdateDetails(name, description); err != nil {
			return nil, err
		}
	}

	if req.MailClass != nil || req.MailSize != nil {
		class, size := c.MailClass, c.MailSize
		if req.MailClass != nil {
			class = *req.MailClass
		}
		if req.MailSize != nil {
			size = *req.MailSize
		}
		if err := c.SetMailOptions(class, size); err != nil {
			return nil, err
		}
	}

	if req.Front != nil || req.Back != nil {
		front, back := c.Front, c.Back
		if req.Front != nil {
			if front, err = s.artworkFrom(ctx, c, *req.Front); err != nil {
				return nil, err
			}
		}
		if req.Back != nil {
			if back, err = s.artworkFrom(ctx, c, *req.Back); err != nil {
				return nil, err
			}
		}
		if err := c.SetArtwork(front, back); err != nil {
			return nil, err
		}
	}

	if req.ReturnAddress != nil {
		addr, err := req.ReturnAddress.Address.ToPostalAddress()
		if err != nil {
			return nil, invalidAddress(err)
		}
		if err := c.SetReturnAddress(req.ReturnAddress.Name, addr); err != nil {
			return nil, err
		}
	}

	if req.Suppression != nil {
		p := req.Suppression
		if err := c.SetSuppressionPolicy(p.Override, p.RecentOrderDays, p.RecentMailDays); err != nil {
			return nil, err
		}
	}

	if err := s.reestimate(c); err != nil {
		return nil, err
	}
	if err := s.campaigns.Save(ctx, c); err != nil {
		return nil, err
	}
	s.publish(ctx, c)

	resp := ToCampaignResponse(c)
	return &resp, nil
}

// Estimate refreshes a draft campaign's counters and estimated cost and
// reports whether the tenant balance covers it
func (s *Service) Estimate(ctx context.Context, tenantID, id uuid.UUID) (*EstimateResponse, error) {
	c, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := c.EnsureEditable(); err != nil {
		return nil, err
	}
	if err := s.recount(ctx, c); err != nil {
		return nil, err
	}
	unit, err := s.estimator.UnitCost(c.MailClass, c.MailSize)
	if err != nil {
		return nil, err
	}
	if err := s.campaigns.Save(ctx, c); err != nil {
		return nil, err
	}

	sufficient, err := s.ledger.HasSufficientBalance(ctx, tenantID, c.EstimatedCost)
	if err != nil {
		return nil, fmt.Errorf("failed to check balance: %w", err)
	}
	return &EstimateResponse{
		RecipientCount:    c.RecipientCount,
		UnitCost:          unit,
		EstimatedCost:     c.EstimatedCost,
		SufficientBalance: sufficient,
	}, nil
}

// SendNow moves a draft campaign into processing and queues its dispatch
func (s *Service) SendNow(ctx context.Context, tenantID, id uuid.UUID) (*CampaignResponse, error) {
	c, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.sendNow(ctx, c); err != nil {
		return nil, err
	}
	resp := ToCampaignResponse(c)
	return &resp, nil
}

// Schedule sets a draft campaign to be sent at a later time
func (s *Service) Schedule(ctx context.Context, tenantID, id uuid.UUID, req ScheduleRequest) (*CampaignResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c.IsEditable() {
		if err := s.recount(ctx, c); err != nil {
			return nil, err
		}
		if c.RecipientCount == 0 {
			return nil, shared.NewDomainError(campaign.ErrNotSendable.Code, "Campaign has no recipients")
		}
		if !c.HasArtwork() {
			return nil, shared.NewDomainError(campaign.ErrNotSendable.Code, "Campaign requires front and back artwork")
		}
	}
	if err := c.Schedule(req.ScheduledAt, s.now()); err != nil {
		return nil, err
	}
	if err := s.campaigns.Save(ctx, c); err != nil {
		return nil, err
	}
	s.publish(ctx, c)
	logger.Enrich(ctx, s.logger).Info("Campaign scheduled",
		zap.String("campaign_id", c.ID.String()),
		zap.Time("scheduled_at", req.ScheduledAt))

	resp := ToCampaignResponse(c)
	return &resp, nil
}

// Unschedule returns a scheduled campaign to draft
func (s *Service) Unschedule(ctx context.Context, tenantID, id uuid.UUID) (*CampaignResponse, error) {
	c, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := c.Unschedule(); err != nil {
		return nil, err
	}
	if err := s.campaigns.Save(ctx, c); err != nil {
		return nil, err
	}
	s.publish(ctx, c)
	resp := ToCampaignResponse(c)
	return &resp, nil
}

// Cancel cancels a scheduled campaign
func (s *Service) Cancel(ctx context.Context, tenantID, id uuid.UUID) (*CampaignResponse, error) {
	c, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := c.Cancel(s.now()); err != nil {
		return nil, err
	}
	if err := s.campaigns.Save(ctx, c); err != nil {
		return nil, err
	}
	s.publish(ctx, c)
	logger.Enrich(ctx, s.logger).Info("Campaign cancelled", zap.String("campaign_id", c.ID.String()))

	resp := ToCampaignResponse(c)
	return &resp, nil
}

// ReleaseDue sends every scheduled campaign whose time has come. A campaign
// that can no longer be sent goes back to draft.
func (s *Service) ReleaseDue(ctx context.Context) (int, error) {
	due, err := s.campaigns.FindDueScheduled(ctx, s.now(), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find due campaigns: %w", err)
	}

	released := 0
	for i := range due {
		if err := ctx.Err(); err != nil {
			return released, err
		}
		c := &due[i]
		log := s.logger.With(zap.String("tenant_id", c.TenantID.String()), zap.String("campaign_id", c.ID.String()))

		if err := c.Unschedule(); err != nil {
			log.Warn("Skipping due campaign", zap.Error(err))
			continue
		}
		if err := s.sendNow(ctx, c); err != nil {
			log.Warn("Scheduled campaign could not be sent, returning it to draft", zap.Error(err))
			if c.Status == campaign.CampaignStatusDraft {
				if saveErr := s.campaigns.Save(ctx, c); saveErr != nil {
					log.Error("Failed to return campaign to draft", zap.Error(saveErr))
					continue
				}
				s.publish(ctx, c)
			}
			continue
		}
		released++
	}
	return released, nil
}

// ResumeProcessing re-enqueues campaigns that have been processing for
// longer than olderThan. The dispatch claim keeps a run that is still alive
// from being duplicated.
func (s *Service) ResumeProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	stuck, err := s.campaigns.FindProcessing(ctx, s.now().Add(-olderThan), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find processing campaigns: %w", err)
	}
	resumed := 0
	for i := range stuck {
		c := &stuck[i]
		if err := s.dispatcher.Enqueue(ctx, c.TenantID, c.ID); err != nil {
			s.logger.Warn("Failed to re-enqueue processing campaign",
				zap.String("campaign_id", c.ID.String()), zap.Error(err))
			continue
		}
		resumed++
	}
	return resumed, nil
}

func (s *Service) sendNow(ctx context.Context, c *campaign.Campaign) error {
	log := logger.Enrich(ctx, s.logger).With(zap.String("campaign_id", c.ID.String()))

	if c.IsEditable() {
		if err := s.recount(ctx, c); err != nil {
			return err
		}
		if c.RecipientCount > 0 && c.HasArtwork() {
			sufficient, err := s.ledger.HasSufficientBalance(ctx, c.TenantID, c.EstimatedCost)
			if err != nil {
				return fmt.Errorf("failed to check balance: %w", err)
			}
			if !sufficient {
				return shared.NewDomainError(shared.ErrInsufficientBalance.Code,
					"Balance does not cover the estimated cost of $"+billing.CentsToDollars(c.EstimatedCost).StringFixed(2))
			}
		}
	}
	if err := c.SendNow(s.now()); err != nil {
		return err
	}
	if err := s.campaigns.Save(ctx, c); err != nil {
		return err
	}
	s.publish(ctx, c)

	if err := s.dispatcher.Enqueue(ctx, c.TenantID, c.ID); err != nil {
		log.Error("Failed to enqueue campaign dispatch, it will be resumed later", zap.Error(err))
	}
	log.Info("Campaign sent",
		zap.Int("recipient_count", c.RecipientCount),
		zap.Int64("estimated_cost", c.EstimatedCost))
	return nil
}

func (s *Service) artworkFrom(ctx context.Context, c *campaign.Campaign, req ArtworkRequest) (campaign.Artwork, error) {
	a := campaign.Artwork{Kind: req.Kind}
	switch req.Kind {
	case campaign.ArtworkKindPDFURL:
		a.URL = req.URL
	case campaign.ArtworkKindHTML:
		a.HTML = req.HTML
	case campaign.ArtworkKindUploaded:
		a.StorageKey = req.StorageKey
	}
	if err := a.Validate(); err != nil {
		return a, err
	}

	switch a.Kind {
	case campaign.ArtworkKindHTML:
		if s.templates != nil {
			if err := s.templates.Validate(a.HTML); err != nil {
				return a, shared.NewDomainError("INVALID_ARTWORK", "HTML artwork is not a valid template: "+err.Error())
			}
		}
	case campaign.ArtworkKindUploaded:
		if !strings.HasPrefix(a.StorageKey, artwork.UploadPrefix(c)) {
			return a, ErrForeignArtworkKey
		}
		if s.uploads != nil {
			exists, err := s.uploads.ObjectExists(ctx, a.StorageKey)
			if err != nil {
				return a, fmt.Errorf("failed to check uploaded artwork: %w", err)
			}
			if !exists {
				return a, ErrArtworkNotUploaded
			}
		}
	}
	return a, nil
}

// recount refreshes the cached counters from the recipient registry and,
// while the campaign is a draft, its estimated cost
func (s *Service) recount(ctx context.Context, c *campaign.Campaign) error {
	totals, err := s.recipients.StatusTotals(ctx, c.TenantID, c.ID)
	if err != nil {
		return fmt.Errorf("failed to compute campaign totals: %w", err)
	}
	if err := c.ApplyRollup(cost.Summarize(totals)); err != nil {
		return err
	}
	if c.IsEditable() {
		return s.reestimate(c)
	}
	return nil
}

func (s *Service) reestimate(c *campaign.Campaign) error {
	unit, err := s.estimator.UnitCost(c.MailClass, c.MailSize)
	if err != nil {
		return err
	}
	return c.EstimateCost(unit)
}

func (s *Service) load(ctx context.Context, tenantID, id uuid.UUID) (*campaign.Campaign, error) {
	c, err := s.campaigns.FindByIDForTenant(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError(shared.ErrNotFound.Code, "Campaign not found")
		}
		return nil, err
	}
	return c, nil
}

func (s *Service) publish(ctx context.Context, aggregates ...shared.EventSource) {
	var events []shared.DomainEvent
	for _, a := range aggregates {
		events = append(events, a.GetDomainEvents()...)
		a.ClearDomainEvents()
	}
	if s.events == nil || len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		logger.Enrich(ctx, s.logger).Warn("Failed to publish campaign events", zap.Error(err))
	}
}

func invalidAddress(err error) error {
	return shared.NewDomainError("INVALID_ADDRESS", err.Error())
}
