// Package dispatch runs the send of one campaign: every pending recipient is
// submitted to the mail vendor in creation order, the campaign is finalized
// from the recipient registry and the ledger is charged for the actual cost.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/billing"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/cost"
	"github.com/postcard/backend/internal/domain/fulfillment"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/infrastructure/config"
	"github.com/postcard/backend/internal/infrastructure/logger"
	"github.com/postcard/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Dispatch errors
var (
	// ErrSetupFailed wraps errors that aborted a campaign before any vendor call
	ErrSetupFailed = errors.New("dispatch setup failed")

	// ErrChargeFailed means the campaign finished but the ledger debit did not
	// go through. Running the dispatch again retries only the charge.
	ErrChargeFailed = errors.New("campaign charge failed")

	// ErrClaimHeld means another run is dispatching the campaign. The request
	// is worth retrying once that run has released the claim.
	ErrClaimHeld = errors.New("campaign dispatch already running")

	// ErrNotProcessing is returned for campaigns that were never sent
	ErrNotProcessing = shared.NewDomainError("INVALID_STATE", "Campaign is not processing")
)

// DuplicateSubmissionMessage is stored on a recipient whose vendor object id
// is already held by another recipient
const DuplicateSubmissionMessage = "This postcard was held because the mail vendor returned an id already used by another recipient. Contact support before retrying."

const (
	defaultClaimTTL = time.Hour
	spanService     = "dispatch"
)

// ClaimStore guards a campaign against concurrent dispatch runs
type ClaimStore interface {
	// Claim reports false when another run holds key
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release gives the claim back
	Release(ctx context.Context, key string) error
}

// Notifier reports a campaign's final status. Failures are logged only.
type Notifier interface {
	NotifyCampaignResult(ctx context.Context, c *campaign.Campaign, status campaign.CampaignStatus, cause error) error
}

// Config holds the orchestrator's tunables
type Config struct {
	// InterCallDelay is the pause between two vendor calls of one campaign
	InterCallDelay time.Duration
	// ClaimTTL bounds how long a crashed run can block the next one
	ClaimTTL time.Duration
}

// ConfigFromSettings maps the dispatch settings section
func ConfigFromSettings(cfg config.DispatchConfig) Config {
	return Config{InterCallDelay: cfg.InterCallDelay, ClaimTTL: cfg.ClaimTTL}
}

// Result summarizes one dispatch run
type Result struct {
	CampaignID      uuid.UUID
	Status          campaign.CampaignStatus
	Submitted       int
	Failed          int
	IntegrityErrors int
	Recovered       int
	Charged         bool
	// Skipped is set when another run holds the claim or the campaign had
	// already finished
	Skipped bool
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEventPublisher publishes campaign events after each save
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithNotifier sets the completion notifier
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithMetrics records dispatch counters
func WithMetrics(m *telemetry.DispatchMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSleep replaces the inter-call delay function
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// Orchestrator runs campaign dispatches. Runs of different campaigns may
// proceed concurrently; one campaign's recipients are always submitted one
// at a time.
type Orchestrator struct {
	campaigns  campaign.CampaignRepository
	recipients campaign.RecipientRepository
	gateway    fulfillment.Gateway
	ledger     billing.Ledger
	claims     ClaimStore
	cfg        Config

	events   shared.EventPublisher
	notifier Notifier
	metrics  *telemetry.DispatchMetrics
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(
	campaigns campaign.CampaignRepository,
	recipients campaign.RecipientRepository,
	gateway fulfillment.Gateway,
	ledger billing.Ledger,
	claims ClaimStore,
	cfg Config,
	opts ...Option,
) *Orchestrator {
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = defaultClaimTTL
	}
	o := &Orchestrator{
		campaigns:  campaigns,
		recipients: recipients,
		gateway:    gateway,
		ledger:     ledger,
		claims:     claims,
		cfg:        cfg,
		logger:     zap.NewNop(),
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ClaimKey is the claim store key of a campaign's dispatch
func ClaimKey(campaignID uuid.UUID) string {
	return "dispatch:" + campaignID.String()
}

// Dispatch implements scheduler.DispatchExecutor
func (o *Orchestrator) Dispatch(ctx context.Context, tenantID, campaignID uuid.UUID) error {
	_, err := o.Run(ctx, tenantID, campaignID)
	return err
}

// Run dispatches one campaign. Per-recipient vendor errors never abort the
// batch; setup errors mark the campaign failed and are returned wrapped in
// ErrSetupFailed. Duplicate vendor ids are returned as shared.ErrDataIntegrity
// after the campaign has been finalized.
func (o *Orchestrator) Run(ctx context.Context, tenantID, campaignID uuid.UUID) (result *Result, err error) {
	ctx = logger.WithCampaignID(logger.WithTenantID(ctx, tenantID), campaignID)
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "run",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrCampaignID, campaignID.String()),
	)
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.SetOK(span)
		}
		span.End()
	}()
	log := logger.Enrich(ctx, o.logger)
	result = &Result{CampaignID: campaignID}

	key := ClaimKey(campaignID)
	claimed, err := o.claims.Claim(ctx, key, o.cfg.ClaimTTL)
	if err != nil {
		return result, fmt.Errorf("failed to claim campaign dispatch: %w", err)
	}
	if !claimed {
		log.Info("Campaign dispatch already running, skipping")
		result.Skipped = true
		return result, ErrClaimHeld
	}
	defer func() {
		if relErr := o.claims.Release(context.WithoutCancel(ctx), key); relErr != nil {
			log.Warn("Failed to release dispatch claim", zap.Error(relErr))
		}
	}()
	telemetry.AddEvent(span, "claim_acquired")

	c, err := o.campaigns.FindByIDForTenant(ctx, tenantID, campaignID)
	if err != nil {
		return result, fmt.Errorf("failed to load campaign: %w", err)
	}
	result.Status = c.Status

	if c.Status.IsTerminal() {
		// A finished campaign only ever needs its charge retried.
		result.Skipped = true
		chargeErr := o.charge(ctx, c, result)
		return result, chargeErr
	}
	if c.Status != campaign.CampaignStatusProcessing {
		return result, ErrNotProcessing
	}

	recovered, err := o.recoverInterrupted(ctx, c)
	result.Recovered = recovered
	if err != nil {
		return result, err
	}

	from, artwork, setupErr := o.setup(ctx, c)
	if setupErr != nil {
		log.Error("Campaign setup failed, aborting dispatch", zap.Error(setupErr))
		if err := o.abort(ctx, c, setupErr); err != nil {
			return result, err
		}
		result.Status = c.Status
		return result, fmt.Errorf("%w: %w", ErrSetupFailed, setupErr)
	}

	var batchErr error
	telemetry.WithProfilingLabels(ctx, map[string]string{
		telemetry.ProfilingLabelOperation: "dispatch",
		telemetry.ProfilingLabelMailClass: c.MailClass.String(),
		telemetry.ProfilingLabelTenantID:  c.TenantID.String(),
	}, func(ctx context.Context) {
		batchErr = o.runBatch(ctx, c, from, artwork, result)
	})
	if batchErr != nil && ctx.Err() != nil {
		// Shutdown: leave the campaign processing so the next run resumes
		// with the recipients still pending.
		log.Warn("Dispatch interrupted by cancellation", zap.Error(batchErr))
		return result, batchErr
	}

	if err := o.finish(ctx, c, batchErr); err != nil {
		return result, err
	}
	result.Status = c.Status
	telemetry.SetAttributes(span,
		telemetry.SpanAttrStatus, c.Status.String(),
		"submitted", result.Submitted,
		"failed", result.Failed,
	)

	chargeErr := o.charge(ctx, c, result)
	o.completed(ctx, c, result)

	log.Info("Campaign dispatch finished",
		zap.String("status", c.Status.String()),
		zap.Int("submitted", result.Submitted),
		zap.Int("failed", result.Failed),
		zap.Int("integrity_errors", result.IntegrityErrors),
		zap.Int64("actual_cost", c.ActualCost),
		zap.Bool("charged", result.Charged),
	)

	switch {
	case batchErr != nil:
		return result, batchErr
	case result.IntegrityErrors > 0:
		return result, fmt.Errorf("%w: %d recipient(s) received a vendor id already in use",
			shared.ErrDataIntegrity, result.IntegrityErrors)
	default:
		return result, chargeErr
	}
}

// recoverInterrupted fails recipients a crashed run left in sending without a
// vendor id. They are never resubmitted automatically.
func (o *Orchestrator) recoverInterrupted(ctx context.Context, c *campaign.Campaign) (int, error) {
	stuck, err := o.recipients.FindByStatus(ctx, c.TenantID, c.ID, campaign.RecipientStatusSending)
	if err != nil {
		return 0, fmt.Errorf("failed to load interrupted recipients: %w", err)
	}
	log := logger.Enrich(ctx, o.logger)
	recovered := 0
	for i := range stuck {
		rec := &stuck[i]
		if rec.HasVendorObject() {
			log.Warn("Recipient left sending with a vendor object id",
				zap.String("recipient_id", rec.ID.String()),
				zap.String("vendor_object_id", *rec.VendorObjectID))
			continue
		}
		if err := rec.MarkFailed(campaign.DispatchInterruptedMessage, ""); err != nil {
			return recovered, err
		}
		if err := o.recipients.Save(ctx, rec); err != nil {
			return recovered, fmt.Errorf("failed to save interrupted recipient: %w", err)
		}
		recovered++
	}
	if recovered > 0 {
		log.Warn("Failed recipients interrupted by an earlier run", zap.Int("count", recovered))
	}
	return recovered, nil
}

func (o *Orchestrator) setup(ctx context.Context, c *campaign.Campaign) (fulfillment.ReturnAddress, fulfillment.ResolvedArtwork, error) {
	if c.FromAddress.IsEmpty() {
		return fulfillment.ReturnAddress{}, fulfillment.ResolvedArtwork{},
			shared.NewDomainError("MISSING_RETURN_ADDRESS", "Campaign has no return address")
	}
	artwork, err := o.gateway.ResolveArtwork(ctx, c)
	if err != nil {
		return fulfillment.ReturnAddress{}, fulfillment.ResolvedArtwork{}, err
	}
	return fulfillment.ReturnAddress{Name: c.FromName, Address: c.FromAddress}, artwork, nil
}

func (o *Orchestrator) abort(ctx context.Context, c *campaign.Campaign, cause error) error {
	if err := c.MarkFailed(failureReason(cause), o.now()); err != nil {
		return err
	}
	if err := o.campaigns.Save(ctx, c); err != nil {
		return fmt.Errorf("failed to save aborted campaign: %w", err)
	}
	o.publish(ctx, c)
	o.metrics.RecordCampaignFinished(ctx, c.Status.String())
	o.notify(ctx, c, cause)
	return nil
}

type outcome int

const (
	outcomeSubmitted outcome = iota
	outcomeFailed
	outcomeIntegrity
)

func (o *Orchestrator) runBatch(ctx context.Context, c *campaign.Campaign, from fulfillment.ReturnAddress, artwork fulfillment.ResolvedArtwork, result *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panicked: %v", r)
		}
	}()

	// Recipients reset while the run is going land in a later round.
	calls := 0
	for round := 1; ; round++ {
		recipients, err := o.recipients.FindSendable(ctx, c.TenantID, c.ID, c.SuppressionOverride)
		if err != nil {
			return fmt.Errorf("failed to load sendable recipients: %w", err)
		}
		if len(recipients) == 0 {
			return nil
		}
		logger.Enrich(ctx, o.logger).Info("Dispatching campaign",
			zap.Int("round", round),
			zap.Int("recipients", len(recipients)),
			zap.Bool("suppression_override", c.SuppressionOverride))

		for i := range recipients {
			if calls > 0 && o.cfg.InterCallDelay > 0 {
				if err := o.sleep(ctx, o.cfg.InterCallDelay); err != nil {
					return err
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			calls++

			res, err := o.submit(ctx, c, &recipients[i], from, artwork)
			if err != nil {
				return err
			}
			switch res {
			case outcomeSubmitted:
				result.Submitted++
			case outcomeFailed:
				result.Failed++
			case outcomeIntegrity:
				result.IntegrityErrors++
			}
		}
	}
}

// submit runs one recipient's create-or-fail sequence. Vendor errors become a
// failed recipient; only storage errors are returned.
func (o *Orchestrator) submit(ctx context.Context, c *campaign.Campaign, rec *campaign.Recipient, from fulfillment.ReturnAddress, artwork fulfillment.ResolvedArtwork) (outcome, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "submit",
		telemetry.WithAttribute(telemetry.SpanAttrRecipientID, rec.ID.String()))
	defer span.End()
	log := logger.Enrich(ctx, o.logger).With(zap.String("recipient_id", rec.ID.String()))

	if err := rec.MarkSending(); err != nil {
		return outcomeFailed, err
	}
	if err := o.recipients.Save(ctx, rec); err != nil {
		return outcomeFailed, fmt.Errorf("failed to mark recipient sending: %w", err)
	}

	started := time.Now()
	piece, callErr := o.gateway.CreateMailPiece(ctx, fulfillment.CreateRequest{
		TenantID:       c.TenantID,
		Campaign:       c,
		Recipient:      rec,
		From:           from,
		Artwork:        artwork,
		IdempotencyKey: rec.IdempotencyKey(),
	})
	o.metrics.RecordVendorCall(ctx, "create", time.Since(started), callErr)

	if callErr != nil {
		cause := fulfillment.Classify(callErr)
		telemetry.RecordError(span, callErr)
		log.Warn("Vendor rejected mail piece", zap.String("cause", string(cause)), zap.Error(callErr))
		if err := rec.MarkFailed(cause.UserMessage(), ""); err != nil {
			return outcomeFailed, err
		}
		if err := o.recipients.Save(ctx, rec); err != nil {
			return outcomeFailed, fmt.Errorf("failed to save failed recipient: %w", err)
		}
		o.metrics.RecordFailed(ctx, string(cause))
		return outcomeFailed, nil
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrVendorObjectID, piece.ID)
	err := rec.MarkSent(campaign.SentDetails{
		VendorObjectID:       piece.ID,
		Cost:                 piece.PriceCents,
		TrackingURL:          piece.URL,
		ExpectedDeliveryDate: piece.ExpectedDeliveryDate,
		Snapshot:             piece.Snapshot,
	}, o.now())
	if err == nil {
		err = o.recipients.Save(ctx, rec)
	}
	if errors.Is(err, shared.ErrDataIntegrity) {
		log.Error("Vendor object id already assigned, holding recipient",
			zap.String("vendor_object_id", piece.ID), zap.Error(err))
		telemetry.RecordError(span, err)
		if holdErr := o.hold(ctx, rec); holdErr != nil {
			return outcomeIntegrity, holdErr
		}
		o.metrics.RecordFailed(ctx, "data_integrity")
		return outcomeIntegrity, nil
	}
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to save sent recipient: %w", err)
	}

	o.metrics.RecordSubmitted(ctx, c.MailClass.String(), c.MailSize.String(), piece.PriceCents)
	return outcomeSubmitted, nil
}

// hold reloads the stored sending row and fails it with the integrity message
func (o *Orchestrator) hold(ctx context.Context, rec *campaign.Recipient) error {
	stored, err := o.recipients.FindByIDForTenant(ctx, rec.TenantID, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to reload recipient: %w", err)
	}
	if err := stored.MarkFailed(DuplicateSubmissionMessage, ""); err != nil {
		return err
	}
	if err := o.recipients.Save(ctx, stored); err != nil {
		return fmt.Errorf("failed to save held recipient: %w", err)
	}
	*rec = *stored
	return nil
}

// finish recomputes the rollup and sets the terminal status. An error that
// escaped the batch fails the campaign regardless of the counts.
func (o *Orchestrator) finish(ctx context.Context, c *campaign.Campaign, batchErr error) error {
	totals, err := o.recipients.StatusTotals(ctx, c.TenantID, c.ID)
	if err != nil {
		return fmt.Errorf("failed to compute campaign totals: %w", err)
	}
	rollup := cost.Summarize(totals)
	if err := c.ApplyRollup(rollup); err != nil {
		return err
	}

	now := o.now()
	if batchErr != nil {
		logger.Enrich(ctx, o.logger).Error("Dispatch aborted mid-batch", zap.Error(batchErr))
		err = c.MarkFailed("Dispatch stopped unexpectedly. Sent postcards are kept and billed.", now)
	} else {
		err = c.Finalize(rollup.SentCount, rollup.FailedCount, rollup.ActualCost, now)
	}
	if err != nil {
		return err
	}
	if err := o.campaigns.Save(ctx, c); err != nil {
		return fmt.Errorf("failed to save finalized campaign: %w", err)
	}
	o.metrics.RecordCampaignFinished(ctx, c.Status.String())
	o.publish(ctx, c)
	o.notify(ctx, c, batchErr)
	return nil
}

// charge debits the ledger once for a finished campaign with a positive cost
func (o *Orchestrator) charge(ctx context.Context, c *campaign.Campaign, result *Result) error {
	if c.IsCharged() {
		result.Charged = true
		return nil
	}
	if c.ActualCost <= 0 {
		return nil
	}
	log := logger.Enrich(ctx, o.logger)

	_, err := o.ledger.ChargeForCampaign(ctx, c.TenantID, c.ID, c.ActualCost, nil)
	if err != nil && !errors.Is(err, billing.ErrAlreadyCharged) {
		log.Error("Failed to charge campaign", zap.Int64("amount_cents", c.ActualCost), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrChargeFailed, err)
	}
	if err := c.MarkCharged(o.now()); err != nil && !errors.Is(err, campaign.ErrAlreadyCharged) {
		return err
	}
	if err := o.campaigns.Save(ctx, c); err != nil {
		return fmt.Errorf("%w: failed to record charge: %w", ErrChargeFailed, err)
	}
	result.Charged = true
	log.Info("Campaign charged", zap.Int64("amount_cents", c.ActualCost))
	return nil
}

func (o *Orchestrator) completed(ctx context.Context, c *campaign.Campaign, result *Result) {
	if o.events == nil {
		return
	}
	ev := campaign.NewCampaignDispatchCompletedEvent(c, result.IntegrityErrors)
	if err := o.events.Publish(ctx, ev); err != nil {
		logger.Enrich(ctx, o.logger).Warn("Failed to publish dispatch completion", zap.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, c *campaign.Campaign) {
	events := c.GetDomainEvents()
	c.ClearDomainEvents()
	if o.events == nil || len(events) == 0 {
		return
	}
	if err := o.events.Publish(ctx, events...); err != nil {
		logger.Enrich(ctx, o.logger).Warn("Failed to publish campaign events", zap.Error(err))
	}
}

// notify never lets a notifier failure or panic reach the dispatch
func (o *Orchestrator) notify(ctx context.Context, c *campaign.Campaign, cause error) {
	if o.notifier == nil {
		return
	}
	log := logger.Enrich(ctx, o.logger)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Notifier panicked", zap.Any("panic", r))
		}
	}()
	if err := o.notifier.NotifyCampaignResult(ctx, c, c.Status, cause); err != nil {
		log.Warn("Failed to send campaign result notification", zap.Error(err))
	}
}

func failureReason(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return "Campaign could not be prepared for sending: " + err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
