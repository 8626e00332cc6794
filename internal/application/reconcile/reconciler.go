// Package reconcile polls the mail vendor for the delivery status of
// submitted postcards and applies changes to the recipient registry.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/cost"
	"github.com/postcard/backend/internal/domain/fulfillment"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/infrastructure/config"
	"github.com/postcard/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const defaultBatchSize = 100

// Config holds the reconciler's tunables
type Config struct {
	BatchSize      int
	InterCallDelay time.Duration
}

// ConfigFromSettings maps the reconcile and dispatch settings sections
func ConfigFromSettings(rc config.ReconcileConfig, dc config.DispatchConfig) Config {
	return Config{BatchSize: rc.BatchSize, InterCallDelay: dc.InterCallDelay}
}

// Summary describes one reconciliation pass
type Summary struct {
	Checked int
	Changed int
	Failed  int
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithEventPublisher publishes recipient status changes
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(r *Reconciler) { r.events = p }
}

// WithMetrics records status change counters
func WithMetrics(m *telemetry.DispatchMetrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithSleep replaces the inter-call delay function
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Reconciler) { r.sleep = sleep }
}

// Reconciler maps vendor delivery statuses onto recipients. It only touches
// sent and in_transit recipients, so it never races a dispatch run.
type Reconciler struct {
	campaigns  campaign.CampaignRepository
	recipients campaign.RecipientRepository
	gateway    fulfillment.Gateway
	cfg        Config

	events  shared.EventPublisher
	metrics *telemetry.DispatchMetrics
	logger  *zap.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewReconciler creates a reconciler
func NewReconciler(campaigns campaign.CampaignRepository, recipients campaign.RecipientRepository, gateway fulfillment.Gateway, cfg Config, opts ...Option) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	r := &Reconciler{
		campaigns:  campaigns,
		recipients: recipients,
		gateway:    gateway,
		cfg:        cfg,
		logger:     zap.NewNop(),
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run makes one pass over every reconcilable recipient across tenants.
// Per-recipient errors are counted and logged; only paging errors and
// cancellation stop the pass.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "run")
	defer span.End()

	var (
		summary Summary
		cursor  = uuid.Nil
		calls   int
	)
	for {
		batch, err := r.recipients.FindForReconciliation(ctx, cursor, r.cfg.BatchSize)
		if err != nil {
			telemetry.RecordError(span, err)
			return summary, fmt.Errorf("failed to load recipients for reconciliation: %w", err)
		}
		for i := range batch {
			rec := &batch[i]
			cursor = rec.ID

			if calls > 0 && r.cfg.InterCallDelay > 0 {
				if err := r.sleep(ctx, r.cfg.InterCallDelay); err != nil {
					return summary, err
				}
			}
			calls++

			summary.Checked++
			changed, err := r.reconcileOne(ctx, rec)
			if err != nil {
				summary.Failed++
				r.logger.Warn("Failed to reconcile recipient",
					zap.String("recipient_id", rec.ID.String()),
					zap.String("campaign_id", rec.CampaignID.String()),
					zap.Error(err))
				continue
			}
			if changed {
				summary.Changed++
			}
		}
		if len(batch) < r.cfg.BatchSize {
			break
		}
	}

	telemetry.SetAttributes(span, "checked", summary.Checked, "changed", summary.Changed, "failed", summary.Failed)
	r.logger.Info("Reconciliation pass finished",
		zap.Int("checked", summary.Checked),
		zap.Int("changed", summary.Changed),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// reconcileOne fetches the vendor status of one recipient and applies it.
// Unrecognized vendor statuses leave the recipient unchanged.
func (r *Reconciler) reconcileOne(ctx context.Context, rec *campaign.Recipient) (bool, error) {
	if !rec.HasVendorObject() {
		return false, nil
	}
	started := time.Now()
	mp, err := r.gateway.GetMailPiece(ctx, rec.TenantID, *rec.VendorObjectID)
	r.metrics.RecordVendorCall(ctx, "get", time.Since(started), err)
	if err != nil {
		return false, err
	}

	target, ok := fulfillment.MapVendorStatus(mp.Status)
	if !ok {
		return false, nil
	}
	old := rec.Status
	if !rec.ApplyDeliveryStatus(target, r.now()) {
		return false, nil
	}
	if err := r.recipients.Save(ctx, rec); err != nil {
		return false, fmt.Errorf("failed to save recipient: %w", err)
	}
	r.publish(ctx, rec)
	r.metrics.RecordStatusChange(ctx, target.String())
	r.logger.Debug("Recipient status changed",
		zap.String("recipient_id", rec.ID.String()),
		zap.String("from", old.String()),
		zap.String("to", target.String()))

	if err := r.RefreshRollup(ctx, rec.TenantID, rec.CampaignID); err != nil {
		return true, err
	}
	return true, nil
}

// RefreshRollup recomputes a campaign's cached counters from its recipients.
// A campaign still processing is left alone; its dispatch recounts at finish.
func (r *Reconciler) RefreshRollup(ctx context.Context, tenantID, campaignID uuid.UUID) error {
	c, err := r.campaigns.FindByIDForTenant(ctx, tenantID, campaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	if c.Status == campaign.CampaignStatusProcessing {
		return nil
	}
	totals, err := r.recipients.StatusTotals(ctx, tenantID, campaignID)
	if err != nil {
		return fmt.Errorf("failed to compute campaign totals: %w", err)
	}
	if err := c.ApplyRollup(cost.Summarize(totals)); err != nil {
		return err
	}
	return r.campaigns.SaveRollup(ctx, c)
}

func (r *Reconciler) publish(ctx context.Context, rec *campaign.Recipient) {
	events := rec.GetDomainEvents()
	rec.ClearDomainEvents()
	if r.events == nil || len(events) == 0 {
		return
	}
	if err := r.events.Publish(ctx, events...); err != nil {
		r.logger.Warn("Failed to publish recipient events", zap.Error(err))
	}
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
