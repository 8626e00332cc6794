// Package notification reports finished campaign dispatches to the tenant.
// Delivery of the actual email is owned by an external service reached
// through a signed webhook; without one configured results are only logged.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// CampaignResult is the payload describing a finished campaign
type CampaignResult struct {
	TenantID        uuid.UUID               `json:"tenant_id"`
	CampaignID      uuid.UUID               `json:"campaign_id"`
	CampaignName    string                  `json:"campaign_name"`
	Status          campaign.CampaignStatus `json:"status"`
	RecipientCount  int                     `json:"recipient_count"`
	SentCount       int                     `json:"sent_count"`
	FailedCount     int                     `json:"failed_count"`
	ActualCostCents int64                   `json:"actual_cost_cents"`
	Error           string                  `json:"error,omitempty"`
	CompletedAt     time.Time               `json:"completed_at"`
}

// NewCampaignResult builds the payload for a campaign in its final status
func NewCampaignResult(c *campaign.Campaign, status campaign.CampaignStatus, cause error) CampaignResult {
	r := CampaignResult{
		TenantID:        c.TenantID,
		CampaignID:      c.ID,
		CampaignName:    c.Name,
		Status:          status,
		RecipientCount:  c.RecipientCount,
		SentCount:       c.SentCount,
		FailedCount:     c.FailedCount,
		ActualCostCents: c.ActualCost,
		CompletedAt:     time.Now().UTC(),
	}
	if c.CompletedAt != nil {
		r.CompletedAt = c.CompletedAt.UTC()
	}
	switch {
	case cause != nil:
		r.Error = cause.Error()
	case c.FailureReason != "":
		r.Error = c.FailureReason
	}
	return r
}

// LogNotifier writes campaign results to the log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// NotifyCampaignResult logs the result
func (n *LogNotifier) NotifyCampaignResult(_ context.Context, c *campaign.Campaign, status campaign.CampaignStatus, cause error) error {
	r := NewCampaignResult(c, status, cause)
	n.logger.Info("Campaign result",
		zap.String("tenant_id", r.TenantID.String()),
		zap.String("campaign_id", r.CampaignID.String()),
		zap.String("status", string(r.Status)),
		zap.Int("sent", r.SentCount),
		zap.Int("failed", r.FailedCount),
		zap.Int64("actual_cost_cents", r.ActualCostCents),
		zap.String("error", r.Error),
	)
	return nil
}

// Notifier reports a campaign's final status
type Notifier interface {
	NotifyCampaignResult(ctx context.Context, c *campaign.Campaign, status campaign.CampaignStatus, cause error) error
}

// New returns the notifier configured by cfg
func New(cfg config.NotificationConfig, logger *zap.Logger) (Notifier, error) {
	if cfg.WebhookURL == "" {
		return NewLogNotifier(logger), nil
	}
	return NewWebhookNotifier(cfg, logger)
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*WebhookNotifier)(nil)
)
