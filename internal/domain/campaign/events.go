package campaign

import (
	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/shared"
)

// Aggregate type constants
const (
	AggregateTypeCampaign  = "Campaign"
	AggregateTypeRecipient = "Recipient"
)

// Event type constants
const (
	EventTypeCampaignCreated           = "CampaignCreated"
	EventTypeCampaignStatusChanged     = "CampaignStatusChanged"
	EventTypeCampaignSendRequested     = "CampaignSendRequested"
	EventTypeCampaignCancelled         = "CampaignCancelled"
	EventTypeCampaignFinalized         = "CampaignFinalized"
	EventTypeCampaignDispatchCompleted = "CampaignDispatchCompleted"
	EventTypeRecipientStatusChanged    = "RecipientStatusChanged"
)

// CampaignCreatedEvent is published when a new campaign draft is created
type CampaignCreatedEvent struct {
	shared.BaseDomainEvent
	CampaignID uuid.UUID `json:"campaign_id"`
	Name       string    `json:"name"`
	MailClass  MailClass `json:"mail_class"`
	MailSize   MailSize  `json:"mail_size"`
}

// NewCampaignCreatedEvent creates a new CampaignCreatedEvent
func NewCampaignCreatedEvent(c *Campaign) *CampaignCreatedEvent {
	return &CampaignCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCampaignCreated, AggregateTypeCampaign, c.ID, c.TenantID),
		CampaignID:      c.ID,
		Name:            c.Name,
		MailClass:       c.MailClass,
		MailSize:        c.MailSize,
	}
}

// CampaignStatusChangedEvent is published on every campaign status transition
type CampaignStatusChangedEvent struct {
	shared.BaseDomainEvent
	CampaignID uuid.UUID      `json:"campaign_id"`
	OldStatus  CampaignStatus `json:"old_status"`
	NewStatus  CampaignStatus `json:"new_status"`
}

// NewCampaignStatusChangedEvent creates a new CampaignStatusChangedEvent
func NewCampaignStatusChangedEvent(c *Campaign, oldStatus, newStatus CampaignStatus) *CampaignStatusChangedEvent {
	return &CampaignStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCampaignStatusChanged, AggregateTypeCampaign, c.ID, c.TenantID),
		CampaignID:      c.ID,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
	}
}

// CampaignSendRequestedEvent is published when send_now moves a campaign into processing
type CampaignSendRequestedEvent struct {
	shared.BaseDomainEvent
	CampaignID     uuid.UUID `json:"campaign_id"`
	RecipientCount int       `json:"recipient_count"`
	EstimatedCost  int64     `json:"estimated_cost"`
}

// NewCampaignSendRequestedEvent creates a new CampaignSendRequestedEvent
func NewCampaignSendRequestedEvent(c *Campaign) *CampaignSendRequestedEvent {
	return &CampaignSendRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCampaignSendRequested, AggregateTypeCampaign, c.ID, c.TenantID),
		CampaignID:      c.ID,
		RecipientCount:  c.RecipientCount,
		EstimatedCost:   c.EstimatedCost,
	}
}

// CampaignCancelledEvent is published when a scheduled campaign is cancelled
type CampaignCancelledEvent struct {
	shared.BaseDomainEvent
	CampaignID uuid.UUID `json:"campaign_id"`
}

// NewCampaignCancelledEvent creates a new CampaignCancelledEvent
func NewCampaignCancelledEvent(c *Campaign) *CampaignCancelledEvent {
	return &CampaignCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCampaignCancelled, AggregateTypeCampaign, c.ID, c.TenantID),
		CampaignID:      c.ID,
	}
}

// CampaignFinalizedEvent is published when a campaign reaches a terminal status after dispatch
type CampaignFinalizedEvent struct {
	shared.BaseDomainEvent
	CampaignID    uuid.UUID      `json:"campaign_id"`
	Status        CampaignStatus `json:"status"`
	SentCount     int            `json:"sent_count"`
	FailedCount   int            `json:"failed_count"`
	ActualCost    int64          `json:"actual_cost"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

// NewCampaignFinalizedEvent creates a new CampaignFinalizedEvent
func NewCampaignFinalizedEvent(c *Campaign) *CampaignFinalizedEvent {
	return &CampaignFinalizedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCampaignFinalized, AggregateTypeCampaign, c.ID, c.TenantID),
		CampaignID:      c.ID,
		Status:          c.Status,
		SentCount:       c.SentCount,
		FailedCount:     c.FailedCount,
		ActualCost:      c.ActualCost,
		FailureReason:   c.FailureReason,
	}
}

// CampaignDispatchCompletedEvent is published by the dispatcher after finalize and charge
type CampaignDispatchCompletedEvent struct {
	shared.BaseDomainEvent
	CampaignID      uuid.UUID      `json:"campaign_id"`
	Status          CampaignStatus `json:"status"`
	SentCount       int            `json:"sent_count"`
	FailedCount     int            `json:"failed_count"`
	IntegrityErrors int            `json:"integrity_errors"`
	ActualCost      int64          `json:"actual_cost"`
	Charged         bool           `json:"charged"`
}

// NewCampaignDispatchCompletedEvent creates a new CampaignDispatchCompletedEvent
func NewCampaignDispatchCompletedEvent(c *Campaign, integrityErrors int) *CampaignDispatchCompletedEvent {
	return &CampaignDispatchCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCampaignDispatchCompleted, AggregateTypeCampaign, c.ID, c.TenantID),
		CampaignID:      c.ID,
		Status:          c.Status,
		SentCount:       c.SentCount,
		FailedCount:     c.FailedCount,
		IntegrityErrors: integrityErrors,
		ActualCost:      c.ActualCost,
		Charged:         c.IsCharged(),
	}
}

// RecipientStatusChangedEvent is published when the reconciler advances a recipient
type RecipientStatusChangedEvent struct {
	shared.BaseDomainEvent
	RecipientID uuid.UUID       `json:"recipient_id"`
	CampaignID  uuid.UUID       `json:"campaign_id"`
	OldStatus   RecipientStatus `json:"old_status"`
	NewStatus   RecipientStatus `json:"new_status"`
}

// NewRecipientStatusChangedEvent creates a new RecipientStatusChangedEvent
func NewRecipientStatusChangedEvent(r *Recipient, oldStatus, newStatus RecipientStatus) *RecipientStatusChangedEvent {
	return &RecipientStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRecipientStatusChanged, AggregateTypeRecipient, r.ID, r.TenantID),
		RecipientID:     r.ID,
		CampaignID:      r.CampaignID,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
	}
}
