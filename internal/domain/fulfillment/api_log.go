package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/shared"
)

// VendorAPILog is an append-only audit record of one outbound vendor call.
// Request and response bodies are stored redacted.
type VendorAPILog struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	CampaignID       *uuid.UUID
	RecipientID      *uuid.UUID
	Endpoint         string
	Method           string
	RequestBody      string
	ResponseBody     string
	StatusCode       int
	Success          bool
	ErrorMessage     string
	DurationMs       int64
	CostCents        int64
	VendorObjectID   string
	VendorObjectType string
	CreatedAt        time.Time
}

// NewVendorAPILog creates a log record for a call that has just finished
func NewVendorAPILog(tenantID uuid.UUID, method, endpoint string, started time.Time) *VendorAPILog {
	return &VendorAPILog{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Method:     method,
		Endpoint:   endpoint,
		DurationMs: time.Since(started).Milliseconds(),
		CreatedAt:  time.Now(),
	}
}

// VendorAPILogRepository appends audit records
type VendorAPILogRepository interface {
	Create(ctx context.Context, log *VendorAPILog) error
	FindByRecipient(ctx context.Context, tenantID, recipientID uuid.UUID) ([]VendorAPILog, error)
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]VendorAPILog, error)
}
