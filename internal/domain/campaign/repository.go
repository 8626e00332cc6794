package campaign

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/shared"
)

// StatusTotal is the number of recipients and their summed cost in one status
type StatusTotal struct {
	Status RecipientStatus
	Count  int
	Cost   int64
}

// CampaignRepository defines the interface for campaign persistence.
// Every read is scoped by an explicit tenant ID.
type CampaignRepository interface {
	// FindByIDForTenant finds a campaign by ID within a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Campaign, error)

	// FindAllForTenant lists campaigns for a tenant
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Campaign, error)

	// CountForTenant counts campaigns for a tenant
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error)

	// FindDueScheduled returns scheduled campaigns whose release time has passed, across tenants
	FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]Campaign, error)

	// FindProcessing returns campaigns still processing whose send started
	// before the cutoff, across tenants
	FindProcessing(ctx context.Context, sentBefore time.Time, limit int) ([]Campaign, error)

	// Save saves a campaign (insert or update)
	Save(ctx context.Context, c *Campaign) error

	// SaveRollup writes only the cached counters and actual cost, leaving
	// status and lifecycle timestamps to their owner
	SaveRollup(ctx context.Context, c *Campaign) error
}

// RecipientRepository is the recipient registry
type RecipientRepository interface {
	// FindByIDForTenant finds a recipient by ID within a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Recipient, error)

	// FindByCampaign lists a campaign's recipients in creation order
	FindByCampaign(ctx context.Context, tenantID, campaignID uuid.UUID, filter shared.Filter) ([]Recipient, error)

	// CountByCampaign counts a campaign's recipients matching the filter
	CountByCampaign(ctx context.Context, tenantID, campaignID uuid.UUID, filter shared.Filter) (int64, error)

	// FindSendable returns pending recipients in creation order. Suppressed
	// recipients are included only when includeSuppressed is true.
	FindSendable(ctx context.Context, tenantID, campaignID uuid.UUID, includeSuppressed bool) ([]Recipient, error)

	// FindByStatus returns a campaign's recipients in one status, in creation order
	FindByStatus(ctx context.Context, tenantID, campaignID uuid.UUID, status RecipientStatus) ([]Recipient, error)

	// FindForReconciliation pages across tenants through sent/in_transit recipients
	// that hold a vendor object id, ordered by id and starting after the cursor.
	FindForReconciliation(ctx context.Context, afterID uuid.UUID, limit int) ([]Recipient, error)

	// StatusTotals groups a campaign's recipients by status
	StatusTotals(ctx context.Context, tenantID, campaignID uuid.UUID) ([]StatusTotal, error)

	// Save saves a recipient. A vendor object id already held by another
	// recipient yields ErrDuplicateVendorObject.
	Save(ctx context.Context, r *Recipient) error

	// SaveBatch inserts or updates several recipients in one transaction
	SaveBatch(ctx context.Context, recipients []*Recipient) error
}
