package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/fulfillment"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormVendorAPILogRepository implements VendorAPILogRepository using GORM.
// Rows are append-only.
type GormVendorAPILogRepository struct {
	db *gorm.DB
}

// NewGormVendorAPILogRepository creates a new GormVendorAPILogRepository
func NewGormVendorAPILogRepository(db *gorm.DB) *GormVendorAPILogRepository {
	return &GormVendorAPILogRepository{db: db}
}

// Create appends a log row
func (r *GormVendorAPILogRepository) Create(ctx context.Context, log *fulfillment.VendorAPILog) error {
	return r.db.WithContext(ctx).Create(models.VendorAPILogModelFromDomain(log)).Error
}

// FindByRecipient lists the calls made for one recipient, oldest first
func (r *GormVendorAPILogRepository) FindByRecipient(ctx context.Context, tenantID, recipientID uuid.UUID) ([]fulfillment.VendorAPILog, error) {
	var logModels []models.VendorAPILogModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND recipient_id = ?", tenantID, recipientID).
		Order("created_at ASC").
		Find(&logModels).Error; err != nil {
		return nil, err
	}
	return toVendorAPILogs(logModels), nil
}

// FindAllForTenant lists a tenant's calls, newest first
func (r *GormVendorAPILogRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]fulfillment.VendorAPILog, error) {
	query := r.db.WithContext(ctx).Model(&models.VendorAPILogModel{}).Where("tenant_id = ?", tenantID)
	for key, value := range filter.Filters {
		switch key {
		case "campaign_id":
			query = query.Where("campaign_id = ?", value)
		case "success":
			query = query.Where("success = ?", value)
		}
	}
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	var logModels []models.VendorAPILogModel
	if err := query.Order("created_at DESC").Find(&logModels).Error; err != nil {
		return nil, err
	}
	return toVendorAPILogs(logModels), nil
}

func toVendorAPILogs(logModels []models.VendorAPILogModel) []fulfillment.VendorAPILog {
	logs := make([]fulfillment.VendorAPILog, len(logModels))
	for i, model := range logModels {
		logs[i] = *model.ToDomain()
	}
	return logs
}

// Ensure GormVendorAPILogRepository implements VendorAPILogRepository
var _ fulfillment.VendorAPILogRepository = (*GormVendorAPILogRepository)(nil)
