package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCampaignRepository implements CampaignRepository using GORM
type GormCampaignRepository struct {
	db *gorm.DB
}

// NewGormCampaignRepository creates a new GormCampaignRepository
func NewGormCampaignRepository(db *gorm.DB) *GormCampaignRepository {
	return &GormCampaignRepository{db: db}
}

// FindByIDForTenant finds a campaign by ID within a specific tenant
func (r *GormCampaignRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*campaign.Campaign, error) {
	var model models.CampaignModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant finds all campaigns for a specific tenant
func (r *GormCampaignRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]campaign.Campaign, error) {
	var campaignModels []models.CampaignModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.CampaignModel{}).Where("tenant_id = ?", tenantID), filter)

	if err := query.Find(&campaignModels).Error; err != nil {
		return nil, err
	}

	campaigns := make([]campaign.Campaign, len(campaignModels))
	for i, model := range campaignModels {
		campaigns[i] = *model.ToDomain()
	}
	return campaigns, nil
}

// CountForTenant counts campaigns for a specific tenant
func (r *GormCampaignRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.CampaignModel{}).Where("tenant_id = ?", tenantID), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindDueScheduled finds scheduled campaigns whose release time has passed, oldest first
func (r *GormCampaignRepository) FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]campaign.Campaign, error) {
	var campaignModels []models.CampaignModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", string(campaign.CampaignStatusScheduled), now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&campaignModels).Error; err != nil {
		return nil, err
	}

	return toCampaigns(campaignModels), nil
}

// FindProcessing finds campaigns left processing since before the cutoff, oldest first
func (r *GormCampaignRepository) FindProcessing(ctx context.Context, sentBefore time.Time, limit int) ([]campaign.Campaign, error) {
	var campaignModels []models.CampaignModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND sent_at <= ?", string(campaign.CampaignStatusProcessing), sentBefore).
		Order("sent_at ASC").
		Limit(limit).
		Find(&campaignModels).Error; err != nil {
		return nil, err
	}
	return toCampaigns(campaignModels), nil
}

// Save creates or updates a campaign
func (r *GormCampaignRepository) Save(ctx context.Context, c *campaign.Campaign) error {
	model := models.CampaignModelFromDomain(c)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveRollup updates the counter columns of an existing campaign
func (r *GormCampaignRepository) SaveRollup(ctx context.Context, c *campaign.Campaign) error {
	result := r.db.WithContext(ctx).
		Model(&models.CampaignModel{}).
		Where("id = ? AND tenant_id = ?", c.ID, c.TenantID).
		Updates(map[string]any{
			"recipient_count": c.RecipientCount,
			"sent_count":      c.SentCount,
			"failed_count":    c.FailedCount,
			"delivered_count": c.DeliveredCount,
			"actual_cost":     c.ActualCost,
			"updated_at":      c.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *GormCampaignRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	return query.Order(orderClause(filter, campaignColumns))
}

func (r *GormCampaignRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		query = query.Where("name LIKE ?", "%"+filter.Search+"%")
	}
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "mail_class":
			query = query.Where("mail_class = ?", value)
		}
	}
	return query
}

// Ensure GormCampaignRepository implements CampaignRepository
var _ campaign.CampaignRepository = (*GormCampaignRepository)(nil)

func toCampaigns(campaignModels []models.CampaignModel) []campaign.Campaign {
	campaigns := make([]campaign.Campaign, len(campaignModels))
	for i, model := range campaignModels {
		campaigns[i] = *model.ToDomain()
	}
	return campaigns
}
