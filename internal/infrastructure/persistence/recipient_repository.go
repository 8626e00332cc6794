package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// reconcilableStatuses are the statuses the reconciler polls
var reconcilableStatuses = []string{
	string(campaign.RecipientStatusSent),
	string(campaign.RecipientStatusInTransit),
}

// GormRecipientRepository implements RecipientRepository using GORM
type GormRecipientRepository struct {
	db *gorm.DB
}

// NewGormRecipientRepository creates a new GormRecipientRepository
func NewGormRecipientRepository(db *gorm.DB) *GormRecipientRepository {
	return &GormRecipientRepository{db: db}
}

// FindByIDForTenant finds a recipient by ID within a specific tenant
func (r *GormRecipientRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*campaign.Recipient, error) {
	var model models.RecipientModel
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

// FindByCampaign lists a campaign's recipients, creation order by default
func (r *GormRecipientRepository) FindByCampaign(ctx context.Context, tenantID, campaignID uuid.UUID, filter shared.Filter) ([]campaign.Recipient, error) {
	var recipientModels []models.RecipientModel
	query := r.applyFilter(r.campaignScope(ctx, tenantID, campaignID), filter)
	if err := query.Find(&recipientModels).Error; err != nil {
		return nil, err
	}
	return toRecipients(recipientModels), nil
}

// CountByCampaign counts a campaign's recipients matching the filter
func (r *GormRecipientRepository) CountByCampaign(ctx context.Context, tenantID, campaignID uuid.UUID, filter shared.Filter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(r.campaignScope(ctx, tenantID, campaignID), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindSendable finds pending recipients in creation order
func (r *GormRecipientRepository) FindSendable(ctx context.Context, tenantID, campaignID uuid.UUID, includeSuppressed bool) ([]campaign.Recipient, error) {
	query := r.campaignScope(ctx, tenantID, campaignID).
		Where("status = ?", string(campaign.RecipientStatusPending))
	if !includeSuppressed {
		query = query.Where("suppressed = ?", false)
	}

	var recipientModels []models.RecipientModel
	if err := query.Order("created_at ASC, id ASC").Find(&recipientModels).Error; err != nil {
		return nil, err
	}
	return toRecipients(recipientModels), nil
}

// FindByStatus finds a campaign's recipients in one status, in creation order
func (r *GormRecipientRepository) FindByStatus(ctx context.Context, tenantID, campaignID uuid.UUID, status campaign.RecipientStatus) ([]campaign.Recipient, error) {
	var recipientModels []models.RecipientModel
	if err := r.campaignScope(ctx, tenantID, campaignID).
		Where("status = ?", string(status)).
		Order("created_at ASC, id ASC").
		Find(&recipientModels).Error; err != nil {
		return nil, err
	}
	return toRecipients(recipientModels), nil
}

// FindForReconciliation pages through reconcilable recipients across tenants
func (r *GormRecipientRepository) FindForReconciliation(ctx context.Context, afterID uuid.UUID, limit int) ([]campaign.Recipient, error) {
	var recipientModels []models.RecipientModel
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND vendor_object_id IS NOT NULL AND id > ?", reconcilableStatuses, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&recipientModels).Error; err != nil {
		return nil, err
	}
	return toRecipients(recipientModels), nil
}

// StatusTotals groups a campaign's recipients by status
func (r *GormRecipientRepository) StatusTotals(ctx context.Context, tenantID, campaignID uuid.UUID) ([]campaign.StatusTotal, error) {
	var rows []struct {
		Status string
		Count  int
		Cost   int64
	}
	if err := r.campaignScope(ctx, tenantID, campaignID).
		Select("status, COUNT(*) AS count, COALESCE(SUM(actual_cost), 0) AS cost").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	totals := make([]campaign.StatusTotal, len(rows))
	for i, row := range rows {
		totals[i] = campaign.StatusTotal{
			Status: campaign.RecipientStatus(row.Status),
			Count:  row.Count,
			Cost:   row.Cost,
		}
	}
	return totals, nil
}

// Save creates or updates a recipient. The vendor object id is checked
// against other rows first and the unique index backs the check up.
func (r *GormRecipientRepository) Save(ctx context.Context, rec *campaign.Recipient) error {
	return saveRecipient(r.db.WithContext(ctx), rec)
}

// SaveBatch creates or updates several recipients in one transaction
func (r *GormRecipientRepository) SaveBatch(ctx context.Context, recipients []*campaign.Recipient) error {
	if len(recipients) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range recipients {
			if err := saveRecipient(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveRecipient(db *gorm.DB, rec *campaign.Recipient) error {
	model := models.RecipientModelFromDomain(rec)
	if model.VendorObjectID != nil {
		var taken int64
		if err := db.Model(&models.RecipientModel{}).
			Where("vendor_object_id = ? AND id <> ?", *model.VendorObjectID, model.ID).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return campaign.ErrDuplicateVendorObject
		}
	}
	if err := db.Save(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return campaign.ErrDuplicateVendorObject
		}
		return err
	}
	return nil
}

func (r *GormRecipientRepository) campaignScope(ctx context.Context, tenantID, campaignID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.RecipientModel{}).
		Where("tenant_id = ? AND campaign_id = ?", tenantID, campaignID)
}

func (r *GormRecipientRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	if filter.OrderBy == "" {
		return query.Order("created_at ASC, id ASC")
	}
	return query.Order(orderClause(filter, recipientColumns))
}

func (r *GormRecipientRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR email LIKE ?", like, like)
	}
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "suppressed":
			query = query.Where("suppressed = ?", value)
		}
	}
	return query
}

func toRecipients(recipientModels []models.RecipientModel) []campaign.Recipient {
	recipients := make([]campaign.Recipient, len(recipientModels))
	for i, model := range recipientModels {
		recipients[i] = *model.ToDomain()
	}
	return recipients
}

// Ensure GormRecipientRepository implements RecipientRepository
var _ campaign.RecipientRepository = (*GormRecipientRepository)(nil)
