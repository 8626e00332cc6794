package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/domain/suppression"
	"github.com/postcard/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDoNotMailRepository implements DoNotMailRepository using GORM
type GormDoNotMailRepository struct {
	db *gorm.DB
}

// NewGormDoNotMailRepository creates a new GormDoNotMailRepository
func NewGormDoNotMailRepository(db *gorm.DB) *GormDoNotMailRepository {
	return &GormDoNotMailRepository{db: db}
}

// FindAllForTenant lists a tenant's entries
func (r *GormDoNotMailRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]suppression.DoNotMailEntry, error) {
	query := r.applyFilterWithoutPagination(r.tenantScope(ctx, tenantID), filter)
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	query = query.Order(orderClause(filter, doNotMailColumns))

	var entryModels []models.DoNotMailEntryModel
	if err := query.Find(&entryModels).Error; err != nil {
		return nil, err
	}
	return toDoNotMailEntries(entryModels), nil
}

// CountForTenant counts a tenant's entries
func (r *GormDoNotMailRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error) {
	var count int64
	if err := r.applyFilterWithoutPagination(r.tenantScope(ctx, tenantID), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindMatching finds entries whose email or address key matches. Empty
// arguments never match.
func (r *GormDoNotMailRepository) FindMatching(ctx context.Context, tenantID uuid.UUID, email, addressKey string) ([]suppression.DoNotMailEntry, error) {
	if email == "" && addressKey == "" {
		return nil, nil
	}
	query := r.tenantScope(ctx, tenantID)
	switch {
	case email != "" && addressKey != "":
		query = query.Where("email = ? OR address_key = ?", email, addressKey)
	case email != "":
		query = query.Where("email = ?", email)
	default:
		query = query.Where("address_key = ?", addressKey)
	}

	var entryModels []models.DoNotMailEntryModel
	if err := query.Find(&entryModels).Error; err != nil {
		return nil, err
	}
	return toDoNotMailEntries(entryModels), nil
}

// Save inserts an entry, rejecting an identical email/address pair
func (r *GormDoNotMailRepository) Save(ctx context.Context, entry *suppression.DoNotMailEntry) error {
	var existing int64
	if err := r.tenantScope(ctx, entry.TenantID).
		Where("email = ? AND address_key = ?", entry.Email, entry.AddressKey).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return suppression.ErrDuplicateEntry
	}

	if err := r.db.WithContext(ctx).Create(models.DoNotMailEntryModelFromDomain(entry)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return suppression.ErrDuplicateEntry
		}
		return err
	}
	return nil
}

// DeleteForTenant removes an entry
func (r *GormDoNotMailRepository) DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.DoNotMailEntryModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *GormDoNotMailRepository) tenantScope(ctx context.Context, tenantID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.DoNotMailEntryModel{}).Where("tenant_id = ?", tenantID)
}

func (r *GormDoNotMailRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("email LIKE ? OR address_key LIKE ? OR note LIKE ?", like, like, like)
	}
	return query
}

func toDoNotMailEntries(entryModels []models.DoNotMailEntryModel) []suppression.DoNotMailEntry {
	entries := make([]suppression.DoNotMailEntry, len(entryModels))
	for i, model := range entryModels {
		entries[i] = *model.ToDomain()
	}
	return entries
}

// GormProfileRepository implements ProfileRepository using GORM
type GormProfileRepository struct {
	db *gorm.DB
}

// NewGormProfileRepository creates a new GormProfileRepository
func NewGormProfileRepository(db *gorm.DB) *GormProfileRepository {
	return &GormProfileRepository{db: db}
}

// FindByIDForTenant finds a customer profile by ID within a tenant
func (r *GormProfileRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*suppression.CustomerProfile, error) {
	var model models.CustomerProfileModel
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

// Save creates or updates a customer profile
func (r *GormProfileRepository) Save(ctx context.Context, p *suppression.CustomerProfile) error {
	return r.db.WithContext(ctx).Save(models.CustomerProfileModelFromDomain(p)).Error
}

// GormSettingsRepository implements SettingsRepository using GORM
type GormSettingsRepository struct {
	db *gorm.DB
}

// NewGormSettingsRepository creates a new GormSettingsRepository
func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: db}
}

// FindForTenant returns a tenant's suppression settings
func (r *GormSettingsRepository) FindForTenant(ctx context.Context, tenantID uuid.UUID) (*suppression.Settings, error) {
	var model models.SuppressionSettingsModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save upserts a tenant's suppression settings
func (r *GormSettingsRepository) Save(ctx context.Context, s *suppression.Settings) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"recent_order_days", "recent_mail_days", "dnm_enabled", "updated_at"}),
		}).
		Create(models.SuppressionSettingsModelFromDomain(s)).Error
}

var (
	_ suppression.DoNotMailRepository = (*GormDoNotMailRepository)(nil)
	_ suppression.ProfileRepository   = (*GormProfileRepository)(nil)
	_ suppression.SettingsRepository  = (*GormSettingsRepository)(nil)
)
