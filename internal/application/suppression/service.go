// Package suppression manages the tenant do-not-mail list and suppression
// settings, and evaluates recipients against them.
package suppression

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/application/validation"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/domain/shared/valueobject"
	"github.com/postcard/backend/internal/domain/suppression"
	"github.com/postcard/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Service handles do-not-mail list and settings operations
type Service struct {
	entries  suppression.DoNotMailRepository
	settings suppression.SettingsRepository
	defaults config.SuppressionConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new suppression Service. defaults apply to tenants
// without a settings row.
func NewService(
	entries suppression.DoNotMailRepository,
	settings suppression.SettingsRepository,
	defaults config.SuppressionConfig,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		entries:  entries,
		settings: settings,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
}

// AddEntry adds an email and/or address to the tenant's do-not-mail list
func (s *Service) AddEntry(ctx context.Context, tenantID uuid.UUID, req AddEntryRequest) (*EntryResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	addr, err := addressFrom(req.Address)
	if err != nil {
		return nil, err
	}
	entry, err := suppression.NewDoNotMailEntry(tenantID, req.Email, addr, req.Note)
	if err != nil {
		return nil, err
	}
	if err := s.entries.Save(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Do-not-mail entry added",
		zap.String("tenant_id", tenantID.String()),
		zap.String("entry_id", entry.ID.String()),
		zap.Bool("has_email", entry.Email != ""),
		zap.Bool("has_address", entry.AddressKey != ""))
	resp := ToEntryResponse(entry)
	return &resp, nil
}

// RemoveEntry deletes an entry
func (s *Service) RemoveEntry(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.entries.DeleteForTenant(ctx, tenantID, id); err != nil {
		return err
	}
	s.logger.Info("Do-not-mail entry removed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("entry_id", id.String()))
	return nil
}

// ListEntries returns a page of the tenant's entries and the total count
func (s *Service) ListEntries(ctx context.Context, tenantID uuid.UUID, filter EntryListFilter) ([]EntryResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.OrderBy == "" {
		filter.OrderBy = "created_at"
	}
	if filter.OrderDir == "" {
		filter.OrderDir = "desc"
	}

	domainFilter := shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		OrderBy:  filter.OrderBy,
		OrderDir: filter.OrderDir,
		Search:   filter.Search,
	}

	entries, err := s.entries.FindAllForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.entries.CountForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		return nil, 0, err
	}

	items := make([]EntryResponse, len(entries))
	for i := range entries {
		items[i] = ToEntryResponse(&entries[i])
	}
	return items, total, nil
}

// Check reports whether an email or address is listed
func (s *Service) Check(ctx context.Context, tenantID uuid.UUID, req CheckRequest) (*CheckResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	addr, err := addressFrom(req.Address)
	if err != nil {
		return nil, err
	}
	email := valueobject.NormalizeEmail(req.Email)
	key := addr.NormalizedKey()
	if email == "" && key == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Either an email or a complete address is required")
	}

	matches, err := s.entries.FindMatching(ctx, tenantID, email, key)
	if err != nil {
		return nil, err
	}
	idx := suppression.NewEntryIndex(matches)
	resp := &CheckResponse{
		EmailListed:    email != "" && idx.HasEmail(email),
		AddressListed:  key != "" && idx.HasAddress(key),
		MatchedEntries: len(matches),
	}
	resp.Listed = resp.EmailListed || resp.AddressListed
	return resp, nil
}

// GetSettings returns the tenant's settings, or the configured defaults when
// the tenant has not saved any
func (s *Service) GetSettings(ctx context.Context, tenantID uuid.UUID) (*SettingsResponse, error) {
	settings, isDefault, err := s.loadSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return toSettingsResponse(settings, isDefault), nil
}

// UpdateSettings changes the tenant's default thresholds
func (s *Service) UpdateSettings(ctx context.Context, tenantID uuid.UUID, req UpdateSettingsRequest) (*SettingsResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	settings, _, err := s.loadSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if req.RecentOrderDays != nil {
		settings.RecentOrderDays = *req.RecentOrderDays
	}
	if req.RecentMailDays != nil {
		settings.RecentMailDays = *req.RecentMailDays
	}
	if req.DoNotMailEnabled != nil {
		settings.DoNotMailEnabled = *req.DoNotMailEnabled
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	settings.UpdatedAt = s.now()
	if err := s.settings.Save(ctx, settings); err != nil {
		return nil, err
	}

	s.logger.Info("Suppression settings updated",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("recent_order_days", settings.RecentOrderDays),
		zap.Int("recent_mail_days", settings.RecentMailDays),
		zap.Bool("dnm_enabled", settings.DoNotMailEnabled))
	return toSettingsResponse(settings, false), nil
}

func (s *Service) loadSettings(ctx context.Context, tenantID uuid.UUID) (*suppression.Settings, bool, error) {
	return loadSettings(ctx, s.settings, s.defaults, tenantID)
}

func loadSettings(ctx context.Context, repo suppression.SettingsRepository, defaults config.SuppressionConfig, tenantID uuid.UUID) (*suppression.Settings, bool, error) {
	settings, err := repo.FindForTenant(ctx, tenantID)
	if err == nil {
		return settings, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}
	return &suppression.Settings{
		TenantID:         tenantID,
		RecentOrderDays:  defaults.RecentOrderDays,
		RecentMailDays:   defaults.RecentMailDays,
		DoNotMailEnabled: defaults.DoNotMailEnabled,
	}, true, nil
}

func addressFrom(dto *valueobject.AddressDTO) (valueobject.PostalAddress, error) {
	if dto == nil {
		return valueobject.EmptyPostalAddress(), nil
	}
	addr, err := dto.ToPostalAddress()
	if err != nil {
		return valueobject.PostalAddress{}, shared.NewDomainError("INVALID_ADDRESS", err.Error())
	}
	return addr, nil
}
