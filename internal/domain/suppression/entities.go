package suppression

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/domain/shared/valueobject"
)

// ErrDuplicateEntry is returned when an identical do-not-mail entry already exists
var ErrDuplicateEntry = shared.NewDomainError("ALREADY_EXISTS", "An identical do-not-mail entry already exists")

// DoNotMailEntry is one tenant-scoped suppression list entry. Email and
// AddressKey are stored already normalized.
type DoNotMailEntry struct {
	shared.BaseEntity
	TenantID   uuid.UUID
	Email      string
	AddressKey string
	Address    valueobject.PostalAddress
	Note       string
}

// NewDoNotMailEntry normalizes and validates an entry. At least one of email
// or a complete address is required.
func NewDoNotMailEntry(tenantID uuid.UUID, email string, addr valueobject.PostalAddress, note string) (*DoNotMailEntry, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	normalized := valueobject.NormalizeEmail(email)
	if normalized != "" && !strings.Contains(normalized, "@") {
		return nil, shared.NewDomainError("INVALID_EMAIL", "Email address is not valid")
	}
	key := addr.NormalizedKey()
	if normalized == "" && key == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Either an email or a complete address is required")
	}
	return &DoNotMailEntry{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   tenantID,
		Email:      normalized,
		AddressKey: key,
		Address:    addr,
		Note:       strings.TrimSpace(note),
	}, nil
}

// CustomerProfile is the order and mailing history for a customer, populated
// by the external data sync
type CustomerProfile struct {
	shared.BaseEntity
	TenantID     uuid.UUID
	Email        string
	LastOrderAt  *time.Time
	LastMailedAt *time.Time
}

// Settings holds a tenant's default suppression thresholds
type Settings struct {
	TenantID         uuid.UUID
	RecentOrderDays  int
	RecentMailDays   int
	DoNotMailEnabled bool
	UpdatedAt        time.Time
}

// Validate checks the thresholds are usable
func (s Settings) Validate() error {
	if s.RecentOrderDays < 0 || s.RecentMailDays < 0 {
		return shared.NewDomainError("INVALID_INPUT", "Lookback days cannot be negative")
	}
	if s.RecentOrderDays > 3650 || s.RecentMailDays > 3650 {
		return shared.NewDomainError("INVALID_INPUT", "Lookback days cannot exceed 3650")
	}
	return nil
}

// ResolvePolicy combines tenant settings with per-campaign overrides; a nil
// override keeps the tenant default
func ResolvePolicy(s Settings, recentOrderDays, recentMailDays *int) Policy {
	p := Policy{
		RecentOrderDays:  s.RecentOrderDays,
		RecentMailDays:   s.RecentMailDays,
		DoNotMailEnabled: s.DoNotMailEnabled,
	}
	if recentOrderDays != nil {
		p.RecentOrderDays = *recentOrderDays
	}
	if recentMailDays != nil {
		p.RecentMailDays = *recentMailDays
	}
	return p
}

// DoNotMailRepository persists do-not-mail entries
type DoNotMailRepository interface {
	// FindAllForTenant lists entries for a tenant
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]DoNotMailEntry, error)
	// CountForTenant counts entries for a tenant
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error)
	// FindMatching returns entries matching either the normalized email or the address key
	FindMatching(ctx context.Context, tenantID uuid.UUID, email, addressKey string) ([]DoNotMailEntry, error)
	// Save inserts an entry; identical email/address pairs yield ErrDuplicateEntry
	Save(ctx context.Context, entry *DoNotMailEntry) error
	// DeleteForTenant removes an entry
	DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error
}

// ProfileRepository reads customer profiles
type ProfileRepository interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*CustomerProfile, error)
	Save(ctx context.Context, p *CustomerProfile) error
}

// SettingsRepository reads and writes tenant suppression settings
type SettingsRepository interface {
	// FindForTenant returns shared.ErrNotFound when the tenant has no row
	FindForTenant(ctx context.Context, tenantID uuid.UUID) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}
