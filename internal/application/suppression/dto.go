package suppression

import (
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/shared/valueobject"
	"github.com/postcard/backend/internal/domain/suppression"
)

// AddEntryRequest represents a request to add a do-not-mail entry
type AddEntryRequest struct {
	Email   string                  `json:"email" binding:"omitempty,email,max=254"`
	Address *valueobject.AddressDTO `json:"address"`
	Note    string                  `json:"note" binding:"max=500"`
}

// CheckRequest asks whether an email or address is on the do-not-mail list
type CheckRequest struct {
	Email   string                  `json:"email" form:"email" binding:"omitempty,max=254"`
	Address *valueobject.AddressDTO `json:"address"`
}

// CheckResponse reports which parts of a CheckRequest are listed
type CheckResponse struct {
	Listed         bool `json:"listed"`
	EmailListed    bool `json:"email_listed"`
	AddressListed  bool `json:"address_listed"`
	MatchedEntries int  `json:"matched_entries"`
}

// EntryListFilter represents filter options for the do-not-mail list
type EntryListFilter struct {
	Search   string `form:"search"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy  string `form:"order_by"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// EntryResponse represents a do-not-mail entry in API responses
type EntryResponse struct {
	ID        uuid.UUID               `json:"id"`
	Email     string                  `json:"email,omitempty"`
	Address   *valueobject.AddressDTO `json:"address,omitempty"`
	Note      string                  `json:"note,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// UpdateSettingsRequest changes a tenant's default thresholds. Omitted fields keep their value.
type UpdateSettingsRequest struct {
	RecentOrderDays  *int  `json:"recent_order_days" binding:"omitempty,gte=0,lte=3650"`
	RecentMailDays   *int  `json:"recent_mail_days" binding:"omitempty,gte=0,lte=3650"`
	DoNotMailEnabled *bool `json:"dnm_enabled"`
}

// SettingsResponse represents a tenant's suppression settings
type SettingsResponse struct {
	RecentOrderDays  int        `json:"recent_order_days"`
	RecentMailDays   int        `json:"recent_mail_days"`
	DoNotMailEnabled bool       `json:"dnm_enabled"`
	IsDefault        bool       `json:"is_default"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// ToEntryResponse converts a domain entry to EntryResponse
func ToEntryResponse(e *suppression.DoNotMailEntry) EntryResponse {
	resp := EntryResponse{
		ID:        e.ID,
		Email:     e.Email,
		Note:      e.Note,
		CreatedAt: e.CreatedAt,
	}
	if !e.Address.IsEmpty() {
		dto := e.Address.ToDTO()
		resp.Address = &dto
	}
	return resp
}

func toSettingsResponse(s *suppression.Settings, isDefault bool) *SettingsResponse {
	resp := &SettingsResponse{
		RecentOrderDays:  s.RecentOrderDays,
		RecentMailDays:   s.RecentMailDays,
		DoNotMailEnabled: s.DoNotMailEnabled,
		IsDefault:        isDefault,
	}
	if !s.UpdatedAt.IsZero() {
		at := s.UpdatedAt
		resp.UpdatedAt = &at
	}
	return resp
}
