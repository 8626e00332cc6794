package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/suppression"
)

// DoNotMailEntryModel is the GORM model for the do_not_mail_entries table
type DoNotMailEntryModel struct {
	BaseModel
	TenantID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uniq_dnm_entry,priority:1;index"`
	Email      string         `gorm:"type:varchar(255);uniqueIndex:uniq_dnm_entry,priority:2"`
	AddressKey string         `gorm:"column:address_key;type:varchar(400);uniqueIndex:uniq_dnm_entry,priority:3"`
	Address    AddressColumns `gorm:"embedded;embeddedPrefix:address_"`
	Note       string         `gorm:"type:varchar(500)"`
}

// TableName returns the table name for DoNotMailEntryModel
func (DoNotMailEntryModel) TableName() string {
	return "do_not_mail_entries"
}

// ToDomain converts DoNotMailEntryModel to domain DoNotMailEntry
func (m *DoNotMailEntryModel) ToDomain() *suppression.DoNotMailEntry {
	return &suppression.DoNotMailEntry{
		BaseEntity: m.BaseModel.ToDomain(),
		TenantID:   m.TenantID,
		Email:      m.Email,
		AddressKey: m.AddressKey,
		Address:    m.Address.ToDomain(),
		Note:       m.Note,
	}
}

// DoNotMailEntryModelFromDomain creates a DoNotMailEntryModel from domain DoNotMailEntry
func DoNotMailEntryModelFromDomain(e *suppression.DoNotMailEntry) *DoNotMailEntryModel {
	m := &DoNotMailEntryModel{
		TenantID:   e.TenantID,
		Email:      e.Email,
		AddressKey: e.AddressKey,
		Address:    AddressColumnsFromDomain(e.Address),
		Note:       e.Note,
	}
	m.FromDomainBaseEntity(e.BaseEntity)
	return m
}

// CustomerProfileModel is the GORM model for the customer_profiles table.
// Rows are written by the external order sync.
type CustomerProfileModel struct {
	BaseModel
	TenantID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	Email        string     `gorm:"type:varchar(255);index"`
	LastOrderAt  *time.Time `gorm:"column:last_order_at"`
	LastMailedAt *time.Time `gorm:"column:last_mailed_at"`
}

// TableName returns the table name for CustomerProfileModel
func (CustomerProfileModel) TableName() string {
	return "customer_profiles"
}

// ToDomain converts CustomerProfileModel to domain CustomerProfile
func (m *CustomerProfileModel) ToDomain() *suppression.CustomerProfile {
	return &suppression.CustomerProfile{
		BaseEntity:   m.BaseModel.ToDomain(),
		TenantID:     m.TenantID,
		Email:        m.Email,
		LastOrderAt:  m.LastOrderAt,
		LastMailedAt: m.LastMailedAt,
	}
}

// CustomerProfileModelFromDomain creates a CustomerProfileModel from domain CustomerProfile
func CustomerProfileModelFromDomain(p *suppression.CustomerProfile) *CustomerProfileModel {
	m := &CustomerProfileModel{
		TenantID:     p.TenantID,
		Email:        p.Email,
		LastOrderAt:  p.LastOrderAt,
		LastMailedAt: p.LastMailedAt,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m
}

// SuppressionSettingsModel is the GORM model for the suppression_settings table
type SuppressionSettingsModel struct {
	TenantID         uuid.UUID `gorm:"type:uuid;primary_key"`
	RecentOrderDays  int       `gorm:"column:recent_order_days;not null"`
	RecentMailDays   int       `gorm:"column:recent_mail_days;not null"`
	DoNotMailEnabled bool      `gorm:"column:dnm_enabled;not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for SuppressionSettingsModel
func (SuppressionSettingsModel) TableName() string {
	return "suppression_settings"
}

// ToDomain converts SuppressionSettingsModel to domain Settings
func (m *SuppressionSettingsModel) ToDomain() *suppression.Settings {
	return &suppression.Settings{
		TenantID:         m.TenantID,
		RecentOrderDays:  m.RecentOrderDays,
		RecentMailDays:   m.RecentMailDays,
		DoNotMailEnabled: m.DoNotMailEnabled,
		UpdatedAt:        m.UpdatedAt,
	}
}

// SuppressionSettingsModelFromDomain creates a SuppressionSettingsModel from domain Settings
func SuppressionSettingsModelFromDomain(s *suppression.Settings) *SuppressionSettingsModel {
	return &SuppressionSettingsModel{
		TenantID:         s.TenantID,
		RecentOrderDays:  s.RecentOrderDays,
		RecentMailDays:   s.RecentMailDays,
		DoNotMailEnabled: s.DoNotMailEnabled,
		UpdatedAt:        s.UpdatedAt,
	}
}
