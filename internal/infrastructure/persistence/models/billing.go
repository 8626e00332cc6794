package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// PostageAccountModel holds a tenant's current prepaid balance
type PostageAccountModel struct {
	TenantID  uuid.UUID       `gorm:"type:uuid;primary_key"`
	Balance   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
	Version   int             `gorm:"not null"`
}

// TableName returns the table name for PostageAccountModel
func (PostageAccountModel) TableName() string {
	return "postage_accounts"
}

// LedgerEntryModel is the GORM model for the ledger_entries table.
// (tenant_id, reference) is unique so a campaign can be debited once.
type LedgerEntryModel struct {
	BaseModel
	TenantID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uniq_ledger_reference,priority:1;index"`
	EntryType     string          `gorm:"column:entry_type;type:varchar(10);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	BalanceBefore decimal.Decimal `gorm:"column:balance_before;type:decimal(18,4);not null"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:decimal(18,4);not null"`
	Reference     string          `gorm:"type:varchar(100);not null;uniqueIndex:uniq_ledger_reference,priority:2"`
	CampaignID    *uuid.UUID      `gorm:"column:campaign_id;type:uuid;index"`
	ActorID       *uuid.UUID      `gorm:"column:actor_id;type:uuid"`
	Remark        string          `gorm:"type:varchar(500)"`
}

// TableName returns the table name for LedgerEntryModel
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts LedgerEntryModel to domain LedgerEntry
func (m *LedgerEntryModel) ToDomain() *billing.LedgerEntry {
	return &billing.LedgerEntry{
		BaseEntity:    m.BaseModel.ToDomain(),
		TenantID:      m.TenantID,
		EntryType:     billing.EntryType(m.EntryType),
		Amount:        m.Amount,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
		Reference:     m.Reference,
		CampaignID:    m.CampaignID,
		ActorID:       m.ActorID,
		Remark:        m.Remark,
	}
}

// LedgerEntryModelFromDomain creates a LedgerEntryModel from domain LedgerEntry
func LedgerEntryModelFromDomain(e *billing.LedgerEntry) *LedgerEntryModel {
	m := &LedgerEntryModel{
		TenantID:      e.TenantID,
		EntryType:     string(e.EntryType),
		Amount:        e.Amount,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		Reference:     e.Reference,
		CampaignID:    e.CampaignID,
		ActorID:       e.ActorID,
		Remark:        e.Remark,
	}
	m.FromDomainBaseEntity(e.BaseEntity)
	return m
}
