// Package ledger implements the prepaid postage ledger on top of GORM.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/billing"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errDuplicateEntry marks an entry whose reference is already in the ledger
var errDuplicateEntry = errors.New("ledger entry reference already used")

// GormLedger stores immutable ledger entries and a per-tenant balance row.
// The balance row is locked for the duration of each write.
type GormLedger struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewGormLedger creates a new GormLedger
func NewGormLedger(db *gorm.DB, logger *zap.Logger) *GormLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormLedger{db: db, logger: logger, now: time.Now}
}

// Balance returns the tenant's balance in dollars; a tenant without an
// account has a zero balance
func (l *GormLedger) Balance(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
	var account models.PostageAccountModel
	err := l.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load postage account: %w", err)
	}
	return account.Balance, nil
}

// HasSufficientBalance reports whether the balance covers amountCents
func (l *GormLedger) HasSufficientBalance(ctx context.Context, tenantID uuid.UUID, amountCents int64) (bool, error) {
	balance, err := l.Balance(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return balance.GreaterThanOrEqual(billing.CentsToDollars(amountCents)), nil
}

// Credit tops up the balance
func (l *GormLedger) Credit(ctx context.Context, tenantID uuid.UUID, amountCents int64, reference string, actorID *uuid.UUID) (*billing.LedgerEntry, error) {
	var entry *billing.LedgerEntry
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := l.lockAccount(tx, tenantID)
		if err != nil {
			return err
		}
		entry, err = billing.NewLedgerEntry(tenantID, billing.EntryTypeCredit, billing.CentsToDollars(amountCents), account.Balance, reference)
		if err != nil {
			return err
		}
		entry.ActorID = actorID
		return l.apply(tx, account, entry)
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("Postage account credited",
		zap.String("tenant_id", tenantID.String()),
		zap.Int64("amount_cents", amountCents),
		zap.String("balance_after", entry.BalanceAfter.StringFixed(2)))
	return entry, nil
}

// ChargeForCampaign debits the campaign's actual cost once. The balance may go
// negative: mail that has been accepted by the vendor is always billed.
func (l *GormLedger) ChargeForCampaign(ctx context.Context, tenantID, campaignID uuid.UUID, amountCents int64, actorID *uuid.UUID) (*billing.ChargeResult, error) {
	reference := billing.CampaignReference(campaignID)
	var entry *billing.LedgerEntry

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.LedgerEntryModel{}).
			Where("tenant_id = ? AND reference = ?", tenantID, reference).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return billing.ErrAlreadyCharged
		}

		account, err := l.lockAccount(tx, tenantID)
		if err != nil {
			return err
		}
		entry, err = billing.NewLedgerEntry(tenantID, billing.EntryTypeDebit, billing.CentsToDollars(amountCents), account.Balance, reference)
		if err != nil {
			return err
		}
		entry.CampaignID = &campaignID
		entry.ActorID = actorID
		entry.Remark = "Postcard campaign postage"
		return l.apply(tx, account, entry)
	})
	if err != nil {
		if errors.Is(err, errDuplicateEntry) {
			return nil, billing.ErrAlreadyCharged
		}
		return nil, err
	}

	l.logger.Info("Campaign charged",
		zap.String("tenant_id", tenantID.String()),
		zap.String("campaign_id", campaignID.String()),
		zap.Int64("amount_cents", amountCents),
		zap.String("balance_after", entry.BalanceAfter.StringFixed(2)))

	return &billing.ChargeResult{
		EntryID:      entry.ID,
		AmountCents:  amountCents,
		BalanceAfter: entry.BalanceAfter,
		ChargedAt:    entry.CreatedAt,
	}, nil
}

// Entries lists a tenant's ledger entries, newest first
func (l *GormLedger) Entries(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]billing.LedgerEntry, error) {
	query := l.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var entryModels []models.LedgerEntryModel
	if err := query.Order("created_at DESC").Find(&entryModels).Error; err != nil {
		return nil, err
	}
	entries := make([]billing.LedgerEntry, len(entryModels))
	for i, model := range entryModels {
		entries[i] = *model.ToDomain()
	}
	return entries, nil
}

// lockAccount loads the balance row FOR UPDATE, creating it on first use.
// Two first writes of a tenant both insert; the second insert is a no-op
// and its lock waits for the first transaction.
func (l *GormLedger) lockAccount(tx *gorm.DB, tenantID uuid.UUID) (*models.PostageAccountModel, error) {
	account, err := l.selectForUpdate(tx, tenantID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to lock postage account: %w", err)
	}

	now := l.now()
	opened := models.PostageAccountModel{
		TenantID:  tenantID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&opened).Error; err != nil {
		return nil, fmt.Errorf("failed to open postage account: %w", err)
	}
	account, err = l.selectForUpdate(tx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock postage account: %w", err)
	}
	return account, nil
}

func (l *GormLedger) selectForUpdate(tx *gorm.DB, tenantID uuid.UUID) (*models.PostageAccountModel, error) {
	var account models.PostageAccountModel
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", tenantID).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// apply inserts the entry and moves the balance. Only a duplicate entry
// reference is reported as errDuplicateEntry.
func (l *GormLedger) apply(tx *gorm.DB, account *models.PostageAccountModel, entry *billing.LedgerEntry) error {
	if err := tx.Create(models.LedgerEntryModelFromDomain(entry)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %w", errDuplicateEntry, err)
		}
		return err
	}
	result := tx.Model(&models.PostageAccountModel{}).
		Where("tenant_id = ? AND version = ?", account.TenantID, account.Version).
		Updates(map[string]interface{}{
			"balance":    entry.BalanceAfter,
			"updated_at": l.now(),
			"version":    account.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("OPTIMISTIC_LOCK_FAILED", "Postage account was modified by another transaction")
	}
	return nil
}

var (
	_ billing.Ledger  = (*GormLedger)(nil)
	_ billing.Account = (*GormLedger)(nil)
)
