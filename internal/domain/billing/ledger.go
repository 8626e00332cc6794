// Package billing provides the prepaid postage ledger consumed by campaign sends.
//
// The ledger is a list of immutable entries per tenant. Credits top the balance
// up; a campaign is debited at most once, after its dispatch has finished, for
// the actual cost of the postcards the vendor accepted.
package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ErrAlreadyCharged is returned when a campaign already has a debit entry
var ErrAlreadyCharged = shared.NewDomainError("ALREADY_CHARGED", "Campaign has already been charged")

// EntryType is the direction of a ledger entry
type EntryType string

const (
	EntryTypeCredit EntryType = "CREDIT"
	EntryTypeDebit  EntryType = "DEBIT"
)

// IsValid returns true if the entry type is known
func (t EntryType) IsValid() bool {
	return t == EntryTypeCredit || t == EntryTypeDebit
}

// LedgerEntry is an immutable balance change. Amount is always positive;
// the type gives the direction.
type LedgerEntry struct {
	shared.BaseEntity
	TenantID      uuid.UUID
	EntryType     EntryType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	// Reference is unique per tenant for debits, e.g. "campaign:<id>"
	Reference     string
	CampaignID    *uuid.UUID
	ActorID       *uuid.UUID
	Remark        string
}

// NewLedgerEntry creates an entry after checking the balance arithmetic
func NewLedgerEntry(tenantID uuid.UUID, t EntryType, amount, before decimal.Decimal, reference string) (*LedgerEntry, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !t.IsValid() {
		return nil, shared.NewDomainError("INVALID_ENTRY_TYPE", "Invalid ledger entry type")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Amount must be positive")
	}
	after := before.Add(amount)
	if t == EntryTypeDebit {
		after = before.Sub(amount)
	}
	return &LedgerEntry{
		BaseEntity:    shared.NewBaseEntity(),
		TenantID:      tenantID,
		EntryType:     t,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     reference,
	}, nil
}

// CampaignReference is the debit reference used for a campaign charge
func CampaignReference(campaignID uuid.UUID) string {
	return "campaign:" + campaignID.String()
}

// CentsToDollars converts minor units to a decimal dollar amount
func CentsToDollars(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// DollarsToCents converts a decimal dollar amount to minor units, rounding half up
func DollarsToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// ChargeResult describes a completed campaign charge
type ChargeResult struct {
	EntryID      uuid.UUID
	AmountCents  int64
	BalanceAfter decimal.Decimal
	ChargedAt    time.Time
}

// Ledger is the billing collaborator used by campaign sends
type Ledger interface {
	// HasSufficientBalance reports whether the tenant can cover amountCents
	HasSufficientBalance(ctx context.Context, tenantID uuid.UUID, amountCents int64) (bool, error)

	// ChargeForCampaign debits the campaign's cost once. A second call for the
	// same campaign returns ErrAlreadyCharged.
	ChargeForCampaign(ctx context.Context, tenantID, campaignID uuid.UUID, amountCents int64, actorID *uuid.UUID) (*ChargeResult, error)
}

// Account exposes balance reads and top-ups for the prepaid postage account
type Account interface {
	Balance(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error)
	Credit(ctx context.Context, tenantID uuid.UUID, amountCents int64, reference string, actorID *uuid.UUID) (*LedgerEntry, error)
	Entries(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]LedgerEntry, error)
}
