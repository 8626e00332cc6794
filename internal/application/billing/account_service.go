// Package billing exposes the prepaid postage account: balance reads,
// top-ups and the entry history.
package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/application/validation"
	"github.com/postcard/backend/internal/domain/billing"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// BalanceResponse is the tenant's current balance
type BalanceResponse struct {
	TenantID     uuid.UUID `json:"tenant_id"`
	Balance      string    `json:"balance"`
	BalanceCents int64     `json:"balance_cents"`
}

// CreditRequest tops up the balance
type CreditRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0,lte=100000000"`
	Reference   string `json:"reference" binding:"omitempty,max=100"`
}

// EntryResponse is one ledger entry
type EntryResponse struct {
	ID            uuid.UUID  `json:"id"`
	EntryType     string     `json:"entry_type"`
	Amount        string     `json:"amount"`
	BalanceBefore string     `json:"balance_before"`
	BalanceAfter  string     `json:"balance_after"`
	Reference     string     `json:"reference,omitempty"`
	CampaignID    *uuid.UUID `json:"campaign_id,omitempty"`
	ActorID       *uuid.UUID `json:"actor_id,omitempty"`
	Remark        string     `json:"remark,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ToEntryResponse converts a domain entry
func ToEntryResponse(e *billing.LedgerEntry) EntryResponse {
	return EntryResponse{
		ID:            e.ID,
		EntryType:     string(e.EntryType),
		Amount:        e.Amount.StringFixed(2),
		BalanceBefore: e.BalanceBefore.StringFixed(2),
		BalanceAfter:  e.BalanceAfter.StringFixed(2),
		Reference:     e.Reference,
		CampaignID:    e.CampaignID,
		ActorID:       e.ActorID,
		Remark:        e.Remark,
		CreatedAt:     e.CreatedAt,
	}
}

// AccountService reads and tops up postage balances
type AccountService struct {
	account billing.Account
	logger  *zap.Logger
}

// NewAccountService creates a new AccountService
func NewAccountService(account billing.Account, l *zap.Logger) *AccountService {
	if l == nil {
		l = zap.NewNop()
	}
	return &AccountService{account: account, logger: l}
}

// Balance returns the tenant's balance
func (s *AccountService) Balance(ctx context.Context, tenantID uuid.UUID) (*BalanceResponse, error) {
	balance, err := s.account.Balance(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{
		TenantID:     tenantID,
		Balance:      balance.StringFixed(2),
		BalanceCents: billing.DollarsToCents(balance),
	}, nil
}

// Credit adds funds. Without a reference one is generated so every credit
// stays traceable.
func (s *AccountService) Credit(ctx context.Context, tenantID uuid.UUID, req CreditRequest, actorID *uuid.UUID) (*EntryResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	reference := req.Reference
	if reference == "" {
		reference = "credit:" + uuid.New().String()
	}

	entry, err := s.account.Credit(ctx, tenantID, req.AmountCents, reference, actorID)
	if err != nil {
		logger.Enrich(ctx, s.logger).Error("Failed to credit postage account",
			zap.String("tenant_id", tenantID.String()),
			zap.Int64("amount_cents", req.AmountCents),
			zap.Error(err))
		return nil, err
	}
	resp := ToEntryResponse(entry)
	return &resp, nil
}

// Entries lists ledger entries newest first
func (s *AccountService) Entries(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]EntryResponse, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	entries, err := s.account.Entries(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]EntryResponse, len(entries))
	for i := range entries {
		out[i] = ToEntryResponse(&entries[i])
	}
	return out, nil
}
