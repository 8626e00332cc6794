package billing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/billing"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAccount is a mock implementation of billing.Account
type MockAccount struct {
	mock.Mock
}

func (m *MockAccount) Balance(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockAccount) Credit(ctx context.Context, tenantID uuid.UUID, amountCents int64, reference string, actorID *uuid.UUID) (*billing.LedgerEntry, error) {
	args := m.Called(ctx, tenantID, amountCents, reference, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.LedgerEntry), args.Error(1)
}

func (m *MockAccount) Entries(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]billing.LedgerEntry, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.LedgerEntry), args.Error(1)
}

func TestAccountService_Balance(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("formats dollars and cents", func(t *testing.T) {
		account := new(MockAccount)
		account.On("Balance", ctx, tenantID).Return(decimal.RequireFromString("12.5"), nil)

		resp, err := NewAccountService(account, nil).Balance(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, "12.50", resp.Balance)
		assert.Equal(t, int64(1250), resp.BalanceCents)
		assert.Equal(t, tenantID, resp.TenantID)
	})

	t.Run("propagates errors", func(t *testing.T) {
		account := new(MockAccount)
		account.On("Balance", ctx, tenantID).Return(decimal.Zero, errors.New("db down"))

		_, err := NewAccountService(account, nil).Balance(ctx, tenantID)
		assert.EqualError(t, err, "db down")
	})
}

func TestAccountService_Credit(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	actorID := uuid.New()

	entry, err := billing.NewLedgerEntry(tenantID, billing.EntryTypeCredit, billing.CentsToDollars(5000), decimal.RequireFromString("1.00"), "wire-42")
	require.NoError(t, err)

	t.Run("credits with the given reference", func(t *testing.T) {
		account := new(MockAccount)
		account.On("Credit", ctx, tenantID, int64(5000), "wire-42", &actorID).Return(entry, nil)

		resp, err := NewAccountService(account, nil).Credit(ctx, tenantID, CreditRequest{AmountCents: 5000, Reference: "wire-42"}, &actorID)
		require.NoError(t, err)
		assert.Equal(t, "CREDIT", resp.EntryType)
		assert.Equal(t, "50.00", resp.Amount)
		assert.Equal(t, "1.00", resp.BalanceBefore)
		assert.Equal(t, "51.00", resp.BalanceAfter)
		account.AssertExpectations(t)
	})

	t.Run("generates a reference when none is given", func(t *testing.T) {
		account := new(MockAccount)
		account.On("Credit", ctx, tenantID, int64(100), mock.MatchedBy(func(ref string) bool {
			return strings.HasPrefix(ref, "credit:")
		}), (*uuid.UUID)(nil)).Return(entry, nil)

		_, err := NewAccountService(account, nil).Credit(ctx, tenantID, CreditRequest{AmountCents: 100}, nil)
		require.NoError(t, err)
		account.AssertExpectations(t)
	})

	tests := []struct {
		name string
		req  CreditRequest
	}{
		{"zero amount", CreditRequest{AmountCents: 0}},
		{"negative amount", CreditRequest{AmountCents: -5}},
		{"reference too long", CreditRequest{AmountCents: 5, Reference: strings.Repeat("r", 101)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := new(MockAccount)
			_, err := NewAccountService(account, nil).Credit(ctx, tenantID, tt.req, nil)
			var de *shared.DomainError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, "INVALID_INPUT", de.Code)
			account.AssertNotCalled(t, "Credit")
		})
	}
}

func TestAccountService_Entries(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	campaignID := uuid.New()

	debit, err := billing.NewLedgerEntry(tenantID, billing.EntryTypeDebit, billing.CentsToDollars(261), decimal.RequireFromString("10"), billing.CampaignReference(campaignID))
	require.NoError(t, err)
	debit.CampaignID = &campaignID

	account := new(MockAccount)
	account.On("Entries", ctx, tenantID, shared.Filter{Page: 1, PageSize: 20}).Return([]billing.LedgerEntry{*debit}, nil)

	entries, err := NewAccountService(account, nil).Entries(ctx, tenantID, shared.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "DEBIT", entries[0].EntryType)
	assert.Equal(t, "2.61", entries[0].Amount)
	assert.Equal(t, "7.39", entries[0].BalanceAfter)
	assert.Equal(t, &campaignID, entries[0].CampaignID)
}
