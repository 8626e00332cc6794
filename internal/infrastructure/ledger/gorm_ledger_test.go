package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/postcard/backend/internal/domain/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockLedger creates a GormLedger with a mocked SQL connection
func newMockLedger(t *testing.T) (*GormLedger, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	return NewGormLedger(gormDB, nil), mock, mockDB
}

func accountRows(tenantID uuid.UUID, balance string, version int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"tenant_id", "balance", "created_at", "updated_at", "version"}).
		AddRow(tenantID, balance, now, now, version)
}

func TestGormLedger_HasSufficientBalance(t *testing.T) {
	t.Run("compares cents against the dollar balance", func(t *testing.T) {
		l, mock, mockDB := newMockLedger(t)
		defer mockDB.Close()
		tenantID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "postage_accounts" WHERE tenant_id = \$1`).
			WillReturnRows(accountRows(tenantID, "2.61", 3))
		ok, err := l.HasSufficientBalance(context.Background(), tenantID, 261)
		require.NoError(t, err)
		assert.True(t, ok)

		mock.ExpectQuery(`SELECT \* FROM "postage_accounts" WHERE tenant_id = \$1`).
			WillReturnRows(accountRows(tenantID, "2.61", 3))
		ok, err = l.HasSufficientBalance(context.Background(), tenantID, 262)
		require.NoError(t, err)
		assert.False(t, ok)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tenant without account has zero balance", func(t *testing.T) {
		l, mock, mockDB := newMockLedger(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "postage_accounts"`).
			WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "balance"}))

		ok, err := l.HasSufficientBalance(context.Background(), uuid.New(), 1)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormLedger_ChargeForCampaign(t *testing.T) {
	t.Run("debits once with balance arithmetic", func(t *testing.T) {
		l, mock, mockDB := newMockLedger(t)
		defer mockDB.Close()
		tenantID, campaignID := uuid.New(), uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT count\(\*\) FROM "ledger_entries" WHERE tenant_id = \$1 AND reference = \$2`).
			WithArgs(tenantID, billing.CampaignReference(campaignID)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(`SELECT \* FROM "postage_accounts" WHERE tenant_id = \$1 .*FOR UPDATE`).
			WillReturnRows(accountRows(tenantID, "10.00", 4))
		mock.ExpectExec(`INSERT INTO "ledger_entries"`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE "postage_accounts" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := l.ChargeForCampaign(context.Background(), tenantID, campaignID, 174, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(174), res.AmountCents)
		assert.Equal(t, "8.26", res.BalanceAfter.StringFixed(2))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second charge returns ErrAlreadyCharged", func(t *testing.T) {
		l, mock, mockDB := newMockLedger(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT count\(\*\) FROM "ledger_entries"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectRollback()

		_, err := l.ChargeForCampaign(context.Background(), uuid.New(), uuid.New(), 174, nil)
		assert.ErrorIs(t, err, billing.ErrAlreadyCharged)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("account opened by a concurrent charge is still debited", func(t *testing.T) {
		l, mock, mockDB := newMockLedger(t)
		defer mockDB.Close()
		tenantID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT count\(\*\) FROM "ledger_entries"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(`SELECT \* FROM "postage_accounts" .*FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "balance"}))
		mock.ExpectExec(`INSERT INTO "postage_accounts" .*ON CONFLICT DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT \* FROM "postage_accounts" .*FOR UPDATE`).
			WillReturnRows(accountRows(tenantID, "-0.87", 2))
		mock.ExpectExec(`INSERT INTO "ledger_entries"`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE "postage_accounts" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := l.ChargeForCampaign(context.Background(), tenantID, uuid.New(), 60, nil)
		require.NoError(t, err)
		assert.Equal(t, "-1.47", res.BalanceAfter.StringFixed(2))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate entry reference means already charged", func(t *testing.T) {
		l, mock, mockDB := newMockLedger(t)
		defer mockDB.Close()
		tenantID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT count\(\*\) FROM "ledger_entries"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(`SELECT \* FROM "postage_accounts" .*FOR UPDATE`).
			WillReturnRows(accountRows(tenantID, "10.00", 4))
		mock.ExpectExec(`INSERT INTO "ledger_entries"`).
			WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
		mock.ExpectRollback()

		_, err := l.ChargeForCampaign(context.Background(), tenantID, uuid.New(), 100, nil)
		assert.ErrorIs(t, err, billing.ErrAlreadyCharged)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate account row is not mistaken for a charge", func(t *testing.T) {
		l, mock, mockDB := newMockLedger(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT count\(\*\) FROM "ledger_entries"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(`SELECT \* FROM "postage_accounts" .*FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "balance"}))
		mock.ExpectExec(`INSERT INTO "postage_accounts"`).
			WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
		mock.ExpectRollback()

		_, err := l.ChargeForCampaign(context.Background(), uuid.New(), uuid.New(), 100, nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, billing.ErrAlreadyCharged)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent balance change rolls back", func(t *testing.T) {
		l, mock, mockDB := newMockLedger(t)
		defer mockDB.Close()
		tenantID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT count\(\*\) FROM "ledger_entries"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(`SELECT \* FROM "postage_accounts"`).
			WillReturnRows(accountRows(tenantID, "10.00", 4))
		mock.ExpectExec(`INSERT INTO "ledger_entries"`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE "postage_accounts" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := l.ChargeForCampaign(context.Background(), tenantID, uuid.New(), 100, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "modified by another transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormLedger_Credit(t *testing.T) {
	t.Run("opens an account on first credit", func(t *testing.T) {
		l, mock, mockDB := newMockLedger(t)
		defer mockDB.Close()
		tenantID := uuid.New()
		actor := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "postage_accounts" .*FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "balance"}))
		mock.ExpectExec(`INSERT INTO "postage_accounts" .*ON CONFLICT DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery(`SELECT \* FROM "postage_accounts" .*FOR UPDATE`).
			WillReturnRows(accountRows(tenantID, "0", 1))
		mock.ExpectExec(`INSERT INTO "ledger_entries"`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE "postage_accounts" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		entry, err := l.Credit(context.Background(), tenantID, 5000, "topup:1", &actor)
		require.NoError(t, err)
		assert.Equal(t, billing.EntryTypeCredit, entry.EntryType)
		assert.Equal(t, "50.00", entry.BalanceAfter.StringFixed(2))
		assert.Equal(t, &actor, entry.ActorID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		l, mock, mockDB := newMockLedger(t)
		defer mockDB.Close()
		tenantID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "postage_accounts"`).
			WillReturnRows(accountRows(tenantID, "1.00", 1))
		mock.ExpectRollback()

		_, err := l.Credit(context.Background(), tenantID, 0, "topup:0", nil)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
