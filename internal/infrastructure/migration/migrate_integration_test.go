//go:build integration

package migration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("postcard_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))
	return db
}

func TestMigrator_UpDown(t *testing.T) {
	db := startPostgres(t)

	m, err := New(db, nil)
	require.NoError(t, err)

	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	// second run is a no-op
	require.NoError(t, m.Up())

	for _, table := range []string{
		"campaigns", "campaign_recipients", "do_not_mail_entries", "customer_profiles",
		"suppression_settings", "postage_accounts", "ledger_entries", "vendor_api_logs",
	} {
		var exists bool
		err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	require.NoError(t, m.Steps(-1))
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	require.NoError(t, m.Down())
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestMigrator_VendorObjectIDUnique(t *testing.T) {
	db := startPostgres(t)
	m, err := New(db, nil)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	_, err = db.Exec(`INSERT INTO campaigns (id, tenant_id, created_at, updated_at, name, mail_class, mail_size)
		VALUES ('00000000-0000-0000-0000-0000000000c1', '00000000-0000-0000-0000-0000000000a1', now(), now(), 'c', 'first_class', '4x6')`)
	require.NoError(t, err)

	insert := `INSERT INTO campaign_recipients (id, tenant_id, created_at, updated_at, campaign_id, name, vendor_object_id)
		VALUES ($1, '00000000-0000-0000-0000-0000000000a1', now(), now(), '00000000-0000-0000-0000-0000000000c1', 'r', $2)`

	_, err = db.Exec(insert, "00000000-0000-0000-0000-000000000001", nil)
	require.NoError(t, err)
	_, err = db.Exec(insert, "00000000-0000-0000-0000-000000000002", nil)
	require.NoError(t, err, "NULL vendor ids do not collide")
	_, err = db.Exec(insert, "00000000-0000-0000-0000-000000000003", "psc_123")
	require.NoError(t, err)
	_, err = db.Exec(insert, "00000000-0000-0000-0000-000000000004", "psc_123")
	assert.Error(t, err)
}
