package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/postcard/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
)

func TestDatabase_OpenPingClose(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	db, err := open(postgres.New(postgres.Config{Conn: mockDB}), &config.DatabaseConfig{
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}, nil)
	require.NoError(t, err)

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	assert.Equal(t, 4, sqlDB.Stats().MaxOpenConnections)

	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	err = db.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	mock.ExpectClose()
	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_OpenFailsWhenUnreachable(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectPing().WillReturnError(errors.New("refused"))
	_, err = open(postgres.New(postgres.Config{Conn: mockDB}), &config.DatabaseConfig{}, nil)
	assert.Error(t, err)
}
