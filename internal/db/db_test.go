package db_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/d9705996/artisan/internal/config"
	"github.com/d9705996/artisan/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestNew_SQLiteCreatesSchema(t *testing.T) {
	gormDB, pool, err := db.New(context.Background(), &config.DBConfig{
		Driver: "sqlite",
		File:   filepath.Join(t.TempDir(), "artisan.db"),
	})
	require.NoError(t, err)
	assert.Nil(t, pool, "River pool only exists on postgres")

	for _, table := range []string{
		"entreprises", "clients", "devis", "devis_lignes",
		"factures", "facture_lignes", "notifications", "oauth_connections",
	} {
		assert.True(t, gormDB.Migrator().HasTable(table), table)
	}
	assert.True(t, gormDB.Migrator().HasIndex("oauth_connections", "idx_oauth_active"))

	require.NoError(t, db.NewPinger(gormDB).Ping(context.Background()))
}

func TestNew_SQLiteInMemory(t *testing.T) {
	gormDB, _, err := db.New(context.Background(), &config.DBConfig{Driver: "sqlite", File: ":memory:"})
	require.NoError(t, err)
	assert.True(t, gormDB.Migrator().HasTable("devis"))
}

func mockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return gormDB, mock
}

func TestDBPinger_Healthy(t *testing.T) {
	gormDB, mock := mockGorm(t)
	mock.ExpectPing()

	require.NoError(t, db.NewPinger(gormDB).Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDBPinger_Unreachable(t *testing.T) {
	gormDB, mock := mockGorm(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	err := db.NewPinger(gormDB).Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}
