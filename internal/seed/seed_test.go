package seed_test

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/d9705996/artisan/internal/config"
	"github.com/d9705996/artisan/internal/db"
	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/seed"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newNullLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, _, err := db.New(context.Background(), &config.DBConfig{
		Driver: "sqlite",
		File:   filepath.Join(t.TempDir(), "seed.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gormDB
}

func TestEnsureDemoTenant_Idempotent(t *testing.T) {
	gormDB := openDB(t)
	ctx := context.Background()
	opts := seed.DemoOptions{TenantID: "demo-tenant", VATPct: decimal.NewFromInt(10)}

	created, err := seed.EnsureDemoTenant(ctx, gormDB, opts, newNullLogger())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = seed.EnsureDemoTenant(ctx, gormDB, opts, newNullLogger())
	require.NoError(t, err)
	assert.False(t, created)

	var e model.Entreprise
	require.NoError(t, gormDB.Where("tenant_id = ?", "demo-tenant").First(&e).Error)
	assert.Equal(t, "Plomberie Démo", e.RaisonSociale)
	assert.True(t, e.TVADefaut.Equal(decimal.NewFromInt(10)))

	var clients []model.Client
	require.NoError(t, gormDB.Where("tenant_id = ?", "demo-tenant").Find(&clients).Error)
	require.Len(t, clients, 1)
	assert.Equal(t, "33612345678", clients[0].TelephoneNormalise)
}

func TestEnsureDemoTenant_Disabled(t *testing.T) {
	gormDB := openDB(t)

	created, err := seed.EnsureDemoTenant(context.Background(), gormDB, seed.DemoOptions{}, newNullLogger())
	require.NoError(t, err)
	assert.False(t, created)

	var n int64
	require.NoError(t, gormDB.Model(&model.Entreprise{}).Count(&n).Error)
	assert.Zero(t, n)
}
