package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/d9705996/artisan/internal/config"
	"github.com/d9705996/artisan/internal/db"
	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	tenantA = "7f1c2a4e-0000-4000-8000-00000000000a"
	tenantB = "7f1c2a4e-0000-4000-8000-00000000000b"
)

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, _, err := db.New(context.Background(), &config.DBConfig{
		Driver: "sqlite",
		File:   filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gormDB
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ligne(designation, qty, price, vat string) model.Ligne {
	return model.Ligne{
		Designation: designation,
		Quantity:    dec(qty),
		UnitPriceHT: dec(price),
		VATPct:      dec(vat),
	}
}

func createClient(t *testing.T, gormDB *gorm.DB, tenantID string) *model.Client {
	t.Helper()
	c := &model.Client{Nom: "Durand", Prenom: "Paul", Email: "paul.durand@example.fr", Telephone: "06 12 34 56 78"}
	require.NoError(t, store.NewClientStore(gormDB).Create(context.Background(), tenantID, c))
	return c
}
