package store_test

import (
	"context"
	"testing"

	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifications(t *testing.T) {
	gormDB := newDB(t)
	ctx := context.Background()
	s := store.NewNotificationStore(gormDB)

	for _, title := range []string{"Devis envoyé", "Facture en retard", "Nouveau message"} {
		require.NoError(t, s.Create(ctx, &model.Notification{
			TenantID: tenantA, Type: "info", Title: title,
			Payload: map[string]any{"source": "test"},
		}))
	}
	require.NoError(t, s.Create(ctx, &model.Notification{TenantID: tenantB, Type: "info", Title: "Autre"}))

	all, err := s.List(ctx, tenantA, false, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "test", all[0].Payload["source"])

	require.NoError(t, s.MarkRead(ctx, tenantA, all[0].ID))
	assert.ErrorIs(t, s.MarkRead(ctx, tenantB, all[1].ID), store.ErrNotFound)

	unread, err := s.List(ctx, tenantA, true, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	n, err := s.MarkAllRead(ctx, tenantA)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.Delete(ctx, tenantA, all[2].ID))
	assert.ErrorIs(t, s.Delete(ctx, tenantA, all[2].ID), store.ErrNotFound)

	other, err := s.List(ctx, tenantB, true, 10)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestEntreprise_DefaultsThenUpsert(t *testing.T) {
	gormDB := newDB(t)
	ctx := context.Background()
	s := store.NewEntrepriseStore(gormDB, store.EntrepriseDefaults{
		VATPct: decimal.NewFromInt(10), ValidityDays: 30, PaymentDays: 45,
	})

	e, err := s.Get(ctx, tenantA)
	require.NoError(t, err)
	assert.Equal(t, tenantA, e.TenantID)
	assert.Equal(t, "10", e.TVADefaut.String())
	assert.Equal(t, 45, e.DelaiPaiementJours)

	e.RaisonSociale = "Plomberie Durand"
	e.TVADefaut = decimal.RequireFromString("5.5")
	require.NoError(t, s.Upsert(ctx, e))

	e.RaisonSociale = "Plomberie Durand & Fils"
	require.NoError(t, s.Upsert(ctx, e))

	got, err := s.Get(ctx, tenantA)
	require.NoError(t, err)
	assert.Equal(t, "Plomberie Durand & Fils", got.RaisonSociale)
	assert.Equal(t, "5.5", got.TVADefaut.String())

	var n int64
	require.NoError(t, gormDB.Model(&model.Entreprise{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
