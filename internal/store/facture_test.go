package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/d9705996/artisan/internal/billing"
	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acceptedDevis(t *testing.T, s *store.DevisStore, tenantID, clientID string) *model.Devis {
	t.Helper()
	ctx := context.Background()
	d, err := s.Create(ctx, tenantID, store.DevisInput{
		ClientID: clientID,
		Objet:    "Toiture",
		Lignes: []model.Ligne{
			ligne("Tuiles", "120", "1.80", "10"),
			ligne("Pose", "2", "350", "10"),
		},
	})
	require.NoError(t, err)
	for _, st := range []billing.DevisStatus{billing.DevisSent, billing.DevisAccepted} {
		d, err = s.SetStatus(ctx, tenantID, d.ID, st)
		require.NoError(t, err)
	}
	return d
}

func TestFacture_CreateFromDevis(t *testing.T) {
	gormDB := newDB(t)
	ctx := context.Background()
	c := createClient(t, gormDB, tenantA)
	d := acceptedDevis(t, store.NewDevisStore(gormDB), tenantA, c.ID)
	s := store.NewFactureStore(gormDB)

	due := time.Now().AddDate(0, 0, 30)
	f, err := s.CreateFromDevis(ctx, tenantA, d.ID, &due)
	require.NoError(t, err)
	require.NotNil(t, f.DevisID)
	assert.Equal(t, d.ID, *f.DevisID)
	assert.Equal(t, billing.FactureDraft, f.Status)
	assert.Equal(t, billing.Numero(billing.PrefixFacture, time.Now().UTC().Year(), 1), f.Numero)
	assert.True(t, d.MontantTTC.Equal(f.MontantTTC))
	assert.Equal(t, "Toiture", f.Objet)

	got, err := s.Get(ctx, tenantA, f.ID)
	require.NoError(t, err)
	require.Len(t, got.Lignes, 2)
	assert.Equal(t, "Tuiles", got.Lignes[0].Designation)
	assert.NotNil(t, got.DateEcheance)

	_, err = s.CreateFromDevis(ctx, tenantA, d.ID, &due)
	assert.ErrorIs(t, err, store.ErrConflict, "a quote converts once")
}

func TestFacture_InvoicedDevisCannotBeDeleted(t *testing.T) {
	gormDB := newDB(t)
	ctx := context.Background()
	c := createClient(t, gormDB, tenantA)
	ds := store.NewDevisStore(gormDB)
	d := acceptedDevis(t, ds, tenantA, c.ID)
	s := store.NewFactureStore(gormDB)
	f, err := s.CreateFromDevis(ctx, tenantA, d.ID, nil)
	require.NoError(t, err)

	err = ds.Delete(ctx, tenantA, d.ID)
	require.ErrorIs(t, err, store.ErrConflict)

	got, err := ds.Get(ctx, tenantA, d.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lignes, 2)
	gotF, err := s.Get(ctx, tenantA, f.ID)
	require.NoError(t, err)
	require.NotNil(t, gotF.DevisID)
	assert.Equal(t, d.ID, *gotF.DevisID)
}

func TestFacture_CreateFromDevisRequiresAccepted(t *testing.T) {
	gormDB := newDB(t)
	ctx := context.Background()
	c := createClient(t, gormDB, tenantA)
	d, err := store.NewDevisStore(gormDB).Create(ctx, tenantA, store.DevisInput{ClientID: c.ID})
	require.NoError(t, err)

	_, err = store.NewFactureStore(gormDB).CreateFromDevis(ctx, tenantA, d.ID, nil)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = store.NewFactureStore(gormDB).CreateFromDevis(ctx, tenantB, d.ID, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFacture_LifecycleAndStamps(t *testing.T) {
	gormDB := newDB(t)
	ctx := context.Background()
	c := createClient(t, gormDB, tenantA)
	s := store.NewFactureStore(gormDB)
	f, err := s.Create(ctx, tenantA, store.FactureInput{ClientID: c.ID, Lignes: []model.Ligne{ligne("Dépannage", "1", "90", "20")}})
	require.NoError(t, err)
	assert.Equal(t, "108.00", f.MontantTTC.StringFixed(2))

	_, err = s.SetStatus(ctx, tenantA, f.ID, billing.FacturePaid)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)

	f, err = s.SetStatus(ctx, tenantA, f.ID, billing.FactureSent)
	require.NoError(t, err)
	assert.NotNil(t, f.DateEnvoi)
	f, err = s.SetStatus(ctx, tenantA, f.ID, billing.FactureOverdue)
	require.NoError(t, err)
	f, err = s.SetStatus(ctx, tenantA, f.ID, billing.FacturePaid)
	require.NoError(t, err)
	assert.NotNil(t, f.DatePaiement)

	_, err = s.SetStatus(ctx, tenantA, f.ID, billing.FactureDraft)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestFacture_DeleteOnlyDraft(t *testing.T) {
	gormDB := newDB(t)
	ctx := context.Background()
	c := createClient(t, gormDB, tenantA)
	s := store.NewFactureStore(gormDB)

	draft, err := s.Create(ctx, tenantA, store.FactureInput{ClientID: c.ID})
	require.NoError(t, err)
	issued, err := s.Create(ctx, tenantA, store.FactureInput{ClientID: c.ID})
	require.NoError(t, err)
	_, err = s.SetStatus(ctx, tenantA, issued.ID, billing.FactureSent)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, tenantA, draft.ID))
	assert.ErrorIs(t, s.Delete(ctx, tenantA, issued.ID), store.ErrConflict)

	_, err = s.ReplaceLines(ctx, tenantA, issued.ID, nil)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestFacture_OverdueCandidates(t *testing.T) {
	gormDB := newDB(t)
	ctx := context.Background()
	c := createClient(t, gormDB, tenantA)
	s := store.NewFactureStore(gormDB)

	past := time.Now().AddDate(0, 0, -3)
	late, err := s.Create(ctx, tenantA, store.FactureInput{ClientID: c.ID, DateEcheance: &past})
	require.NoError(t, err)
	_, err = s.SetStatus(ctx, tenantA, late.ID, billing.FactureSent)
	require.NoError(t, err)
	_, err = s.Create(ctx, tenantA, store.FactureInput{ClientID: c.ID, DateEcheance: &past})
	require.NoError(t, err)

	got, err := s.OverdueCandidates(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, late.ID, got[0].ID)
}
