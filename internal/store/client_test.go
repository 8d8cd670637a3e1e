package store_test

import (
	"context"
	"testing"

	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CRUD(t *testing.T) {
	gormDB := newDB(t)
	ctx := context.Background()
	s := store.NewClientStore(gormDB)

	c := &model.Client{Nom: "Lefèvre", Prenom: "Anne", Ville: "Lyon"}
	require.NoError(t, s.Create(ctx, tenantA, c))
	require.NotEmpty(t, c.ID)
	assert.Equal(t, tenantA, c.TenantID)

	ville := "Villeurbanne"
	tel := "+33 7 01 02 03 04"
	got, err := s.Update(ctx, tenantA, c.ID, store.ClientPatch{Ville: &ville, Telephone: &tel})
	require.NoError(t, err)
	assert.Equal(t, "Villeurbanne", got.Ville)
	assert.Equal(t, "Anne", got.Prenom, "unset fields are kept")
	assert.Equal(t, "33701020304", got.TelephoneNormalise)

	_, err = s.Update(ctx, tenantB, c.ID, store.ClientPatch{Ville: &ville})
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.List(ctx, tenantA, "lefè")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = s.List(ctx, tenantA, "martin")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.Delete(ctx, tenantA, c.ID))
	_, err = s.Get(ctx, tenantA, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClient_DeleteRefusedWhileReferenced(t *testing.T) {
	gormDB := newDB(t)
	ctx := context.Background()
	c := createClient(t, gormDB, tenantA)
	_, err := store.NewDevisStore(gormDB).Create(ctx, tenantA, store.DevisInput{ClientID: c.ID})
	require.NoError(t, err)

	err = store.NewClientStore(gormDB).Delete(ctx, tenantA, c.ID)
	assert.ErrorIs(t, err, store.ErrClientInUse)
}

func TestClient_FindByPhoneAcrossTenants(t *testing.T) {
	gormDB := newDB(t)
	ctx := context.Background()
	createClient(t, gormDB, tenantA)
	createClient(t, gormDB, tenantB)
	s := store.NewClientStore(gormDB)

	got, err := s.FindByPhone(ctx, "33612345678")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.FindByPhone(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
