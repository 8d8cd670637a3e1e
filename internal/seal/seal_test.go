package seal_test

import (
	"strings"
	"testing"

	"github.com/d9705996/artisan/internal/seal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_SealOpen(t *testing.T) {
	box := seal.New("a-long-random-secret")
	sealed, err := box.Seal("ya29.access-token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "enc:v1:"))
	assert.NotContains(t, sealed, "access-token")

	again, err := box.Seal("ya29.access-token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access-token", plain)
}

func TestBox_WrongKey(t *testing.T) {
	sealed, err := seal.New("key-one").Seal("token")
	require.NoError(t, err)

	_, err = seal.New("key-two").Open(sealed)
	assert.ErrorIs(t, err, seal.ErrCorrupt)

	_, err = (*seal.Box)(nil).Open(sealed)
	assert.ErrorIs(t, err, seal.ErrCorrupt)
}

func TestBox_PlaintextPassthrough(t *testing.T) {
	var box *seal.Box
	assert.Nil(t, seal.New(""))

	sealed, err := box.Seal("token")
	require.NoError(t, err)
	assert.Equal(t, "token", sealed)

	plain, err := seal.New("key").Open("legacy-plaintext")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plaintext", plain)

	empty, err := seal.New("key").Seal("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
