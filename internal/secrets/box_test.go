package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBox(t *testing.T) *Box {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	box, err := NewBoxFromBase64(key)
	require.NoError(t, err)
	return box
}

func TestBox_SealOpen(t *testing.T) {
	box := newTestBox(t)

	sealed, err := box.Seal("hunter22")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "hunter22")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter22", plain)
}

func TestBox_SealUsesFreshNonce(t *testing.T) {
	box := newTestBox(t)
	a, err := box.Seal("same")
	require.NoError(t, err)
	b, err := box.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBox_OpenRejectsTampering(t *testing.T) {
	box := newTestBox(t)
	sealed, err := box.Seal("secret")
	require.NoError(t, err)

	tampered := []byte(sealed)
	i := len(tampered) / 2
	if tampered[i] == 'A' {
		tampered[i] = 'B'
	} else {
		tampered[i] = 'A'
	}
	_, err = box.Open(string(tampered))
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = box.Open("not base64!!")
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = box.Open("")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestBox_WrongKey(t *testing.T) {
	sealed, err := newTestBox(t).Seal("secret")
	require.NoError(t, err)
	_, err = newTestBox(t).Open(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestNewBox_KeyLength(t *testing.T) {
	_, err := NewBox([]byte(strings.Repeat("k", 16)))
	assert.Error(t, err)
	_, err = NewBoxFromBase64("%%%")
	assert.Error(t, err)
}
