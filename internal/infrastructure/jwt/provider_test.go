package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

func TestSignVerify(t *testing.T) {
	key := newKey(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC))
	p := NewProviderFromKeys(key, &key.PublicKey, time.Hour, clock)

	tok, err := p.Sign("01A", "a@b.com")
	require.NoError(t, err)
	claims, err := p.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "01A", claims.IdentityID)
	assert.Equal(t, "01A", claims.Subject)
	assert.Equal(t, "a@b.com", claims.Email)
}

func TestVerify_Expired(t *testing.T) {
	key := newKey(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC))
	p := NewProviderFromKeys(key, &key.PublicKey, time.Hour, clock)

	tok, err := p.Sign("01A", "a@b.com")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = p.Verify(tok)
	assert.Error(t, err)
}

func TestVerify_ForeignKey(t *testing.T) {
	clock := clockwork.NewRealClock()
	signer := newKey(t)
	other := newKey(t)

	tok, err := NewProviderFromKeys(signer, &signer.PublicKey, time.Hour, clock).Sign("01A", "a@b.com")
	require.NoError(t, err)
	_, err = NewProviderFromKeys(other, &other.PublicKey, time.Hour, clock).Verify(tok)
	assert.Error(t, err)
}
