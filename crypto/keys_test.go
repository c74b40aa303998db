package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/iov-one/offchain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEd25519Signing(t *testing.T) {
	private := GenPrivateKey()
	public := private.PublicKey()

	msg := []byte("foobar")
	msg2 := []byte("dingbooms")

	sig := private.Sign(msg)
	sig2 := private.Sign(msg2)
	assert.NotEqual(t, sig, sig2)

	assert.True(t, public.Verify(msg, sig))
	assert.True(t, public.Verify(msg2, sig2))
	assert.False(t, public.Verify(msg, sig2), "verified signature of the wrong message")
	assert.False(t, public.Verify(msg2, sig), "verified signature of the wrong message")
	assert.False(t, public.Verify(msg, nil), "verified a nil signature")
	assert.False(t, PublicKey(nil).Verify(msg, sig), "verified with an empty key")
}

func TestEd25519Address(t *testing.T) {
	pub := GenPrivateKey().PublicKey()
	pub2 := GenPrivateKey().PublicKey()

	assert.NoError(t, pub.Condition().Validate())
	assert.NotEqual(t, pub.Condition(), pub2.Condition())
	assert.NoError(t, pub.Address().Validate())
	assert.False(t, pub.Address().Equals(pub2.Address()))
}

func TestPrivateKeyFromSeed(t *testing.T) {
	seed := make([]byte, 32)
	seed[0] = 7
	a, err := PrivateKeyFromSeed(seed)
	require.NoError(t, err)
	b, err := PrivateKeyFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = PrivateKeyFromSeed([]byte("short"))
	assert.True(t, errors.ErrInput.Is(err))

	parsed, err := ParsePrivateKey(a)
	require.NoError(t, err)
	assert.True(t, parsed.Address().Equals(a.Address()))
	_, err = ParsePrivateKey(seed)
	assert.True(t, errors.ErrInput.Is(err))
}

func TestDeriveKey(t *testing.T) {
	seed, err := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)

	k1, err := DeriveKey("m/44'/234'/0'", seed)
	require.NoError(t, err)
	k2, err := DeriveKey("m/44'/234'/0'", seed)
	require.NoError(t, err)
	k3, err := DeriveKey("m/44'/234'/1'", seed)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)

	_, err = DeriveKey("44/x", seed)
	assert.True(t, errors.ErrInput.Is(err))
}
