package crypto_test

import (
	"testing"

	"github.com/lofire/broker/crypto"
	"github.com/lofire/broker/ids"
	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	require.Equal(t, crypto.Hash([]byte("a")), crypto.Hash([]byte("a")))
	require.NotEqual(t, crypto.Hash([]byte("a")), crypto.Hash([]byte("b")))
}

func TestKeyedHashDependsOnKey(t *testing.T) {
	var k1, k2 ids.SymKey
	k1[0] = 1
	k2[0] = 2
	require.NotEqual(t, crypto.KeyedHash(k1, []byte("x")), crypto.KeyedHash(k2, []byte("x")))
}

func TestDeriveKeyDependsOnLabel(t *testing.T) {
	var base ids.SymKey
	base[0] = 9
	k1 := crypto.DeriveKey(crypto.LabelOverlayId, base[:])
	k2 := crypto.DeriveKey(crypto.LabelOverlay, base[:])
	require.NotEqual(t, k1, k2)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("hello")
	sig := crypto.Sign(priv, msg)
	require.NoError(t, crypto.Verify(pub, msg, sig))

	otherPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.Error(t, crypto.Verify(otherPub, msg, sig))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	var key ids.SymKey
	key[0] = 42
	plaintext := []byte("the quick brown fox")

	ciphertext, err := crypto.Encrypt(key, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	got, err := crypto.Decrypt(key, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestOverlayIdPublicVsPrivate(t *testing.T) {
	pub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	publicId := crypto.OverlayId(pub, nil)
	require.Equal(t, crypto.Hash(pub[:]), publicId)

	var secret ids.SymKey
	secret[0] = 3
	privateId := crypto.OverlayId(pub, &secret)
	require.NotEqual(t, publicId, privateId)
}
