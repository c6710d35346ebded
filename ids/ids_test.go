package ids_test

import (
	"testing"

	"github.com/lofire/broker/ids"
	"github.com/stretchr/testify/require"
)

func TestDigestIsZero(t *testing.T) {
	require.True(t, ids.Empty.IsZero())
	d := ids.Digest{1}
	require.False(t, d.IsZero())
}

func TestPubKeyFromBytesRejectsWrongLength(t *testing.T) {
	_, err := ids.PubKeyFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ids.ErrInvalidKeyLength)
}

func TestPrivKeyPublicRoundTrip(t *testing.T) {
	var priv ids.PrivKey
	pub := priv.Public()
	require.Len(t, pub[:], 32)
}

func TestDigestFromBytesRoundTrip(t *testing.T) {
	raw := make([]byte, 32)
	raw[0] = 0xFF
	d, err := ids.DigestFromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, byte(0xFF), d[0])
}
