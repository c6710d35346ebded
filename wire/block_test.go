package wire_test

import (
	"testing"

	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/wire"
	"github.com/stretchr/testify/require"
)

func TestBlockRoundTrip(t *testing.T) {
	child := ids.Digest{1, 2, 3}
	expiry := uint64(42)
	var key ids.SymKey
	key[0] = 7

	b := &wire.Block{
		Children: []ids.BlockId{child},
		Expiry:   &expiry,
		Payload:  []byte("hello world"),
		Key:      &key,
	}

	data := b.Encode()
	got, err := wire.DecodeBlock(data)
	require.NoError(t, err)
	require.Equal(t, b.Children, got.Children)
	require.Equal(t, *b.Expiry, *got.Expiry)
	require.Equal(t, b.Payload, got.Payload)
	require.Equal(t, *b.Key, *got.Key)
}

func TestBlockIdDeterministic(t *testing.T) {
	b1 := &wire.Block{Payload: []byte{1, 2, 3}}
	b2 := &wire.Block{Payload: []byte{1, 2, 3}}
	require.Equal(t, b1.Id(), b2.Id())

	b3 := &wire.Block{Payload: []byte{1, 2, 4}}
	require.NotEqual(t, b1.Id(), b3.Id())
}

func TestDecodeBlockRejectsTrailingBytes(t *testing.T) {
	b := &wire.Block{Payload: []byte("x")}
	data := append(b.Encode(), 0xFF)
	_, err := wire.DecodeBlock(data)
	require.Error(t, err)
}

func TestDecodeBlockRejectsTruncated(t *testing.T) {
	b := &wire.Block{Payload: []byte("hello")}
	data := b.Encode()
	_, err := wire.DecodeBlock(data[:len(data)-2])
	require.Error(t, err)
}
