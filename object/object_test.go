package object_test

import (
	"bytes"
	"testing"

	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/object"
	"github.com/lofire/broker/wire"
	"github.com/stretchr/testify/require"
)

func store(blocks []*wire.Block) map[ids.BlockId]*wire.Block {
	m := make(map[ids.BlockId]*wire.Block, len(blocks))
	for _, b := range blocks {
		m[b.Id()] = b
	}
	return m
}

func TestAssembleReassembleSingleLeaf(t *testing.T) {
	content := []byte("small object content")
	blocks, rootId, err := object.Assemble(content, nil, nil, 4096, nil)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	m := store(blocks)
	root, ok := m[rootId]
	require.True(t, ok)

	got, err := object.Reassemble(root, func(id ids.BlockId) (*wire.Block, error) {
		return m[id], nil
	})
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestAssembleReassembleMultiLevel(t *testing.T) {
	content := bytes.Repeat([]byte{0xAB}, 3000)
	blocks, rootId, err := object.Assemble(content, nil, nil, 10, nil)
	require.NoError(t, err)
	require.Greater(t, len(blocks), 256, "expected more than one fan-out level")

	m := store(blocks)
	root, ok := m[rootId]
	require.True(t, ok)
	require.NotEmpty(t, root.Children)

	got, err := object.Reassemble(root, func(id ids.BlockId) (*wire.Block, error) {
		b, ok := m[id]
		require.True(t, ok, "missing block")
		return b, nil
	})
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestAssembleSetsDepsAndExpiry(t *testing.T) {
	dep := ids.BlockId{1, 2, 3}
	expiry := uint64(100)
	blocks, rootId, err := object.Assemble([]byte("x"), []ids.BlockId{dep}, &expiry, 4096, nil)
	require.NoError(t, err)

	m := store(blocks)
	root := m[rootId]
	require.NotNil(t, root.Dep)
	require.Equal(t, dep, *root.Dep)
	require.NotNil(t, root.Expiry)
	require.Equal(t, expiry, *root.Expiry)
}

func TestReassembleRejectsMissingKey(t *testing.T) {
	b := &wire.Block{Payload: []byte("no key")}
	_, err := object.Reassemble(b, func(id ids.BlockId) (*wire.Block, error) { return nil, nil })
	require.Error(t, err)
}
