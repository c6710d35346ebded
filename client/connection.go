package client

import (
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/object"
	"github.com/lofire/broker/wire"
)

// Connection is the narrow capability set spec.md §4.6 exposes uniformly
// over a local (in-process) or remote (multiplexed) broker.
type Connection interface {
	AddUser(user ids.UserId, adminPriv ids.PrivKey) error
	DelUser(user ids.UserId, adminPriv ids.PrivKey) error
	AddClient(user ids.UserId, client ids.ClientId, userPriv ids.PrivKey) error
	DelClient(user ids.UserId, client ids.ClientId, userPriv ids.PrivKey) error
	OverlayConnect(link ids.RepoLink, public bool) (*OverlayClient, error)
}

// BlockSeq is the abstract lazy block sequence get_block/sync_branch
// return, satisfied in-process by the local implementation and by a
// *BlockStream remotely (spec.md §9 "Uniform local/remote surface").
type BlockSeq interface {
	Next() (*wire.Block, error)
}

// OverlayClient is the per-overlay surface spec.md §4.6 describes:
// put_block, get_block, get_object, put_object, sync_branch.
type OverlayClient struct {
	overlayId ids.OverlayId
	do        func(req wire.OverlayRequestContent) (errs.Code, *wire.Block)
	doStream  func(req wire.OverlayRequestContent) (BlockSeq, error)
}

// PutBlock stores a block and returns its id.
func (c *OverlayClient) PutBlock(b *wire.Block) (ids.BlockId, error) {
	result, _ := c.do(wire.BlockPut{Block: b})
	if result != errs.OK {
		return ids.BlockId{}, errs.New(result)
	}
	return b.Id(), nil
}

// GetBlock fetches a block, optionally with its transitive children, as
// a lazy sequence whose first element is always the root.
func (c *OverlayClient) GetBlock(id ids.BlockId, includeChildren bool, topic *ids.TopicId) (BlockSeq, error) {
	return c.doStream(wire.BlockGet{Id: id, IncludeChildren: includeChildren, Topic: topic})
}

// GetObject drains a recursive GetBlock and reassembles it via the
// object package's external-assembler contract (spec.md §4.6). The
// root block carries its own decryption key (spec.md §3: "an optional
// encryption key field, used only at object boundaries").
func (c *OverlayClient) GetObject(id ids.ObjectId, topic *ids.TopicId) ([]byte, error) {
	seq, err := c.GetBlock(id, true, topic)
	if err != nil {
		return nil, err
	}
	blocks := make(map[ids.BlockId]*wire.Block)
	var root *wire.Block
	for {
		b, err := seq.Next()
		if err != nil {
			return nil, err
		}
		if b == nil {
			break
		}
		if root == nil {
			root = b
		}
		blocks[b.Id()] = b
	}
	if root == nil {
		return nil, errs.New(errs.NotFound)
	}
	return object.Reassemble(root, func(id ids.BlockId) (*wire.Block, error) {
		b, ok := blocks[id]
		if !ok {
			return nil, errs.New(errs.NotFound)
		}
		return b, nil
	})
}

// PutObject splits content into blocks via the object assembler, under a
// fresh per-object key, and writes every resulting block, deduplicated by
// the store's idempotent put (spec.md §4.6).
func (c *OverlayClient) PutObject(content []byte, deps []ids.BlockId, expiry *uint64, maxSize int) (ids.ObjectId, error) {
	blocks, rootId, err := object.Assemble(content, deps, expiry, maxSize, nil)
	if err != nil {
		return ids.ObjectId{}, err
	}
	for _, b := range blocks {
		if _, err := c.PutBlock(b); err != nil {
			return ids.ObjectId{}, err
		}
	}
	return rootId, nil
}

// SyncBranch requests the commits missing from the caller's state,
// returned as the same kind of lazy block sequence as GetBlock.
func (c *OverlayClient) SyncBranch(heads, knownHeads []ids.BlockId, knownCommits ids.BloomFilter) (BlockSeq, error) {
	return c.doStream(wire.BranchSyncReq{Heads: heads, KnownHeads: knownHeads, KnownCommits: knownCommits})
}
