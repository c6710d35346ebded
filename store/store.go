// Package store adapts an external key/value database to the
// content-addressed Block contract the broker engine needs (spec.md
// §4.2). The KV/Reader/Writer shape is grounded on the teacher's
// crypto/database package; the two concrete adapters here are an
// in-memory map (tests, and the local Connection façade) and a
// cockroachdb/pebble-backed store (a production broker).
package store

import (
	"github.com/lofire/broker/crypto"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/wire"
)

// Reader reads raw, already-validated block bytes by id.
type Reader interface {
	Has(id ids.BlockId) (bool, error)
	Get(id ids.BlockId) ([]byte, error)
}

// Writer writes or removes raw block bytes by id.
type Writer interface {
	Put(id ids.BlockId, data []byte) error
	Del(id ids.BlockId) error
}

// KV is the minimal contract BlockStore is built on: put/get/has/del over
// opaque byte values keyed by BlockId (spec.md §1, §4.2).
type KV interface {
	Reader
	Writer
	Close() error
}

// BlockStore wraps a KV with the block-level semantics the broker engine
// relies on: id validation on write, a size cap, and decode-on-read.
type BlockStore struct {
	kv           KV
	maxValueSize int
}

// DefaultMaxValueSize caps a single stored block (spec.md §6 recommends
// refusing frames above 16 MiB; blocks are smaller still since a frame
// also carries request framing).
const DefaultMaxValueSize = 8 << 20

// New wraps kv with the default max value size.
func New(kv KV) *BlockStore {
	return &BlockStore{kv: kv, maxValueSize: DefaultMaxValueSize}
}

// NewWithLimit wraps kv with a caller-chosen max value size.
func NewWithLimit(kv KV, maxValueSize int) *BlockStore {
	return &BlockStore{kv: kv, maxValueSize: maxValueSize}
}

// Put validates block.Id() against the canonical encoding, rejects it if
// oversized, and stores it. A put of an id already present is a no-op
// success (spec.md §3).
func (s *BlockStore) Put(block *wire.Block) (ids.BlockId, error) {
	data := block.Encode()
	if len(data) > s.maxValueSize {
		return ids.BlockId{}, errs.New(errs.InvalidBlock)
	}
	id := crypto.Hash(data)
	has, err := s.kv.Has(id)
	if err != nil {
		return ids.BlockId{}, errs.Wrap(errs.StorageError, err)
	}
	if has {
		return id, nil
	}
	if err := s.kv.Put(id, data); err != nil {
		return ids.BlockId{}, errs.Wrap(errs.StorageError, err)
	}
	return id, nil
}

// Get fetches and decodes the block stored under id.
func (s *BlockStore) Get(id ids.BlockId) (*wire.Block, error) {
	data, err := s.kv.Get(id)
	if err != nil {
		if _, ok := err.(*errs.Error); ok {
			return nil, err
		}
		return nil, errs.Wrap(errs.StorageError, err)
	}
	block, err := wire.DecodeBlock(data)
	if err != nil {
		return nil, err
	}
	return block, nil
}

// Has reports whether id is stored.
func (s *BlockStore) Has(id ids.BlockId) (bool, error) {
	ok, err := s.kv.Has(id)
	if err != nil {
		return false, errs.Wrap(errs.StorageError, err)
	}
	return ok, nil
}

// Del removes the block stored under id.
func (s *BlockStore) Del(id ids.BlockId) error {
	if err := s.kv.Del(id); err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	return nil
}

// Close releases the underlying KV.
func (s *BlockStore) Close() error { return s.kv.Close() }
