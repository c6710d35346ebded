package store

import (
	"github.com/cockroachdb/pebble"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
)

// PebbleKV backs a BlockStore with a cockroachdb/pebble LSM tree, for a
// broker that must survive a restart.
type PebbleKV struct {
	db *pebble.DB
}

// OpenPebbleKV opens (creating if absent) a pebble database at dir.
func OpenPebbleKV(dir string) (*PebbleKV, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errs.Wrap(errs.StorageError, err)
	}
	return &PebbleKV{db: db}, nil
}

func (p *PebbleKV) Has(id ids.BlockId) (bool, error) {
	_, closer, err := p.db.Get(id[:])
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.StorageError, err)
	}
	closer.Close()
	return true, nil
}

func (p *PebbleKV) Get(id ids.BlockId) ([]byte, error) {
	v, closer, err := p.db.Get(id[:])
	if err == pebble.ErrNotFound {
		return nil, errs.New(errs.NotFound)
	}
	if err != nil {
		return nil, errs.Wrap(errs.StorageError, err)
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (p *PebbleKV) Put(id ids.BlockId, data []byte) error {
	if err := p.db.Set(id[:], data, pebble.Sync); err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	return nil
}

func (p *PebbleKV) Del(id ids.BlockId) error {
	if err := p.db.Delete(id[:], pebble.Sync); err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	return nil
}

func (p *PebbleKV) Close() error {
	if err := p.db.Close(); err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	return nil
}
