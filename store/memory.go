package store

import (
	"sync"

	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
)

// MemoryKV is an in-memory KV, used by tests and the local Connection
// façade where persistence across process restarts is not required.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[ids.BlockId][]byte
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[ids.BlockId][]byte)}
}

func (m *MemoryKV) Has(id ids.BlockId) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[id]
	return ok, nil
}

func (m *MemoryKV) Get(id ids.BlockId) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[id]
	if !ok {
		return nil, errs.New(errs.NotFound)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryKV) Put(id ids.BlockId, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[id] = cp
	return nil
}

func (m *MemoryKV) Del(id ids.BlockId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *MemoryKV) Close() error { return nil }
