// Package overlay implements the per-broker, per-repository membership
// registry (spec.md §4.3): each overlay's secret, peer set, topic set,
// and metadata, stored as key/value properties the way the original
// Rust Overlay type lays them out — a fixed prefix byte, the
// BARE-encoded overlay id, and a per-property suffix byte, hashed with
// BLAKE3 into the KV key (see propertyKey).
package overlay

import (
	"sync"
	"time"

	"github.com/lofire/broker/crypto"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/store"
	"github.com/lofire/broker/wire"
)

// Key prefix/suffix bytes, matching the original implementation's
// property layout (prefix || bare_encode(id) || suffix); the KV key is
// the BLAKE3 hash of that concatenation.
const (
	keyPrefix byte = 'o'

	suffixSecret byte = 's'
	suffixPeer   byte = 'p'
	suffixTopic  byte = 't'
	suffixMeta   byte = 'm'
	suffixRepo   byte = 'r'
)

// Meta is an overlay's lifecycle bookkeeping: how many users currently
// have it open, and when it was last touched, for GC (spec.md §3).
type Meta struct {
	Users    uint32
	LastUsed uint64 // minutes since epoch
}

// record is one overlay's full in-memory state. The registry persists
// each field independently to the KV under its own suffixed key so that
// a property can be read or mutated without touching the rest.
type record struct {
	mu     sync.Mutex
	secret ids.SymKey
	repo   *ids.PubKey
	peers  map[ids.PeerId]struct{}
	topics map[ids.TopicId]struct{}
	meta   Meta
}

// Registry is the broker-wide overlay registry. It serialises mutations
// per overlay (spec.md §5: "the overlay registry serialises per-overlay
// mutations"), while reads of different overlays proceed concurrently.
type Registry struct {
	kv store.KV

	mu      sync.RWMutex
	records map[ids.OverlayId]*record
}

// NewRegistry returns a Registry backed by kv for durable property storage.
func NewRegistry(kv store.KV) *Registry {
	return &Registry{kv: kv, records: make(map[ids.OverlayId]*record)}
}

func propertyKey(id ids.OverlayId, suffix byte) ids.BlockId {
	w := wire.NewWriter(34)
	w.U8(keyPrefix)
	w.Raw(id[:])
	w.U8(suffix)
	// Property keys are hashed into a BlockId-shaped key so they share
	// the KV's fixed-width key space with block ids without colliding:
	// no block id is ever the hash of a 34-byte "o"||id||suffix tuple
	// since blocks are at least this long only by coincidence, and a
	// collision there is no worse than a hash collision anywhere else.
	return crypto.Hash(w.Bytes())
}

func (r *Registry) getOrLoad(id ids.OverlayId) (*record, bool) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if ok {
		return rec, true
	}
	return nil, false
}

// Exists reports whether an overlay has been created (its secret
// property is present), without fully loading it.
func (r *Registry) Exists(id ids.OverlayId) (bool, error) {
	if _, ok := r.getOrLoad(id); ok {
		return true, nil
	}
	return r.kv.Has(propertyKey(id, suffixSecret))
}

// Create writes all of an overlay's properties atomically (best-effort:
// on partial KV failure it rolls back the properties it already wrote),
// failing OverlayAlreadyJoined if the overlay exists (spec.md §4.3).
func (r *Registry) Create(id ids.OverlayId, secret ids.SymKey, repo *ids.PubKey) error {
	exists, err := r.Exists(id)
	if err != nil {
		return err
	}
	if exists {
		return errs.New(errs.OverlayAlreadyJoined)
	}

	rec := &record{
		secret: secret,
		repo:   repo,
		peers:  make(map[ids.PeerId]struct{}),
		topics: make(map[ids.TopicId]struct{}),
		meta:   Meta{Users: 0, LastUsed: nowMinutes()},
	}

	written := make([]ids.BlockId, 0, 4)
	rollback := func() {
		for _, k := range written {
			_ = r.kv.Del(k)
		}
	}
	put := func(suffix byte, data []byte) error {
		key := propertyKey(id, suffix)
		if err := r.kv.Put(key, data); err != nil {
			rollback()
			return errs.Wrap(errs.StorageError, err)
		}
		written = append(written, key)
		return nil
	}

	if err := put(suffixSecret, secret[:]); err != nil {
		return err
	}
	if err := put(suffixMeta, encodeMeta(rec.meta)); err != nil {
		return err
	}
	if repo != nil {
		if err := put(suffixRepo, repo[:]); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.records[id] = rec
	r.mu.Unlock()
	return nil
}

// Open returns the overlay's handle, loading it from the KV on first
// access, failing NotFound if its secret property is absent.
func (r *Registry) Open(id ids.OverlayId) (*record, error) {
	if rec, ok := r.getOrLoad(id); ok {
		return rec, nil
	}
	secretData, err := r.kv.Get(propertyKey(id, suffixSecret))
	if err != nil {
		return nil, errs.New(errs.NotFound)
	}
	var secret ids.SymKey
	copy(secret[:], secretData)

	rec := &record{secret: secret, peers: make(map[ids.PeerId]struct{}), topics: make(map[ids.TopicId]struct{})}
	if repoData, err := r.kv.Get(propertyKey(id, suffixRepo)); err == nil {
		var repo ids.PubKey
		copy(repo[:], repoData)
		rec.repo = &repo
	}
	if metaData, err := r.kv.Get(propertyKey(id, suffixMeta)); err == nil {
		rec.meta = decodeMeta(metaData)
	}
	if peerData, err := r.kv.Get(propertyKey(id, suffixPeer)); err == nil {
		rec.peers = decodePeerSet(peerData)
	}
	if topicData, err := r.kv.Get(propertyKey(id, suffixTopic)); err == nil {
		rec.topics = decodeTopicSet(topicData)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[id]; ok {
		return existing, nil
	}
	r.records[id] = rec
	return rec, nil
}

// Secret returns an open overlay's secret.
func (r *Registry) Secret(id ids.OverlayId) (ids.SymKey, error) {
	rec, err := r.Open(id)
	if err != nil {
		return ids.SymKey{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.secret, nil
}

// VerifySecret fails InvalidSecret if secret does not match the stored one.
func (r *Registry) VerifySecret(id ids.OverlayId, secret ids.SymKey) error {
	got, err := r.Secret(id)
	if err != nil {
		return err
	}
	if got != secret {
		return errs.New(errs.InvalidSecret)
	}
	return nil
}

// AddPeer, RemovePeer, HasPeer: set semantics over an overlay's peers.
func (r *Registry) AddPeer(id ids.OverlayId, peer ids.PeerId) error {
	rec, err := r.Open(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.peers[peer] = struct{}{}
	if err := r.kv.Put(propertyKey(id, suffixPeer), encodePeerSet(rec.peers)); err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	return nil
}

func (r *Registry) RemovePeer(id ids.OverlayId, peer ids.PeerId) error {
	rec, err := r.Open(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	delete(rec.peers, peer)
	if err := r.kv.Put(propertyKey(id, suffixPeer), encodePeerSet(rec.peers)); err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	return nil
}

func (r *Registry) HasPeer(id ids.OverlayId, peer ids.PeerId) (bool, error) {
	rec, err := r.Open(id)
	if err != nil {
		return false, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	_, ok := rec.peers[peer]
	return ok, nil
}

// AddTopic, RemoveTopic, HasTopic: set semantics over an overlay's topics.
func (r *Registry) AddTopic(id ids.OverlayId, topic ids.TopicId) error {
	rec, err := r.Open(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.topics[topic] = struct{}{}
	if err := r.kv.Put(propertyKey(id, suffixTopic), encodeTopicSet(rec.topics)); err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	return nil
}

func (r *Registry) RemoveTopic(id ids.OverlayId, topic ids.TopicId) error {
	rec, err := r.Open(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	delete(rec.topics, topic)
	if err := r.kv.Put(propertyKey(id, suffixTopic), encodeTopicSet(rec.topics)); err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	return nil
}

func (r *Registry) HasTopic(id ids.OverlayId, topic ids.TopicId) (bool, error) {
	rec, err := r.Open(id)
	if err != nil {
		return false, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	_, ok := rec.topics[topic]
	return ok, nil
}

// Repo returns the repository public key an overlay was created for, if any.
func (r *Registry) Repo(id ids.OverlayId) (*ids.PubKey, error) {
	rec, err := r.Open(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.repo, nil
}

// GetMeta, SetMeta: single-value get/replace of an overlay's lifecycle metadata.
func (r *Registry) GetMeta(id ids.OverlayId) (Meta, error) {
	rec, err := r.Open(id)
	if err != nil {
		return Meta{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.meta, nil
}

func (r *Registry) SetMeta(id ids.OverlayId, meta Meta) error {
	rec, err := r.Open(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.meta = meta
	if err := r.kv.Put(propertyKey(id, suffixMeta), encodeMeta(meta)); err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	return nil
}

// Join increments the user count and bumps last_used, the bookkeeping
// side of OverlayJoin/OverlayConnect succeeding (spec.md §3).
func (r *Registry) Join(id ids.OverlayId) error {
	meta, err := r.GetMeta(id)
	if err != nil {
		return err
	}
	meta.Users++
	meta.LastUsed = nowMinutes()
	return r.SetMeta(id, meta)
}

// Leave decrements the user count, floored at zero, and bumps last_used.
func (r *Registry) Leave(id ids.OverlayId) error {
	meta, err := r.GetMeta(id)
	if err != nil {
		return err
	}
	if meta.Users > 0 {
		meta.Users--
	}
	meta.LastUsed = nowMinutes()
	return r.SetMeta(id, meta)
}

// Delete removes all of an overlay's properties and its in-memory record.
func (r *Registry) Delete(id ids.OverlayId) error {
	for _, suffix := range []byte{suffixSecret, suffixPeer, suffixTopic, suffixMeta, suffixRepo} {
		_ = r.kv.Del(propertyKey(id, suffix))
	}
	r.mu.Lock()
	delete(r.records, id)
	r.mu.Unlock()
	return nil
}

// CollectGarbage deletes every overlay held in memory by this Registry
// (created or opened since it was built) with zero users whose last_used
// is older than olderThanMinutes, returning the ids it removed; overlays
// present only in the KV are not scanned (spec.md §3:
// "may be garbage-collected when user_count reaches zero and last_used
// is older than a configured threshold").
func (r *Registry) CollectGarbage(olderThanMinutes uint64) []ids.OverlayId {
	cutoff := nowMinutes() - olderThanMinutes
	r.mu.RLock()
	candidates := make([]ids.OverlayId, 0, len(r.records))
	for id, rec := range r.records {
		rec.mu.Lock()
		if rec.meta.Users == 0 && rec.meta.LastUsed < cutoff {
			candidates = append(candidates, id)
		}
		rec.mu.Unlock()
	}
	r.mu.RUnlock()

	var removed []ids.OverlayId
	for _, id := range candidates {
		if err := r.Delete(id); err == nil {
			removed = append(removed, id)
		}
	}
	return removed
}

func nowMinutes() uint64 {
	return uint64(time.Now().Unix() / 60)
}

func encodeMeta(m Meta) []byte {
	w := wire.NewWriter(16)
	w.U32(m.Users)
	w.U64(m.LastUsed)
	return w.Bytes()
}

func decodeMeta(data []byte) Meta {
	r := wire.NewReader(data)
	users, _ := r.U32()
	lastUsed, _ := r.U64()
	return Meta{Users: users, LastUsed: lastUsed}
}

// encodePeerSet/decodePeerSet, encodeTopicSet/decodeTopicSet: a uvarint
// count followed by that many fixed-size ids, the same property-blob
// shape as encodeMeta/decodeMeta above.
func encodePeerSet(peers map[ids.PeerId]struct{}) []byte {
	w := wire.NewWriter(4 + len(peers)*len(ids.PeerId{}))
	w.Uvarint(uint64(len(peers)))
	for p := range peers {
		w.Raw(p[:])
	}
	return w.Bytes()
}

func decodePeerSet(data []byte) map[ids.PeerId]struct{} {
	out := make(map[ids.PeerId]struct{})
	r := wire.NewReader(data)
	n, err := r.Uvarint()
	if err != nil {
		return out
	}
	for i := uint64(0); i < n; i++ {
		raw, err := r.Raw(len(ids.PeerId{}))
		if err != nil {
			return out
		}
		var p ids.PeerId
		copy(p[:], raw)
		out[p] = struct{}{}
	}
	return out
}

func encodeTopicSet(topics map[ids.TopicId]struct{}) []byte {
	w := wire.NewWriter(4 + len(topics)*len(ids.TopicId{}))
	w.Uvarint(uint64(len(topics)))
	for t := range topics {
		w.Raw(t[:])
	}
	return w.Bytes()
}

func decodeTopicSet(data []byte) map[ids.TopicId]struct{} {
	out := make(map[ids.TopicId]struct{})
	r := wire.NewReader(data)
	n, err := r.Uvarint()
	if err != nil {
		return out
	}
	for i := uint64(0); i < n; i++ {
		raw, err := r.Raw(len(ids.TopicId{}))
		if err != nil {
			return out
		}
		var t ids.TopicId
		copy(t[:], raw)
		out[t] = struct{}{}
	}
	return out
}
