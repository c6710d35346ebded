package ids

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/zeebo/blake3"
)

// BloomFilter is a fixed-size Bloom filter over Digests, used by
// BranchSyncReqV0.known_commits (spec.md §4.4.2): the requester encodes
// everything it already has, and the responder only needs to check
// membership, tolerating false positives (it just omits a block the
// requester already holds) but never false negatives.
type BloomFilter struct {
	bits *bitset.BitSet
	k    int
}

// NewBloomFilter returns an empty filter sized for m bits and k hash rounds.
func NewBloomFilter(m uint, k int) BloomFilter {
	if k < 1 {
		k = 1
	}
	return BloomFilter{bits: bitset.New(m), k: k}
}

// K returns the number of hash rounds the filter was constructed with,
// needed by a decoder to reconstruct an equivalent filter (its Test
// semantics depend on k, not just the bit vector).
func (f BloomFilter) K() int { return f.k }

// Len returns the number of bits backing the filter.
func (f BloomFilter) Len() uint {
	if f.bits == nil {
		return 0
	}
	return f.bits.Len()
}

// Add inserts id into the filter.
func (f BloomFilter) Add(id Digest) {
	if f.bits == nil || f.bits.Len() == 0 {
		return
	}
	for _, idx := range f.indices(id) {
		f.bits.Set(idx)
	}
}

// Test reports whether id may be in the filter. False positives are
// possible; false negatives are not.
func (f BloomFilter) Test(id Digest) bool {
	if f.bits == nil || f.bits.Len() == 0 {
		return false
	}
	for _, idx := range f.indices(id) {
		if !f.bits.Test(idx) {
			return false
		}
	}
	return true
}

// Bytes returns the filter's bit vector, for wire encoding.
func (f BloomFilter) Bytes() []byte {
	if f.bits == nil {
		return nil
	}
	b, _ := f.bits.MarshalBinary()
	return b
}

// BloomFilterFromBytes reconstructs a filter from an encoded bit vector.
func BloomFilterFromBytes(b []byte, k int) (BloomFilter, error) {
	bs := &bitset.BitSet{}
	if len(b) > 0 {
		if err := bs.UnmarshalBinary(b); err != nil {
			return BloomFilter{}, err
		}
	}
	if k < 1 {
		k = 1
	}
	return BloomFilter{bits: bs, k: k}, nil
}

// indices derives f.k bit positions for id via double hashing (Kirsch-
// Mitzenmacher): two BLAKE3-derived 64-bit hashes combined linearly.
func (f BloomFilter) indices(id Digest) []uint {
	h1 := blake3.Sum256(append([]byte("lofire-bloom-1"), id[:]...))
	h2 := blake3.Sum256(append([]byte("lofire-bloom-2"), id[:]...))
	a := leUint64(h1[:8])
	b := leUint64(h2[:8])
	m := f.bits.Len()
	out := make([]uint, f.k)
	for i := 0; i < f.k; i++ {
		out[i] = uint((a + uint64(i)*b) % uint64(m))
	}
	return out
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v
}
