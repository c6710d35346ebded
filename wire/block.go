package wire

import (
	"github.com/lofire/broker/crypto"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
)

// Block is the smallest content-addressed, encrypted storage unit
// (spec.md §3). Key is only populated at object boundaries (the root
// block of an Object carries the key needed to decrypt the tree).
type Block struct {
	Children []ids.BlockId
	Dep      *ids.BlockId // dependency descriptor, e.g. a commit's branch ref
	Expiry   *uint64      // minutes since epoch, as used throughout the protocol
	Payload  []byte
	Key      *ids.SymKey
}

// Id returns BLAKE3(canonical(block)), the block's content address.
func (b *Block) Id() ids.BlockId {
	return crypto.Hash(b.Encode())
}

// Encode returns the canonical byte encoding of b.
func (b *Block) Encode() []byte {
	w := NewWriter(64 + len(b.Payload) + 32*len(b.Children))
	w.Uvarint(uint64(len(b.Children)))
	for _, c := range b.Children {
		w.Raw(c[:])
	}
	writeOptDigest(w, b.Dep)
	writeOptU64(w, b.Expiry)
	w.Data(b.Payload)
	writeOptSymKey(w, b.Key)
	return w.Bytes()
}

// DecodeBlock decodes a Block, rejecting trailing bytes.
func DecodeBlock(data []byte) (*Block, error) {
	r := NewReader(data)
	b, err := decodeBlock(r)
	if err != nil {
		return nil, err
	}
	if !r.Done() {
		return nil, errs.New(errs.InvalidMessage)
	}
	return b, nil
}

func decodeBlock(r *Reader) (*Block, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if n > maxDataLen {
		return nil, errs.New(errs.InvalidMessage)
	}
	children := make([]ids.BlockId, n)
	for i := range children {
		raw, err := r.Raw(32)
		if err != nil {
			return nil, err
		}
		copy(children[i][:], raw)
	}
	dep, err := readOptDigest(r)
	if err != nil {
		return nil, err
	}
	expiry, err := readOptU64(r)
	if err != nil {
		return nil, err
	}
	payload, err := r.Data()
	if err != nil {
		return nil, err
	}
	key, err := readOptSymKey(r)
	if err != nil {
		return nil, err
	}
	return &Block{Children: children, Dep: dep, Expiry: expiry, Payload: payload, Key: key}, nil
}

// --- shared optional-field helpers, reused by the message types in
// the other files of this package. An optional field is a one-byte presence tag followed by
// the value if present, which is BARE's standard encoding of an
// optional type. ---

func writeOptDigest(w *Writer, d *ids.Digest) {
	if d == nil {
		w.Bool(false)
		return
	}
	w.Bool(true)
	w.Raw(d[:])
}

func readOptDigest(r *Reader) (*ids.Digest, error) {
	present, err := r.Bool()
	if err != nil || !present {
		return nil, err
	}
	raw, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	var d ids.Digest
	copy(d[:], raw)
	return &d, nil
}

func writeOptU64(w *Writer, v *uint64) {
	if v == nil {
		w.Bool(false)
		return
	}
	w.Bool(true)
	w.U64(*v)
}

func readOptU64(r *Reader) (*uint64, error) {
	present, err := r.Bool()
	if err != nil || !present {
		return nil, err
	}
	v, err := r.U64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func writeOptSymKey(w *Writer, k *ids.SymKey) {
	if k == nil {
		w.Bool(false)
		return
	}
	w.Bool(true)
	w.Raw(k[:])
}

func readOptSymKey(r *Reader) (*ids.SymKey, error) {
	present, err := r.Bool()
	if err != nil || !present {
		return nil, err
	}
	raw, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	var k ids.SymKey
	copy(k[:], raw)
	return &k, nil
}

func writeOptPubKey(w *Writer, k *ids.PubKey) {
	if k == nil {
		w.Bool(false)
		return
	}
	w.Bool(true)
	w.Raw(k[:])
}

func readOptPubKey(r *Reader) (*ids.PubKey, error) {
	present, err := r.Bool()
	if err != nil || !present {
		return nil, err
	}
	raw, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	var k ids.PubKey
	copy(k[:], raw)
	return &k, nil
}
