package wire

import (
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
)

// OverlayRequestTag distinguishes the variants of OverlayRequestContent,
// the union carried inside a BrokerOverlayRequestV0 (spec.md §4.4.1,
// §4.4.2, and the pub/sub supplements of SPEC_FULL.md §C.3-C.4).
type OverlayRequestTag uint8

const (
	TagOverlayConnect OverlayRequestTag = iota
	TagOverlayJoin
	TagOverlayLeave
	TagTopicSub
	TagTopicUnsub
	TagTopicConnect
	TagTopicDisconnect
	TagBlockPut
	TagBlockGet
	TagObjectPin
	TagObjectUnpin
	TagObjectCopy
	TagObjectDel
	TagBranchHeadsReq
	TagBranchSyncReq
)

// OverlayRequestContent is the payload of a BrokerOverlayRequestV0.
type OverlayRequestContent interface {
	overlayRequestTag() OverlayRequestTag
	encode(w *Writer)
}

// OverlayConnect opens an overlay that already exists on the broker
// (spec.md §4.4.1). The broker answers OverlayNotJoined only when the
// overlay does not exist; it does not record which users joined an
// overlay, so it does not check that the authenticated user is one.
type OverlayConnect struct{}

func (OverlayConnect) overlayRequestTag() OverlayRequestTag { return TagOverlayConnect }
func (OverlayConnect) encode(w *Writer)                     {}

// OverlayJoin creates the overlay if absent, or verifies Secret and
// merges Peers if it already exists.
type OverlayJoin struct {
	Secret     ids.SymKey
	RepoPub    *ids.PubKey
	RepoSecret *ids.SymKey
	Peers      []PeerAdvert
}

func (OverlayJoin) overlayRequestTag() OverlayRequestTag { return TagOverlayJoin }
func (j OverlayJoin) encode(w *Writer) {
	w.Raw(j.Secret[:])
	writeOptPubKey(w, j.RepoPub)
	writeOptSymKey(w, j.RepoSecret)
	w.Uvarint(uint64(len(j.Peers)))
	for _, p := range j.Peers {
		encodePeerAdvert(w, p)
	}
}

// OverlayLeave decrements the overlay's user count.
type OverlayLeave struct{}

func (OverlayLeave) overlayRequestTag() OverlayRequestTag { return TagOverlayLeave }
func (OverlayLeave) encode(w *Writer)                     {}

// TopicSub subscribes the connection to a topic, optionally advertising it.
type TopicSub struct {
	Topic  ids.TopicId
	Advert *TopicAdvert
}

func (TopicSub) overlayRequestTag() OverlayRequestTag { return TagTopicSub }
func (s TopicSub) encode(w *Writer) {
	w.Raw(s.Topic[:])
	w.Bool(s.Advert != nil)
	if s.Advert != nil {
		s.Advert.encode(w)
	}
}

// TopicUnsub, TopicConnect, TopicDisconnect share the single-topic shape.
type TopicUnsub struct{ Topic ids.TopicId }

func (TopicUnsub) overlayRequestTag() OverlayRequestTag { return TagTopicUnsub }
func (t TopicUnsub) encode(w *Writer)                   { w.Raw(t.Topic[:]) }

type TopicConnect struct{ Topic ids.TopicId }

func (TopicConnect) overlayRequestTag() OverlayRequestTag { return TagTopicConnect }
func (t TopicConnect) encode(w *Writer)                   { w.Raw(t.Topic[:]) }

type TopicDisconnect struct{ Topic ids.TopicId }

func (TopicDisconnect) overlayRequestTag() OverlayRequestTag { return TagTopicDisconnect }
func (t TopicDisconnect) encode(w *Writer)                    { w.Raw(t.Topic[:]) }

// BlockPut stores a block, validating its id on arrival (spec.md §4.2).
type BlockPut struct{ Block *Block }

func (BlockPut) overlayRequestTag() OverlayRequestTag { return TagBlockPut }
func (p BlockPut) encode(w *Writer)                    { w.Data(p.Block.Encode()) }

// BlockGet requests a root block and, optionally, its transitive children
// (spec.md §4.4.2).
type BlockGet struct {
	Id              ids.BlockId
	IncludeChildren bool
	Topic           *ids.TopicId
}

func (BlockGet) overlayRequestTag() OverlayRequestTag { return TagBlockGet }
func (g BlockGet) encode(w *Writer) {
	w.Raw(g.Id[:])
	w.Bool(g.IncludeChildren)
	writeOptPubKey(w, g.Topic)
}

// ObjectPin, ObjectUnpin, ObjectCopy, ObjectDel: pin-table maintenance.
type ObjectPin struct{ Id ids.ObjectId }

func (ObjectPin) overlayRequestTag() OverlayRequestTag { return TagObjectPin }
func (p ObjectPin) encode(w *Writer)                    { w.Raw(p.Id[:]) }

type ObjectUnpin struct{ Id ids.ObjectId }

func (ObjectUnpin) overlayRequestTag() OverlayRequestTag { return TagObjectUnpin }
func (p ObjectUnpin) encode(w *Writer)                    { w.Raw(p.Id[:]) }

type ObjectCopy struct {
	Id     ids.ObjectId
	Expiry *uint64
}

func (ObjectCopy) overlayRequestTag() OverlayRequestTag { return TagObjectCopy }
func (c ObjectCopy) encode(w *Writer) {
	w.Raw(c.Id[:])
	writeOptU64(w, c.Expiry)
}

type ObjectDel struct{ Id ids.ObjectId }

func (ObjectDel) overlayRequestTag() OverlayRequestTag { return TagObjectDel }
func (d ObjectDel) encode(w *Writer)                    { w.Raw(d.Id[:]) }

// BranchHeadsReq asks for a topic's current heads relative to KnownHeads.
type BranchHeadsReq struct {
	Topic      ids.TopicId
	KnownHeads []ids.BlockId
}

func (BranchHeadsReq) overlayRequestTag() OverlayRequestTag { return TagBranchHeadsReq }
func (r BranchHeadsReq) encode(w *Writer) {
	w.Raw(r.Topic[:])
	w.Uvarint(uint64(len(r.KnownHeads)))
	for _, h := range r.KnownHeads {
		w.Raw(h[:])
	}
}

// BranchSyncReq requests the commits missing from the requester's state,
// expressed as a frontier (Heads/KnownHeads) plus a soundness-only Bloom
// filter of already-held commit ids (spec.md §4.4.2).
type BranchSyncReq struct {
	Heads        []ids.BlockId
	KnownHeads   []ids.BlockId
	KnownCommits ids.BloomFilter
}

func (BranchSyncReq) overlayRequestTag() OverlayRequestTag { return TagBranchSyncReq }
func (r BranchSyncReq) encode(w *Writer) {
	w.Uvarint(uint64(len(r.Heads)))
	for _, h := range r.Heads {
		w.Raw(h[:])
	}
	w.Uvarint(uint64(len(r.KnownHeads)))
	for _, h := range r.KnownHeads {
		w.Raw(h[:])
	}
	w.Uvarint(uint64(r.KnownCommits.K()))
	w.Data(r.KnownCommits.Bytes())
}

func encodeOverlayRequestContent(c OverlayRequestContent) []byte {
	w := NewWriter(128)
	w.U8(uint8(c.overlayRequestTag()))
	c.encode(w)
	return w.Bytes()
}

// DecodeOverlayRequestContent decodes a tagged OverlayRequestContent from r.
func DecodeOverlayRequestContent(r *Reader) (OverlayRequestContent, error) {
	tag, err := r.U8()
	if err != nil {
		return nil, err
	}
	switch OverlayRequestTag(tag) {
	case TagOverlayConnect:
		return OverlayConnect{}, nil
	case TagOverlayJoin:
		return decodeOverlayJoin(r)
	case TagOverlayLeave:
		return OverlayLeave{}, nil
	case TagTopicSub:
		return decodeTopicSub(r)
	case TagTopicUnsub:
		t, err := readTopicId(r)
		return TopicUnsub{Topic: t}, err
	case TagTopicConnect:
		t, err := readTopicId(r)
		return TopicConnect{Topic: t}, err
	case TagTopicDisconnect:
		t, err := readTopicId(r)
		return TopicDisconnect{Topic: t}, err
	case TagBlockPut:
		return decodeBlockPut(r)
	case TagBlockGet:
		return decodeBlockGet(r)
	case TagObjectPin:
		id, err := readDigest(r)
		return ObjectPin{Id: id}, err
	case TagObjectUnpin:
		id, err := readDigest(r)
		return ObjectUnpin{Id: id}, err
	case TagObjectCopy:
		return decodeObjectCopy(r)
	case TagObjectDel:
		id, err := readDigest(r)
		return ObjectDel{Id: id}, err
	case TagBranchHeadsReq:
		return decodeBranchHeadsReq(r)
	case TagBranchSyncReq:
		return decodeBranchSyncReq(r)
	default:
		return nil, errs.New(errs.InvalidMessage)
	}
}

func readTopicId(r *Reader) (ids.TopicId, error) {
	var t ids.TopicId
	raw, err := r.Raw(32)
	if err != nil {
		return t, err
	}
	copy(t[:], raw)
	return t, nil
}

func readDigest(r *Reader) (ids.Digest, error) {
	var d ids.Digest
	raw, err := r.Raw(32)
	if err != nil {
		return d, err
	}
	copy(d[:], raw)
	return d, nil
}

func decodeOverlayJoin(r *Reader) (OverlayRequestContent, error) {
	raw, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	var secret ids.SymKey
	copy(secret[:], raw)
	repoPub, err := readOptPubKey(r)
	if err != nil {
		return nil, err
	}
	repoSecret, err := readOptSymKey(r)
	if err != nil {
		return nil, err
	}
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	peers := make([]PeerAdvert, n)
	for i := range peers {
		p, err := decodePeerAdvert(r)
		if err != nil {
			return nil, err
		}
		peers[i] = p
	}
	return OverlayJoin{Secret: secret, RepoPub: repoPub, RepoSecret: repoSecret, Peers: peers}, nil
}

func decodeTopicSub(r *Reader) (OverlayRequestContent, error) {
	topic, err := readTopicId(r)
	if err != nil {
		return nil, err
	}
	present, err := r.Bool()
	if err != nil {
		return nil, err
	}
	if !present {
		return TopicSub{Topic: topic}, nil
	}
	advert, err := decodeTopicAdvert(r)
	if err != nil {
		return nil, err
	}
	return TopicSub{Topic: topic, Advert: &advert}, nil
}

func decodeBlockPut(r *Reader) (OverlayRequestContent, error) {
	data, err := r.Data()
	if err != nil {
		return nil, err
	}
	b, err := DecodeBlock(data)
	if err != nil {
		return nil, err
	}
	return BlockPut{Block: b}, nil
}

func decodeBlockGet(r *Reader) (OverlayRequestContent, error) {
	id, err := readDigest(r)
	if err != nil {
		return nil, err
	}
	inc, err := r.Bool()
	if err != nil {
		return nil, err
	}
	topic, err := readOptPubKey(r)
	if err != nil {
		return nil, err
	}
	return BlockGet{Id: id, IncludeChildren: inc, Topic: topic}, nil
}

func decodeObjectCopy(r *Reader) (OverlayRequestContent, error) {
	id, err := readDigest(r)
	if err != nil {
		return nil, err
	}
	expiry, err := readOptU64(r)
	if err != nil {
		return nil, err
	}
	return ObjectCopy{Id: id, Expiry: expiry}, nil
}

func decodeDigestSlice(r *Reader) ([]ids.Digest, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if n > maxDataLen {
		return nil, errs.New(errs.InvalidMessage)
	}
	out := make([]ids.Digest, n)
	for i := range out {
		d, err := readDigest(r)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

func decodeBranchHeadsReq(r *Reader) (OverlayRequestContent, error) {
	topic, err := readTopicId(r)
	if err != nil {
		return nil, err
	}
	known, err := decodeDigestSlice(r)
	if err != nil {
		return nil, err
	}
	return BranchHeadsReq{Topic: topic, KnownHeads: known}, nil
}

func decodeBranchSyncReq(r *Reader) (OverlayRequestContent, error) {
	heads, err := decodeDigestSlice(r)
	if err != nil {
		return nil, err
	}
	knownHeads, err := decodeDigestSlice(r)
	if err != nil {
		return nil, err
	}
	k, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	filterBytes, err := r.Data()
	if err != nil {
		return nil, err
	}
	filter, err := ids.BloomFilterFromBytes(filterBytes, int(k))
	if err != nil {
		return nil, errs.New(errs.InvalidMessage)
	}
	return BranchSyncReq{Heads: heads, KnownHeads: knownHeads, KnownCommits: filter}, nil
}
