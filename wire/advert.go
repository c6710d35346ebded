package wire

import (
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
)

// TopicAdvert is a signed claim that Peer publishes Topic, carried
// alongside a TopicSub so other members can find a publisher
// (SPEC_FULL.md §C.3, grounded on TopicAdvertV0 in original_source).
type TopicAdvert struct {
	Topic ids.TopicId
	Peer  ids.PeerId
	Sig   ids.Sig
}

// SignedContent returns the canonical bytes a TopicAdvert's Sig covers.
func (a TopicAdvert) SignedContent() []byte {
	w := NewWriter(64)
	w.Raw(a.Topic[:])
	w.Raw(a.Peer[:])
	return w.Bytes()
}

func (a TopicAdvert) encode(w *Writer) {
	w.Raw(a.Topic[:])
	w.Raw(a.Peer[:])
	w.Raw(a.Sig[:])
}

func decodeTopicAdvert(r *Reader) (TopicAdvert, error) {
	var a TopicAdvert
	topic, err := readTopicId(r)
	if err != nil {
		return a, err
	}
	peerRaw, err := r.Raw(32)
	if err != nil {
		return a, err
	}
	var peer ids.PeerId
	copy(peer[:], peerRaw)
	sigRaw, err := r.Raw(64)
	if err != nil {
		return a, err
	}
	var sig ids.Sig
	copy(sig[:], sigRaw)
	a.Topic, a.Peer, a.Sig = topic, peer, sig
	return a, nil
}

// PeerAdvert is a signed presence advertisement for a peer, carried in
// OverlayJoin.Peers (SPEC_FULL.md §C.2, grounded on PeerAdvertV0). It is
// the same type as ids.PeerAdvert, so a RepoLink's peers can be sent as is.
type PeerAdvert = ids.PeerAdvert

func encodePeerAdvert(w *Writer, a PeerAdvert) {
	w.Raw(a.Peer[:])
	w.Uvarint(uint64(a.Subs.K()))
	w.Data(a.Subs.Bytes())
	w.Uvarint(uint64(len(a.Addresses)))
	for _, addr := range a.Addresses {
		w.Str(addr.Host)
		w.U16(addr.Port)
		w.U8(uint8(addr.Protocol))
	}
	w.U16(a.Version)
	w.Data(a.Metadata)
	w.Raw(a.Sig[:])
	w.U8(a.TTL)
}

func decodePeerAdvert(r *Reader) (PeerAdvert, error) {
	var a PeerAdvert
	peerRaw, err := r.Raw(32)
	if err != nil {
		return a, err
	}
	copy(a.Peer[:], peerRaw)
	k, err := r.Uvarint()
	if err != nil {
		return a, err
	}
	subsBytes, err := r.Data()
	if err != nil {
		return a, err
	}
	a.Subs, err = ids.BloomFilterFromBytes(subsBytes, int(k))
	if err != nil {
		return a, err
	}
	n, err := r.Uvarint()
	if err != nil {
		return a, err
	}
	a.Addresses = make([]ids.NetAddr, n)
	for i := range a.Addresses {
		host, err := r.Str()
		if err != nil {
			return a, err
		}
		port, err := r.U16()
		if err != nil {
			return a, err
		}
		proto, err := r.U8()
		if err != nil {
			return a, err
		}
		a.Addresses[i] = ids.NetAddr{Host: host, Port: port, Protocol: ids.NetTransport(proto)}
	}
	a.Version, err = r.U16()
	if err != nil {
		return a, err
	}
	a.Metadata, err = r.Data()
	if err != nil {
		return a, err
	}
	sigRaw, err := r.Raw(64)
	if err != nil {
		return a, err
	}
	copy(a.Sig[:], sigRaw)
	a.TTL, err = r.U8()
	return a, err
}

// EncodePeerAdvert / DecodePeerAdvert expose the PeerAdvert codec to
// callers outside this package.
func EncodePeerAdvert(a PeerAdvert) []byte {
	w := NewWriter(128)
	encodePeerAdvert(w, a)
	return w.Bytes()
}

func DecodePeerAdvert(data []byte) (PeerAdvert, error) {
	r := NewReader(data)
	a, err := decodePeerAdvert(r)
	if err == nil && !r.Done() {
		return a, errs.New(errs.InvalidMessage)
	}
	return a, err
}

// SubReq/SubAck/UnsubReq/UnsubAck are the pub/sub subscription control
// messages a broker exchanges with peers it has forwarded a topic to
// (SPEC_FULL.md §C.3). The core does not perform cross-broker fan-out
// (a Non-goal) but must still encode/decode these shapes.
type SubReq struct {
	Id    uint64
	Topic ids.TopicId
}

type SubAck struct{ Id uint64 }

type UnsubReq struct{ Topic ids.TopicId }

type UnsubAck struct{ Topic ids.TopicId }

func EncodeSubReq(m SubReq) []byte {
	w := NewWriter(48)
	w.U64(m.Id)
	w.Raw(m.Topic[:])
	return w.Bytes()
}

func DecodeSubReq(data []byte) (SubReq, error) {
	r := NewReader(data)
	id, err := r.U64()
	if err != nil {
		return SubReq{}, err
	}
	topic, err := readTopicId(r)
	if err != nil {
		return SubReq{}, err
	}
	if !r.Done() {
		return SubReq{}, errs.New(errs.InvalidMessage)
	}
	return SubReq{Id: id, Topic: topic}, nil
}

// EventBody is the pub/sub event payload: a block wrapping the change
// content and, for object-creating events, the object's decryption key
// (SPEC_FULL.md §C.4, grounded on EventContentV0/ChangeV0).
type EventBody struct {
	Change *Block
	Key    *ids.SymKey
}

// EventContent is the signed, unencrypted content of a pub/sub Event.
type EventContent struct {
	Topic     ids.TopicId
	Publisher ids.Digest // BLAKE3 keyed-hash of the publisher's PeerId
	Seq       uint32
	Body      EventBody
}

// Event is a published, signed change notification on a topic.
type Event struct {
	Content EventContent
	Sig     ids.Sig
}

func (c EventContent) Encode() []byte {
	w := NewWriter(128 + len(c.Body.Change.Payload))
	w.Raw(c.Topic[:])
	w.Raw(c.Publisher[:])
	w.U32(c.Seq)
	w.Data(c.Body.Change.Encode())
	writeOptSymKey(w, c.Body.Key)
	return w.Bytes()
}

func DecodeEventContent(data []byte) (EventContent, error) {
	r := NewReader(data)
	var c EventContent
	topicRaw, err := r.Raw(32)
	if err != nil {
		return c, err
	}
	copy(c.Topic[:], topicRaw)
	pubRaw, err := r.Raw(32)
	if err != nil {
		return c, err
	}
	copy(c.Publisher[:], pubRaw)
	c.Seq, err = r.U32()
	if err != nil {
		return c, err
	}
	blockData, err := r.Data()
	if err != nil {
		return c, err
	}
	block, err := DecodeBlock(blockData)
	if err != nil {
		return c, err
	}
	key, err := readOptSymKey(r)
	if err != nil {
		return c, err
	}
	if !r.Done() {
		return c, errs.New(errs.InvalidMessage)
	}
	c.Body = EventBody{Change: block, Key: key}
	return c, nil
}

func EncodeEvent(e Event) []byte {
	w := NewWriter(192)
	w.Data(e.Content.Encode())
	w.Raw(e.Sig[:])
	return w.Bytes()
}

func DecodeEvent(data []byte) (Event, error) {
	r := NewReader(data)
	var e Event
	contentData, err := r.Data()
	if err != nil {
		return e, err
	}
	content, err := DecodeEventContent(contentData)
	if err != nil {
		return e, err
	}
	sigRaw, err := r.Raw(64)
	if err != nil {
		return e, err
	}
	if !r.Done() {
		return e, errs.New(errs.InvalidMessage)
	}
	var sig ids.Sig
	copy(sig[:], sigRaw)
	e.Content, e.Sig = content, sig
	return e, nil
}
