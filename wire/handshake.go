package wire

import (
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
)

// ClientHello opens the authentication handshake (spec.md §4.7).
type ClientHello struct{}

// ServerHello carries the server's random challenge.
type ServerHello struct{ Nonce [32]byte }

// ClientAuthContent is the canonical content a ClientAuth signature covers.
type ClientAuthContent struct {
	User   ids.UserId
	Client ids.ClientId
	Nonce  [32]byte
}

func (c ClientAuthContent) Encode() []byte {
	w := NewWriter(96)
	w.Raw(c.User[:])
	w.Raw(c.Client[:])
	w.Raw(c.Nonce[:])
	return w.Bytes()
}

func DecodeClientAuthContent(data []byte) (ClientAuthContent, error) {
	r := NewReader(data)
	var c ClientAuthContent
	userRaw, err := r.Raw(32)
	if err != nil {
		return c, err
	}
	copy(c.User[:], userRaw)
	clientRaw, err := r.Raw(32)
	if err != nil {
		return c, err
	}
	copy(c.Client[:], clientRaw)
	nonceRaw, err := r.Raw(32)
	if err != nil {
		return c, err
	}
	copy(c.Nonce[:], nonceRaw)
	if !r.Done() {
		return c, errs.New(errs.InvalidMessage)
	}
	return c, nil
}

// ClientAuth is the client's signed response to the server's nonce.
type ClientAuth struct {
	Content ClientAuthContent
	Sig     ids.Sig
}

func EncodeClientAuth(a ClientAuth) []byte {
	w := NewWriter(192)
	w.Data(a.Content.Encode())
	w.Raw(a.Sig[:])
	return w.Bytes()
}

func DecodeClientAuth(data []byte) (ClientAuth, error) {
	r := NewReader(data)
	var a ClientAuth
	contentData, err := r.Data()
	if err != nil {
		return a, err
	}
	content, err := DecodeClientAuthContent(contentData)
	if err != nil {
		return a, err
	}
	sigRaw, err := r.Raw(64)
	if err != nil {
		return a, err
	}
	var sig ids.Sig
	copy(sig[:], sigRaw)
	if !r.Done() {
		return a, errs.New(errs.InvalidMessage)
	}
	a.Content, a.Sig = content, sig
	return a, nil
}

// AuthResult ends the handshake: Result == 0 (errs.OK) means the client
// may proceed.
type AuthResult struct {
	Result   errs.Code
	Metadata []byte
}

func EncodeAuthResult(a AuthResult) []byte {
	w := NewWriter(16 + len(a.Metadata))
	w.U16(uint16(a.Result))
	w.Data(a.Metadata)
	return w.Bytes()
}

func DecodeAuthResult(data []byte) (AuthResult, error) {
	r := NewReader(data)
	var a AuthResult
	resultRaw, err := r.U16()
	if err != nil {
		return a, err
	}
	meta, err := r.Data()
	if err != nil {
		return a, err
	}
	if !r.Done() {
		return a, errs.New(errs.InvalidMessage)
	}
	a.Result, a.Metadata = errs.Code(resultRaw), meta
	return a, nil
}

// startProtocolTag distinguishes a member handshake from an external
// (non-member, MAC-authenticated) request (spec.md §4.7).
type startProtocolTag uint8

const (
	startProtocolAuth startProtocolTag = iota
	startProtocolExt
)

// extRequestTag distinguishes the variants of an ExtRequestContent
// (SPEC_FULL.md §C.7): read-only operations a non-member can invoke by
// proving knowledge of a MAC key derived from an ObjectLink.
type extRequestTag uint8

const (
	TagExtObjectGet extRequestTag = iota
	TagExtBranchHeadsReq
	TagExtBranchSyncReq
)

// ExtObjectGet requests a set of objects by id, each individually
// authorised by the caller's ObjectLink. IncludeChildren is carried on
// the wire, but Broker.HandleExt does not act on it: it returns only the
// blocks named in Ids.
type ExtObjectGet struct {
	Repo            ids.PubKey
	Ids             []ids.ObjectId
	IncludeChildren bool
	Expiry          *uint64
}

// ExtRequestContent is the payload of an ExtRequestV0.
type ExtRequestContent struct {
	Tag            extRequestTag
	ObjectGet      *ExtObjectGet
	BranchHeadsReq *BranchHeadsReq
	BranchSyncReq  *BranchSyncReq
}

func (c ExtRequestContent) encode(w *Writer) {
	w.U8(uint8(c.Tag))
	switch c.Tag {
	case TagExtObjectGet:
		g := c.ObjectGet
		w.Raw(g.Repo[:])
		w.Uvarint(uint64(len(g.Ids)))
		for _, id := range g.Ids {
			w.Raw(id[:])
		}
		w.Bool(g.IncludeChildren)
		writeOptU64(w, g.Expiry)
	case TagExtBranchHeadsReq:
		c.BranchHeadsReq.encode(w)
	case TagExtBranchSyncReq:
		c.BranchSyncReq.encode(w)
	}
}

func decodeExtRequestContent(r *Reader) (ExtRequestContent, error) {
	var c ExtRequestContent
	tag, err := r.U8()
	if err != nil {
		return c, err
	}
	c.Tag = extRequestTag(tag)
	switch c.Tag {
	case TagExtObjectGet:
		repoRaw, err := r.Raw(32)
		if err != nil {
			return c, err
		}
		var g ExtObjectGet
		copy(g.Repo[:], repoRaw)
		objIds, err := decodeDigestSlice(r)
		if err != nil {
			return c, err
		}
		g.Ids = objIds
		g.IncludeChildren, err = r.Bool()
		if err != nil {
			return c, err
		}
		g.Expiry, err = readOptU64(r)
		if err != nil {
			return c, err
		}
		c.ObjectGet = &g
	case TagExtBranchHeadsReq:
		req, err := decodeBranchHeadsReq(r)
		if err != nil {
			return c, err
		}
		v := req.(BranchHeadsReq)
		c.BranchHeadsReq = &v
	case TagExtBranchSyncReq:
		req, err := decodeBranchSyncReq(r)
		if err != nil {
			return c, err
		}
		v := req.(BranchSyncReq)
		c.BranchSyncReq = &v
	default:
		return c, errs.New(errs.InvalidMessage)
	}
	return c, nil
}

// ExtRequestV0 is a MAC-authenticated read request from a non-member
// holding an ObjectLink (spec.md §4.7, SPEC_FULL.md §C.7). Mac is the
// BLAKE3 keyed-hash of Content under a key derived from the link's
// object keys with label LabelExtRequestBlake3.
type ExtRequestV0 struct {
	Id      uint64
	Content ExtRequestContent
	Mac     ids.Digest
}

// EncodeExtRequestContent returns the canonical bytes of content alone,
// the payload an ExtRequestV0's Mac is computed over.
func EncodeExtRequestContent(content ExtRequestContent) []byte {
	w := NewWriter(64)
	content.encode(w)
	return w.Bytes()
}

func EncodeExtRequest(m ExtRequestV0) []byte {
	w := NewWriter(128)
	w.U64(m.Id)
	cw := NewWriter(64)
	m.Content.encode(cw)
	w.Data(cw.Bytes())
	w.Raw(m.Mac[:])
	return w.Bytes()
}

func DecodeExtRequest(data []byte) (ExtRequestV0, error) {
	r := NewReader(data)
	var m ExtRequestV0
	id, err := r.U64()
	if err != nil {
		return m, err
	}
	contentData, err := r.Data()
	if err != nil {
		return m, err
	}
	cr := NewReader(contentData)
	content, err := decodeExtRequestContent(cr)
	if err != nil {
		return m, err
	}
	if !cr.Done() {
		return m, errs.New(errs.InvalidMessage)
	}
	macRaw, err := r.Raw(32)
	if err != nil {
		return m, err
	}
	var mac ids.Digest
	copy(mac[:], macRaw)
	if !r.Done() {
		return m, errs.New(errs.InvalidMessage)
	}
	m.Id, m.Content, m.Mac = id, content, mac
	return m, nil
}

// ExtResponseV0 answers an ExtRequestV0; Block is set once per streamed
// block, exactly as BrokerOverlayResponseV0 (spec.md §4.4.2).
type ExtResponseV0 struct {
	Id     uint64
	Result errs.Code
	Block  *Block
}

func EncodeExtResponse(m ExtResponseV0) []byte {
	w := NewWriter(64)
	w.U64(m.Id)
	w.U16(uint16(m.Result))
	w.Bool(m.Block != nil)
	if m.Block != nil {
		w.Data(m.Block.Encode())
	}
	return w.Bytes()
}

func DecodeExtResponse(data []byte) (ExtResponseV0, error) {
	r := NewReader(data)
	var m ExtResponseV0
	id, err := r.U64()
	if err != nil {
		return m, err
	}
	resultRaw, err := r.U16()
	if err != nil {
		return m, err
	}
	hasBlock, err := r.Bool()
	if err != nil {
		return m, err
	}
	var block *Block
	if hasBlock {
		data, err := r.Data()
		if err != nil {
			return m, err
		}
		block, err = DecodeBlock(data)
		if err != nil {
			return m, err
		}
	}
	if !r.Done() {
		return m, errs.New(errs.InvalidMessage)
	}
	m.Id, m.Result, m.Block = id, errs.Code(resultRaw), block
	return m, nil
}
