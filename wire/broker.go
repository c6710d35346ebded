package wire

import (
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
)

// BrokerRequestTag distinguishes the account-administration requests
// that are not scoped to any overlay (spec.md §4.4.1).
type BrokerRequestTag uint8

const (
	TagAddUser BrokerRequestTag = iota
	TagDelUser
	TagAddClient
	TagDelClient
)

// AddUserContent, DelUserContent, AddClientContent, DelClientContent are
// the signed payloads of the four admin requests. AddClient/DelClient
// name the acting user so the broker can check the right authority.
type AddUserContent struct{ User ids.UserId }
type DelUserContent struct{ User ids.UserId }
type AddClientContent struct {
	User   ids.UserId
	Client ids.ClientId
}
type DelClientContent struct {
	User   ids.UserId
	Client ids.ClientId
}

func (c AddUserContent) Encode() []byte    { return encodeUserOp(TagAddUser, c.User, nil) }
func (c DelUserContent) Encode() []byte    { return encodeUserOp(TagDelUser, c.User, nil) }
func (c AddClientContent) Encode() []byte  { return encodeUserOp(TagAddClient, c.User, &c.Client) }
func (c DelClientContent) Encode() []byte  { return encodeUserOp(TagDelClient, c.User, &c.Client) }

func encodeUserOp(tag BrokerRequestTag, user ids.UserId, client *ids.ClientId) []byte {
	w := NewWriter(66)
	w.U8(uint8(tag))
	w.Raw(user[:])
	if client != nil {
		w.Raw(client[:])
	}
	return w.Bytes()
}

// BrokerRequestContent is the signed body of a BrokerRequestV0.
type BrokerRequestContent struct {
	Tag    BrokerRequestTag
	User   ids.UserId
	Client ids.ClientId // only meaningful for AddClient/DelClient
}

// SignedContent returns the canonical bytes the request's signature covers.
func (c BrokerRequestContent) SignedContent() []byte {
	switch c.Tag {
	case TagAddUser:
		return AddUserContent{User: c.User}.Encode()
	case TagDelUser:
		return DelUserContent{User: c.User}.Encode()
	case TagAddClient:
		return AddClientContent{User: c.User, Client: c.Client}.Encode()
	default:
		return DelClientContent{User: c.User, Client: c.Client}.Encode()
	}
}

func (c BrokerRequestContent) encode(w *Writer) {
	w.U8(uint8(c.Tag))
	w.Raw(c.User[:])
	if c.Tag == TagAddClient || c.Tag == TagDelClient {
		w.Raw(c.Client[:])
	}
}

func decodeBrokerRequestContent(r *Reader) (BrokerRequestContent, error) {
	var c BrokerRequestContent
	tag, err := r.U8()
	if err != nil {
		return c, err
	}
	c.Tag = BrokerRequestTag(tag)
	if c.Tag > TagDelClient {
		return c, errs.New(errs.InvalidMessage)
	}
	userRaw, err := r.Raw(32)
	if err != nil {
		return c, err
	}
	copy(c.User[:], userRaw)
	if c.Tag == TagAddClient || c.Tag == TagDelClient {
		clientRaw, err := r.Raw(32)
		if err != nil {
			return c, err
		}
		copy(c.Client[:], clientRaw)
	}
	return c, nil
}

// BrokerRequestV0 carries an account-administration request.
type BrokerRequestV0 struct {
	Id      uint64
	Content BrokerRequestContent
	Sig     ids.Sig
}

// BrokerResponseV0 answers a BrokerRequestV0.
type BrokerResponseV0 struct {
	Id     uint64
	Result errs.Code
}

// BrokerOverlayRequestV0 carries an overlay-scoped request.
type BrokerOverlayRequestV0 struct {
	Id      uint64
	Content OverlayRequestContent
}

// BrokerOverlayResponseV0 answers a BrokerOverlayRequestV0. Block is set
// only for the BlockGet/BranchSyncReq streamed responses (spec.md §4.4.2);
// for every other response it is nil.
type BrokerOverlayResponseV0 struct {
	Id     uint64
	Result errs.Code
	Block  *Block
}

// brokerOverlayMessageTag distinguishes the three things that can ride
// inside a BrokerOverlayMessageV0 on one overlay-scoped connection.
type brokerOverlayMessageTag uint8

const (
	tagBOMRequest brokerOverlayMessageTag = iota
	tagBOMResponse
	tagBOMEvent
)

// BrokerOverlayMessageV0 wraps an overlay request, response, or pub/sub
// event with the OverlayId it belongs to.
type BrokerOverlayMessageV0 struct {
	Overlay  ids.OverlayId
	Request  *BrokerOverlayRequestV0
	Response *BrokerOverlayResponseV0
	Event    *Event
}

// IsRequest, IsResponse, IsEvent, and Id give the client multiplexer and
// broker engine a uniform way to dispatch by id without a type switch at
// every call site (spec.md §4.5).
func (m BrokerOverlayMessageV0) IsRequest() bool  { return m.Request != nil }
func (m BrokerOverlayMessageV0) IsResponse() bool { return m.Response != nil }
func (m BrokerOverlayMessageV0) IsEvent() bool    { return m.Event != nil }

func (m BrokerOverlayMessageV0) Id() uint64 {
	switch {
	case m.Request != nil:
		return m.Request.Id
	case m.Response != nil:
		return m.Response.Id
	default:
		return 0
	}
}

func (m BrokerOverlayMessageV0) encode(w *Writer) {
	w.Raw(m.Overlay[:])
	switch {
	case m.Request != nil:
		w.U8(uint8(tagBOMRequest))
		w.U64(m.Request.Id)
		content := encodeOverlayRequestContent(m.Request.Content)
		w.Data(content)
	case m.Response != nil:
		w.U8(uint8(tagBOMResponse))
		w.U64(m.Response.Id)
		w.U16(uint16(m.Response.Result))
		w.Bool(m.Response.Block != nil)
		if m.Response.Block != nil {
			w.Data(m.Response.Block.Encode())
		}
	default:
		w.U8(uint8(tagBOMEvent))
		w.Data(EncodeEvent(*m.Event))
	}
}

func decodeBrokerOverlayMessage(r *Reader) (BrokerOverlayMessageV0, error) {
	var m BrokerOverlayMessageV0
	ovRaw, err := r.Raw(32)
	if err != nil {
		return m, err
	}
	copy(m.Overlay[:], ovRaw)
	tag, err := r.U8()
	if err != nil {
		return m, err
	}
	switch brokerOverlayMessageTag(tag) {
	case tagBOMRequest:
		id, err := r.U64()
		if err != nil {
			return m, err
		}
		data, err := r.Data()
		if err != nil {
			return m, err
		}
		cr := NewReader(data)
		content, err := DecodeOverlayRequestContent(cr)
		if err != nil {
			return m, err
		}
		if !cr.Done() {
			return m, errs.New(errs.InvalidMessage)
		}
		m.Request = &BrokerOverlayRequestV0{Id: id, Content: content}
	case tagBOMResponse:
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
		m.Response = &BrokerOverlayResponseV0{Id: id, Result: errs.Code(resultRaw), Block: block}
	case tagBOMEvent:
		data, err := r.Data()
		if err != nil {
			return m, err
		}
		ev, err := DecodeEvent(data)
		if err != nil {
			return m, err
		}
		m.Event = &ev
	default:
		return m, errs.New(errs.InvalidMessage)
	}
	return m, nil
}

// brokerMessageTag distinguishes the top-level contents of a BrokerMessageV0.
type brokerMessageTag uint8

const (
	tagBMRequest brokerMessageTag = iota
	tagBMResponse
	tagBMOverlay
)

// BrokerMessageV0 is the single on-the-wire unit between a client and a
// broker: exactly one of Request/Response/Overlay is set, plus an opaque
// Padding field receivers must ignore (spec.md §4.1).
type BrokerMessageV0 struct {
	Request  *BrokerRequestV0
	Response *BrokerResponseV0
	Overlay  *BrokerOverlayMessageV0
	Padding  []byte
}

// IsRequest, IsResponse, Id report uniformly across the three payload kinds.
func (m BrokerMessageV0) IsRequest() bool {
	return m.Request != nil || (m.Overlay != nil && m.Overlay.IsRequest())
}

func (m BrokerMessageV0) IsResponse() bool {
	return m.Response != nil || (m.Overlay != nil && m.Overlay.IsResponse())
}

func (m BrokerMessageV0) IsOverlay() bool { return m.Overlay != nil }

func (m BrokerMessageV0) Id() uint64 {
	switch {
	case m.Request != nil:
		return m.Request.Id
	case m.Response != nil:
		return m.Response.Id
	case m.Overlay != nil:
		return m.Overlay.Id()
	default:
		return 0
	}
}

// Result returns the response's result code; only meaningful when
// IsResponse() is true.
func (m BrokerMessageV0) Result() errs.Code {
	switch {
	case m.Response != nil:
		return m.Response.Result
	case m.Overlay != nil && m.Overlay.Response != nil:
		return m.Overlay.Response.Result
	default:
		return errs.OK
	}
}

// ResponseBlock returns the streamed block of an overlay response, if any.
func (m BrokerMessageV0) ResponseBlock() *Block {
	if m.Overlay != nil && m.Overlay.Response != nil {
		return m.Overlay.Response.Block
	}
	return nil
}

// EncodeBrokerMessage returns the canonical byte encoding of m, ready to
// be length-prefixed by the transport.
func EncodeBrokerMessage(m BrokerMessageV0) []byte {
	w := NewWriter(256)
	switch {
	case m.Request != nil:
		w.U8(uint8(tagBMRequest))
		w.U64(m.Request.Id)
		content := m.Request.Content
		cw := NewWriter(64)
		content.encode(cw)
		w.Data(cw.Bytes())
		w.Raw(m.Request.Sig[:])
	case m.Response != nil:
		w.U8(uint8(tagBMResponse))
		w.U64(m.Response.Id)
		w.U16(uint16(m.Response.Result))
	default:
		w.U8(uint8(tagBMOverlay))
		m.Overlay.encode(w)
	}
	w.Data(m.Padding)
	return w.Bytes()
}

// DecodeBrokerMessage decodes a length-delimited frame's payload,
// rejecting unknown tags and trailing bytes (spec.md §4.1).
func DecodeBrokerMessage(data []byte) (BrokerMessageV0, error) {
	r := NewReader(data)
	var m BrokerMessageV0
	tag, err := r.U8()
	if err != nil {
		return m, err
	}
	switch brokerMessageTag(tag) {
	case tagBMRequest:
		id, err := r.U64()
		if err != nil {
			return m, err
		}
		contentData, err := r.Data()
		if err != nil {
			return m, err
		}
		cr := NewReader(contentData)
		content, err := decodeBrokerRequestContent(cr)
		if err != nil {
			return m, err
		}
		if !cr.Done() {
			return m, errs.New(errs.InvalidMessage)
		}
		sigRaw, err := r.Raw(64)
		if err != nil {
			return m, err
		}
		var sig ids.Sig
		copy(sig[:], sigRaw)
		m.Request = &BrokerRequestV0{Id: id, Content: content, Sig: sig}
	case tagBMResponse:
		id, err := r.U64()
		if err != nil {
			return m, err
		}
		resultRaw, err := r.U16()
		if err != nil {
			return m, err
		}
		m.Response = &BrokerResponseV0{Id: id, Result: errs.Code(resultRaw)}
	case tagBMOverlay:
		overlay, err := decodeBrokerOverlayMessage(r)
		if err != nil {
			return m, err
		}
		m.Overlay = &overlay
	default:
		return m, errs.New(errs.InvalidMessage)
	}
	padding, err := r.Data()
	if err != nil {
		return m, err
	}
	m.Padding = padding
	if !r.Done() {
		return m, errs.New(errs.InvalidMessage)
	}
	return m, nil
}
