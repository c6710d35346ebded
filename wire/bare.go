// Package wire implements the BARE-style binary codec for every message
// that crosses a LoFiRe connection: the low-level primitives in this file
// (unsigned varints, length-prefixed bytes, fixed arrays) and the
// message types built on top of them (block.go, broker.go, handshake.go,
// overlay_request.go, advert.go).
//
// Encoding is canonical: field order is fixed by the struct layout below,
// there are no optional trailing fields, and Decode returns InvalidMessage
// on any unknown tag, truncated input, or trailing byte.
package wire

import (
	"encoding/binary"

	"github.com/lofire/broker/errs"
)

// Writer accumulates a canonical BARE encoding.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer with cap pre-reserved.
func NewWriter(cap int) *Writer {
	return &Writer{buf: make([]byte, 0, cap)}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf }

// U8 writes a single byte.
func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

// Bool writes a boolean as one byte.
func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

// U16 writes a little-endian uint16.
func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// U32 writes a little-endian uint32.
func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// U64 writes a little-endian uint64.
func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Uvarint writes v as a BARE-style unsigned LEB128 varint, used for
// lengths (of byte strings and sequences).
func (w *Writer) Uvarint(v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	w.buf = append(w.buf, b[:n]...)
}

// Raw appends b verbatim (a fixed-size array field, length known from type).
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Data writes a length-prefixed byte string.
func (w *Writer) Data(b []byte) {
	w.Uvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// Str writes a length-prefixed UTF-8 string.
func (w *Writer) Str(s string) { w.Data([]byte(s)) }

// Reader consumes a canonical BARE encoding.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for decoding.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Done reports whether every byte has been consumed; callers MUST check
// this after decoding a top-level message to reject trailing bytes.
func (r *Reader) Done() bool { return r.pos == len(r.buf) }

func (r *Reader) errShort() error {
	return errs.New(errs.InvalidMessage)
}

// U8 reads a single byte.
func (r *Reader) U8() (uint8, error) {
	if r.pos+1 > len(r.buf) {
		return 0, r.errShort()
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// Bool reads a one-byte boolean, rejecting values other than 0/1.
func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errs.New(errs.InvalidMessage)
	}
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, r.errShort()
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, r.errShort()
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, r.errShort()
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// Uvarint reads an unsigned LEB128 varint.
func (r *Reader) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, r.errShort()
	}
	r.pos += n
	return v, nil
}

// Raw reads exactly n bytes verbatim (a fixed-size array field).
func (r *Reader) Raw(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, r.errShort()
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// maxDataLen bounds any single length-prefixed field decoded off the
// wire, independent of any store-level block-size cap, so that a
// corrupt or hostile length prefix cannot trigger an oversized alloc.
const maxDataLen = 64 << 20 // 64 MiB

// Data reads a length-prefixed byte string.
func (r *Reader) Data() ([]byte, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if n > maxDataLen {
		return nil, errs.New(errs.InvalidMessage)
	}
	return r.Raw(int(n))
}

// Str reads a length-prefixed UTF-8 string.
func (r *Reader) Str() (string, error) {
	b, err := r.Data()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
