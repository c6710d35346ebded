// Package transport frames a duplex byte stream into discrete messages:
// a uint32 little-endian length prefix followed by that many bytes
// (spec.md §6: "Length-delimited frames over a reliable, ordered duplex
// byte stream"). The broker and client multiplexer each own one
// FrameConn's read or write half per connection (spec.md §3 "Ownership").
package transport

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync"

	"github.com/lofire/broker/errs"
)

// MaxFrameSize is the hard cap on a single frame, per spec.md §6's
// recommendation ("implementations SHOULD refuse frames > 16 MiB").
const MaxFrameSize = 16 << 20

// FrameConn wraps a duplex stream with framed read/write. Reads and
// writes may proceed concurrently from different goroutines (the reader
// task and the writer-owning call path, spec.md §5), but concurrent
// writers must still serialise through WriteFrame's internal lock since
// only one write may be in flight on the underlying stream at a time.
type FrameConn struct {
	rw io.ReadWriteCloser
	r  *bufio.Reader

	writeMu sync.Mutex
}

// New wraps rw for framed I/O.
func New(rw io.ReadWriteCloser) *FrameConn {
	return &FrameConn{rw: rw, r: bufio.NewReaderSize(rw, 64*1024)}
}

// ReadFrame blocks until one full frame has arrived, returning its
// payload. It is intended to be called only from the connection's single
// reader task (spec.md §3).
func (c *FrameConn) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return nil, errs.Wrap(errs.ConnectionLost, err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, errs.New(errs.InvalidMessage)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, errs.Wrap(errs.ConnectionLost, err)
	}
	return buf, nil
}

// WriteFrame writes one length-prefixed frame. Safe for concurrent use.
func (c *FrameConn) WriteFrame(payload []byte) error {
	if len(payload) > MaxFrameSize {
		return errs.New(errs.InvalidMessage)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.rw.Write(lenBuf[:]); err != nil {
		return errs.Wrap(errs.WriteError, err)
	}
	if _, err := c.rw.Write(payload); err != nil {
		return errs.Wrap(errs.WriteError, err)
	}
	return nil
}

// Close closes the underlying stream.
func (c *FrameConn) Close() error {
	return c.rw.Close()
}
