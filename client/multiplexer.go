package client

import (
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/log"
	"github.com/lofire/broker/metrics"
	"github.com/lofire/broker/transport"
	"github.com/lofire/broker/wire"
)

// Multiplexer correlates outgoing requests with incoming responses over
// one duplex link (spec.md §4.5). Its writer half is exclusively owned
// by call sites issuing requests; its reader half is owned by a single
// background goroutine started by Run.
type Multiplexer struct {
	conn    *transport.FrameConn
	pending *pendingTable
	metrics *metrics.Client
	log     log.Logger

	done chan struct{}
}

// NewMultiplexer wraps conn. Call Run in its own goroutine before issuing
// any request.
func NewMultiplexer(conn *transport.FrameConn) *Multiplexer {
	return &Multiplexer{
		conn:    conn,
		pending: newPendingTable(),
		log:     log.NewNoOp(),
		done:    make(chan struct{}),
	}
}

// Run is the background reader task: it reads frames until the link
// closes or a protocol violation is observed, dispatching each to the
// pending table (spec.md §4.5). It returns (and closes every pending
// call with ConnectionLost) when the link ends.
func (m *Multiplexer) Run() {
	defer func() {
		m.pending.closeAll()
		close(m.done)
	}()
	for {
		frame, err := m.conn.ReadFrame()
		if err != nil {
			return
		}
		msg, err := wire.DecodeBrokerMessage(frame)
		if err != nil {
			// A malformed frame from a supposedly trusted peer is treated
			// as a protocol violation: close the link (spec.md §7).
			return
		}
		if msg.IsRequest() {
			// The client multiplexer never accepts inbound requests on a
			// connection it opened; receiving one is a protocol violation.
			return
		}
		m.pending.dispatch(&msg)
	}
}

// Done returns a channel closed once the reader task has exited.
func (m *Multiplexer) Done() <-chan struct{} { return m.done }

// CallUnary issues req and blocks until its response arrives or the link
// closes (spec.md §4.5.1).
func (m *Multiplexer) CallUnary(req wire.BrokerMessageV0) (*wire.BrokerMessageV0, error) {
	id := m.pending.allocId()
	setId(&req, id)

	slot := m.pending.insertUnary(id)
	defer func() {
		m.pending.removeUnary(id)
		m.observePending()
	}()
	m.observePending()

	if m.metrics != nil {
		m.metrics.ObserveCall(opName(req))
	}
	if err := m.conn.WriteFrame(wire.EncodeBrokerMessage(req)); err != nil {
		return nil, errs.Wrap(errs.CannotSend, err)
	}

	resp := <-slot.ch
	if resp == nil {
		return nil, errs.New(errs.ConnectionLost)
	}
	return resp, nil
}

func (m *Multiplexer) observePending() {
	if m.metrics == nil {
		return
	}
	m.metrics.SetPendingUnary(m.pending.unaryCount())
	m.metrics.SetPendingStream(m.pending.streamCount())
}

// opName labels a request for the calls_total counter by its outermost
// kind — enough to distinguish account-administration, overlay-unary,
// and overlay-streamed traffic without one label per wire variant.
func opName(req wire.BrokerMessageV0) string {
	switch {
	case req.Request != nil:
		return "broker_request"
	case req.Overlay != nil && req.Overlay.Request != nil:
		return "overlay_request"
	default:
		return "unknown"
	}
}

// CallStream issues a streaming req and returns a BlockStream once the
// header response has arrived: Ok in state OPEN, an error in state
// HEADER_FAILED (spec.md §4.5.2).
func (m *Multiplexer) CallStream(req wire.BrokerMessageV0) (*BlockStream, error) {
	id := m.pending.allocId()
	setId(&req, id)

	slot := m.pending.insertStream(id)
	m.observePending()
	if m.metrics != nil {
		m.metrics.ObserveCall(opName(req))
	}

	if err := m.conn.WriteFrame(wire.EncodeBrokerMessage(req)); err != nil {
		m.pending.removeStream(id)
		m.observePending()
		return nil, errs.Wrap(errs.CannotSend, err)
	}

	result := <-slot.headerSignal
	if result != errs.OK {
		m.pending.removeStream(id)
		m.observePending()
		return nil, errs.New(result)
	}
	return &BlockStream{slot: slot, id: id, pending: m.pending, metrics: m.metrics}, nil
}

func setId(req *wire.BrokerMessageV0, id uint64) {
	switch {
	case req.Request != nil:
		req.Request.Id = id
	case req.Overlay != nil && req.Overlay.Request != nil:
		req.Overlay.Request.Id = id
	}
}

// BlockStream is the consumer-facing handle for a streaming call's
// result: blocks are delivered lazily, in wire order, and the stream's
// terminal error (if any) is observed only after the last block
// (spec.md §4.5.2).
type BlockStream struct {
	slot    *streamSlot
	id      uint64
	pending *pendingTable
	metrics *metrics.Client
}

// Next blocks for the next block, returning (nil, nil) once the stream
// is exhausted normally, or a non-nil error if it ended abnormally.
func (s *BlockStream) Next() (*wire.Block, error) {
	b, ok := <-s.slot.blocks
	if !ok {
		s.slot.mu.Lock()
		result := s.slot.termResult
		s.slot.mu.Unlock()
		if result != errs.OK {
			return nil, errs.New(result)
		}
		return nil, nil
	}
	return b, nil
}

// Cancel detaches the consumer: the pending-table entry is removed and
// any further blocks for this id are silently discarded by the reader
// task (spec.md §4.5.2).
func (s *BlockStream) Cancel() {
	s.pending.removeStream(s.id)
	if s.metrics != nil {
		s.metrics.SetPendingStream(s.pending.streamCount())
	}
}
