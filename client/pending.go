// Package client implements the client multiplexer (spec.md §4.5) and
// the connection façade (spec.md §4.6): a uniform surface over either a
// direct in-process broker or a remote multiplexed link.
package client

import (
	"sync"
	"sync/atomic"

	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/wire"
)

// unarySlot is a single-shot delivery point for one unary call.
type unarySlot struct {
	ch chan *wire.BrokerMessageV0
}

// streamState is the streaming-call state machine of spec.md §4.5.2.
type streamState int

const (
	streamInit streamState = iota
	streamOpen
	streamClosed
)

// streamSlot is the pending-table entry for one in-flight streaming call.
type streamSlot struct {
	headerSignal chan errs.Code // single-shot, carries the first response's result
	blocks       chan *wire.Block
	mu           sync.Mutex
	state        streamState
	headerSent   bool
	termResult   errs.Code
}

// pendingTable is the client multiplexer's map<u64, pending>, guarded by
// a single rw-lock: the reader task takes the read lock to dispatch, the
// issuing call takes the write lock to insert/remove (spec.md §3, §4.5).
type pendingTable struct {
	mu      sync.RWMutex
	unary   map[uint64]*unarySlot
	streams map[uint64]*streamSlot
	nextId  uint64
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		unary:   make(map[uint64]*unarySlot),
		streams: make(map[uint64]*streamSlot),
	}
}

// allocId draws a fresh id, unique over the connection's lifetime.
func (t *pendingTable) allocId() uint64 {
	return atomic.AddUint64(&t.nextId, 1)
}

func (t *pendingTable) insertUnary(id uint64) *unarySlot {
	slot := &unarySlot{ch: make(chan *wire.BrokerMessageV0, 1)}
	t.mu.Lock()
	t.unary[id] = slot
	t.mu.Unlock()
	return slot
}

func (t *pendingTable) removeUnary(id uint64) {
	t.mu.Lock()
	delete(t.unary, id)
	t.mu.Unlock()
}

func (t *pendingTable) insertStream(id uint64) *streamSlot {
	slot := &streamSlot{
		headerSignal: make(chan errs.Code, 1),
		blocks:       make(chan *wire.Block, 64),
	}
	t.mu.Lock()
	t.streams[id] = slot
	t.mu.Unlock()
	return slot
}

func (t *pendingTable) removeStream(id uint64) {
	t.mu.Lock()
	delete(t.streams, id)
	t.mu.Unlock()
}

// unaryCount and streamCount report the pending table's current depth,
// for the client multiplexer's gauge metrics.
func (t *pendingTable) unaryCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.unary)
}

func (t *pendingTable) streamCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.streams)
}

// dispatch routes one incoming message to its pending slot, per the
// reader-task algorithm of spec.md §4.5: deliver to a unary slot, route
// to a stream slot's state machine, or silently ignore an id that
// belongs to neither (the request was cancelled).
func (t *pendingTable) dispatch(msg *wire.BrokerMessageV0) {
	id := msg.Id()

	t.mu.RLock()
	unarySlot, isUnary := t.unary[id]
	strSlot, isStream := t.streams[id]
	t.mu.RUnlock()

	switch {
	case isUnary:
		select {
		case unarySlot.ch <- msg:
		default:
			// A second response for an already-resolved unary slot is a
			// protocol violation (spec.md §4.5.1); the one-slot buffer
			// still holds the first response, so the duplicate is dropped.
		}
	case isStream:
		deliverStream(strSlot, msg)
	default:
		// Ignored: the request was cancelled, or this is a duplicate
		// response arriving after the slot was already removed.
	}
}

func deliverStream(s *streamSlot, msg *wire.BrokerMessageV0) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := msg.Result()
	block := msg.ResponseBlock()

	if !s.headerSent {
		s.headerSent = true
		if result == errs.OK {
			s.state = streamOpen
		} else {
			s.state = streamClosed
		}
		s.headerSignal <- result
		if s.state == streamOpen && block != nil {
			s.blocks <- block
		}
		if s.state == streamClosed {
			close(s.blocks)
		}
		return
	}

	if s.state != streamOpen {
		return
	}
	switch {
	case block != nil:
		s.blocks <- block
	case result == errs.EndOfStream || result == errs.OK:
		s.state = streamClosed
		s.termResult = errs.OK
		close(s.blocks)
	default:
		s.state = streamClosed
		s.termResult = result
		close(s.blocks)
	}
}

// closeAll aborts every pending call with ConnectionLost, the link-loss
// transition of spec.md §4.5.2's state machine and §5's cancellation
// policy.
func (t *pendingTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, slot := range t.unary {
		select {
		case slot.ch <- nil:
		default:
		}
		delete(t.unary, id)
	}
	for id, slot := range t.streams {
		slot.mu.Lock()
		if !slot.headerSent {
			slot.headerSent = true
			slot.headerSignal <- errs.ConnectionLost
			close(slot.blocks)
		} else if slot.state == streamOpen {
			slot.state = streamClosed
			slot.termResult = errs.ConnectionLost
			close(slot.blocks)
		}
		slot.mu.Unlock()
		delete(t.streams, id)
	}
}
