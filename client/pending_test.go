package client

import (
	"testing"

	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/wire"
	"github.com/stretchr/testify/require"
)

func TestPendingTableDispatchUnary(t *testing.T) {
	table := newPendingTable()
	id := table.allocId()
	slot := table.insertUnary(id)

	table.dispatch(&wire.BrokerMessageV0{Response: &wire.BrokerResponseV0{Id: id, Result: errs.OK}})

	resp := <-slot.ch
	require.Equal(t, errs.OK, resp.Result())
}

func TestPendingTableStreamStateMachine(t *testing.T) {
	table := newPendingTable()
	id := table.allocId()
	slot := table.insertStream(id)

	block := &wire.Block{Payload: []byte("x")}
	table.dispatch(&wire.BrokerMessageV0{Overlay: &wire.BrokerOverlayMessageV0{
		Overlay:  ids.OverlayId{1},
		Response: &wire.BrokerOverlayResponseV0{Id: id, Result: errs.OK, Block: block},
	}})
	require.Equal(t, errs.OK, <-slot.headerSignal)
	require.Equal(t, streamOpen, slot.state)

	got := <-slot.blocks
	require.Equal(t, block.Payload, got.Payload)

	table.dispatch(&wire.BrokerMessageV0{Overlay: &wire.BrokerOverlayMessageV0{
		Overlay:  ids.OverlayId{1},
		Response: &wire.BrokerOverlayResponseV0{Id: id, Result: errs.EndOfStream},
	}})
	_, ok := <-slot.blocks
	require.False(t, ok)
	require.Equal(t, errs.OK, slot.termResult)
}

func TestPendingTableStreamHeaderFailure(t *testing.T) {
	table := newPendingTable()
	id := table.allocId()
	slot := table.insertStream(id)

	table.dispatch(&wire.BrokerMessageV0{Overlay: &wire.BrokerOverlayMessageV0{
		Overlay:  ids.OverlayId{1},
		Response: &wire.BrokerOverlayResponseV0{Id: id, Result: errs.NotFound},
	}})
	require.Equal(t, errs.NotFound, <-slot.headerSignal)
	require.Equal(t, streamClosed, slot.state)
	_, ok := <-slot.blocks
	require.False(t, ok)
}

func TestPendingTableCloseAllAbortsPending(t *testing.T) {
	table := newPendingTable()
	uid := table.allocId()
	uslot := table.insertUnary(uid)
	sid := table.allocId()
	sslot := table.insertStream(sid)

	table.closeAll()

	resp := <-uslot.ch
	require.Nil(t, resp)

	_, ok := <-sslot.blocks
	require.False(t, ok)
	require.Equal(t, errs.ConnectionLost, <-sslot.headerSignal)
}
