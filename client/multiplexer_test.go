package client_test

import (
	"net"
	"testing"

	"github.com/lofire/broker/client"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/transport"
	"github.com/lofire/broker/wire"
	"github.com/stretchr/testify/require"
)

// fakePeer answers whatever the multiplexer sends it, playing the role of
// a broker without any broker package involved — it only exercises the
// multiplexer's request/response correlation.
func fakePeer(t *testing.T, conn *transport.FrameConn, answer func(req wire.BrokerMessageV0) []wire.BrokerMessageV0) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}
		req, err := wire.DecodeBrokerMessage(frame)
		require.NoError(t, err)
		for _, resp := range answer(req) {
			if err := conn.WriteFrame(wire.EncodeBrokerMessage(resp)); err != nil {
				return
			}
		}
	}
}

func TestMultiplexerCallUnaryRoundTrip(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	serverConn := transport.New(serverSide)
	go fakePeer(t, serverConn, func(req wire.BrokerMessageV0) []wire.BrokerMessageV0 {
		return []wire.BrokerMessageV0{{Response: &wire.BrokerResponseV0{Id: req.Id(), Result: errs.OK}}}
	})

	mux := client.NewMultiplexer(transport.New(clientSide))
	go mux.Run()

	resp, err := mux.CallUnary(wire.BrokerMessageV0{Request: &wire.BrokerRequestV0{
		Content: wire.BrokerRequestContent{Tag: wire.TagAddUser, User: ids.UserId{1}},
	}})
	require.NoError(t, err)
	require.Equal(t, errs.OK, resp.Result())
}

func TestMultiplexerCallStreamDeliversBlocksThenEndOfStream(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	serverConn := transport.New(serverSide)
	go fakePeer(t, serverConn, func(req wire.BrokerMessageV0) []wire.BrokerMessageV0 {
		id := req.Id()
		overlayId := req.Overlay.Overlay
		block := &wire.Block{Payload: []byte("streamed")}
		return []wire.BrokerMessageV0{
			{Overlay: &wire.BrokerOverlayMessageV0{Overlay: overlayId, Response: &wire.BrokerOverlayResponseV0{Id: id, Result: errs.OK, Block: block}}},
			{Overlay: &wire.BrokerOverlayMessageV0{Overlay: overlayId, Response: &wire.BrokerOverlayResponseV0{Id: id, Result: errs.EndOfStream}}},
		}
	})

	mux := client.NewMultiplexer(transport.New(clientSide))
	go mux.Run()

	stream, err := mux.CallStream(wire.BrokerMessageV0{Overlay: &wire.BrokerOverlayMessageV0{
		Overlay: ids.OverlayId{7},
		Request: &wire.BrokerOverlayRequestV0{Content: wire.BlockGet{Id: ids.BlockId{1}}},
	}})
	require.NoError(t, err)

	b, err := stream.Next()
	require.NoError(t, err)
	require.Equal(t, []byte("streamed"), b.Payload)

	b, err = stream.Next()
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestMultiplexerCallStreamHeaderFailure(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	serverConn := transport.New(serverSide)
	go fakePeer(t, serverConn, func(req wire.BrokerMessageV0) []wire.BrokerMessageV0 {
		return []wire.BrokerMessageV0{
			{Overlay: &wire.BrokerOverlayMessageV0{Overlay: req.Overlay.Overlay, Response: &wire.BrokerOverlayResponseV0{Id: req.Id(), Result: errs.NotFound}}},
		}
	})

	mux := client.NewMultiplexer(transport.New(clientSide))
	go mux.Run()

	_, err := mux.CallStream(wire.BrokerMessageV0{Overlay: &wire.BrokerOverlayMessageV0{
		Overlay: ids.OverlayId{7},
		Request: &wire.BrokerOverlayRequestV0{Content: wire.BlockGet{Id: ids.BlockId{1}}},
	}})
	require.Equal(t, errs.NotFound, errs.CodeOf(err))
}

func TestMultiplexerClosesConnectionLostOnLinkDrop(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	serverConn := transport.New(serverSide)
	go func() {
		// Read the one in-flight request, then drop the link without
		// ever answering it.
		_, _ = serverConn.ReadFrame()
		serverSide.Close()
	}()

	mux := client.NewMultiplexer(transport.New(clientSide))
	go mux.Run()

	_, err := mux.CallUnary(wire.BrokerMessageV0{Request: &wire.BrokerRequestV0{
		Content: wire.BrokerRequestContent{Tag: wire.TagAddUser, User: ids.UserId{1}},
	}})
	require.Equal(t, errs.ConnectionLost, errs.CodeOf(err))
}
