package client_test

import (
	"net"
	"testing"

	"github.com/lofire/broker/broker"
	"github.com/lofire/broker/client"
	"github.com/lofire/broker/crypto"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/overlay"
	"github.com/lofire/broker/store"
	"github.com/lofire/broker/transport"
	"github.com/lofire/broker/wire"
	"github.com/stretchr/testify/require"
)

// runBrokerServer answers frames from conn by dispatching into h, the
// bridge a production broker process would run per connection (spec.md
// §4.4). It exits once the link closes.
func runBrokerServer(conn *transport.FrameConn, h *broker.Handler) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}
		msg, err := wire.DecodeBrokerMessage(frame)
		if err != nil {
			return
		}
		switch {
		case msg.Request != nil:
			resp := h.HandleBrokerRequest(msg.Request)
			_ = conn.WriteFrame(wire.EncodeBrokerMessage(wire.BrokerMessageV0{Response: resp}))
		case msg.Overlay != nil && msg.Overlay.Request != nil:
			overlayId := msg.Overlay.Overlay
			req := msg.Overlay.Request
			switch req.Content.(type) {
			case wire.BlockGet, wire.BranchSyncReq:
				go func() {
					for resp := range h.HandleStream(overlayId, req) {
						out := wire.BrokerMessageV0{Overlay: &wire.BrokerOverlayMessageV0{Overlay: overlayId, Response: resp}}
						if conn.WriteFrame(wire.EncodeBrokerMessage(out)) != nil {
							return
						}
					}
				}()
			default:
				resp := h.HandleUnary(overlayId, req)
				out := wire.BrokerMessageV0{Overlay: &wire.BrokerOverlayMessageV0{Overlay: overlayId, Response: resp}}
				_ = conn.WriteFrame(wire.EncodeBrokerMessage(out))
			}
		}
	}
}

func TestRemoteConnectionEndToEnd(t *testing.T) {
	adminPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	st := store.New(store.NewMemoryKV())
	reg := overlay.NewRegistry(store.NewMemoryKV())
	engine := broker.New(st, reg, overlay.NewAccounts(adminPub))
	handler := engine.NewHandler(adminPub)

	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go runBrokerServer(transport.New(serverSide), handler)

	mux := client.NewMultiplexer(transport.New(clientSide))
	go mux.Run()

	conn := client.NewRemote(mux, adminPub)

	repoPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	link := ids.RepoLink{Id: repoPub}

	oc, err := conn.OverlayConnect(link, true)
	require.NoError(t, err)
	require.NotNil(t, oc)

	block := &wire.Block{Payload: []byte("over the wire")}
	id, err := oc.PutBlock(block)
	require.NoError(t, err)

	seq, err := oc.GetBlock(id, false, nil)
	require.NoError(t, err)
	got, err := seq.Next()
	require.NoError(t, err)
	require.Equal(t, block.Payload, got.Payload)

	end, err := seq.Next()
	require.NoError(t, err)
	require.Nil(t, end)
}

func TestRemoteConnectionAddUserRejectsDuplicate(t *testing.T) {
	adminPub, adminPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	st := store.New(store.NewMemoryKV())
	reg := overlay.NewRegistry(store.NewMemoryKV())
	engine := broker.New(st, reg, overlay.NewAccounts(adminPub))
	handler := engine.NewHandler(adminPub)

	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go runBrokerServer(transport.New(serverSide), handler)

	mux := client.NewMultiplexer(transport.New(clientSide))
	go mux.Run()
	conn := client.NewRemote(mux, adminPub)

	newUser := ids.UserId{4}
	require.NoError(t, conn.AddUser(newUser, adminPriv))
	err = conn.AddUser(newUser, adminPriv)
	require.Equal(t, errs.UserAlreadyExists, errs.CodeOf(err))
}
