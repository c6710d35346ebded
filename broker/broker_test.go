package broker_test

import (
	"testing"

	"github.com/lofire/broker/broker"
	"github.com/lofire/broker/crypto"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/overlay"
	"github.com/lofire/broker/store"
	"github.com/lofire/broker/wire"
	"github.com/stretchr/testify/require"
)

func newTestBroker(admin ids.UserId) *broker.Broker {
	st := store.New(store.NewMemoryKV())
	reg := overlay.NewRegistry(store.NewMemoryKV())
	accounts := overlay.NewAccounts(admin)
	return broker.New(st, reg, accounts)
}

func TestHandleBrokerRequestAddUser(t *testing.T) {
	adminPub, adminPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	b := newTestBroker(adminPub)
	h := b.NewHandler(adminPub)

	newUser := ids.UserId{9}
	content := wire.BrokerRequestContent{Tag: wire.TagAddUser, User: newUser}
	sig := crypto.Sign(adminPriv, content.SignedContent())

	resp := h.HandleBrokerRequest(&wire.BrokerRequestV0{Id: 1, Content: content, Sig: sig})
	require.Equal(t, errs.OK, resp.Result)
	require.True(t, b.Accounts.HasUser(newUser))

	// duplicate add fails
	sig2 := crypto.Sign(adminPriv, content.SignedContent())
	resp2 := h.HandleBrokerRequest(&wire.BrokerRequestV0{Id: 2, Content: content, Sig: sig2})
	require.Equal(t, errs.UserAlreadyExists, resp2.Result)
}

func TestHandleBrokerRequestRejectsNonAdmin(t *testing.T) {
	adminPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	b := newTestBroker(adminPub)

	plainUserPub, plainUserPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, b.Accounts.AddUser(plainUserPub, false))
	h := b.NewHandler(plainUserPub)

	content := wire.BrokerRequestContent{Tag: wire.TagAddUser, User: ids.UserId{5}}
	sig := crypto.Sign(plainUserPriv, content.SignedContent())
	resp := h.HandleBrokerRequest(&wire.BrokerRequestV0{Id: 1, Content: content, Sig: sig})
	require.Equal(t, errs.NotAnAdmin, resp.Result)
}

func TestOverlayJoinThenConnectThenBlockPutGet(t *testing.T) {
	adminPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	b := newTestBroker(adminPub)
	h := b.NewHandler(adminPub)

	overlayId := ids.OverlayId{1}
	var secret ids.SymKey
	secret[0] = 1

	joinResp := h.HandleUnary(overlayId, &wire.BrokerOverlayRequestV0{
		Id:      1,
		Content: wire.OverlayJoin{Secret: secret},
	})
	require.Equal(t, errs.OK, joinResp.Result)

	connResp := h.HandleUnary(overlayId, &wire.BrokerOverlayRequestV0{Id: 2, Content: wire.OverlayConnect{}})
	require.Equal(t, errs.OK, connResp.Result)

	block := &wire.Block{Payload: []byte("hello")}
	putResp := h.HandleUnary(overlayId, &wire.BrokerOverlayRequestV0{
		Id:      2,
		Content: wire.BlockPut{Block: block},
	})
	require.Equal(t, errs.OK, putResp.Result)

	stream := h.HandleStream(overlayId, &wire.BrokerOverlayRequestV0{
		Id:      3,
		Content: wire.BlockGet{Id: block.Id()},
	})
	var got []*wire.BrokerOverlayResponseV0
	for r := range stream {
		got = append(got, r)
	}
	require.Len(t, got, 2)
	require.Equal(t, errs.OK, got[0].Result)
	require.Equal(t, block.Payload, got[0].Block.Payload)
	require.Equal(t, errs.EndOfStream, got[1].Result)
}

func TestStreamBlockGetBFSWithDedup(t *testing.T) {
	adminPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	b := newTestBroker(adminPub)
	h := b.NewHandler(adminPub)
	overlayId := ids.OverlayId{2}

	var secret ids.SymKey
	require.Equal(t, errs.OK, h.HandleUnary(overlayId, &wire.BrokerOverlayRequestV0{Id: 1, Content: wire.OverlayJoin{Secret: secret}}).Result)

	leaf1 := &wire.Block{Payload: []byte("leaf1")}
	leaf2 := &wire.Block{Payload: []byte("leaf2")}
	// root has two children that both point at the same shared leaf;
	// mid1 also points at leaf1 and mid2 at leaf2
	shared := &wire.Block{Payload: []byte("shared")}
	mid1 := &wire.Block{Children: []ids.BlockId{shared.Id(), leaf1.Id()}}
	mid2 := &wire.Block{Children: []ids.BlockId{shared.Id(), leaf2.Id()}}
	root := &wire.Block{Children: []ids.BlockId{mid1.Id(), mid2.Id()}}

	for _, blk := range []*wire.Block{leaf1, leaf2, shared, mid1, mid2, root} {
		resp := h.HandleUnary(overlayId, &wire.BrokerOverlayRequestV0{Id: 10, Content: wire.BlockPut{Block: blk}})
		require.Equal(t, errs.OK, resp.Result)
	}

	stream := h.HandleStream(overlayId, &wire.BrokerOverlayRequestV0{
		Id:      20,
		Content: wire.BlockGet{Id: root.Id(), IncludeChildren: true},
	})
	seen := map[ids.BlockId]int{}
	var terminated bool
	for r := range stream {
		if r.Result == errs.EndOfStream {
			terminated = true
			continue
		}
		require.Equal(t, errs.OK, r.Result)
		seen[r.Block.Id()]++
	}
	require.True(t, terminated)
	// every distinct block (root, mid1, mid2, shared, leaf1, leaf2) appears exactly once
	require.Len(t, seen, 6)
	for id, count := range seen {
		require.Equalf(t, 1, count, "block %v streamed more than once", id)
	}
}

func TestHandleUnaryObjectDelRemovesTree(t *testing.T) {
	adminPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	b := newTestBroker(adminPub)
	h := b.NewHandler(adminPub)
	overlayId := ids.OverlayId{3}
	var secret ids.SymKey
	require.Equal(t, errs.OK, h.HandleUnary(overlayId, &wire.BrokerOverlayRequestV0{Id: 1, Content: wire.OverlayJoin{Secret: secret}}).Result)

	leaf := &wire.Block{Payload: []byte("x")}
	root := &wire.Block{Children: []ids.BlockId{leaf.Id()}}
	for _, blk := range []*wire.Block{leaf, root} {
		require.Equal(t, errs.OK, h.HandleUnary(overlayId, &wire.BrokerOverlayRequestV0{Id: 2, Content: wire.BlockPut{Block: blk}}).Result)
	}

	delResp := h.HandleUnary(overlayId, &wire.BrokerOverlayRequestV0{Id: 3, Content: wire.ObjectDel{Id: root.Id()}})
	require.Equal(t, errs.OK, delResp.Result)

	has, err := b.Store.Has(leaf.Id())
	require.NoError(t, err)
	require.False(t, has)
}
