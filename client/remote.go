package client

import (
	"github.com/lofire/broker/crypto"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/wire"
)

// RemoteConnection goes through a Multiplexer over a framed transport
// (spec.md §4.6), sharing identical observable semantics with
// LocalConnection.
type RemoteConnection struct {
	mux  *Multiplexer
	user ids.UserId
}

// NewRemote wraps mux, an already-authenticated multiplexer (the
// handshake in package auth has already completed on this link).
func NewRemote(mux *Multiplexer, user ids.UserId) *RemoteConnection {
	return &RemoteConnection{mux: mux, user: user}
}

func (c *RemoteConnection) brokerRequest(tag wire.BrokerRequestTag, target ids.UserId, priv ids.PrivKey) error {
	content := wire.BrokerRequestContent{Tag: tag, User: target}
	sig := crypto.Sign(priv, content.SignedContent())
	resp, err := c.mux.CallUnary(wire.BrokerMessageV0{Request: &wire.BrokerRequestV0{Content: content, Sig: sig}})
	if err != nil {
		return err
	}
	return errToErr(resp.Result())
}

func (c *RemoteConnection) AddUser(user ids.UserId, adminPriv ids.PrivKey) error {
	return c.brokerRequest(wire.TagAddUser, user, adminPriv)
}

func (c *RemoteConnection) DelUser(user ids.UserId, adminPriv ids.PrivKey) error {
	return c.brokerRequest(wire.TagDelUser, user, adminPriv)
}

func (c *RemoteConnection) AddClient(user ids.UserId, client ids.ClientId, userPriv ids.PrivKey) error {
	content := wire.BrokerRequestContent{Tag: wire.TagAddClient, User: user, Client: client}
	sig := crypto.Sign(userPriv, content.SignedContent())
	resp, err := c.mux.CallUnary(wire.BrokerMessageV0{Request: &wire.BrokerRequestV0{Content: content, Sig: sig}})
	if err != nil {
		return err
	}
	return errToErr(resp.Result())
}

func (c *RemoteConnection) DelClient(user ids.UserId, client ids.ClientId, userPriv ids.PrivKey) error {
	content := wire.BrokerRequestContent{Tag: wire.TagDelClient, User: user, Client: client}
	sig := crypto.Sign(userPriv, content.SignedContent())
	resp, err := c.mux.CallUnary(wire.BrokerMessageV0{Request: &wire.BrokerRequestV0{Content: content, Sig: sig}})
	if err != nil {
		return err
	}
	return errToErr(resp.Result())
}

// OverlayConnect mirrors LocalConnection.OverlayConnect over the wire:
// compute OverlayId, try OverlayConnect, fall back to OverlayJoin on
// OverlayNotJoined (spec.md §4.6).
func (c *RemoteConnection) OverlayConnect(link ids.RepoLink, public bool) (*OverlayClient, error) {
	var secret *ids.SymKey
	if !public {
		secret = &link.Secret
	}
	overlayId := crypto.OverlayId(link.Id, secret)

	resp, err := c.mux.CallUnary(overlayUnary(overlayId, wire.OverlayConnect{}))
	if err != nil {
		return nil, err
	}
	if resp.Result() == errs.OverlayNotJoined {
		var repoPub *ids.PubKey
		if !public {
			repoPub = &link.Id
		}
		resp, err = c.mux.CallUnary(overlayUnary(overlayId, wire.OverlayJoin{
			Secret: link.Secret, RepoPub: repoPub, Peers: link.Peers,
		}))
		if err != nil {
			return nil, err
		}
	}
	if resp.Result() != errs.OK {
		return nil, errs.New(resp.Result())
	}

	return &OverlayClient{
		overlayId: overlayId,
		do: func(req wire.OverlayRequestContent) (errs.Code, *wire.Block) {
			resp, err := c.mux.CallUnary(overlayUnary(overlayId, req))
			if err != nil {
				return errs.ConnectionLost, nil
			}
			return resp.Result(), resp.ResponseBlock()
		},
		doStream: func(req wire.OverlayRequestContent) (BlockSeq, error) {
			stream, err := c.mux.CallStream(overlayUnary(overlayId, req))
			if err != nil {
				return nil, err
			}
			return stream, nil
		},
	}, nil
}

func overlayUnary(overlayId ids.OverlayId, content wire.OverlayRequestContent) wire.BrokerMessageV0 {
	return wire.BrokerMessageV0{
		Overlay: &wire.BrokerOverlayMessageV0{
			Overlay: overlayId,
			Request: &wire.BrokerOverlayRequestV0{Content: content},
		},
	}
}
