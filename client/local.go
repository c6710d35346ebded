package client

import (
	"github.com/lofire/broker/broker"
	"github.com/lofire/broker/crypto"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/wire"
)

// LocalConnection invokes the broker engine directly, synchronously, in
// the caller's goroutine (spec.md §4.6): no framing, no multiplexer,
// just a function call per operation.
type LocalConnection struct {
	engine *broker.Broker
	user   ids.UserId
}

// NewLocal returns a Connection backed directly by engine, authenticated
// as user (the caller is assumed to have verified the user out of band,
// since there is no wire handshake to do it for a local connection).
func NewLocal(engine *broker.Broker, user ids.UserId) *LocalConnection {
	return &LocalConnection{engine: engine, user: user}
}

func (c *LocalConnection) AddUser(user ids.UserId, adminPriv ids.PrivKey) error {
	content := wire.AddUserContent{User: user}
	return errToErr(c.engine.NewHandler(adminPriv.Public()).HandleBrokerRequest(&wire.BrokerRequestV0{
		Content: wire.BrokerRequestContent{Tag: wire.TagAddUser, User: user},
		Sig:     crypto.Sign(adminPriv, content.Encode()),
	}).Result)
}

func (c *LocalConnection) DelUser(user ids.UserId, adminPriv ids.PrivKey) error {
	content := wire.DelUserContent{User: user}
	return errToErr(c.engine.NewHandler(adminPriv.Public()).HandleBrokerRequest(&wire.BrokerRequestV0{
		Content: wire.BrokerRequestContent{Tag: wire.TagDelUser, User: user},
		Sig:     crypto.Sign(adminPriv, content.Encode()),
	}).Result)
}

func (c *LocalConnection) AddClient(user ids.UserId, client ids.ClientId, userPriv ids.PrivKey) error {
	content := wire.AddClientContent{User: user, Client: client}
	return errToErr(c.engine.NewHandler(user).HandleBrokerRequest(&wire.BrokerRequestV0{
		Content: wire.BrokerRequestContent{Tag: wire.TagAddClient, User: user, Client: client},
		Sig:     crypto.Sign(userPriv, content.Encode()),
	}).Result)
}

func (c *LocalConnection) DelClient(user ids.UserId, client ids.ClientId, userPriv ids.PrivKey) error {
	content := wire.DelClientContent{User: user, Client: client}
	return errToErr(c.engine.NewHandler(user).HandleBrokerRequest(&wire.BrokerRequestV0{
		Content: wire.BrokerRequestContent{Tag: wire.TagDelClient, User: user, Client: client},
		Sig:     crypto.Sign(userPriv, content.Encode()),
	}).Result)
}

// OverlayConnect computes OverlayId from link per spec.md §3, issues
// OverlayConnect, and falls back to OverlayJoin on OverlayNotJoined
// (spec.md §4.6).
func (c *LocalConnection) OverlayConnect(link ids.RepoLink, public bool) (*OverlayClient, error) {
	var secret *ids.SymKey
	if !public {
		secret = &link.Secret
	}
	overlayId := crypto.OverlayId(link.Id, secret)
	h := c.engine.NewHandler(c.user)

	result := h.HandleUnary(overlayId, &wire.BrokerOverlayRequestV0{Content: wire.OverlayConnect{}}).Result
	if result == errs.OverlayNotJoined {
		var repoPub *ids.PubKey
		if !public {
			repoPub = &link.Id
		}
		result = h.HandleUnary(overlayId, &wire.BrokerOverlayRequestV0{
			Content: wire.OverlayJoin{Secret: link.Secret, RepoPub: repoPub, Peers: link.Peers},
		}).Result
	}
	if result != errs.OK {
		return nil, errs.New(result)
	}

	return &OverlayClient{
		overlayId: overlayId,
		do: func(req wire.OverlayRequestContent) (errs.Code, *wire.Block) {
			resp := h.HandleUnary(overlayId, &wire.BrokerOverlayRequestV0{Content: req})
			return resp.Result, resp.Block
		},
		doStream: func(req wire.OverlayRequestContent) (BlockSeq, error) {
			ch := h.HandleStream(overlayId, &wire.BrokerOverlayRequestV0{Content: req})
			return &localBlockSeq{ch: ch}, nil
		},
	}, nil
}

func errToErr(code errs.Code) error {
	if code == errs.OK {
		return nil
	}
	return errs.New(code)
}

// localBlockSeq adapts the broker's response channel to BlockSeq.
type localBlockSeq struct {
	ch <-chan *wire.BrokerOverlayResponseV0
}

func (s *localBlockSeq) Next() (*wire.Block, error) {
	resp, ok := <-s.ch
	if !ok {
		return nil, nil
	}
	if resp.Result == errs.EndOfStream {
		return nil, nil
	}
	if resp.Result != errs.OK {
		return nil, errs.New(resp.Result)
	}
	return resp.Block, nil
}
