// Package broker implements the broker engine (spec.md §4.4): synchronous
// per-connection dispatch of decoded requests against the overlay
// registry and block store, producing either a single response (unary
// ops) or a response stream (BlockGet, BranchSyncReq).
package broker

import (
	"github.com/lofire/broker/commit"
	"github.com/lofire/broker/crypto"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/log"
	"github.com/lofire/broker/metrics"
	"github.com/lofire/broker/overlay"
	"github.com/lofire/broker/store"
	"github.com/lofire/broker/wire"
)

// Broker is the engine shared by every connection handler: it exclusively
// owns the block store handle and the overlay registry (spec.md §3
// "Ownership"). It is re-entrant and safe for concurrent use from many
// connection handlers.
type Broker struct {
	Store    *store.BlockStore
	Overlays *overlay.Registry
	Accounts *overlay.Accounts
	Branches *commit.DAG
	Metrics  *metrics.Broker
	Log      log.Logger
}

// New builds a Broker over the given collaborators. Metrics and Log may
// be nil; a nil Log defaults to a no-op logger.
func New(st *store.BlockStore, reg *overlay.Registry, accounts *overlay.Accounts) *Broker {
	return &Broker{
		Store:    st,
		Overlays: reg,
		Accounts: accounts,
		Branches: commit.New(),
		Log:      log.NewNoOp(),
	}
}

// RegisterCommit adds an already-decrypted, caller-verified commit to the
// branch DAG, the population path BranchSyncReq's traversal depends on
// (spec.md §4.4.2). A commit's body is encrypted object content the
// broker cannot decode on its own, so it cannot discover Content.Branch,
// Deps, or Acks by observing BlockPut; a member that has decrypted and
// signature-checked a commit object-side must hand the result in here.
// This mirrors the original implementation's own deferred commit
// ingestion (original_source lofire-broker/connection.rs, BranchSyncReq
// handling). RegisterCommit fails NotFound if the commit's referenced
// body object is not yet in the store.
func (b *Broker) RegisterCommit(c *commit.Commit) error {
	has, err := b.Store.Has(c.Content.Body)
	if err != nil {
		return err
	}
	if !has {
		return errs.New(errs.NotFound)
	}
	b.Branches.Add(c)
	return nil
}

// Handler is the per-connection view of the engine: it pins the
// authenticated user every request on the connection is served as
// (spec.md §4.4). It keeps no per-request state.
type Handler struct {
	broker *Broker
	user   ids.UserId
}

// NewHandler returns a Handler for a connection authenticated as user.
func (b *Broker) NewHandler(user ids.UserId) *Handler {
	if b.Metrics != nil {
		b.Metrics.ConnOpened()
	}
	return &Handler{broker: b, user: user}
}

// Close marks the connection as ended for the active-connections gauge;
// it is the only per-connection bookkeeping a Handler has. Callers own
// one Handler per connection and must call Close once it ends
// (spec.md §4.4.3).
func (h *Handler) Close() {
	if h.broker.Metrics != nil {
		h.broker.Metrics.ConnClosed()
	}
}

// HandleBrokerRequest dispatches an account-administration request,
// verifying the signature over its canonical content before applying it
// (spec.md §4.4.1).
func (h *Handler) HandleBrokerRequest(req *wire.BrokerRequestV0) *wire.BrokerResponseV0 {
	if h.broker.Metrics != nil {
		h.broker.Metrics.ObserveRequest(requestOpName(req.Content.Tag))
	}
	result := h.dispatchBrokerRequest(req.Content, req.Sig)
	if h.broker.Metrics != nil {
		h.broker.Metrics.ObserveResult(result.String())
	}
	return &wire.BrokerResponseV0{Id: req.Id, Result: result}
}

// requestOpName labels a BrokerRequest by its tag for the requests_total
// counter.
func requestOpName(tag wire.BrokerRequestTag) string {
	switch tag {
	case wire.TagAddUser:
		return "add_user"
	case wire.TagDelUser:
		return "del_user"
	case wire.TagAddClient:
		return "add_client"
	case wire.TagDelClient:
		return "del_client"
	default:
		return "unknown"
	}
}

func (h *Handler) dispatchBrokerRequest(content wire.BrokerRequestContent, sig ids.Sig) errs.Code {
	switch content.Tag {
	case wire.TagAddUser:
		if !h.broker.Accounts.IsAdmin(h.user) {
			return errs.NotAnAdmin
		}
		if err := crypto.Verify(h.user, content.SignedContent(), sig); err != nil {
			return errs.SignatureError
		}
		if err := h.broker.Accounts.AddUser(content.User, false); err != nil {
			return errs.CodeOf(err)
		}
		return errs.OK
	case wire.TagDelUser:
		if !h.broker.Accounts.IsAdmin(h.user) {
			return errs.NotAnAdmin
		}
		if err := crypto.Verify(h.user, content.SignedContent(), sig); err != nil {
			return errs.SignatureError
		}
		if err := h.broker.Accounts.DelUser(content.User); err != nil {
			return errs.CodeOf(err)
		}
		return errs.OK
	case wire.TagAddClient:
		if content.User != h.user {
			return errs.NotAnAdmin
		}
		if err := crypto.Verify(h.user, content.SignedContent(), sig); err != nil {
			return errs.SignatureError
		}
		if err := h.broker.Accounts.AddClient(content.User, content.Client); err != nil {
			return errs.CodeOf(err)
		}
		return errs.OK
	case wire.TagDelClient:
		if content.User != h.user {
			return errs.NotAnAdmin
		}
		if err := crypto.Verify(h.user, content.SignedContent(), sig); err != nil {
			return errs.SignatureError
		}
		if err := h.broker.Accounts.DelClient(content.User, content.Client); err != nil {
			return errs.CodeOf(err)
		}
		return errs.OK
	default:
		return errs.InvalidMessage
	}
}
