package broker

import (
	"github.com/lofire/broker/crypto"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/wire"
)

// HandleExt answers a MAC-authenticated external request from a
// non-member holding an ObjectLink (spec.md §4.7, SPEC_FULL.md §C.7).
// macKey is the key the caller derived from the link's object keys with
// crypto.LabelExtRequestBlake3; HandleExt rejects the request with
// InvalidMessage if the supplied Mac does not match.
func (b *Broker) HandleExt(req *wire.ExtRequestV0, macKey ids.SymKey) <-chan *wire.ExtResponseV0 {
	out := make(chan *wire.ExtResponseV0, 8)
	go func() {
		defer close(out)

		want := crypto.KeyedHash(macKey, wire.EncodeExtRequestContent(req.Content))
		if want != req.Mac {
			out <- &wire.ExtResponseV0{Id: req.Id, Result: errs.InvalidMessage}
			return
		}

		switch req.Content.Tag {
		case wire.TagExtObjectGet:
			b.streamExtObjectGet(req.Id, req.Content.ObjectGet, out)
		default:
			// BranchHeadsReq/BranchSyncReq external variants decode
			// correctly (wire compatibility) but are not served: serving
			// them needs overlay-mesh forwarding to reach a non-member,
			// which is out of scope (spec.md §1 Non-goals: "routing
			// between brokers").
			out <- &wire.ExtResponseV0{Id: req.Id, Result: errs.InvalidState}
		}
	}()
	return out
}

func (b *Broker) streamExtObjectGet(id uint64, req *wire.ExtObjectGet, out chan<- *wire.ExtResponseV0) {
	for _, objId := range req.Ids {
		block, err := b.Store.Get(objId)
		if err != nil {
			out <- &wire.ExtResponseV0{Id: id, Result: errs.NotFound}
			continue
		}
		out <- &wire.ExtResponseV0{Id: id, Result: errs.OK, Block: block}
	}
	out <- &wire.ExtResponseV0{Id: id, Result: errs.EndOfStream}
}

