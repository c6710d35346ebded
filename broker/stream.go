package broker

import (
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/wire"
)

// HandleStream dispatches BlockGet and BranchSyncReq, the two request
// kinds whose response is a sequence of block responses followed by a
// terminator (spec.md §4.4.2). It returns a channel the caller must drain
// to completion (or abandon on cancellation, per spec.md §4.5.2); the
// channel is always closed after the terminator is sent.
func (h *Handler) HandleStream(overlayId ids.OverlayId, req *wire.BrokerOverlayRequestV0) <-chan *wire.BrokerOverlayResponseV0 {
	if h.broker.Metrics != nil {
		h.broker.Metrics.ObserveRequest(overlayOpName(req.Content))
	}
	out := make(chan *wire.BrokerOverlayResponseV0, 8)
	go func() {
		defer close(out)
		switch c := req.Content.(type) {
		case wire.BlockGet:
			h.streamBlockGet(req.Id, c, out)
		case wire.BranchSyncReq:
			h.streamBranchSync(req.Id, c, out)
		default:
			out <- &wire.BrokerOverlayResponseV0{Id: req.Id, Result: errs.InvalidMessage}
		}
	}()
	return out
}

func (h *Handler) streamBlockGet(id uint64, req wire.BlockGet, out chan<- *wire.BrokerOverlayResponseV0) {
	root, err := h.broker.Store.Get(req.Id)
	if err != nil {
		out <- &wire.BrokerOverlayResponseV0{Id: id, Result: errs.NotFound}
		return
	}
	out <- &wire.BrokerOverlayResponseV0{Id: id, Result: errs.OK, Block: root}
	h.observeStreamedBlock()

	if req.IncludeChildren {
		visited := map[ids.BlockId]struct{}{req.Id: {}}
		queue := append([]ids.BlockId{}, root.Children...)
		for _, c := range root.Children {
			visited[c] = struct{}{}
		}
		for len(queue) > 0 {
			next := queue[0]
			queue = queue[1:]
			block, err := h.broker.Store.Get(next)
			if err != nil {
				out <- &wire.BrokerOverlayResponseV0{Id: id, Result: errs.StorageError}
				return
			}
			out <- &wire.BrokerOverlayResponseV0{Id: id, Result: errs.OK, Block: block}
			h.observeStreamedBlock()
			for _, c := range block.Children {
				if _, seen := visited[c]; seen {
					continue
				}
				visited[c] = struct{}{}
				queue = append(queue, c)
			}
		}
	}

	out <- &wire.BrokerOverlayResponseV0{Id: id, Result: errs.EndOfStream}
}

func (h *Handler) streamBranchSync(id uint64, req wire.BranchSyncReq, out chan<- *wire.BrokerOverlayResponseV0) {
	missing, err := h.broker.Branches.Missing(req.Heads, req.KnownHeads, req.KnownCommits)
	if err != nil {
		out <- &wire.BrokerOverlayResponseV0{Id: id, Result: errs.CodeOf(err)}
		return
	}
	for _, commitId := range missing {
		c, err := h.broker.Branches.Get(commitId)
		if err != nil {
			out <- &wire.BrokerOverlayResponseV0{Id: id, Result: errs.StorageError}
			return
		}
		block, err := h.broker.Store.Get(c.Content.Body)
		if err != nil {
			out <- &wire.BrokerOverlayResponseV0{Id: id, Result: errs.StorageError}
			return
		}
		out <- &wire.BrokerOverlayResponseV0{Id: id, Result: errs.OK, Block: block}
		h.observeStreamedBlock()
	}
	out <- &wire.BrokerOverlayResponseV0{Id: id, Result: errs.EndOfStream}
}

func (h *Handler) observeStreamedBlock() {
	if h.broker.Metrics != nil {
		h.broker.Metrics.ObserveStreamedBlock()
	}
}
