// Package commit models the signed DAG nodes that make up a branch
// (spec.md §3), and the traversal BranchSyncReq needs to find the
// commits a peer is missing. Grounded on the teacher's dag.DAG, which
// keeps an in-memory map of nodes plus a tip set guarded by one lock.
package commit

import (
	"sync"

	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/wire"
)

// Content is the signed body of a commit: the branch it belongs to, a
// monotonic per-branch sequence number, the commits it depends on, the
// commits it acknowledges as seen, and a reference to the commit's
// object body.
type Content struct {
	Branch  ids.TopicId
	Seq     uint32
	Deps    []ids.BlockId
	Acks    []ids.BlockId
	Body    ids.ObjectId
}

// Commit is a Content plus the signature over its canonical encoding,
// and the BlockId it was stored under.
type Commit struct {
	Id      ids.BlockId
	Content Content
	Sig     ids.Sig
}

// Encode returns the canonical bytes a commit's signature covers.
func (c Content) Encode() []byte {
	w := wire.NewWriter(128)
	w.Raw(c.Branch[:])
	w.U32(c.Seq)
	w.Uvarint(uint64(len(c.Deps)))
	for _, d := range c.Deps {
		w.Raw(d[:])
	}
	w.Uvarint(uint64(len(c.Acks)))
	for _, a := range c.Acks {
		w.Raw(a[:])
	}
	w.Raw(c.Body[:])
	return w.Bytes()
}

// DAG is an append-only, in-memory index of a branch's commits, keyed by
// id, tracking the current heads (commits with no known in-branch
// successor) per topic.
type DAG struct {
	mu      sync.RWMutex
	commits map[ids.BlockId]*Commit
	heads   map[ids.TopicId]map[ids.BlockId]struct{}
}

// New returns an empty DAG.
func New() *DAG {
	return &DAG{
		commits: make(map[ids.BlockId]*Commit),
		heads:   make(map[ids.TopicId]map[ids.BlockId]struct{}),
	}
}

// Add inserts a commit, updating the branch's head set: c becomes a head,
// and anything it Deps on or Acks stops being one.
func (d *DAG) Add(c *Commit) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.commits[c.Id]; exists {
		return
	}
	d.commits[c.Id] = c
	set, ok := d.heads[c.Content.Branch]
	if !ok {
		set = make(map[ids.BlockId]struct{})
		d.heads[c.Content.Branch] = set
	}
	set[c.Id] = struct{}{}
	for _, dep := range c.Content.Deps {
		delete(set, dep)
	}
	for _, ack := range c.Content.Acks {
		delete(set, ack)
	}
}

// Get returns the commit with the given id.
func (d *DAG) Get(id ids.BlockId) (*Commit, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.commits[id]
	if !ok {
		return nil, errs.New(errs.NotFound)
	}
	return c, nil
}

// Heads returns the current heads of a branch.
func (d *DAG) Heads(branch ids.TopicId) []ids.BlockId {
	d.mu.RLock()
	defer d.mu.RUnlock()
	set := d.heads[branch]
	out := make([]ids.BlockId, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Missing walks back from heads through Deps and Acks, collecting every
// commit id not reachable from knownHeads and not excluded by the
// knownCommits Bloom filter, per BranchSyncReq's soundness contract
// (spec.md §4.4.2, §8): a false positive in knownCommits only omits a
// commit the requester already has; a false negative would be a bug, so
// the filter is only ever used to EXCLUDE, never to short-circuit a walk
// of reachability from knownHeads.
func (d *DAG) Missing(heads, knownHeads []ids.BlockId, knownCommits ids.BloomFilter) ([]ids.BlockId, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	reachableFromKnown := make(map[ids.BlockId]struct{})
	var markReachable func(id ids.BlockId)
	markReachable = func(id ids.BlockId) {
		if _, seen := reachableFromKnown[id]; seen {
			return
		}
		c, ok := d.commits[id]
		if !ok {
			return
		}
		reachableFromKnown[id] = struct{}{}
		for _, dep := range c.Content.Deps {
			markReachable(dep)
		}
		for _, ack := range c.Content.Acks {
			markReachable(ack)
		}
	}
	for _, h := range knownHeads {
		markReachable(h)
	}

	var out []ids.BlockId
	visited := make(map[ids.BlockId]struct{})
	var walk func(id ids.BlockId) error
	walk = func(id ids.BlockId) error {
		if _, seen := visited[id]; seen {
			return nil
		}
		visited[id] = struct{}{}
		if _, known := reachableFromKnown[id]; known {
			return nil
		}
		excluded := knownCommits.Test(id)
		c, ok := d.commits[id]
		if !ok {
			if excluded {
				return nil
			}
			return errs.New(errs.NotFound)
		}
		if !excluded {
			out = append(out, id)
		}
		for _, dep := range c.Content.Deps {
			if err := walk(dep); err != nil {
				return err
			}
		}
		for _, ack := range c.Content.Acks {
			if err := walk(ack); err != nil {
				return err
			}
		}
		return nil
	}
	for _, h := range heads {
		if err := walk(h); err != nil {
			return nil, err
		}
	}
	return out, nil
}
