// Package object implements the content chunking and Merkle assembly the
// broker/client core treats as external (spec.md §1): splitting a plain
// ObjectContent into a tree of encrypted Blocks no larger than a caller's
// max_object_size, and reassembling a tree back into its content given
// every transitive child.
package object

import (
	"github.com/lofire/broker/crypto"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/wire"
)

// maxChildrenPerBlock bounds fan-out so a single internal node's encoded
// size stays well under any reasonable max_object_size.
const maxChildrenPerBlock = 256

// Assemble splits content into a tree of encrypted blocks, each leaf no
// larger than maxSize, and returns every block in topological (children
// before parents) order together with the root's ObjectId. Every leaf
// payload is encrypted under the same per-object key (internal blocks
// carry only child ids), generated fresh unless the
// caller supplies one (put_object's convenience path, spec.md §4.6).
func Assemble(content []byte, deps []ids.BlockId, expiry *uint64, maxSize int, key *ids.SymKey) ([]*wire.Block, ids.ObjectId, error) {
	if maxSize <= 0 {
		return nil, ids.ObjectId{}, errs.New(errs.InvalidState)
	}
	var objKey ids.SymKey
	if key != nil {
		objKey = *key
	} else {
		var err error
		objKey, err = randomSymKey()
		if err != nil {
			return nil, ids.ObjectId{}, err
		}
	}

	leaves, err := chunkLeaves(content, objKey, maxSize)
	if err != nil {
		return nil, ids.ObjectId{}, err
	}

	all := append([]*wire.Block{}, leaves...)
	level := leaves
	for len(level) > 1 {
		next, err := buildLevel(level, maxSize)
		if err != nil {
			return nil, ids.ObjectId{}, err
		}
		all = append(all, next...)
		level = next
	}

	root := level[0]
	if len(deps) > 0 {
		root.Dep = &deps[0]
	}
	root.Expiry = expiry
	root.Key = &objKey
	// Re-append root mutation: it is the same pointer already in `all`.
	return all, root.Id(), nil
}

func chunkLeaves(content []byte, key ids.SymKey, maxSize int) ([]*wire.Block, error) {
	if len(content) == 0 {
		ct, err := crypto.Encrypt(key, nil)
		if err != nil {
			return nil, errs.Wrap(errs.StorageError, err)
		}
		return []*wire.Block{{Payload: ct}}, nil
	}
	var leaves []*wire.Block
	for off := 0; off < len(content); off += maxSize {
		end := off + maxSize
		if end > len(content) {
			end = len(content)
		}
		ct, err := crypto.Encrypt(key, content[off:end])
		if err != nil {
			return nil, errs.Wrap(errs.StorageError, err)
		}
		leaves = append(leaves, &wire.Block{Payload: ct})
	}
	return leaves, nil
}

// buildLevel groups level's blocks into parents of up to
// maxChildrenPerBlock children each, each parent an empty-payload block
// referencing its children. If level already has exactly one block it is
// returned unchanged (it is the root).
func buildLevel(level []*wire.Block, maxSize int) ([]*wire.Block, error) {
	if len(level) <= 1 {
		return level, nil
	}
	var parents []*wire.Block
	for off := 0; off < len(level); off += maxChildrenPerBlock {
		end := off + maxChildrenPerBlock
		if end > len(level) {
			end = len(level)
		}
		children := make([]ids.BlockId, end-off)
		for i, b := range level[off:end] {
			children[i] = b.Id()
		}
		parents = append(parents, &wire.Block{Children: children})
	}
	return parents, nil
}

func randomSymKey() (ids.SymKey, error) {
	_, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return ids.SymKey{}, err
	}
	var k ids.SymKey
	copy(k[:], priv[:32])
	return k, nil
}

// Reassemble walks the tree rooted at root, looking up each child via
// fetch, and returns the decrypted, concatenated leaf payloads in
// left-to-right order. If fetch fails for any transitive child,
// Reassemble returns fetch's error.
func Reassemble(root *wire.Block, fetch func(ids.BlockId) (*wire.Block, error)) ([]byte, error) {
	if root.Key == nil {
		return nil, errs.New(errs.InvalidBlock)
	}
	var out []byte
	var walk func(b *wire.Block) error
	walk = func(b *wire.Block) error {
		if len(b.Children) == 0 {
			pt, err := crypto.Decrypt(*root.Key, b.Payload)
			if err != nil {
				return errs.Wrap(errs.StorageError, err)
			}
			out = append(out, pt...)
			return nil
		}
		for _, childId := range b.Children {
			child, err := fetch(childId)
			if err != nil {
				return err
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}
