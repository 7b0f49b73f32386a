package store

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtrie "github.com/ethereum/go-ethereum/trie"

	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/types"
)

// Working is the uncommitted state of the block being built. It hashes
// lazily, so Root reflects every mutation staged so far without
// touching disk.
//
// A Working is owned by one goroutine.
type Working struct {
	base    common.Hash
	trie    *gethtrie.Trie
	changes map[types.Key]Change
}

var _ state.View = (*Working)(nil)

// Base returns the committed root the working state was opened on.
func (w *Working) Base() types.Hash { return types.Hash(w.base) }

func (w *Working) Get(key types.Key) ([]byte, error) {
	v, err := w.trie.Get(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrStorage, key, err)
	}
	return v, nil
}

func (w *Working) Insert(key types.Key, value []byte) error {
	if len(value) == 0 {
		return fmt.Errorf("store: empty value for key %s", key)
	}
	value = bytes.Clone(value)
	if err := w.trie.Update(key[:], value); err != nil {
		return fmt.Errorf("%w: update %s: %w", ErrStorage, key, err)
	}
	w.changes[key] = Change{Key: key, Value: value}
	return nil
}

func (w *Working) Delete(key types.Key) error {
	if err := w.trie.Delete(key[:]); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrStorage, key, err)
	}
	w.changes[key] = Change{Key: key, Delete: true}
	return nil
}

// Root hashes the working trie.
func (w *Working) Root() types.Hash { return types.Hash(w.trie.Hash()) }

// Changes returns every staged mutation in key order, ready for Apply.
func (w *Working) Changes() []Change {
	out := make([]Change, 0, len(w.changes))
	for _, c := range w.changes {
		out = append(out, c)
	}
	SortChanges(out)
	return out
}
