package store

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethtrie "github.com/ethereum/go-ethereum/trie"

	"github.com/blockberries/nullspace/proof"
	"github.com/blockberries/nullspace/types"
)

// Leaves returns up to limit leaves at height whose keys are >= origin,
// with a range proof covering them. next is nil once the key space is
// exhausted.
func (s *Store) Leaves(height uint64, origin types.Key, limit int) (rp *types.RangeProof, next *types.Key, err error) {
	if limit <= 0 || limit > proof.MaxRangeLeaves {
		limit = proof.MaxRangeLeaves
	}
	root, err := s.rootAt(height)
	if err != nil {
		return nil, nil, err
	}
	tr, err := s.openTrie(root)
	if err != nil {
		return nil, nil, err
	}
	nodeIt, err := tr.NodeIterator(origin[:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: node iterator: %w", ErrStorage, err)
	}
	it := gethtrie.NewIterator(nodeIt)
	var keys, values [][]byte
	for it.Next() {
		if len(keys) == limit {
			k := types.Key(common.BytesToHash(it.Key))
			next = &k
			break
		}
		keys = append(keys, common.CopyBytes(it.Key))
		values = append(values, common.CopyBytes(it.Value))
	}
	if it.Err != nil {
		return nil, nil, fmt.Errorf("%w: iterate leaves: %w", ErrStorage, it.Err)
	}
	if len(keys) == 0 {
		return nil, nil, nil
	}
	rp, err = proof.BuildRange(tr, height, origin[:], keys, values)
	if err != nil {
		return nil, nil, err
	}
	return rp, next, nil
}

// Restore seeds an empty store with the full leaf set of a snapshot
// taken at height. The recomputed root must equal root.
func (s *Store) Restore(height uint64, root types.Hash, keys, values [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return ErrAlreadyInitialized
	}
	if len(keys) != len(values) {
		return fmt.Errorf("store: restore: %d keys, %d values", len(keys), len(values))
	}
	tr, err := s.openTrie(gethtypes.EmptyRootHash)
	if err != nil {
		return err
	}
	for i := range keys {
		if i > 0 && bytes.Compare(keys[i-1], keys[i]) >= 0 {
			return fmt.Errorf("store: restore: keys not strictly ascending at %d", i)
		}
		if err := tr.Update(keys[i], values[i]); err != nil {
			return fmt.Errorf("%w: restore %x: %w", ErrStorage, keys[i], err)
		}
	}
	if got := types.Hash(tr.Hash()); got != root {
		return fmt.Errorf("store: restore: root mismatch: got %s want %s", got, root)
	}
	committed, err := s.commitTrie(tr, height)
	if err != nil {
		return err
	}
	if err := s.writeHeight(height, committed); err != nil {
		return err
	}
	s.height, s.root, s.initialized = height, committed, true
	s.logger.Info("Restored state from snapshot", "height", height, "root", root.String(), "leaves", len(keys))
	return nil
}
