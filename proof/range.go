package proof

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtrie "github.com/ethereum/go-ethereum/trie"

	"github.com/blockberries/nullspace/types"
)

const (
	// MaxRangeLeaves bounds the leaves carried by one range proof.
	MaxRangeLeaves = 1024
	// MaxSnapshotChunks bounds the chunks one snapshot may declare.
	// Exporters refuse to describe more and importers reject more.
	MaxSnapshotChunks = 1 << 16
)

// BuildRange proves that keys/values are every leaf of the trie in
// [origin, keys[len(keys)-1]]. keys must be sorted and non-empty.
func BuildRange(tr *gethtrie.Trie, height uint64, origin []byte, keys, values [][]byte) (*types.RangeProof, error) {
	if len(keys) == 0 || len(keys) > MaxRangeLeaves || len(keys) != len(values) {
		return nil, fmt.Errorf("%w: %d leaves", ErrTooManyKeys, len(keys))
	}
	set := newNodeSet()
	if err := tr.Prove(origin, set); err != nil {
		return nil, fmt.Errorf("proof: prove origin: %w", err)
	}
	if err := tr.Prove(keys[len(keys)-1], set); err != nil {
		return nil, fmt.Errorf("proof: prove last key: %w", err)
	}
	nodes, err := set.sorted()
	if err != nil {
		return nil, err
	}
	return &types.RangeProof{
		Version: types.ProofVersion,
		Height:  height,
		Root:    types.Hash(tr.Hash()),
		Keys:    keys,
		Values:  values,
		Nodes:   nodes,
	}, nil
}

// VerifyRange checks rp against root starting at origin. more reports
// whether leaves exist beyond the last proven key.
func VerifyRange(rp *types.RangeProof, root types.Hash, origin []byte) (more bool, ok bool) {
	if rp == nil || rp.Version != types.ProofVersion || rp.Root != root {
		return false, false
	}
	if len(rp.Keys) == 0 || len(rp.Keys) > MaxRangeLeaves || len(rp.Keys) != len(rp.Values) {
		return false, false
	}
	db, valid := loadNodes(rp.Nodes)
	if !valid {
		return false, false
	}
	more, err := gethtrie.VerifyRangeProof(common.Hash(root), origin, rp.Keys, rp.Values, db)
	if err != nil {
		return false, false
	}
	return more, true
}
