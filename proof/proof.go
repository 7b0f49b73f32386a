// Package proof builds and verifies bounded Merkle proofs over the
// state trie. Verification is total: malformed, oversized or
// mismatched input yields false, never a panic.
package proof

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	gethtrie "github.com/ethereum/go-ethereum/trie"

	"github.com/blockberries/nullspace/types"
)

// Limits shared by the builder and the verifier. A proof the builder
// would refuse to produce is one the verifier refuses to accept.
const (
	MaxProofNodes = 512
	MaxProofKeys  = 64
	MaxNodeSize   = 4096
)

var (
	ErrTooManyKeys  = errors.New("proof: too many keys")
	ErrTooManyNodes = errors.New("proof: too many nodes")
	ErrNodeTooLarge = errors.New("proof: node too large")
	ErrEmptyTrie    = errors.New("proof: empty trie")
)

// nodeSet collects trie nodes emitted by Trie.Prove.
type nodeSet struct {
	nodes map[common.Hash][]byte
}

func newNodeSet() *nodeSet {
	return &nodeSet{nodes: make(map[common.Hash][]byte)}
}

func (s *nodeSet) Put(key, value []byte) error {
	s.nodes[common.BytesToHash(key)] = common.CopyBytes(value)
	return nil
}

func (s *nodeSet) Delete(key []byte) error {
	delete(s.nodes, common.BytesToHash(key))
	return nil
}

// sorted returns the collected nodes ordered by their hash so equal
// key sets always yield byte-identical proofs.
func (s *nodeSet) sorted() ([][]byte, error) {
	if len(s.nodes) > MaxProofNodes {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyNodes, len(s.nodes), MaxProofNodes)
	}
	hashes := make([]common.Hash, 0, len(s.nodes))
	for h, n := range s.nodes {
		if len(n) > MaxNodeSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrNodeTooLarge, len(n))
		}
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
	})
	out := make([][]byte, len(hashes))
	for i, h := range hashes {
		out[i] = s.nodes[h]
	}
	return out, nil
}

// Build proves keys (present or absent) against the trie's current
// root. The trie must be an opened, committed trie. An empty trie has
// no nodes to prove against and is refused.
func Build(tr *gethtrie.Trie, height uint64, keys []types.Key) (*types.Proof, error) {
	if len(keys) == 0 || len(keys) > MaxProofKeys {
		return nil, fmt.Errorf("%w: %d", ErrTooManyKeys, len(keys))
	}
	root := tr.Hash()
	if root == gethtypes.EmptyRootHash {
		return nil, ErrEmptyTrie
	}
	set := newNodeSet()
	for _, k := range keys {
		if err := tr.Prove(k[:], set); err != nil {
			return nil, fmt.Errorf("proof: prove %s: %w", k, err)
		}
	}
	nodes, err := set.sorted()
	if err != nil {
		return nil, err
	}
	return &types.Proof{
		Version: types.ProofVersion,
		Height:  height,
		Root:    types.Hash(root),
		Nodes:   nodes,
	}, nil
}

// loadNodes indexes proof nodes by hash, enforcing the node limits.
func loadNodes(nodes [][]byte) (*memorydb.Database, bool) {
	if len(nodes) == 0 || len(nodes) > MaxProofNodes {
		return nil, false
	}
	db := memorydb.New()
	for _, n := range nodes {
		if len(n) == 0 || len(n) > MaxNodeSize {
			return nil, false
		}
		if err := db.Put(crypto.Keccak256(n), n); err != nil {
			return nil, false
		}
	}
	return db, true
}

// Verify reports whether p proves that each keys[i] maps to values[i]
// under root as committed at height. A nil values[i] asserts that
// keys[i] is absent.
func Verify(p *types.Proof, height uint64, root types.Hash, keys []types.Key, values [][]byte) bool {
	if p == nil || p.Version != types.ProofVersion || p.Height != height || p.Root != root {
		return false
	}
	if len(keys) == 0 || len(keys) > MaxProofKeys || len(keys) != len(values) {
		return false
	}
	db, ok := loadNodes(p.Nodes)
	if !ok {
		return false
	}
	for i, k := range keys {
		got, err := gethtrie.VerifyProof(common.Hash(root), k[:], db)
		if err != nil {
			return false
		}
		if values[i] == nil {
			if got != nil {
				return false
			}
			continue
		}
		if !bytes.Equal(got, values[i]) {
			return false
		}
	}
	return true
}
