// Package store implements the authenticated, height-versioned
// key/value store behind the ledger.
//
// State lives in a Merkle-Patricia trie; each Apply commits one batch,
// advances the height by exactly one and records the resulting root in
// the ledger database. Any committed height can be read and proven
// until the node database is pruned.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/blockberries/nullspace/proof"
	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/types"
)

var (
	// ErrUnknownHeight is returned for heights that were never committed.
	ErrUnknownHeight = errors.New("store: unknown height")
	// ErrNotInitialized is returned before the genesis batch is applied.
	ErrNotInitialized = errors.New("store: not initialized")
	// ErrAlreadyInitialized is returned when restoring into a store
	// that already holds state.
	ErrAlreadyInitialized = errors.New("store: already initialized")
	// ErrStorage wraps failures of the underlying databases.
	ErrStorage = errors.New("store: storage failure")
)

// EmptyRoot is the root of the empty key space.
var EmptyRoot = types.Hash(gethtypes.EmptyRootHash)

var (
	metaStateHeight = []byte("m/state-height")
	rootPrefix      = []byte("r/")
)

func rootKey(height uint64) []byte {
	k := make([]byte, len(rootPrefix)+8)
	copy(k, rootPrefix)
	binary.BigEndian.PutUint64(k[len(rootPrefix):], height)
	return k
}

// Store is the authenticated state store. Reads are safe for
// concurrent use; Apply and Restore serialise on a write lock and
// must only be called by the single writer (the transition pipeline).
type Store struct {
	mu          sync.RWMutex
	triedb      *triedb.Database
	meta        *leveldb.DB
	logger      *slog.Logger
	initialized bool
	height      uint64
	root        common.Hash
}

// Open opens a store over the given backends and loads the last
// committed height, if any.
func Open(disk ethdb.Database, meta *leveldb.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		triedb: triedb.NewDatabase(disk, triedb.HashDefaults),
		meta:   meta,
		logger: logger.With("component", "store"),
		root:   gethtypes.EmptyRootHash,
	}
	raw, err := meta.Get(metaStateHeight, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("store: read state height: %w", err)
	case len(raw) != 8:
		return nil, fmt.Errorf("store: corrupt state height record (%d bytes)", len(raw))
	}
	s.height = binary.BigEndian.Uint64(raw)
	root, err := s.rootAt(s.height)
	if err != nil {
		return nil, err
	}
	s.root = root
	s.initialized = true
	s.logger.Info("Loaded committed state", "height", s.height, "root", root.Hex())
	return s, nil
}

// Height returns the last committed height. ok is false before genesis.
func (s *Store) Height() (height uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height, s.initialized
}

// Root returns the root at the last committed height.
func (s *Store) Root() types.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.Hash(s.root)
}

// Last returns the last committed height and its root together. ok is
// false before genesis.
func (s *Store) Last() (height uint64, root types.Hash, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height, types.Hash(s.root), s.initialized
}

// RootAt returns the root committed at height.
func (s *Store) RootAt(height uint64) (types.Hash, error) {
	root, err := s.rootAt(height)
	return types.Hash(root), err
}

func (s *Store) rootAt(height uint64) (common.Hash, error) {
	raw, err := s.meta.Get(rootKey(height), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrUnknownHeight, height)
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: read root at %d: %w", ErrStorage, height, err)
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("store: corrupt root record at %d", height)
	}
	return common.BytesToHash(raw), nil
}

func (s *Store) openTrie(root common.Hash) (*gethtrie.Trie, error) {
	tr, err := gethtrie.New(gethtrie.TrieID(root), s.triedb)
	if err != nil {
		return nil, fmt.Errorf("%w: open trie %s: %w", ErrStorage, root.Hex(), err)
	}
	return tr, nil
}

// Get reads key at the last committed height. A nil value with a nil
// error means the key is absent.
func (s *Store) Get(key types.Key) ([]byte, error) {
	s.mu.RLock()
	root := s.root
	s.mu.RUnlock()
	return s.getAt(root, key)
}

// GetAt reads key at a committed height.
func (s *Store) GetAt(height uint64, key types.Key) ([]byte, error) {
	root, err := s.rootAt(height)
	if err != nil {
		return nil, err
	}
	return s.getAt(root, key)
}

func (s *Store) getAt(root common.Hash, key types.Key) ([]byte, error) {
	tr, err := s.openTrie(root)
	if err != nil {
		return nil, err
	}
	v, err := tr.Get(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrStorage, key, err)
	}
	return v, nil
}

// Reader returns a state.Reader pinned to a committed height.
func (s *Store) Reader(height uint64) (state.Reader, error) {
	root, err := s.rootAt(height)
	if err != nil {
		return nil, err
	}
	tr, err := s.openTrie(root)
	if err != nil {
		return nil, err
	}
	return &trieReader{tr: tr}, nil
}

type trieReader struct {
	mu sync.Mutex
	tr *gethtrie.Trie
}

func (r *trieReader) Get(key types.Key) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, err := r.tr.Get(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrStorage, key, err)
	}
	return v, nil
}

// Working returns a mutable view over the last committed state for
// building the next height. Mutations stay in memory until the caller
// passes Changes to Apply.
func (s *Store) Working() (*Working, error) {
	s.mu.RLock()
	root := s.root
	s.mu.RUnlock()
	tr, err := s.openTrie(root)
	if err != nil {
		return nil, err
	}
	return &Working{base: root, trie: tr, changes: make(map[types.Key]Change)}, nil
}

// Apply commits a batch as the next height and returns its root. The
// first batch ever applied is height 0. Changes are applied in key
// order, so the root does not depend on the order they were staged.
func (s *Store) Apply(changes []Change) (types.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := uint64(0)
	if s.initialized {
		next = s.height + 1
	}
	tr, err := s.openTrie(s.root)
	if err != nil {
		return types.Hash{}, err
	}
	sorted := append([]Change(nil), changes...)
	SortChanges(sorted)
	for _, c := range sorted {
		if c.Delete {
			err = tr.Delete(c.Key[:])
		} else {
			if len(c.Value) == 0 {
				return types.Hash{}, fmt.Errorf("store: empty value for key %s", c.Key)
			}
			err = tr.Update(c.Key[:], c.Value)
		}
		if err != nil {
			return types.Hash{}, fmt.Errorf("store: stage %s: %w", c.Key, err)
		}
	}
	root, err := s.commitTrie(tr, next)
	if err != nil {
		return types.Hash{}, err
	}
	if err := s.writeHeight(next, root); err != nil {
		return types.Hash{}, err
	}
	s.height, s.root, s.initialized = next, root, true
	s.logger.Debug("Committed state", "height", next, "root", root.Hex(), "changes", len(sorted))
	return types.Hash(root), nil
}

func (s *Store) commitTrie(tr *gethtrie.Trie, height uint64) (common.Hash, error) {
	root, nodes := tr.Commit(false)
	if nodes == nil {
		return root, nil
	}
	merged := trienode.NewMergedNodeSet()
	if err := merged.Merge(nodes); err != nil {
		return common.Hash{}, fmt.Errorf("store: merge nodes: %w", err)
	}
	if err := s.triedb.Update(root, s.root, height, merged, nil); err != nil {
		return common.Hash{}, fmt.Errorf("store: update trie db: %w", err)
	}
	if err := s.triedb.Commit(root, false); err != nil {
		return common.Hash{}, fmt.Errorf("store: commit trie db: %w", err)
	}
	return root, nil
}

func (s *Store) writeHeight(height uint64, root common.Hash) error {
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], height)
	batch := new(leveldb.Batch)
	batch.Put(rootKey(height), root.Bytes())
	batch.Put(metaStateHeight, h[:])
	if err := s.meta.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("%w: write height %d: %w", ErrStorage, height, err)
	}
	return nil
}

// Prove builds a bounded proof for keys against the root at height.
func (s *Store) Prove(height uint64, keys []types.Key) (*types.Proof, error) {
	root, err := s.rootAt(height)
	if err != nil {
		return nil, err
	}
	tr, err := s.openTrie(root)
	if err != nil {
		return nil, err
	}
	return proof.Build(tr, height, keys)
}

// Close releases the trie database caches. The backends are owned by
// the caller.
func (s *Store) Close() error {
	return s.triedb.Close()
}
