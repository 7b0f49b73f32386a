package store

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	ethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// Databases groups the two backends a node persists to: the trie
// node database behind the authenticated store, and the ledger
// database holding the height index, commit metadata and event log.
type Databases struct {
	State  ethdb.Database
	Ledger *leveldb.DB
}

// OpenMemory returns in-memory backends for tests and simulation.
func OpenMemory() (*Databases, error) {
	ledger, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory ledger db: %w", err)
	}
	return &Databases{
		State:  rawdb.NewDatabase(memorydb.New()),
		Ledger: ledger,
	}, nil
}

// OpenDisk opens (or creates) both backends under dir.
func OpenDisk(dir string, cacheMB, handles int) (*Databases, error) {
	kv, err := ethleveldb.New(filepath.Join(dir, "state"), cacheMB, handles, "nullspace/state/", false)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	ledger, err := leveldb.OpenFile(filepath.Join(dir, "ledger"), &opt.Options{
		BlockCacheCapacity:     cacheMB / 2 * opt.MiB,
		OpenFilesCacheCapacity: handles / 2,
	})
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	return &Databases{
		State:  rawdb.NewDatabase(kv),
		Ledger: ledger,
	}, nil
}

// Close closes both backends.
func (d *Databases) Close() error {
	return errors.Join(d.State.Close(), d.Ledger.Close())
}
