// Package eventlog is the append-only, durable log of applied blocks.
// Each record carries a block's transactions with the events and
// receipts they produced, so a node can replay the gap between the
// log and the state store after a crash without re-delivery.
package eventlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/blockberries/nullspace/types"
)

// recordVersion prefixes every stored record.
const recordVersion byte = 1

// MaxRange bounds the number of records returned by one Range call.
const MaxRange = 256

var (
	ErrNotFound     = errors.New("eventlog: record not found")
	ErrOutOfOrder   = errors.New("eventlog: append out of order")
	ErrCorrupt      = errors.New("eventlog: corrupt record")
	ErrRangeTooWide = errors.New("eventlog: range too wide")
)

var (
	metaHeight   = []byte("m/events-height")
	recordPrefix = []byte("b/")
)

func recordKey(height uint64) []byte {
	k := make([]byte, len(recordPrefix)+8)
	copy(k, recordPrefix)
	binary.BigEndian.PutUint64(k[len(recordPrefix):], height)
	return k
}

// Log is safe for concurrent readers and one appender.
type Log struct {
	mu     sync.RWMutex
	db     *leveldb.DB
	logger *slog.Logger
	height uint64
	any    bool
}

// Open loads the log stored in db.
func Open(db *leveldb.DB, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{db: db, logger: logger.With("component", "eventlog")}
	raw, err := db.Get(metaHeight, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("eventlog: read height: %w", err)
	case len(raw) != 8:
		return nil, fmt.Errorf("%w: height record is %d bytes", ErrCorrupt, len(raw))
	}
	l.height = binary.BigEndian.Uint64(raw)
	l.any = true
	return l, nil
}

// Height returns the height of the last appended record. ok is false
// for an empty log.
func (l *Log) Height() (height uint64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.height, l.any
}

// Append durably writes rec, which must directly follow the last
// record (or be the first). The write is synced before returning.
func (l *Log) Append(rec types.BlockRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.any && rec.Height != l.height+1 {
		return fmt.Errorf("%w: have %d, got %d", ErrOutOfOrder, l.height, rec.Height)
	}
	body, err := cramberry.Marshal(rec)
	if err != nil {
		return fmt.Errorf("eventlog: encode record %d: %w", rec.Height, err)
	}
	value := make([]byte, 0, len(body)+1)
	value = append(value, recordVersion)
	value = append(value, body...)

	var h [8]byte
	binary.BigEndian.PutUint64(h[:], rec.Height)
	batch := new(leveldb.Batch)
	batch.Put(recordKey(rec.Height), value)
	batch.Put(metaHeight, h[:])
	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("eventlog: append %d: %w", rec.Height, err)
	}
	l.height, l.any = rec.Height, true
	l.logger.Debug("Appended block record", "height", rec.Height, "events", len(rec.Events))
	return nil
}

// Get returns the record at height.
func (l *Log) Get(height uint64) (types.BlockRecord, error) {
	raw, err := l.db.Get(recordKey(height), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return types.BlockRecord{}, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}
	if err != nil {
		return types.BlockRecord{}, fmt.Errorf("eventlog: read %d: %w", height, err)
	}
	return decode(height, raw)
}

func decode(height uint64, raw []byte) (types.BlockRecord, error) {
	var rec types.BlockRecord
	if len(raw) < 2 || raw[0] != recordVersion {
		return rec, fmt.Errorf("%w: height %d", ErrCorrupt, height)
	}
	if err := cramberry.Unmarshal(raw[1:], &rec); err != nil {
		return rec, fmt.Errorf("%w: height %d: %v", ErrCorrupt, height, err)
	}
	if rec.Height != height {
		return rec, fmt.Errorf("%w: record at %d claims height %d", ErrCorrupt, height, rec.Height)
	}
	return rec, nil
}

// Range returns the records in [from, to]. Heights outside the log
// are not an error; the result is shorter.
func (l *Log) Range(from, to uint64) ([]types.BlockRecord, error) {
	if to < from {
		return nil, nil
	}
	if to-from >= MaxRange {
		return nil, fmt.Errorf("%w: %d records", ErrRangeTooWide, to-from+1)
	}
	it := l.db.NewIterator(&util.Range{Start: recordKey(from), Limit: recordKey(to + 1)}, nil)
	defer it.Release()
	var out []types.BlockRecord
	for it.Next() {
		height := binary.BigEndian.Uint64(it.Key()[len(recordPrefix):])
		rec, err := decode(height, it.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("eventlog: iterate: %w", err)
	}
	return out, nil
}
