package ledger

import (
	"context"
	"fmt"

	"github.com/blockberries/nullspace/proof"
	"github.com/blockberries/nullspace/types"
)

// ---------------------------------------------------------------------------
// StateSync
// ---------------------------------------------------------------------------

func (a *App) AvailableSnapshots(_ context.Context) ([]types.SnapshotDescriptor, error) {
	last, ok := a.pipeline.Last()
	if !ok {
		return nil, nil
	}
	n, err := a.countChunks(last.Height)
	if err != nil {
		return nil, err
	}
	return []types.SnapshotDescriptor{{
		Height: last.Height,
		Format: types.SnapshotFormat,
		Chunks: n,
		Root:   last.Root,
	}}, nil
}

// maxRetryIndices caps the chunk indices requested by one
// ImportRetryChunks result.
const maxRetryIndices = 256

// countChunks walks the leaves at height the way ExportSnapshot does.
// Chunk i starts at the successor of the last key of chunk i-1, or at
// the zero key for chunk 0, so consecutive range proofs leave no gap.
func (a *App) countChunks(height uint64) (uint32, error) {
	var n uint32
	origin := types.Key{}
	for {
		rp, _, err := a.store.Leaves(height, origin, a.cfg.SnapshotChunkLeaves)
		if err != nil {
			return 0, err
		}
		if rp == nil {
			return n, nil
		}
		n++
		if n > proof.MaxSnapshotChunks {
			return 0, fmt.Errorf("snapshot at height %d exceeds %d chunks", height, proof.MaxSnapshotChunks)
		}
		var more bool
		origin, more = successor(types.Key(rp.Keys[len(rp.Keys)-1]))
		if !more {
			return n, nil
		}
	}
}

func (a *App) ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error) {
	if format != types.SnapshotFormat {
		return nil, nil, fmt.Errorf("unsupported snapshot format %d", format)
	}
	root, err := a.store.RootAt(height)
	if err != nil {
		return nil, nil, err
	}
	n, err := a.countChunks(height)
	if err != nil {
		return nil, nil, err
	}
	desc := &types.SnapshotDescriptor{Height: height, Format: format, Chunks: n, Root: root}

	ch := make(chan types.SnapshotChunk)
	go func() {
		defer close(ch)
		origin := types.Key{}
		for i := uint32(0); i < n; i++ {
			rp, _, err := a.store.Leaves(height, origin, a.cfg.SnapshotChunkLeaves)
			if err != nil || rp == nil {
				a.logger.Error("Snapshot export stopped", "height", height, "chunk", i, "err", err)
				return
			}
			select {
			case ch <- types.SnapshotChunk{Index: i, Range: *rp}:
			case <-ctx.Done():
				return
			}
			origin, _ = successor(types.Key(rp.Keys[len(rp.Keys)-1]))
		}
	}()
	return ch, desc, nil
}

// ImportSnapshot verifies every chunk's range proof against the
// descriptor root, then rebuilds state from the concatenated leaves.
func (a *App) ImportSnapshot(ctx context.Context, desc types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error) {
	if desc.Format != types.SnapshotFormat {
		return types.ImportResult{Status: types.ImportReject, Reason: fmt.Sprintf("unsupported format %d", desc.Format)}, nil
	}
	if desc.Chunks == 0 {
		return types.ImportResult{Status: types.ImportReject, Reason: "snapshot has no chunks"}, nil
	}
	if desc.Chunks > proof.MaxSnapshotChunks {
		return types.ImportResult{
			Status: types.ImportReject,
			Reason: fmt.Sprintf("snapshot declares %d chunks, limit is %d", desc.Chunks, proof.MaxSnapshotChunks),
		}, nil
	}
	if _, ok := a.pipeline.Last(); ok {
		return types.ImportResult{Status: types.ImportReject, Reason: "ledger already has committed state"}, nil
	}

	received := make(map[uint32]types.RangeProof)
	for c := range chunks {
		if c.Index < desc.Chunks {
			received[c.Index] = c.Range
		}
		if err := ctx.Err(); err != nil {
			return types.ImportResult{}, err
		}
	}
	var missing []uint32
	for i := uint32(0); i < desc.Chunks && len(missing) < maxRetryIndices; i++ {
		if _, ok := received[i]; !ok {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return types.ImportResult{Status: types.ImportRetryChunks, RetryIndices: missing}, nil
	}

	var keys, values [][]byte
	origin := types.Key{}
	for i := uint32(0); i < desc.Chunks; i++ {
		rp := received[i]
		more, ok := proof.VerifyRange(&rp, desc.Root, origin[:])
		a.proofMetrics.RecordVerify(ok)
		if !ok || rp.Height != desc.Height {
			return types.ImportResult{Status: types.ImportRetryChunks, RetryIndices: []uint32{i}}, nil
		}
		last := i == desc.Chunks-1
		if more == last {
			return types.ImportResult{
				Status: types.ImportReject,
				Reason: fmt.Sprintf("chunk %d: descriptor declares %d chunks but proof says more=%t", i, desc.Chunks, more),
			}, nil
		}
		for _, k := range rp.Keys {
			if len(k) != len(types.Key{}) {
				return types.ImportResult{Status: types.ImportReject, Reason: fmt.Sprintf("chunk %d: %d-byte key", i, len(k))}, nil
			}
		}
		keys = append(keys, rp.Keys...)
		values = append(values, rp.Values...)
		if !last {
			origin, _ = successor(types.Key(rp.Keys[len(rp.Keys)-1]))
		}
	}

	if err := a.pipeline.Restore(desc.Height, desc.Root, keys, values); err != nil {
		return types.ImportResult{Status: types.ImportReject, Reason: err.Error()}, nil
	}
	a.logger.Info("Imported snapshot", "height", desc.Height, "root", desc.Root.String(), "leaves", len(keys))
	root := desc.Root
	return types.ImportResult{Status: types.ImportOK, Root: &root}, nil
}

// successor returns the key immediately after k. ok is false if k is
// the largest key.
func successor(k types.Key) (next types.Key, ok bool) {
	next = k
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			return next, true
		}
	}
	return next, false
}
