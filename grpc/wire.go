package nullspacegrpc

import "github.com/blockberries/nullspace/types"

// Wrapper types for RPCs whose interface signatures don't map to a
// single request/response struct. Used only at the gRPC boundary.

// CheckTxRequest wraps the parameter of Lifecycle.CheckTx.
type CheckTxRequest struct {
	Tx types.Transaction `cramberry:"1"`
}

// AvailableSnapshotsRequest is the (empty) request for StateSync.AvailableSnapshots.
type AvailableSnapshotsRequest struct{}

// AvailableSnapshotsResponse wraps the return value of StateSync.AvailableSnapshots.
type AvailableSnapshotsResponse struct {
	Snapshots []types.SnapshotDescriptor `cramberry:"1"`
}

// ExportSnapshotRequest wraps parameters for StateSync.ExportSnapshot.
type ExportSnapshotRequest struct {
	Height uint64 `cramberry:"1"`
	Format uint32 `cramberry:"2"`
}

// SnapshotMessage is a tagged union carrying either a descriptor
// (first message) or a chunk (subsequent messages). It frames both
// snapshot streams.
type SnapshotMessage struct {
	Descriptor *types.SnapshotDescriptor `cramberry:"1"`
	Chunk      *types.SnapshotChunk      `cramberry:"2"`
}

// SimulateRequest wraps the parameter of Simulator.Simulate.
type SimulateRequest struct {
	Tx types.Transaction `cramberry:"1"`
}
