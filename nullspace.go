// Package nullspace defines the boundary between a consensus engine
// and the nullspace ledger: a replicated, deterministic state machine
// for a multi-game casino with authenticated state.
//
// The core [Lifecycle] interface is required. All other interfaces
// are optional capabilities discovered via Go type assertion at
// handshake time.
package nullspace

import (
	"context"

	"github.com/blockberries/nullspace/types"
)

// Lifecycle is the core interface every ledger implementation must
// satisfy.
//
// The engine guarantees the following call order:
//  1. Handshake is called exactly once, before anything else.
//  2. ApplyBlock(h) is called for every finalized height h, in order.
//     Redelivery of the last applied height is a no-op.
//  3. CheckTx, Query may be called concurrently at any time after Handshake.
type Lifecycle interface {
	// Handshake is called once on every startup (cold start or restart).
	//
	// With no committed state the ledger builds height 0 from
	// req.Genesis. Otherwise it recovers from its event log and
	// reports the last committed block.
	Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error)

	// CheckTx gate-checks a transaction before it enters the mempool.
	// A rejection never consumes the account nonce.
	//
	// This method MUST be safe for concurrent use.
	CheckTx(ctx context.Context, tx types.Transaction) (types.Verdict, error)

	// ApplyBlock executes a finalized block and commits its state.
	//
	// The block's events and receipts are durable before its state is.
	// A *HaltError means the ledger can no longer make progress; every
	// later call fails with the same error.
	ApplyBlock(ctx context.Context, block types.Block) (types.StateTransitionResult, error)

	// Query reads committed ledger state, optionally with a proof.
	//
	// This method MUST be safe for concurrent use, including concurrent
	// with ApplyBlock (reads see the last committed state).
	Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error)
}

// ProposalControl lets the ledger choose the transactions of the next
// block from its mempool.
//
// Declared via: types.CapProposalControl in HandshakeResponse.Capabilities
type ProposalControl interface {
	// BuildProposal is called when this node is the proposer. The
	// result takes each account's next expected nonce in round-robin
	// order.
	BuildProposal(ctx context.Context, pctx types.ProposalContext) (types.BuiltProposal, error)

	// VerifyProposal runs structural validation on a received
	// proposal. It MUST NOT execute transactions and MUST be
	// deterministic.
	VerifyProposal(ctx context.Context, proposal types.ReceivedProposal) (types.ProposalVerdict, error)
}

// StateSync enables snapshot-based bootstrapping. Every chunk carries
// a range proof against the snapshot root.
//
// Declared via: types.CapStateSync in HandshakeResponse.Capabilities
type StateSync interface {
	// AvailableSnapshots lists snapshots the ledger can export.
	AvailableSnapshots(ctx context.Context) ([]types.SnapshotDescriptor, error)

	// ExportSnapshot exports a snapshot as a pull-based stream of chunks.
	//
	// The returned channel yields chunks in order and is closed after
	// the last one. The caller controls backpressure by the rate at
	// which it reads.
	ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error)

	// ImportSnapshot rebuilds state from a push-based stream of
	// chunks. The ledger must hold no committed state.
	ImportSnapshot(ctx context.Context, descriptor types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error)
}

// Simulator dry-runs transactions.
//
// Declared via: types.CapSimulation in HandshakeResponse.Capabilities
type Simulator interface {
	// Simulate executes tx against the last committed state as if it
	// were the only transaction of the next block. Nothing is
	// persisted.
	//
	// This method MUST be safe for concurrent use.
	Simulate(ctx context.Context, tx types.Transaction) (types.SimulationResult, error)
}

// Application embeds every interface. The built-in ledger implements
// it; alternative implementations need only Lifecycle.
type Application interface {
	Lifecycle
	ProposalControl
	StateSync
	Simulator
}

// Connection represents a transport-agnostic connection to a ledger.
// Both gRPC clients and in-process adapters implement this.
type Connection interface {
	Lifecycle

	// Capabilities returns the capabilities discovered at handshake.
	// Must only be called after Handshake completes.
	Capabilities() types.Capabilities

	// AsProposalControl returns the ProposalControl interface if
	// available, or nil if the ledger does not support it.
	AsProposalControl() ProposalControl

	// AsStateSync returns the StateSync interface if available.
	AsStateSync() StateSync

	// AsSimulator returns the Simulator interface if available.
	AsSimulator() Simulator

	// Close terminates the connection.
	Close() error
}
