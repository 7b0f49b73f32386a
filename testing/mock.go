// Package nullspacetest provides test utilities for code that drives
// a ledger: a configurable mock, a harness, transaction builders, and
// a call-order compliance suite.
package nullspacetest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/blockberries/nullspace"
	"github.com/blockberries/nullspace/types"
)

// Compile-time check that MockApp satisfies all interfaces.
var _ nullspace.Application = (*MockApp)(nil)

// MockApp is a configurable mock ledger for engine testing. Every
// method is configurable via a function field; unconfigured methods
// return zero-value defaults.
//
// MockApp implements every optional interface so it can exercise
// capability discovery. DeclaredCapabilities controls what the
// handshake advertises.
type MockApp struct {
	mu sync.Mutex

	// DeclaredCapabilities controls the bitfield returned at handshake.
	DeclaredCapabilities types.Capabilities

	HandshakeFn          func(context.Context, types.HandshakeRequest) (types.HandshakeResponse, error)
	CheckTxFn            func(context.Context, types.Transaction) (types.Verdict, error)
	ApplyBlockFn         func(context.Context, types.Block) (types.StateTransitionResult, error)
	QueryFn              func(context.Context, types.StateQuery) (types.StateQueryResult, error)
	BuildProposalFn      func(context.Context, types.ProposalContext) (types.BuiltProposal, error)
	VerifyProposalFn     func(context.Context, types.ReceivedProposal) (types.ProposalVerdict, error)
	AvailableSnapshotsFn func(context.Context) ([]types.SnapshotDescriptor, error)
	ExportSnapshotFn     func(context.Context, uint64, uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error)
	ImportSnapshotFn     func(context.Context, types.SnapshotDescriptor, <-chan types.SnapshotChunk) (types.ImportResult, error)
	SimulateFn           func(context.Context, types.Transaction) (types.SimulationResult, error)

	// Call counters (atomic for concurrent access).
	HandshakeCalls  atomic.Int64
	CheckTxCalls    atomic.Int64
	ApplyBlockCalls atomic.Int64
	QueryCalls      atomic.Int64

	// Applied records every block the default ApplyBlock accepted.
	Applied []types.Block
	height  uint64
}

func (m *MockApp) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	m.HandshakeCalls.Add(1)
	if m.HandshakeFn != nil {
		return m.HandshakeFn(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.HandshakeResponse{
		LastBlock:    types.BlockID{Height: m.height},
		Capabilities: m.DeclaredCapabilities,
	}, nil
}

func (m *MockApp) CheckTx(ctx context.Context, tx types.Transaction) (types.Verdict, error) {
	m.CheckTxCalls.Add(1)
	if m.CheckTxFn != nil {
		return m.CheckTxFn(ctx, tx)
	}
	return types.Verdict{}, nil
}

// ApplyBlock defaults to accepting consecutive heights, treating a
// redelivery as a no-op and emitting one successful receipt per tx.
func (m *MockApp) ApplyBlock(ctx context.Context, block types.Block) (types.StateTransitionResult, error) {
	m.ApplyBlockCalls.Add(1)
	if m.ApplyBlockFn != nil {
		return m.ApplyBlockFn(ctx, block)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch block.Height {
	case m.height:
		return types.StateTransitionResult{StartHeight: m.height, EndHeight: m.height}, nil
	case m.height + 1:
	default:
		return types.StateTransitionResult{}, &nullspace.OutOfOrderHeightError{Expected: m.height + 1, Got: block.Height}
	}
	receipts := make([]types.Receipt, len(block.Txs))
	for i, tx := range block.Txs {
		d, _ := tx.Digest()
		receipts[i] = types.Receipt{TxDigest: d, Success: true}
	}
	m.Applied = append(m.Applied, block)
	m.height = block.Height
	return types.StateTransitionResult{
		StartHeight: block.Height - 1,
		EndHeight:   block.Height,
		Receipts:    receipts,
		NewRoot:     types.Hash{byte(block.Height)},
	}, nil
}

func (m *MockApp) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	m.QueryCalls.Add(1)
	if m.QueryFn != nil {
		return m.QueryFn(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.StateQueryResult{Height: m.height, Code: types.QueryNotFound}, nil
}

func (m *MockApp) BuildProposal(ctx context.Context, pctx types.ProposalContext) (types.BuiltProposal, error) {
	if m.BuildProposalFn != nil {
		return m.BuildProposalFn(ctx, pctx)
	}
	return types.BuiltProposal{}, nil
}

func (m *MockApp) VerifyProposal(ctx context.Context, prop types.ReceivedProposal) (types.ProposalVerdict, error) {
	if m.VerifyProposalFn != nil {
		return m.VerifyProposalFn(ctx, prop)
	}
	return types.ProposalVerdict{Accept: true}, nil
}

func (m *MockApp) AvailableSnapshots(ctx context.Context) ([]types.SnapshotDescriptor, error) {
	if m.AvailableSnapshotsFn != nil {
		return m.AvailableSnapshotsFn(ctx)
	}
	return nil, nil
}

func (m *MockApp) ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error) {
	if m.ExportSnapshotFn != nil {
		return m.ExportSnapshotFn(ctx, height, format)
	}
	ch := make(chan types.SnapshotChunk)
	close(ch)
	return ch, &types.SnapshotDescriptor{Height: height, Format: format}, nil
}

func (m *MockApp) ImportSnapshot(ctx context.Context, desc types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error) {
	if m.ImportSnapshotFn != nil {
		return m.ImportSnapshotFn(ctx, desc, chunks)
	}
	// Drain the channel.
	for range chunks {
	}
	root := desc.Root
	return types.ImportResult{Status: types.ImportOK, Root: &root}, nil
}

func (m *MockApp) Simulate(ctx context.Context, tx types.Transaction) (types.SimulationResult, error) {
	if m.SimulateFn != nil {
		return m.SimulateFn(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, _ := tx.Digest()
	return types.SimulationResult{Height: m.height + 1, Receipt: types.Receipt{TxDigest: d, Success: true}}, nil
}
