package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blockberries/nullspace"
	"github.com/blockberries/nullspace/types"
)

// Server wraps a ledger with call-order enforcement and capability
// routing. The consensus engine talks to the ledger only through it.
type Server struct {
	app    nullspace.Lifecycle
	guard  *LifecycleGuard
	caps   types.Capabilities
	logger *slog.Logger

	// Optional interfaces (nil if not supported).
	proposalCtl nullspace.ProposalControl
	stateSync   nullspace.StateSync
	simulator   nullspace.Simulator

	mu     sync.Mutex
	halt   *nullspace.HaltError
	haltCh chan struct{}
	last   types.StateTransitionResult
}

var _ nullspace.Connection = (*Server)(nil)

// New creates a new Server wrapping the given ledger. A nil logger
// uses slog.Default.
func New(app nullspace.Lifecycle, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		app:    app,
		guard:  NewLifecycleGuard(),
		logger: logger,
		haltCh: make(chan struct{}),
	}
	// Pre-discover optional interfaces (validated after handshake).
	s.proposalCtl, _ = app.(nullspace.ProposalControl)
	s.stateSync, _ = app.(nullspace.StateSync)
	s.simulator, _ = app.(nullspace.Simulator)
	return s
}

// Handshake performs the startup handshake, validates capability
// declarations, and transitions the state machine to Ready.
func (s *Server) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	s.guard.AcquireHandshake()

	resp, err := s.app.Handshake(ctx, req)
	if err != nil {
		s.guard.FailHandshake()
		return resp, err
	}

	if err := discoverCapabilities(s.app, resp.Capabilities, s.logger); err != nil {
		s.guard.FailHandshake()
		return resp, err
	}

	s.caps = resp.Capabilities
	s.guard.CompleteHandshake()
	s.logger.Info("Handshake complete",
		"height", resp.LastBlock.Height,
		"root", resp.LastBlock.Root.String(),
		"capabilities", resp.Capabilities.String(),
		"recovered", resp.Recovered,
	)
	return resp, nil
}

// CheckTx gate-checks a transaction for mempool admission.
// Safe for concurrent use.
func (s *Server) CheckTx(ctx context.Context, tx types.Transaction) (types.Verdict, error) {
	s.guard.CheckConcurrent()
	return s.app.CheckTx(ctx, tx)
}

// ApplyBlock executes and commits a finalized block. After a halt
// every call returns the same *HaltError without reaching the ledger.
func (s *Server) ApplyBlock(ctx context.Context, block types.Block) (types.StateTransitionResult, error) {
	if !s.guard.AcquireApply() {
		return types.StateTransitionResult{}, s.Halted()
	}

	result, err := s.app.ApplyBlock(ctx, block)
	if h, ok := nullspace.IsHalt(err); ok {
		s.mu.Lock()
		s.halt = h
		s.mu.Unlock()
		s.guard.FailApply()
		close(s.haltCh)
		s.logger.Error("Ledger halted", "height", h.Height, "reason", h.Reason)
		return result, err
	}
	if err == nil {
		s.mu.Lock()
		s.last = result
		s.mu.Unlock()
	}
	s.guard.CompleteApply()
	return result, err
}

// Query reads ledger state. Safe for concurrent use.
func (s *Server) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	s.guard.CheckConcurrent()
	return s.app.Query(ctx, req)
}

// Capabilities returns the ledger's declared capabilities.
// Only valid after Handshake completes.
func (s *Server) Capabilities() types.Capabilities {
	return s.caps
}

// Halted returns the halt that stopped the ledger, or nil.
func (s *Server) Halted() *nullspace.HaltError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halt
}

// HaltNotify returns a channel closed when the ledger halts.
func (s *Server) HaltNotify() <-chan struct{} {
	return s.haltCh
}

// LastResult returns the result of the most recent successful
// ApplyBlock.
func (s *Server) LastResult() types.StateTransitionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// --- Capability-gated optional methods ---

var errUnsupported = errors.New("github.com/blockberries/nullspace: capability not supported")

// BuildProposal delegates to ProposalControl if supported.
func (s *Server) BuildProposal(ctx context.Context, pctx types.ProposalContext) (types.BuiltProposal, error) {
	if s.proposalCtl == nil {
		return types.BuiltProposal{}, fmt.Errorf("%w: ProposalControl", errUnsupported)
	}
	s.guard.AcquireSequential("BuildProposal")
	defer s.guard.ReleaseSequential()
	return s.proposalCtl.BuildProposal(ctx, pctx)
}

// VerifyProposal delegates to ProposalControl if supported.
// Returns Accept by default if not supported.
func (s *Server) VerifyProposal(ctx context.Context, prop types.ReceivedProposal) (types.ProposalVerdict, error) {
	if s.proposalCtl == nil {
		return types.ProposalVerdict{Accept: true}, nil
	}
	s.guard.AcquireSequential("VerifyProposal")
	defer s.guard.ReleaseSequential()
	return s.proposalCtl.VerifyProposal(ctx, prop)
}

// AvailableSnapshots delegates to StateSync if supported.
func (s *Server) AvailableSnapshots(ctx context.Context) ([]types.SnapshotDescriptor, error) {
	if s.stateSync == nil {
		return nil, fmt.Errorf("%w: StateSync", errUnsupported)
	}
	return s.stateSync.AvailableSnapshots(ctx)
}

// ExportSnapshot delegates to StateSync if supported.
func (s *Server) ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error) {
	if s.stateSync == nil {
		return nil, nil, fmt.Errorf("%w: StateSync", errUnsupported)
	}
	return s.stateSync.ExportSnapshot(ctx, height, format)
}

// ImportSnapshot delegates to StateSync if supported. It holds the
// sequential lock so no block is applied while state is replaced.
func (s *Server) ImportSnapshot(ctx context.Context, desc types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error) {
	if s.stateSync == nil {
		return types.ImportResult{}, fmt.Errorf("%w: StateSync", errUnsupported)
	}
	s.guard.AcquireSequential("ImportSnapshot")
	defer s.guard.ReleaseSequential()
	return s.stateSync.ImportSnapshot(ctx, desc, chunks)
}

// Simulate delegates to Simulator if supported.
// Safe for concurrent use.
func (s *Server) Simulate(ctx context.Context, tx types.Transaction) (types.SimulationResult, error) {
	if s.simulator == nil {
		return types.SimulationResult{}, fmt.Errorf("%w: Simulator", errUnsupported)
	}
	s.guard.CheckConcurrent()
	return s.simulator.Simulate(ctx, tx)
}

// AsProposalControl returns the ProposalControl interface or nil.
func (s *Server) AsProposalControl() nullspace.ProposalControl {
	if s.caps.Has(types.CapProposalControl) {
		return s
	}
	return nil
}

// AsStateSync returns the StateSync interface or nil.
func (s *Server) AsStateSync() nullspace.StateSync {
	if s.caps.Has(types.CapStateSync) {
		return s
	}
	return nil
}

// AsSimulator returns the Simulator interface or nil.
func (s *Server) AsSimulator() nullspace.Simulator {
	if s.caps.Has(types.CapSimulation) {
		return s
	}
	return nil
}

// Close is a no-op for the server wrapper; the owner closes the ledger.
func (s *Server) Close() error { return nil }

// discoverCapabilities checks which optional interfaces the ledger
// implements and verifies consistency with declared capabilities.
func discoverCapabilities(app nullspace.Lifecycle, declared types.Capabilities, logger *slog.Logger) error {
	checks := []struct {
		cap  types.Capabilities
		name string
		has  bool
	}{
		{types.CapProposalControl, "ProposalControl", implements[nullspace.ProposalControl](app)},
		{types.CapStateSync, "StateSync", implements[nullspace.StateSync](app)},
		{types.CapSimulation, "Simulator", implements[nullspace.Simulator](app)},
	}
	for _, c := range checks {
		switch {
		case declared.Has(c.cap) && !c.has:
			return fmt.Errorf("github.com/blockberries/nullspace: ledger declared %s but does not implement %s", c.cap, c.name)
		case !declared.Has(c.cap) && c.has:
			logger.Warn("Ledger implements capability it did not declare; it will not be used", "interface", c.name)
		}
	}
	return nil
}

func implements[T any](app nullspace.Lifecycle) bool {
	_, ok := app.(T)
	return ok
}
