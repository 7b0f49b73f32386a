// Package server provides the engine-side wrapper that enforces the
// ledger call order and routes capability-gated calls.
package server

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// lifecycleState is a state in the ledger call-order state machine.
type lifecycleState uint32

const (
	// stateInit: waiting for Handshake. No other calls allowed.
	stateInit lifecycleState = iota
	// stateReady: Handshake complete. CheckTx, Query and Simulate may
	// run concurrently; ApplyBlock and the proposal calls are
	// sequential.
	stateReady
	// stateApplying: ApplyBlock is running.
	stateApplying
	// stateHalted: ApplyBlock returned a halt. Reads stay available,
	// blocks are refused.
	stateHalted
)

func (s lifecycleState) String() string {
	switch s {
	case stateInit:
		return "Init"
	case stateReady:
		return "Ready"
	case stateApplying:
		return "Applying"
	case stateHalted:
		return "Halted"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// LifecycleGuard enforces the call-order state machine. The engine
// wraps the ledger with it.
type LifecycleGuard struct {
	state atomic.Uint32
	// Serializes ApplyBlock and the proposal calls.
	seqMu         sync.Mutex
	handshakeDone atomic.Bool
}

// NewLifecycleGuard creates a guard in the Init state.
func NewLifecycleGuard() *LifecycleGuard {
	g := &LifecycleGuard{}
	g.state.Store(uint32(stateInit))
	return g
}

// State returns the current lifecycle state.
func (g *LifecycleGuard) State() string {
	return lifecycleState(g.state.Load()).String()
}

// AcquireHandshake transitions Init → Ready.
// Panics if not in Init state.
func (g *LifecycleGuard) AcquireHandshake() {
	if !g.state.CompareAndSwap(uint32(stateInit), uint32(stateReady)) {
		panic(fmt.Sprintf("github.com/blockberries/nullspace: Handshake called in state %s (expected Init)",
			lifecycleState(g.state.Load())))
	}
}

// CompleteHandshake marks handshake as done, enabling concurrent calls.
func (g *LifecycleGuard) CompleteHandshake() {
	g.handshakeDone.Store(true)
}

// FailHandshake rolls back state to Init if handshake fails.
func (g *LifecycleGuard) FailHandshake() {
	g.state.Store(uint32(stateInit))
}

// AcquireApply transitions Ready → Applying. It blocks while another
// sequential call is in progress and returns false without blocking
// further if the ledger is halted.
// Panics if called before Handshake.
func (g *LifecycleGuard) AcquireApply() bool {
	g.seqMu.Lock()
	switch state := lifecycleState(g.state.Load()); state {
	case stateReady:
		g.state.Store(uint32(stateApplying))
		return true
	case stateHalted:
		g.seqMu.Unlock()
		return false
	default:
		g.seqMu.Unlock()
		panic(fmt.Sprintf("github.com/blockberries/nullspace: ApplyBlock called in state %s (expected Ready)", state))
	}
}

// CompleteApply transitions Applying → Ready. Used for every
// non-halting outcome, including rejected blocks.
func (g *LifecycleGuard) CompleteApply() {
	g.state.Store(uint32(stateReady))
	g.seqMu.Unlock()
}

// FailApply transitions Applying → Halted. There is no way back.
func (g *LifecycleGuard) FailApply() {
	g.state.Store(uint32(stateHalted))
	g.seqMu.Unlock()
}

// AcquireSequential takes the sequential lock for a proposal call.
// Panics if called before Handshake.
func (g *LifecycleGuard) AcquireSequential(method string) {
	g.seqMu.Lock()
	if !g.handshakeDone.Load() {
		g.seqMu.Unlock()
		panic(fmt.Sprintf("github.com/blockberries/nullspace: %s called before Handshake completed", method))
	}
}

// ReleaseSequential releases the lock taken by AcquireSequential.
func (g *LifecycleGuard) ReleaseSequential() {
	g.seqMu.Unlock()
}

// CheckConcurrent verifies that concurrent calls are allowed
// (any state after Handshake). Panics if handshake has not completed.
func (g *LifecycleGuard) CheckConcurrent() {
	if !g.handshakeDone.Load() {
		panic("github.com/blockberries/nullspace: concurrent call before Handshake completed")
	}
}

// IsReady returns true if the guard is in the Ready state.
func (g *LifecycleGuard) IsReady() bool {
	return lifecycleState(g.state.Load()) == stateReady
}

// IsHalted returns true once ApplyBlock has halted.
func (g *LifecycleGuard) IsHalted() bool {
	return lifecycleState(g.state.Load()) == stateHalted
}
