// Package handlers defines the contract between the execution layer
// and the per-domain instruction handlers, and routes instructions to
// them.
//
// Handlers are pure over (state, instruction, height): they read and
// write only through the view they are given, never retain it, and use
// no clock or unseeded randomness.
package handlers

import (
	"errors"
	"fmt"

	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/types"
)

// Env is the block-level context a handler may depend on.
type Env struct {
	Height uint64
	Config types.ChainConfig
}

// Handler applies the instructions of one domain.
type Handler interface {
	Domain() types.Domain
	// Apply returns the events of a successful instruction. A
	// *DomainError rejects the instruction; any other error is a
	// storage fault and aborts the block.
	Apply(env Env, view state.View, signer types.PublicKey, instr types.Instruction) ([]types.Event, error)
}

// Domain error codes, carried on failed receipts and Error events.
const (
	CodeFeatureDisabled = types.CodeDomainBase + iota
	CodeInvalidAmount
	CodeInsufficientFunds
	CodeNotFound
	CodeAlreadyExists
	CodeInvalidMove
	CodeLocked
	CodeSlippage
	CodeInsufficientCollateral
	CodeNoLiquidity
	CodeEpochNotReady
	CodeOverflow
)

// DomainError is a deterministic rejection of an instruction by its
// handler. The transaction still consumes its nonce.
type DomainError struct {
	Code    uint32
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("domain error %d: %s", e.Code, e.Message)
}

// Fail builds a DomainError.
func Fail(code uint32, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsDomainError extracts a DomainError from err.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Router dispatches instructions to the handler of their domain and
// enforces the chain's feature flags.
type Router struct {
	handlers map[types.Domain]Handler
}

// NewRouter registers hs. Registering two handlers for one domain
// panics.
func NewRouter(hs ...Handler) *Router {
	r := &Router{handlers: make(map[types.Domain]Handler, len(hs))}
	for _, h := range hs {
		if _, dup := r.handlers[h.Domain()]; dup {
			panic(fmt.Sprintf("handlers: duplicate handler for %s", h.Domain()))
		}
		r.handlers[h.Domain()] = h
	}
	return r
}

// Enabled reports whether cfg enables domain d.
func Enabled(cfg types.ChainConfig, d types.Domain) bool {
	switch d {
	case types.DomainCasino:
		return cfg.CasinoEnabled
	case types.DomainStaking:
		return cfg.StakingEnabled
	case types.DomainLiquidity:
		return cfg.LiquidityEnabled
	default:
		return false
	}
}

func (r *Router) Apply(env Env, view state.View, signer types.PublicKey, instr types.Instruction) ([]types.Event, error) {
	d, err := instr.Domain()
	if err != nil {
		return nil, Fail(CodeInvalidMove, "%v", err)
	}
	if !Enabled(env.Config, d) {
		return nil, Fail(CodeFeatureDisabled, "%s is disabled", d)
	}
	h, ok := r.handlers[d]
	if !ok {
		return nil, Fail(CodeFeatureDisabled, "no handler for %s", d)
	}
	return h.Apply(env, view, signer, instr)
}

// ErrorEvent is the event recorded for a transaction rejected with de.
func ErrorEvent(signer types.PublicKey, de *DomainError) types.Event {
	return types.NewEvent(types.EventError, signer,
		types.Uint("code", uint64(de.Code)),
		types.String("message", de.Message),
	)
}
