// Package pipeline turns finalized blocks into committed state. It is
// the single writer to the state store: each block's record is
// appended to the event log durably before the store advances, and on
// startup any gap between the two is replayed and checked by value.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blockberries/nullspace"
	"github.com/blockberries/nullspace/eventlog"
	"github.com/blockberries/nullspace/execution"
	"github.com/blockberries/nullspace/metrics"
	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/store"
	"github.com/blockberries/nullspace/types"
)

var (
	ErrNotInitialized     = errors.New("pipeline: no committed state")
	ErrAlreadyInitialized = errors.New("pipeline: state already committed")
)

// Phase is the externally visible state of a Pipeline.
type Phase uint32

const (
	PhaseUninitialized Phase = iota
	PhaseReady
	PhaseApplying
	PhaseHalted
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "Uninitialized"
	case PhaseReady:
		return "Ready"
	case PhaseApplying:
		return "Applying"
	case PhaseHalted:
		return "Halted"
	default:
		return fmt.Sprintf("Phase(%d)", uint32(p))
	}
}

// Recovery describes what Recover found on startup.
type Recovery uint8

const (
	// RecoveryFresh means neither state nor log hold anything.
	RecoveryFresh Recovery = iota
	// RecoveryClean means state and log agree.
	RecoveryClean
	// RecoveryReplayed means the last logged block was re-executed
	// and its state committed.
	RecoveryReplayed
)

func (r Recovery) String() string {
	switch r {
	case RecoveryFresh:
		return "fresh"
	case RecoveryClean:
		return "clean"
	case RecoveryReplayed:
		return "replayed"
	default:
		return fmt.Sprintf("Recovery(%d)", uint8(r))
	}
}

// Committed is published to subscribers after every commit.
type Committed struct {
	Record          types.BlockRecord
	ProcessedNonces []types.NonceUpdate
}

// Config wires a Pipeline to its collaborators.
type Config struct {
	Store   *store.Store
	Log     *eventlog.Log
	Layer   *execution.Layer
	Logger  *slog.Logger
	Metrics *metrics.PipelineMetrics
}

// Pipeline serialises block application. Reads of committed state go
// to the store directly and never wait on Apply.
type Pipeline struct {
	mu      sync.Mutex
	store   *store.Store
	log     *eventlog.Log
	layer   *execution.Layer
	logger  *slog.Logger
	metrics *metrics.PipelineMetrics

	phase  Phase
	halted *nullspace.HaltError

	subsMu sync.RWMutex
	subs   map[int]chan Committed
	nextID int
}

// New builds a pipeline. Call Recover or Genesis before Apply.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	layer := cfg.Layer
	if layer == nil {
		layer = execution.New(execution.WithLogger(logger), execution.WithMetrics(cfg.Metrics))
	}
	return &Pipeline{
		store:   cfg.Store,
		log:     cfg.Log,
		layer:   layer,
		logger:  logger.With("component", "pipeline"),
		metrics: cfg.Metrics,
		subs:    make(map[int]chan Committed),
	}
}

// Phase returns the current phase.
func (p *Pipeline) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Halted returns the error that halted the pipeline, or nil.
func (p *Pipeline) Halted() *nullspace.HaltError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.halted
}

// Last returns the last committed block. ok is false before genesis.
func (p *Pipeline) Last() (id types.BlockID, ok bool) {
	h, root, ok := p.store.Last()
	if !ok {
		return types.BlockID{}, false
	}
	return types.BlockID{Height: h, Root: root}, true
}

// Subscribe registers for commit notifications. Notifications that do
// not fit in the buffer are dropped; the subscriber can read missed
// records from the event log. cancel unregisters and closes the
// channel.
func (p *Pipeline) Subscribe(buffer int) (ch <-chan Committed, cancel func()) {
	c := make(chan Committed, buffer)
	p.subsMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = c
	p.subsMu.Unlock()

	var once sync.Once
	return c, func() {
		once.Do(func() {
			p.subsMu.Lock()
			delete(p.subs, id)
			p.subsMu.Unlock()
			close(c)
		})
	}
}

func (p *Pipeline) publish(c Committed) {
	p.subsMu.RLock()
	defer p.subsMu.RUnlock()
	for id, ch := range p.subs {
		select {
		case ch <- c:
		default:
			p.logger.Warn("Dropped commit notification", "subscriber", id, "height", c.Record.Height)
		}
	}
}

// Genesis commits height 0 from doc. The store and the log must both
// be empty.
func (p *Pipeline) Genesis(ctx context.Context, doc types.GenesisDoc) (types.StateTransitionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return types.StateTransitionResult{}, err
	}
	if p.halted != nil {
		return types.StateTransitionResult{}, p.halted
	}
	_, sok := p.store.Height()
	_, eok := p.log.Height()
	if sok || eok {
		return types.StateTransitionResult{}, ErrAlreadyInitialized
	}

	w, err := p.store.Working()
	if err != nil {
		return types.StateTransitionResult{}, err
	}
	// A malformed genesis document is the caller's error, not a halt.
	if err := state.WriteGenesis(w, doc); err != nil {
		return types.StateTransitionResult{}, err
	}
	rec := types.BlockRecord{Height: 0, StateRoot: w.Root()}
	if err := p.commit(rec, w); err != nil {
		return types.StateTransitionResult{}, err
	}
	p.phase = PhaseReady
	p.logger.Info("Committed genesis", "chain_id", doc.ChainID, "root", rec.StateRoot.String(), "accounts", len(doc.Accounts))
	p.publish(Committed{Record: rec})
	return types.StateTransitionResult{NewRoot: rec.StateRoot}, nil
}

// Apply executes block and commits it.
//
// A block at the committed height is a no-op, the next height is
// executed and committed, and anything else fails with
// *nullspace.OutOfOrderHeightError. ctx is only consulted before
// execution starts. A *nullspace.HaltError halts the pipeline for
// good.
func (p *Pipeline) Apply(ctx context.Context, block types.Block) (types.StateTransitionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.halted != nil {
		return types.StateTransitionResult{}, p.halted
	}
	if err := ctx.Err(); err != nil {
		return types.StateTransitionResult{}, err
	}
	height, root, ok := p.store.Last()
	if !ok {
		return types.StateTransitionResult{}, ErrNotInitialized
	}
	switch block.Height {
	case height:
		p.metrics.ObserveBlock("noop", height, 0)
		return types.StateTransitionResult{StartHeight: height, EndHeight: height, NewRoot: root}, nil
	case height + 1:
	default:
		p.metrics.ObserveBlock("rejected", block.Height, 0)
		return types.StateTransitionResult{}, &nullspace.OutOfOrderHeightError{Expected: height + 1, Got: block.Height}
	}
	if !block.ParentRoot.IsZero() && block.ParentRoot != root {
		return types.StateTransitionResult{}, fmt.Errorf("%w: block %d builds on %s, committed root is %s",
			nullspace.ErrParentRootMismatch, block.Height, block.ParentRoot, root)
	}

	start := time.Now()
	p.phase = PhaseApplying
	w, err := p.store.Working()
	if err != nil {
		return types.StateTransitionResult{}, p.halt(block.Height, fmt.Sprintf("open working state: %v", err))
	}
	out, err := p.layer.Execute(context.WithoutCancel(ctx), block.Height, w, block.Txs)
	if err != nil {
		return types.StateTransitionResult{}, p.halt(block.Height, fmt.Sprintf("execute: %v", err))
	}
	receiptsRoot, err := types.ReceiptsRoot(out.Receipts)
	if err != nil {
		return types.StateTransitionResult{}, p.halt(block.Height, err.Error())
	}
	rec := types.BlockRecord{
		Height:       block.Height,
		ParentRoot:   root,
		Txs:          block.Txs,
		Events:       out.Events,
		Receipts:     out.Receipts,
		StateRoot:    w.Root(),
		ReceiptsRoot: receiptsRoot,
	}
	if err := p.commit(rec, w); err != nil {
		return types.StateTransitionResult{}, err
	}
	p.phase = PhaseReady
	p.metrics.ObserveBlock("committed", block.Height, time.Since(start))
	p.logger.Debug("Applied block",
		"height", block.Height,
		"txs", len(block.Txs),
		"events", len(out.Events),
		"root", rec.StateRoot.String(),
	)
	p.publish(Committed{Record: rec, ProcessedNonces: out.ProcessedNonces})
	return types.StateTransitionResult{
		StartHeight:     height,
		EndHeight:       block.Height,
		Events:          out.Events,
		Receipts:        out.Receipts,
		NewRoot:         rec.StateRoot,
		ReceiptsRoot:    receiptsRoot,
		ProcessedNonces: out.ProcessedNonces,
	}, nil
}

// commit appends rec to the log and then applies w to the store. Both
// failures halt: once the record is durable the only way forward is
// recovery.
func (p *Pipeline) commit(rec types.BlockRecord, w *store.Working) error {
	if err := p.log.Append(rec); err != nil {
		return p.halt(rec.Height, fmt.Sprintf("append block record: %v", err))
	}
	return p.applyState(rec, w)
}

func (p *Pipeline) applyState(rec types.BlockRecord, w *store.Working) error {
	committed, err := p.store.Apply(w.Changes())
	if err != nil {
		return p.halt(rec.Height, fmt.Sprintf("commit state: %v", err))
	}
	if committed != rec.StateRoot {
		return p.halt(rec.Height, fmt.Sprintf("committed root %s differs from executed root %s", committed, rec.StateRoot))
	}
	return nil
}

// halt must be called with p.mu held.
func (p *Pipeline) halt(height uint64, reason string) *nullspace.HaltError {
	p.halted = nullspace.NewHaltError(height, reason)
	p.phase = PhaseHalted
	p.metrics.SetHalted(true)
	p.metrics.ObserveBlock("halted", height, 0)
	p.logger.Error("Pipeline halted", "height", height, "reason", reason)
	return p.halted
}

// Recover reconciles the event log with the state store. genesis is
// only needed when the crash hit between logging height 0 and
// committing its state.
func (p *Pipeline) Recover(ctx context.Context, genesis *types.GenesisDoc) (Recovery, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return RecoveryFresh, err
	}
	if p.halted != nil {
		return RecoveryFresh, p.halted
	}
	sh, sok := p.store.Height()
	eh, eok := p.log.Height()

	switch {
	case !sok && !eok:
		p.metrics.ObserveRecovery(RecoveryFresh.String())
		return RecoveryFresh, nil
	case sok && eok && sh == eh:
		p.phase = PhaseReady
		p.metrics.ObserveRecovery(RecoveryClean.String())
		p.logger.Info("State matches event log", "height", sh)
		return RecoveryClean, nil
	case eok && !sok && eh == 0:
		if genesis == nil {
			return RecoveryFresh, p.halt(0, "genesis logged but not committed, and no genesis document supplied")
		}
		if err := p.replayGenesis(*genesis); err != nil {
			return RecoveryFresh, err
		}
	case eok && sok && eh == sh+1:
		if err := p.replayBlock(ctx, eh); err != nil {
			return RecoveryFresh, err
		}
	default:
		p.metrics.ObserveRecovery("mismatch")
		return RecoveryFresh, p.halt(eh, fmt.Sprintf("event log at %s, state at %s", describe(eh, eok), describe(sh, sok)))
	}
	p.phase = PhaseReady
	p.metrics.ObserveRecovery(RecoveryReplayed.String())
	p.logger.Warn("Replayed logged block", "height", eh)
	return RecoveryReplayed, nil
}

func (p *Pipeline) replayGenesis(doc types.GenesisDoc) error {
	rec, err := p.log.Get(0)
	if err != nil {
		return p.halt(0, fmt.Sprintf("read genesis record: %v", err))
	}
	w, err := p.store.Working()
	if err != nil {
		return p.halt(0, fmt.Sprintf("open working state: %v", err))
	}
	if err := state.WriteGenesis(w, doc); err != nil {
		return p.halt(0, fmt.Sprintf("rebuild genesis: %v", err))
	}
	if w.Root() != rec.StateRoot {
		return p.halt(0, fmt.Sprintf("genesis root %s differs from logged root %s", w.Root(), rec.StateRoot))
	}
	return p.applyState(rec, w)
}

func (p *Pipeline) replayBlock(ctx context.Context, height uint64) error {
	rec, err := p.log.Get(height)
	if err != nil {
		return p.halt(height, fmt.Sprintf("read block record: %v", err))
	}
	if rec.ParentRoot != p.store.Root() {
		return p.halt(height, fmt.Sprintf("logged parent root %s differs from committed root %s", rec.ParentRoot, p.store.Root()))
	}
	w, err := p.store.Working()
	if err != nil {
		return p.halt(height, fmt.Sprintf("open working state: %v", err))
	}
	out, err := p.layer.Execute(context.WithoutCancel(ctx), height, w, rec.Txs)
	if err != nil {
		return p.halt(height, fmt.Sprintf("re-execute: %v", err))
	}
	switch {
	case !types.EventsEqual(out.Events, rec.Events):
		return p.halt(height, "replayed events differ from the event log")
	case !types.ReceiptsEqual(out.Receipts, rec.Receipts):
		return p.halt(height, "replayed receipts differ from the event log")
	case w.Root() != rec.StateRoot:
		return p.halt(height, fmt.Sprintf("replayed root %s differs from logged root %s", w.Root(), rec.StateRoot))
	}
	if err := p.applyState(rec, w); err != nil {
		return err
	}
	p.publish(Committed{Record: rec, ProcessedNonces: out.ProcessedNonces})
	return nil
}

// Restore seeds empty state from a verified snapshot at height and
// logs a marker record so recovery treats height as the base.
func (p *Pipeline) Restore(height uint64, root types.Hash, keys, values [][]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.halted != nil {
		return p.halted
	}
	_, sok := p.store.Height()
	_, eok := p.log.Height()
	if sok || eok {
		return ErrAlreadyInitialized
	}
	if err := p.store.Restore(height, root, keys, values); err != nil {
		return err
	}
	rec := types.BlockRecord{Height: height, StateRoot: root}
	if err := p.log.Append(rec); err != nil {
		return p.halt(height, fmt.Sprintf("append snapshot marker: %v", err))
	}
	p.phase = PhaseReady
	p.publish(Committed{Record: rec})
	return nil
}

// Simulate executes txs as the next height on a throwaway copy of
// committed state.
func (p *Pipeline) Simulate(ctx context.Context, txs []types.Transaction) (uint64, execution.Output, error) {
	height, ok := p.store.Height()
	if !ok {
		return 0, execution.Output{}, ErrNotInitialized
	}
	w, err := p.store.Working()
	if err != nil {
		return 0, execution.Output{}, err
	}
	out, err := p.layer.Execute(ctx, height+1, w, txs)
	return height + 1, out, err
}

func describe(h uint64, ok bool) string {
	if !ok {
		return "empty"
	}
	return fmt.Sprintf("height %d", h)
}
