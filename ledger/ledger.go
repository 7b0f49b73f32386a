// Package ledger is the nullspace application: it wires the state
// transition pipeline, the mempool and the query surface behind
// nullspace.Application.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blockberries/nullspace"
	"github.com/blockberries/nullspace/eventlog"
	"github.com/blockberries/nullspace/execution"
	"github.com/blockberries/nullspace/mempool"
	"github.com/blockberries/nullspace/metrics"
	"github.com/blockberries/nullspace/pipeline"
	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/store"
	"github.com/blockberries/nullspace/types"
)

// Compile-time interface checks.
var (
	_ nullspace.Lifecycle       = (*App)(nil)
	_ nullspace.ProposalControl = (*App)(nil)
	_ nullspace.StateSync       = (*App)(nil)
	_ nullspace.Simulator       = (*App)(nil)
)

// Capabilities are the optional interfaces App declares at handshake.
const Capabilities = types.CapProposalControl | types.CapStateSync | types.CapSimulation

const (
	DefaultMaxBlockTxs         = 1000
	DefaultSnapshotChunkLeaves = 256
)

// Config tunes the application. Zero values take defaults.
type Config struct {
	Mempool   mempool.Config
	RateLimit RateLimit
	// MaxBlockTxs caps proposals built and accepted by this node.
	MaxBlockTxs int
	// SnapshotChunkLeaves is the number of leaves per state sync chunk.
	SnapshotChunkLeaves int
}

func (c Config) withDefaults() Config {
	if c.MaxBlockTxs <= 0 {
		c.MaxBlockTxs = DefaultMaxBlockTxs
	}
	if c.SnapshotChunkLeaves <= 0 {
		c.SnapshotChunkLeaves = DefaultSnapshotChunkLeaves
	}
	c.RateLimit = c.RateLimit.withDefaults()
	return c
}

// App implements nullspace.Application.
type App struct {
	cfg      Config
	store    *store.Store
	log      *eventlog.Log
	pipeline *pipeline.Pipeline
	mempool  *mempool.Mempool
	limiter  *submitLimiter
	logger   *slog.Logger

	mempoolMetrics *metrics.MempoolMetrics
	proofMetrics   *metrics.ProofMetrics
}

// Open builds the application over dbs, which stay owned by the
// caller. Call Handshake before anything else.
func Open(dbs *store.Databases, cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	st, err := store.Open(dbs.State, dbs.Ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("ledger: open store: %w", err)
	}
	lg, err := eventlog.Open(dbs.Ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("ledger: open event log: %w", err)
	}
	pm := metrics.Pipeline()
	p := pipeline.New(pipeline.Config{
		Store:   st,
		Log:     lg,
		Layer:   execution.New(execution.WithLogger(logger), execution.WithMetrics(pm)),
		Logger:  logger,
		Metrics: pm,
	})
	return &App{
		cfg:            cfg,
		store:          st,
		log:            lg,
		pipeline:       p,
		mempool:        mempool.New(cfg.Mempool, metrics.Mempool()),
		limiter:        newSubmitLimiter(cfg.RateLimit),
		logger:         logger.With("component", "ledger"),
		mempoolMetrics: metrics.Mempool(),
		proofMetrics:   metrics.Proofs(),
	}, nil
}

// Pipeline exposes the transition pipeline, e.g. to subscribe to
// commits.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Mempool exposes the pending transaction pool.
func (a *App) Mempool() *mempool.Mempool { return a.mempool }

// EventLog exposes the durable block records.
func (a *App) EventLog() *eventlog.Log { return a.log }

// Close releases store caches.
func (a *App) Close() error {
	return a.store.Close()
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (a *App) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	recovery, err := a.pipeline.Recover(ctx, req.Genesis)
	if err != nil {
		return types.HandshakeResponse{}, err
	}
	if recovery == pipeline.RecoveryFresh && req.Genesis == nil && req.AwaitSnapshot {
		a.logger.Info("Handshake complete; awaiting snapshot")
		return types.HandshakeResponse{Capabilities: Capabilities}, nil
	}
	if recovery == pipeline.RecoveryFresh {
		if req.Genesis == nil {
			return types.HandshakeResponse{}, errors.New("ledger: no committed state and no genesis document")
		}
		if _, err := a.pipeline.Genesis(ctx, *req.Genesis); err != nil {
			return types.HandshakeResponse{}, fmt.Errorf("ledger: genesis: %w", err)
		}
	}
	last, _ := a.pipeline.Last()
	a.logger.Info("Handshake complete",
		"height", last.Height,
		"root", last.Root.String(),
		"recovery", recovery.String(),
	)
	return types.HandshakeResponse{
		LastBlock:    last,
		Capabilities: Capabilities,
		Recovered:    recovery == pipeline.RecoveryReplayed,
	}, nil
}

func (a *App) CheckTx(_ context.Context, tx types.Transaction) (types.Verdict, error) {
	if _, ok := a.pipeline.Last(); !ok {
		return types.Verdict{}, nullspace.ErrNotReady
	}
	verdict, err := a.admit(tx)
	if err != nil {
		return types.Verdict{}, err
	}
	if !verdict.Accepted() {
		a.mempoolMetrics.RecordReject(verdict.Reason.String())
		a.logger.Debug("Rejected transaction",
			"account", tx.Public.String(),
			"nonce", tx.Nonce,
			"reason", verdict.Reason.String(),
		)
	}
	return verdict, nil
}

func (a *App) admit(tx types.Transaction) (types.Verdict, error) {
	if !tx.Verify() {
		return types.Reject(types.RejectInvalidSignature, "invalid signature"), nil
	}
	if err := tx.Instruction.Validate(); err != nil {
		if errors.Is(err, types.ErrUnsupportedInstructionVersion) {
			return types.Reject(types.RejectUnsupportedInstructionVersion, err.Error()), nil
		}
		return types.Reject(types.RejectMalformed, err.Error()), nil
	}
	if !a.limiter.Allow(tx.Public) {
		return types.Reject(types.RejectRateLimited, "submission rate exceeded"), nil
	}
	acct, err := state.LoadAccount(a.store, tx.Public)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("ledger: load account: %w", err)
	}
	if tx.Nonce < acct.Nonce {
		return types.Verdict{
			Reason:   types.RejectInvalidNonce,
			Expected: acct.Nonce,
			Got:      tx.Nonce,
			Info:     fmt.Sprintf("nonce %d already used, next is %d", tx.Nonce, acct.Nonce),
		}, nil
	}
	switch err := a.mempool.Add(tx); {
	case err == nil:
		return types.Verdict{}, nil
	case errors.Is(err, mempool.ErrDuplicateNonce):
		return types.Reject(types.RejectDuplicateNonce, err.Error()), nil
	case errors.Is(err, mempool.ErrMempoolFull):
		return types.Reject(types.RejectMempoolFull, err.Error()), nil
	case errors.Is(err, mempool.ErrBacklogExceeded):
		return types.Reject(types.RejectBacklogExceeded, err.Error()), nil
	default:
		return types.Verdict{}, err
	}
}

// ApplyBlock runs block through the pipeline and prunes the mempool
// of every nonce it consumed.
func (a *App) ApplyBlock(ctx context.Context, block types.Block) (types.StateTransitionResult, error) {
	res, err := a.pipeline.Apply(ctx, block)
	if errors.Is(err, pipeline.ErrNotInitialized) {
		return res, fmt.Errorf("%w: %w", nullspace.ErrNotReady, err)
	}
	if err != nil {
		return res, err
	}
	for _, u := range res.ProcessedNonces {
		a.mempool.Retain(u.Account, u.Next)
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// Simulator
// ---------------------------------------------------------------------------

func (a *App) Simulate(ctx context.Context, tx types.Transaction) (types.SimulationResult, error) {
	height, out, err := a.pipeline.Simulate(ctx, []types.Transaction{tx})
	if err != nil {
		return types.SimulationResult{}, err
	}
	return types.SimulationResult{
		Height:  height,
		Receipt: out.Receipts[0],
		Events:  out.Events,
	}, nil
}
