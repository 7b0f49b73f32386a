// Package devnet is a single-node block producer. It stands in for a
// consensus engine so a ledger can run on its own during development:
// every tick it asks the ledger for a proposal, checks it, and applies
// it as the next finalized block.
package devnet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blockberries/nullspace"
	"github.com/blockberries/nullspace/types"
)

type Config struct {
	BlockTime time.Duration
	// MaxTxs caps every proposal; zero leaves the ledger's own limit.
	MaxTxs uint32
	// SkipEmpty suppresses blocks without transactions.
	SkipEmpty bool
}

const DefaultBlockTime = time.Second

// Producer drives a connection that has completed its handshake.
type Producer struct {
	conn   nullspace.Connection
	cfg    Config
	logger *slog.Logger
	last   types.BlockID
}

// New creates a producer continuing from last, the block reported by
// the handshake.
func New(conn nullspace.Connection, last types.BlockID, cfg Config, logger *slog.Logger) *Producer {
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = DefaultBlockTime
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{conn: conn, cfg: cfg, logger: logger.With("component", "devnet"), last: last}
}

// Last returns the most recently produced block.
func (p *Producer) Last() types.BlockID { return p.last }

// Produce builds and applies one block. With SkipEmpty set and nothing
// to include it returns a no-op result and applies nothing.
func (p *Producer) Produce(ctx context.Context) (types.StateTransitionResult, error) {
	height := p.last.Height + 1
	var txs []types.Transaction
	if pc := p.conn.AsProposalControl(); pc != nil {
		built, err := pc.BuildProposal(ctx, types.ProposalContext{Height: height, MaxTxs: p.cfg.MaxTxs})
		if err != nil {
			return types.StateTransitionResult{}, fmt.Errorf("build proposal %d: %w", height, err)
		}
		verdict, err := pc.VerifyProposal(ctx, types.ReceivedProposal{Height: height, Txs: built.Txs})
		if err != nil {
			return types.StateTransitionResult{}, fmt.Errorf("verify proposal %d: %w", height, err)
		}
		if !verdict.Accept {
			return types.StateTransitionResult{}, fmt.Errorf("own proposal %d rejected at tx %d: %s", height, verdict.TxIndex, verdict.Reason)
		}
		txs = built.Txs
	}
	if len(txs) == 0 && p.cfg.SkipEmpty {
		return types.StateTransitionResult{StartHeight: p.last.Height, EndHeight: p.last.Height, NewRoot: p.last.Root}, nil
	}

	res, err := p.conn.ApplyBlock(ctx, types.Block{Height: height, ParentRoot: p.last.Root, Txs: txs})
	if err != nil {
		return res, err
	}
	p.last = types.BlockID{Height: res.EndHeight, Root: res.NewRoot}
	failed := 0
	for _, r := range res.Receipts {
		if !r.Success {
			failed++
		}
	}
	p.logger.Debug("Produced block", "height", res.EndHeight, "txs", len(txs), "failed", failed, "root", res.NewRoot.String())
	return res, nil
}

// Run produces a block every BlockTime until ctx is done or the ledger
// halts. Other errors are logged and the next tick tries again.
func (p *Producer) Run(ctx context.Context) error {
	p.logger.Info("Producing blocks", "block_time", p.cfg.BlockTime, "height", p.last.Height)
	ticker := time.NewTicker(p.cfg.BlockTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, err := p.Produce(ctx)
			if _, halted := nullspace.IsHalt(err); halted {
				return err
			}
			if err != nil && ctx.Err() == nil {
				p.logger.Warn("Block production failed", "height", p.last.Height+1, "err", err)
			}
		}
	}
}
