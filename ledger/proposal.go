package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/types"
)

// ---------------------------------------------------------------------------
// ProposalControl
// ---------------------------------------------------------------------------

// BuildProposal selects transactions from the mempool, starting each
// account at its committed nonce.
func (a *App) BuildProposal(_ context.Context, pctx types.ProposalContext) (types.BuiltProposal, error) {
	limit := a.cfg.MaxBlockTxs
	if pctx.MaxTxs > 0 && int(pctx.MaxTxs) < limit {
		limit = int(pctx.MaxTxs)
	}
	var loadErr error
	expected := func(pk types.PublicKey) uint64 {
		acct, err := state.LoadAccount(a.store, pk)
		if err != nil {
			if loadErr == nil {
				loadErr = err
			}
			// No transaction carries this nonce.
			return math.MaxUint64
		}
		return acct.Nonce
	}
	txs := a.mempool.Select(limit, expected)
	if loadErr != nil {
		return types.BuiltProposal{}, fmt.Errorf("ledger: build proposal: %w", loadErr)
	}
	a.logger.Debug("Built proposal", "height", pctx.Height, "txs", len(txs))
	return types.BuiltProposal{Txs: txs}, nil
}

// VerifyProposal checks structure only: size, signatures, instruction
// validity and that no (account, nonce) pair repeats. Nonce order
// against state is left to execution.
func (a *App) VerifyProposal(_ context.Context, proposal types.ReceivedProposal) (types.ProposalVerdict, error) {
	if len(proposal.Txs) > a.cfg.MaxBlockTxs {
		return types.ProposalVerdict{
			Reason: fmt.Sprintf("proposal has %d transactions, limit is %d", len(proposal.Txs), a.cfg.MaxBlockTxs),
		}, nil
	}
	type slot struct {
		account types.PublicKey
		nonce   uint64
	}
	seen := make(map[slot]struct{}, len(proposal.Txs))
	for i, tx := range proposal.Txs {
		reject := func(reason string) (types.ProposalVerdict, error) {
			return types.ProposalVerdict{Reason: reason, TxIndex: uint32(i)}, nil
		}
		if !tx.Verify() {
			return reject("invalid signature")
		}
		if err := tx.Instruction.Validate(); err != nil {
			return reject(err.Error())
		}
		s := slot{tx.Public, tx.Nonce}
		if _, dup := seen[s]; dup {
			return reject(fmt.Sprintf("duplicate nonce %d for %s", tx.Nonce, tx.Public))
		}
		seen[s] = struct{}{}
	}
	return types.ProposalVerdict{Accept: true}, nil
}
