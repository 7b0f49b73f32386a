// Package execution applies an ordered batch of transactions to a
// working state: nonce and signature checks, per-domain dispatch into
// a transaction-scoped overlay, and receipts.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blockberries/nullspace/handlers"
	"github.com/blockberries/nullspace/handlers/casino"
	"github.com/blockberries/nullspace/handlers/liquidity"
	"github.com/blockberries/nullspace/handlers/staking"
	"github.com/blockberries/nullspace/metrics"
	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/store"
	"github.com/blockberries/nullspace/types"
)

// View is the working state a batch executes against. Root hashes the
// state including every mutation staged so far.
type View interface {
	state.View
	Root() types.Hash
}

// Dispatcher routes an instruction to its handler. *handlers.Router
// is the production implementation.
type Dispatcher interface {
	Apply(env handlers.Env, view state.View, signer types.PublicKey, instr types.Instruction) ([]types.Event, error)
}

// Output is the deterministic result of executing one batch.
type Output struct {
	Events   []types.Event
	Receipts []types.Receipt
	// ProcessedNonces lists, in first-seen order, every account whose
	// nonce advanced and its next expected nonce.
	ProcessedNonces []types.NonceUpdate
}

// Layer executes transactions. It holds no state between batches and
// is safe for concurrent use on distinct views.
type Layer struct {
	router  Dispatcher
	logger  *slog.Logger
	metrics *metrics.PipelineMetrics
}

// Option customises a Layer.
type Option func(*Layer)

// WithRouter replaces the default handler set.
func WithRouter(r Dispatcher) Option {
	return func(l *Layer) { l.router = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Layer) { l.logger = logger }
}

// WithMetrics records receipt outcomes.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(l *Layer) { l.metrics = m }
}

// DefaultRouter routes to the built-in casino, staking and liquidity
// handlers.
func DefaultRouter() *handlers.Router {
	return handlers.NewRouter(casino.New(nil), staking.New(), liquidity.New())
}

func New(opts ...Option) *Layer {
	l := &Layer{}
	for _, opt := range opts {
		opt(l)
	}
	if l.router == nil {
		l.router = DefaultRouter()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "execution")
	return l
}

// Execute applies txs in order at height. Domain failures become
// failed receipts; any other error is fatal and the caller must
// discard view. ctx is only checked before the first transaction.
func (l *Layer) Execute(ctx context.Context, height uint64, view View, txs []types.Transaction) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	cfg, err := state.LoadConfig(view)
	if err != nil {
		return Output{}, fmt.Errorf("execution: load config: %w", err)
	}
	env := handlers.Env{Height: height, Config: cfg}

	out := Output{
		Events:   make([]types.Event, 0, len(txs)),
		Receipts: make([]types.Receipt, 0, len(txs)),
	}
	nonceIdx := make(map[types.PublicKey]int)
	for i := range txs {
		tx := &txs[i]
		receipt, events, next, err := l.executeTx(env, view, tx)
		if err != nil {
			return Output{}, fmt.Errorf("execution: tx %d at height %d: %w", i, height, err)
		}
		out.Events = append(out.Events, events...)
		out.Receipts = append(out.Receipts, receipt)
		if next > 0 {
			if j, ok := nonceIdx[tx.Public]; ok {
				out.ProcessedNonces[j].Next = next
			} else {
				nonceIdx[tx.Public] = len(out.ProcessedNonces)
				out.ProcessedNonces = append(out.ProcessedNonces, types.NonceUpdate{Account: tx.Public, Next: next})
			}
		}
		l.observe(receipt)
	}
	return out, nil
}

func (l *Layer) observe(r types.Receipt) {
	switch {
	case r.Success:
		l.metrics.ObserveTx("success")
	case r.Code >= types.CodeDomainBase:
		l.metrics.ObserveTx("domain_error")
	default:
		l.metrics.ObserveTx("rejected")
	}
}

// executeTx returns the receipt, the events and, if the nonce was
// consumed, the account's next nonce.
func (l *Layer) executeTx(env handlers.Env, view View, tx *types.Transaction) (types.Receipt, []types.Event, uint64, error) {
	digest, err := tx.Digest()
	if err != nil {
		return reject(view, types.Hash{}, types.CodeMalformed, err.Error()), nil, 0, nil
	}
	acct, err := state.LoadAccount(view, tx.Public)
	if err != nil {
		return types.Receipt{}, nil, 0, err
	}
	if tx.Nonce != acct.Nonce {
		msg := fmt.Sprintf("invalid nonce: expected %d, got %d", acct.Nonce, tx.Nonce)
		return reject(view, digest, types.CodeInvalidNonce, msg), nil, 0, nil
	}
	if !tx.Verify() {
		return reject(view, digest, types.CodeInvalidSignature, "invalid signature"), nil, 0, nil
	}
	if err := tx.Instruction.Validate(); err != nil {
		code := types.CodeMalformed
		if errors.Is(err, types.ErrUnsupportedInstructionVersion) {
			code = types.CodeUnsupportedVersion
		}
		return reject(view, digest, code, err.Error()), nil, 0, nil
	}

	acct.Nonce++
	if err := state.StoreAccount(view, tx.Public, acct); err != nil {
		return types.Receipt{}, nil, 0, err
	}

	overlay := store.NewOverlay(view)
	events, err := l.router.Apply(env, overlay, tx.Public, tx.Instruction)
	if err != nil {
		de, ok := handlers.AsDomainError(err)
		if !ok {
			return types.Receipt{}, nil, 0, err
		}
		overlay.Discard()
		l.logger.Debug("Instruction rejected",
			"account", tx.Public.String(),
			"nonce", tx.Nonce,
			"code", de.Code,
			"reason", de.Message,
		)
		receipt := types.Receipt{
			TxDigest:      digest,
			PostStateRoot: view.Root(),
			Code:          de.Code,
			Error:         de.Message,
		}
		return receipt, []types.Event{handlers.ErrorEvent(tx.Public, de)}, acct.Nonce, nil
	}
	if err := overlay.Flush(); err != nil {
		return types.Receipt{}, nil, 0, err
	}
	receipt := types.Receipt{
		TxDigest:      digest,
		Success:       true,
		PostStateRoot: view.Root(),
		Code:          types.CodeOK,
	}
	return receipt, events, acct.Nonce, nil
}

// reject builds the receipt of a transaction refused before its nonce
// was consumed. State is untouched.
func reject(view View, digest types.Hash, code uint32, msg string) types.Receipt {
	return types.Receipt{
		TxDigest:      digest,
		PostStateRoot: view.Root(),
		Code:          code,
		Error:         msg,
	}
}
