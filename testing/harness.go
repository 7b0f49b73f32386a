package nullspacetest

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/blockberries/nullspace"
	"github.com/blockberries/nullspace/ledger"
	"github.com/blockberries/nullspace/logging"
	"github.com/blockberries/nullspace/server"
	"github.com/blockberries/nullspace/store"
	"github.com/blockberries/nullspace/types"
)

// Harness drives a ledger through the call-order guard and fails the
// test on any unexpected error.
type Harness struct {
	t      testing.TB
	srv    *server.Server
	height uint64
}

// NewHarness creates a test harness wrapping the given ledger.
func NewHarness(t testing.TB, app nullspace.Lifecycle) *Harness {
	t.Helper()
	return &Harness{t: t, srv: server.New(app, logging.Discard())}
}

// Height returns the last height the harness saw committed.
func (h *Harness) Height() uint64 { return h.height }

// Server returns the underlying server for direct access.
func (h *Harness) Server() *server.Server {
	return h.srv
}

// Genesis performs a handshake that builds height 0 from genesis.
func (h *Harness) Genesis(genesis types.GenesisDoc) types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{Genesis: &genesis})
	if err != nil {
		h.t.Fatalf("Handshake (genesis) failed: %v", err)
	}
	h.height = resp.LastBlock.Height
	return resp
}

// Restart performs a handshake against existing state.
func (h *Harness) Restart() types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{})
	if err != nil {
		h.t.Fatalf("Handshake (restart) failed: %v", err)
	}
	h.height = resp.LastBlock.Height
	return resp
}

// Apply applies a block and fails the test on error.
func (h *Harness) Apply(block types.Block) types.StateTransitionResult {
	h.t.Helper()
	res, err := h.srv.ApplyBlock(context.Background(), block)
	if err != nil {
		h.t.Fatalf("ApplyBlock (height=%d) failed: %v", block.Height, err)
	}
	h.height = res.EndHeight
	return res
}

// ApplyNext applies txs as the block after the last applied one.
func (h *Harness) ApplyNext(txs ...types.Transaction) types.StateTransitionResult {
	h.t.Helper()
	return h.Apply(MakeBlock(h.height+1, txs...))
}

// CheckTx submits a transaction for admission.
func (h *Harness) CheckTx(tx types.Transaction) types.Verdict {
	h.t.Helper()
	verdict, err := h.srv.CheckTx(context.Background(), tx)
	if err != nil {
		h.t.Fatalf("CheckTx failed: %v", err)
	}
	return verdict
}

// MustAcceptTx asserts that a transaction is admitted.
func (h *Harness) MustAcceptTx(tx types.Transaction) {
	h.t.Helper()
	if v := h.CheckTx(tx); !v.Accepted() {
		h.t.Fatalf("expected tx accepted, got %s (%s)", v.Reason, v.Info)
	}
}

// MustRejectTx asserts that a transaction is refused for reason.
func (h *Harness) MustRejectTx(tx types.Transaction, reason types.RejectReason) {
	h.t.Helper()
	if v := h.CheckTx(tx); v.Reason != reason {
		h.t.Fatalf("expected %s, got %s (%s)", reason, v.Reason, v.Info)
	}
}

// Query reads committed state.
func (h *Harness) Query(req types.StateQuery) types.StateQueryResult {
	h.t.Helper()
	result, err := h.srv.Query(context.Background(), req)
	if err != nil {
		h.t.Fatalf("Query failed: %v", err)
	}
	return result
}

// Account returns the committed account of pk, or the zero account.
func (h *Harness) Account(pk types.PublicKey) types.Account {
	h.t.Helper()
	res := h.Query(types.StateQuery{Path: types.QueryAccount, Account: pk})
	if res.Account == nil {
		return types.Account{}
	}
	return *res.Account
}

// --- Helper Factories ---

// GenesisTime is the fixed genesis time of DefaultGenesis.
var GenesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultGenesis returns a genesis document funding each key with
// 1000 chips and 1000 vUSDT, with a seeded AMM pool.
func DefaultGenesis(keys ...ed25519.PrivateKey) types.GenesisDoc {
	doc := types.GenesisDoc{
		ChainID:     "test-chain",
		GenesisTime: types.TimeToTimestamp(GenesisTime),
		Config:      types.DefaultChainConfig(),
		Pool:        &types.GenesisPool{ReserveChips: 1_000_000, ReserveVUSDT: 1_000_000},
	}
	for _, k := range keys {
		doc.Accounts = append(doc.Accounts, types.GenesisAccount{Public: Pub(k), Chips: 1000, VUSDT: 1000})
	}
	return doc
}

// MakeBlock creates a block at height with the given transactions.
func MakeBlock(height uint64, txs ...types.Transaction) types.Block {
	return types.Block{Height: height, Txs: txs}
}

// NewLedger opens a ledger on in-memory databases that are closed
// when the test ends.
func NewLedger(t testing.TB, cfg ledger.Config) *ledger.App {
	t.Helper()
	dbs, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open memory databases: %v", err)
	}
	app, err := ledger.Open(dbs, cfg, logging.Discard())
	if err != nil {
		_ = dbs.Close()
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() {
		_ = app.Close()
		_ = dbs.Close()
	})
	return app
}
