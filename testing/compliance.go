package nullspacetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/blockberries/nullspace"
	"github.com/blockberries/nullspace/types"
)

// RunComplianceSuite checks a ledger implementation against the call
// order and determinism guarantees every ledger must give.
//
// factory must return a fresh ledger without committed state on every
// call. The suite funds Key(1) and Key(2) through DefaultGenesis.
func RunComplianceSuite(t *testing.T, factory func(testing.TB) nullspace.Lifecycle) {
	t.Helper()
	alice, bob := Key(1), Key(2)
	genesis := DefaultGenesis(alice, bob)

	start := func(t *testing.T) *Harness {
		h := NewHarness(t, factory(t))
		h.Genesis(genesis)
		return h
	}

	t.Run("genesis_handshake", func(t *testing.T) {
		h := NewHarness(t, factory(t))
		resp := h.Genesis(genesis)
		if resp.LastBlock.Height != 0 {
			t.Errorf("genesis handshake reported height %d", resp.LastBlock.Height)
		}
		if resp.LastBlock.Root.IsZero() {
			t.Error("genesis handshake should report a root")
		}
	})

	t.Run("apply_cycle", func(t *testing.T) {
		h := start(t)
		for i := uint64(1); i <= 5; i++ {
			res := h.Apply(MakeBlock(i))
			if res.StartHeight != i-1 || res.EndHeight != i {
				t.Errorf("height %d: transition %d→%d", i, res.StartHeight, res.EndHeight)
			}
		}
	})

	t.Run("redelivery_is_noop", func(t *testing.T) {
		h := start(t)
		first := h.ApplyNext(Sign(t, alice, 0, PlaceBet(5)))
		again := h.Apply(MakeBlock(1, Sign(t, alice, 0, PlaceBet(5))))
		if !again.NoOp() {
			t.Fatalf("redelivered block was applied again: %d→%d", again.StartHeight, again.EndHeight)
		}
		if again.NewRoot != first.NewRoot {
			t.Errorf("redelivery changed root: %s != %s", again.NewRoot, first.NewRoot)
		}
	})

	t.Run("out_of_order_rejected", func(t *testing.T) {
		h := start(t)
		_, err := h.Server().ApplyBlock(context.Background(), MakeBlock(3))
		if !errors.Is(err, nullspace.ErrOutOfOrderHeight) {
			t.Fatalf("expected out-of-order error, got %v", err)
		}
		if _, halted := nullspace.IsHalt(err); halted {
			t.Fatal("out-of-order block must not halt")
		}
		h.Apply(MakeBlock(1))
	})

	t.Run("deterministic_with_txs", func(t *testing.T) {
		h1, h2 := start(t), start(t)
		block := MakeBlock(1,
			Sign(t, alice, 0, PlaceBet(10)),
			Sign(t, bob, 0, Register("bob")),
			Sign(t, bob, 1, PlaceBet(20)),
			Sign(t, bob, 2, StartGame(types.GameCoinFlip, 1)),
			Sign(t, alice, 1, Swap(100, 1, false)),
		)
		r1, r2 := h1.Apply(block), h2.Apply(block)

		if r1.NewRoot != r2.NewRoot {
			t.Errorf("non-deterministic root: %s != %s", r1.NewRoot, r2.NewRoot)
		}
		if r1.ReceiptsRoot != r2.ReceiptsRoot {
			t.Errorf("non-deterministic receipts root: %s != %s", r1.ReceiptsRoot, r2.ReceiptsRoot)
		}
		if !types.EventsEqual(r1.Events, r2.Events) {
			t.Error("non-deterministic events")
		}
	})

	t.Run("receipt_per_tx", func(t *testing.T) {
		h := start(t)
		txs := []types.Transaction{
			Sign(t, alice, 0, PlaceBet(1)),
			Sign(t, alice, 1, PlaceBet(2)),
			Sign(t, bob, 0, PlaceBet(3)),
		}
		res := h.ApplyNext(txs...)
		if len(res.Receipts) != len(txs) {
			t.Fatalf("expected %d receipts, got %d", len(txs), len(res.Receipts))
		}
		for i, r := range res.Receipts {
			d, err := txs[i].Digest()
			if err != nil {
				t.Fatal(err)
			}
			if r.TxDigest != d {
				t.Errorf("receipt %d: digest mismatch", i)
			}
			if !r.Success {
				t.Errorf("receipt %d failed: %s", i, r.Error)
			}
		}
	})

	t.Run("rejected_tx_keeps_nonce", func(t *testing.T) {
		h := start(t)
		bad := Sign(t, alice, 0, PlaceBet(1))
		bad.Signature[0] ^= 0xff
		gap := Sign(t, alice, 7, PlaceBet(1))
		good := Sign(t, alice, 0, PlaceBet(1))

		res := h.ApplyNext(bad, gap, good)
		if res.Receipts[0].Success || res.Receipts[0].Code != types.CodeInvalidSignature {
			t.Errorf("bad signature: %+v", res.Receipts[0])
		}
		if res.Receipts[1].Success || res.Receipts[1].Code != types.CodeInvalidNonce {
			t.Errorf("nonce gap: %+v", res.Receipts[1])
		}
		if !res.Receipts[2].Success {
			t.Errorf("nonce 0 after rejections failed: %s", res.Receipts[2].Error)
		}
		if got := h.Account(Pub(alice)).Nonce; got != 1 {
			t.Errorf("expected nonce 1, got %d", got)
		}
	})

	t.Run("concurrent_checktx_and_query", func(t *testing.T) {
		h := start(t)
		txs := make([]types.Transaction, 10)
		for i := range txs {
			txs[i] = Sign(t, bob, uint64(i), PlaceBet(1))
		}
		var wg sync.WaitGroup
		for _, tx := range txs {
			wg.Add(2)
			go func() {
				defer wg.Done()
				if _, err := h.Server().CheckTx(context.Background(), tx); err != nil {
					t.Errorf("concurrent CheckTx failed: %v", err)
				}
			}()
			go func() {
				defer wg.Done()
				_, err := h.Server().Query(context.Background(), types.StateQuery{Path: types.QueryAccount, Account: Pub(alice)})
				if err != nil {
					t.Errorf("concurrent Query failed: %v", err)
				}
			}()
		}
		wg.Wait()
	})

	t.Run("query_tracks_height", func(t *testing.T) {
		h := start(t)
		h.ApplyNext()
		h.ApplyNext(Sign(t, alice, 0, PlaceBet(1)))

		res := h.Query(types.StateQuery{Path: types.QueryAccount, Account: Pub(alice)})
		if res.Height != 2 {
			t.Errorf("expected query height 2, got %d", res.Height)
		}
	})
}
