package execution

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/nullspace/handlers"
	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/store"
	"github.com/blockberries/nullspace/types"
)

func testKey(seed byte) ed25519.PrivateKey {
	var s [ed25519.SeedSize]byte
	s[0] = seed
	return ed25519.NewKeyFromSeed(s[:])
}

func pub(priv ed25519.PrivateKey) types.PublicKey {
	var pk types.PublicKey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return pk
}

func signed(t *testing.T, priv ed25519.PrivateKey, nonce uint64, instr types.Instruction) types.Transaction {
	t.Helper()
	tx, err := types.SignTransaction(priv, nonce, instr)
	require.NoError(t, err)
	return tx
}

func placeBet(amount uint64) types.Instruction {
	return types.NewCasino(types.CasinoInstruction{Op: types.CasinoPlaceBet, Amount: amount})
}

// working returns a store at genesis with the given accounts funded
// with 100 chips, and a working view for height 1.
func working(t *testing.T, cfg types.ChainConfig, keys ...ed25519.PrivateKey) (*store.Store, *store.Working) {
	t.Helper()
	dbs, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbs.Close() })
	s, err := store.Open(dbs.State, dbs.Ledger, nil)
	require.NoError(t, err)

	doc := types.GenesisDoc{ChainID: "test", Config: cfg}
	for _, k := range keys {
		doc.Accounts = append(doc.Accounts, types.GenesisAccount{Public: pub(k), Chips: 100})
	}
	w, err := s.Working()
	require.NoError(t, err)
	require.NoError(t, state.WriteGenesis(w, doc))
	_, err = s.Apply(w.Changes())
	require.NoError(t, err)

	w, err = s.Working()
	require.NoError(t, err)
	return s, w
}

func TestExecute_Success(t *testing.T) {
	alice := testKey(1)
	_, w := working(t, types.DefaultChainConfig(), alice)
	before := w.Root()

	out, err := New().Execute(context.Background(), 1, w, []types.Transaction{signed(t, alice, 0, placeBet(50))})
	require.NoError(t, err)
	require.Len(t, out.Receipts, 1)
	r := out.Receipts[0]
	require.True(t, r.Success)
	require.Equal(t, w.Root(), r.PostStateRoot)
	require.NotEqual(t, before, r.PostStateRoot)

	require.Len(t, out.Events, 1)
	require.True(t, out.Events[0].Equal(types.NewEvent(types.EventBetPlaced, pub(alice), types.Uint("amount", 50))))
	require.Equal(t, []types.NonceUpdate{{Account: pub(alice), Next: 1}}, out.ProcessedNonces)

	acct, err := state.LoadAccount(w, pub(alice))
	require.NoError(t, err)
	require.Equal(t, types.Account{Nonce: 1, Chips: 50}, acct)
}

func TestExecute_NonceStrictness(t *testing.T) {
	alice := testKey(1)
	_, w := working(t, types.DefaultChainConfig(), alice)
	before := w.Root()

	for _, nonce := range []uint64{1, 7} {
		out, err := New().Execute(context.Background(), 1, w, []types.Transaction{signed(t, alice, nonce, placeBet(10))})
		require.NoError(t, err)
		require.False(t, out.Receipts[0].Success)
		require.Equal(t, types.CodeInvalidNonce, out.Receipts[0].Code)
		require.Empty(t, out.Events)
		require.Empty(t, out.ProcessedNonces)
		require.Equal(t, before, w.Root())
	}

	// Replaying a consumed nonce fails the same way.
	tx := signed(t, alice, 0, placeBet(10))
	out, err := New().Execute(context.Background(), 1, w, []types.Transaction{tx, tx})
	require.NoError(t, err)
	require.True(t, out.Receipts[0].Success)
	require.Equal(t, types.CodeInvalidNonce, out.Receipts[1].Code)
	require.Equal(t, out.Receipts[0].PostStateRoot, out.Receipts[1].PostStateRoot)
}

func TestExecute_BadSignatureDoesNotConsumeNonce(t *testing.T) {
	alice := testKey(1)
	_, w := working(t, types.DefaultChainConfig(), alice)

	tx := signed(t, alice, 0, placeBet(10))
	tx.Signature[5] ^= 0xFF
	out, err := New().Execute(context.Background(), 1, w, []types.Transaction{tx})
	require.NoError(t, err)
	require.Equal(t, types.CodeInvalidSignature, out.Receipts[0].Code)

	acct, err := state.LoadAccount(w, pub(alice))
	require.NoError(t, err)
	require.Zero(t, acct.Nonce)
}

func TestExecute_UnsupportedVersion(t *testing.T) {
	alice := testKey(1)
	_, w := working(t, types.DefaultChainConfig(), alice)

	instr := placeBet(10)
	instr.Version = 2
	out, err := New().Execute(context.Background(), 1, w, []types.Transaction{signed(t, alice, 0, instr)})
	require.NoError(t, err)
	require.Equal(t, types.CodeUnsupportedVersion, out.Receipts[0].Code)
	require.Empty(t, out.ProcessedNonces)
}

func TestExecute_DomainErrorConsumesNonce(t *testing.T) {
	alice := testKey(1)
	_, w := working(t, types.DefaultChainConfig(), alice)

	out, err := New().Execute(context.Background(), 1, w, []types.Transaction{
		signed(t, alice, 0, placeBet(500)),
		signed(t, alice, 1, placeBet(40)),
	})
	require.NoError(t, err)
	require.False(t, out.Receipts[0].Success)
	require.Equal(t, handlers.CodeInsufficientFunds, out.Receipts[0].Code)
	require.True(t, out.Receipts[1].Success)

	require.Len(t, out.Events, 2)
	require.Equal(t, types.EventError, out.Events[0].Kind)
	require.Equal(t, types.EventBetPlaced, out.Events[1].Kind)
	require.Equal(t, []types.NonceUpdate{{Account: pub(alice), Next: 2}}, out.ProcessedNonces)

	acct, err := state.LoadAccount(w, pub(alice))
	require.NoError(t, err)
	require.Equal(t, types.Account{Nonce: 2, Chips: 60}, acct)
}

func TestExecute_FeatureDisabled(t *testing.T) {
	alice := testKey(1)
	cfg := types.DefaultChainConfig()
	cfg.CasinoEnabled = false
	_, w := working(t, cfg, alice)

	out, err := New().Execute(context.Background(), 1, w, []types.Transaction{signed(t, alice, 0, placeBet(10))})
	require.NoError(t, err)
	require.Equal(t, handlers.CodeFeatureDisabled, out.Receipts[0].Code)
}

type faultyRouter struct{}

func (faultyRouter) Apply(handlers.Env, state.View, types.PublicKey, types.Instruction) ([]types.Event, error) {
	return nil, errors.New("disk unavailable")
}

func TestExecute_StorageFaultIsFatal(t *testing.T) {
	alice := testKey(1)
	_, w := working(t, types.DefaultChainConfig(), alice)

	_, err := New(WithRouter(faultyRouter{})).Execute(context.Background(), 1, w, []types.Transaction{signed(t, alice, 0, placeBet(10))})
	require.ErrorContains(t, err, "disk unavailable")
}

func TestExecute_CanceledBeforeStart(t *testing.T) {
	_, w := working(t, types.DefaultChainConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Execute(ctx, 1, w, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExecute_Deterministic(t *testing.T) {
	alice, bob := testKey(1), testKey(2)
	txs := []types.Transaction{
		signed(t, alice, 0, placeBet(10)),
		signed(t, bob, 0, types.NewCasino(types.CasinoInstruction{Op: types.CasinoRegister, Name: "bob"})),
		signed(t, bob, 1, placeBet(30)),
		signed(t, alice, 1, types.NewCasino(types.CasinoInstruction{Op: types.CasinoStartGame, Game: types.GameDice, SessionID: 1})),
		signed(t, alice, 2, types.NewCasino(types.CasinoInstruction{Op: types.CasinoGameMove, SessionID: 1, Move: 50})),
	}
	run := func() (Output, types.Hash) {
		_, w := working(t, types.DefaultChainConfig(), alice, bob)
		out, err := New().Execute(context.Background(), 1, w, txs)
		require.NoError(t, err)
		return out, w.Root()
	}
	a, rootA := run()
	b, rootB := run()
	require.Equal(t, rootA, rootB)
	require.True(t, types.EventsEqual(a.Events, b.Events))
	require.True(t, types.ReceiptsEqual(a.Receipts, b.Receipts))
	require.Equal(t, a.ProcessedNonces, b.ProcessedNonces)
	for _, r := range a.Receipts {
		require.True(t, r.Success, r.Error)
	}
}
