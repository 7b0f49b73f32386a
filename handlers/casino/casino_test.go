package casino

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/nullspace/handlers"
	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/types"
)

func player(b byte) types.PublicKey {
	var pk types.PublicKey
	pk[0] = b
	return pk
}

func env(height uint64) handlers.Env {
	return handlers.Env{Height: height, Config: types.DefaultChainConfig()}
}

func apply(t *testing.T, h *Handler, view state.View, height uint64, pk types.PublicKey, c types.CasinoInstruction) ([]types.Event, error) {
	t.Helper()
	return h.Apply(env(height), view, pk, types.NewCasino(c))
}

func requireCode(t *testing.T, err error, code uint32) {
	t.Helper()
	de, ok := handlers.AsDomainError(err)
	require.True(t, ok, "expected domain error, got %v", err)
	require.Equal(t, code, de.Code)
}

func TestRegister(t *testing.T) {
	h := New(nil)
	view := state.MemView{}
	pk := player(1)

	events, err := apply(t, h, view, 1, pk, types.CasinoInstruction{Op: types.CasinoRegister, Name: "alice"})
	require.NoError(t, err)
	require.Equal(t, types.EventPlayerRegistered, events[0].Kind)

	_, err = apply(t, h, view, 2, pk, types.CasinoInstruction{Op: types.CasinoRegister, Name: "alice"})
	requireCode(t, err, handlers.CodeAlreadyExists)
}

func TestDepositBounds(t *testing.T) {
	h := New(nil)
	view := state.MemView{}
	pk := player(1)

	_, err := apply(t, h, view, 1, pk, types.CasinoInstruction{Op: types.CasinoDeposit, Amount: 0})
	requireCode(t, err, handlers.CodeInvalidAmount)
	_, err = apply(t, h, view, 1, pk, types.CasinoInstruction{Op: types.CasinoDeposit, Amount: types.DefaultChainConfig().MaxDeposit + 1})
	requireCode(t, err, handlers.CodeInvalidAmount)

	events, err := apply(t, h, view, 1, pk, types.CasinoInstruction{Op: types.CasinoDeposit, Amount: 500})
	require.NoError(t, err)
	bal, _ := events[0].UintAttr("balance")
	require.Equal(t, uint64(500), bal)
}

func TestPlaceBetMovesChipsToPendingWager(t *testing.T) {
	h := New(nil)
	view := state.MemView{}
	pk := player(1)
	require.NoError(t, state.StoreAccount(view, pk, types.Account{Nonce: 3, Chips: 100}))

	events, err := apply(t, h, view, 1, pk, types.CasinoInstruction{Op: types.CasinoPlaceBet, Amount: 50})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].Equal(types.NewEvent(types.EventBetPlaced, pk, types.Uint("amount", 50))))

	acct, err := state.LoadAccount(view, pk)
	require.NoError(t, err)
	require.Equal(t, uint64(50), acct.Chips)
	p, _, err := state.LoadPlayer(view, pk)
	require.NoError(t, err)
	require.Equal(t, uint64(50), p.PendingWager)

	_, err = apply(t, h, view, 1, pk, types.CasinoInstruction{Op: types.CasinoPlaceBet, Amount: 51})
	requireCode(t, err, handlers.CodeInsufficientFunds)
}

func TestSessionLifecycle(t *testing.T) {
	h := New(nil)
	view := state.MemView{}
	pk := player(2)
	require.NoError(t, state.StoreAccount(view, pk, types.Account{Chips: 1000}))

	_, err := apply(t, h, view, 1, pk, types.CasinoInstruction{Op: types.CasinoStartGame, Game: types.GameCoinFlip, SessionID: 1})
	requireCode(t, err, handlers.CodeInsufficientFunds)

	_, err = apply(t, h, view, 1, pk, types.CasinoInstruction{Op: types.CasinoPlaceBet, Amount: 100})
	require.NoError(t, err)
	events, err := apply(t, h, view, 2, pk, types.CasinoInstruction{Op: types.CasinoStartGame, Game: types.GameCoinFlip, SessionID: 1})
	require.NoError(t, err)
	require.Equal(t, types.EventGameStarted, events[0].Kind)

	house, err := state.LoadHouse(view)
	require.NoError(t, err)
	require.Equal(t, uint64(100), house.EpochWagered)

	_, err = apply(t, h, view, 3, pk, types.CasinoInstruction{Op: types.CasinoGameMove, SessionID: 1, Move: 7})
	requireCode(t, err, handlers.CodeInvalidMove)

	events, err = apply(t, h, view, 3, pk, types.CasinoInstruction{Op: types.CasinoGameMove, SessionID: 1, Move: 0})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, types.EventGameCompleted, events[1].Kind)
	payout, _ := events[1].UintAttr("payout")
	require.Contains(t, []uint64{0, 200}, payout)

	acct, err := state.LoadAccount(view, pk)
	require.NoError(t, err)
	require.Equal(t, 900+payout, acct.Chips)
	p, _, err := state.LoadPlayer(view, pk)
	require.NoError(t, err)
	require.Zero(t, p.ActiveSession)
	require.Equal(t, uint64(1), p.SessionsPlayed)

	_, err = apply(t, h, view, 4, pk, types.CasinoInstruction{Op: types.CasinoGameMove, SessionID: 1, Move: 0})
	requireCode(t, err, handlers.CodeInvalidMove)
	_, err = apply(t, h, view, 4, pk, types.CasinoInstruction{Op: types.CasinoGameMove, SessionID: 9, Move: 0})
	requireCode(t, err, handlers.CodeNotFound)
}

func TestSessionOutcomeIsDeterministic(t *testing.T) {
	run := func() []types.Event {
		h := New(nil)
		view := state.MemView{}
		pk := player(3)
		require.NoError(t, state.StoreAccount(view, pk, types.Account{Chips: 1000}))
		var all []types.Event
		for _, c := range []types.CasinoInstruction{
			{Op: types.CasinoPlaceBet, Amount: 10},
			{Op: types.CasinoStartGame, Game: types.GameHiLo, SessionID: 5},
			{Op: types.CasinoGameMove, SessionID: 5, Move: HiLoHigher},
			{Op: types.CasinoGameMove, SessionID: 5, Move: HiLoLower},
		} {
			events, err := apply(t, h, view, 10, pk, c)
			if err != nil {
				// The session may already be over; that is part of the outcome.
				_, ok := handlers.AsDomainError(err)
				require.True(t, ok)
				continue
			}
			all = append(all, events...)
		}
		return all
	}
	require.True(t, types.EventsEqual(run(), run()))
}

func TestRand(t *testing.T) {
	seed := SessionSeed(player(1), 1, 1)
	a, b := NewRand(seed), NewRand(seed)
	for i := 0; i < 100; i++ {
		v := a.Intn(13)
		require.Less(t, v, uint64(13))
		require.Equal(t, v, b.Intn(13))
	}
	require.NotEqual(t, seed, SessionSeed(player(1), 1, 2))
	require.NotEqual(t, seed, SessionSeed(player(1), 2, 1))
}

func TestHiLoCashOut(t *testing.T) {
	g := HiLo{}
	rng := NewRand(types.Hash{1})
	st, err := g.Init(100, rng)
	require.NoError(t, err)
	_, out, err := g.Move(st, HiLoCashOut, 100, rng)
	require.NoError(t, err)
	require.True(t, out.Complete)
	require.Equal(t, uint64(100), out.Payout)

	_, _, err = g.Move(st, 9, 100, rng)
	requireCode(t, err, handlers.CodeInvalidMove)
}

func TestDiceTargetRange(t *testing.T) {
	g := Dice{}
	rng := NewRand(types.Hash{2})
	st, err := g.Init(100, rng)
	require.NoError(t, err)
	_, _, err = g.Move(st, 0, 100, rng)
	requireCode(t, err, handlers.CodeInvalidMove)
	_, _, err = g.Move(st, 96, 100, rng)
	requireCode(t, err, handlers.CodeInvalidMove)
	_, out, err := g.Move(st, 50, 100, rng)
	require.NoError(t, err)
	require.True(t, out.Complete)
	require.Contains(t, []uint64{0, 198}, out.Payout)
}

func TestGameStateIsFailClosed(t *testing.T) {
	_, _, err := CoinFlip{}.Move([]byte{9, 0xc1, 0x01}, 0, 1, NewRand(types.Hash{}))
	require.ErrorIs(t, err, state.ErrUnknownVersion)
}

func TestRegistryTypes(t *testing.T) {
	require.Equal(t, []types.GameType{types.GameCoinFlip, types.GameHiLo, types.GameDice}, DefaultRegistry().Types())
	_, ok := NewRegistry(CoinFlip{}).Lookup(types.GameDice)
	require.False(t, ok)
}
