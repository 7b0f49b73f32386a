package state_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/nullspace/state"
	"github.com/blockberries/nullspace/types"
)

func TestEncodeDecodeAccount(t *testing.T) {
	acct := types.Account{Nonce: 3, Chips: 100, VUSDT: 7}
	blob, err := state.Encode(acct)
	require.NoError(t, err)
	require.Equal(t, types.AccountVersion, blob[0])

	var got types.Account
	require.NoError(t, state.Decode(blob, &got))
	require.Equal(t, acct, got)
}

func TestDecodeUnknownVersion(t *testing.T) {
	blob, err := state.Encode(types.Account{Nonce: 1})
	require.NoError(t, err)
	blob[0] = 9

	var got types.Account
	require.ErrorIs(t, state.Decode(blob, &got), state.ErrUnknownVersion)
}

func TestDecodeTruncatedFailsClosed(t *testing.T) {
	sess := types.Session{ID: 4, Bet: 50, Moves: 2, State: []byte{1, 2, 3}}
	blob, err := state.Encode(sess)
	require.NoError(t, err)

	// Every strict prefix must fail; none may yield a zero-filled session.
	for n := 0; n < len(blob); n++ {
		var got types.Session
		err := state.Decode(blob[:n], &got)
		require.Error(t, err, "prefix of %d bytes decoded", n)
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	blob, err := state.Encode(types.Vault{Collateral: 1, Debt: 2})
	require.NoError(t, err)
	blob = append(blob, 0x00)

	var got types.Vault
	require.ErrorIs(t, state.Decode(blob, &got), state.ErrMalformed)
}

func TestKeysAreNamespaced(t *testing.T) {
	var pk types.PublicKey
	pk[0] = 7
	keys := []types.Key{
		state.AccountKey(pk),
		state.PlayerKey(pk),
		state.StakerKey(pk),
		state.VaultKey(pk),
		state.LpBalanceKey(pk),
		state.SessionKey(pk, 0),
		state.SessionKey(pk, 1),
		state.ConfigKey,
		state.HouseKey,
		state.AmmPoolKey,
	}
	seen := map[types.Key]bool{}
	for _, k := range keys {
		require.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
	require.Equal(t, state.AccountKey(pk), state.AccountKey(pk))
}

func TestLoadHelpers(t *testing.T) {
	view := state.MemView{}
	var pk types.PublicKey
	pk[1] = 1

	acct, err := state.LoadAccount(view, pk)
	require.NoError(t, err)
	require.Equal(t, types.Account{}, acct)

	_, err = state.LoadConfig(view)
	require.ErrorIs(t, err, state.ErrMissingConfig)

	require.NoError(t, state.WriteGenesis(view, types.GenesisDoc{
		Config:   types.DefaultChainConfig(),
		Accounts: []types.GenesisAccount{{Public: pk, Chips: 500}},
		Pool:     &types.GenesisPool{ReserveChips: 1_000_000, ReserveVUSDT: 1_000_000},
	}))

	acct, err = state.LoadAccount(view, pk)
	require.NoError(t, err)
	require.Equal(t, uint64(500), acct.Chips)

	pool, err := state.LoadPool(view)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), pool.TotalShares)
	require.Equal(t, uint32(30), pool.FeeBps)

	view[state.PlayerKey(pk)] = []byte{types.PlayerVersion}
	_, _, err = state.LoadPlayer(view, pk)
	require.ErrorIs(t, err, state.ErrTruncated)
}

func TestWriteGenesisRejectsDuplicates(t *testing.T) {
	var pk types.PublicKey
	err := state.WriteGenesis(state.MemView{}, types.GenesisDoc{
		Config:   types.DefaultChainConfig(),
		Accounts: []types.GenesisAccount{{Public: pk}, {Public: pk}},
	})
	require.Error(t, err)
}

func TestWriteGenesisRejectsBasisPointsAboveScale(t *testing.T) {
	cfg := types.DefaultChainConfig()
	cfg.AmmFeeBps = 20_000
	err := state.WriteGenesis(state.MemView{}, types.GenesisDoc{Config: cfg})
	require.Error(t, err)

	cfg = types.DefaultChainConfig()
	cfg.SellTaxBps = types.MaxBps + 1
	err = state.WriteGenesis(state.MemView{}, types.GenesisDoc{Config: cfg})
	require.Error(t, err)

	cfg.SellTaxBps = types.MaxBps
	require.NoError(t, state.WriteGenesis(state.MemView{}, types.GenesisDoc{Config: cfg}))
}
