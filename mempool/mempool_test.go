package mempool

import (
	"crypto/ed25519"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func deposit(t *testing.T, priv ed25519.PrivateKey, nonce uint64) types.Transaction {
	t.Helper()
	tx, err := types.SignTransaction(priv, nonce, types.NewCasino(types.CasinoInstruction{
		Op:     types.CasinoDeposit,
		Amount: 100,
	}))
	require.NoError(t, err)
	return tx
}

func nonces(txs []types.Transaction) []uint64 {
	out := make([]uint64, len(txs))
	for i, tx := range txs {
		out[i] = tx.Nonce
	}
	return out
}

func TestMempool_AddAndDuplicate(t *testing.T) {
	m := New(DefaultConfig(), nil)
	alice := testKey(1)

	require.NoError(t, m.Add(deposit(t, alice, 0)))
	require.ErrorIs(t, m.Add(deposit(t, alice, 0)), ErrDuplicateNonce)

	txs, accounts := m.Len()
	assert.Equal(t, 1, txs)
	assert.Equal(t, 1, accounts)
}

func TestMempool_Full(t *testing.T) {
	m := New(Config{MaxBacklog: 10, MaxTransactions: 2}, nil)
	require.NoError(t, m.Add(deposit(t, testKey(1), 0)))
	require.NoError(t, m.Add(deposit(t, testKey(2), 0)))
	require.ErrorIs(t, m.Add(deposit(t, testKey(3), 0)), ErrMempoolFull)
}

func TestMempool_BacklogEvictsHighestNonce(t *testing.T) {
	m := New(Config{MaxBacklog: 3, MaxTransactions: 100}, nil)
	alice := testKey(1)
	for _, n := range []uint64{0, 1, 5} {
		require.NoError(t, m.Add(deposit(t, alice, n)))
	}

	// Nonce 2 fits by evicting 5.
	require.NoError(t, m.Add(deposit(t, alice, 2)))
	assert.Equal(t, []uint64{0, 1, 2}, nonces(m.Pending(pub(alice))))

	// Nonce 9 is itself the highest and is refused.
	require.ErrorIs(t, m.Add(deposit(t, alice, 9)), ErrBacklogExceeded)
	assert.Equal(t, []uint64{0, 1, 2}, nonces(m.Pending(pub(alice))))

	txs, _ := m.Len()
	assert.Equal(t, 3, txs)
}

func TestMempool_Retain(t *testing.T) {
	m := New(DefaultConfig(), nil)
	alice, bob := testKey(1), testKey(2)
	for n := uint64(0); n < 4; n++ {
		require.NoError(t, m.Add(deposit(t, alice, n)))
	}
	require.NoError(t, m.Add(deposit(t, bob, 0)))

	m.Retain(pub(alice), 2)
	assert.Equal(t, []uint64{2, 3}, nonces(m.Pending(pub(alice))))

	m.Retain(pub(bob), 1)
	assert.Empty(t, m.Pending(pub(bob)))

	txs, accounts := m.Len()
	assert.Equal(t, 2, txs)
	assert.Equal(t, 1, accounts)

	// Unknown account is a no-op.
	m.Retain(pub(testKey(9)), 100)
}

func TestMempool_NextRoundRobin(t *testing.T) {
	m := New(DefaultConfig(), nil)
	alice, bob := testKey(1), testKey(2)
	for n := uint64(0); n < 3; n++ {
		require.NoError(t, m.Add(deposit(t, alice, n)))
	}
	require.NoError(t, m.Add(deposit(t, bob, 0)))

	var order []types.PublicKey
	var got []uint64
	for {
		tx, ok := m.Next()
		if !ok {
			break
		}
		order = append(order, tx.Public)
		got = append(got, tx.Nonce)
	}
	assert.Equal(t, []types.PublicKey{pub(alice), pub(bob), pub(alice), pub(alice)}, order)
	assert.Equal(t, []uint64{0, 0, 1, 2}, got)

	txs, accounts := m.Len()
	assert.Zero(t, txs)
	assert.Zero(t, accounts)
}

func TestMempool_NextSkipsRetainedAccounts(t *testing.T) {
	m := New(DefaultConfig(), nil)
	alice, bob := testKey(1), testKey(2)
	require.NoError(t, m.Add(deposit(t, alice, 0)))
	require.NoError(t, m.Add(deposit(t, bob, 0)))
	m.Retain(pub(alice), 1)

	tx, ok := m.Next()
	require.True(t, ok)
	assert.Equal(t, pub(bob), tx.Public)
	_, ok = m.Next()
	assert.False(t, ok)
}

func TestMempool_SelectConsecutiveNonces(t *testing.T) {
	m := New(DefaultConfig(), nil)
	alice, bob, carol := testKey(1), testKey(2), testKey(3)
	for _, n := range []uint64{3, 4, 5} {
		require.NoError(t, m.Add(deposit(t, alice, n)))
	}
	// Bob has a gap after 0.
	for _, n := range []uint64{0, 2} {
		require.NoError(t, m.Add(deposit(t, bob, n)))
	}
	// Carol's queue does not start at her expected nonce.
	require.NoError(t, m.Add(deposit(t, carol, 7)))

	expected := map[types.PublicKey]uint64{pub(alice): 3, pub(bob): 0, pub(carol): 6}
	got := m.Select(10, func(pk types.PublicKey) uint64 { return expected[pk] })

	var order []types.PublicKey
	for _, tx := range got {
		order = append(order, tx.Public)
	}
	assert.Equal(t, []types.PublicKey{pub(alice), pub(bob), pub(alice), pub(alice)}, order)
	assert.Equal(t, []uint64{3, 0, 4, 5}, nonces(got))

	// Selection removes nothing.
	txs, _ := m.Len()
	assert.Equal(t, 6, txs)
}

func TestMempool_SelectLimit(t *testing.T) {
	m := New(DefaultConfig(), nil)
	alice, bob := testKey(1), testKey(2)
	for n := uint64(0); n < 5; n++ {
		require.NoError(t, m.Add(deposit(t, alice, n)))
		require.NoError(t, m.Add(deposit(t, bob, n)))
	}
	got := m.Select(3, nil)
	assert.Equal(t, []uint64{0, 0, 1}, nonces(got))
	assert.Empty(t, m.Select(0, nil))
}

func TestMempool_ConcurrentAdd(t *testing.T) {
	m := New(DefaultConfig(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		key := testKey(byte(i + 1))
		txs := make([]types.Transaction, 16)
		for n := range txs {
			txs[n] = deposit(t, key, uint64(n))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, tx := range txs {
				_ = m.Add(tx)
			}
		}()
	}
	wg.Wait()

	txs, accounts := m.Len()
	assert.Equal(t, 8*16, txs)
	assert.Equal(t, 8, accounts)
	assert.Len(t, m.Select(1000, nil), 8*16)
}
