package nullspacetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/nullspace"
	"github.com/blockberries/nullspace/ledger"
	"github.com/blockberries/nullspace/types"
)

func TestLedgerCompliance(t *testing.T) {
	RunComplianceSuite(t, func(t testing.TB) nullspace.Lifecycle {
		return NewLedger(t, ledger.Config{})
	})
}

func TestHarness_AccountAndVerdicts(t *testing.T) {
	app := NewLedger(t, ledger.Config{})
	h := NewHarness(t, app)
	alice := Key(1)
	h.Genesis(DefaultGenesis(alice))
	h.ApplyNext(Sign(t, alice, 0, PlaceBet(10)))
	require.Equal(t, uint64(1), h.Height())

	acct := h.Account(Pub(alice))
	require.Equal(t, uint64(1), acct.Nonce)
	require.Equal(t, uint64(990), acct.Chips)

	h.MustAcceptTx(Sign(t, alice, 1, PlaceBet(1)))
	h.MustRejectTx(Sign(t, alice, 0, PlaceBet(1)), types.RejectInvalidNonce)
}

func TestMockApp_Defaults(t *testing.T) {
	mock := &MockApp{DeclaredCapabilities: types.CapSimulation}
	h := NewHarness(t, mock)
	resp := h.Genesis(DefaultGenesis())
	require.Equal(t, types.CapSimulation, resp.Capabilities)

	res := h.ApplyNext(Sign(t, Key(1), 0, PlaceBet(1)))
	require.Len(t, res.Receipts, 1)
	require.True(t, res.Receipts[0].Success)
	require.Len(t, mock.Applied, 1)

	require.True(t, h.Apply(MakeBlock(1)).NoOp())
	_, err := h.Server().ApplyBlock(context.Background(), MakeBlock(5))
	require.ErrorIs(t, err, nullspace.ErrOutOfOrderHeight)

	sim, err := h.Server().AsSimulator().Simulate(context.Background(), Sign(t, Key(1), 1, PlaceBet(1)))
	require.NoError(t, err)
	require.Equal(t, uint64(2), sim.Height)

	require.Equal(t, int64(1), mock.HandshakeCalls.Load())
	require.Equal(t, int64(3), mock.ApplyBlockCalls.Load())
}

func TestMockApp_HaltThroughHarness(t *testing.T) {
	mock := &MockApp{
		ApplyBlockFn: func(_ context.Context, b types.Block) (types.StateTransitionResult, error) {
			return types.StateTransitionResult{}, nullspace.NewHaltError(b.Height, "disk gone")
		},
	}
	h := NewHarness(t, mock)
	h.Genesis(DefaultGenesis())

	_, err := h.Server().ApplyBlock(context.Background(), MakeBlock(1))
	var halt *nullspace.HaltError
	require.True(t, errors.As(err, &halt))
	require.Equal(t, "disk gone", halt.Reason)

	_, err = h.Server().ApplyBlock(context.Background(), MakeBlock(1))
	require.ErrorAs(t, err, &halt)
	require.Equal(t, int64(1), mock.ApplyBlockCalls.Load())
}
