package devnet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/nullspace"
	"github.com/blockberries/nullspace/ledger"
	"github.com/blockberries/nullspace/local"
	"github.com/blockberries/nullspace/logging"
	nullspacetest "github.com/blockberries/nullspace/testing"
	"github.com/blockberries/nullspace/types"
)

func connect(t *testing.T, app nullspace.Lifecycle, genesis types.GenesisDoc) (*local.Connection, types.BlockID) {
	t.Helper()
	conn := local.NewConnection(app, logging.Discard())
	resp, err := conn.Handshake(context.Background(), types.HandshakeRequest{Genesis: &genesis})
	require.NoError(t, err)
	return conn, resp.LastBlock
}

func TestProducer_IncludesMempool(t *testing.T) {
	alice := nullspacetest.Key(1)
	app := nullspacetest.NewLedger(t, ledger.Config{})
	conn, last := connect(t, app, nullspacetest.DefaultGenesis(alice))
	p := New(conn, last, Config{MaxTxs: 2}, logging.Discard())

	for n := uint64(0); n < 3; n++ {
		v, err := conn.CheckTx(context.Background(), nullspacetest.Sign(t, alice, n, nullspacetest.PlaceBet(1)))
		require.NoError(t, err)
		require.True(t, v.Accepted(), v.Reason)
	}

	res, err := p.Produce(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Receipts, 2)
	require.Equal(t, uint64(1), p.Last().Height)

	res, err = p.Produce(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Receipts, 1)
	require.Equal(t, types.BlockID{Height: 2, Root: res.NewRoot}, p.Last())
}

func TestProducer_SkipEmpty(t *testing.T) {
	app := nullspacetest.NewLedger(t, ledger.Config{})
	conn, last := connect(t, app, nullspacetest.DefaultGenesis())
	p := New(conn, last, Config{SkipEmpty: true}, logging.Discard())

	res, err := p.Produce(context.Background())
	require.NoError(t, err)
	require.True(t, res.NoOp())
	require.Equal(t, last, p.Last())
}

func TestProducer_WithoutProposalControl(t *testing.T) {
	mock := &nullspacetest.MockApp{}
	conn, last := connect(t, mock, types.GenesisDoc{})
	p := New(conn, last, Config{}, logging.Discard())

	_, err := p.Produce(context.Background())
	require.NoError(t, err)
	require.Len(t, mock.Applied, 1)
	require.Empty(t, mock.Applied[0].Txs)
}

func TestProducer_RunStopsOnHalt(t *testing.T) {
	mock := &nullspacetest.MockApp{
		ApplyBlockFn: func(_ context.Context, b types.Block) (types.StateTransitionResult, error) {
			if b.Height == 3 {
				return types.StateTransitionResult{}, nullspace.NewHaltError(3, "disk full")
			}
			return types.StateTransitionResult{StartHeight: b.Height - 1, EndHeight: b.Height}, nil
		},
	}
	conn, last := connect(t, mock, types.GenesisDoc{})
	p := New(conn, last, Config{BlockTime: time.Millisecond}, logging.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.Run(ctx)
	h, ok := nullspace.IsHalt(err)
	require.True(t, ok, "expected halt, got %v", err)
	require.Equal(t, uint64(3), h.Height)
	require.Equal(t, uint64(2), p.Last().Height)
}
