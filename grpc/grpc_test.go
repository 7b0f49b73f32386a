package nullspacegrpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/blockberries/nullspace"
	nullspacegrpc "github.com/blockberries/nullspace/grpc"
	"github.com/blockberries/nullspace/ledger"
	"github.com/blockberries/nullspace/logging"
	nullspacetest "github.com/blockberries/nullspace/testing"
	"github.com/blockberries/nullspace/types"
)

// startServer serves app on a random local port until the test ends.
func startServer(t *testing.T, app nullspace.Lifecycle) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	gs := nullspacegrpc.NewGRPCServer(app, logging.Discard()).NewServer()
	go func() {
		// Serve returns after GracefulStop.
		_ = gs.Serve(lis)
	}()
	t.Cleanup(gs.GracefulStop)
	return lis.Addr().String()
}

func dial(t *testing.T, addr string) *nullspacegrpc.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := nullspacegrpc.Dial(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGRPC_LedgerLifecycle(t *testing.T) {
	alice, bob := nullspacetest.Key(1), nullspacetest.Key(2)
	client := dial(t, startServer(t, nullspacetest.NewLedger(t, ledger.Config{})))
	ctx := context.Background()

	genesis := nullspacetest.DefaultGenesis(alice, bob)
	resp, err := client.Handshake(ctx, types.HandshakeRequest{Genesis: &genesis})
	require.NoError(t, err)
	require.Equal(t, ledger.Capabilities, resp.Capabilities)
	require.False(t, resp.LastBlock.Root.IsZero())

	tx := nullspacetest.Sign(t, alice, 0, nullspacetest.PlaceBet(5))
	v, err := client.CheckTx(ctx, tx)
	require.NoError(t, err)
	require.True(t, v.Accepted(), v.Info)

	stale := nullspacetest.Sign(t, bob, 3, nullspacetest.PlaceBet(5))
	stale.Signature[1] ^= 1
	v, err = client.CheckTx(ctx, stale)
	require.NoError(t, err)
	require.Equal(t, types.RejectInvalidSignature, v.Reason)

	res, err := client.ApplyBlock(ctx, types.Block{Height: 1, Txs: []types.Transaction{tx}})
	require.NoError(t, err)
	require.Len(t, res.Receipts, 1)
	require.True(t, res.Receipts[0].Success)
	require.Equal(t, uint64(1), res.EndHeight)

	again, err := client.ApplyBlock(ctx, types.Block{Height: 1, Txs: []types.Transaction{tx}})
	require.NoError(t, err)
	require.True(t, again.NoOp())

	q, err := client.Query(ctx, types.StateQuery{Path: types.QueryAccount, Account: nullspacetest.Pub(alice), Prove: true})
	require.NoError(t, err)
	require.True(t, q.OK())
	require.Equal(t, uint64(995), q.Account.Chips)
	require.NotNil(t, q.Proof)
	require.Equal(t, res.NewRoot, q.Root)
}

func TestGRPC_TypedErrors(t *testing.T) {
	client := dial(t, startServer(t, nullspacetest.NewLedger(t, ledger.Config{})))
	ctx := context.Background()

	genesis := nullspacetest.DefaultGenesis()
	_, err := client.Handshake(ctx, types.HandshakeRequest{Genesis: &genesis})
	require.NoError(t, err)

	_, err = client.ApplyBlock(ctx, types.Block{Height: 4})
	require.ErrorIs(t, err, nullspace.ErrOutOfOrderHeight)
	var ooo *nullspace.OutOfOrderHeightError
	require.ErrorAs(t, err, &ooo)
	require.Equal(t, uint64(1), ooo.Expected)
	require.Equal(t, uint64(4), ooo.Got)

	_, err = client.ApplyBlock(ctx, types.Block{Height: 1, ParentRoot: types.Hash{0xde, 0xad}})
	require.ErrorIs(t, err, nullspace.ErrParentRootMismatch)

	// Neither error halted the ledger.
	_, err = client.ApplyBlock(ctx, types.Block{Height: 1})
	require.NoError(t, err)
}

func TestGRPC_HaltCrossesTheWire(t *testing.T) {
	mock := &nullspacetest.MockApp{
		ApplyBlockFn: func(_ context.Context, b types.Block) (types.StateTransitionResult, error) {
			return types.StateTransitionResult{}, nullspace.NewHaltError(b.Height, "state root mismatch")
		},
	}
	client := dial(t, startServer(t, mock))
	ctx := context.Background()

	_, err := client.Handshake(ctx, types.HandshakeRequest{})
	require.NoError(t, err)

	_, err = client.ApplyBlock(ctx, types.Block{Height: 1})
	halt, ok := nullspace.IsHalt(err)
	require.True(t, ok, "got %v", err)
	require.Equal(t, uint64(1), halt.Height)
	require.Equal(t, "state root mismatch", halt.Reason)

	_, err = client.ApplyBlock(ctx, types.Block{Height: 2})
	_, ok = nullspace.IsHalt(err)
	require.True(t, ok)
	require.Equal(t, int64(1), mock.ApplyBlockCalls.Load())
}

func TestGRPC_ProposalAndSimulation(t *testing.T) {
	alice := nullspacetest.Key(1)
	client := dial(t, startServer(t, nullspacetest.NewLedger(t, ledger.Config{})))
	ctx := context.Background()

	genesis := nullspacetest.DefaultGenesis(alice)
	_, err := client.Handshake(ctx, types.HandshakeRequest{Genesis: &genesis})
	require.NoError(t, err)

	for n := uint64(0); n < 3; n++ {
		v, err := client.CheckTx(ctx, nullspacetest.Sign(t, alice, n, nullspacetest.PlaceBet(1)))
		require.NoError(t, err)
		require.True(t, v.Accepted())
	}

	pc := client.AsProposalControl()
	require.NotNil(t, pc)
	built, err := pc.BuildProposal(ctx, types.ProposalContext{Height: 1, MaxTxs: 2})
	require.NoError(t, err)
	require.Len(t, built.Txs, 2)
	require.Equal(t, uint64(0), built.Txs[0].Nonce)
	require.Equal(t, uint64(1), built.Txs[1].Nonce)

	verdict, err := pc.VerifyProposal(ctx, types.ReceivedProposal{Height: 1, Txs: append(built.Txs, built.Txs[0])})
	require.NoError(t, err)
	require.False(t, verdict.Accept)
	require.Equal(t, uint32(2), verdict.TxIndex)

	sim := client.AsSimulator()
	require.NotNil(t, sim)
	out, err := sim.Simulate(ctx, nullspacetest.Sign(t, alice, 0, nullspacetest.PlaceBet(2000)))
	require.NoError(t, err)
	require.False(t, out.Receipt.Success)
	require.Equal(t, uint64(1), out.Height)
}

func TestGRPC_StateSync(t *testing.T) {
	ctx := context.Background()
	doc := nullspacetest.DefaultGenesis()
	for seed := byte(1); seed <= 5; seed++ {
		doc.Accounts = append(doc.Accounts, types.GenesisAccount{Public: nullspacetest.Pub(nullspacetest.Key(seed)), Chips: 50})
	}

	src := dial(t, startServer(t, nullspacetest.NewLedger(t, ledger.Config{SnapshotChunkLeaves: 2})))
	_, err := src.Handshake(ctx, types.HandshakeRequest{Genesis: &doc})
	require.NoError(t, err)
	applied, err := src.ApplyBlock(ctx, types.Block{Height: 1, Txs: []types.Transaction{
		nullspacetest.Sign(t, nullspacetest.Key(1), 0, nullspacetest.PlaceBet(5)),
	}})
	require.NoError(t, err)

	dst := dial(t, startServer(t, nullspacetest.NewLedger(t, ledger.Config{})))
	resp, err := dst.Handshake(ctx, types.HandshakeRequest{AwaitSnapshot: true})
	require.NoError(t, err)
	require.True(t, resp.LastBlock.Root.IsZero())

	snaps, err := src.AsStateSync().AvailableSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Greater(t, snaps[0].Chunks, uint32(1))
	require.Equal(t, applied.NewRoot, snaps[0].Root)

	chunks, desc, err := src.AsStateSync().ExportSnapshot(ctx, snaps[0].Height, snaps[0].Format)
	require.NoError(t, err)
	require.Equal(t, snaps[0], *desc)

	result, err := dst.AsStateSync().ImportSnapshot(ctx, *desc, chunks)
	require.NoError(t, err)
	require.Equal(t, types.ImportOK, result.Status, result.Reason)
	require.Equal(t, desc.Root, *result.Root)

	// Both ledgers continue from the same root.
	next := types.Block{Height: 2, ParentRoot: desc.Root, Txs: []types.Transaction{
		nullspacetest.Sign(t, nullspacetest.Key(2), 0, nullspacetest.PlaceBet(7)),
	}}
	r1, err := src.ApplyBlock(ctx, next)
	require.NoError(t, err)
	r2, err := dst.ApplyBlock(ctx, next)
	require.NoError(t, err)
	require.Equal(t, r1.NewRoot, r2.NewRoot)
}
