package nullspacegrpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/blockberries/nullspace"
	"github.com/blockberries/nullspace/server"
	"github.com/blockberries/nullspace/types"
)

// Compile-time interface check.
var _ nullspace.Connection = (*Client)(nil)

// Client implements nullspace.Connection for a remote ledger over
// gRPC using cramberry serialization.
type Client struct {
	cc    *grpc.ClientConn
	caps  types.Capabilities
	guard *server.LifecycleGuard
	halt  error
}

// Dial connects to a remote ledger.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(CallOption()))
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("nullspace client: dial %s: %w", addr, err)
	}
	return &Client{
		cc:    cc,
		guard: server.NewLifecycleGuard(),
	}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

// invoke performs a unary call and rebuilds typed ledger errors.
func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	var trailer metadata.MD
	if err := c.cc.Invoke(ctx, fullMethod(method), req, resp, grpc.Trailer(&trailer)); err != nil {
		return fromStatus(err, trailer)
	}
	return nil
}

// --- Lifecycle ---

func (c *Client) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	c.guard.AcquireHandshake()

	resp := new(types.HandshakeResponse)
	if err := c.invoke(ctx, "Handshake", &req, resp); err != nil {
		c.guard.FailHandshake()
		return types.HandshakeResponse{}, err
	}

	c.caps = resp.Capabilities
	c.guard.CompleteHandshake()
	return *resp, nil
}

func (c *Client) CheckTx(ctx context.Context, tx types.Transaction) (types.Verdict, error) {
	c.guard.CheckConcurrent()

	resp := new(types.Verdict)
	if err := c.invoke(ctx, "CheckTx", &CheckTxRequest{Tx: tx}, resp); err != nil {
		return types.Verdict{}, err
	}
	return *resp, nil
}

// ApplyBlock applies a block remotely. Once the ledger halts the
// client stops sending blocks and repeats the halt.
func (c *Client) ApplyBlock(ctx context.Context, block types.Block) (types.StateTransitionResult, error) {
	if !c.guard.AcquireApply() {
		return types.StateTransitionResult{}, c.halt
	}

	resp := new(types.StateTransitionResult)
	err := c.invoke(ctx, "ApplyBlock", &block, resp)
	if _, ok := nullspace.IsHalt(err); ok {
		c.halt = err
		c.guard.FailApply()
		return types.StateTransitionResult{}, err
	}
	c.guard.CompleteApply()
	if err != nil {
		return types.StateTransitionResult{}, err
	}
	return *resp, nil
}

func (c *Client) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	c.guard.CheckConcurrent()

	resp := new(types.StateQueryResult)
	if err := c.invoke(ctx, "Query", &req, resp); err != nil {
		return types.StateQueryResult{}, err
	}
	return *resp, nil
}

// --- Capability Accessors ---

func (c *Client) Capabilities() types.Capabilities { return c.caps }

func (c *Client) AsProposalControl() nullspace.ProposalControl {
	if c.caps.Has(types.CapProposalControl) {
		return &clientProposalControl{c}
	}
	return nil
}

func (c *Client) AsStateSync() nullspace.StateSync {
	if c.caps.Has(types.CapStateSync) {
		return &clientStateSync{c}
	}
	return nil
}

func (c *Client) AsSimulator() nullspace.Simulator {
	if c.caps.Has(types.CapSimulation) {
		return &clientSimulator{c}
	}
	return nil
}

// --- ProposalControl wrapper ---

type clientProposalControl struct{ c *Client }

func (w *clientProposalControl) BuildProposal(ctx context.Context, pctx types.ProposalContext) (types.BuiltProposal, error) {
	resp := new(types.BuiltProposal)
	if err := w.c.invoke(ctx, "BuildProposal", &pctx, resp); err != nil {
		return types.BuiltProposal{}, err
	}
	return *resp, nil
}

func (w *clientProposalControl) VerifyProposal(ctx context.Context, prop types.ReceivedProposal) (types.ProposalVerdict, error) {
	resp := new(types.ProposalVerdict)
	if err := w.c.invoke(ctx, "VerifyProposal", &prop, resp); err != nil {
		return types.ProposalVerdict{}, err
	}
	return *resp, nil
}

// --- StateSync wrapper ---

type clientStateSync struct{ c *Client }

func (w *clientStateSync) AvailableSnapshots(ctx context.Context) ([]types.SnapshotDescriptor, error) {
	resp := new(AvailableSnapshotsResponse)
	if err := w.c.invoke(ctx, "AvailableSnapshots", &AvailableSnapshotsRequest{}, resp); err != nil {
		return nil, err
	}
	return resp.Snapshots, nil
}

// ExportSnapshot reads the descriptor synchronously, then streams the
// chunks on the returned channel.
func (w *clientStateSync) ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error) {
	stream, err := w.c.cc.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "ExportSnapshot",
		ServerStreams: true,
	}, fullMethod("ExportSnapshot"))
	if err != nil {
		return nil, nil, err
	}
	if err := stream.SendMsg(&ExportSnapshotRequest{Height: height, Format: format}); err != nil {
		return nil, nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, nil, err
	}

	first := new(SnapshotMessage)
	if err := stream.RecvMsg(first); err != nil {
		return nil, nil, err
	}
	if first.Descriptor == nil {
		return nil, nil, errors.New("nullspace client: export stream did not start with a descriptor")
	}

	ch := make(chan types.SnapshotChunk)
	go func() {
		defer close(ch)
		for {
			msg := new(SnapshotMessage)
			if err := stream.RecvMsg(msg); err != nil {
				// io.EOF ends the stream; other errors surface as
				// missing chunks on import.
				return
			}
			if msg.Chunk == nil {
				continue
			}
			select {
			case ch <- *msg.Chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, first.Descriptor, nil
}

func (w *clientStateSync) ImportSnapshot(ctx context.Context, desc types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error) {
	stream, err := w.c.cc.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "ImportSnapshot",
		ClientStreams: true,
	}, fullMethod("ImportSnapshot"))
	if err != nil {
		return types.ImportResult{}, err
	}

	// Send descriptor first.
	if err := stream.SendMsg(&SnapshotMessage{Descriptor: &desc}); err != nil {
		return types.ImportResult{}, err
	}

	for chunk := range chunks {
		if err := stream.SendMsg(&SnapshotMessage{Chunk: &chunk}); err != nil {
			if errors.Is(err, io.EOF) {
				// The server finished early; its status follows.
				break
			}
			return types.ImportResult{}, err
		}
	}

	if err := stream.CloseSend(); err != nil {
		return types.ImportResult{}, err
	}

	result := new(types.ImportResult)
	if err := stream.RecvMsg(result); err != nil {
		return types.ImportResult{}, fromStatus(err, stream.Trailer())
	}
	return *result, nil
}

// --- Simulator wrapper ---

type clientSimulator struct{ c *Client }

func (w *clientSimulator) Simulate(ctx context.Context, tx types.Transaction) (types.SimulationResult, error) {
	resp := new(types.SimulationResult)
	if err := w.c.invoke(ctx, "Simulate", &SimulateRequest{Tx: tx}, resp); err != nil {
		return types.SimulationResult{}, err
	}
	return *resp, nil
}
