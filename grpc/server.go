package nullspacegrpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/nullspace"
	"github.com/blockberries/nullspace/server"
	"github.com/blockberries/nullspace/types"
)

// Compile-time interface check.
var _ LedgerServiceServer = (*GRPCServer)(nil)

// GRPCServer exposes a ledger as a gRPC service. Types are serialized
// directly via cramberry.
type GRPCServer struct {
	srv    *server.Server
	logger *slog.Logger
}

// NewGRPCServer creates a gRPC server wrapping the given ledger.
func NewGRPCServer(app nullspace.Lifecycle, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCServer{
		srv:    server.New(app, logger),
		logger: logger,
	}
}

// Register adds the ledger service to a gRPC server.
func (s *GRPCServer) Register(gs *grpc.Server) {
	RegisterLedgerServiceServer(gs, s)
}

// NewServer builds a grpc.Server with the cramberry codec and request
// logging installed, and registers the ledger service on it.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryLogger(s.logger)),
	}, opts...)
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs
}

// Serve starts the gRPC server on the given listener.
func (s *GRPCServer) Serve(lis net.Listener, opts ...grpc.ServerOption) error {
	return s.NewServer(opts...).Serve(lis)
}

// Server returns the underlying lifecycle server.
func (s *GRPCServer) Server() *server.Server {
	return s.srv
}

// UnaryLogger logs every unary call at Debug, and failures at Warn.
func UnaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		switch code {
		case codes.OK:
			logger.Debug("RPC", "method", info.FullMethod, "took", time.Since(start))
		default:
			logger.Warn("RPC failed", "method", info.FullMethod, "code", code.String(), "err", err, "took", time.Since(start))
		}
		return resp, err
	}
}

// --- Lifecycle RPCs ---

func (s *GRPCServer) Handshake(ctx context.Context, req *types.HandshakeRequest) (*types.HandshakeResponse, error) {
	resp, err := s.srv.Handshake(ctx, *req)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &resp, nil
}

func (s *GRPCServer) CheckTx(ctx context.Context, req *CheckTxRequest) (*types.Verdict, error) {
	verdict, err := s.srv.CheckTx(ctx, req.Tx)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &verdict, nil
}

func (s *GRPCServer) ApplyBlock(ctx context.Context, block *types.Block) (*types.StateTransitionResult, error) {
	result, err := s.srv.ApplyBlock(ctx, *block)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &result, nil
}

func (s *GRPCServer) Query(ctx context.Context, req *types.StateQuery) (*types.StateQueryResult, error) {
	result, err := s.srv.Query(ctx, *req)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &result, nil
}

// --- ProposalControl RPCs ---

func (s *GRPCServer) BuildProposal(ctx context.Context, pctx *types.ProposalContext) (*types.BuiltProposal, error) {
	proposal, err := s.srv.BuildProposal(ctx, *pctx)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &proposal, nil
}

func (s *GRPCServer) VerifyProposal(ctx context.Context, prop *types.ReceivedProposal) (*types.ProposalVerdict, error) {
	verdict, err := s.srv.VerifyProposal(ctx, *prop)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &verdict, nil
}

// --- StateSync RPCs ---

func (s *GRPCServer) AvailableSnapshots(ctx context.Context, _ *AvailableSnapshotsRequest) (*AvailableSnapshotsResponse, error) {
	snaps, err := s.srv.AvailableSnapshots(ctx)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &AvailableSnapshotsResponse{Snapshots: snaps}, nil
}

// ExportSnapshot sends the descriptor first, then every chunk.
func (s *GRPCServer) ExportSnapshot(req *ExportSnapshotRequest, stream grpc.ServerStream) error {
	ch, desc, err := s.srv.ExportSnapshot(stream.Context(), req.Height, req.Format)
	if err != nil {
		return status.Error(codes.NotFound, err.Error())
	}
	if err := stream.SendMsg(&SnapshotMessage{Descriptor: desc}); err != nil {
		return err
	}
	for chunk := range ch {
		if err := stream.SendMsg(&SnapshotMessage{Chunk: &chunk}); err != nil {
			return err
		}
	}
	return nil
}

func (s *GRPCServer) ImportSnapshot(stream grpc.ServerStream) error {
	// First message must be the descriptor.
	first := new(SnapshotMessage)
	if err := stream.RecvMsg(first); err != nil {
		return err
	}
	if first.Descriptor == nil {
		return status.Error(codes.InvalidArgument, "first ImportSnapshot message must contain a descriptor")
	}

	ctx := stream.Context()
	desc := *first.Descriptor
	chunks := make(chan types.SnapshotChunk)

	// Read chunks in background until the client closes its side or
	// the handler returns.
	go func() {
		defer close(chunks)
		for {
			msg := new(SnapshotMessage)
			if err := stream.RecvMsg(msg); err != nil {
				if !errors.Is(err, io.EOF) {
					s.logger.Warn("ImportSnapshot stream broken", "err", err)
				}
				return
			}
			if msg.Chunk == nil {
				continue
			}
			select {
			case chunks <- *msg.Chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	result, err := s.srv.ImportSnapshot(ctx, desc, chunks)
	if err != nil {
		return toStatus(ctx, err)
	}
	return stream.SendMsg(&result)
}

// --- Simulator RPC ---

func (s *GRPCServer) Simulate(ctx context.Context, req *SimulateRequest) (*types.SimulationResult, error) {
	result, err := s.srv.Simulate(ctx, req.Tx)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &result, nil
}
