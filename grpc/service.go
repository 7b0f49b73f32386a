package nullspacegrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/blockberries/nullspace/types"
)

const serviceName = "nullspace.v1.Ledger"

// LedgerServiceServer is the server-side interface of the ledger gRPC
// service.
type LedgerServiceServer interface {
	Handshake(context.Context, *types.HandshakeRequest) (*types.HandshakeResponse, error)
	CheckTx(context.Context, *CheckTxRequest) (*types.Verdict, error)
	ApplyBlock(context.Context, *types.Block) (*types.StateTransitionResult, error)
	Query(context.Context, *types.StateQuery) (*types.StateQueryResult, error)
	BuildProposal(context.Context, *types.ProposalContext) (*types.BuiltProposal, error)
	VerifyProposal(context.Context, *types.ReceivedProposal) (*types.ProposalVerdict, error)
	AvailableSnapshots(context.Context, *AvailableSnapshotsRequest) (*AvailableSnapshotsResponse, error)
	ExportSnapshot(*ExportSnapshotRequest, grpc.ServerStream) error
	ImportSnapshot(grpc.ServerStream) error
	Simulate(context.Context, *SimulateRequest) (*types.SimulationResult, error)
}

// RegisterLedgerServiceServer registers srv on a gRPC server.
func RegisterLedgerServiceServer(s *grpc.Server, srv LedgerServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// --- Handler functions ---

// unary adapts a typed method to a grpc.MethodDesc handler, running
// the interceptor when one is installed.
func unary[Req any, Resp any](method string, call func(LedgerServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServiceServer), ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, req, info, handler)
		},
	}
}

func handlerExportSnapshot(srv any, stream grpc.ServerStream) error {
	req := new(ExportSnapshotRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(LedgerServiceServer).ExportSnapshot(req, stream)
}

func handlerImportSnapshot(srv any, stream grpc.ServerStream) error {
	return srv.(LedgerServiceServer).ImportSnapshot(stream)
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

// serviceDesc is the manual gRPC service descriptor for the ledger.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Handshake", LedgerServiceServer.Handshake),
		unary("CheckTx", LedgerServiceServer.CheckTx),
		unary("ApplyBlock", LedgerServiceServer.ApplyBlock),
		unary("Query", LedgerServiceServer.Query),
		unary("BuildProposal", LedgerServiceServer.BuildProposal),
		unary("VerifyProposal", LedgerServiceServer.VerifyProposal),
		unary("AvailableSnapshots", LedgerServiceServer.AvailableSnapshots),
		unary("Simulate", LedgerServiceServer.Simulate),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ExportSnapshot",
			Handler:       handlerExportSnapshot,
			ServerStreams: true,
			ClientStreams: false,
		},
		{
			StreamName:    "ImportSnapshot",
			Handler:       handlerImportSnapshot,
			ServerStreams: false,
			ClientStreams: true,
		},
	},
	Metadata: "nullspace/v1/ledger.cram",
}
