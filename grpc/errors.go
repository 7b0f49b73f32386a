package nullspacegrpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/blockberries/nullspace"
)

// Trailer keys carrying the kind and fields of typed ledger errors.
const (
	trailerKind     = "nullspace-error"
	trailerHeight   = "nullspace-height"
	trailerExpected = "nullspace-expected"
)

const (
	kindHalt       = "halt"
	kindOutOfOrder = "out-of-order"
	kindParentRoot = "parent-root"
	kindNotReady   = "not-ready"
)

// toStatus maps ledger errors onto gRPC status codes, attaching the
// error kind and fields as trailers so the client can rebuild them.
func toStatus(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if h, ok := nullspace.IsHalt(err); ok {
		_ = grpc.SetTrailer(ctx, metadata.Pairs(
			trailerKind, kindHalt,
			trailerHeight, strconv.FormatUint(h.Height, 10),
		))
		return status.Error(codes.Aborted, h.Reason)
	}
	var ooo *nullspace.OutOfOrderHeightError
	switch {
	case errors.As(err, &ooo):
		_ = grpc.SetTrailer(ctx, metadata.Pairs(
			trailerKind, kindOutOfOrder,
			trailerExpected, strconv.FormatUint(ooo.Expected, 10),
			trailerHeight, strconv.FormatUint(ooo.Got, 10),
		))
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, nullspace.ErrParentRootMismatch):
		_ = grpc.SetTrailer(ctx, metadata.Pairs(trailerKind, kindParentRoot))
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, nullspace.ErrNotReady):
		_ = grpc.SetTrailer(ctx, metadata.Pairs(trailerKind, kindNotReady))
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus rebuilds a ledger error from a status and its trailer.
// Errors without a kind trailer are returned unchanged.
func fromStatus(err error, trailer metadata.MD) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	kinds := trailer.Get(trailerKind)
	if len(kinds) == 0 {
		return err
	}
	switch kinds[0] {
	case kindHalt:
		if h, ok := trailerUint(trailer, trailerHeight); ok {
			return nullspace.NewHaltError(h, st.Message())
		}
	case kindOutOfOrder:
		exp, ok1 := trailerUint(trailer, trailerExpected)
		got, ok2 := trailerUint(trailer, trailerHeight)
		if ok1 && ok2 {
			return &nullspace.OutOfOrderHeightError{Expected: exp, Got: got}
		}
	case kindParentRoot:
		return fmt.Errorf("%w: %s", nullspace.ErrParentRootMismatch, st.Message())
	case kindNotReady:
		return nullspace.ErrNotReady
	}
	return err
}

func trailerUint(md metadata.MD, key string) (uint64, bool) {
	vals := md.Get(key)
	if len(vals) == 0 {
		return 0, false
	}
	v, err := strconv.ParseUint(vals[0], 10, 64)
	return v, err == nil
}
