package transport

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	terr "github.com/mablr/trace2e-engine/errors"
)

// ToGRPCStatus maps the internal error taxonomy to a gRPC status error,
// the boundary a real gRPC-backed Transport implementation plugs its
// server side into. The wire transport itself stays out of scope here;
// this is only the translation table it would call.
func ToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case terr.Is(err, terr.ErrPendingDeletion):
		return status.Error(codes.FailedPrecondition, err.Error())
	case terr.Is(err, terr.ErrConfidentialityViolation), terr.Is(err, terr.ErrIntegrityViolation):
		return status.Error(codes.PermissionDenied, err.Error())
	case terr.Is(err, terr.ErrConsentDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	case terr.Is(err, terr.ErrConsentRequestTimeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case terr.Is(err, terr.ErrReachedMaxRetriesWaitingQueue):
		return status.Error(codes.ResourceExhausted, err.Error())
	case terr.Is(err, terr.ErrNotLocalResource):
		return status.Error(codes.FailedPrecondition, err.Error())
	case terr.Is(err, terr.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// FromGRPCStatus is the client-side counterpart: it recovers the local
// sentinel a gRPC status encodes, unwrapping the case where a gRPC
// error's root cause is actually the local context's own
// cancellation/deadline rather than anything the server reported.
func FromGRPCStatus(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	code := status.Code(err)
	if ctx.Err() == context.DeadlineExceeded && code == codes.DeadlineExceeded {
		return ctx.Err()
	}
	if ctx.Err() == context.Canceled && code == codes.Canceled {
		return ctx.Err()
	}
	switch code {
	case codes.FailedPrecondition:
		return terr.ErrPendingDeletion
	case codes.PermissionDenied:
		return terr.ErrConfidentialityViolation
	case codes.DeadlineExceeded:
		return terr.ErrConsentRequestTimeout
	case codes.ResourceExhausted:
		return terr.ErrReachedMaxRetriesWaitingQueue
	case codes.InvalidArgument:
		return terr.ErrInvalidRequest
	default:
		return err
	}
}
