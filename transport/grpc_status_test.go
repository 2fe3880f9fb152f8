package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	terr "github.com/mablr/trace2e-engine/errors"
)

func TestToGRPCStatusMapsKnownErrors(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{terr.ErrPendingDeletion, codes.FailedPrecondition},
		{terr.ErrConfidentialityViolation, codes.PermissionDenied},
		{terr.ErrIntegrityViolation, codes.PermissionDenied},
		{terr.ErrConsentDenied, codes.PermissionDenied},
		{terr.ErrConsentRequestTimeout, codes.DeadlineExceeded},
		{terr.ErrReachedMaxRetriesWaitingQueue, codes.ResourceExhausted},
		{terr.ErrInvalidRequest, codes.InvalidArgument},
	}
	for _, c := range cases {
		got := ToGRPCStatus(c.err)
		assert.Equal(t, c.code, status.Code(got))
	}
}

func TestToGRPCStatusNilIsNil(t *testing.T) {
	assert.NoError(t, ToGRPCStatus(nil))
}

func TestFromGRPCStatusRecoversContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	wireErr := status.Error(codes.DeadlineExceeded, "deadline")
	got := FromGRPCStatus(ctx, wireErr)
	assert.ErrorIs(t, got, context.DeadlineExceeded)
}

func TestFromGRPCStatusMapsUnrelatedDeadline(t *testing.T) {
	got := FromGRPCStatus(context.Background(), status.Error(codes.DeadlineExceeded, "consent wait"))
	assert.ErrorIs(t, got, terr.ErrConsentRequestTimeout)
}
