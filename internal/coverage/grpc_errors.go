package coverage

import (
	"context"
	"errors"

	"github.com/signalsfoundry/radio-towers/core"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidRequest marks malformed RPC payloads (unknown fields, both or
// neither instance forms, unknown tie-break names).
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps solver and request errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidInstance):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	default:
		// core.ErrInconsistentState lands here too.
		return status.Error(codes.Internal, err.Error())
	}
}
