package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/solatis/tidegate/internal/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error mapping for the decision transports.
// Auth errors are mapped in the auth package.
// Malformed input maps to 400 / INVALID_ARGUMENT.
// Context timeouts map to 504 / DEADLINE_EXCEEDED.

func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidDecisionInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, types.ErrInvalidDecisionInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
