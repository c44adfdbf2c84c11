package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/qualify/internal/types"
)

// Error mapping:
//   not found (resource, bundle) -> NOT_FOUND
//   no matching candidate         -> FAILED_PRECONDITION
//   integrity, invalid bundle     -> INTERNAL
//   validation family             -> INVALID_ARGUMENT
//   context deadline / cancel     -> DEADLINE_EXCEEDED / CANCELED
// Anything else is INTERNAL.

var invalidArgument = []error{
	types.ErrValidation,
	types.ErrUnknownQualifier,
	types.ErrAmbiguousQualifier,
	types.ErrDuplicateQualifier,
	types.ErrUnsupportedTokenChar,
	types.ErrInvalidValue,
	types.ErrInvalidOperator,
	types.ErrInvalidResourceID,
}

// StatusError converts an engine error into a gRPC status error.
func StatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(Code(err), err.Error())
}

// Code classifies err.
func Code(err error) codes.Code {
	switch {
	case errors.Is(err, types.ErrResourceNotFound), errors.Is(err, types.ErrBundleNotFound):
		return codes.NotFound
	case errors.Is(err, types.ErrNoMatch):
		return codes.FailedPrecondition
	case errors.Is(err, types.ErrIntegrity), errors.Is(err, types.ErrInvalidBundle):
		return codes.Internal
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}
	for _, target := range invalidArgument {
		if errors.Is(err, target) {
			return codes.InvalidArgument
		}
	}
	return codes.Internal
}
