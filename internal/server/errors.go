package server

import (
	"errors"

	"CoverLedger/internal/core"
	"CoverLedger/internal/query"
	"CoverLedger/internal/state"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps a ledger error onto a gRPC status. lookup selects NotFound
// for the Invalid* class on read paths.
// The domain code name prefixes the message so clients can match on it.
func toStatus(err error, lookup bool) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, query.ErrNotFound) {
		return status.Error(codes.NotFound, err.Error())
	}
	if errors.Is(err, core.ErrDedupUnavailable) {
		return status.Error(codes.Unavailable, err.Error())
	}

	code := state.CodeOf(err)
	if code == state.CodeNone {
		return status.Error(codes.Internal, err.Error())
	}
	return status.Errorf(grpcCode(code, lookup), "%s: %v", code, err)
}

func grpcCode(code state.ErrorCode, lookup bool) codes.Code {
	switch code {
	case state.CodeUnauthorized:
		return codes.PermissionDenied
	case state.CodeInvalidPolicy, state.CodeInvalidClaim, state.CodeInvalidWarranty:
		if lookup {
			return codes.NotFound
		}
		return codes.InvalidArgument
	case state.CodeInsufficientPremium, state.CodeInvalidDate, state.CodeMinimumPremiumNotMet:
		return codes.InvalidArgument
	case state.CodePolicyExpired, state.CodeWarrantyExpired, state.CodeAlreadyClaimed, state.CodeInsufficientFunds:
		return codes.FailedPrecondition
	case state.CodeCapacityExceeded:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}
