package api

import (
	"errors"
	"net/http"

	"hotelledger/internal/models"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errPermissionDenied = errors.New("permission denied")

// httpStatus maps ledger errors onto HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrAlreadyTerminal),
		errors.Is(err, models.ErrAlreadyCompleted),
		errors.Is(err, models.ErrHasPendingOrders):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorKind is a stable machine-readable name for the error class.
func errorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, models.ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, models.ErrHasPendingOrders):
		return "has_pending_orders"
	default:
		return "internal"
	}
}

func grpcError(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case errors.Is(err, models.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, models.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, models.ErrConflict):
		code = codes.Aborted
	case errors.Is(err, models.ErrAlreadyTerminal),
		errors.Is(err, models.ErrAlreadyCompleted),
		errors.Is(err, models.ErrHasPendingOrders):
		code = codes.FailedPrecondition
	default:
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
