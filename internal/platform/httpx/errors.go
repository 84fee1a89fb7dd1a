// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/riceledger/riceledger/internal/shared"
)

// Sentinel errors for the HTTP layer.
var (
	ErrDuplicate = errors.New("duplicate entry")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var (
		stockErr *shared.InsufficientStockError
		payErr   *shared.OverpaymentError
		valErr   *shared.ValidationError
	)
	switch {
	case errors.As(err, &stockErr):
		ProblemWith(w, http.StatusConflict, "Insufficient Stock", stockErr.Error(), map[string]any{
			"item_id":   stockErr.ItemID,
			"product":   stockErr.ItemName,
			"unit":      stockErr.Unit,
			"requested": stockErr.Requested.String(),
			"available": stockErr.Available.String(),
		})
	case errors.As(err, &payErr):
		ProblemWith(w, http.StatusUnprocessableEntity, "Overpayment", payErr.Error(), map[string]any{
			"transaction_id": payErr.TransactionID,
			"amount":         payErr.Amount.StringFixed(2),
			"balance":        payErr.Balance.StringFixed(2),
		})
	case errors.As(err, &valErr):
		ProblemWith(w, http.StatusBadRequest, "Validation Failed", valErr.Error(), map[string]any{
			"field": valErr.Field,
		})
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrLockTimeout):
		Problem(w, http.StatusServiceUnavailable, "Busy", "resource is locked, retry later")
	default:
		slog.Error("unhandled request error", slog.Any("error", err))
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
