package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/riceledger/riceledger/internal/shared"
)

func TestRespondErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", shared.Validation("name", "is required"), http.StatusBadRequest},
		{"not found", fmt.Errorf("load: %w", &shared.NotFoundError{Entity: "sale", ID: "x"}), http.StatusNotFound},
		{"stock", &shared.InsufficientStockError{ItemName: "Basmati"}, http.StatusConflict},
		{"overpayment", &shared.OverpaymentError{}, http.StatusUnprocessableEntity},
		{"idempotency", shared.ErrIdempotencyConflict, http.StatusConflict},
		{"lock", shared.ErrLockTimeout, http.StatusServiceUnavailable},
		{"other", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)
			require.Equal(t, tc.status, rr.Code)
			require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestRespondErrorInsufficientStockExtensions(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, &shared.InsufficientStockError{
		ItemID:    "p-1",
		ItemName:  "Basmati Rice",
		Unit:      "bags",
		Requested: decimal.NewFromInt(8),
		Available: decimal.NewFromInt(7),
	})

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Insufficient Stock", body["title"])
	require.Equal(t, float64(http.StatusConflict), body["status"])
	require.Equal(t, "Basmati Rice", body["product"])
	require.Equal(t, "7", body["available"])
	require.Equal(t, "8", body["requested"])
}
