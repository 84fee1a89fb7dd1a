package reports

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/riceledger/riceledger/internal/platform/httpx"
	"github.com/riceledger/riceledger/internal/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler serves report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the reports handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.serve(func(b Bundle) any { return b }))
	r.Get("/billers", h.serve(func(b Bundle) any { return b.Billers }))
	r.Get("/customers", h.serve(func(b Bundle) any { return b.Customers }))
	r.Get("/loose-customers", h.serve(func(b Bundle) any { return b.LooseCustomers }))
	r.Get("/products", h.serve(func(b Bundle) any { return b.Products }))
	r.Get("/loose-stock", h.serve(func(b Bundle) any { return b.LooseStock }))
	r.Get("/summary", h.serve(func(b Bundle) any { return b.Summary }))
	r.Get("/export.xlsx", h.exportXLSX)
	r.Get("/export.csv", h.exportCSV)
}

func (h *Handler) serve(pick func(Bundle) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bundle, err := h.service.Bundle(r.Context())
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, pick(bundle))
	}
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.service.Bundle(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, bundle); err != nil {
		h.logger.ErrorContext(r.Context(), "xlsx export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	filename := fmt.Sprintf("riceledger-%s.xlsx", bundle.GeneratedAt.Format("20060102-150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("report")
	switch name {
	case CSVBillers, CSVCustomers, CSVLooseCustomers, CSVProducts:
	default:
		httpx.RespondError(w, shared.Validation("report", "must be one of billers customers loose-customers products"))
		return
	}
	bundle, err := h.service.Bundle(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, bundle, name); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
