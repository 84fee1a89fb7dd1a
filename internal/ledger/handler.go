package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/riceledger/riceledger/internal/platform/httpx"
	"github.com/riceledger/riceledger/internal/shared"
)

// IdempotencyHeader carries a client chosen key that makes a create request run at most once.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for purchases, sales and loose sales.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   shared.IdempotencyGuard
}

// NewHandler constructs ledger handler. guard may be nil, in which case the
// Idempotency-Key header is ignored.
func NewHandler(logger *slog.Logger, service *Service, guard shared.IdempotencyGuard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountPurchaseRoutes registers purchase routes.
func (h *Handler) MountPurchaseRoutes(r chi.Router) {
	r.Get("/", h.listPurchases)
	r.Post("/", h.createPurchase)
	r.Get("/{id}", h.getPurchase)
	r.Post("/{id}/payments", h.payPurchase)
}

// MountSaleRoutes registers sale routes.
func (h *Handler) MountSaleRoutes(r chi.Router) {
	r.Get("/", h.listSales)
	r.Post("/", h.createSale)
	r.Get("/{id}", h.getSale)
	r.Post("/{id}/payments", h.paySale)
}

// MountLooseSaleRoutes registers loose sale routes.
func (h *Handler) MountLooseSaleRoutes(r chi.Router) {
	r.Get("/", h.listLooseSales)
	r.Post("/", h.createLooseSale)
	r.Get("/{id}", h.getLooseSale)
	r.Post("/{id}/payments", h.payLooseSale)
}

// claim reserves the request's idempotency key for scope. The returned func
// gives the key back and is called when the request fails.
func (h *Handler) claim(r *http.Request, scope string) (func(), error) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if h.guard == nil || key == "" {
		return func() {}, nil
	}
	if err := h.guard.Claim(ctx, key, scope); err != nil {
		h.logger.WarnContext(ctx, "idempotency claim", slog.String("scope", scope), slog.Any("error", err))
		return nil, err
	}
	return func() {
		if err := h.guard.Delete(context.WithoutCancel(ctx), key, scope); err != nil {
			h.logger.WarnContext(ctx, "idempotency release", slog.String("scope", scope), slog.Any("error", err))
		}
	}, nil
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.service.ListPurchases(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.List(w, r, purchases)
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var input CreatePurchaseInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	release, err := h.claim(r, "purchase.create")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	purchase, err := h.service.CreatePurchase(r.Context(), input)
	if err != nil {
		release()
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchase)
}

func (h *Handler) getPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	purchase, err := h.service.GetPurchase(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) payPurchase(w http.ResponseWriter, r *http.Request) {
	id, input, release, ok := h.paymentRequest(w, r, KindPurchase)
	if !ok {
		return
	}
	if _, err := h.service.AddPayment(r.Context(), KindPurchase, id, input); err != nil {
		release()
		httpx.RespondError(w, err)
		return
	}
	purchase, err := h.service.GetPurchase(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.service.ListSales(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.List(w, r, sales)
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var input CreateSaleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	release, err := h.claim(r, "sale.create")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.CreateSale(r.Context(), input)
	if err != nil {
		release()
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) paySale(w http.ResponseWriter, r *http.Request) {
	id, input, release, ok := h.paymentRequest(w, r, KindSale)
	if !ok {
		return
	}
	if _, err := h.service.AddPayment(r.Context(), KindSale, id, input); err != nil {
		release()
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) listLooseSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.service.ListLooseSales(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.List(w, r, sales)
}

func (h *Handler) createLooseSale(w http.ResponseWriter, r *http.Request) {
	var input CreateLooseSaleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	release, err := h.claim(r, "loose_sale.create")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.CreateLooseSale(r.Context(), input)
	if err != nil {
		release()
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) getLooseSale(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetLooseSale(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) payLooseSale(w http.ResponseWriter, r *http.Request) {
	id, input, release, ok := h.paymentRequest(w, r, KindLooseSale)
	if !ok {
		return
	}
	if _, err := h.service.AddPayment(r.Context(), KindLooseSale, id, input); err != nil {
		release()
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetLooseSale(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

// paymentRequest parses the id and body of a payment call and claims its key.
func (h *Handler) paymentRequest(w http.ResponseWriter, r *http.Request, kind Kind) (uuid.UUID, PaymentInput, func(), bool) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return uuid.Nil, PaymentInput{}, nil, false
	}
	var input PaymentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return uuid.Nil, PaymentInput{}, nil, false
	}
	release, err := h.claim(r, string(kind)+".payment")
	if err != nil {
		httpx.RespondError(w, err)
		return uuid.Nil, PaymentInput{}, nil, false
	}
	return id, input, release, true
}
