package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/riceledger/riceledger/internal/app"
	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/ledger"
	"github.com/riceledger/riceledger/internal/observability"
	"github.com/riceledger/riceledger/internal/reports"
)

type lowStockLog struct {
	mu     sync.Mutex
	events []inventory.LowStockEvent
}

func (l *lowStockLog) NotifyLowStock(_ context.Context, evt inventory.LowStockEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
	return nil
}

type client struct {
	t *testing.T
	h http.Handler
}

func (c client) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func newServer(t *testing.T, notifier inventory.LowStockNotifier) client {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	cfg := &app.Config{StoreDriver: app.StoreMemory, LooseDefaultOwner: "default", RateLimitPerMinute: 1000}
	storage, err := app.OpenStorage(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(storage.Close)

	metrics := observability.NewMetrics()
	inv := inventory.NewService(inventory.Deps{Repo: storage.Inventory, Audit: storage.Audit, Notifier: notifier, Metrics: metrics, Logger: logger},
		inventory.ServiceConfig{DefaultOwner: cfg.LooseDefaultOwner})
	led := ledger.NewService(ledger.Deps{Repo: storage.Ledger, Audit: storage.Audit, Notifier: notifier, Metrics: metrics, Logger: logger},
		ledger.ServiceConfig{})

	return client{t: t, h: app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		InventoryHandler: inventory.NewHandler(logger, inv),
		LedgerHandler:    ledger.NewHandler(logger, led, storage.Idempotency),
		ReportsHandler:   reports.NewHandler(logger, reports.NewService(led, inv, logger)),
		Metrics:          metrics,
		Ready:            storage.Ping,
	})}
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s got %s", want, got)
}

func TestTradingDay(t *testing.T) {
	alerts := &lowStockLog{}
	c := newServer(t, alerts)
	const api = "/api/v1"

	rec := c.do(http.MethodPost, api+"/products", map[string]any{"name": "Basmati Rice", "weight_per_bag": 26, "low_stock_alert": 5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	product := decode[inventory.Product](t, rec)

	purchaseBody := map[string]any{
		"biller_name": "Sharma Traders",
		"items":       []map[string]any{{"product_id": product.ID, "quantity": 10, "unit_price": "1000"}},
		"paid_amount": "5000",
	}
	rec = c.do(http.MethodPost, api+"/purchases", purchaseBody, "Idempotency-Key", "purchase-1", "X-Actor", "meena")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	purchase := decode[ledger.Purchase](t, rec)
	requireAmount(t, "10000", purchase.TotalAmount)
	requireAmount(t, "5000", purchase.BalanceAmount)

	rec = c.do(http.MethodPost, api+"/purchases", purchaseBody, "Idempotency-Key", "purchase-1")
	require.Equal(t, http.StatusConflict, rec.Code, "replayed purchase must not add stock twice")

	rec = c.do(http.MethodPost, api+"/sales", map[string]any{
		"customer_name": "Ravi",
		"items":         []map[string]any{{"product_id": product.ID, "quantity": 3, "unit_price": "1200"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decode[ledger.Sale](t, rec)
	requireAmount(t, "3600", sale.BalanceAmount)

	rec = c.do(http.MethodPost, api+"/sales/"+sale.ID.String()+"/payments", map[string]any{"amount": "3600.01"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = c.do(http.MethodPost, api+"/sales/"+sale.ID.String()+"/payments", map[string]any{"amount": "3600"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	requireAmount(t, "0", decode[ledger.Sale](t, rec).BalanceAmount)

	rec = c.do(http.MethodPost, api+"/products/"+product.ID.String()+"/loose", map[string]any{"bags": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pool := decode[inventory.LooseStock](t, rec)
	requireAmount(t, "52", pool.LooseQuantity)

	rec = c.do(http.MethodPost, api+"/loose-sales", map[string]any{
		"customer_name": "Lakshmi",
		"items":         []map[string]any{{"loose_stock_id": pool.ID, "quantity_kg": "12.5", "price_per_kg": "48"}},
		"paid_amount":   "600",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	requireAmount(t, "600", decode[ledger.LooseSale](t, rec).TotalAmount)

	rec = c.do(http.MethodPost, api+"/sales", map[string]any{
		"customer_name": "Anita",
		"items":         []map[string]any{{"product_id": product.ID, "quantity": 6, "unit_price": "1200"}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	problem := decode[map[string]any](t, rec)
	require.Equal(t, "5", problem["available"])

	rec = c.do(http.MethodGet, api+"/products/"+product.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decode[inventory.Product](t, rec)
	require.EqualValues(t, 5, stored.Quantity)
	requireAmount(t, "130", stored.Stock)

	alerts.mu.Lock()
	require.NotEmpty(t, alerts.events)
	require.Equal(t, product.ID, alerts.events[len(alerts.events)-1].ProductID)
	alerts.mu.Unlock()

	rec = c.do(http.MethodGet, api+"/reports/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[reports.Summary](t, rec)
	require.Equal(t, 1, summary.ProductCount)
	requireAmount(t, "130", summary.TotalStockKg)
	requireAmount(t, "39.5", summary.TotalLooseKg)
	requireAmount(t, "5000", summary.Purchases.BalanceAmount)
	requireAmount(t, "0", summary.Sales.BalanceAmount)
	require.Len(t, summary.LowStock, 1)

	rec = c.do(http.MethodGet, api+"/reports/export.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(reports.SheetCustomers)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Ravi", rows[1][0])
}
