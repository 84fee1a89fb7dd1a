package perf

import (
	"context"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/ledger"
	"github.com/riceledger/riceledger/internal/reports"
)

type bench struct {
	inventory *inventory.Service
	ledger    *ledger.Service
	product   inventory.Product
}

func newBench(tb testing.TB, bags int64) bench {
	tb.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	store := ledger.NewMemoryStore()
	inv := inventory.NewService(inventory.Deps{Repo: store.Inventory(), Logger: logger}, inventory.ServiceConfig{})
	led := ledger.NewService(ledger.Deps{Repo: store, Logger: logger}, ledger.ServiceConfig{})

	product, err := inv.CreateProduct(ctx, inventory.CreateProductInput{Name: "Basmati Rice", WeightPerBag: 26})
	require.NoError(tb, err)
	_, err = led.CreatePurchase(ctx, ledger.CreatePurchaseInput{
		BillerName: "Sharma Traders",
		Items:      []ledger.ItemInput{{ProductID: product.ID, Quantity: bags, UnitPrice: decimal.NewFromInt(1000)}},
	})
	require.NoError(tb, err)
	return bench{inventory: inv, ledger: led, product: product}
}

func (b bench) sell(ctx context.Context) error {
	_, err := b.ledger.CreateSale(ctx, ledger.CreateSaleInput{
		CustomerName: "Ravi",
		Items:        []ledger.ItemInput{{ProductID: b.product.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(1200)}},
		PaidAmount:   decimal.NewFromInt(600),
	})
	return err
}

func TestSaleLatencyBudget(t *testing.T) {
	const n = 200
	b := newBench(t, n)
	ctx := context.Background()

	samples := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		start := time.Now()
		require.NoError(t, b.sell(ctx))
		samples = append(samples, time.Since(start))
	}
	p95 := percentile95(samples)
	require.Less(t, p95, 50*time.Millisecond, "in-memory sale p95 regression")
}

func BenchmarkCreateSale(b *testing.B) {
	fx := newBench(b, int64(b.N)+1)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := fx.sell(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkReportBundle(b *testing.B) {
	fx := newBench(b, 1000)
	ctx := context.Background()
	for i := 0; i < 500; i++ {
		if err := fx.sell(ctx); err != nil {
			b.Fatal(err)
		}
	}
	svc := reports.NewService(fx.ledger, fx.inventory, slog.New(slog.DiscardHandler))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Bundle(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(len(sorted)-1)*0.95)]
}
