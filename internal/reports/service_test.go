package reports

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/ledger"
)

type seeded struct {
	inventory *inventory.Service
	ledger    *ledger.Service
	reports   *Service
}

func seedStore(t *testing.T) seeded {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	inv := inventory.NewService(inventory.Deps{Repo: store.Inventory()}, inventory.ServiceConfig{})
	led := ledger.NewService(ledger.Deps{Repo: store}, ledger.ServiceConfig{})

	rice, err := inv.CreateProduct(ctx, inventory.CreateProductInput{Name: "Basmati Rice", WeightPerBag: 26, LowStockAlert: 2})
	require.NoError(t, err)
	_, err = led.CreatePurchase(ctx, ledger.CreatePurchaseInput{
		BillerName: "Sharma Traders",
		Items:      []ledger.ItemInput{{ProductID: rice.ID, Quantity: 10, UnitPrice: d("1000")}},
		PaidAmount: d("5000"),
	})
	require.NoError(t, err)
	_, err = led.CreateSale(ctx, ledger.CreateSaleInput{
		CustomerName: "Ravi",
		Items:        []ledger.ItemInput{{ProductID: rice.ID, Quantity: 3, UnitPrice: d("1200")}},
	})
	require.NoError(t, err)
	loose, err := inv.ConvertToLoose(ctx, inventory.ConvertInput{ProductID: rice.ID, Bags: 1})
	require.NoError(t, err)
	_, err = led.CreateLooseSale(ctx, ledger.CreateLooseSaleInput{
		CustomerName: "Meena",
		Items:        []ledger.LooseItemInput{{LooseStockID: loose.ID, QuantityKg: d("6"), PricePerKg: d("50")}},
		PaidAmount:   d("300"),
	})
	require.NoError(t, err)

	return seeded{inventory: inv, ledger: led, reports: NewService(led, inv, nil)}
}

func TestBundleReflectsLedgers(t *testing.T) {
	s := seedStore(t)
	bundle, err := s.reports.Bundle(context.Background())
	require.NoError(t, err)

	require.Len(t, bundle.Billers, 1)
	require.True(t, bundle.Billers[0].BalanceAmount.Equal(d("5000")))
	require.Len(t, bundle.Customers, 1)
	require.True(t, bundle.Customers[0].BalanceAmount.Equal(d("3600")))
	require.Len(t, bundle.LooseCustomers, 1)
	require.True(t, bundle.LooseCustomers[0].BalanceAmount.IsZero())

	require.Len(t, bundle.Products, 1)
	require.Equal(t, int64(6), bundle.Products[0].Quantity)
	require.True(t, bundle.Products[0].LooseKgSold.Equal(d("6")))

	require.True(t, bundle.LooseStock.LooseKg.Equal(d("20")))
	require.True(t, bundle.Summary.Sales.TotalAmount.Equal(d("3900")))
	require.True(t, bundle.Summary.TotalStockKg.Equal(d("156")))
	require.Empty(t, bundle.Summary.LowStock)
	require.False(t, bundle.GeneratedAt.IsZero())
}

func TestBundleConcurrentCallers(t *testing.T) {
	s := seedStore(t)
	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.reports.Bundle(context.Background())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
}

// sellingStock commits a sale the first time products are listed.
type sellingStock struct {
	*inventory.Service
	once sync.Once
	sell func() error
	err  error
}

func (s *sellingStock) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	s.once.Do(func() { s.err = s.sell() })
	return s.Service.ListProducts(ctx)
}

func TestBundleReadsOneCommittedState(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()
	products, err := s.inventory.ListProducts(ctx)
	require.NoError(t, err)
	rice := products[0]

	stock := &sellingStock{Service: s.inventory, sell: func() error {
		_, err := s.ledger.CreateSale(context.Background(), ledger.CreateSaleInput{
			CustomerName: "Anita",
			Items:        []ledger.ItemInput{{ProductID: rice.ID, Quantity: 2, UnitPrice: d("1250")}},
		})
		return err
	}}
	svc := NewService(s.ledger, stock, nil)

	bundle, err := svc.Bundle(ctx)
	require.NoError(t, err)
	require.NoError(t, stock.err)
	require.Equal(t, int64(6), bundle.Products[0].Quantity)
	require.True(t, bundle.Summary.TotalStockKg.Equal(d("156")))
	require.Len(t, bundle.Customers, 1)
	require.True(t, bundle.Summary.Sales.TotalAmount.Equal(d("3900")))

	bundle, err = svc.Bundle(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), bundle.Products[0].Quantity)
	require.True(t, bundle.Summary.TotalStockKg.Equal(d("104")))
	require.Len(t, bundle.Customers, 2)
	require.True(t, bundle.Summary.Sales.TotalAmount.Equal(d("6400")))
}

type failingStock struct{}

func (failingStock) ListProducts(context.Context) ([]inventory.Product, error) {
	return nil, errors.New("connection reset")
}

func (failingStock) ListLooseStock(context.Context) ([]inventory.LooseStock, error) {
	return nil, nil
}

func TestBundlePropagatesLoadErrors(t *testing.T) {
	s := seedStore(t)
	svc := NewService(s.ledger, failingStock{}, nil)
	_, err := svc.Bundle(context.Background())
	require.ErrorContains(t, err, "connection reset")
}

func TestBundleHonoursCancelledContext(t *testing.T) {
	s := seedStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.reports.Bundle(ctx)
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
}
