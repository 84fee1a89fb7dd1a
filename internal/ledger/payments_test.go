package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/riceledger/riceledger/internal/shared"
)

func TestAddPaymentRejectsOverpayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rice := f.product(t, "Basmati Rice", 26, 0)
	sale := seedSale(t, f, rice.ID)

	_, err := f.ledger.AddPayment(ctx, KindSale, sale.ID, PaymentInput{Amount: dec("3600.01")})
	var overErr *shared.OverpaymentError
	require.ErrorAs(t, err, &overErr)
	requireDecimal(t, "3600", overErr.Balance)

	stored, err := f.ledger.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	requireDecimal(t, "0", stored.PaidAmount)
	require.Empty(t, stored.Payments)
}

func TestAddPaymentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rice := f.product(t, "Basmati Rice", 26, 0)
	sale := seedSale(t, f, rice.ID)

	for _, amount := range []string{"0", "-5", "0.001"} {
		_, err := f.ledger.AddPayment(ctx, KindSale, sale.ID, PaymentInput{Amount: dec(amount)})
		require.ErrorIs(t, err, shared.ErrValidation, amount)
	}
	_, err := f.ledger.AddPayment(ctx, Kind("refund"), sale.ID, PaymentInput{Amount: dec("1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.ledger.AddPayment(ctx, KindPurchase, sale.ID, PaymentInput{Amount: dec("1")})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.ledger.PaySale(ctx, uuid.New(), PaymentInput{Amount: dec("1")})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPaymentsSettleExactly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rice := f.product(t, "Basmati Rice", 26, 0)
	sale := seedSale(t, f, rice.ID)
	before := f.reload(t, rice.ID)

	updated, err := f.ledger.PaySale(ctx, sale.ID, PaymentInput{Amount: dec("1000.50"), Note: " cash "})
	require.NoError(t, err)
	requireDecimal(t, "2599.5", updated.BalanceAmount)
	require.Equal(t, "cash", updated.Payments[0].Note)

	updated, err = f.ledger.PaySale(ctx, sale.ID, PaymentInput{Amount: dec("2599.50")})
	require.NoError(t, err)
	require.True(t, updated.Settled())
	requireDecimal(t, "3600", updated.PaidAmount)
	require.Len(t, updated.Payments, 2)

	_, err = f.ledger.PaySale(ctx, sale.ID, PaymentInput{Amount: dec("0.01")})
	require.ErrorIs(t, err, shared.ErrOverpayment)

	after := f.reload(t, rice.ID)
	require.Equal(t, before.Quantity, after.Quantity)
	require.True(t, before.Stock.Equal(after.Stock))
}

func TestPaidPlusBalanceEqualsTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rice := f.product(t, "Basmati Rice", 26, 0)
	purchase, err := f.ledger.CreatePurchase(ctx, CreatePurchaseInput{
		BillerName: "Mill",
		Items:      []ItemInput{{ProductID: rice.ID, Quantity: 7, UnitPrice: dec("333.33")}},
		PaidAmount: dec("100"),
	})
	require.NoError(t, err)

	for _, amount := range []string{"250.25", "999.99", "0.01", "500"} {
		updated, err := f.ledger.PayPurchase(ctx, purchase.ID, PaymentInput{Amount: dec(amount)})
		require.NoError(t, err)
		require.True(t, updated.PaidAmount.Add(updated.BalanceAmount).Equal(updated.TotalAmount))
		sum := decimal.Zero
		for _, p := range updated.Payments {
			sum = sum.Add(p.Amount)
		}
		require.True(t, sum.Equal(updated.PaidAmount))
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rice := f.product(t, "Basmati Rice", 26, 0)
	_, err := f.ledger.CreatePurchase(ctx, CreatePurchaseInput{
		BillerName: "Mill",
		Items:      []ItemInput{{ProductID: rice.ID, Quantity: 10, UnitPrice: dec("1000")}},
	})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 8)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ledger.CreateSale(ctx, CreateSaleInput{
				CustomerName: "Walk-in",
				Items:        []ItemInput{{ProductID: rice.ID, Quantity: 3, UnitPrice: dec("1100")}},
			})
		}(i)
	}
	wg.Wait()

	sold, refused := 0, 0
	for _, err := range errs {
		if err == nil {
			sold++
			continue
		}
		require.ErrorIs(t, err, shared.ErrInsufficientStock)
		refused++
	}
	require.Equal(t, 3, sold)
	require.Equal(t, 5, refused)
	p := f.reload(t, rice.ID)
	require.Equal(t, int64(1), p.Quantity)
	requireDecimal(t, "26", p.Stock)
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rice := f.product(t, "Basmati Rice", 26, 0)
	sale := seedSale(t, f, rice.ID)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.ledger.AddPayment(ctx, KindSale, sale.ID, PaymentInput{Amount: dec("1000")})
		}()
	}
	wg.Wait()

	stored, err := f.ledger.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	requireDecimal(t, "3000", stored.PaidAmount)
	requireDecimal(t, "600", stored.BalanceAmount)
	require.Len(t, stored.Payments, 3)
}

func seedSale(t *testing.T, f *fixture, productID uuid.UUID) Sale {
	t.Helper()
	ctx := context.Background()
	_, err := f.ledger.CreatePurchase(ctx, CreatePurchaseInput{
		BillerName: "Mill",
		Items:      []ItemInput{{ProductID: productID, Quantity: 10, UnitPrice: dec("1000")}},
	})
	require.NoError(t, err)
	sale, err := f.ledger.CreateSale(ctx, CreateSaleInput{
		CustomerName: "Ravi",
		Items:        []ItemInput{{ProductID: productID, Quantity: 3, UnitPrice: dec("1200")}},
	})
	require.NoError(t, err)
	return sale
}
