package reports

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/ledger"
)

var day = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sale(name, phone string, at time.Duration, total, paid string) ledger.Sale {
	return ledger.Sale{
		ID:            uuid.New(),
		CustomerName:  name,
		CustomerPhone: phone,
		Balance:       ledger.NewBalance(d(total), d(paid)),
		CreatedAt:     day.Add(at),
	}
}

func TestCustomerReportsGroupByExactNameAndPhone(t *testing.T) {
	sales := []ledger.Sale{
		sale("Ravi", "98450", 3*time.Hour, "1000", "400"),
		sale("ravi", "98450", 2*time.Hour, "500", "0"),
		sale("Ravi", "98450", time.Hour, "2000", "2000"),
		sale("Ravi", "", 4*time.Hour, "100", "100"),
	}

	reports := CustomerReports(sales)
	require.Len(t, reports, 3)

	require.Equal(t, "Ravi", reports[0].Name)
	require.Empty(t, reports[0].Phone)

	require.Equal(t, "Ravi", reports[1].Name)
	require.Equal(t, "98450", reports[1].Phone)
	require.Len(t, reports[1].Sales, 2)
	require.True(t, reports[1].TotalAmount.Equal(d("3000")))
	require.True(t, reports[1].PaidAmount.Equal(d("2400")))
	require.True(t, reports[1].BalanceAmount.Equal(d("600")))
	require.True(t, reports[1].Sales[0].CreatedAt.After(reports[1].Sales[1].CreatedAt))

	require.Equal(t, "ravi", reports[2].Name)
}

func TestBillerReportsOrderByMostRecentPurchase(t *testing.T) {
	purchases := []ledger.Purchase{
		{ID: uuid.New(), BillerName: "Mill A", Balance: ledger.NewBalance(d("10"), d("0")), CreatedAt: day},
		{ID: uuid.New(), BillerName: "Mill B", Balance: ledger.NewBalance(d("20"), d("5")), CreatedAt: day.Add(time.Hour)},
		{ID: uuid.New(), BillerName: "Mill A", Balance: ledger.NewBalance(d("30"), d("30")), CreatedAt: day.Add(2 * time.Hour)},
	}
	reports := BillerReports(purchases)
	require.Len(t, reports, 2)
	require.Equal(t, "Mill A", reports[0].Name)
	require.True(t, reports[0].TotalAmount.Equal(d("40")))
	require.True(t, reports[0].BalanceAmount.Equal(d("10")))
	require.Equal(t, "Mill B", reports[1].Name)
}

func TestReportsOfEmptyLedgers(t *testing.T) {
	require.Empty(t, BillerReports(nil))
	require.Empty(t, LooseCustomerReports(nil))
	summary := Summarize(nil, nil, nil, nil, nil)
	require.Zero(t, summary.ProductCount)
	require.True(t, summary.Sales.TotalAmount.IsZero())
	require.NotNil(t, summary.LowStock)
}

func TestProductReportsKeepDeletedProducts(t *testing.T) {
	live := inventory.Product{ID: uuid.New(), Name: "Sona Masoori", WeightPerBag: 25, Quantity: 2, Stock: d("50"), LowStockAlert: 5}
	goneID := uuid.New()
	purchases := []ledger.Purchase{{
		Items: []ledger.LineItem{
			{ProductID: live.ID, ProductName: "Sona", WeightPerBag: 25, Quantity: 4, Weight: d("100"), Amount: d("3600")},
			{ProductID: goneID, ProductName: "Ambemohar", WeightPerBag: 30, Quantity: 1, Weight: d("30"), Amount: d("1500")},
		},
	}}
	sales := []ledger.Sale{{
		Items: []ledger.LineItem{{ProductID: live.ID, ProductName: "Sona", WeightPerBag: 25, Quantity: 2, Weight: d("50"), Amount: d("2000")}},
	}}
	looseSales := []ledger.LooseSale{{
		Items: []ledger.LooseSaleItem{{ProductID: goneID, ProductName: "Ambemohar", QuantityKg: d("2.5"), Amount: d("150")}},
	}}

	reports := ProductReports([]inventory.Product{live}, purchases, sales, looseSales)
	require.Len(t, reports, 2)

	gone, current := reports[0], reports[1]
	require.Equal(t, "Ambemohar", gone.ProductName)
	require.True(t, gone.Deleted)
	require.Equal(t, 30, gone.WeightPerBag)
	require.True(t, gone.LooseKgSold.Equal(d("2.5")))

	require.Equal(t, "Sona Masoori", current.ProductName)
	require.False(t, current.Deleted)
	require.True(t, current.LowStock)
	require.Equal(t, int64(4), current.BagsPurchased)
	require.Equal(t, int64(2), current.BagsSold)
	require.True(t, current.SalesValue.Equal(d("2000")))
	require.True(t, current.Stock.Equal(d("50")))
}

func TestLooseStockReportAndSummary(t *testing.T) {
	productID := uuid.New()
	loose := []inventory.LooseStock{
		{ID: uuid.New(), ProductID: productID, Owner: "default", WeightPerBag: 26, BagsConverted: 2, LooseQuantity: d("40")},
		{ID: uuid.New(), ProductID: productID, Owner: "shop-2", WeightPerBag: 26, BagsConverted: 1, LooseQuantity: d("26")},
	}
	report := LooseStockReport(loose)
	require.Equal(t, int64(3), report.BagsConverted)
	require.True(t, report.LooseKg.Equal(d("66")))
	require.True(t, report.SoldKg.Equal(d("12")))
	require.True(t, report.Entries[0].SoldKg.Equal(d("12")))

	products := []inventory.Product{
		{ID: productID, Name: "Basmati", WeightPerBag: 26, Quantity: 1, Stock: d("26"), LowStockAlert: 1},
		{ID: uuid.New(), Name: "Kolam", WeightPerBag: 30, Quantity: 10, Stock: d("300")},
	}
	summary := Summarize(products, loose,
		[]ledger.Purchase{{Balance: ledger.NewBalance(d("1000"), d("200"))}},
		[]ledger.Sale{{Balance: ledger.NewBalance(d("300"), d("300"))}},
		[]ledger.LooseSale{{Balance: ledger.NewBalance(d("50"), d("0"))}},
	)
	require.Equal(t, 2, summary.ProductCount)
	require.True(t, summary.TotalStockKg.Equal(d("326")))
	require.True(t, summary.TotalLooseKg.Equal(d("66")))
	require.True(t, summary.Purchases.BalanceAmount.Equal(d("800")))
	require.True(t, summary.Sales.TotalAmount.Equal(d("350")))
	require.True(t, summary.Sales.BalanceAmount.Equal(d("50")))
	require.Len(t, summary.LowStock, 1)
	require.Equal(t, "Basmati", summary.LowStock[0].Name)
}
