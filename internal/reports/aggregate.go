package reports

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/ledger"
)

type partyKey struct {
	name  string
	phone string
}

// groupByParty buckets items by exact (name, phone). Items are ordered newest
// first, so parties come out ordered by their most recent transaction.
func groupByParty[T any](items []T, key func(T) partyKey, at func(T) int64) ([]partyKey, map[partyKey][]T) {
	sorted := append([]T(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return at(sorted[i]) > at(sorted[j]) })
	var order []partyKey
	groups := make(map[partyKey][]T)
	for _, item := range sorted {
		k := key(item)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], item)
	}
	return order, groups
}

// BillerReports groups purchases by biller.
func BillerReports(purchases []ledger.Purchase) []BillerReport {
	order, groups := groupByParty(purchases,
		func(p ledger.Purchase) partyKey { return partyKey{p.BillerName, p.BillerPhone} },
		func(p ledger.Purchase) int64 { return p.CreatedAt.UnixNano() },
	)
	out := make([]BillerReport, 0, len(order))
	for _, k := range order {
		report := BillerReport{Name: k.name, Phone: k.phone, Balance: zeroBalance(), Purchases: groups[k]}
		for _, p := range groups[k] {
			report.Balance = report.Balance.Add(p.Balance)
		}
		out = append(out, report)
	}
	return out
}

// CustomerReports groups bag sales by customer.
func CustomerReports(sales []ledger.Sale) []CustomerReport {
	order, groups := groupByParty(sales,
		func(s ledger.Sale) partyKey { return partyKey{s.CustomerName, s.CustomerPhone} },
		func(s ledger.Sale) int64 { return s.CreatedAt.UnixNano() },
	)
	out := make([]CustomerReport, 0, len(order))
	for _, k := range order {
		report := CustomerReport{Name: k.name, Phone: k.phone, Balance: zeroBalance(), Sales: groups[k]}
		for _, s := range groups[k] {
			report.Balance = report.Balance.Add(s.Balance)
		}
		out = append(out, report)
	}
	return out
}

// LooseCustomerReports groups loose sales by customer.
func LooseCustomerReports(sales []ledger.LooseSale) []LooseCustomerReport {
	order, groups := groupByParty(sales,
		func(s ledger.LooseSale) partyKey { return partyKey{s.CustomerName, s.CustomerPhone} },
		func(s ledger.LooseSale) int64 { return s.CreatedAt.UnixNano() },
	)
	out := make([]LooseCustomerReport, 0, len(order))
	for _, k := range order {
		report := LooseCustomerReport{Name: k.name, Phone: k.phone, Balance: zeroBalance(), Sales: groups[k]}
		for _, s := range groups[k] {
			report.Balance = report.Balance.Add(s.Balance)
		}
		out = append(out, report)
	}
	return out
}

// ProductReports totals purchases and sales per product id. Current products
// without any history are included with zero movement.
func ProductReports(products []inventory.Product, purchases []ledger.Purchase, sales []ledger.Sale, looseSales []ledger.LooseSale) []ProductReport {
	byID := make(map[uuid.UUID]*ProductReport)
	get := func(id uuid.UUID, name string, weight int) *ProductReport {
		r, ok := byID[id]
		if !ok {
			r = &ProductReport{
				ProductID:       id,
				ProductName:     name,
				WeightPerBag:    weight,
				KgPurchased:     decimal.Zero,
				PurchaseValue:   decimal.Zero,
				KgSold:          decimal.Zero,
				SalesValue:      decimal.Zero,
				LooseKgSold:     decimal.Zero,
				LooseSalesValue: decimal.Zero,
				Stock:           decimal.Zero,
				Deleted:         true,
			}
			byID[id] = r
		}
		return r
	}
	for _, p := range products {
		r := get(p.ID, p.Name, p.WeightPerBag)
		r.ProductName = p.Name
		r.WeightPerBag = p.WeightPerBag
		r.Quantity = p.Quantity
		r.Stock = p.Stock
		r.LowStock = p.IsLowStock()
		r.Deleted = false
	}
	for _, p := range purchases {
		for _, item := range p.Items {
			r := get(item.ProductID, item.ProductName, item.WeightPerBag)
			r.BagsPurchased += item.Quantity
			r.KgPurchased = r.KgPurchased.Add(item.Weight)
			r.PurchaseValue = r.PurchaseValue.Add(item.Amount)
		}
	}
	for _, s := range sales {
		for _, item := range s.Items {
			r := get(item.ProductID, item.ProductName, item.WeightPerBag)
			r.BagsSold += item.Quantity
			r.KgSold = r.KgSold.Add(item.Weight)
			r.SalesValue = r.SalesValue.Add(item.Amount)
		}
	}
	for _, s := range looseSales {
		for _, item := range s.Items {
			r := get(item.ProductID, item.ProductName, 0)
			r.LooseKgSold = r.LooseKgSold.Add(item.QuantityKg)
			r.LooseSalesValue = r.LooseSalesValue.Add(item.Amount)
		}
	}

	out := make([]ProductReport, 0, len(byID))
	for _, r := range byID {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].ProductName), strings.ToLower(out[j].ProductName)
		if a != b {
			return a < b
		}
		return out[i].ProductID.String() < out[j].ProductID.String()
	})
	return out
}

// LooseStockReport totals loose pools.
func LooseStockReport(entries []inventory.LooseStock) LooseStockSummary {
	summary := LooseStockSummary{LooseKg: decimal.Zero, SoldKg: decimal.Zero, Entries: make([]LooseStockLine, 0, len(entries))}
	for _, e := range entries {
		sold := e.SoldQuantity()
		summary.BagsConverted += e.BagsConverted
		summary.LooseKg = summary.LooseKg.Add(e.LooseQuantity)
		summary.SoldKg = summary.SoldKg.Add(sold)
		summary.Entries = append(summary.Entries, LooseStockLine{LooseStock: e, SoldKg: sold})
	}
	return summary
}

// Summarize builds the dashboard figures. Loose sales count towards sales.
func Summarize(products []inventory.Product, loose []inventory.LooseStock, purchases []ledger.Purchase, sales []ledger.Sale, looseSales []ledger.LooseSale) Summary {
	summary := Summary{
		ProductCount: len(products),
		TotalStockKg: decimal.Zero,
		TotalLooseKg: decimal.Zero,
		Purchases:    zeroBalance(),
		Sales:        zeroBalance(),
		LowStock:     []inventory.Product{},
	}
	for _, p := range products {
		summary.TotalStockKg = summary.TotalStockKg.Add(p.Stock)
		if p.IsLowStock() {
			summary.LowStock = append(summary.LowStock, p)
		}
	}
	for _, l := range loose {
		summary.TotalLooseKg = summary.TotalLooseKg.Add(l.LooseQuantity)
	}
	for _, p := range purchases {
		summary.Purchases = summary.Purchases.Add(p.Balance)
	}
	for _, s := range sales {
		summary.Sales = summary.Sales.Add(s.Balance)
	}
	for _, s := range looseSales {
		summary.Sales = summary.Sales.Add(s.Balance)
	}
	return summary
}

func zeroBalance() ledger.Balance {
	return ledger.NewBalance(decimal.Zero, decimal.Zero)
}
