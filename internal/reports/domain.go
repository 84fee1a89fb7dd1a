// Package reports builds read-only rollups over the ledgers and stock. Nothing
// here writes or caches; every report is recomputed from current state.
package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/ledger"
)

// BillerReport rolls up purchases from one biller.
type BillerReport struct {
	Name  string `json:"biller_name"`
	Phone string `json:"biller_phone,omitempty"`
	ledger.Balance
	Purchases []ledger.Purchase `json:"purchases"`
}

// CustomerReport rolls up bag sales to one customer.
type CustomerReport struct {
	Name  string `json:"customer_name"`
	Phone string `json:"customer_phone,omitempty"`
	ledger.Balance
	Sales []ledger.Sale `json:"sales"`
}

// LooseCustomerReport rolls up loose sales to one customer.
type LooseCustomerReport struct {
	Name  string `json:"customer_name"`
	Phone string `json:"customer_phone,omitempty"`
	ledger.Balance
	Sales []ledger.LooseSale `json:"loose_sales"`
}

// ProductReport is the trading history of one product. Deleted products keep
// the name and bag weight captured on their last line item.
type ProductReport struct {
	ProductID       uuid.UUID       `json:"product_id"`
	ProductName     string          `json:"product_name"`
	WeightPerBag    int             `json:"weight_per_bag"`
	BagsPurchased   int64           `json:"bags_purchased"`
	KgPurchased     decimal.Decimal `json:"kg_purchased"`
	PurchaseValue   decimal.Decimal `json:"purchase_value"`
	BagsSold        int64           `json:"bags_sold"`
	KgSold          decimal.Decimal `json:"kg_sold"`
	SalesValue      decimal.Decimal `json:"sales_value"`
	LooseKgSold     decimal.Decimal `json:"loose_kg_sold"`
	LooseSalesValue decimal.Decimal `json:"loose_sales_value"`
	Quantity        int64           `json:"quantity"`
	Stock           decimal.Decimal `json:"stock"`
	LowStock        bool            `json:"low_stock"`
	Deleted         bool            `json:"deleted"`
}

// LooseStockLine is one loose pool with the kilograms already sold from it.
type LooseStockLine struct {
	inventory.LooseStock
	SoldKg decimal.Decimal `json:"sold_kg"`
}

// LooseStockSummary totals the loose pools.
type LooseStockSummary struct {
	BagsConverted int64            `json:"bags_converted"`
	LooseKg       decimal.Decimal  `json:"loose_kg"`
	SoldKg        decimal.Decimal  `json:"sold_kg"`
	Entries       []LooseStockLine `json:"entries"`
}

// Summary is the dashboard view.
type Summary struct {
	ProductCount int                 `json:"product_count"`
	TotalStockKg decimal.Decimal     `json:"total_stock_kg"`
	TotalLooseKg decimal.Decimal     `json:"total_loose_kg"`
	Purchases    ledger.Balance      `json:"purchases"`
	Sales        ledger.Balance      `json:"sales"`
	LowStock     []inventory.Product `json:"low_stock"`
}

// Bundle carries every report built from one load of the data.
type Bundle struct {
	Billers        []BillerReport        `json:"billers"`
	Customers      []CustomerReport      `json:"customers"`
	LooseCustomers []LooseCustomerReport `json:"loose_customers"`
	Products       []ProductReport       `json:"products"`
	LooseStock     LooseStockSummary     `json:"loose_stock"`
	Summary        Summary               `json:"summary"`
	GeneratedAt    time.Time             `json:"generated_at"`
}
