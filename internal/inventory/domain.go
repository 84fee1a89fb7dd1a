package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WeightVariants lists the standard bag sizes in kilograms.
var WeightVariants = []int{1, 5, 10, 25, 26, 30, 50, 75}

// DefaultOwner scopes loose stock when the caller supplies no owner.
const DefaultOwner = "default"

// ValidWeight reports whether kg is one of WeightVariants.
func ValidWeight(kg int) bool {
	for _, w := range WeightVariants {
		if w == kg {
			return true
		}
	}
	return false
}

// Product is a bagged product. Stock is always Quantity * WeightPerBag.
type Product struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	WeightPerBag  int             `json:"weight_per_bag"`
	Quantity      int64           `json:"quantity"`
	Stock         decimal.Decimal `json:"stock"`
	LowStockAlert int64           `json:"low_stock_alert"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsLowStock reports whether the bag count is at or below the alert threshold.
func (p Product) IsLowStock() bool {
	return p.Quantity <= p.LowStockAlert
}

// LooseStock tracks kilograms taken out of bags for one product and owner.
type LooseStock struct {
	ID            uuid.UUID       `json:"id"`
	Owner         string          `json:"owner"`
	ProductID     uuid.UUID       `json:"product_id"`
	ProductName   string          `json:"product_name"`
	WeightPerBag  int             `json:"weight_per_bag"`
	BagsConverted int64           `json:"bags_converted"`
	LooseQuantity decimal.Decimal `json:"loose_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PoolSize is the total kilograms ever converted into this entry.
func (l LooseStock) PoolSize() decimal.Decimal {
	return StockFor(l.BagsConverted, l.WeightPerBag)
}

// SoldQuantity is the kilograms already sold out of the pool.
func (l LooseStock) SoldQuantity() decimal.Decimal {
	return l.PoolSize().Sub(l.LooseQuantity)
}

// CreateProductInput captures a new product.
type CreateProductInput struct {
	Name          string `json:"name" validate:"required,max=120"`
	WeightPerBag  int    `json:"weight_per_bag" validate:"required,oneof=1 5 10 25 26 30 50 75"`
	LowStockAlert int64  `json:"low_stock_alert" validate:"gte=0"`
}

// UpdateProductInput changes product attributes. Nil fields are left as is.
type UpdateProductInput struct {
	Name          *string `json:"name" validate:"omitempty,max=120"`
	WeightPerBag  *int    `json:"weight_per_bag" validate:"omitempty,oneof=1 5 10 25 26 30 50 75"`
	LowStockAlert *int64  `json:"low_stock_alert" validate:"omitempty,gte=0"`
}

// ConvertInput breaks bags of a product into loose kilograms.
type ConvertInput struct {
	ProductID uuid.UUID `json:"-"`
	Bags      int64     `json:"bags" validate:"gt=0"`
	Owner     string    `json:"owner" validate:"omitempty,max=64"`
}

// BagDelta is a bag count change for one product.
type BagDelta struct {
	ProductID uuid.UUID
	Bags      int64
}

// LooseDelta is a kilogram withdrawal from one loose stock entry.
type LooseDelta struct {
	LooseStockID uuid.UUID
	Kg           decimal.Decimal
}
