package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies which ledger a transaction or payment belongs to.
type Kind string

const (
	// KindPurchase is a purchase from a biller.
	KindPurchase Kind = "purchase"
	// KindSale is a sale of bags to a customer.
	KindSale Kind = "sale"
	// KindLooseSale is a sale of loose kilograms to a customer.
	KindLooseSale Kind = "loose_sale"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPurchase, KindSale, KindLooseSale:
		return true
	}
	return false
}

func (k Kind) prefix() string {
	switch k {
	case KindPurchase:
		return "PUR"
	case KindSale:
		return "SAL"
	default:
		return "LSL"
	}
}

// Balance holds the money side of a transaction.
// BalanceAmount is always max(0, TotalAmount-PaidAmount).
type Balance struct {
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
}

// NewBalance builds a balance for total with paid already received.
func NewBalance(total, paid decimal.Decimal) Balance {
	return Balance{TotalAmount: total, PaidAmount: paid, BalanceAmount: clampZero(total.Sub(paid))}
}

// Apply records a payment of amount.
func (b Balance) Apply(amount decimal.Decimal) Balance {
	b.PaidAmount = b.PaidAmount.Add(amount)
	b.BalanceAmount = clampZero(b.BalanceAmount.Sub(amount))
	return b
}

// Add accumulates another balance, used by report rollups.
func (b Balance) Add(o Balance) Balance {
	return Balance{
		TotalAmount:   b.TotalAmount.Add(o.TotalAmount),
		PaidAmount:    b.PaidAmount.Add(o.PaidAmount),
		BalanceAmount: b.BalanceAmount.Add(o.BalanceAmount),
	}
}

// Settled reports whether nothing is owed.
func (b Balance) Settled() bool {
	return !b.BalanceAmount.IsPositive()
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// LineItem is one bag line of a purchase or sale. Product name and weight are
// copied at transaction time and never follow later product edits.
type LineItem struct {
	ID           uuid.UUID       `json:"id"`
	ProductID    uuid.UUID       `json:"product_id"`
	ProductName  string          `json:"product_name"`
	WeightPerBag int             `json:"weight_per_bag"`
	Quantity     int64           `json:"quantity"`
	Weight       decimal.Decimal `json:"weight"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Amount       decimal.Decimal `json:"amount"`
}

// Purchase is a purchase of bags from a biller.
type Purchase struct {
	ID          uuid.UUID  `json:"id"`
	Number      string     `json:"number"`
	BillerName  string     `json:"biller_name"`
	BillerPhone string     `json:"biller_phone,omitempty"`
	Items       []LineItem `json:"items"`
	Balance
	Payments  []Payment `json:"payments"`
	CreatedAt time.Time `json:"created_at"`
}

// Sale is a sale of bags to a customer.
type Sale struct {
	ID            uuid.UUID  `json:"id"`
	Number        string     `json:"number"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	Items         []LineItem `json:"items"`
	Balance
	Payments  []Payment `json:"payments"`
	CreatedAt time.Time `json:"created_at"`
}

// LooseSaleItem is one kilogram line drawn from a loose stock entry.
type LooseSaleItem struct {
	ID           uuid.UUID       `json:"id"`
	LooseStockID uuid.UUID       `json:"loose_stock_id"`
	ProductID    uuid.UUID       `json:"product_id"`
	ProductName  string          `json:"product_name"`
	QuantityKg   decimal.Decimal `json:"quantity_kg"`
	PricePerKg   decimal.Decimal `json:"price_per_kg"`
	Amount       decimal.Decimal `json:"amount"`
}

// LooseSale is a sale of loose kilograms to a customer.
type LooseSale struct {
	ID            uuid.UUID       `json:"id"`
	Number        string          `json:"number"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	Items         []LooseSaleItem `json:"items"`
	Balance
	Payments  []Payment `json:"payments"`
	CreatedAt time.Time `json:"created_at"`
}

// Payment is money received against exactly one transaction.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	Kind          Kind            `json:"kind"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ItemInput is a bag line. Exactly one of Quantity or WeightKg is given; a weight
// is converted to whole bags rounding up.
type ItemInput struct {
	ProductID uuid.UUID        `json:"product_id" validate:"required"`
	Quantity  int64            `json:"quantity" validate:"gte=0"`
	WeightKg  *decimal.Decimal `json:"weight_kg,omitempty"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
}

// CreatePurchaseInput captures a purchase.
type CreatePurchaseInput struct {
	BillerName  string          `json:"biller_name" validate:"required,max=120"`
	BillerPhone string          `json:"biller_phone" validate:"omitempty,max=32"`
	Items       []ItemInput     `json:"items" validate:"required,min=1,dive"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
}

// CreateSaleInput captures a bag sale.
type CreateSaleInput struct {
	CustomerName  string          `json:"customer_name" validate:"required,max=120"`
	CustomerPhone string          `json:"customer_phone" validate:"omitempty,max=32"`
	Items         []ItemInput     `json:"items" validate:"required,min=1,dive"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
}

// LooseItemInput is a kilogram line.
type LooseItemInput struct {
	LooseStockID uuid.UUID       `json:"loose_stock_id" validate:"required"`
	QuantityKg   decimal.Decimal `json:"quantity_kg"`
	PricePerKg   decimal.Decimal `json:"price_per_kg"`
}

// CreateLooseSaleInput captures a loose sale.
type CreateLooseSaleInput struct {
	CustomerName  string           `json:"customer_name" validate:"required,max=120"`
	CustomerPhone string           `json:"customer_phone" validate:"omitempty,max=32"`
	Items         []LooseItemInput `json:"items" validate:"required,min=1,dive"`
	PaidAmount    decimal.Decimal  `json:"paid_amount"`
}

// PaymentInput captures a top-up payment. A zero Date means now.
type PaymentInput struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note" validate:"omitempty,max=500"`
	Date   time.Time       `json:"date"`
}
