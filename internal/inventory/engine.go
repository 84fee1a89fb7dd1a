package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockTx is the part of a storage transaction the engine reads and writes.
// Reads lock the returned row until the transaction ends.
type StockTx interface {
	GetProductForUpdate(ctx context.Context, id uuid.UUID) (Product, error)
	SaveProduct(ctx context.Context, p Product) error
	GetLooseStockForUpdate(ctx context.Context, id uuid.UUID) (LooseStock, error)
	FindLooseStockForUpdate(ctx context.Context, productID uuid.UUID, owner string, weightPerBag int) (LooseStock, bool, error)
	InsertLooseStock(ctx context.Context, l LooseStock) error
	SaveLooseStock(ctx context.Context, l LooseStock) error
}

// StockFor returns the kilograms held in quantity bags.
func StockFor(quantity int64, weightPerBag int) decimal.Decimal {
	return decimal.NewFromInt(quantity).Mul(decimal.NewFromInt(int64(weightPerBag)))
}

// BagsForWeight converts kilograms into bags, rounding partial bags up.
func BagsForWeight(kg decimal.Decimal, weightPerBag int) int64 {
	if weightPerBag <= 0 || !kg.IsPositive() {
		return 0
	}
	q, r := kg.QuoRem(decimal.NewFromInt(int64(weightPerBag)), 0)
	bags := q.IntPart()
	if r.IsPositive() {
		bags++
	}
	return bags
}

// ApplyBagDelta adds delta bags to p, never going below zero, and recomputes stock
// from the product's current weight per bag.
func ApplyBagDelta(p Product, delta int64, now time.Time) Product {
	p.Quantity += delta
	if p.Quantity < 0 {
		p.Quantity = 0
	}
	p.Stock = StockFor(p.Quantity, p.WeightPerBag)
	p.UpdatedAt = now
	return p
}

// DepleteLoose removes kg from the loose pool, never going below zero.
func DepleteLoose(l LooseStock, kg decimal.Decimal, now time.Time) LooseStock {
	l.LooseQuantity = l.LooseQuantity.Sub(kg)
	if l.LooseQuantity.IsNegative() {
		l.LooseQuantity = decimal.Zero
	}
	l.UpdatedAt = now
	return l
}

// Engine applies stock movements inside a caller-owned transaction. It does not
// check availability; callers reject short stock before invoking it.
type Engine struct {
	now func() time.Time
}

// NewEngine builds an Engine. A nil clock uses time.Now.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// ApplyPurchase adds bags to each product.
func (e *Engine) ApplyPurchase(ctx context.Context, tx StockTx, deltas []BagDelta) ([]Product, error) {
	return e.applyBags(ctx, tx, deltas, 1)
}

// ApplySale removes bags from each product, clamping at zero.
func (e *Engine) ApplySale(ctx context.Context, tx StockTx, deltas []BagDelta) ([]Product, error) {
	return e.applyBags(ctx, tx, deltas, -1)
}

func (e *Engine) applyBags(ctx context.Context, tx StockTx, deltas []BagDelta, sign int64) ([]Product, error) {
	merged := MergeBagDeltas(deltas)
	now := e.now()
	updated := make([]Product, 0, len(merged))
	for _, d := range merged {
		p, err := tx.GetProductForUpdate(ctx, d.ProductID)
		if err != nil {
			return nil, err
		}
		p = ApplyBagDelta(p, sign*d.Bags, now)
		if err := tx.SaveProduct(ctx, p); err != nil {
			return nil, err
		}
		updated = append(updated, p)
	}
	return updated, nil
}

// ConvertToLoose moves bags of a product into its loose pool for owner, creating
// the pool on first conversion. Pools are kept per bag weight so that
// BagsConverted*WeightPerBag always matches the kilograms added.
func (e *Engine) ConvertToLoose(ctx context.Context, tx StockTx, productID uuid.UUID, bags int64, weightPerBag int, owner string) (Product, LooseStock, error) {
	if owner == "" {
		owner = DefaultOwner
	}
	now := e.now()
	p, err := tx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return Product{}, LooseStock{}, err
	}
	p = ApplyBagDelta(p, -bags, now)
	if err := tx.SaveProduct(ctx, p); err != nil {
		return Product{}, LooseStock{}, err
	}

	added := StockFor(bags, weightPerBag)
	loose, found, err := tx.FindLooseStockForUpdate(ctx, productID, owner, weightPerBag)
	if err != nil {
		return Product{}, LooseStock{}, err
	}
	if !found {
		loose = LooseStock{
			ID:            uuid.New(),
			Owner:         owner,
			ProductID:     p.ID,
			ProductName:   p.Name,
			WeightPerBag:  weightPerBag,
			BagsConverted: bags,
			LooseQuantity: added,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertLooseStock(ctx, loose); err != nil {
			return Product{}, LooseStock{}, err
		}
		return p, loose, nil
	}
	loose.BagsConverted += bags
	loose.LooseQuantity = loose.LooseQuantity.Add(added)
	loose.UpdatedAt = now
	if err := tx.SaveLooseStock(ctx, loose); err != nil {
		return Product{}, LooseStock{}, err
	}
	return p, loose, nil
}

// ApplyLooseSale withdraws kilograms from loose pools, clamping at zero.
func (e *Engine) ApplyLooseSale(ctx context.Context, tx StockTx, deltas []LooseDelta) ([]LooseStock, error) {
	merged := MergeLooseDeltas(deltas)
	now := e.now()
	updated := make([]LooseStock, 0, len(merged))
	for _, d := range merged {
		l, err := tx.GetLooseStockForUpdate(ctx, d.LooseStockID)
		if err != nil {
			return nil, err
		}
		l = DepleteLoose(l, d.Kg, now)
		if err := tx.SaveLooseStock(ctx, l); err != nil {
			return nil, err
		}
		updated = append(updated, l)
	}
	return updated, nil
}

// MergeBagDeltas sums deltas per product, keeping first-seen order.
func MergeBagDeltas(deltas []BagDelta) []BagDelta {
	index := make(map[uuid.UUID]int, len(deltas))
	out := make([]BagDelta, 0, len(deltas))
	for _, d := range deltas {
		if i, ok := index[d.ProductID]; ok {
			out[i].Bags += d.Bags
			continue
		}
		index[d.ProductID] = len(out)
		out = append(out, d)
	}
	return out
}

// MergeLooseDeltas sums deltas per loose stock entry, keeping first-seen order.
func MergeLooseDeltas(deltas []LooseDelta) []LooseDelta {
	index := make(map[uuid.UUID]int, len(deltas))
	out := make([]LooseDelta, 0, len(deltas))
	for _, d := range deltas {
		if i, ok := index[d.LooseStockID]; ok {
			out[i].Kg = out[i].Kg.Add(d.Kg)
			continue
		}
		index[d.LooseStockID] = len(out)
		out = append(out, d)
	}
	return out
}
