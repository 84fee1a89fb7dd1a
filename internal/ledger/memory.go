package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/shared"
)

// MemoryStore keeps the whole ledger in process memory. Transactions run one at a
// time against a copy of the state which replaces the live state only on success.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
}

type memoryState struct {
	products   map[uuid.UUID]inventory.Product
	loose      map[uuid.UUID]inventory.LooseStock
	purchases  map[uuid.UUID]Purchase
	sales      map[uuid.UUID]Sale
	looseSales map[uuid.UUID]LooseSale
	payments   map[uuid.UUID][]Payment
	seq        map[uuid.UUID]int64
	next       int64
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{
		products:   make(map[uuid.UUID]inventory.Product),
		loose:      make(map[uuid.UUID]inventory.LooseStock),
		purchases:  make(map[uuid.UUID]Purchase),
		sales:      make(map[uuid.UUID]Sale),
		looseSales: make(map[uuid.UUID]LooseSale),
		payments:   make(map[uuid.UUID][]Payment),
		seq:        make(map[uuid.UUID]int64),
	}}
}

// clone copies the maps. Stored values are replaced, never mutated in place, so
// sharing them between copies is safe.
func (s memoryState) clone() memoryState {
	c := memoryState{
		products:   make(map[uuid.UUID]inventory.Product, len(s.products)),
		loose:      make(map[uuid.UUID]inventory.LooseStock, len(s.loose)),
		purchases:  make(map[uuid.UUID]Purchase, len(s.purchases)),
		sales:      make(map[uuid.UUID]Sale, len(s.sales)),
		looseSales: make(map[uuid.UUID]LooseSale, len(s.looseSales)),
		payments:   make(map[uuid.UUID][]Payment, len(s.payments)),
		seq:        make(map[uuid.UUID]int64, len(s.seq)),
		next:       s.next,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.loose {
		c.loose[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	for k, v := range s.sales {
		c.sales[k] = v
	}
	for k, v := range s.looseSales {
		c.looseSales[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = append([]Payment(nil), v...)
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return c
}

func (s *MemoryStore) withTx(fn func(*memoryTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memoryTx{st: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.st
	return nil
}

// WithTx runs fn atomically.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return s.withTx(func(tx *memoryTx) error { return fn(ctx, tx) })
}

type memorySnapshotKey struct{}

// view returns the state pinned by Snapshot, or the live state. Committed
// maps are never written again, so a view stays valid after the lock is released.
func (s *MemoryStore) view(ctx context.Context) memoryState {
	if st, ok := ctx.Value(memorySnapshotKey{}).(memoryState); ok {
		return st
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot pins every read made through fn's context to the state committed
// when it was called.
func (s *MemoryStore) Snapshot(ctx context.Context, fn func(context.Context) error) error {
	if _, ok := ctx.Value(memorySnapshotKey{}).(memoryState); ok {
		return fn(ctx)
	}
	return fn(context.WithValue(ctx, memorySnapshotKey{}, s.view(ctx)))
}

// ParallelReads reports that snapshot reads may run concurrently.
func (s *MemoryStore) ParallelReads() bool { return true }

// GetPurchase returns one purchase.
func (s *MemoryStore) GetPurchase(ctx context.Context, id uuid.UUID) (Purchase, error) {
	st := s.view(ctx)
	p, ok := st.purchases[id]
	if !ok {
		return Purchase{}, shared.NotFound("purchase", id)
	}
	p.Payments = st.paymentsOf(id)
	return p, nil
}

// GetSale returns one sale.
func (s *MemoryStore) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	st := s.view(ctx)
	sale, ok := st.sales[id]
	if !ok {
		return Sale{}, shared.NotFound("sale", id)
	}
	sale.Payments = st.paymentsOf(id)
	return sale, nil
}

// GetLooseSale returns one loose sale.
func (s *MemoryStore) GetLooseSale(ctx context.Context, id uuid.UUID) (LooseSale, error) {
	st := s.view(ctx)
	sale, ok := st.looseSales[id]
	if !ok {
		return LooseSale{}, shared.NotFound("loose sale", id)
	}
	sale.Payments = st.paymentsOf(id)
	return sale, nil
}

// ListPurchases returns purchases newest first.
func (s *MemoryStore) ListPurchases(ctx context.Context) ([]Purchase, error) {
	st := s.view(ctx)
	out := make([]Purchase, 0, len(st.purchases))
	for id, p := range st.purchases {
		p.Payments = st.paymentsOf(id)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return st.newer(out[i].ID, out[i].CreatedAt.UnixNano(), out[j].ID, out[j].CreatedAt.UnixNano()) })
	return out, nil
}

// ListSales returns sales newest first.
func (s *MemoryStore) ListSales(ctx context.Context) ([]Sale, error) {
	st := s.view(ctx)
	out := make([]Sale, 0, len(st.sales))
	for id, sale := range st.sales {
		sale.Payments = st.paymentsOf(id)
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool { return st.newer(out[i].ID, out[i].CreatedAt.UnixNano(), out[j].ID, out[j].CreatedAt.UnixNano()) })
	return out, nil
}

// ListLooseSales returns loose sales newest first.
func (s *MemoryStore) ListLooseSales(ctx context.Context) ([]LooseSale, error) {
	st := s.view(ctx)
	out := make([]LooseSale, 0, len(st.looseSales))
	for id, sale := range st.looseSales {
		sale.Payments = st.paymentsOf(id)
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool { return st.newer(out[i].ID, out[i].CreatedAt.UnixNano(), out[j].ID, out[j].CreatedAt.UnixNano()) })
	return out, nil
}

func (s memoryState) paymentsOf(id uuid.UUID) []Payment {
	return append([]Payment{}, s.payments[id]...)
}

// newer orders by creation time, then by insertion order for equal timestamps.
func (s memoryState) newer(a uuid.UUID, aAt int64, b uuid.UUID, bAt int64) bool {
	if aAt != bAt {
		return aAt > bAt
	}
	return s.seq[a] > s.seq[b]
}

// Inventory exposes the store as an inventory repository.
func (s *MemoryStore) Inventory() inventory.RepositoryPort {
	return memoryInventory{s: s}
}

type memoryInventory struct {
	s *MemoryStore
}

func (m memoryInventory) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return m.s.withTx(func(tx *memoryTx) error { return fn(ctx, tx) })
}

func (m memoryInventory) GetProduct(ctx context.Context, id uuid.UUID) (inventory.Product, error) {
	p, ok := m.s.view(ctx).products[id]
	if !ok {
		return inventory.Product{}, shared.NotFound("product", id)
	}
	return p, nil
}

func (m memoryInventory) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	st := m.s.view(ctx)
	out := make([]inventory.Product, 0, len(st.products))
	for _, p := range st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memoryInventory) GetLooseStock(ctx context.Context, id uuid.UUID) (inventory.LooseStock, error) {
	l, ok := m.s.view(ctx).loose[id]
	if !ok {
		return inventory.LooseStock{}, shared.NotFound("loose stock", id)
	}
	return l, nil
}

func (m memoryInventory) ListLooseStock(ctx context.Context) ([]inventory.LooseStock, error) {
	st := m.s.view(ctx)
	out := make([]inventory.LooseStock, 0, len(st.loose))
	for _, l := range st.loose {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductName < out[j].ProductName })
	return out, nil
}

// memoryTx serves both the ledger and the inventory transactional ports.
type memoryTx struct {
	st memoryState
}

func (tx *memoryTx) track(id uuid.UUID) {
	tx.st.next++
	tx.st.seq[id] = tx.st.next
}

func (tx *memoryTx) GetProductForUpdate(_ context.Context, id uuid.UUID) (inventory.Product, error) {
	p, ok := tx.st.products[id]
	if !ok {
		return inventory.Product{}, shared.NotFound("product", id)
	}
	return p, nil
}

func (tx *memoryTx) SaveProduct(_ context.Context, p inventory.Product) error {
	if _, ok := tx.st.products[p.ID]; !ok {
		return shared.NotFound("product", p.ID)
	}
	tx.st.products[p.ID] = p
	return nil
}

func (tx *memoryTx) InsertProduct(_ context.Context, p inventory.Product) error {
	tx.st.products[p.ID] = p
	tx.track(p.ID)
	return nil
}

func (tx *memoryTx) DeleteProduct(_ context.Context, id uuid.UUID) error {
	if _, ok := tx.st.products[id]; !ok {
		return shared.NotFound("product", id)
	}
	delete(tx.st.products, id)
	return nil
}

func (tx *memoryTx) GetLooseStockForUpdate(_ context.Context, id uuid.UUID) (inventory.LooseStock, error) {
	l, ok := tx.st.loose[id]
	if !ok {
		return inventory.LooseStock{}, shared.NotFound("loose stock", id)
	}
	return l, nil
}

func (tx *memoryTx) FindLooseStockForUpdate(_ context.Context, productID uuid.UUID, owner string, weightPerBag int) (inventory.LooseStock, bool, error) {
	for _, l := range tx.st.loose {
		if l.ProductID == productID && l.Owner == owner && l.WeightPerBag == weightPerBag {
			return l, true, nil
		}
	}
	return inventory.LooseStock{}, false, nil
}

func (tx *memoryTx) InsertLooseStock(_ context.Context, l inventory.LooseStock) error {
	tx.st.loose[l.ID] = l
	tx.track(l.ID)
	return nil
}

func (tx *memoryTx) SaveLooseStock(_ context.Context, l inventory.LooseStock) error {
	if _, ok := tx.st.loose[l.ID]; !ok {
		return shared.NotFound("loose stock", l.ID)
	}
	tx.st.loose[l.ID] = l
	return nil
}

func (tx *memoryTx) InsertPurchase(_ context.Context, p Purchase) error {
	p.Payments = nil
	tx.st.purchases[p.ID] = p
	tx.track(p.ID)
	return nil
}

func (tx *memoryTx) InsertSale(_ context.Context, s Sale) error {
	s.Payments = nil
	tx.st.sales[s.ID] = s
	tx.track(s.ID)
	return nil
}

func (tx *memoryTx) InsertLooseSale(_ context.Context, s LooseSale) error {
	s.Payments = nil
	tx.st.looseSales[s.ID] = s
	tx.track(s.ID)
	return nil
}

func (tx *memoryTx) InsertPayment(_ context.Context, p Payment) error {
	if _, err := tx.balance(p.Kind, p.TransactionID); err != nil {
		return err
	}
	tx.st.payments[p.TransactionID] = append(tx.st.payments[p.TransactionID], p)
	return nil
}

func (tx *memoryTx) GetBalanceForUpdate(_ context.Context, kind Kind, id uuid.UUID) (Balance, error) {
	return tx.balance(kind, id)
}

func (tx *memoryTx) balance(kind Kind, id uuid.UUID) (Balance, error) {
	switch kind {
	case KindPurchase:
		if p, ok := tx.st.purchases[id]; ok {
			return p.Balance, nil
		}
	case KindSale:
		if s, ok := tx.st.sales[id]; ok {
			return s.Balance, nil
		}
	case KindLooseSale:
		if s, ok := tx.st.looseSales[id]; ok {
			return s.Balance, nil
		}
	}
	return Balance{}, shared.NotFound(string(kind), id)
}

func (tx *memoryTx) UpdateBalance(_ context.Context, kind Kind, id uuid.UUID, b Balance) error {
	switch kind {
	case KindPurchase:
		if p, ok := tx.st.purchases[id]; ok {
			p.Balance = b
			tx.st.purchases[id] = p
			return nil
		}
	case KindSale:
		if s, ok := tx.st.sales[id]; ok {
			s.Balance = b
			tx.st.sales[id] = s
			return nil
		}
	case KindLooseSale:
		if s, ok := tx.st.looseSales[id]; ok {
			s.Balance = b
			tx.st.looseSales[id] = s
			return nil
		}
	}
	return shared.NotFound(string(kind), id)
}
