package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/platform/db"
	"github.com/riceledger/riceledger/internal/shared"
)

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool     *pgxpool.Pool
	attempts int
}

// NewRepository constructs Repository. attempts bounds serialization retries.
func NewRepository(pool *pgxpool.Pool, attempts int) *Repository {
	return &Repository{pool: pool, attempts: attempts}
}

// schema names the tables and columns that differ between ledgers.
type schema struct {
	entity string
	header string
	name   string
	phone  string
	items  string
	fk     string
}

func schemaFor(kind Kind) (schema, error) {
	switch kind {
	case KindPurchase:
		return schema{"purchase", "purchases", "biller_name", "biller_phone", "purchase_items", "purchase_id"}, nil
	case KindSale:
		return schema{"sale", "sales", "customer_name", "customer_phone", "sale_items", "sale_id"}, nil
	case KindLooseSale:
		return schema{"loose sale", "loose_sales", "customer_name", "customer_phone", "loose_sale_items", "loose_sale_id"}, nil
	}
	return schema{}, fmt.Errorf("ledger: unknown kind %q", kind)
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithRetry(ctx, r.pool, r.attempts, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{PgTx: inventory.NewPgTx(tx), q: tx})
	})
}

type pgTx struct {
	*inventory.PgTx
	q inventory.Querier
}

type header struct {
	ID        uuid.UUID
	Number    string
	Name      string
	Phone     string
	Balance   Balance
	CreatedAt pgtype.Timestamptz
}

func (t *pgTx) insertHeader(ctx context.Context, kind Kind, h header) error {
	s, err := schemaFor(kind)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf(`INSERT INTO %s (id, number, %s, %s, total_amount, paid_amount, balance_amount, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.header, s.name, s.phone)
	_, err = t.q.Exec(ctx, sql, h.ID, h.Number, h.Name, db.Text(h.Phone),
		db.Numeric(h.Balance.TotalAmount), db.Numeric(h.Balance.PaidAmount), db.Numeric(h.Balance.BalanceAmount), h.CreatedAt)
	return err
}

func (t *pgTx) insertLineItems(ctx context.Context, kind Kind, parent uuid.UUID, items []LineItem) error {
	s, err := schemaFor(kind)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf(`INSERT INTO %s (id, %s, line_no, product_id, product_name, weight_per_bag, quantity, weight, unit_price, amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, s.items, s.fk)
	for i, item := range items {
		if _, err := t.q.Exec(ctx, sql, item.ID, parent, i+1, item.ProductID, item.ProductName, item.WeightPerBag,
			item.Quantity, db.Numeric(item.Weight), db.Numeric(item.UnitPrice), db.Numeric(item.Amount)); err != nil {
			return err
		}
	}
	return nil
}

// InsertPurchase stores the header and line items.
func (t *pgTx) InsertPurchase(ctx context.Context, p Purchase) error {
	h := header{ID: p.ID, Number: p.Number, Name: p.BillerName, Phone: p.BillerPhone, Balance: p.Balance,
		CreatedAt: pgtype.Timestamptz{Time: p.CreatedAt, Valid: true}}
	if err := t.insertHeader(ctx, KindPurchase, h); err != nil {
		return err
	}
	return t.insertLineItems(ctx, KindPurchase, p.ID, p.Items)
}

// InsertSale stores the header and line items.
func (t *pgTx) InsertSale(ctx context.Context, s Sale) error {
	h := header{ID: s.ID, Number: s.Number, Name: s.CustomerName, Phone: s.CustomerPhone, Balance: s.Balance,
		CreatedAt: pgtype.Timestamptz{Time: s.CreatedAt, Valid: true}}
	if err := t.insertHeader(ctx, KindSale, h); err != nil {
		return err
	}
	return t.insertLineItems(ctx, KindSale, s.ID, s.Items)
}

// InsertLooseSale stores the header and kilogram lines.
func (t *pgTx) InsertLooseSale(ctx context.Context, s LooseSale) error {
	h := header{ID: s.ID, Number: s.Number, Name: s.CustomerName, Phone: s.CustomerPhone, Balance: s.Balance,
		CreatedAt: pgtype.Timestamptz{Time: s.CreatedAt, Valid: true}}
	if err := t.insertHeader(ctx, KindLooseSale, h); err != nil {
		return err
	}
	for i, item := range s.Items {
		if _, err := t.q.Exec(ctx, `INSERT INTO loose_sale_items (id, loose_sale_id, line_no, loose_stock_id, product_id, product_name, quantity_kg, price_per_kg, amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, item.ID, s.ID, i+1, item.LooseStockID, item.ProductID, item.ProductName,
			db.Numeric(item.QuantityKg), db.Numeric(item.PricePerKg), db.Numeric(item.Amount)); err != nil {
			return err
		}
	}
	return nil
}

// InsertPayment stores a payment against its owning transaction.
func (t *pgTx) InsertPayment(ctx context.Context, p Payment) error {
	s, err := schemaFor(p.Kind)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf(`INSERT INTO payments (id, %s, amount, paid_on, note, created_at) VALUES ($1, $2, $3, $4, $5, $6)`, s.fk)
	_, err = t.q.Exec(ctx, sql, p.ID, p.TransactionID, db.Numeric(p.Amount), p.Date, db.Text(p.Note), p.CreatedAt)
	return err
}

// GetBalanceForUpdate locks the transaction header and returns its balance.
func (t *pgTx) GetBalanceForUpdate(ctx context.Context, kind Kind, id uuid.UUID) (Balance, error) {
	s, err := schemaFor(kind)
	if err != nil {
		return Balance{}, err
	}
	var total, paid, balance pgtype.Numeric
	err = t.q.QueryRow(ctx, fmt.Sprintf(`SELECT total_amount, paid_amount, balance_amount FROM %s WHERE id = $1 FOR UPDATE`, s.header), id).
		Scan(&total, &paid, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, shared.NotFound(s.entity, id)
		}
		return Balance{}, err
	}
	return Balance{TotalAmount: db.Decimal(total), PaidAmount: db.Decimal(paid), BalanceAmount: db.Decimal(balance)}, nil
}

// UpdateBalance writes paid and balance amounts.
func (t *pgTx) UpdateBalance(ctx context.Context, kind Kind, id uuid.UUID, b Balance) error {
	s, err := schemaFor(kind)
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, fmt.Sprintf(`UPDATE %s SET paid_amount = $2, balance_amount = $3 WHERE id = $1`, s.header),
		id, db.Numeric(b.PaidAmount), db.Numeric(b.BalanceAmount))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(s.entity, id)
	}
	return nil
}

// GetPurchase loads one purchase with items and payments.
func (r *Repository) GetPurchase(ctx context.Context, id uuid.UUID) (Purchase, error) {
	list, err := r.loadPurchases(ctx, `WHERE id = $1`, id)
	if err != nil {
		return Purchase{}, err
	}
	if len(list) == 0 {
		return Purchase{}, shared.NotFound("purchase", id)
	}
	return list[0], nil
}

// GetSale loads one sale with items and payments.
func (r *Repository) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	list, err := r.loadSales(ctx, `WHERE id = $1`, id)
	if err != nil {
		return Sale{}, err
	}
	if len(list) == 0 {
		return Sale{}, shared.NotFound("sale", id)
	}
	return list[0], nil
}

// GetLooseSale loads one loose sale with items and payments.
func (r *Repository) GetLooseSale(ctx context.Context, id uuid.UUID) (LooseSale, error) {
	list, err := r.loadLooseSales(ctx, `WHERE id = $1`, id)
	if err != nil {
		return LooseSale{}, err
	}
	if len(list) == 0 {
		return LooseSale{}, shared.NotFound("loose sale", id)
	}
	return list[0], nil
}

// Snapshot runs fn against one committed state of the database. Repositories
// sharing the pool join the snapshot through ctx.
func (r *Repository) Snapshot(ctx context.Context, fn func(context.Context) error) error {
	return db.WithSnapshot(ctx, r.pool, fn)
}

// ParallelReads is false: a snapshot holds a single connection.
func (r *Repository) ParallelReads() bool { return false }

// ListPurchases returns purchases newest first.
func (r *Repository) ListPurchases(ctx context.Context) ([]Purchase, error) {
	return r.loadPurchases(ctx, "")
}

// ListSales returns sales newest first.
func (r *Repository) ListSales(ctx context.Context) ([]Sale, error) {
	return r.loadSales(ctx, "")
}

// ListLooseSales returns loose sales newest first.
func (r *Repository) ListLooseSales(ctx context.Context) ([]LooseSale, error) {
	return r.loadLooseSales(ctx, "")
}

// loadPurchases reads headers, items and payments from one snapshot.
func (r *Repository) loadPurchases(ctx context.Context, where string, args ...any) (out []Purchase, err error) {
	err = db.WithSnapshot(ctx, r.pool, func(ctx context.Context) error {
		out, err = r.readPurchases(ctx, where, args...)
		return err
	})
	return out, err
}

func (r *Repository) readPurchases(ctx context.Context, where string, args ...any) ([]Purchase, error) {
	headers, err := r.headers(ctx, KindPurchase, where, args...)
	if err != nil {
		return nil, err
	}
	items, err := r.lineItems(ctx, KindPurchase, where, args...)
	if err != nil {
		return nil, err
	}
	payments, err := r.payments(ctx, KindPurchase, where, args...)
	if err != nil {
		return nil, err
	}
	out := make([]Purchase, 0, len(headers))
	for _, h := range headers {
		out = append(out, Purchase{
			ID: h.ID, Number: h.Number, BillerName: h.Name, BillerPhone: h.Phone,
			Items: nonNilItems(items[h.ID]), Balance: h.Balance, Payments: nonNilPayments(payments[h.ID]), CreatedAt: h.CreatedAt.Time,
		})
	}
	return out, nil
}

// loadSales reads headers, items and payments from one snapshot.
func (r *Repository) loadSales(ctx context.Context, where string, args ...any) (out []Sale, err error) {
	err = db.WithSnapshot(ctx, r.pool, func(ctx context.Context) error {
		out, err = r.readSales(ctx, where, args...)
		return err
	})
	return out, err
}

func (r *Repository) readSales(ctx context.Context, where string, args ...any) ([]Sale, error) {
	headers, err := r.headers(ctx, KindSale, where, args...)
	if err != nil {
		return nil, err
	}
	items, err := r.lineItems(ctx, KindSale, where, args...)
	if err != nil {
		return nil, err
	}
	payments, err := r.payments(ctx, KindSale, where, args...)
	if err != nil {
		return nil, err
	}
	out := make([]Sale, 0, len(headers))
	for _, h := range headers {
		out = append(out, Sale{
			ID: h.ID, Number: h.Number, CustomerName: h.Name, CustomerPhone: h.Phone,
			Items: nonNilItems(items[h.ID]), Balance: h.Balance, Payments: nonNilPayments(payments[h.ID]), CreatedAt: h.CreatedAt.Time,
		})
	}
	return out, nil
}

// loadLooseSales reads headers, items and payments from one snapshot.
func (r *Repository) loadLooseSales(ctx context.Context, where string, args ...any) (out []LooseSale, err error) {
	err = db.WithSnapshot(ctx, r.pool, func(ctx context.Context) error {
		out, err = r.readLooseSales(ctx, where, args...)
		return err
	})
	return out, err
}

func (r *Repository) readLooseSales(ctx context.Context, where string, args ...any) ([]LooseSale, error) {
	headers, err := r.headers(ctx, KindLooseSale, where, args...)
	if err != nil {
		return nil, err
	}
	items, err := r.looseItems(ctx, where, args...)
	if err != nil {
		return nil, err
	}
	payments, err := r.payments(ctx, KindLooseSale, where, args...)
	if err != nil {
		return nil, err
	}
	out := make([]LooseSale, 0, len(headers))
	for _, h := range headers {
		lines := items[h.ID]
		if lines == nil {
			lines = []LooseSaleItem{}
		}
		out = append(out, LooseSale{
			ID: h.ID, Number: h.Number, CustomerName: h.Name, CustomerPhone: h.Phone,
			Items: lines, Balance: h.Balance, Payments: nonNilPayments(payments[h.ID]), CreatedAt: h.CreatedAt.Time,
		})
	}
	return out, nil
}

// headers reads transaction headers. where filters on the header id column.
func (r *Repository) headers(ctx context.Context, kind Kind, where string, args ...any) ([]header, error) {
	s, err := schemaFor(kind)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf(`SELECT id, number, %s, COALESCE(%s, ''), total_amount, paid_amount, balance_amount, created_at FROM %s %s ORDER BY created_at DESC, id`,
		s.name, s.phone, s.header, where)
	rows, err := db.ReaderFrom(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []header
	for rows.Next() {
		var (
			h                   header
			total, paid, remain pgtype.Numeric
		)
		if err := rows.Scan(&h.ID, &h.Number, &h.Name, &h.Phone, &total, &paid, &remain, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Balance = Balance{TotalAmount: db.Decimal(total), PaidAmount: db.Decimal(paid), BalanceAmount: db.Decimal(remain)}
		out = append(out, h)
	}
	return out, rows.Err()
}

// childFilter rewrites a header filter on id into one on the child foreign key.
func childFilter(where, fk string) string {
	if where == "" {
		return ""
	}
	return fmt.Sprintf("WHERE %s = $1", fk)
}

func (r *Repository) lineItems(ctx context.Context, kind Kind, where string, args ...any) (map[uuid.UUID][]LineItem, error) {
	s, err := schemaFor(kind)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf(`SELECT %s, id, product_id, product_name, weight_per_bag, quantity, weight, unit_price, amount FROM %s %s ORDER BY %s, line_no`,
		s.fk, s.items, childFilter(where, s.fk), s.fk)
	rows, err := db.ReaderFrom(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]LineItem)
	for rows.Next() {
		var (
			parent                    uuid.UUID
			item                      LineItem
			weight, unitPrice, amount pgtype.Numeric
		)
		if err := rows.Scan(&parent, &item.ID, &item.ProductID, &item.ProductName, &item.WeightPerBag, &item.Quantity, &weight, &unitPrice, &amount); err != nil {
			return nil, err
		}
		item.Weight, item.UnitPrice, item.Amount = db.Decimal(weight), db.Decimal(unitPrice), db.Decimal(amount)
		out[parent] = append(out[parent], item)
	}
	return out, rows.Err()
}

func (r *Repository) looseItems(ctx context.Context, where string, args ...any) (map[uuid.UUID][]LooseSaleItem, error) {
	sql := fmt.Sprintf(`SELECT loose_sale_id, id, loose_stock_id, product_id, product_name, quantity_kg, price_per_kg, amount FROM loose_sale_items %s ORDER BY loose_sale_id, line_no`,
		childFilter(where, "loose_sale_id"))
	rows, err := db.ReaderFrom(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]LooseSaleItem)
	for rows.Next() {
		var (
			parent            uuid.UUID
			item              LooseSaleItem
			kg, price, amount pgtype.Numeric
		)
		if err := rows.Scan(&parent, &item.ID, &item.LooseStockID, &item.ProductID, &item.ProductName, &kg, &price, &amount); err != nil {
			return nil, err
		}
		item.QuantityKg, item.PricePerKg, item.Amount = db.Decimal(kg), db.Decimal(price), db.Decimal(amount)
		out[parent] = append(out[parent], item)
	}
	return out, rows.Err()
}

func (r *Repository) payments(ctx context.Context, kind Kind, where string, args ...any) (map[uuid.UUID][]Payment, error) {
	s, err := schemaFor(kind)
	if err != nil {
		return nil, err
	}
	filter := childFilter(where, s.fk)
	if filter == "" {
		filter = fmt.Sprintf("WHERE %s IS NOT NULL", s.fk)
	}
	sql := fmt.Sprintf(`SELECT id, %s, amount, paid_on, COALESCE(note, ''), created_at FROM payments %s ORDER BY created_at, id`, s.fk, filter)
	rows, err := db.ReaderFrom(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]Payment)
	for rows.Next() {
		var (
			p      Payment
			amount pgtype.Numeric
		)
		if err := rows.Scan(&p.ID, &p.TransactionID, &amount, &p.Date, &p.Note, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Kind = kind
		p.Amount = db.Decimal(amount)
		out[p.TransactionID] = append(out[p.TransactionID], p)
	}
	return out, rows.Err()
}

func nonNilItems(items []LineItem) []LineItem {
	if items == nil {
		return []LineItem{}
	}
	return items
}

func nonNilPayments(payments []Payment) []Payment {
	if payments == nil {
		return []Payment{}
	}
	return payments
}
