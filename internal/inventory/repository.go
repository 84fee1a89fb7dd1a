package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riceledger/riceledger/internal/platform/db"
	"github.com/riceledger/riceledger/internal/shared"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists products and loose stock in PostgreSQL.
type Repository struct {
	pool     *pgxpool.Pool
	attempts int
}

// NewRepository constructs Repository. attempts bounds serialization retries.
func NewRepository(pool *pgxpool.Pool, attempts int) *Repository {
	return &Repository{pool: pool, attempts: attempts}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithRetry(ctx, r.pool, r.attempts, func(tx pgx.Tx) error {
		return fn(ctx, NewPgTx(tx))
	})
}

// GetProduct loads one product.
func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(db.ReaderFrom(ctx, r.pool).QueryRow(ctx, selectProduct+` WHERE id = $1`, id), id)
}

// ListProducts returns all products.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := db.ReaderFrom(ctx, r.pool).Query(ctx, selectProduct+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows, uuid.Nil)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetLooseStock loads one loose stock entry.
func (r *Repository) GetLooseStock(ctx context.Context, id uuid.UUID) (LooseStock, error) {
	return scanLoose(db.ReaderFrom(ctx, r.pool).QueryRow(ctx, selectLoose+` WHERE id = $1`, id), id)
}

// ListLooseStock returns every loose stock entry.
func (r *Repository) ListLooseStock(ctx context.Context) ([]LooseStock, error) {
	rows, err := db.ReaderFrom(ctx, r.pool).Query(ctx, selectLoose+` ORDER BY product_name, owner, weight_per_bag`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]LooseStock, 0)
	for rows.Next() {
		l, err := scanLoose(rows, uuid.Nil)
		if err != nil {
			return nil, err
		}
		entries = append(entries, l)
	}
	return entries, rows.Err()
}

// PgTx implements TxRepository on an open transaction. Other repositories embed it
// so stock changes commit together with their own records.
type PgTx struct {
	q Querier
}

// NewPgTx wraps an open transaction.
func NewPgTx(q Querier) *PgTx {
	return &PgTx{q: q}
}

const selectProduct = `SELECT id, name, weight_per_bag, quantity, stock, low_stock_alert, created_at, updated_at FROM products`

const selectLoose = `SELECT id, owner, product_id, product_name, weight_per_bag, bags_converted, loose_quantity, created_at, updated_at FROM loose_stock`

// GetProductForUpdate locks and loads a product row.
func (t *PgTx) GetProductForUpdate(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(t.q.QueryRow(ctx, selectProduct+` WHERE id = $1 FOR UPDATE`, id), id)
}

// InsertProduct stores a new product.
func (t *PgTx) InsertProduct(ctx context.Context, p Product) error {
	_, err := t.q.Exec(ctx, `INSERT INTO products (id, name, weight_per_bag, quantity, stock, low_stock_alert, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Name, p.WeightPerBag, p.Quantity, db.Numeric(p.Stock), p.LowStockAlert, p.CreatedAt, p.UpdatedAt)
	return err
}

// SaveProduct writes every mutable product column.
func (t *PgTx) SaveProduct(ctx context.Context, p Product) error {
	tag, err := t.q.Exec(ctx, `UPDATE products SET name = $2, weight_per_bag = $3, quantity = $4, stock = $5, low_stock_alert = $6, updated_at = $7 WHERE id = $1`,
		p.ID, p.Name, p.WeightPerBag, p.Quantity, db.Numeric(p.Stock), p.LowStockAlert, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("product", p.ID)
	}
	return nil
}

// DeleteProduct removes a product row.
func (t *PgTx) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("product", id)
	}
	return nil
}

// GetLooseStockForUpdate locks and loads a loose stock row.
func (t *PgTx) GetLooseStockForUpdate(ctx context.Context, id uuid.UUID) (LooseStock, error) {
	return scanLoose(t.q.QueryRow(ctx, selectLoose+` WHERE id = $1 FOR UPDATE`, id), id)
}

// FindLooseStockForUpdate locks the entry for product, owner and bag weight when it exists.
func (t *PgTx) FindLooseStockForUpdate(ctx context.Context, productID uuid.UUID, owner string, weightPerBag int) (LooseStock, bool, error) {
	l, err := scanLoose(t.q.QueryRow(ctx, selectLoose+` WHERE product_id = $1 AND owner = $2 AND weight_per_bag = $3 FOR UPDATE`, productID, owner, weightPerBag), productID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return LooseStock{}, false, nil
		}
		return LooseStock{}, false, err
	}
	return l, true, nil
}

// InsertLooseStock stores a new loose stock entry.
func (t *PgTx) InsertLooseStock(ctx context.Context, l LooseStock) error {
	_, err := t.q.Exec(ctx, `INSERT INTO loose_stock (id, owner, product_id, product_name, weight_per_bag, bags_converted, loose_quantity, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.Owner, l.ProductID, l.ProductName, l.WeightPerBag, l.BagsConverted, db.Numeric(l.LooseQuantity), l.CreatedAt, l.UpdatedAt)
	return err
}

// SaveLooseStock writes the counters of an entry.
func (t *PgTx) SaveLooseStock(ctx context.Context, l LooseStock) error {
	tag, err := t.q.Exec(ctx, `UPDATE loose_stock SET bags_converted = $2, loose_quantity = $3, updated_at = $4 WHERE id = $1`,
		l.ID, l.BagsConverted, db.Numeric(l.LooseQuantity), l.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("loose stock", l.ID)
	}
	return nil
}

func scanProduct(row pgx.Row, id uuid.UUID) (Product, error) {
	var (
		p     Product
		stock pgtype.Numeric
	)
	if err := row.Scan(&p.ID, &p.Name, &p.WeightPerBag, &p.Quantity, &stock, &p.LowStockAlert, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.NotFound("product", id)
		}
		return Product{}, err
	}
	p.Stock = db.Decimal(stock)
	return p, nil
}

func scanLoose(row pgx.Row, id uuid.UUID) (LooseStock, error) {
	var (
		l     LooseStock
		loose pgtype.Numeric
	)
	if err := row.Scan(&l.ID, &l.Owner, &l.ProductID, &l.ProductName, &l.WeightPerBag, &l.BagsConverted, &loose, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LooseStock{}, shared.NotFound("loose stock", id)
		}
		return LooseStock{}, err
	}
	l.LooseQuantity = db.Decimal(loose)
	return l, nil
}
