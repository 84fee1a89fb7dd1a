package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/shared"
)

// TxRepository exposes transactional operations used by the ledger. It shares the
// transaction with the stock engine so records and stock commit together.
type TxRepository interface {
	inventory.StockTx
	InsertPurchase(ctx context.Context, p Purchase) error
	InsertSale(ctx context.Context, s Sale) error
	InsertLooseSale(ctx context.Context, s LooseSale) error
	InsertPayment(ctx context.Context, p Payment) error
	GetBalanceForUpdate(ctx context.Context, kind Kind, id uuid.UUID) (Balance, error)
	UpdateBalance(ctx context.Context, kind Kind, id uuid.UUID, b Balance) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchase(ctx context.Context, id uuid.UUID) (Purchase, error)
	GetSale(ctx context.Context, id uuid.UUID) (Sale, error)
	GetLooseSale(ctx context.Context, id uuid.UUID) (LooseSale, error)
	ListPurchases(ctx context.Context) ([]Purchase, error)
	ListSales(ctx context.Context) ([]Sale, error)
	ListLooseSales(ctx context.Context) ([]LooseSale, error)
}

// Deps bundles collaborators of Service. Only Repo is required.
type Deps struct {
	Repo     RepositoryPort
	Audit    shared.AuditPort
	Locker   shared.Locker
	Notifier inventory.LowStockNotifier
	Metrics  shared.OperationRecorder
	Logger   *slog.Logger
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Now func() time.Time
}

// Service records purchases, sales, loose sales and their payments.
type Service struct {
	repo     RepositoryPort
	engine   *inventory.Engine
	audit    shared.AuditPort
	locker   shared.Locker
	notifier inventory.LowStockNotifier
	metrics  shared.OperationRecorder
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds Service.
func NewService(deps Deps, cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	locker := deps.Locker
	if locker == nil {
		locker = shared.NewLocalLocker()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = shared.NopRecorder
	}
	return &Service{
		repo:     deps.Repo,
		engine:   inventory.NewEngine(now),
		audit:    deps.Audit,
		locker:   locker,
		notifier: deps.Notifier,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "ledger")),
		validate: shared.NewValidator(),
		now:      now,
	}
}

// CreatePurchase records a purchase and adds its bags to stock.
func (s *Service) CreatePurchase(ctx context.Context, input CreatePurchaseInput) (purchase Purchase, err error) {
	defer func() { s.observe(ctx, "create_purchase", err) }()
	input.BillerName = strings.TrimSpace(input.BillerName)
	input.BillerPhone = strings.TrimSpace(input.BillerPhone)
	if err := shared.ValidateStruct(s.validate, input); err != nil {
		return Purchase{}, err
	}
	if err := checkBagItems(input.Items); err != nil {
		return Purchase{}, err
	}
	paid, err := checkPaid(input.PaidAmount)
	if err != nil {
		return Purchase{}, err
	}

	release, err := s.locker.Acquire(ctx, productLockKeys(input.Items)...)
	if err != nil {
		return Purchase{}, err
	}
	defer release()

	id := uuid.New()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := s.now()
		products, err := lockProducts(ctx, tx, input.Items)
		if err != nil {
			return err
		}
		items, total := buildLineItems(input.Items, products)
		if paid.GreaterThan(total) {
			return &shared.OverpaymentError{TransactionID: id.String(), Amount: paid, Balance: total}
		}
		purchase = Purchase{
			ID:          id,
			Number:      documentNumber(KindPurchase, id, now),
			BillerName:  input.BillerName,
			BillerPhone: input.BillerPhone,
			Items:       items,
			Balance:     NewBalance(total, paid),
			Payments:    []Payment{},
			CreatedAt:   now,
		}
		if err := tx.InsertPurchase(ctx, purchase); err != nil {
			return err
		}
		seed, err := s.seedPayment(ctx, tx, KindPurchase, id, paid, now)
		if err != nil {
			return err
		}
		purchase.Payments = seed
		_, err = s.engine.ApplyPurchase(ctx, tx, bagDeltas(items))
		return err
	})
	if err != nil {
		return Purchase{}, err
	}
	s.logger.InfoContext(ctx, "purchase recorded",
		slog.String("purchase_id", purchase.ID.String()),
		slog.String("total", purchase.TotalAmount.StringFixed(2)),
		slog.Int("items", len(purchase.Items)),
	)
	s.recordAudit(ctx, shared.AuditPurchaseCreate, "purchase", purchase.ID, map[string]any{
		"biller": purchase.BillerName,
		"total":  purchase.TotalAmount.StringFixed(2),
		"paid":   purchase.PaidAmount.StringFixed(2),
	})
	return purchase, nil
}

// CreateSale records a sale after checking every product has enough bags.
// Nothing is written when any line cannot be covered.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (sale Sale, err error) {
	defer func() { s.observe(ctx, "create_sale", err) }()
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.CustomerPhone = strings.TrimSpace(input.CustomerPhone)
	if err := shared.ValidateStruct(s.validate, input); err != nil {
		return Sale{}, err
	}
	if err := checkBagItems(input.Items); err != nil {
		return Sale{}, err
	}
	paid, err := checkPaid(input.PaidAmount)
	if err != nil {
		return Sale{}, err
	}

	release, err := s.locker.Acquire(ctx, productLockKeys(input.Items)...)
	if err != nil {
		return Sale{}, err
	}
	defer release()

	id := uuid.New()
	var touched []inventory.Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := s.now()
		products, err := lockProducts(ctx, tx, input.Items)
		if err != nil {
			return err
		}
		items, total := buildLineItems(input.Items, products)
		if err := checkBagsAvailable(items, products); err != nil {
			return err
		}
		if paid.GreaterThan(total) {
			return &shared.OverpaymentError{TransactionID: id.String(), Amount: paid, Balance: total}
		}
		sale = Sale{
			ID:            id,
			Number:        documentNumber(KindSale, id, now),
			CustomerName:  input.CustomerName,
			CustomerPhone: input.CustomerPhone,
			Items:         items,
			Balance:       NewBalance(total, paid),
			Payments:      []Payment{},
			CreatedAt:     now,
		}
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		seed, err := s.seedPayment(ctx, tx, KindSale, id, paid, now)
		if err != nil {
			return err
		}
		sale.Payments = seed
		touched, err = s.engine.ApplySale(ctx, tx, bagDeltas(items))
		return err
	})
	if err != nil {
		return Sale{}, err
	}
	s.logger.InfoContext(ctx, "sale recorded",
		slog.String("sale_id", sale.ID.String()),
		slog.String("total", sale.TotalAmount.StringFixed(2)),
		slog.Int("items", len(sale.Items)),
	)
	s.recordAudit(ctx, shared.AuditSaleCreate, "sale", sale.ID, map[string]any{
		"customer": sale.CustomerName,
		"total":    sale.TotalAmount.StringFixed(2),
		"paid":     sale.PaidAmount.StringFixed(2),
	})
	s.notifyLowStock(ctx, touched, "sale")
	return sale, nil
}

// CreateLooseSale records a sale of loose kilograms after checking every pool.
func (s *Service) CreateLooseSale(ctx context.Context, input CreateLooseSaleInput) (sale LooseSale, err error) {
	defer func() { s.observe(ctx, "create_loose_sale", err) }()
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.CustomerPhone = strings.TrimSpace(input.CustomerPhone)
	if err := shared.ValidateStruct(s.validate, input); err != nil {
		return LooseSale{}, err
	}
	if err := checkLooseItems(input.Items); err != nil {
		return LooseSale{}, err
	}
	paid, err := checkPaid(input.PaidAmount)
	if err != nil {
		return LooseSale{}, err
	}

	keys := make([]string, 0, len(input.Items))
	for _, item := range input.Items {
		keys = append(keys, shared.LooseStockLockKey(item.LooseStockID))
	}
	release, err := s.locker.Acquire(ctx, keys...)
	if err != nil {
		return LooseSale{}, err
	}
	defer release()

	id := uuid.New()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := s.now()
		pools, err := lockLoosePools(ctx, tx, input.Items)
		if err != nil {
			return err
		}
		items, total := buildLooseItems(input.Items, pools)
		if err := checkKgAvailable(items, pools); err != nil {
			return err
		}
		if paid.GreaterThan(total) {
			return &shared.OverpaymentError{TransactionID: id.String(), Amount: paid, Balance: total}
		}
		sale = LooseSale{
			ID:            id,
			Number:        documentNumber(KindLooseSale, id, now),
			CustomerName:  input.CustomerName,
			CustomerPhone: input.CustomerPhone,
			Items:         items,
			Balance:       NewBalance(total, paid),
			Payments:      []Payment{},
			CreatedAt:     now,
		}
		if err := tx.InsertLooseSale(ctx, sale); err != nil {
			return err
		}
		seed, err := s.seedPayment(ctx, tx, KindLooseSale, id, paid, now)
		if err != nil {
			return err
		}
		sale.Payments = seed
		deltas := make([]inventory.LooseDelta, 0, len(items))
		for _, item := range items {
			deltas = append(deltas, inventory.LooseDelta{LooseStockID: item.LooseStockID, Kg: item.QuantityKg})
		}
		_, err = s.engine.ApplyLooseSale(ctx, tx, deltas)
		return err
	})
	if err != nil {
		return LooseSale{}, err
	}
	s.logger.InfoContext(ctx, "loose sale recorded",
		slog.String("loose_sale_id", sale.ID.String()),
		slog.String("total", sale.TotalAmount.StringFixed(2)),
	)
	s.recordAudit(ctx, shared.AuditLooseSaleCreate, "loose_sale", sale.ID, map[string]any{
		"customer": sale.CustomerName,
		"total":    sale.TotalAmount.StringFixed(2),
		"paid":     sale.PaidAmount.StringFixed(2),
	})
	return sale, nil
}

// GetPurchase returns one purchase with items and payments.
func (s *Service) GetPurchase(ctx context.Context, id uuid.UUID) (Purchase, error) {
	return s.repo.GetPurchase(ctx, id)
}

// GetSale returns one sale with items and payments.
func (s *Service) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// GetLooseSale returns one loose sale with items and payments.
func (s *Service) GetLooseSale(ctx context.Context, id uuid.UUID) (LooseSale, error) {
	return s.repo.GetLooseSale(ctx, id)
}

// ListPurchases returns purchases newest first.
func (s *Service) ListPurchases(ctx context.Context) ([]Purchase, error) {
	return s.repo.ListPurchases(ctx)
}

// ListSales returns sales newest first.
func (s *Service) ListSales(ctx context.Context) ([]Sale, error) {
	return s.repo.ListSales(ctx)
}

// ListLooseSales returns loose sales newest first.
func (s *Service) ListLooseSales(ctx context.Context) ([]LooseSale, error) {
	return s.repo.ListLooseSales(ctx)
}

// Snapshotter is implemented by repositories that can pin reads to one
// committed state.
type Snapshotter interface {
	Snapshot(ctx context.Context, fn func(context.Context) error) error
	ParallelReads() bool
}

// Snapshot runs fn so that every read made through its context, ledger and
// stock alike, sees the same committed state. Without repository support fn
// runs against live reads.
func (s *Service) Snapshot(ctx context.Context, fn func(context.Context) error) error {
	if snap, ok := s.repo.(Snapshotter); ok {
		return snap.Snapshot(ctx, fn)
	}
	return fn(ctx)
}

// ParallelReads reports whether reads inside Snapshot may run concurrently.
func (s *Service) ParallelReads() bool {
	if snap, ok := s.repo.(Snapshotter); ok {
		return snap.ParallelReads()
	}
	return true
}

func (s *Service) seedPayment(ctx context.Context, tx TxRepository, kind Kind, id uuid.UUID, paid decimal.Decimal, now time.Time) ([]Payment, error) {
	if !paid.IsPositive() {
		return []Payment{}, nil
	}
	payment := Payment{
		ID:            uuid.New(),
		Kind:          kind,
		TransactionID: id,
		Amount:        paid,
		Date:          now,
		CreatedAt:     now,
	}
	if err := tx.InsertPayment(ctx, payment); err != nil {
		return nil, err
	}
	return []Payment{payment}, nil
}

func (s *Service) notifyLowStock(ctx context.Context, products []inventory.Product, source string) {
	if s.notifier == nil {
		return
	}
	for _, evt := range inventory.LowStockEvents(products, source, s.now()) {
		if err := s.notifier.NotifyLowStock(ctx, evt); err != nil {
			s.logger.WarnContext(ctx, "low stock notify", slog.String("product_id", evt.ProductID.String()), slog.Any("error", err))
		}
	}
}

func (s *Service) observe(ctx context.Context, op string, err error) {
	outcome := shared.OutcomeOf(err)
	s.metrics.ObserveOperation(op, outcome)
	if outcome == shared.OutcomeRejected {
		s.logger.WarnContext(ctx, "ledger operation rejected", slog.String("op", op), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func documentNumber(kind Kind, id uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s", kind.prefix(), at.Format("20060102"), strings.ToUpper(id.String()[:8]))
}

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func kilograms(d decimal.Decimal) decimal.Decimal {
	return d.Round(3)
}

func checkPaid(paid decimal.Decimal) (decimal.Decimal, error) {
	paid = money(paid)
	if paid.IsNegative() {
		return decimal.Zero, shared.Validation("paid_amount", "must not be negative")
	}
	return paid, nil
}

func checkBagItems(items []ItemInput) error {
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case item.WeightKg != nil && item.Quantity > 0:
			return shared.Validation(field, "must give quantity or weight_kg, not both")
		case item.WeightKg != nil && !item.WeightKg.IsPositive():
			return shared.Validation(field+".weight_kg", "must be greater than 0")
		case item.WeightKg == nil && item.Quantity <= 0:
			return shared.Validation(field+".quantity", "must be greater than 0")
		}
		if !money(item.UnitPrice).IsPositive() {
			return shared.Validation(field+".unit_price", "must be greater than 0")
		}
	}
	return nil
}

func checkLooseItems(items []LooseItemInput) error {
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		if !kilograms(item.QuantityKg).IsPositive() {
			return shared.Validation(field+".quantity_kg", "must be greater than 0")
		}
		if !money(item.PricePerKg).IsPositive() {
			return shared.Validation(field+".price_per_kg", "must be greater than 0")
		}
	}
	return nil
}

func productLockKeys(items []ItemInput) []string {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, shared.ProductLockKey(item.ProductID))
	}
	return keys
}

// lockProducts loads every referenced product, locking rows in id order.
func lockProducts(ctx context.Context, tx TxRepository, items []ItemInput) (map[uuid.UUID]inventory.Product, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	sortIDs(ids)
	products := make(map[uuid.UUID]inventory.Product, len(ids))
	for _, id := range ids {
		if _, ok := products[id]; ok {
			continue
		}
		p, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		products[id] = p
	}
	return products, nil
}

func lockLoosePools(ctx context.Context, tx TxRepository, items []LooseItemInput) (map[uuid.UUID]inventory.LooseStock, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.LooseStockID)
	}
	sortIDs(ids)
	pools := make(map[uuid.UUID]inventory.LooseStock, len(ids))
	for _, id := range ids {
		if _, ok := pools[id]; ok {
			continue
		}
		l, err := tx.GetLooseStockForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		pools[id] = l
	}
	return pools, nil
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

// buildLineItems snapshots product name and bag weight into each line.
func buildLineItems(inputs []ItemInput, products map[uuid.UUID]inventory.Product) ([]LineItem, decimal.Decimal) {
	items := make([]LineItem, 0, len(inputs))
	total := decimal.Zero
	for _, in := range inputs {
		p := products[in.ProductID]
		qty := in.Quantity
		if in.WeightKg != nil {
			qty = inventory.BagsForWeight(*in.WeightKg, p.WeightPerBag)
		}
		price := money(in.UnitPrice)
		amount := money(price.Mul(decimal.NewFromInt(qty)))
		items = append(items, LineItem{
			ID:           uuid.New(),
			ProductID:    p.ID,
			ProductName:  p.Name,
			WeightPerBag: p.WeightPerBag,
			Quantity:     qty,
			Weight:       inventory.StockFor(qty, p.WeightPerBag),
			UnitPrice:    price,
			Amount:       amount,
		})
		total = total.Add(amount)
	}
	return items, total
}

func buildLooseItems(inputs []LooseItemInput, pools map[uuid.UUID]inventory.LooseStock) ([]LooseSaleItem, decimal.Decimal) {
	items := make([]LooseSaleItem, 0, len(inputs))
	total := decimal.Zero
	for _, in := range inputs {
		pool := pools[in.LooseStockID]
		kg := kilograms(in.QuantityKg)
		price := money(in.PricePerKg)
		amount := money(kg.Mul(price))
		items = append(items, LooseSaleItem{
			ID:           uuid.New(),
			LooseStockID: pool.ID,
			ProductID:    pool.ProductID,
			ProductName:  pool.ProductName,
			QuantityKg:   kg,
			PricePerKg:   price,
			Amount:       amount,
		})
		total = total.Add(amount)
	}
	return items, total
}

// checkBagsAvailable compares the summed request per product with bags on hand.
func checkBagsAvailable(items []LineItem, products map[uuid.UUID]inventory.Product) error {
	for _, d := range inventory.MergeBagDeltas(bagDeltas(items)) {
		p := products[d.ProductID]
		if p.Quantity < d.Bags {
			return &shared.InsufficientStockError{
				ItemID:    p.ID.String(),
				ItemName:  p.Name,
				Unit:      "bags",
				Requested: decimal.NewFromInt(d.Bags),
				Available: decimal.NewFromInt(p.Quantity),
			}
		}
	}
	return nil
}

func checkKgAvailable(items []LooseSaleItem, pools map[uuid.UUID]inventory.LooseStock) error {
	deltas := make([]inventory.LooseDelta, 0, len(items))
	for _, item := range items {
		deltas = append(deltas, inventory.LooseDelta{LooseStockID: item.LooseStockID, Kg: item.QuantityKg})
	}
	for _, d := range inventory.MergeLooseDeltas(deltas) {
		pool := pools[d.LooseStockID]
		if pool.LooseQuantity.LessThan(d.Kg) {
			return &shared.InsufficientStockError{
				ItemID:    pool.ID.String(),
				ItemName:  pool.ProductName,
				Unit:      "kg",
				Requested: d.Kg,
				Available: pool.LooseQuantity,
			}
		}
	}
	return nil
}

func bagDeltas(items []LineItem) []inventory.BagDelta {
	deltas := make([]inventory.BagDelta, 0, len(items))
	for _, item := range items {
		deltas = append(deltas, inventory.BagDelta{ProductID: item.ProductID, Bags: item.Quantity})
	}
	return deltas
}
