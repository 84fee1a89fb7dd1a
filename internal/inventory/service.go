package inventory

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riceledger/riceledger/internal/shared"
)

// TxRepository is the transactional view used by the service.
type TxRepository interface {
	StockTx
	InsertProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	GetLooseStock(ctx context.Context, id uuid.UUID) (LooseStock, error)
	ListLooseStock(ctx context.Context) ([]LooseStock, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	DefaultOwner string
	Now          func() time.Time
}

// Service manages products and loose stock conversion.
type Service struct {
	repo     RepositoryPort
	engine   *Engine
	audit    shared.AuditPort
	locker   shared.Locker
	notifier LowStockNotifier
	metrics  shared.OperationRecorder
	logger   *slog.Logger
	validate *validator.Validate
	owner    string
	now      func() time.Time
}

// Deps bundles collaborators of Service. Only Repo is required.
type Deps struct {
	Repo     RepositoryPort
	Audit    shared.AuditPort
	Locker   shared.Locker
	Notifier LowStockNotifier
	Metrics  shared.OperationRecorder
	Logger   *slog.Logger
}

// NewService builds Service.
func NewService(deps Deps, cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	owner := cfg.DefaultOwner
	if owner == "" {
		owner = DefaultOwner
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
		engine:   NewEngine(now),
		audit:    deps.Audit,
		locker:   locker,
		notifier: deps.Notifier,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "inventory")),
		validate: shared.NewValidator(),
		owner:    owner,
		now:      now,
	}
}

// CreateProduct registers a product with an empty stock.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (product Product, err error) {
	defer func() { s.metrics.ObserveOperation("create_product", shared.OutcomeOf(err)) }()
	input.Name = strings.TrimSpace(input.Name)
	if err := shared.ValidateStruct(s.validate, input); err != nil {
		return Product{}, err
	}
	now := s.now()
	product = Product{
		ID:            uuid.New(),
		Name:          input.Name,
		WeightPerBag:  input.WeightPerBag,
		Quantity:      0,
		Stock:         decimal.Zero,
		LowStockAlert: input.LowStockAlert,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertProduct(ctx, product)
	}); err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, shared.AuditProductCreate, "product", product.ID, map[string]any{
		"name":           product.Name,
		"weight_per_bag": product.WeightPerBag,
	})
	return product, nil
}

// UpdateProduct changes name, bag weight or alert level. Changing the bag weight
// recomputes stock for the bags on hand.
func (s *Service) UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (product Product, err error) {
	defer func() { s.metrics.ObserveOperation("update_product", shared.OutcomeOf(err)) }()
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		if trimmed == "" {
			return Product{}, shared.Validation("name", "is required")
		}
		input.Name = &trimmed
	}
	if err := shared.ValidateStruct(s.validate, input); err != nil {
		return Product{}, err
	}
	release, err := s.locker.Acquire(ctx, shared.ProductLockKey(id))
	if err != nil {
		return Product{}, err
	}
	defer release()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if input.Name != nil {
			current.Name = *input.Name
		}
		if input.LowStockAlert != nil {
			current.LowStockAlert = *input.LowStockAlert
		}
		if input.WeightPerBag != nil {
			current.WeightPerBag = *input.WeightPerBag
		}
		product = ApplyBagDelta(current, 0, s.now())
		return tx.SaveProduct(ctx, product)
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, shared.AuditProductUpdate, "product", product.ID, map[string]any{
		"name":            product.Name,
		"weight_per_bag":  product.WeightPerBag,
		"low_stock_alert": product.LowStockAlert,
	})
	return product, nil
}

// DeleteProduct removes a product. Historical line items keep their snapshots.
func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) (err error) {
	defer func() { s.metrics.ObserveOperation("delete_product", shared.OutcomeOf(err)) }()
	release, err := s.locker.Acquire(ctx, shared.ProductLockKey(id))
	if err != nil {
		return err
	}
	defer release()
	var removed Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		removed = p
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, shared.AuditProductDelete, "product", id, map[string]any{
		"name":     removed.Name,
		"quantity": removed.Quantity,
	})
	return nil
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns all products ordered by name.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	sortProducts(products)
	return products, nil
}

// ListLowStock returns products at or below their alert level.
func (s *Service) ListLowStock(ctx context.Context) ([]Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]Product, 0)
	for _, p := range products {
		if p.IsLowStock() {
			low = append(low, p)
		}
	}
	return low, nil
}

// GetLooseStock returns one loose stock entry.
func (s *Service) GetLooseStock(ctx context.Context, id uuid.UUID) (LooseStock, error) {
	return s.repo.GetLooseStock(ctx, id)
}

// ListLooseStock returns every loose stock entry ordered by product name.
func (s *Service) ListLooseStock(ctx context.Context) ([]LooseStock, error) {
	entries, err := s.repo.ListLooseStock(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ProductName != entries[j].ProductName {
			return entries[i].ProductName < entries[j].ProductName
		}
		if entries[i].Owner != entries[j].Owner {
			return entries[i].Owner < entries[j].Owner
		}
		return entries[i].WeightPerBag < entries[j].WeightPerBag
	})
	return entries, nil
}

// ConvertToLoose breaks bags into the product's loose pool.
func (s *Service) ConvertToLoose(ctx context.Context, input ConvertInput) (loose LooseStock, err error) {
	defer func() { s.metrics.ObserveOperation("convert_to_loose", shared.OutcomeOf(err)) }()
	if err := shared.ValidateStruct(s.validate, input); err != nil {
		return LooseStock{}, err
	}
	owner := strings.TrimSpace(input.Owner)
	if owner == "" {
		owner = s.owner
	}
	release, err := s.locker.Acquire(ctx, shared.ProductLockKey(input.ProductID))
	if err != nil {
		return LooseStock{}, err
	}
	defer release()

	var product Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if p.Quantity < input.Bags {
			return &shared.InsufficientStockError{
				ItemID:    p.ID.String(),
				ItemName:  p.Name,
				Unit:      "bags",
				Requested: decimal.NewFromInt(input.Bags),
				Available: decimal.NewFromInt(p.Quantity),
			}
		}
		product, loose, err = s.engine.ConvertToLoose(ctx, tx, p.ID, input.Bags, p.WeightPerBag, owner)
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrInsufficientStock) {
			s.logger.WarnContext(ctx, "convert to loose rejected", slog.String("product_id", input.ProductID.String()), slog.Any("error", err))
		}
		return LooseStock{}, err
	}
	s.logger.InfoContext(ctx, "bags converted to loose",
		slog.String("product_id", product.ID.String()),
		slog.Int64("bags", input.Bags),
		slog.String("loose_quantity", loose.LooseQuantity.String()),
	)
	s.recordAudit(ctx, shared.AuditLooseConvert, "loose_stock", loose.ID, map[string]any{
		"product_id": product.ID.String(),
		"bags":       input.Bags,
		"owner":      owner,
	})
	s.NotifyLowStock(ctx, []Product{product}, "loose_conversion")
	return loose, nil
}

// NotifyLowStock hands low products to the configured notifier. Failures are logged only.
func (s *Service) NotifyLowStock(ctx context.Context, products []Product, source string) {
	if s.notifier == nil {
		return
	}
	for _, evt := range LowStockEvents(products, source, s.now()) {
		if err := s.notifier.NotifyLowStock(ctx, evt); err != nil {
			s.logger.WarnContext(ctx, "low stock notify", slog.String("product_id", evt.ProductID.String()), slog.Any("error", err))
		}
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

func sortProducts(products []Product) {
	sort.SliceStable(products, func(i, j int) bool {
		return strings.ToLower(products[i].Name) < strings.ToLower(products[j].Name)
	})
}
