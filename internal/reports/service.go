package reports

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/ledger"
)

// LedgerSource lists the three ledgers, newest first.
type LedgerSource interface {
	ListPurchases(ctx context.Context) ([]ledger.Purchase, error)
	ListSales(ctx context.Context) ([]ledger.Sale, error)
	ListLooseSales(ctx context.Context) ([]ledger.LooseSale, error)
}

// StockSource lists products and loose pools.
type StockSource interface {
	ListProducts(ctx context.Context) ([]inventory.Product, error)
	ListLooseStock(ctx context.Context) ([]inventory.LooseStock, error)
}

// Snapshotter pins the reads of one bundle build to a single committed state.
// The ledger source is checked for it.
type Snapshotter interface {
	Snapshot(ctx context.Context, fn func(context.Context) error) error
	ParallelReads() bool
}

// Service builds report bundles on demand.
type Service struct {
	ledger LedgerSource
	stock  StockSource
	logger *slog.Logger
	now    func() time.Time
	builds singleflight.Group
}

// NewService constructs the reporting service.
func NewService(ledgerSrc LedgerSource, stock StockSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger: ledgerSrc,
		stock:  stock,
		logger: logger.With(slog.String("component", "reports")),
		now:    time.Now,
	}
}

type snapshot struct {
	products   []inventory.Product
	loose      []inventory.LooseStock
	purchases  []ledger.Purchase
	sales      []ledger.Sale
	looseSales []ledger.LooseSale
}

// Bundle returns every report. Concurrent callers share one build.
func (s *Service) Bundle(ctx context.Context) (Bundle, error) {
	ch := s.builds.DoChan("bundle", func() (interface{}, error) {
		return s.build(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return Bundle{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Bundle{}, res.Err
		}
		return res.Val.(Bundle), nil
	}
}

func (s *Service) build(ctx context.Context) (Bundle, error) {
	start := s.now()
	snap, err := s.load(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "report load failed", slog.Any("error", err))
		return Bundle{}, err
	}
	bundle := Bundle{
		Billers:        BillerReports(snap.purchases),
		Customers:      CustomerReports(snap.sales),
		LooseCustomers: LooseCustomerReports(snap.looseSales),
		Products:       ProductReports(snap.products, snap.purchases, snap.sales, snap.looseSales),
		LooseStock:     LooseStockReport(snap.loose),
		Summary:        Summarize(snap.products, snap.loose, snap.purchases, snap.sales, snap.looseSales),
		GeneratedAt:    s.now(),
	}
	s.logger.DebugContext(ctx, "report bundle built",
		slog.Int("purchases", len(snap.purchases)),
		slog.Int("sales", len(snap.sales)),
		slog.Int("loose_sales", len(snap.looseSales)),
		slog.Duration("took", bundle.GeneratedAt.Sub(start)),
	)
	return bundle, nil
}

func (s *Service) load(ctx context.Context) (snapshot, error) {
	snap, ok := s.ledger.(Snapshotter)
	if !ok {
		return s.read(ctx, true)
	}
	var out snapshot
	err := snap.Snapshot(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.read(ctx, snap.ParallelReads())
		return err
	})
	return out, err
}

func (s *Service) read(ctx context.Context, parallel bool) (snapshot, error) {
	var snap snapshot
	g, ctx := errgroup.WithContext(ctx)
	if !parallel {
		g.SetLimit(1)
	}
	g.Go(func() error {
		products, err := s.stock.ListProducts(ctx)
		snap.products = products
		return err
	})
	g.Go(func() error {
		loose, err := s.stock.ListLooseStock(ctx)
		snap.loose = loose
		return err
	})
	g.Go(func() error {
		purchases, err := s.ledger.ListPurchases(ctx)
		snap.purchases = purchases
		return err
	})
	g.Go(func() error {
		sales, err := s.ledger.ListSales(ctx)
		snap.sales = sales
		return err
	})
	g.Go(func() error {
		looseSales, err := s.ledger.ListLooseSales(ctx)
		snap.looseSales = looseSales
		return err
	})
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}
