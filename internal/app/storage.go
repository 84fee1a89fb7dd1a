package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/ledger"
	"github.com/riceledger/riceledger/internal/platform/db"
	"github.com/riceledger/riceledger/internal/shared"
)

// IdempotencyBackend claims request keys and prunes old ones.
type IdempotencyBackend interface {
	shared.IdempotencyGuard
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Storage bundles the repositories selected by STORE_DRIVER.
type Storage struct {
	Inventory   inventory.RepositoryPort
	Ledger      ledger.RepositoryPort
	Audit       shared.AuditPort
	Idempotency IdempotencyBackend
	// Pool is nil for the memory store.
	Pool *pgxpool.Pool
}

// OpenStorage connects the configured store, migrating Postgres when asked to.
func OpenStorage(ctx context.Context, cfg *Config, logger *slog.Logger) (*Storage, error) {
	if cfg.StoreDriver == StoreMemory {
		logger.Warn("using in-memory store, data is lost on exit")
		store := ledger.NewMemoryStore()
		return &Storage{
			Inventory:   store.Inventory(),
			Ledger:      store,
			Audit:       shared.NewSlogAuditor(logger),
			Idempotency: shared.NewMemoryIdempotency(),
		}, nil
	}

	if cfg.MigrateOnStart {
		if err := db.NewMigrator(cfg.PGDSN, logger).Up(); err != nil {
			return nil, err
		}
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("app: connect postgres: %w", err)
	}
	return &Storage{
		Inventory:   inventory.NewRepository(pool, cfg.TxMaxRetries),
		Ledger:      ledger.NewRepository(pool, cfg.TxMaxRetries),
		Audit:       shared.NewAuditLogger(pool),
		Idempotency: shared.NewIdempotencyStore(pool),
		Pool:        pool,
	}, nil
}

// Ping reports whether the backing store is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if s.Pool == nil {
		return nil
	}
	return s.Pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}
