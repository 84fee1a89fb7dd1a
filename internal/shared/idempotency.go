package shared

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/blake2b"
)

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyGuard claims client supplied request keys once per scope.
// Delete gives a key back so a failed request can be retried.
type IdempotencyGuard interface {
	Claim(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key, scope string) error
}

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Claim ensures key uniqueness per scope.
func (s *IdempotencyStore) Claim(ctx context.Context, key, scope string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if err := checkIdempotencyArgs(key, scope); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, scope, created_at) VALUES ($1, $2, $3)`, KeyDigest(key), scope, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Delete removes the key to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key, scope string) error {
	if s == nil {
		return nil
	}
	if err := checkIdempotencyArgs(key, scope); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1 AND scope=$2`, KeyDigest(key), scope)
	return err
}

// Cleanup removes entries older than retention and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, errors.New("idempotency store not initialised")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MemoryIdempotency keeps claimed keys in process memory.
type MemoryIdempotency struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryIdempotency constructs an empty guard.
func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{seen: make(map[string]time.Time), now: time.Now}
}

// Claim records key for scope or reports a conflict.
func (m *MemoryIdempotency) Claim(_ context.Context, key, scope string) error {
	if err := checkIdempotencyArgs(key, scope); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + "\x00" + KeyDigest(key)
	if _, ok := m.seen[k]; ok {
		return ErrIdempotencyConflict
	}
	m.seen[k] = m.now()
	return nil
}

// Delete forgets key for scope.
func (m *MemoryIdempotency) Delete(_ context.Context, key, scope string) error {
	if err := checkIdempotencyArgs(key, scope); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.seen, scope+"\x00"+KeyDigest(key))
	m.mu.Unlock()
	return nil
}

// Cleanup forgets keys claimed more than olderThan ago.
func (m *MemoryIdempotency) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-olderThan)
	var removed int64
	for k, at := range m.seen {
		if at.Before(cutoff) {
			delete(m.seen, k)
			removed++
		}
	}
	return removed, nil
}

// KeyDigest is the fixed-size form under which a client key is stored.
func KeyDigest(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func checkIdempotencyArgs(key, scope string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if scope == "" {
		return errors.New("idempotency scope required")
	}
	return nil
}
