package shared

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a lock could not be taken before the context ended.
var ErrLockTimeout = errors.New("lock: timed out waiting for lock")

// ProductLockKey builds redis keys for per-product critical sections.
func ProductLockKey(productID uuid.UUID) string {
	return fmt.Sprintf("riceledger:product:%s:lock", productID)
}

// LooseStockLockKey builds redis keys for per-loose-stock critical sections.
func LooseStockLockKey(looseStockID uuid.UUID) string {
	return fmt.Sprintf("riceledger:loose:%s:lock", looseStockID)
}

// TransactionLockKey guards payments applied to one purchase, sale or loose sale.
func TransactionLockKey(kind string, id uuid.UUID) string {
	return fmt.Sprintf("riceledger:%s:%s:lock", kind, id)
}

// Locker serialises work on a set of keys. Keys are taken in sorted order.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

func normaliseKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok || k == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LocalLocker keeps one mutex per key inside the process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLocker constructs an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

// Acquire blocks until every key is held.
func (l *LocalLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normaliseKeys(keys)
	held := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			unlockAll(held)
			return nil, err
		}
		m := l.mutexFor(key)
		m.Lock()
		held = append(held, m)
	}
	return func() { unlockAll(held) }, nil
}

func (l *LocalLocker) mutexFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

func unlockAll(held []*sync.Mutex) {
	for i := len(held) - 1; i >= 0; i-- {
		held[i].Unlock()
	}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker takes SET NX PX locks so several API replicas share one critical section.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker constructs a RedisLocker. ttl bounds how long a crashed holder blocks others.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

// Acquire takes every key or none of them.
func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normaliseKeys(keys)
	token := uuid.NewString()
	held := make([]string, 0, len(keys))
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = releaseScript.Run(releaseCtx, l.client, []string{held[i]}, token).Err()
		}
	}
	for _, key := range keys {
		if err := l.acquireOne(ctx, key, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (l *RedisLocker) acquireOne(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s", ErrLockTimeout, key)
			}
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ticker.C:
		}
	}
}
