package shared

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLockKeys(t *testing.T) {
	id := uuid.MustParse("6f1c1a52-1a7e-4a57-9d0c-8f2d6f9b7a10")
	require.Equal(t, "riceledger:product:6f1c1a52-1a7e-4a57-9d0c-8f2d6f9b7a10:lock", ProductLockKey(id))
	require.Equal(t, "riceledger:loose:6f1c1a52-1a7e-4a57-9d0c-8f2d6f9b7a10:lock", LooseStockLockKey(id))
	require.Equal(t, "riceledger:sale:6f1c1a52-1a7e-4a57-9d0c-8f2d6f9b7a10:lock", TransactionLockKey("sale", id))
}

func TestRedisLockerExclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRedisLocker(client, time.Minute)

	release, err := locker.Acquire(context.Background(), "b", "a", "a")
	require.NoError(t, err)
	require.True(t, mr.Exists("a"))
	require.True(t, mr.Exists("b"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "a")
	require.ErrorIs(t, err, ErrLockTimeout)

	release()
	require.False(t, mr.Exists("a"))
	require.False(t, mr.Exists("b"))

	release2, err := locker.Acquire(context.Background(), "a")
	require.NoError(t, err)
	release2()
}

func TestRedisLockerPartialAcquireRollsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRedisLocker(client, time.Minute)
	require.NoError(t, mr.Set("b", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err := locker.Acquire(ctx, "a", "b")
	require.ErrorIs(t, err, ErrLockTimeout)
	require.False(t, mr.Exists("a"))

	got, err := mr.Get("b")
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}

func TestLocalLockerSerialises(t *testing.T) {
	locker := NewLocalLocker()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "k1", "k2")
			if err != nil {
				return
			}
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			release()
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
}
