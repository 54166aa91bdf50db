package storage

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/estrella/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisQuotaStore(t *testing.T) (*RedisQuotaStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisQuotaStore(client), mr
}

func TestRedisQuotaStore_GetMissingIsZero(t *testing.T) {
	store, mr := setupRedisQuotaStore(t)
	ctx := testContext(t)

	quota, err := store.Get(ctx, "u1", "2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, 0, quota.MessagesSent)
	assert.Equal(t, 0, quota.BonusMessages)

	// Reading must not create the record
	assert.False(t, mr.Exists(quotaKey("u1", "2026-01-01")))
}

func TestRedisQuotaStore_IncrementStopsAtAllowance(t *testing.T) {
	store, _ := setupRedisQuotaStore(t)
	ctx := testContext(t)
	day := types.Day("2026-01-01")

	for i := 1; i <= 5; i++ {
		quota, ok, err := store.IncrementSent(ctx, "u1", day, 5)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, quota.MessagesSent)
	}

	quota, ok, err := store.IncrementSent(ctx, "u1", day, 5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 5, quota.MessagesSent)
}

func TestRedisQuotaStore_BonusExtendsAllowance(t *testing.T) {
	store, _ := setupRedisQuotaStore(t)
	ctx := testContext(t)
	day := types.Day("2026-01-01")

	quota, err := store.AddBonus(ctx, "u1", day, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, quota.BonusMessages)

	accepted := 0
	for i := 0; i < 20; i++ {
		_, ok, err := store.IncrementSent(ctx, "u1", day, 5)
		require.NoError(t, err)
		if ok {
			accepted++
		}
	}
	assert.Equal(t, 15, accepted)
}

func TestRedisQuotaStore_ConcurrentSendsNeverExceedTotal(t *testing.T) {
	store, _ := setupRedisQuotaStore(t)
	ctx := testContext(t)
	day := types.Day("2026-01-01")

	const attempts = 50
	var (
		wg       sync.WaitGroup
		accepted int64
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.IncrementSent(ctx, "u1", day, 5)
			if err == nil && ok {
				atomic.AddInt64(&accepted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), accepted)
	quota, err := store.Get(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 5, quota.MessagesSent)
}

func TestRedisQuotaStore_ConcurrentBonusesAreAdditive(t *testing.T) {
	store, _ := setupRedisQuotaStore(t)
	ctx := testContext(t)
	day := types.Day("2026-01-01")

	amounts := []int{10, 10, 3, 7, 25, 1}
	var wg sync.WaitGroup
	for _, amount := range amounts {
		wg.Add(1)
		go func(a int) {
			defer wg.Done()
			_, _ = store.AddBonus(ctx, "u1", day, a)
		}(amount)
	}
	wg.Wait()

	quota, err := store.Get(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 56, quota.BonusMessages)
}

func TestRedisQuotaStore_DaysAreIsolated(t *testing.T) {
	store, _ := setupRedisQuotaStore(t)
	ctx := testContext(t)

	_, err := store.AddBonus(ctx, "u1", "2026-01-01", 10)
	require.NoError(t, err)
	_, _, err = store.IncrementSent(ctx, "u1", "2026-01-01", 5)
	require.NoError(t, err)

	quota, err := store.Get(ctx, "u1", "2026-01-02")
	require.NoError(t, err)
	assert.Equal(t, 0, quota.MessagesSent)
	assert.Equal(t, 0, quota.BonusMessages)
}

func TestRedisQuotaStore_DecrementFloorsAtZero(t *testing.T) {
	store, _ := setupRedisQuotaStore(t)
	ctx := testContext(t)
	day := types.Day("2026-01-01")

	require.NoError(t, store.DecrementSent(ctx, "u1", day))
	quota, err := store.Get(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 0, quota.MessagesSent)

	_, _, err = store.IncrementSent(ctx, "u1", day, 5)
	require.NoError(t, err)
	require.NoError(t, store.DecrementSent(ctx, "u1", day))

	quota, err = store.Get(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 0, quota.MessagesSent)
}

func TestRedisQuotaStore_UnavailableStore(t *testing.T) {
	store, mr := setupRedisQuotaStore(t)
	ctx := testContext(t)
	mr.Close()

	_, _, err := store.IncrementSent(ctx, "u1", "2026-01-01", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_UNAVAILABLE")
}
