package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affiliate-network-backend/internal/domain"
)

func setupTestRedis(t *testing.T) (*ScheduleCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := &Client{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewScheduleCache(client, time.Minute), mr
}

func schedule(version int64) *domain.CommissionSchedule {
	return domain.NewCommissionSchedule(version, domain.DefaultCommissionLevels(), time.Now().UTC())
}

func TestScheduleCache_SetGet(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	_, err := c.Get(ctx)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, schedule(2)))

	got, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	require.Len(t, got.Levels, 3)
	assert.True(t, got.Levels[2].Percentage.Equal(decimal.RequireFromString("2.5")))
}

func TestScheduleCache_KeepsNewerVersion(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, schedule(5)))
	require.NoError(t, c.Set(ctx, schedule(4)))

	got, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
}

func TestScheduleCache_ConcurrentSetsKeepNewest(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		newest int64
	)
	for v := int64(1); v <= 20; v++ {
		wg.Add(1)
		go func(version int64) {
			defer wg.Done()
			if err := c.Set(ctx, schedule(version)); err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if version > newest {
				newest = version
			}
		}(v)
	}
	wg.Wait()

	require.NotZero(t, newest)
	got, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, newest, got.Version)
}

func TestScheduleCache_StaleSetAfterInvalidate(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, schedule(3)))
	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.Set(ctx, schedule(4)))
	require.NoError(t, c.Set(ctx, schedule(3)))

	assert.Equal(t, "4", mr.HGet(scheduleKey, fieldVersion))
	assert.Greater(t, mr.TTL(scheduleKey), time.Duration(0))
}

func TestScheduleCache_InvalidateAndExpiry(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, schedule(1)))
	require.NoError(t, c.Invalidate(ctx))
	_, err := c.Get(ctx)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, schedule(1)))
	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestScheduleCache_CorruptEntry(t *testing.T) {
	c, mr := setupTestRedis(t)
	mr.HSet(scheduleKey, fieldVersion, "1", fieldData, "{not json")

	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, ErrMiss)
	assert.False(t, mr.Exists(scheduleKey))
}
