package repository

import (
	"context"
	"testing"
	"time"

	"coopStore/events"
	"coopStore/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisCartRepository(t *testing.T) {
	mr, rdb := newRedis(t)
	repo, err := NewRedisCartRepository(rdb, context.Background(), RedisCartOptions{TTL: 24 * time.Hour}, zap.NewNop())
	require.NoError(t, err)
	exerciseCartRepository(t, repo)

	t.Run("carts expire", func(t *testing.T) {
		mr.FastForward(25 * time.Hour)
		_, exists, err := repo.GetCart("cart:1")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("server down", func(t *testing.T) {
		mr.Close()
		_, _, err := repo.GetCart("cart:1")
		assert.ErrorIs(t, err, models.ErrPersistenceUnavailable)
		assert.ErrorIs(t, repo.SetCart("cart:1", "{}"), models.ErrPersistenceUnavailable)
	})
}

func TestRedisCartRepositoryNeedsAConnection(t *testing.T) {
	_, err := NewRedisCartRepository(nil, context.Background(), RedisCartOptions{}, zap.NewNop())
	assert.Error(t, err)
}

func TestRedisWatcherReportsForeignWritesOnly(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()

	mineOpts := RedisCartOptions{Channel: "coopstore:storage", Origin: "tab-a"}
	theirOpts := RedisCartOptions{Channel: "coopstore:storage", Origin: "tab-b"}
	mine, err := NewRedisCartRepository(rdb, ctx, mineOpts, zap.NewNop())
	require.NoError(t, err)
	theirs, err := NewRedisCartRepository(rdb, ctx, theirOpts, zap.NewNop())
	require.NoError(t, err)

	bus := events.NewBus()
	got := &collector{}
	bus.Subscribe(events.External, got.add)

	rw, err := NewRedisWatcher(rdb, mineOpts, bus, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, rw.Start(ctx))
	defer rw.Stop()

	require.NoError(t, mine.SetCart("cart", `{"mine":true}`))
	require.NoError(t, theirs.SetCart("cart", `{"theirs":true}`))
	require.NoError(t, theirs.SetCart("marker", `{}`))

	require.Eventually(t, func() bool { return got.hasKey("marker") }, 5*time.Second, 10*time.Millisecond)

	evs := got.snapshot()
	require.Len(t, evs, 2)
	assert.Equal(t, "cart", evs[0].Key)
	assert.Equal(t, `{"theirs":true}`, evs[0].NewValue)
	assert.Equal(t, "tab-b", evs[0].Origin)
	assert.Equal(t, events.StorageEvent, evs[0].Name)
}

func TestRedisWatcherOptions(t *testing.T) {
	_, rdb := newRedis(t)
	_, err := NewRedisWatcher(rdb, RedisCartOptions{}, events.NewBus(), zap.NewNop())
	assert.Error(t, err)
	_, err = NewRedisWatcher(nil, RedisCartOptions{Channel: "x"}, events.NewBus(), zap.NewNop())
	assert.Error(t, err)
}
