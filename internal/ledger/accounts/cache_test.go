package accounts

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestCache(t *testing.T) (*Cache, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	return cache, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestCacheFetchJSONLoadsOnce(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "accounts", "balance", "1", "10", "all", "now")
	assert.NoError(t, err)

	calls := 0
	loader := func(context.Context) (interface{}, error) {
		calls++
		return "390.00", nil
	}

	var got string
	assert.NoError(t, cache.FetchJSON(ctx, key, &got, loader))
	assert.Equal(t, "390.00", got)

	got = ""
	assert.NoError(t, cache.FetchJSON(ctx, key, &got, loader))
	assert.Equal(t, "390.00", got)
	assert.Equal(t, 1, calls)
}

func TestCacheBumpInvalidatesKeys(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "accounts", "balance", "1", "10", "all", "now")
	assert.NoError(t, err)

	assert.NoError(t, cache.Bump(ctx))

	after, err := cache.BuildKey(ctx, "accounts", "balance", "1", "10", "all", "now")
	assert.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestNilCacheFallsThroughToLoader(t *testing.T) {
	var cache *Cache
	var got string
	err := cache.FetchJSON(context.Background(), "k", &got, func(context.Context) (interface{}, error) {
		return "125.50", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "125.50", got)
}

func TestKeyBalance(t *testing.T) {
	branch := int64(4)
	asOf := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "accounts:balance:1:10:all:now", keyBalance(1, 10, BalanceQuery{}))
	assert.Equal(t, "accounts:balance:1:10:4:2025-03-31", keyBalance(1, 10, BalanceQuery{BranchID: &branch, AsOf: &asOf}))
}
