package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hetulpatel/cexarb/internal/runtime"
)

func TestMemoryGuardClaimRelease(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard(time.Minute)

	ok, err := g.Claim(ctx, "arb-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = g.Claim(ctx, "arb-1")
	assert.False(t, ok, "second claim must fail while held")

	require.NoError(t, g.Release(ctx, "arb-1"))
	ok, _ = g.Claim(ctx, "arb-1")
	assert.True(t, ok)
}

func TestMemoryGuardExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewMemoryGuard(time.Minute)
	g.now = func() time.Time { return now }

	ok, _ := g.Claim(ctx, "k")
	require.True(t, ok)
	now = now.Add(59 * time.Second)
	ok, _ = g.Claim(ctx, "k")
	assert.False(t, ok)
	now = now.Add(time.Second)
	ok, _ = g.Claim(ctx, "k")
	assert.True(t, ok)
}

// redisClient connects to REDIS_ADDR or skips the test.
func redisClient(t *testing.T) *redisTestClient {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client, err := NewClient(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), 15)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return &redisTestClient{Client: client, prefix: "cexarb_test_" + time.Now().Format("150405.000000")}
}

func TestRedisGuardAndFlags(t *testing.T) {
	rc := redisClient(t)
	ctx := context.Background()

	g, err := NewRedisGuard(rc.Client, time.Minute, rc.prefix)
	require.NoError(t, err)
	ok, err := g.Claim(ctx, "arb-1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = g.Claim(ctx, "arb-1")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, g.Release(ctx, "arb-1"))

	store, err := NewRedisFlagStore(rc.Client, rc.prefix, runtime.DefaultFlags())
	require.NoError(t, err)
	flags, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, runtime.DefaultFlags(), flags)

	flags.GlobalStop = true
	flags.Filters.TopK = 4
	require.NoError(t, store.Save(ctx, flags))
	t.Cleanup(func() { rc.Del(ctx, rc.prefix+":flags") })

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.GlobalStop)
	assert.Equal(t, 4, loaded.Filters.TopK)
}

type redisTestClient struct {
	*redis.Client
	prefix string
}
