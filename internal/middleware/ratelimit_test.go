package middleware

import (
	"context"
	"testing"
	"time"

	"socialgraph/internal/auth"
	"socialgraph/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCheckRateLimit(t *testing.T) {
	t.Parallel()
	mr, rdb := newRedis(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := CheckRateLimit(ctx, rdb, "createPost", "ip:1.2.3.4", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := CheckRateLimit(ctx, rdb, "createPost", "ip:1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Separate resources and callers have separate budgets.
	allowed, err = CheckRateLimit(ctx, rdb, "addComment", "ip:1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	mr.FastForward(2 * time.Minute)
	allowed, err = CheckRateLimit(ctx, rdb, "createPost", "ip:1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckRateLimit_NilRedis(t *testing.T) {
	t.Parallel()
	allowed, err := CheckRateLimit(context.Background(), nil, "test", "1", 1, time.Minute)
	assert.Error(t, err)
	assert.False(t, allowed)
}

func TestMutationLimiter(t *testing.T) {
	t.Parallel()
	_, rdb := newRedis(t)
	limiter := NewMutationLimiter(rdb, 1, time.Minute)

	alice := auth.WithIdentity(context.Background(), auth.Identity{UserID: "1"})
	bob := auth.WithIdentity(context.Background(), auth.Identity{UserID: "2"})

	require.NoError(t, limiter.Allow(alice, "createPost"))
	err := limiter.Allow(alice, "createPost")
	assert.True(t, models.HasCode(err, models.CodeRateLimited))
	assert.NoError(t, limiter.Allow(bob, "createPost"))
}

func TestMutationLimiter_FailsOpen(t *testing.T) {
	t.Parallel()

	t.Run("no redis", func(t *testing.T) {
		t.Parallel()
		limiter := NewMutationLimiter(nil, 1, time.Minute)
		for i := 0; i < 3; i++ {
			assert.NoError(t, limiter.Allow(context.Background(), "createPost"))
		}
	})

	t.Run("redis unavailable", func(t *testing.T) {
		t.Parallel()
		mr, err := miniredis.Run()
		require.NoError(t, err)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer func() { _ = rdb.Close() }()
		mr.Close()

		limiter := NewMutationLimiter(rdb, 1, time.Minute)
		assert.NoError(t, limiter.Allow(context.Background(), "createPost"))
		assert.NoError(t, limiter.Allow(context.Background(), "createPost"))
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		_, rdb := newRedis(t)
		limiter := NewMutationLimiter(rdb, 0, time.Minute)
		assert.NoError(t, limiter.Allow(context.Background(), "createPost"))
		assert.NoError(t, limiter.Allow(context.Background(), "createPost"))
	})
}

func TestCallerKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "anonymous", CallerKey(context.Background()))

	ipCtx := context.WithValue(context.Background(), ClientIPKey, "10.0.0.1")
	assert.Equal(t, "ip:10.0.0.1", CallerKey(ipCtx))

	userCtx := auth.WithIdentity(ipCtx, auth.Identity{UserID: "7"})
	assert.Equal(t, "user:7", CallerKey(userCtx))
}
