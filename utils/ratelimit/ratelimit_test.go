package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/MiniChat/config"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestWindowLimiter_Allow(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewWindowLimiter(client, zap.NewNop(), false)
	ctx := context.Background()
	rule := Rule{Limit: 5, Window: time.Minute}

	for i := range rule.Limit {
		allowed, err := limiter.Allow(ctx, "login:10.0.0.1", rule)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "login:10.0.0.1", rule)
	require.NoError(t, err)
	assert.False(t, allowed)

	// 其他键不受影响
	allowed, err = limiter.Allow(ctx, "login:10.0.0.2", rule)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestWindowLimiter_AllowN(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewWindowLimiter(client, nil, false)
	ctx := context.Background()
	rule := Rule{Limit: 10, Window: time.Minute}

	for _, n := range []int{3, 5, 2} {
		allowed, err := limiter.AllowN(ctx, "k", n, rule)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := limiter.AllowN(ctx, "k", 1, rule)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestWindowLimiter_NewWindow(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewWindowLimiter(client, nil, false)
	now := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()
	rule := Rule{Limit: 1, Window: time.Minute}

	allowed, _ := limiter.Allow(ctx, "k", rule)
	assert.True(t, allowed)
	allowed, _ = limiter.Allow(ctx, "k", rule)
	assert.False(t, allowed)

	now = now.Add(time.Minute)
	allowed, err := limiter.Allow(ctx, "k", rule)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestWindowLimiter_RemainingAndReset(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewWindowLimiter(client, nil, false)
	ctx := context.Background()
	rule := Rule{Limit: 3, Window: time.Minute}

	remaining, err := limiter.Remaining(ctx, "k", rule)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	for range 4 {
		_, err := limiter.Allow(ctx, "k", rule)
		require.NoError(t, err)
	}
	remaining, err = limiter.Remaining(ctx, "k", rule)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	require.NoError(t, limiter.Reset(ctx, "k", rule))
	allowed, err := limiter.Allow(ctx, "k", rule)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestWindowLimiter_Unlimited(t *testing.T) {
	// 不限流时不访问 Redis
	limiter := NewWindowLimiter(nil, nil, false)
	allowed, err := limiter.Allow(context.Background(), "k", Rule{Limit: 0, Window: time.Minute})
	assert.NoError(t, err)
	assert.True(t, allowed)
}

func TestWindowLimiter_RedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()
	rule := Rule{Limit: 1, Window: time.Minute}

	open := NewWindowLimiter(client, nil, true)
	allowed, err := open.Allow(context.Background(), "k", rule)
	assert.NoError(t, err)
	assert.True(t, allowed)

	closed := NewWindowLimiter(client, nil, false)
	allowed, err = closed.Allow(context.Background(), "k", rule)
	assert.Error(t, err)
	assert.False(t, allowed)
}

func TestWindowLimiter_Concurrent(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewWindowLimiter(client, nil, false)
	rule := Rule{Limit: 50, Window: time.Minute}

	var allowedCount atomic.Int64
	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			for range 10 {
				ok, err := limiter.Allow(context.Background(), "shared", rule)
				if err == nil && ok {
					allowedCount.Add(1)
				}
			}
		})
	}
	wg.Wait()
	assert.Equal(t, int64(50), allowedCount.Load())
}

func TestRuleFor(t *testing.T) {
	cfg := &config.RateLimitConfig{
		RegisterPerMinute: 1,
		LoginPerMinute:    2,
		MessagePerMinute:  3,
		APIPerMinute:      4,
	}
	assert.Equal(t, Rule{1, time.Minute}, RuleFor(ClassRegister, cfg))
	assert.Equal(t, Rule{2, time.Minute}, RuleFor(ClassLogin, cfg))
	assert.Equal(t, Rule{3, time.Minute}, RuleFor(ClassMessage, cfg))
	assert.Equal(t, Rule{4, time.Minute}, RuleFor(ClassAPI, cfg))
	assert.Equal(t, Rule{4, time.Minute}, RuleFor("other", cfg))
}
