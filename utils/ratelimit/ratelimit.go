package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/MiniChat/config"
)

// Class 限流的接口分类，每类有独立的计数
type Class string

const (
	ClassRegister Class = "register"
	ClassLogin    Class = "login"
	ClassMessage  Class = "message"
	ClassAPI      Class = "api"
)

// Rule 每个窗口内最多 Limit 次请求；Limit <= 0 表示不限流
type Rule struct {
	Limit  int
	Window time.Duration
}

// RuleFor 根据配置返回某类接口的规则
func RuleFor(class Class, cfg *config.RateLimitConfig) Rule {
	switch class {
	case ClassRegister:
		return Rule{Limit: cfg.RegisterPerMinute, Window: time.Minute}
	case ClassLogin:
		return Rule{Limit: cfg.LoginPerMinute, Window: time.Minute}
	case ClassMessage:
		return Rule{Limit: cfg.MessagePerMinute, Window: time.Minute}
	default:
		return Rule{Limit: cfg.APIPerMinute, Window: time.Minute}
	}
}

// WindowLimiter 基于 Redis INCR 的固定窗口计数，多实例共享同一份计数
type WindowLimiter struct {
	redisClient *redis.Client
	logger      *zap.Logger
	failOpen    bool // Redis 不可用时放行
	now         func() time.Time
}

func NewWindowLimiter(redisClient *redis.Client, logger *zap.Logger, failOpen bool) *WindowLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowLimiter{
		redisClient: redisClient,
		logger:      logger,
		failOpen:    failOpen,
		now:         time.Now,
	}
}

// Allow 消耗一次配额
func (l *WindowLimiter) Allow(ctx context.Context, key string, rule Rule) (bool, error) {
	return l.AllowN(ctx, key, 1, rule)
}

// AllowN 一次消耗 n 个配额
func (l *WindowLimiter) AllowN(ctx context.Context, key string, n int, rule Rule) (bool, error) {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return true, nil
	}

	bucketKey := l.bucketKey(key, rule.Window, l.now())

	pipe := l.redisClient.Pipeline()
	incrCmd := pipe.IncrBy(ctx, bucketKey, int64(n))
	// 多留一秒，避免窗口边界上键提前过期
	pipe.Expire(ctx, bucketKey, rule.Window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			l.logger.Warn("rate limit check failed, allowing request", zap.String("key", key), zap.Error(err))
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incrCmd.Val()
	if count > int64(rule.Limit) {
		l.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", rule.Limit),
		)
		return false, nil
	}
	return true, nil
}

// Remaining 当前窗口剩余配额
func (l *WindowLimiter) Remaining(ctx context.Context, key string, rule Rule) (int, error) {
	count, err := l.redisClient.Get(ctx, l.bucketKey(key, rule.Window, l.now())).Int()
	if errors.Is(err, redis.Nil) {
		return rule.Limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get remaining quota: %w", err)
	}
	return max(rule.Limit-count, 0), nil
}

// Reset 清空当前窗口的计数
func (l *WindowLimiter) Reset(ctx context.Context, key string, rule Rule) error {
	if err := l.redisClient.Del(ctx, l.bucketKey(key, rule.Window, l.now())).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for key %s: %w", key, err)
	}
	return nil
}

func (l *WindowLimiter) bucketKey(key string, window time.Duration, now time.Time) string {
	return fmt.Sprintf("minichat:ratelimit:%s:%d", key, now.UnixNano()/int64(window))
}
