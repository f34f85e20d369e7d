package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Gopher0727/MiniChat/config"
)

// 快照按代缓存：写操作只递增代号，旧代的缓存自然过期。
// 这样读到旧数据的并发请求回填的也只是旧代的键，不会覆盖新数据
const snapshotGenKey = "minichat:snapshot:gen"

// SnapshotKey 某一代快照的缓存键
func SnapshotKey(gen int64) string {
	return fmt.Sprintf("minichat:snapshot:%d", gen)
}

// Client 对 go-redis 的薄封装。未启用 Redis 时服务层持有 nil *Client
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient 按配置连接 Redis；redis.enabled 为 false 时返回 (nil, nil)
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return Wrap(rdb, cfg.SnapshotTTL), nil
}

// Wrap 包装已有连接，测试中配合 miniredis 使用
func Wrap(rdb *redis.Client, snapshotTTL time.Duration) *Client {
	return &Client{client: rdb, ttl: snapshotTTL}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) GetClient() *redis.Client {
	return c.client
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetJSON 读取并反序列化；键不存在时返回 false, nil
func (c *Client) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// 损坏的缓存当作未命中处理
		_ = c.client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// SetJSON 序列化后写入，ttl 为 0 时使用快照默认过期时间
func (c *Client) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

// SnapshotGeneration 当前快照代号，从未失效过时为 0
func (c *Client) SnapshotGeneration(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, snapshotGenKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot generation: %w", err)
	}
	return gen, nil
}

// InvalidateSnapshot 使当前快照失效
func (c *Client) InvalidateSnapshot(ctx context.Context) error {
	if err := c.client.Incr(ctx, snapshotGenKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate snapshot: %w", err)
	}
	return nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	return c.client.Exists(ctx, keys...).Result()
}
