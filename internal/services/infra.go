package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/MiniChat/internal/metrics"
	"github.com/Gopher0727/MiniChat/internal/pkg/redis"
	"github.com/Gopher0727/MiniChat/pkg/mq"
	"github.com/Gopher0727/MiniChat/utils/snowflake"
)

// Infra 各服务共享的基础设施，除 Logger 外都可以为空
type Infra struct {
	Cache   *redis.Client // nil 表示不使用快照缓存
	Events  mq.Publisher
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
	// IDs 事件 ID 生成器，为空时使用节点 0
	IDs *snowflake.Generator
}

func (i *Infra) withDefaults() *Infra {
	out := *i
	if out.Events == nil {
		out.Events = mq.NopPublisher{}
	}
	if out.Metrics == nil {
		out.Metrics = metrics.New()
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.IDs == nil {
		out.IDs, _ = snowflake.NewGenerator(0)
	}
	if out.Now == nil {
		out.Now = func() time.Time { return time.Now().UTC() }
	}
	return &out
}

// invalidateSnapshot 写操作之后调用；缓存失败只记录日志
func (i *Infra) invalidateSnapshot(ctx context.Context) {
	if i.Cache == nil {
		return
	}
	if err := i.Cache.InvalidateSnapshot(ctx); err != nil {
		i.Logger.Warn("snapshot cache invalidation failed", zap.Error(err))
	}
}

func (i *Infra) publish(ctx context.Context, event mq.Event) {
	event.ID = i.IDs.Next()
	if err := i.Events.Publish(ctx, event); err != nil {
		i.Logger.Warn("publish event failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

// Session 通过 Bearer token 认证的调用方
type Session struct {
	UserID    uint
	ProfileID uint
	UserName  string
}
