package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/MiniChat/internal/repositories"
	"github.com/Gopher0727/MiniChat/pkg/mq"
)

// PresenceService 在线状态。上线只发生在登录时，下线来自客户端通知或超时清理
type PresenceService struct {
	users      *repositories.UserRepository
	staleAfter time.Duration
	infra      *Infra
}

// NewPresenceService staleAfter 为 0 时不做超时下线
func NewPresenceService(users *repositories.UserRepository, staleAfter time.Duration, infra *Infra) *PresenceService {
	return &PresenceService{
		users:      users,
		staleAfter: staleAfter,
		infra:      infra.withDefaults(),
	}
}

// GoOffline 将资料置为离线。ID 不存在时什么也不做；
// session 非空时只允许修改会话自己的资料
func (s *PresenceService) GoOffline(ctx context.Context, profileID uint, session *Session) error {
	if session != nil && session.ProfileID != profileID {
		return ErrProfileMismatch
	}

	now := s.infra.Now()
	n, err := s.users.SetState(ctx, profileID, false, now)
	if err != nil {
		return fmt.Errorf("set offline: %w", err)
	}
	if n == 0 {
		return nil
	}

	offline := false
	s.infra.invalidateSnapshot(ctx)
	s.infra.publish(ctx, mq.Event{
		Type:   mq.EventPresenceChanged,
		UserID: profileID,
		Online: &offline,
		At:     now,
	})
	s.infra.Metrics.StateChanges.Inc()
	return nil
}

// Heartbeat 刷新最近活跃时间，不改变在线状态
func (s *PresenceService) Heartbeat(ctx context.Context, profileID uint) error {
	if err := s.users.TouchLastSeen(ctx, profileID, s.infra.Now()); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// Sweep 将超过 staleAfter 没有活跃的在线用户置为离线，返回处理的数量
func (s *PresenceService) Sweep(ctx context.Context) (int64, error) {
	if s.staleAfter <= 0 {
		return 0, nil
	}
	n, err := s.users.MarkStaleOffline(ctx, s.infra.Now().Add(-s.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("sweep stale presence: %w", err)
	}
	if n > 0 {
		s.infra.invalidateSnapshot(ctx)
		s.infra.Metrics.StaleSwept.Add(int(n))
		s.infra.Logger.Info("stale users marked offline", zap.Int64("count", n))
	}
	return n, nil
}

// StartSweeper 后台定期清理，ctx 取消后退出。未启用超时下线时直接返回
func (s *PresenceService) StartSweeper(ctx context.Context, interval time.Duration) {
	if s.staleAfter <= 0 {
		return
	}
	if interval <= 0 {
		interval = s.staleAfter / 2
	}
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.infra.Logger.Warn("presence sweep failed", zap.Error(err))
				}
			}
		}
	}()
	s.infra.Logger.Info("presence sweeper started",
		zap.Duration("stale_after", s.staleAfter),
		zap.Duration("interval", interval),
	)
}
