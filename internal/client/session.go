package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	leaveTimeout = 2 * time.Second
	// 检查 token 是否需要续期的间隔
	renewInterval = time.Minute
)

// Session 一次已登录的聊天会话
type Session struct {
	API    *API
	Me     Identity
	Cache  *Cache
	Poller *Poller
	logger *zap.Logger

	renewEvery time.Duration
	renewMu    sync.Mutex
	stopRenew  context.CancelFunc
	renewWG    sync.WaitGroup
}

func NewSession(api *API, me Identity, interval time.Duration, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := NewCache(me.Name)
	return &Session{
		API:    api,
		Me:     me,
		Cache:  cache,
		Poller: NewPoller(api, cache, interval, logger),
		logger: logger,

		renewEvery: renewInterval,
	}
}

// Send 发送消息后立即刷新一次；空白消息直接忽略
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := s.API.SendMessage(ctx, s.Me.Name, text); err != nil {
		return err
	}
	if err := s.Poller.Refresh(ctx); err != nil {
		s.logger.Debug("refresh after send failed", zap.Error(err))
	}
	return nil
}

// Leave 停止轮询并尽力通知服务器下线，失败不影响退出
func (s *Session) Leave() {
	s.Poller.Stop()
	s.renewMu.Lock()
	if s.stopRenew != nil {
		s.stopRenew()
	}
	s.renewMu.Unlock()
	s.renewWG.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := s.API.GoOffline(ctx, s.Me.ID); err != nil {
		s.logger.Debug("go offline failed", zap.Error(err))
	}
}

// Start 启动轮询与 token 续期，返回首次加载的错误
func (s *Session) Start(ctx context.Context) error {
	err := s.Poller.Start(ctx)

	renewCtx, cancel := context.WithCancel(ctx)
	s.renewMu.Lock()
	s.stopRenew = cancel
	s.renewWG.Add(1)
	s.renewMu.Unlock()
	go s.renewLoop(renewCtx)
	return err
}

// renewLoop 在 token 过半生命周期后向服务器换取新 token
func (s *Session) renewLoop(ctx context.Context) {
	defer s.renewWG.Done()

	ticker := time.NewTicker(s.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.API.TokenNeedsRenewal(now) {
				continue
			}
			if err := s.API.RefreshToken(ctx); err != nil && ctx.Err() == nil {
				s.logger.Debug("token renewal failed", zap.Error(err))
			}
		}
	}
}

func (s *Session) Updates() <-chan Update {
	return s.Poller.Updates()
}

func (s *Session) Refresh(ctx context.Context) error {
	return s.Poller.Refresh(ctx)
}

func (s *Session) Name() string {
	return s.Me.Name
}

func (s *Session) Users(filter string) []User {
	return s.Cache.Filter(filter)
}

func (s *Session) Messages() []Message {
	return s.Cache.Messages()
}
