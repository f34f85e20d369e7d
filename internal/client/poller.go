package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const DefaultPollInterval = 2 * time.Second

type Fetcher interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Update 一次轮询的结果。Err 只在 Refresh 或初次加载失败时出现
type Update struct {
	Diff Diff
	Err  error
}

// Poller 周期性拉取快照并写入 Cache。
// 每次拉取都带有递增的序号，晚到的旧结果会被丢弃，缓存不会回退
type Poller struct {
	fetcher  Fetcher
	cache    *Cache
	interval time.Duration
	logger   *zap.Logger

	updates chan Update

	issued  atomic.Uint64
	applied atomic.Uint64
	applyMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewPoller(fetcher Fetcher, cache *Cache, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		fetcher:  fetcher,
		cache:    cache,
		interval: interval,
		logger:   logger,
		updates:  make(chan Update, 16),
	}
}

// Updates 缓冲通道，消费不及时的更新会被丢弃（缓存本身始终是最新的）
func (p *Poller) Updates() <-chan Update {
	return p.updates
}

func (p *Poller) Cache() *Cache {
	return p.cache
}

// Start 同步完成首次加载并返回其错误；无论成败，后台轮询都会开始
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("poller already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true
	p.mu.Unlock()

	err := p.fetch(ctx)

	p.wg.Add(1)
	go p.loop(ctx)
	return err
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 每个 tick 独立拉取，慢请求不会阻塞后续 tick
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				if err := p.fetch(ctx); err != nil && ctx.Err() == nil {
					p.logger.Debug("poll failed", zap.Error(err))
				}
			}()
		}
	}
}

// Refresh 立即拉取一次，例如发送消息之后
func (p *Poller) Refresh(ctx context.Context) error {
	err := p.fetch(ctx)
	if err != nil {
		p.emit(Update{Err: err})
	}
	return err
}

func (p *Poller) fetch(ctx context.Context) error {
	seq := p.issued.Add(1)
	snap, err := p.fetcher.Snapshot(ctx)
	if err != nil {
		return err
	}

	p.applyMu.Lock()
	if seq <= p.applied.Load() {
		p.applyMu.Unlock()
		return nil
	}
	p.applied.Store(seq)
	diff := p.cache.Apply(snap)
	p.applyMu.Unlock()

	if !diff.Empty() {
		p.emit(Update{Diff: diff})
	}
	return nil
}

func (p *Poller) emit(u Update) {
	select {
	case p.updates <- u:
	default:
		p.logger.Debug("update dropped, consumer is behind")
	}
}

// Stop 取消所有进行中的拉取并等待退出，可重复调用
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}
