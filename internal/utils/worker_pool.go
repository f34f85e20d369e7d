package utils

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrPoolStopped 协程池已停止
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool 通用协程池，用于事件发布等不应阻塞请求的后台任务
type WorkerPool struct {
	jobs      chan func()
	workerNum int
	wg        sync.WaitGroup
	quit      chan struct{}
	stopOnce  sync.Once
	mu        sync.RWMutex
	stopped   bool
	logger    *zap.Logger
}

// NewWorkerPool 创建一个新的协程池
func NewWorkerPool(workerNum, queueSize int, logger *zap.Logger) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		jobs:      make(chan func(), queueSize),
		workerNum: workerNum,
		quit:      make(chan struct{}),
		logger:    logger,
	}
}

// Start 启动协程池
func (p *WorkerPool) Start() {
	for i := 0; i < p.workerNum; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for {
				select {
				case job := <-p.jobs:
					p.run(workerID, job)
				case <-p.quit:
					// 退出前把队列里剩余的任务做完
					for {
						select {
						case job := <-p.jobs:
							p.run(workerID, job)
						default:
							return
						}
					}
				}
			}
		}(i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.workerNum))
}

// 单个任务 panic 不能让 worker 挂掉
func (p *WorkerPool) run(workerID int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panic", zap.Int("worker", workerID), zap.Any("panic", r))
		}
	}()
	job()
}

// Submit 提交任务。队列已满时阻塞直到有空位
func (p *WorkerPool) Submit(job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- job:
		return nil
	case <-p.quit:
		return ErrPoolStopped
	}
}

// Stop 停止协程池并等待已入队的任务执行完
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		// 先拒绝新任务，再通知 worker 退出，保证已接受的任务都会执行
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.quit)
		p.wg.Wait()
	})
}
