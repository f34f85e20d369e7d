package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Gopher0727/MiniChat/config"
	"github.com/Gopher0727/MiniChat/internal/handlers"
	"github.com/Gopher0727/MiniChat/internal/metrics"
	"github.com/Gopher0727/MiniChat/internal/pkg/redis"
	"github.com/Gopher0727/MiniChat/internal/repositories"
	"github.com/Gopher0727/MiniChat/internal/routers"
	"github.com/Gopher0727/MiniChat/internal/services"
	"github.com/Gopher0727/MiniChat/internal/storage"
	"github.com/Gopher0727/MiniChat/internal/utils"
	"github.com/Gopher0727/MiniChat/middleware/jwt"
	logger "github.com/Gopher0727/MiniChat/middleware/log"
	"github.com/Gopher0727/MiniChat/pkg/mq"
	"github.com/Gopher0727/MiniChat/utils/ratelimit"
	"github.com/Gopher0727/MiniChat/utils/snowflake"
)

// Server 组装好的后端：存储、服务、路由以及后台任务
type Server struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *gorm.DB
	cache    *redis.Client
	pool     *utils.WorkerPool
	events   mq.Publisher
	engine   *gin.Engine
	presence *services.PresenceService
	metrics  *metrics.Metrics
}

// Option 用于测试中替换依赖
type Option func(*options)

type options struct {
	cache     *redis.Client
	publisher mq.Publisher
}

// WithCache 使用已有的 Redis 连接，忽略 redis 配置
func WithCache(c *redis.Client) Option {
	return func(o *options) { o.cache = c }
}

// WithPublisher 使用给定的事件发布者，忽略 kafka 配置
func WithPublisher(p mq.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// New 按配置初始化所有依赖
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	gormLevel := gormlogger.Silent
	if cfg.Logging.Level == "debug" {
		gormLevel = gormlogger.Info
	}
	db, err := storage.OpenDatabase(&cfg.Database, gormLevel)
	if err != nil {
		return nil, fmt.Errorf("数据库初始化失败: %w", err)
	}

	s := &Server{cfg: cfg, log: log, db: db, metrics: metrics.New()}

	s.cache = o.cache
	if s.cache == nil {
		s.cache, err = redis.NewClient(&cfg.Redis)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("redis 初始化失败: %w", err)
		}
	}

	s.pool = utils.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, log.Logger)
	s.pool.Start()

	publisher := o.publisher
	if publisher == nil {
		publisher, err = mq.NewKafkaProducer(&cfg.Kafka, log.Logger)
		if err != nil {
			// Kafka 只用于事件外发，不可用时降级为不发布
			log.Warn("kafka producer unavailable, events disabled", zap.Error(err))
			publisher = mq.NopPublisher{}
		}
	}
	s.events = mq.NewAsyncPublisher(publisher, s.pool, log.Logger)

	ids, err := snowflake.NewGenerator(cfg.Kafka.NodeID)
	if err != nil {
		s.Close()
		return nil, err
	}

	infra := &services.Infra{
		IDs:     ids,
		Cache:   s.cache,
		Events:  s.events,
		Metrics: s.metrics,
		Logger:  log.Logger,
	}
	users := repositories.NewUserRepository(db)
	messages := repositories.NewMessageRepository(db)
	tokens := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.RefreshHours)

	auth := services.NewAuthService(users, tokens, infra)
	if err := auth.WarmUp(context.Background()); err != nil {
		s.Close()
		return nil, err
	}
	chat := services.NewChatService(users, messages, infra)
	s.presence = services.NewPresenceService(users, cfg.Presence.StaleAfter, infra)

	var limiter *ratelimit.WindowLimiter
	if s.cache != nil {
		limiter = ratelimit.NewWindowLimiter(s.cache.GetClient(), log.Logger, cfg.RateLimit.FailOpen)
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	routers.SetupRoutes(s.engine, &routers.Deps{
		Config:  cfg,
		Legacy:  handlers.NewLegacyHandler(auth, chat, s.presence, log),
		API:     handlers.NewAPIHandler(auth, chat, s.presence, log),
		Session: auth,
		Limiter: limiter,
		Metrics: s.metrics,
		Logger:  log,
	})
	return s, nil
}

// Engine 返回 gin 引擎，测试中配合 httptest 使用
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run 启动 HTTP 服务，ctx 取消后优雅退出
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.presence.StartSweeper(ctx, s.cfg.Presence.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down server")
	return srv.Shutdown(shutdownCtx)
}

// Close 释放连接并等待后台任务完成
func (s *Server) Close() {
	if s.pool != nil {
		s.pool.Stop()
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.log.Warn("close event publisher", zap.Error(err))
		}
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.db != nil {
		if err := storage.Close(s.db); err != nil {
			s.log.Warn("close database", zap.Error(err))
		}
	}
}
