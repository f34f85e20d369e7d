package routers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/MiniChat/config"
	"github.com/Gopher0727/MiniChat/internal/handlers"
	"github.com/Gopher0727/MiniChat/internal/metrics"
	"github.com/Gopher0727/MiniChat/internal/middlewares"
	logger "github.com/Gopher0727/MiniChat/middleware/log"
	pkgmw "github.com/Gopher0727/MiniChat/pkg/middlewares"
	"github.com/Gopher0727/MiniChat/utils/ratelimit"
)

// Deps 路由需要的处理器和中间件依赖
type Deps struct {
	Config  *config.Config
	Legacy  *handlers.LegacyHandler
	API     *handlers.APIHandler
	Session middlewares.SessionParser
	Limiter *ratelimit.WindowLimiter // nil 表示不限流
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// SetupRoutes 设置所有路由
func SetupRoutes(r *gin.Engine, d *Deps) {
	r.Use(logger.GinMiddleware(d.Logger))
	r.Use(d.Metrics.Middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", logger.TraceIDHeader}
	corsConfig.ExposeHeaders = []string{"Authorization", logger.TraceIDHeader}
	r.Use(cors.New(corsConfig))

	// 健康检查和指标不受并发限制
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"Status": "OK",
		})
	})
	r.GET("/metrics", d.Metrics.Handler())

	limited := r.Group("/")
	limited.Use(pkgmw.MaxConcurrencyMiddleware(d.Config.RateLimit.MaxConcurrency))

	RegisterLegacyRoutes(limited, d)
	RegisterAPIRoutes(limited, d)
}

func (d *Deps) limit(class ratelimit.Class) gin.HandlerFunc {
	rule := ratelimit.RuleFor(class, &d.Config.RateLimit)
	return pkgmw.RateLimitMiddleware(d.Limiter, class, rule, d.Metrics, d.Logger.Logger)
}

// RegisterLegacyRoutes 旧客户端使用的接口，路径和响应结构保持不变
func RegisterLegacyRoutes(g *gin.RouterGroup, d *Deps) {
	required := d.Config.Server.RequireSession

	g.POST("/register", d.limit(ratelimit.ClassRegister), d.Legacy.Register)
	g.GET("/login", d.limit(ratelimit.ClassLogin), d.Legacy.Login)
	g.POST("/login", d.limit(ratelimit.ClassLogin), d.Legacy.Login) // 无法在 GET 中携带请求体的客户端使用
	g.GET("/", d.limit(ratelimit.ClassAPI), middlewares.SoftSessionMiddleware(d.Session), d.Legacy.Index)
	g.POST("/send_message", d.limit(ratelimit.ClassMessage), middlewares.SessionMiddleware(d.Session, required), d.Legacy.SendMessage)
	g.POST("/change_state", d.limit(ratelimit.ClassAPI), middlewares.SessionMiddleware(d.Session, required), d.Legacy.ChangeState)
}

// RegisterAPIRoutes 结构化接口
func RegisterAPIRoutes(g *gin.RouterGroup, d *Deps) {
	api := g.Group("/api/v1")
	api.Use(d.limit(ratelimit.ClassAPI))
	{
		api.GET("/snapshot", middlewares.SoftSessionMiddleware(d.Session), d.API.Snapshot)
		api.POST("/heartbeat", middlewares.SessionMiddleware(d.Session, true), d.API.Heartbeat)
		api.POST("/token/refresh", d.API.RefreshToken)
	}
}
