package metrics

import (
	"fmt"
	"io"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics 服务端计数器。每个实例有独立的 Set，测试之间互不干扰
type Metrics struct {
	set *vm.Set

	Registrations         *vm.Counter
	RegistrationsRejected *vm.Counter
	Logins                *vm.Counter
	LoginFailures         *vm.Counter
	MessagesPosted        *vm.Counter
	StateChanges          *vm.Counter
	StaleSwept            *vm.Counter
	SnapshotCacheHits     *vm.Counter
	SnapshotCacheMisses   *vm.Counter
	RateLimited           *vm.Counter
}

func New() *Metrics {
	s := vm.NewSet()
	return &Metrics{
		set:                   s,
		Registrations:         s.NewCounter("minichat_registrations_total"),
		RegistrationsRejected: s.NewCounter("minichat_registrations_rejected_total"),
		Logins:                s.NewCounter("minichat_logins_total"),
		LoginFailures:         s.NewCounter("minichat_login_failures_total"),
		MessagesPosted:        s.NewCounter("minichat_messages_posted_total"),
		StateChanges:          s.NewCounter("minichat_state_changes_total"),
		StaleSwept:            s.NewCounter("minichat_presence_stale_swept_total"),
		SnapshotCacheHits:     s.NewCounter("minichat_snapshot_cache_hits_total"),
		SnapshotCacheMisses:   s.NewCounter("minichat_snapshot_cache_misses_total"),
		RateLimited:           s.NewCounter("minichat_rate_limited_total"),
	}
}

// ObserveRequest 按路由和状态码记录请求耗时
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	name := fmt.Sprintf(`minichat_http_request_duration_seconds{route=%q,status="%d"}`, route, status)
	m.set.GetOrCreateHistogram(name).Update(d.Seconds())
}

func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
	vm.WriteProcessMetrics(w)
}

// Middleware 记录每个请求的耗时
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveRequest(c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// Handler 以 Prometheus 文本格式输出
func (m *Metrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.Status(200)
		m.WritePrometheus(c.Writer)
	}
}
