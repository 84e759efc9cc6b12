// Package metrics はPrometheus形式のメトリクス収集を提供する。
//
// 各サービスはRegistryを1つ持ち、HTTPリクエストの件数と処理時間を記録する。
// /metrics エンドポイントでPrometheusから収集できる。
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry はサービス単位のメトリクスレジストリ。
type Registry struct {
	// service はサービス名。全メトリクスのラベルに付与する。
	service string
	// reg はPrometheusのレジストリ。
	reg *prometheus.Registry
	// requests はHTTPリクエスト件数。
	requests *prometheus.CounterVec
	// duration はHTTPリクエストの処理時間。
	duration *prometheus.HistogramVec
}

// New はサービス用のメトリクスレジストリを生成する。
func New(service string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		service: service,
		reg:     reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "shiftcare",
			Name:        "http_requests_total",
			Help:        "HTTPリクエストの件数",
			ConstLabels: prometheus.Labels{"service": service},
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "shiftcare",
			Name:        "http_request_duration_seconds",
			Help:        "HTTPリクエストの処理時間（秒）",
			ConstLabels: prometheus.Labels{"service": service},
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(r.requests, r.duration)
	return r
}

// Counter はサービス固有のカウンターを登録して返す。
func (r *Registry) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "shiftcare",
		Subsystem:   r.service,
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"service": r.service},
	}, labels)
	r.reg.MustRegister(c)
	return c
}

// Gatherer は収集用のインターフェースを返す。
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Middleware はリクエスト件数と処理時間を記録するGinミドルウェアを返す。
// ルートはパスパラメータを含まないテンプレート（例: /api/v1/shifts/:id）で集計する。
func (r *Registry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		r.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler は /metrics 用のGinハンドラを返す。
func (r *Registry) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
}
