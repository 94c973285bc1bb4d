package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标，注册在独立的 Registry 上
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 接收链路
	IngestTotal    *prometheus.CounterVec
	IngestDuration prometheus.Histogram

	// 读取链路
	FeedRendersTotal *prometheus.CounterVec

	// 账户
	AccountsRegistered prometheus.Counter
	AccountsDeleted    *prometheus.CounterVec

	// SMTP 连接
	SMTPConnectionsRejected *prometheus.CounterVec

	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "email2feed_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "email2feed_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		IngestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "email2feed_ingest_total",
				Help: "Inbound messages by terminal state and discard reason",
			},
			[]string{"state", "reason"},
		),

		IngestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "email2feed_ingest_duration_seconds",
				Help:    "Time spent ingesting one message",
				Buckets: prometheus.DefBuckets,
			},
		),

		FeedRendersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "email2feed_feed_renders_total",
				Help: "Feed documents served by format and cache outcome",
			},
			[]string{"format", "cache"},
		),

		AccountsRegistered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "email2feed_accounts_registered_total",
				Help: "Total number of accounts registered",
			},
		),

		AccountsDeleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "email2feed_accounts_deleted_total",
				Help: "Account deletions by outcome",
			},
			[]string{"outcome"},
		),

		SMTPConnectionsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "email2feed_smtp_connections_rejected_total",
				Help: "SMTP connections refused by the limiter",
			},
			[]string{"reason"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "email2feed_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordIngest 记录一次接收结果，reason 为空表示已存储
func (m *Metrics) RecordIngest(state, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(state, reason).Inc()
	m.IngestDuration.Observe(duration.Seconds())
}

// RecordFeedRender 记录一次订阅源输出
func (m *Metrics) RecordFeedRender(format string, cacheHit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if cacheHit {
		outcome = "hit"
	}
	m.FeedRendersTotal.WithLabelValues(format, outcome).Inc()
}

// RecordAccountRegistered 记录账户注册
func (m *Metrics) RecordAccountRegistered() {
	if m == nil {
		return
	}
	m.AccountsRegistered.Inc()
}

// RecordAccountDeleted 记录账户删除，partial 表示级联删除未全部完成
func (m *Metrics) RecordAccountDeleted(partial bool) {
	if m == nil {
		return
	}
	outcome := "complete"
	if partial {
		outcome = "partial"
	}
	m.AccountsDeleted.WithLabelValues(outcome).Inc()
}

// RecordSMTPRejected 记录被拒绝的 SMTP 连接
func (m *Metrics) RecordSMTPRejected(reason string) {
	if m == nil {
		return
	}
	m.SMTPConnectionsRejected.WithLabelValues(reason).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
