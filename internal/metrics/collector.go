// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 专家调用指标
	expertCallsTotal   *prometheus.CounterVec
	expertCallDuration *prometheus.HistogramVec

	// 咨询指标
	consultationsTotal    *prometheus.CounterVec
	consultationDuration  prometheus.Histogram
	consultationPanelSize prometheus.Histogram
	consensusScore        prometheus.Histogram

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 反馈指标
	feedbackUpdatesTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 专家调用指标
	c.expertCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expert_calls_total",
			Help:      "Total number of expert model calls",
		},
		[]string{"expert", "domain", "status"}, // status: success, error, timeout
	)

	c.expertCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "expert_call_duration_seconds",
			Help:      "Expert model call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
		},
		[]string{"expert", "domain"},
	)

	// 咨询指标
	c.consultationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consultations_total",
			Help:      "Total number of consultations",
		},
		[]string{"source"}, // source: dispatch, cache
	)

	c.consultationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "consultation_duration_seconds",
			Help:      "End-to-end consultation duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180, 300},
		},
	)

	c.consultationPanelSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "consultation_panel_size",
			Help:      "Number of experts dispatched per consultation",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 19},
		},
	)

	c.consensusScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "consultation_consensus_score",
			Help:      "Consensus score distribution across consultations",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 反馈指标
	c.feedbackUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_updates_total",
			Help:      "Total number of feedback writes",
		},
		[]string{"kind"}, // kind: log_query, rate_synthesis, rate_expert, log_action, add_notes
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordExpertCall 记录一次专家模型调用
func (c *Collector) RecordExpertCall(expert, domain, status string, duration time.Duration) {
	c.expertCallsTotal.WithLabelValues(expert, domain, status).Inc()
	c.expertCallDuration.WithLabelValues(expert, domain).Observe(duration.Seconds())
}

// RecordConsultation 记录一次完整咨询。consensus 为负表示本次未做综合，
// 不记入共识直方图。
func (c *Collector) RecordConsultation(source string, panelSize int, consensus float64, duration time.Duration) {
	c.consultationsTotal.WithLabelValues(source).Inc()
	c.consultationDuration.Observe(duration.Seconds())
	c.consultationPanelSize.Observe(float64(panelSize))
	if consensus >= 0 {
		c.consensusScore.Observe(consensus)
	}
}

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordFeedbackUpdate 记录反馈写入
func (c *Collector) RecordFeedbackUpdate(kind string) {
	c.feedbackUpdatesTotal.WithLabelValues(kind).Inc()
}

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
