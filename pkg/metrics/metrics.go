package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "salepromo"

// Metrics 业务与 HTTP 指标。nil *Metrics 上的方法均为空操作
type Metrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
	Publishes *prometheus.CounterVec
	Finalize  *prometheus.CounterVec
	Emails    *prometheus.CounterVec
}

// New 创建并注册指标；reg 为 nil 时注册到默认 registry
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Draft publish attempts by path and result.",
		}, []string{"path", "result"}),
		Finalize: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_total",
			Help:      "Payment notifications by finalization outcome.",
		}, []string{"outcome"}),
		Emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Confirmation emails by status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.Publishes, m.Finalize, m.Emails)
	return m
}

func (m *Metrics) ObserveRequest(handler, status string, ms float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(handler, status).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(ms)
}

func (m *Metrics) Publish(path, result string) {
	if m == nil {
		return
	}
	m.Publishes.WithLabelValues(path, result).Inc()
}

func (m *Metrics) Finalized(outcome string) {
	if m == nil {
		return
	}
	m.Finalize.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Email(status string) {
	if m == nil {
		return
	}
	m.Emails.WithLabelValues(status).Inc()
}

// CacheStatsFunc 返回缓存命中、未命中与错误计数
type CacheStatsFunc func() (hits, misses, errs int64)

// RegisterCacheStats 以 CounterFunc 暴露已处理事件缓存的计数；reg 为 nil 时用默认 registry
func RegisterCacheStats(reg prometheus.Registerer, stats CacheStatsFunc) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string, pick func(h, m, e int64) int64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processed_cache",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(pick(stats()))
		})
	}
	for _, c := range []prometheus.Collector{
		counter("hits_total", "Processed-event cache hits.", func(h, _, _ int64) int64 { return h }),
		counter("misses_total", "Processed-event cache misses.", func(_, m, _ int64) int64 { return m }),
		counter("errors_total", "Processed-event cache redis errors.", func(_, _, e int64) int64 { return e }),
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func Handler() http.Handler {
	return promhttp.Handler()
}
