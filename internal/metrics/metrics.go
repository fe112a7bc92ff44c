package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wingo"

// Metrics 预测服务的Prometheus指标，使用独立registry
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	OutcomesTotal    *prometheus.CounterVec
	Confidence       prometheus.Histogram
	AgreementRatio   prometheus.Histogram
	AlgorithmVotes   *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	WinRate          prometheus.Gauge
	WinStreak        prometheus.Gauge
	WebsocketClients prometheus.Gauge
	RecorderErrors   *prometheus.CounterVec
}

// New 创建并注册全部指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Prediction cycles by result",
			},
			[]string{"status"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "End-to-end prediction cycle latency",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
		OutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outcomes_total",
				Help:      "Resolved predictions by outcome",
			},
			[]string{"status"},
		),
		Confidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prediction_confidence",
				Help:      "Ensemble confidence of issued predictions",
				Buckets:   prometheus.LinearBuckets(0, 10, 10),
			},
		),
		AgreementRatio: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prediction_agreement_ratio",
				Help:      "Share of algorithms agreeing with the final prediction",
				Buckets:   prometheus.LinearBuckets(0, 10, 10),
			},
		),
		AlgorithmVotes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "algorithm_votes_total",
				Help:      "Votes cast per method tag and category",
			},
			[]string{"method", "prediction"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_fetch_duration_seconds",
				Help:      "Draw history fetch latency",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 11),
			},
			[]string{"status"},
		),
		WinRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "win_rate_percent",
				Help:      "Cumulative win rate since process start",
			},
		),
		WinStreak: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "win_streak",
				Help:      "Current consecutive wins",
			},
		),
		WebsocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Connected websocket clients",
			},
		),
		RecorderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recorder_errors_total",
				Help:      "Audit log write failures by operation",
			},
			[]string{"op"},
		),
	}

	m.registry.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.OutcomesTotal,
		m.Confidence,
		m.AgreementRatio,
		m.AlgorithmVotes,
		m.FetchDuration,
		m.WinRate,
		m.WinStreak,
		m.WebsocketClients,
		m.RecorderErrors,
	)

	return m
}

// Registry 返回指标registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCycle 记录一次预测轮次
func (m *Metrics) RecordCycle(status string, durationSec float64) {
	m.CyclesTotal.WithLabelValues(status).Inc()
	if durationSec > 0 {
		m.CycleDuration.Observe(durationSec)
	}
}

// RecordPrediction 记录发出的预测
func (m *Metrics) RecordPrediction(confidence float64, agreementRatio int) {
	m.Confidence.Observe(confidence)
	m.AgreementRatio.Observe(float64(agreementRatio))
}

// RecordVote 记录单个算法投票
func (m *Metrics) RecordVote(method, prediction string) {
	m.AlgorithmVotes.WithLabelValues(method, prediction).Inc()
}

// RecordOutcome 记录结算结果并刷新胜率
func (m *Metrics) RecordOutcome(status string, winRate float64, streak int) {
	m.OutcomesTotal.WithLabelValues(status).Inc()
	m.WinRate.Set(winRate)
	m.WinStreak.Set(float64(streak))
}

// RecordFetch 记录上游请求耗时
func (m *Metrics) RecordFetch(status string, durationSec float64) {
	m.FetchDuration.WithLabelValues(status).Observe(durationSec)
}

// RecordRecorderError 记录审计写入失败
func (m *Metrics) RecordRecorderError(op string) {
	m.RecorderErrors.WithLabelValues(op).Inc()
}
