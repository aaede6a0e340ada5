// Package metrics 汇总 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the analysis engine.
type Metrics struct {
	RunsTotal    *prometheus.CounterVec // labels: mode=analyze|backtest, status=ok|error
	RunDuration  prometheus.Histogram
	StageErrors  *prometheus.CounterVec // labels: stage
	BarsTotal    prometheus.Counter
	SignalsTotal *prometheus.CounterVec // labels: kind
	TradesTotal  prometheus.Counter

	BatchInFlight prometheus.Gauge

	HTTPRequests *prometheus.CounterVec // labels: route, code
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics 创建指标并注册到 reg；reg 为 nil 时只创建不注册（测试用）。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockwatch_runs_total",
			Help: "Pipeline runs by mode and outcome",
		}, []string{"mode", "status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stockwatch_run_duration_seconds",
			Help:    "Wall time of a single pipeline run",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockwatch_stage_errors_total",
			Help: "Stage failures by stage name",
		}, []string{"stage"}),
		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockwatch_bars_total",
			Help: "Total bars accepted by the validator",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockwatch_signals_total",
			Help: "Signals emitted by kind",
		}, []string{"kind"}),
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockwatch_trades_total",
			Help: "Completed round-trip trades in backtests",
		}),
		BatchInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stockwatch_batch_inflight",
			Help: "Instruments currently being evaluated in batch mode",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockwatch_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockwatch_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.RunsTotal,
			m.RunDuration,
			m.StageErrors,
			m.BarsTotal,
			m.SignalsTotal,
			m.TradesTotal,
			m.BatchInFlight,
			m.HTTPRequests,
			m.HTTPDuration,
		)
	}
	return m
}
