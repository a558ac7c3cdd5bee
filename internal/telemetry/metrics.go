// Package telemetry — метрики Prometheus для всего конвейера.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: время обработки одного замера по стадиям
	StageDuration *prometheus.HistogramVec

	// Traffic: замеры по исходу классификации
	ReadingsTotal *prometheus.CounterVec

	// Инференс: вызовы по модели и исходу (ok, fallback)
	InferenceTotal    *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Alerts: выпущенные алерты и сбои доставки
	AlertsTotal     *prometheus.CounterVec
	SinkErrorsTotal *prometheus.CounterVec

	// Journal: заполненность буфера (backpressure)
	JournalBufferFill prometheus.Gauge

	// History: сколько записей сейчас в памяти
	HistoryEntries prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object: без регистра пишем в локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pdm_stage_duration_seconds",
			Help:    "Histogram of pipeline stage latencies.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"stage"}), // стадии: process, predict_failure, vibration, control

		ReadingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdm_readings_total",
			Help: "Total number of processed sensor readings.",
		}, []string{"outcome"}), // normal, anomaly

		InferenceTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdm_inference_calls_total",
			Help: "Total number of inference calls by model and outcome.",
		}, []string{"model", "outcome"}),

		InferenceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pdm_inference_duration_seconds",
			Help:    "Histogram of inference latencies including fallbacks.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"model"}),

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pdm_circuit_breaker_state",
			Help: "Current state of the inference circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"backend"}),

		AlertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdm_alerts_total",
			Help: "Total number of emitted alerts.",
		}, []string{"type", "severity"}),

		SinkErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdm_alert_sink_errors_total",
			Help: "Total number of failed alert deliveries.",
		}, []string{"type"}),

		JournalBufferFill: f.NewGauge(prometheus.GaugeOpts{
			Name: "pdm_alert_journal_buffer_utilization",
			Help: "Current number of alerts waiting in the journal buffer.",
		}),

		HistoryEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "pdm_history_entries",
			Help: "Current number of entries kept in the in-memory history.",
		}),
	}
}
