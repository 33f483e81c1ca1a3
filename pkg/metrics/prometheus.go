package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	trainingsTotal   *prometheus.CounterVec
	trainingDuration *prometheus.HistogramVec
	predictionsTotal *prometheus.CounterVec
	forecastPrice    *prometheus.GaugeVec
	barsIngested     *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		trainingsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsage_trainings_total",
				Help: "Total number of model training runs",
			},
			[]string{"symbol", "result"},
		),
		trainingDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinsage_training_duration_seconds",
				Help:    "Duration of model training runs in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"symbol"},
		),
		predictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsage_predictions_total",
				Help: "Total number of served predictions",
			},
			[]string{"symbol", "result"},
		),
		forecastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinsage_forecast_price",
				Help: "Last forecast price for a symbol",
			},
			[]string{"symbol"},
		),
		barsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsage_bars_ingested_total",
				Help: "Total number of OHLCV bars written to storage",
			},
			[]string{"symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsage_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinsage_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTraining records a completed training run.
func (r *Recorder) RecordTraining(symbol, result string) {
	r.trainingsTotal.WithLabelValues(symbol, result).Inc()
}

// RecordTrainingDuration records training run duration in seconds.
func (r *Recorder) RecordTrainingDuration(symbol string, seconds float64) {
	r.trainingDuration.WithLabelValues(symbol).Observe(seconds)
}

// RecordPrediction records a served prediction.
func (r *Recorder) RecordPrediction(symbol, result string) {
	r.predictionsTotal.WithLabelValues(symbol, result).Inc()
}

// RecordForecastPrice records the last forecast price for a symbol.
func (r *Recorder) RecordForecastPrice(symbol string, price float64) {
	r.forecastPrice.WithLabelValues(symbol).Set(price)
}

// RecordBarsIngested records bars written to storage.
func (r *Recorder) RecordBarsIngested(symbol string, n int) {
	r.barsIngested.WithLabelValues(symbol).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
