package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"PriceCast/internal/model"
)

// Recorder collects per-run forecasting metrics on its own registry.
type Recorder struct {
	registry      *prometheus.Registry
	forecasts     *prometheus.CounterVec
	skipped       prometheus.Counter
	fallbacks     prometheus.Counter
	writeFailures prometheus.Counter
	fitDuration   *prometheus.HistogramVec
	lastRun       prometheus.Gauge
}

// New creates a metrics recorder.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricecast_forecasts_total",
				Help: "Forecast batches produced, by model family",
			},
			[]string{"family"},
		),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "pricecast_skipped_total",
			Help: "Symbols skipped for insufficient history",
		}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "pricecast_fallbacks_total",
			Help: "Symbols where the primary model failed and the fallback was used",
		}),
		writeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "pricecast_write_failures_total",
			Help: "Forecast batches that could not be persisted",
		}),
		fitDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricecast_fit_duration_seconds",
				Help:    "Duration of a single fit and predict",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"family"},
		),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "pricecast_last_run_timestamp_seconds",
			Help: "Completion time of the last run",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// RecordFit records one fit attempt of the given family.
func (r *Recorder) RecordFit(family model.Family, d time.Duration) {
	r.fitDuration.WithLabelValues(string(family)).Observe(d.Seconds())
}

// RecordForecast records a batch that will be written.
func (r *Recorder) RecordForecast(family model.Family) {
	r.forecasts.WithLabelValues(string(family)).Inc()
}

// RecordSkip records a skipped symbol.
func (r *Recorder) RecordSkip() { r.skipped.Inc() }

// RecordFallback records a primary failure routed to the fallback.
func (r *Recorder) RecordFallback() { r.fallbacks.Inc() }

// RecordWriteFailure records a batch rejected by the store.
func (r *Recorder) RecordWriteFailure() { r.writeFailures.Inc() }

// RecordRun records the completion of a run.
func (r *Recorder) RecordRun(s *model.RunSummary) {
	r.lastRun.Set(float64(s.FinishedAt.Unix()))
}

// Push sends the current values to a Prometheus Pushgateway.
func (r *Recorder) Push(url, job string) error {
	if err := push.New(url, job).Gatherer(r.registry).Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
