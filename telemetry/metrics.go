// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	RecognitionsStarted   prometheus.Counter
	RecognitionsSucceeded prometheus.Counter
	RecognitionsNoMatch   prometheus.Counter
	RecognitionsFailed    *prometheus.CounterVec // by failure kind
	StrategyRuns          *prometheus.CounterVec // by acquisition strategy

	// Histograms (seconds)
	AcquireDuration   prometheus.Observer
	TranscodeDuration prometheus.Observer
	RecognizeDuration prometheus.Observer
	TotalDuration     prometheus.Observer

	// Gauges
	PendingWaitsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RecognitionsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "songsleuth_recognitions_started_total", Help: "Number of recognition pipeline runs started"})
		RecognitionsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "songsleuth_recognitions_succeeded_total", Help: "Number of pipeline runs that produced a track match"})
		RecognitionsNoMatch = promauto.NewCounter(prometheus.CounterOpts{Name: "songsleuth_recognitions_nomatch_total", Help: "Number of pipeline runs the service answered with no match"})
		RecognitionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "songsleuth_recognitions_failed_total", Help: "Number of pipeline runs failed, by failure kind"}, []string{"kind"})
		StrategyRuns = promauto.NewCounterVec(prometheus.CounterOpts{Name: "songsleuth_strategy_runs_total", Help: "Acquisition strategy invocations, by strategy"}, []string{"strategy"})
		AcquireDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "songsleuth_acquire_duration_seconds", Help: "Media acquisition duration seconds", Buckets: prometheus.DefBuckets})
		TranscodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "songsleuth_transcode_duration_seconds", Help: "Transcode duration seconds", Buckets: prometheus.DefBuckets})
		RecognizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "songsleuth_recognize_duration_seconds", Help: "Recognition service call duration seconds", Buckets: prometheus.DefBuckets})
		TotalDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "songsleuth_pipeline_total_duration_seconds", Help: "Total pipeline duration seconds", Buckets: prometheus.DefBuckets})
		PendingWaitsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "songsleuth_pending_waits", Help: "Messages currently parked waiting for media"})
	})
}

// CountStart increments the started counter if metrics are initialized.
func CountStart() {
	if RecognitionsStarted != nil {
		RecognitionsStarted.Inc()
	}
}

// CountOutcome records success, no-match, or a failure kind.
func CountOutcome(failureKind string, matched bool) {
	switch {
	case failureKind != "":
		if RecognitionsFailed != nil {
			RecognitionsFailed.WithLabelValues(failureKind).Inc()
		}
	case matched:
		if RecognitionsSucceeded != nil {
			RecognitionsSucceeded.Inc()
		}
	default:
		if RecognitionsNoMatch != nil {
			RecognitionsNoMatch.Inc()
		}
	}
}

// CountStrategy records an acquisition strategy invocation.
func CountStrategy(strategy string) {
	if StrategyRuns != nil {
		StrategyRuns.WithLabelValues(strategy).Inc()
	}
}

// Observe records d into obs if metrics are initialized.
func Observe(obs prometheus.Observer, d time.Duration) {
	if obs != nil {
		obs.Observe(d.Seconds())
	}
}

// SetPendingWaits records the current pending-wait count.
func SetPendingWaits(n int) {
	if PendingWaitsGauge != nil {
		PendingWaitsGauge.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
