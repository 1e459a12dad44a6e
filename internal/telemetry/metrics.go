package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"callstack/internal/domain"
)

// Metrics counts recording cycles. It satisfies ports.CycleObserver.
type Metrics struct {
	RecordingsStarted prometheus.Counter
	Cycles            *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	AudioBytes        prometheus.Histogram
}

// NewMetrics registers the cycle metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "callstack_recordings_started_total",
			Help: "Total number of recordings that acquired the microphone",
		}),
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callstack_cycles_total",
			Help: "Finished record-and-upload cycles by outcome",
		}, []string{"outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "callstack_cycle_duration_seconds",
			Help:    "Time from recording start to a displayed result or failure",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		AudioBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "callstack_audio_bytes",
			Help:    "Size of finalized recordings in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 9), // 1KB to ~64MB
		}),
	}
}

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func (m *Metrics) RecordingStarted() {
	m.RecordingsStarted.Inc()
}

func (m *Metrics) CycleFinished(cycle domain.Cycle) {
	m.Cycles.WithLabelValues(cycle.Outcome()).Inc()
	if !cycle.StartedAt.IsZero() && cycle.FinishedAt.After(cycle.StartedAt) {
		m.CycleDuration.Observe(cycle.FinishedAt.Sub(cycle.StartedAt).Seconds())
	}
	if !cycle.Aborted {
		m.AudioBytes.Observe(float64(cycle.AudioBytes))
	}
}

// ServeMetrics exposes gatherer at /metrics on bind until the returned shutdown
// is called. It returns the bound address.
func ServeMetrics(bind string, gatherer prometheus.Gatherer, logger *slog.Logger) (string, func(context.Context) error, error) {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return "", nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	addr := listener.Addr().String()
	logger.Info("metrics listening", "addr", addr)
	return addr, server.Shutdown, nil
}
