package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	snapshotBytes   prometheus.Gauge
	lastSuccess     prometheus.Gauge
	nextTrigger     prometheus.Gauge
	skippedTriggers prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sqlship_snapshot_cycles_total",
				Help: "Snapshot cycles by result (success, source_missing, copy_failed, upload_failed)",
			},
			[]string{"result"},
		),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sqlship_snapshot_duration_seconds",
			Help:    "Duration of snapshot cycles",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		snapshotBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sqlship_snapshot_size_bytes",
			Help: "Size of the last shipped snapshot",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sqlship_last_success_timestamp_seconds",
			Help: "Unix time of the last successful snapshot",
		}),
		nextTrigger: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sqlship_next_trigger_timestamp_seconds",
			Help: "Unix time of the next scheduled snapshot",
		}),
		skippedTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlship_skipped_triggers_total",
			Help: "Triggers skipped because the previous snapshot was still running",
		}),
	}

	m.registry.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.snapshotBytes,
		m.lastSuccess,
		m.nextTrigger,
		m.skippedTriggers,
	)
	return m
}

// ObserveCycle records one finished cycle. size is only used on success.
func (m *Metrics) ObserveCycle(result string, at time.Time, d time.Duration, size int64) {
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(d.Seconds())
	if result == "success" {
		m.snapshotBytes.Set(float64(size))
		m.lastSuccess.Set(float64(at.Unix()))
	}
}

func (m *Metrics) SetNextTrigger(t time.Time) {
	m.nextTrigger.Set(float64(t.Unix()))
}

func (m *Metrics) TriggerSkipped() {
	m.skippedTriggers.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown metrics server: %w", err)
		}
		return nil
	}
}
