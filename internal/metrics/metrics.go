// Package metrics exposes the watcher's Prometheus collectors. All methods
// are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "listing_watcher"

type Metrics struct {
	registry *prometheus.Registry

	cycles           *prometheus.CounterVec
	fetchAttempts    *prometheus.CounterVec
	sessionRefreshes *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	chartCaptures    *prometheus.CounterVec
	newAnnouncements prometheus.Counter
	seenIDs          prometheus.Gauge
	lastSuccessTS    prometheus.Gauge
	cycleDuration    prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Change-detection cycles by result",
	}, []string{"result"})
	m.fetchAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_attempts_total",
		Help:      "Feed HTTP attempts by outcome",
	}, []string{"outcome"})
	m.sessionRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_refreshes_total",
		Help:      "Session token refreshes by result",
	}, []string{"result"})
	m.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Outbound notifications by kind and result",
	}, []string{"kind", "result"})
	m.chartCaptures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chart_captures_total",
		Help:      "Chart capture runs by result",
	}, []string{"result"})
	m.newAnnouncements = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "new_announcements_total",
		Help:      "Announcements detected as new",
	})
	m.seenIDs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "seen_ids",
		Help:      "Size of the seen identity set",
	})
	m.lastSuccessTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful cycle",
	})
	m.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Duration of change-detection cycles",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	m.registry.MustRegister(
		m.cycles,
		m.fetchAttempts,
		m.sessionRefreshes,
		m.notifications,
		m.chartCaptures,
		m.newAnnouncements,
		m.seenIDs,
		m.lastSuccessTS,
		m.cycleDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(d.Seconds())
	if result == "success" || result == "first_run" {
		m.lastSuccessTS.SetToCurrentTime()
	}
}

func (m *Metrics) ObserveFetch(outcome string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSessionRefresh(ok bool) {
	if m == nil {
		return
	}
	m.sessionRefreshes.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) ObserveNotification(kind, res string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, res).Inc()
}

func (m *Metrics) ObserveChart(ok bool) {
	if m == nil {
		return
	}
	m.chartCaptures.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) AddNew(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.newAnnouncements.Add(float64(n))
}

func (m *Metrics) SetSeen(n int) {
	if m == nil {
		return
	}
	m.seenIDs.Set(float64(n))
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, m *Metrics, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
