// Package metrics exposes pipeline counters for Prometheus. A nil *Recorder
// is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fxdigest"

type Recorder struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	requestDur    *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	articles      *prometheus.CounterVec
	calendarRows  prometheus.Counter
	cycleDur      *prometheus.HistogramVec
	lastSuccessTS prometheus.Gauge
}

// New registers the pipeline metrics on a fresh registry.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Outbound HTTP requests by kind and outcome",
	}, []string{"kind", "outcome"})
	r.requestDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Outbound HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
	r.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retry_attempts_total",
		Help:      "Failed attempts that were retried, by operation",
	}, []string{"op"})
	r.articles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "articles_total",
		Help:      "Listing items processed, by result",
	}, []string{"result"})
	r.calendarRows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calendar_events_total",
		Help:      "Economic calendar events fetched",
	})
	r.cycleDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Duration of digest cycles by outcome",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
	}, []string{"outcome"})
	r.lastSuccessTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful digest cycle",
	})

	r.registry.MustRegister(
		r.requests, r.requestDur, r.retries, r.articles,
		r.calendarRows, r.cycleDur, r.lastSuccessTS,
	)
	return r
}

// Registry is exposed for tests and for merging with other collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveRequest(kind, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(kind, outcome).Inc()
	r.requestDur.WithLabelValues(kind).Observe(d.Seconds())
}

// RetryHook matches retry.Policy.OnRetry.
func (r *Recorder) RetryHook(op string, _ int, _ error) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(op).Inc()
}

func (r *Recorder) ArticleSeen(result string) {
	if r == nil {
		return
	}
	r.articles.WithLabelValues(result).Inc()
}

func (r *Recorder) CalendarEvents(n int) {
	if r == nil {
		return
	}
	r.calendarRows.Add(float64(n))
}

func (r *Recorder) ObserveCycle(err error, d time.Duration) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.cycleDur.WithLabelValues(outcome).Observe(d.Seconds())
	if err == nil {
		r.lastSuccessTS.SetToCurrentTime()
	}
}

func (r *Recorder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve blocks serving /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
