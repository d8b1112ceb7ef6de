package metrics

import (
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    compositions = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pagecomposer",
            Name:      "compositions_total",
            Help:      "Total composition runs by layout mode and result",
        },
        []string{"mode", "result"},
    )

    compositionLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "pagecomposer",
            Name:      "composition_duration_seconds",
            Help:      "Duration of composition runs by layout mode",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"mode"},
    )

    pagesComposed = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pagecomposer",
            Name:      "pages_total",
            Help:      "Total pages emitted by source (compose, editor)",
        },
        []string{"source"},
    )

    cutSearches = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pagecomposer",
            Name:      "cut_search_total",
            Help:      "Page boundaries by how they were resolved (exact, forward, backward, forced, end)",
        },
        []string{"kind"},
    )

    failures = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pagecomposer",
            Name:      "failures_total",
            Help:      "Failed runs by error code",
        },
        []string{"code"},
    )

    jobsInFlight = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "pagecomposer",
            Name:      "jobs_in_flight",
            Help:      "Composition jobs currently running on the worker pool",
        },
    )

    jobsQueued = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "pagecomposer",
            Name:      "jobs_queued",
            Help:      "Composition jobs waiting for a worker",
        },
    )
)

// Init registers collectors.
func Init() {
    prometheus.MustRegister(compositions, compositionLatency, pagesComposed, cutSearches, failures, jobsInFlight, jobsQueued)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveComposition(mode, result string, dur time.Duration) {
    compositions.WithLabelValues(mode, result).Inc()
    compositionLatency.WithLabelValues(mode).Observe(dur.Seconds())
}

func AddPages(source string, n int) { pagesComposed.WithLabelValues(source).Add(float64(n)) }
func IncCut(kind string)            { cutSearches.WithLabelValues(kind).Inc() }
func IncFailure(code string)        { failures.WithLabelValues(code).Inc() }

func SetInFlight(n int) { jobsInFlight.Set(float64(n)) }
func SetQueued(n int)   { jobsQueued.Set(float64(n)) }
