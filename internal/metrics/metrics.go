// Package metrics holds the prometheus collectors for a run. A scheduled
// one-shot process has nothing to scrape, so the registry is dumped to a
// node_exporter textfile at the end of each run.
package metrics

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FeedRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postnotify_feed_requests_total",
		Help: "Feed API requests by endpoint and HTTP status.",
	}, []string{"endpoint", "status"})

	FeedRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postnotify_feed_request_duration_seconds",
		Help:    "Feed API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	PostsFetchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postnotify_posts_fetched_total",
		Help: "New posts surfaced per account.",
	}, []string{"account"})

	FetchPagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postnotify_fetch_pages_total",
		Help: "Timeline pages requested per account.",
	}, []string{"account"})

	FetchOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postnotify_fetch_outcomes_total",
		Help: "Per-account fetch outcomes: ok, first_run, truncated, degraded.",
	}, []string{"outcome"})

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postnotify_notifications_total",
		Help: "Notification deliveries by provider and result.",
	}, []string{"provider", "result"})

	LastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "postnotify_last_run_timestamp_seconds",
		Help: "Unix time the last run finished.",
	})

	LastRunDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "postnotify_last_run_duration_seconds",
		Help: "Wall time of the last run.",
	})

	LastRunSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "postnotify_last_run_success",
		Help: "1 if the last run completed, 0 if it aborted.",
	})
)

// MustRegister registers every collector with registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FeedRequestsTotal,
		FeedRequestDuration,
		PostsFetchedTotal,
		FetchPagesTotal,
		FetchOutcomesTotal,
		NotificationsTotal,
		LastRunTimestamp,
		LastRunDuration,
		LastRunSuccess,
	)
}

// ObserveFeedRequest records one feed API call. statusCode is 0 when the
// request never got a response.
func ObserveFeedRequest(endpoint string, start time.Time, statusCode int) {
	if endpoint == "" {
		endpoint = "unknown"
	}
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	FeedRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	FeedRequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// ObserveRun sets the last-run gauges.
func ObserveRun(start time.Time, ok bool) {
	now := time.Now()
	LastRunTimestamp.Set(float64(now.Unix()))
	LastRunDuration.Set(now.Sub(start).Seconds())
	if ok {
		LastRunSuccess.Set(1)
	} else {
		LastRunSuccess.Set(0)
	}
}

// WriteTextfile dumps everything gathered by g to path atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("metrics textfile path is required")
	}
	return prometheus.WriteToTextfile(path, g)
}
