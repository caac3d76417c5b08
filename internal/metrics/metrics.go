// Package metrics exposes Prometheus collectors for the search service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBytesTotal          *prometheus.CounterVec
	crawlerSitesTotal          *prometheus.CounterVec
	crawlerActiveTasks         prometheus.Gauge
	indexerLemmasCreatedTotal  prometheus.Counter
	indexerPostingsTotal       prometheus.Counter
	searchRequestsTotal        *prometheus.CounterVec
	searchDurationSeconds      prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	fetchRateLimitDelaySeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages crawled, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerSitesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_sites_total",
				Help: "Total number of site crawls finished, labeled by final status.",
			},
			[]string{"status"},
		)

		crawlerActiveTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_tasks",
				Help: "Number of crawl tasks currently fetching a page.",
			},
		)

		indexerLemmasCreatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_lemmas_created_total",
				Help: "Total number of lemma rows created.",
			},
		)

		indexerPostingsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_postings_total",
				Help: "Total number of postings written.",
			},
		)

		searchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_requests_total",
				Help: "Total number of search queries, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		searchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_duration_seconds",
				Help:    "Histogram of search latencies.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		fetchRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fetch_rate_limit_delay_seconds",
				Help:    "Histogram of per-site rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// The Observe helpers are no-ops until Init has run, so packages can be used
// in tests without registering collectors.

// ObservePage records one crawled page with its outcome.
func ObservePage(site string, status string, bytesFetched int) {
	if crawlerPagesTotal == nil {
		return
	}
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveSite records a finished site crawl.
func ObserveSite(status string) {
	if crawlerSitesTotal == nil {
		return
	}
	crawlerSitesTotal.WithLabelValues(status).Inc()
}

// IncActiveTasks increments the in-flight crawl task gauge.
func IncActiveTasks() {
	if crawlerActiveTasks == nil {
		return
	}
	crawlerActiveTasks.Inc()
}

// DecActiveTasks decrements the in-flight crawl task gauge.
func DecActiveTasks() {
	if crawlerActiveTasks == nil {
		return
	}
	crawlerActiveTasks.Dec()
}

// ObserveIndex records lemmas created and postings written for one page.
func ObserveIndex(lemmasCreated, postings int) {
	if indexerLemmasCreatedTotal == nil {
		return
	}
	indexerLemmasCreatedTotal.Add(float64(lemmasCreated))
	indexerPostingsTotal.Add(float64(postings))
}

// ObserveSearch records a search with its outcome and latency.
func ObserveSearch(outcome string, duration time.Duration) {
	if searchRequestsTotal == nil {
		return
	}
	searchRequestsTotal.WithLabelValues(outcome).Inc()
	searchDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if fetchRateLimitDelaySeconds == nil {
		return
	}
	fetchRateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
