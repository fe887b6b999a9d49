// Package metrics collects client-side counters and exposes them for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the transport, the auth layer and the poller report to.
type Recorder interface {
	RecordRequest(kind string, duration time.Duration)
	RecordExchange(result string)
	RecordLogout()
	RecordPoll(ok bool)
}

// Exchange results
const (
	ExchangeSuccess = "success"
	ExchangeFailure = "failure"
)

// Nop discards everything.
type Nop struct{}

func (Nop) RecordRequest(string, time.Duration) {}
func (Nop) RecordExchange(string)               {}
func (Nop) RecordLogout()                       {}
func (Nop) RecordPoll(bool)                     {}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	exchanges       *prometheus.CounterVec
	logouts         prometheus.Counter
	polls           *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presupuesto_api_requests_total",
			Help: "Backend requests by outcome kind",
		}, []string{"kind"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "presupuesto_api_request_duration_seconds",
			Help:    "Backend request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presupuesto_token_exchanges_total",
			Help: "Identity-to-bearer token exchanges by result",
		}, []string{"result"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "presupuesto_logouts_total",
			Help: "Completed logout sequences",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presupuesto_notification_polls_total",
			Help: "Notification polls by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.requests,
		c.requestDuration,
		c.exchanges,
		c.logouts,
		c.polls,
	)

	return c
}

// RecordRequest counts one backend request.
func (c *Collector) RecordRequest(kind string, duration time.Duration) {
	c.requests.WithLabelValues(kind).Inc()
	c.requestDuration.Observe(duration.Seconds())
}

// RecordExchange counts one exchange attempt.
func (c *Collector) RecordExchange(result string) {
	c.exchanges.WithLabelValues(result).Inc()
}

// RecordLogout counts one logout.
func (c *Collector) RecordLogout() {
	c.logouts.Inc()
}

// RecordPoll counts one notification poll.
func (c *Collector) RecordPoll(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.polls.WithLabelValues(result).Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute serves gatherer on /metrics.
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
