// Package metrics exposes prometheus instrumentation for the scan gate.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder interface {
	IncScanAdmitted()
	IncScanRejected(reason string)
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
}

type Provider struct {
	scansAdmitted   prometheus.Counter
	scansRejected   *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewProvider(enabled bool) Recorder {
	if !enabled {
		return &noopRecorder{}
	}

	return &Provider{
		scansAdmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tapgate_scans_admitted_total",
			Help: "Total number of scans admitted to the ledger",
		}),

		scansRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tapgate_scans_rejected_total",
			Help: "Total number of scans rejected by the fraud policy",
		}, []string{"reason"}),

		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tapgate_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tapgate_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (p *Provider) IncScanAdmitted() {
	p.scansAdmitted.Inc()
}

func (p *Provider) IncScanRejected(reason string) {
	p.scansRejected.WithLabelValues(reason).Inc()
}

func (p *Provider) IncRequestsTotal(endpoint string, status int) {
	p.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (p *Provider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	p.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// noopRecorder is used when metrics are disabled.
type noopRecorder struct{}

func (noopRecorder) IncScanAdmitted()                             {}
func (noopRecorder) IncScanRejected(string)                       {}
func (noopRecorder) IncRequestsTotal(string, int)                 {}
func (noopRecorder) ObserveRequestDuration(string, time.Duration) {}
