package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "edinet"

// Metrics holds the pipeline's Prometheus collectors
type Metrics struct {
	ListingRequests     *prometheus.CounterVec
	FilingsDiscovered   prometheus.Counter
	FilingsRetained     prometheus.Counter
	FilingsProcessed    *prometheus.CounterVec
	ArtifactsDownloaded *prometheus.CounterVec
	ArtifactBytes       *prometheus.CounterVec
	ArtifactFailures    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ListingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "listing_requests_total",
			Help:      "Daily listing requests sent to the registry, by result.",
		}, []string{"result"}),
		FilingsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "filings_discovered_total",
			Help:      "Filings returned by listing requests before filtering.",
		}),
		FilingsRetained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "filings_retained_total",
			Help:      "Filings kept by the filter and written to the manifest.",
		}),
		FilingsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "filings_processed_total",
			Help:      "Filings handled by the retrieval phase, by result.",
		}, []string{"result"}),
		ArtifactsDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "artifacts_downloaded_total",
			Help:      "Artifacts written to disk, by kind.",
		}, []string{"kind"}),
		ArtifactBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "artifact_bytes_total",
			Help:      "Bytes written for downloaded artifacts, by kind.",
		}, []string{"kind"}),
		ArtifactFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "artifact_failures_total",
			Help:      "Artifact downloads that failed, by kind.",
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ListingRequests,
			m.FilingsDiscovered,
			m.FilingsRetained,
			m.FilingsProcessed,
			m.ArtifactsDownloaded,
			m.ArtifactBytes,
			m.ArtifactFailures,
		)
	}

	return m
}

func (m *Metrics) observeListing(err error) {
	if err != nil {
		m.ListingRequests.WithLabelValues("error").Inc()
		return
	}
	m.ListingRequests.WithLabelValues("ok").Inc()
}
