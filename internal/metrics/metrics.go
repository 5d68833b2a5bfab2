// Package metrics holds the Prometheus collectors for ingestion and analysis.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wesm/glider/internal/gmail"
)

const namespace = "glider"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds all Prometheus collectors. Collectors are registered on a
// private registry so tests can create as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	MessagesFetched   *prometheus.CounterVec
	GmailRequests     *prometheus.CounterVec
	AnalysisChunks    *prometheus.CounterVec
	AnalysisEmails    *prometheus.CounterVec
	ChunkDuration     prometheus.Histogram
	CredentialRefresh *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MessagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_fetched_total",
			Help:      "Messages retrieved from the mailbox, by result",
		}, []string{"result"}),
		GmailRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gmail_requests_total",
			Help:      "Gmail API requests by operation and HTTP status (0 for transport failures)",
		}, []string{"op", "status"}),
		AnalysisChunks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_chunks_total",
			Help:      "Model calls made for analysis chunks, by result",
		}, []string{"result"}),
		AnalysisEmails: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_emails_total",
			Help:      "Emails sent for analysis, by chunk result",
		}, []string{"result"}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_chunk_duration_seconds",
			Help:      "Time spent on one analysis chunk",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		CredentialRefresh: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_refresh_total",
			Help:      "Access token refreshes, by result",
		}, []string{"result"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ChunkAnalyzed records one analysis chunk.
func (m *Metrics) ChunkAnalyzed(emails int, elapsed time.Duration, err error) {
	result := resultLabel(err)
	m.AnalysisChunks.WithLabelValues(result).Inc()
	m.AnalysisEmails.WithLabelValues(result).Add(float64(emails))
	m.ChunkDuration.Observe(elapsed.Seconds())
}

// ObserveRequest records one Gmail API exchange.
func (m *Metrics) ObserveRequest(op gmail.Operation, status int) {
	m.GmailRequests.WithLabelValues(string(op), strconv.Itoa(status)).Inc()
}

// ObserveFetch records the outcome of one fetch round.
func (m *Metrics) ObserveFetch(fetched, failed int) {
	m.MessagesFetched.WithLabelValues(ResultSuccess).Add(float64(fetched))
	m.MessagesFetched.WithLabelValues(ResultFailure).Add(float64(failed))
}

// ObserveRefresh records one credential refresh for owner. Owners are not
// used as a label to keep cardinality bounded.
func (m *Metrics) ObserveRefresh(_ string, err error) {
	m.CredentialRefresh.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
