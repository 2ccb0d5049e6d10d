package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaultgate_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Upload Metrics
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgate_uploads_total",
			Help: "Total number of upload attempts",
		},
		[]string{"outcome"},
	)

	UploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vaultgate_upload_size_bytes",
			Help:    "Size of uploaded objects in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 12), // 1KB to 4GB
		},
	)

	// Stream Metrics
	StreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgate_streams_total",
			Help: "Total number of stream requests",
		},
		[]string{"outcome"},
	)

	// Ledger Metrics
	AdmitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgate_admit_decisions_total",
			Help: "Quota admission decisions by outcome",
		},
		[]string{"decision"},
	)

	LedgerUnavailableTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultgate_ledger_unavailable_total",
			Help: "Ledger calls that failed as unavailable",
		},
	)

	// Token Metrics
	TokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgate_tokens_issued_total",
			Help: "Capability tokens issued by action",
		},
		[]string{"action"},
	)

	TokenVerificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgate_token_verification_failures_total",
			Help: "Token verification failures by reason",
		},
		[]string{"reason"},
	)

	// Audit Metrics
	AuditDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultgate_audit_delivery_failures_total",
			Help: "Audit events dropped after exhausting retries",
		},
	)

	// Reconciliation Metrics
	ReconciliationCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultgate_reconciliation_corrections_total",
			Help: "Absolute usage corrections issued by the reconciler",
		},
	)

	ReconciliationGapsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultgate_reconciliation_gaps_published_total",
			Help: "Release gaps journaled for later replay",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its duration in seconds
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordUpload records an upload attempt and, when admitted, its size
func RecordUpload(outcome string, sizeBytes int64) {
	UploadsTotal.WithLabelValues(outcome).Inc()
	if outcome == "admitted" {
		UploadSizeBytes.Observe(float64(sizeBytes))
	}
}

// RecordStream records a stream request outcome
func RecordStream(outcome string) {
	StreamsTotal.WithLabelValues(outcome).Inc()
}

// RecordAdmitDecision records a quota admission decision
func RecordAdmitDecision(decision string) {
	AdmitDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordTokenIssued records an issued capability token
func RecordTokenIssued(action string) {
	TokensIssuedTotal.WithLabelValues(action).Inc()
}
