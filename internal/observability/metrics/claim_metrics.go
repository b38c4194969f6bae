package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels that are not error codes
const (
	OutcomeOK = "ok"

	StagePreview = "preview"
	StageSubmit  = "submit"

	ResultApplied = "applied"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// ClaimMetrics captures claim pipeline health. A nil *ClaimMetrics records nothing.
type ClaimMetrics struct {
	submissions        *prometheus.CounterVec
	extractions        *prometheus.CounterVec
	extractionDuration prometheus.Histogram
	malformedHistory   prometheus.Counter
	statusUpdates      *prometheus.CounterVec
	reimbursed         prometheus.Counter
}

// NewClaimMetrics registers the claim collectors on registerer
func NewClaimMetrics(registerer prometheus.Registerer) *ClaimMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &ClaimMetrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_submissions_total",
			Help: "Claim previews and submissions by stage and outcome code.",
		}, []string{"stage", "outcome"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_bill_extractions_total",
			Help: "Bill OCR calls by result.",
		}, []string{"result"}),
		extractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "claims_bill_extraction_duration_seconds",
			Help:    "Latency of a single bill OCR call.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
		malformedHistory: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claims_malformed_history_rows_total",
			Help: "Stored claims skipped during duplicate checks because group_members could not be decoded.",
		}),
		statusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_status_updates_total",
			Help: "Admin status rows by requested status and result.",
		}, []string{"status", "result"}),
		reimbursed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claims_reimbursed_amount_total",
			Help: "Sum of reimbursable amounts of stored claims, in currency units.",
		}),
	}

	registerer.MustRegister(
		m.submissions,
		m.extractions,
		m.extractionDuration,
		m.malformedHistory,
		m.statusUpdates,
		m.reimbursed,
	)
	return m
}

// ObserveSubmission counts one pipeline run; outcome is OutcomeOK or an error code
func (m *ClaimMetrics) ObserveSubmission(stage, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(stage, outcome).Inc()
}

// ObserveExtraction records one OCR call
func (m *ClaimMetrics) ObserveExtraction(failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := OutcomeOK
	if failed {
		result = ResultError
	}
	m.extractions.WithLabelValues(result).Inc()
	m.extractionDuration.Observe(elapsed.Seconds())
}

// AddMalformedHistory counts history rows skipped by the duplicate check
func (m *ClaimMetrics) AddMalformedHistory(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.malformedHistory.Add(float64(n))
}

// ObserveStatusUpdate counts one admin row
func (m *ClaimMetrics) ObserveStatusUpdate(status, result string) {
	if m == nil {
		return
	}
	m.statusUpdates.WithLabelValues(status, result).Inc()
}

// AddReimbursed adds a stored claim's reimbursable amount
func (m *ClaimMetrics) AddReimbursed(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.reimbursed.Add(amount)
}
