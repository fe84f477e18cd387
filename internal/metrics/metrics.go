package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	MetricsSubsystemKYC    = "kyc"
	MetricsSubsystemAnchor = "anchor"
	MetricsSubsystemEvents = "events"
	MetricsSubsystemHTTP   = "http"
)

// Metrics contains metrics exposed by the service.
type Metrics struct {
	// Submissions by tier and result (created, rejected_validation, already_validated, error).
	Submissions metrics.Counter
	// Record status changes by tier and target status.
	StatusTransitions metrics.Counter
	// Uploaded and deleted documents by operation and result.
	FileOperations metrics.Counter
	// Wizard step transitions by variant and step.
	WizardSteps metrics.Counter
	// Time spent in a verification, in seconds, by tier and outcome.
	VerificationSeconds metrics.Histogram
	// Confirmed conversions by variant.
	Conversions metrics.Counter
	// Currently open wizard sessions.
	OpenSessions metrics.Gauge
	// Status event deliveries by sink and result.
	EventDeliveries metrics.Counter
	// Request latency in seconds by route template, method and status class.
	RequestSeconds metrics.Histogram
}

// PrometheusMetrics returns Metrics built using the Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		Submissions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystemKYC,
			Name:      "submissions_total",
			Help:      "Number of KYC submissions.",
		}, []string{"tier", "result"}),
		StatusTransitions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystemKYC,
			Name:      "status_transitions_total",
			Help:      "Number of KYC record status changes.",
		}, []string{"tier", "status"}),
		FileOperations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystemKYC,
			Name:      "file_operations_total",
			Help:      "Number of document storage operations.",
		}, []string{"operation", "result"}),
		WizardSteps: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystemAnchor,
			Name:      "wizard_steps_total",
			Help:      "Number of conversion wizard step changes.",
		}, []string{"variant", "step"}),
		VerificationSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystemAnchor,
			Name:      "verification_seconds",
			Help:      "Time spent waiting on a tier verification.",
			Buckets:   stdprometheus.LinearBuckets(1, 2, 8),
		}, []string{"tier", "outcome"}),
		Conversions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystemAnchor,
			Name:      "conversions_total",
			Help:      "Number of confirmed ARS to USDC conversions.",
		}, []string{"variant"}),
		OpenSessions: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystemAnchor,
			Name:      "open_sessions",
			Help:      "Number of live wizard sessions.",
		}, []string{}),
		EventDeliveries: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystemEvents,
			Name:      "deliveries_total",
			Help:      "Number of status event deliveries.",
		}, []string{"sink", "result"}),
		RequestSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystemHTTP,
			Name:      "request_seconds",
			Help:      "HTTP request latency.",
			Buckets:   stdprometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Submissions:         discard.NewCounter(),
		StatusTransitions:   discard.NewCounter(),
		FileOperations:      discard.NewCounter(),
		WizardSteps:         discard.NewCounter(),
		VerificationSeconds: discard.NewHistogram(),
		Conversions:         discard.NewCounter(),
		OpenSessions:        discard.NewGauge(),
		EventDeliveries:     discard.NewCounter(),
		RequestSeconds:      discard.NewHistogram(),
	}
}
