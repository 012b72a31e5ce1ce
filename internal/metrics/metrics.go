package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeExpired  = "expired"
	OutcomeFailed   = "failed"
	OutcomeReplayed = "replayed"
	OutcomeDegraded = "degraded"
)

type Metrics struct {
	registry *prometheus.Registry

	AccessRequestsIssued prometheus.Counter
	OTPVerifications     *prometheus.CounterVec
	PaymentVerifications *prometheus.CounterVec
	PaymentOrders        *prometheus.CounterVec
	ConsultationDocs     *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		AccessRequestsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medivault",
			Name:      "access_requests_issued_total",
			Help:      "Access requests created and dispatched to patients.",
		}),
		OTPVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medivault",
			Name:      "otp_verifications_total",
			Help:      "OTP verification attempts by outcome.",
		}, []string{"outcome"}),
		PaymentVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medivault",
			Name:      "payment_verifications_total",
			Help:      "Gateway callback verifications by outcome.",
		}, []string{"outcome"}),
		PaymentOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medivault",
			Name:      "payment_orders_total",
			Help:      "Payment initiations by outcome (created, reused, failed).",
		}, []string{"outcome"}),
		ConsultationDocs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medivault",
			Name:      "consultation_documents_total",
			Help:      "Consultation document generation by outcome.",
		}, []string{"outcome"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medivault",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.AccessRequestsIssued,
		m.OTPVerifications,
		m.PaymentVerifications,
		m.PaymentOrders,
		m.ConsultationDocs,
		m.HTTPDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The helpers below tolerate a nil *Metrics so services can run without one.

func (m *Metrics) AccessIssued() {
	if m != nil {
		m.AccessRequestsIssued.Inc()
	}
}

func (m *Metrics) OTPVerification(outcome string) {
	if m != nil {
		m.OTPVerifications.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) PaymentVerification(outcome string) {
	if m != nil {
		m.PaymentVerifications.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) PaymentOrder(outcome string) {
	if m != nil {
		m.PaymentOrders.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ConsultationDocument(outcome string) {
	if m != nil {
		m.ConsultationDocs.WithLabelValues(outcome).Inc()
	}
}
