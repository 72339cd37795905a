package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
type Metrics struct {
	// Sessions created by flow type
	SessionsCreated *prometheus.CounterVec

	// Webhook events by event type and disposition
	WebhookEvents *prometheus.CounterVec

	// Webhook signature rejections
	SignatureRejections prometheus.Counter

	// Session outcomes by result and risk tier
	SessionOutcomes *prometheus.CounterVec

	// Webhook processing latency
	WebhookLatency prometheus.Histogram

	// Provider session creation latency
	ProviderLatency prometheus.Histogram

	// Sessions swept to abandoned by the background sweeper
	SessionsSwept prometheus.Counter
}

// New creates a new Metrics instance with all verification metrics registered.
func New() *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veriflow_sessions_created_total",
			Help: "Total verification sessions created by flow type",
		}, []string{"flow_type"}),

		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veriflow_webhook_events_total",
			Help: "Total webhook events by event type and disposition",
		}, []string{"event_type", "disposition"}), // disposition: "processed", "duplicate", "anomaly"

		SignatureRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriflow_webhook_signature_rejections_total",
			Help: "Total webhooks rejected for a missing or invalid signature",
		}),

		SessionOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veriflow_session_outcomes_total",
			Help: "Total completed session outcomes by result and risk tier",
		}, []string{"result", "risk_tier"}),

		WebhookLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veriflow_webhook_duration_seconds",
			Help:    "Duration of webhook processing including the durable update",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		ProviderLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veriflow_provider_session_duration_seconds",
			Help:    "Duration of provider session creation calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		SessionsSwept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriflow_sessions_swept_total",
			Help: "Total stale sessions marked abandoned by the sweeper",
		}),
	}
}

// IncrementSessionsCreated records a created session.
func (m *Metrics) IncrementSessionsCreated(flowType string) {
	if m != nil {
		m.SessionsCreated.WithLabelValues(flowType).Inc()
	}
}

// IncrementWebhookEvent records a webhook event disposition.
func (m *Metrics) IncrementWebhookEvent(eventType, disposition string) {
	if m != nil {
		m.WebhookEvents.WithLabelValues(eventType, disposition).Inc()
	}
}

// IncrementSignatureRejection records a rejected webhook signature.
func (m *Metrics) IncrementSignatureRejection() {
	if m != nil {
		m.SignatureRejections.Inc()
	}
}

// IncrementOutcome records a completed session outcome.
func (m *Metrics) IncrementOutcome(result, riskTier string) {
	if m != nil {
		m.SessionOutcomes.WithLabelValues(result, riskTier).Inc()
	}
}

// ObserveWebhookLatency records the duration of webhook processing.
func (m *Metrics) ObserveWebhookLatency(d time.Duration) {
	if m != nil {
		m.WebhookLatency.Observe(d.Seconds())
	}
}

// ObserveProviderLatency records the duration of a provider call.
func (m *Metrics) ObserveProviderLatency(d time.Duration) {
	if m != nil {
		m.ProviderLatency.Observe(d.Seconds())
	}
}

// IncrementSessionsSwept records sessions marked abandoned by the sweeper.
func (m *Metrics) IncrementSessionsSwept(n int) {
	if m != nil {
		m.SessionsSwept.Add(float64(n))
	}
}
