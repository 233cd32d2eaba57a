package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Payment confirmation outcomes recorded by PaymentMetrics.
const (
	PaymentOutcomeConfirmed   = "confirmed"
	PaymentOutcomeDuplicate   = "duplicate"
	PaymentOutcomeRejected    = "rejected"
	PaymentOutcomeError       = "error"
	PaymentOutcomeContemplate = "contemplated"
)

// PaymentMetrics records payment confirmation processing.
type PaymentMetrics struct {
	outcomes *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewPaymentMetrics registers payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_confirmations_total",
		Help: "Payment confirmations by outcome.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_confirmation_seconds",
		Help:    "Latency of payment confirmation handling.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(outcomes, latency)
	return &PaymentMetrics{outcomes: outcomes, latency: latency}
}

// Record counts an outcome and observes its handling latency.
func (p *PaymentMetrics) Record(outcome string, duration time.Duration) {
	if p == nil || p.outcomes == nil {
		return
	}
	label := outcomeLabel(outcome)
	p.outcomes.WithLabelValues(label).Inc()
	p.latency.WithLabelValues(label).Observe(duration.Seconds())
}

func outcomeLabel(outcome string) string {
	if outcome == "" {
		return "unknown"
	}
	return outcome
}
