package metrics

import "github.com/prometheus/client_golang/prometheus"

// CheckoutMetrics counts checkout outcomes and per-item failures.
type CheckoutMetrics struct {
	outcomes     *prometheus.CounterVec
	itemFailures *prometheus.CounterVec
	bookkeeping  prometheus.Counter
}

// NewCheckoutMetrics registers the checkout collectors. A nil registerer
// yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_outcomes_total",
		Help:      "Checkout invocations by outcome.",
	}, []string{"outcome"})
	itemFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_item_failures_total",
		Help:      "Checkout items that failed, by error kind.",
	}, []string{"kind"})
	bookkeeping := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_bookkeeping_errors_total",
		Help:      "Local bookkeeping errors after a remote order was created.",
	})
	reg.MustRegister(outcomes, itemFailures, bookkeeping)
	return &CheckoutMetrics{
		outcomes:     outcomes,
		itemFailures: itemFailures,
		bookkeeping:  bookkeeping,
	}
}

func (m *CheckoutMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CheckoutMetrics) IncItemFailure(kind string) {
	if m == nil || m.itemFailures == nil {
		return
	}
	m.itemFailures.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *CheckoutMetrics) IncBookkeepingError() {
	if m == nil || m.bookkeeping == nil {
		return
	}
	m.bookkeeping.Inc()
}
