package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace prefixes every collector this service exports.
const namespace = "bazaar"

// MarketplaceMetrics tracks money movement and checkout outcomes.
type MarketplaceMetrics struct {
	debits           *prometheus.CounterVec
	credits          prometheus.Counter
	checkouts        *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	creditSkips      *prometheus.CounterVec
	moderations      *prometheus.CounterVec
}

// NewMarketplaceMetrics registers the marketplace collectors on reg.
func NewMarketplaceMetrics(reg prometheus.Registerer) *MarketplaceMetrics {
	if reg == nil {
		return &MarketplaceMetrics{}
	}
	debits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_debits_total",
		Help:      "Ledger debit attempts by outcome.",
	}, []string{"outcome"})
	credits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_credits_total",
		Help:      "Ledger credits applied.",
	})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_attempts_total",
		Help:      "Checkout attempts by outcome.",
	}, []string{"outcome"})
	checkoutDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "checkout_duration_seconds",
		Help:      "Duration of checkout transactions in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
	creditSkips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_seller_credit_skips_total",
		Help:      "Seller credits skipped during checkout, pending reconciliation.",
	}, []string{"reason"})
	moderations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_moderation_transitions_total",
		Help:      "Product moderation transitions by target status.",
	}, []string{"status"})
	reg.MustRegister(debits, credits, checkouts, checkoutDuration, creditSkips, moderations)
	return &MarketplaceMetrics{
		debits:           debits,
		credits:          credits,
		checkouts:        checkouts,
		checkoutDuration: checkoutDuration,
		creditSkips:      creditSkips,
		moderations:      moderations,
	}
}

// ObserveDebit records a debit outcome ("ok" or "insufficient_funds").
func (m *MarketplaceMetrics) ObserveDebit(outcome string) {
	if m == nil || m.debits == nil {
		return
	}
	m.debits.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *MarketplaceMetrics) IncCredit() {
	if m == nil || m.credits == nil {
		return
	}
	m.credits.Inc()
}

// ObserveCheckout records the checkout outcome and its duration.
func (m *MarketplaceMetrics) ObserveCheckout(outcome string, duration time.Duration) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
	if m.checkoutDuration != nil {
		m.checkoutDuration.Observe(duration.Seconds())
	}
}

func (m *MarketplaceMetrics) IncCreditSkip(reason string) {
	if m == nil || m.creditSkips == nil {
		return
	}
	m.creditSkips.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncModeration counts a product entering status.
func (m *MarketplaceMetrics) IncModeration(status string) {
	if m == nil || m.moderations == nil {
		return
	}
	m.moderations.WithLabelValues(normalizeLabel(status)).Inc()
}
