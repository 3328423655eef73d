package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMarketplaceMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMarketplaceMetrics(reg)

	m.ObserveDebit("ok")
	m.ObserveDebit("ok")
	m.ObserveDebit("insufficient_funds")
	m.ObserveCheckout("paid", 40*time.Millisecond)
	m.IncCreditSkip("product_missing")
	m.IncModeration("published")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "bazaar_ledger_debits_total", "outcome", "ok"); err != nil || got != 2 {
		t.Fatalf("expected 2 ok debits, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "bazaar_ledger_debits_total", "outcome", "insufficient_funds"); err != nil || got != 1 {
		t.Fatalf("expected 1 insufficient debit, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "bazaar_checkout_attempts_total", "outcome", "paid"); err != nil || got != 1 {
		t.Fatalf("expected 1 paid checkout, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "bazaar_checkout_seller_credit_skips_total", "reason", "product_missing"); err != nil || got != 1 {
		t.Fatalf("expected 1 credit skip, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "bazaar_catalog_moderation_transitions_total", "status", "published"); err != nil || got != 1 {
		t.Fatalf("expected 1 moderation, got %f err=%v", got, err)
	}
}

func TestMarketplaceMetricsNilSafe(t *testing.T) {
	var m *MarketplaceMetrics
	m.ObserveDebit("ok")
	m.IncCredit()
	m.ObserveCheckout("paid", time.Second)
	m.IncCreditSkip("seller_missing")
	m.IncModeration("rejected")

	unregistered := NewMarketplaceMetrics(nil)
	unregistered.ObserveDebit("ok")
}

func TestOutboxMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.ObserveEvent("order.paid", OutboxPublished, 2*time.Second)
	m.ObserveEvent("order.paid", OutboxRetried, 0)
	m.ObserveEvent("", OutboxDeadLettered, 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	events := findMetricFamily(mfs, "bazaar_outbox_events_total")
	if events == nil || len(events.GetMetric()) != 3 {
		t.Fatalf("expected three outcome series, got %v", events)
	}
	lag := findMetricFamily(mfs, "bazaar_outbox_publish_lag_seconds")
	if lag == nil || lag.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected only the published row in the lag histogram")
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.ObserveEvent("x", OutboxPublished, time.Second)
}
