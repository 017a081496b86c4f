package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// BillingCalculationsTotal counts engine runs by outcome (ok, invalid_input, error).
	BillingCalculationsTotal *prometheus.CounterVec
	// BillingCalculationLatency records engine run latency in milliseconds.
	BillingCalculationLatency prometheus.Histogram
	// CouponOutcomesTotal counts coupon lookups by result.
	CouponOutcomesTotal *prometheus.CounterVec
	// RulesCacheTotal counts rule-set cache hits and misses.
	RulesCacheTotal *prometheus.CounterVec
	// OrdersPlacedTotal counts persisted orders.
	OrdersPlacedTotal prometheus.Counter
	// SkippedRulesTotal counts malformed rules dropped while building an engine.
	SkippedRulesTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers billing Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BillingCalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_calculations_total",
			Help:      "Count of billing calculations by outcome.",
		}, []string{"result"})
		BillingCalculationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "billing_calculation_duration_ms",
			Help:      "Latency of billing calculations in milliseconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		})
		CouponOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_outcomes_total",
			Help:      "Count of coupon validations and applications by result.",
		}, []string{"result"})
		RulesCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_cache_total",
			Help:      "Rule-set cache lookups by result.",
		}, []string{"result"})
		OrdersPlacedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Total number of orders persisted.",
		})
		SkippedRulesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_rules_skipped_total",
			Help:      "Malformed rules excluded from billing calculations.",
		})

		mustRegisterCollector(reg, BillingCalculationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BillingCalculationsTotal = v
			}
		})
		mustRegisterCollector(reg, BillingCalculationLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				BillingCalculationLatency = v
			}
		})
		mustRegisterCollector(reg, CouponOutcomesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CouponOutcomesTotal = v
			}
		})
		mustRegisterCollector(reg, RulesCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RulesCacheTotal = v
			}
		})
		mustRegisterCollector(reg, OrdersPlacedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				OrdersPlacedTotal = v
			}
		})
		mustRegisterCollector(reg, SkippedRulesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SkippedRulesTotal = v
			}
		})
	})
}

// ObserveCalculation records one engine run. Safe to call before registration.
func ObserveCalculation(result string, took time.Duration, skipped int) {
	if BillingCalculationsTotal != nil {
		BillingCalculationsTotal.WithLabelValues(result).Inc()
	}
	if BillingCalculationLatency != nil {
		BillingCalculationLatency.Observe(DurationMillis(took))
	}
	if SkippedRulesTotal != nil && skipped > 0 {
		SkippedRulesTotal.Add(float64(skipped))
	}
}

// ObserveSkippedRules counts stored rules dropped before reaching the engine.
func ObserveSkippedRules(n int) {
	if SkippedRulesTotal != nil && n > 0 {
		SkippedRulesTotal.Add(float64(n))
	}
}

// ObserveCoupon records a coupon outcome such as "applied", "not_found" or "expired".
func ObserveCoupon(result string) {
	if CouponOutcomesTotal != nil {
		CouponOutcomesTotal.WithLabelValues(result).Inc()
	}
}

// ObserveRulesCache records a cache "hit" or "miss".
func ObserveRulesCache(result string) {
	if RulesCacheTotal != nil {
		RulesCacheTotal.WithLabelValues(result).Inc()
	}
}

// ObserveOrderPlaced increments the placed orders counter.
func ObserveOrderPlaced() {
	if OrdersPlacedTotal != nil {
		OrdersPlacedTotal.Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
