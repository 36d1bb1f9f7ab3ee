package obs

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// RewardSpinTotal counts lucky wheel spins by outcome.
	RewardSpinTotal *prometheus.CounterVec
	// RewardSpinDuration records spin latency in seconds.
	RewardSpinDuration prometheus.Histogram
	// RewardGrantTotal counts wallet grant attempts by outcome.
	RewardGrantTotal *prometheus.CounterVec
	// VoucherCacheTotal counts voucher catalog cache lookups.
	VoucherCacheTotal *prometheus.CounterVec
	// ShippingQuoteTotal counts shipping quotes split by whether the address resolved.
	ShippingQuoteTotal *prometheus.CounterVec
	// CheckoutSummaryTotal counts checkout summaries by voucher outcome.
	CheckoutSummaryTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		RewardSpinTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_spin_total",
			Help:      "Count of lucky wheel spins by outcome.",
		}, []string{"result"})
		RewardSpinDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reward_spin_duration_seconds",
			Help:      "Latency of lucky wheel spins, lock wait included.",
			Buckets:   defaultLatencyBuckets,
		})
		RewardGrantTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_grant_total",
			Help:      "Count of wallet grant outcomes.",
		}, []string{"result"})
		VoucherCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_cache_total",
			Help:      "Voucher catalog cache lookups by result.",
		}, []string{"result"})
		ShippingQuoteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_quote_total",
			Help:      "Count of shipping quotes by address resolution.",
		}, []string{"resolved"})
		CheckoutSummaryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_summary_total",
			Help:      "Count of checkout summaries by voucher outcome.",
		}, []string{"voucher"})

		RewardSpinTotal = register(reg, RewardSpinTotal)
		RewardSpinDuration = register(reg, RewardSpinDuration)
		RewardGrantTotal = register(reg, RewardGrantTotal)
		VoucherCacheTotal = register(reg, VoucherCacheTotal)
		ShippingQuoteTotal = register(reg, ShippingQuoteTotal)
		CheckoutSummaryTotal = register(reg, CheckoutSummaryTotal)
	})
}

// ObserveSpin records a spin outcome. Safe to call before registration.
func ObserveSpin(result string, elapsed time.Duration) {
	if RewardSpinTotal != nil {
		RewardSpinTotal.WithLabelValues(result).Inc()
	}
	if RewardSpinDuration != nil && elapsed >= 0 {
		RewardSpinDuration.Observe(elapsed.Seconds())
	}
}

// ObserveGrant records a wallet grant outcome.
func ObserveGrant(result string) {
	if RewardGrantTotal != nil {
		RewardGrantTotal.WithLabelValues(result).Inc()
	}
}

// ObserveVoucherCache records a catalog cache hit or miss.
func ObserveVoucherCache(hit bool) {
	if VoucherCacheTotal == nil {
		return
	}
	if hit {
		VoucherCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	VoucherCacheTotal.WithLabelValues("miss").Inc()
}

// ObserveShippingQuote records whether the quoted address resolved to a coordinate.
func ObserveShippingQuote(resolved bool) {
	if ShippingQuoteTotal != nil {
		ShippingQuoteTotal.WithLabelValues(strconv.FormatBool(resolved)).Inc()
	}
}

// ObserveCheckoutSummary records the voucher outcome of a checkout summary.
func ObserveCheckoutSummary(voucher string) {
	if CheckoutSummaryTotal != nil {
		CheckoutSummaryTotal.WithLabelValues(voucher).Inc()
	}
}
