package resilience

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// BreakerState reports 0 for closed, 1 for open and 2 for half-open.
	BreakerState *prometheus.GaugeVec
	// BreakerTransitions counts state changes per dependency.
	BreakerTransitions *prometheus.CounterVec

	registerOnce sync.Once
)

// MustRegisterMetrics registers the breaker collectors once. A nil registerer
// uses the default Prometheus registry.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current breaker state: 0=closed,1=open,2=half-open.",
		}, []string{"dependency"})
		transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transition_total",
			Help:      "Breaker state transitions.",
		}, []string{"dependency", "from", "to"})
		BreakerState = mustRegister(reg, state)
		BreakerTransitions = mustRegister(reg, transitions)
	})
}

func mustRegister[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func observeTransition(dependency string, from, to State) {
	if BreakerState != nil {
		BreakerState.WithLabelValues(dependency).Set(float64(to))
	}
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(dependency, from.String(), to.String()).Inc()
	}
}
