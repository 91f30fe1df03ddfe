package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	InjectionsInitiated prometheus.Counter
	InjectionsRejected  *prometheus.CounterVec
	InjectionsCancelled prometheus.Counter
	InjectedMicros      prometheus.Counter
	WindowUsedMicros    prometheus.Gauge
	BreakerTrips        prometheus.Counter
	BreakerOpen         prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		InjectionsInitiated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_injections_initiated_total",
			Help: "Total injections that completed the initiation pipeline",
		}),
		InjectionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reservemint_injections_rejected_total",
			Help: "Total rejected injection attempts by reason",
		}, []string{"reason"}),
		InjectionsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_injections_cancelled_total",
			Help: "Total injections cancelled before locking",
		}),
		InjectedMicros: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_injected_micros_total",
			Help: "Total value moved into locks in micro-units",
		}),
		WindowUsedMicros: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "reservemint_rate_window_used_micros",
			Help: "Micro-units consumed in the current rate-limit window",
		}),
		BreakerTrips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_circuit_breaker_trips_total",
			Help: "Total circuit breaker trips",
		}),
		BreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "reservemint_circuit_breaker_open",
			Help: "Whether the injection circuit breaker is open (1) or closed (0)",
		}),
	}
}
