package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	LocksReceived      prometheus.Counter
	SignaturesAccepted prometheus.Counter
	SignaturesRejected *prometheus.CounterVec
	QuorumsReached     prometheus.Counter
	LocksRejected      prometheus.Counter
	ConsumedMicros     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		LocksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_locks_received_total",
			Help: "Total locks created from injections",
		}),
		SignaturesAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_lock_signatures_accepted_total",
			Help: "Total verified quorum signatures recorded on locks",
		}),
		SignaturesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reservemint_lock_signatures_rejected_total",
			Help: "Total rejected signature attempts by reason",
		}, []string{"reason"}),
		QuorumsReached: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_lock_quorums_reached_total",
			Help: "Total locks that reached three-signature quorum",
		}),
		LocksRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_locks_rejected_total",
			Help: "Total locks rejected before reservation",
		}),
		ConsumedMicros: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_lock_consumed_micros_total",
			Help: "Total lock value consumed for minting in micro-units",
		}),
	}
}
