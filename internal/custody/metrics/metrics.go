package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AccountsCreated   prometheus.Counter
	DepositsRecorded  prometheus.Counter
	DepositedMicros   prometheus.Counter
	ReservedMicros    prometheus.Counter
	ReleasedMicros    prometheus.Counter
	ReservationErrors prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		AccountsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_custody_accounts_created_total",
			Help: "Total custody accounts created",
		}),
		DepositsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_custody_deposits_total",
			Help: "Total deposits recorded against custody accounts",
		}),
		DepositedMicros: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_custody_deposited_micros_total",
			Help: "Total deposited value in micro-units",
		}),
		ReservedMicros: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_custody_reserved_micros_total",
			Help: "Total value reserved for injection in micro-units",
		}),
		ReleasedMicros: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_custody_released_micros_total",
			Help: "Total reserved value released back in micro-units",
		}),
		ReservationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_custody_reservation_errors_total",
			Help: "Total failed reservation attempts",
		}),
	}
}
