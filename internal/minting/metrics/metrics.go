package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RequestsCreated       prometheus.Counter
	MintsExecuted         prometheus.Counter
	MintsFailed           *prometheus.CounterVec
	TokenSupplyMicros     prometheus.Gauge
	ReconciliationFlagged prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_mint_requests_created_total",
			Help: "Total mint requests that passed read-only validation",
		}),
		MintsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_mints_executed_total",
			Help: "Total executed mints",
		}),
		MintsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reservemint_mints_failed_total",
			Help: "Total failed mint executions by reason",
		}, []string{"reason"}),
		TokenSupplyMicros: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "reservemint_token_supply_micros",
			Help: "Outstanding minted token supply in micro-units",
		}),
		ReconciliationFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_mints_reconciliation_flagged_total",
			Help: "Total mint records flagged for manual reconciliation",
		}),
	}
}
