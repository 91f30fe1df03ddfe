package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EntriesAppended  prometheus.Counter
	EntriesPublished prometheus.Counter
	MintedMicros     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		EntriesAppended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_explorer_entries_appended_total",
			Help: "Total audit entries appended to the explorer",
		}),
		EntriesPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_explorer_entries_published_total",
			Help: "Total audit entries published downstream",
		}),
		MintedMicros: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reservemint_explorer_minted_micros_total",
			Help: "Total minted value recorded in explorer entries, in micro-units",
		}),
	}
}
