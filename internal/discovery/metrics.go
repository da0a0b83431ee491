package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	discoveryBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_discovery_batches_total",
			Help: "Identifier batches processed by prefix discovery",
		},
	)

	discoverySkipped = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_discovery_skipped_identifiers",
			Help: "Identifiers the current discovery run could not contract",
		},
	)
)
