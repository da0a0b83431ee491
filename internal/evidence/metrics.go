package evidence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "beacon_publication_lookups_total",
		Help: "E-utilities publication lookups by outcome",
	},
	[]string{"outcome"},
)
