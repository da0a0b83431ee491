package metadata

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "beacon_metadata_cache_requests_total",
		Help: "Metadata lookups by kind and cache result",
	},
	[]string{"kind", "result"},
)
