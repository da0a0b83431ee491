package namespace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	contractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_identifier_contractions_total",
			Help: "URI contractions by outcome",
		},
		[]string{"outcome"},
	)

	expansionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_identifier_expansions_total",
			Help: "CURIE expansions by outcome",
		},
		[]string{"outcome"},
	)

	caseCorrectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_identifier_case_corrections_total",
			Help: "CURIE prefixes rewritten to the casing stored in the graph",
		},
	)

	caseMapBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_case_map_builds_total",
			Help: "Case map scans of the graph store by result",
		},
		[]string{"result"},
	)

	prefixMappings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_prefix_mappings",
			Help: "URI prefixes currently known to the normalizer",
		},
	)
)
