package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wdqms_fetch_requests_total",
			Help: "Total WDQMS availability downloads by HTTP status",
		},
		[]string{"variable", "period", "status"},
	)

	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wdqms_fetch_latency_seconds",
			Help:    "WDQMS availability download latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"variable"},
	)

	UnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wdqms_units_total",
			Help: "Ingest units processed by outcome",
		},
		[]string{"outcome"},
	)

	TransmissionsReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wdqms_transmissions_reconciled_total",
			Help: "Transmissions reconciled by variable and outcome (created, updated, unchanged)",
		},
		[]string{"variable", "outcome"},
	)

	StationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wdqms_stations_created_total",
			Help: "Stations created on first sighting",
		},
	)

	AggregateQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wdqms_aggregate_queries_total",
			Help: "Aggregate view queries by view and outcome",
		},
		[]string{"view", "outcome"},
	)
)
