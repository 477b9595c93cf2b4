package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ECCCFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stanhopewx_eccc_fetches_total",
			Help: "Total ECCC monthly archive fetches",
		},
		[]string{"result"},
	)

	ECCCFetchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stanhopewx_eccc_fetch_latency_seconds",
			Help:    "ECCC archive fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FilesLoadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stanhopewx_files_loaded_total",
			Help: "Total local CSV files loaded",
		},
		[]string{"result"},
	)

	RowsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stanhopewx_rows_ingested_total",
			Help: "Total observation rows ingested into the cleaned table",
		},
		[]string{"station"},
	)

	ValuesImputedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stanhopewx_values_imputed_total",
			Help: "Total values filled by the imputation engine",
		},
		[]string{"variable", "tier"},
	)

	BoundsViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stanhopewx_bounds_violations_total",
			Help: "Total values outside physical bounds",
		},
		[]string{"variable"},
	)

	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stanhopewx_pipeline_runs_total",
			Help: "Total pipeline runs by outcome",
		},
		[]string{"result"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stanhopewx_pipeline_duration_seconds",
			Help:    "End-to-end pipeline duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)
