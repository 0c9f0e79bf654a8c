package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(pagesProcessedTotal, jobRunsTotal) }

var pagesProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_pages_processed_total",
		Help: "Pages that finished a stage pass, labeled by stage and resulting status.",
	},
	[]string{"stage", "status"},
)

var jobRunsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "pipeline_job_runs_total",
		Help: "Total number of job run triggers accepted.",
	},
)

func IncPage(stage, status string) {
	pagesProcessedTotal.WithLabelValues(stage, status).Inc()
}

func IncJobRun() {
	jobRunsTotal.Inc()
}
