package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsProcessedTotal, queueDepth, purgeDeletedTotal) }

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "render_jobs_processed_total",
		Help: "Total number of render jobs processed, labeled by status and kind.",
	},
	[]string{"status", "kind"}, // status: 'completed', 'failed'; kind: 'generation', 'upscale'
)

var queueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "render_queue_depth",
		Help: "Number of jobs waiting in the in-process queue.",
	},
)

var purgeDeletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "purge_deleted_total",
		Help: "Rows deleted by the retention purge, labeled by table.",
	},
	[]string{"table"}, // 'jobs', 'upscale_jobs'
)

func IncJob(status, kind string) {
	jobsProcessedTotal.WithLabelValues(norm(status), norm(kind)).Inc()
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func AddPurged(jobs, upscales int) {
	purgeDeletedTotal.WithLabelValues("jobs").Add(float64(jobs))
	purgeDeletedTotal.WithLabelValues("upscale_jobs").Add(float64(upscales))
}
