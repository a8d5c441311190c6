package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(guardBlocksTotal, submissionsTotal) }

var guardBlocksTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "guard_blocks_total",
		Help: "Submissions rejected by the banned-word guard.",
	},
)

var submissionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "submissions_total",
		Help: "Interaction submissions, labeled by outcome.",
	},
	[]string{"outcome"}, // 'accepted', 'validation', 'policy', 'bind'
)

func IncGuardBlock() { guardBlocksTotal.Inc() }

func IncSubmission(outcome string) {
	submissionsTotal.WithLabelValues(norm(outcome)).Inc()
}
