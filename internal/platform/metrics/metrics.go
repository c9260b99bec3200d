package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	voteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "setvote_vote_requests_total",
		Help: "Vote submissions received, labeled by outcome",
	}, []string{"status"})

	voteRetractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "setvote_vote_retractions_total",
		Help: "Vote retractions received, labeled by outcome",
	}, []string{"status"})

	storeRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "setvote_store_retries_total",
		Help: "Transient tally store failures retried by the admission service",
	})

	applyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "setvote_apply_vote_duration_seconds",
		Help:    "Time spent in the tally store apply transaction",
		Buckets: prometheus.DefBuckets,
	})

	tallyRepairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "setvote_tally_repairs_total",
		Help: "Drifted denormalized counters repaired by the reconciler",
	}, []string{"kind"})

	trendingRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "setvote_trending_refresh_duration_seconds",
		Help:    "Time to recompute trending scores",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveVoteRequest(status string) {
	voteRequestsTotal.WithLabelValues(status).Inc()
}

func ObserveVoteRetraction(status string) {
	voteRetractionsTotal.WithLabelValues(status).Inc()
}

func IncStoreRetry() {
	storeRetriesTotal.Inc()
}

func ObserveApplyDuration(seconds float64) {
	applyDuration.Observe(seconds)
}

func AddTallyRepairs(kind string, n int) {
	if n > 0 {
		tallyRepairsTotal.WithLabelValues(kind).Add(float64(n))
	}
}

func ObserveTrendingRefresh(seconds float64) {
	trendingRefreshDuration.Observe(seconds)
}
