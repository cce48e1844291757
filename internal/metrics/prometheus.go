package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Distribution metrics
	RewardsDistributed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beehive_rewards_distributed_total",
			Help: "Total reward records created by the distribution engine",
		},
		[]string{"status"},
	)

	RewardAmountDistributed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beehive_reward_amount_distributed_cents_total",
			Help: "Total reward amount distributed in cents",
		},
	)

	// Claim metrics
	RewardsClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beehive_rewards_claimed_total",
			Help: "Total rewards successfully claimed",
		},
	)

	ClaimFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beehive_claim_failures_total",
			Help: "Total claim attempts rejected by reason",
		},
		[]string{"reason"},
	)

	// Rollup metrics
	RollupsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beehive_rollups_processed_total",
			Help: "Total expired rewards processed by outcome",
		},
		[]string{"outcome"},
	)

	TimersProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beehive_upgrade_timers_processed_total",
			Help: "Total upgrade timers processed by outcome",
		},
		[]string{"outcome"},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beehive_timeout_sweep_duration_seconds",
			Help:    "Duration of full timeout sweep runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	SweepErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beehive_timeout_sweep_record_errors_total",
			Help: "Total per-record failures during timeout sweeps",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RewardsDistributed,
		RewardAmountDistributed,
		RewardsClaimed,
		ClaimFailures,
		RollupsProcessed,
		TimersProcessed,
		SweepDuration,
		SweepErrors,
	)
}

// StartServer starts the Prometheus metrics HTTP server
func StartServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		_ = srv.ListenAndServe()
	}()

	return srv
}
