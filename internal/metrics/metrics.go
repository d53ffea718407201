package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Retry
	RetryAttemptsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletops",
		Subsystem: "retry",
		Name:      "failed_attempts_total",
		Help:      "Total failed attempts observed by retry executors",
	}, []string{"retryable"})

	RetryExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walletops",
		Subsystem: "retry",
		Name:      "exhausted_total",
		Help:      "Total operations that failed every permitted attempt",
	})

	// Scheduler
	SchedulerQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "walletops",
		Subsystem: "scheduler",
		Name:      "queue_length",
		Help:      "Operations waiting to be dispatched",
	})

	SchedulerActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "walletops",
		Subsystem: "scheduler",
		Name:      "active_requests",
		Help:      "Operations currently executing",
	})

	SchedulerQueueWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "walletops",
		Subsystem: "scheduler",
		Name:      "queue_wait_seconds",
		Help:      "Time an operation spent queued before dispatch",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// Explorer
	ExplorerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletops",
		Subsystem: "explorer",
		Name:      "calls_total",
		Help:      "Completed explorer HTTP round-trips",
	}, []string{"action"})

	// Batch transfers
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletops",
		Subsystem: "batch",
		Name:      "transfers_total",
		Help:      "Recorded transfer outcomes",
	}, []string{"status", "dry_run"})

	RateLimitCooldowns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walletops",
		Subsystem: "batch",
		Name:      "rate_limit_cooldowns_total",
		Help:      "Cooldowns taken after a provider rate-limit error",
	})
)
