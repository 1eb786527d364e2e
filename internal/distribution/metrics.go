package distribution

import (
	"time"

	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/bissquit/amber-relay/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	distributionQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "distribution",
			Name:      "units",
			Help:      "Number of distribution units by status",
		},
		[]string{"status"},
	)

	unitsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "distribution",
			Name:      "units_created_total",
			Help:      "Total distribution units created",
		},
		[]string{"channel"},
	)

	unitsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "distribution",
			Name:      "units_processed_total",
			Help:      "Total send attempts by outcome",
		},
		[]string{"channel", "outcome"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "distribution",
			Name:      "send_duration_seconds",
			Help:      "Time to send one distribution unit",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"channel"},
	)

	unitsClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "distribution",
			Name:      "units_claimed_total",
			Help:      "Total units claimed by sweeps. Sum of units_processed_total should match this.",
		},
	)

	auditFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "distribution",
			Name:      "audit_failures_total",
			Help:      "Audit events that could not be recorded",
		},
		[]string{"target"},
	)
)

func recordUnitsCreated(units []*domain.DistributionUnit) {
	for _, u := range units {
		unitsCreated.WithLabelValues(string(u.Channel)).Inc()
	}
}

func recordUnitProcessed(channel domain.Channel, outcome string) {
	unitsProcessed.WithLabelValues(string(channel), outcome).Inc()
}

func recordSendDuration(channel domain.Channel, d time.Duration) {
	sendDuration.WithLabelValues(string(channel)).Observe(d.Seconds())
}

func recordClaimed(count int) {
	unitsClaimed.Add(float64(count))
}

func recordAuditFailure(target string) {
	auditFailures.WithLabelValues(target).Inc()
}

// RecordQueueStats updates unit count metrics.
func RecordQueueStats(stats map[domain.DistributionStatus]int) {
	for _, s := range domain.AllDistributionStatuses {
		distributionQueueSize.WithLabelValues(string(s)).Set(float64(stats[s]))
	}
}
