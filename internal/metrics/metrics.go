package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "feedforward"

var (
	routesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_total",
			Help:      "Themes routed through the orphan matcher, partitioned by result.",
		},
		[]string{"result"},
	)

	reviewDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_decisions_total",
			Help:      "PM review gate decisions, partitioned by decision and whether the safe default was taken.",
		},
		[]string{"decision", "defaulted"},
	)

	reviewDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "review_seconds",
			Help:      "PM review call latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)

	graduationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graduations_total",
			Help:      "Orphans graduated into stories, partitioned by trigger.",
		},
		[]string{"trigger"},
	)

	sweepFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Per-orphan failures during graduation sweeps.",
		},
	)

	sweepDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_seconds",
			Help:      "Graduation sweep latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	activeOrphans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_orphans",
			Help:      "Active orphans seen by the most recent sweep.",
		},
	)
)

// Register attaches feedforward collectors to reg.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		routesTotal,
		reviewDecisionsTotal,
		reviewDurationSeconds,
		graduationsTotal,
		sweepFailuresTotal,
		sweepDurationSeconds,
		activeOrphans,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveRoute(result string) {
	routesTotal.WithLabelValues(result).Inc()
}

// ObserveReview records one gate evaluation.
func ObserveReview(decision string, defaulted bool, duration time.Duration) {
	label := "false"
	if defaulted {
		label = "true"
	}
	reviewDecisionsTotal.WithLabelValues(decision, label).Inc()
	if duration < 0 {
		duration = 0
	}
	reviewDurationSeconds.Observe(duration.Seconds())
}

// ObserveGraduation counts a graduation; trigger is "route", "sweep" or "split".
func ObserveGraduation(trigger string) {
	graduationsTotal.WithLabelValues(trigger).Inc()
}

func ObserveSweep(duration time.Duration, active, failures int) {
	if duration < 0 {
		duration = 0
	}
	sweepDurationSeconds.Observe(duration.Seconds())
	activeOrphans.Set(float64(active))
	sweepFailuresTotal.Add(float64(failures))
}
