package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Alarm lifecycle metrics
	AlarmsScheduled    prometheus.Counter
	AlarmsCancelled    prometheus.Counter
	ScheduleFailures   prometheus.Counter
	CancelFailures     prometheus.Counter
	RescheduleDuration prometheus.Histogram
	Reschedules        *prometheus.CounterVec

	// Boot/preference rescheduler metrics
	Passes       *prometheus.CounterVec
	PassDuration *prometheus.HistogramVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec
	RedisLatency    *prometheus.HistogramVec
}

// NewMetrics creates and registers all application metrics on reg.
// A nil reg falls back to the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AlarmsScheduled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "scheduled_total",
			Help:      "Total number of alarms accepted by the alarm platform",
		}),
		AlarmsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "cancelled_total",
			Help:      "Total number of alarm cancellations sent to the alarm platform",
		}),
		ScheduleFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "schedule_failures_total",
			Help:      "Total number of doses the alarm platform refused to schedule",
		}),
		CancelFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "cancel_failures_total",
			Help:      "Total number of failed alarm cancellations",
		}),
		RescheduleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "reschedule_duration_seconds",
			Help:      "Time spent rescheduling one medication",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		Reschedules: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "reschedules_total",
			Help:      "Total number of medication reschedules by outcome",
		}, []string{"outcome"}),

		Passes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rescheduler",
			Name:      "passes_total",
			Help:      "Total number of full reschedule passes by trigger",
		}, []string{"trigger", "status"}),
		PassDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rescheduler",
			Name:      "pass_duration_seconds",
			Help:      "Duration of full reschedule passes",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"trigger"}),

		RedisOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "redis_operations_total",
			Help:      "Total number of Redis operations",
		}, []string{"operation", "status"}),
		RedisLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "redis_operation_duration_seconds",
			Help:      "Duration of Redis operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"operation"}),
	}
}

// New builds metrics on a private registry, for tests and tools that must not
// collide with the process-wide default registerer.
func New(namespace string) *Metrics {
	return NewMetrics(namespace, prometheus.NewRegistry())
}
