// Package metrics provides Prometheus instrumentation for taskmgr components.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metric instances for taskmgr components.
type Registry struct {
	// Task Scheduling Metrics
	TasksScheduled        *prometheus.CounterVec
	TasksExecuted         *prometheus.CounterVec
	TasksFailed           *prometheus.CounterVec
	TasksCancelled        *prometheus.CounterVec
	PoolExhausted         *prometheus.CounterVec
	ClockAnomalies        *prometheus.CounterVec
	Wakeups               *prometheus.CounterVec
	SlotsInUse            *prometheus.GaugeVec
	SlotsCapacity         *prometheus.GaugeVec
	TaskExecutionDuration *prometheus.HistogramVec

	// Trigger Bridge Metrics
	TriggerMessages *prometheus.CounterVec
	TriggerDropped  *prometheus.CounterVec
}

// NewRegistry creates a metrics registry from cfg. Collectors that are
// already registered under the same name are reused, so several components
// may share one Prometheus registerer.
func NewRegistry(cfg Config) *Registry {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels))
	}
	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels))
	}

	return &Registry{
		TasksScheduled: counter("scheduler", "tasks_scheduled_total",
			"Total number of tasks and events registered", "scheduler_name", "kind"),
		TasksExecuted: counter("scheduler", "tasks_executed_total",
			"Total number of callbacks executed", "scheduler_name", "kind"),
		TasksFailed: counter("scheduler", "tasks_failed_total",
			"Total number of callbacks that panicked", "scheduler_name"),
		TasksCancelled: counter("scheduler", "tasks_cancelled_total",
			"Total number of tasks cancelled", "scheduler_name"),
		PoolExhausted: counter("scheduler", "pool_exhausted_total",
			"Total number of schedule calls rejected for lack of a free slot", "scheduler_name"),
		ClockAnomalies: counter("scheduler", "clock_anomalies_total",
			"Total number of backwards clock readings detected", "scheduler_name"),
		Wakeups: counter("scheduler", "wakeups_total",
			"Total number of cross-context wake requests observed", "scheduler_name"),
		SlotsInUse: gauge("scheduler", "slots_in_use",
			"Number of task slots currently allocated", "scheduler_name"),
		SlotsCapacity: gauge("scheduler", "slots_capacity",
			"Total number of task slots", "scheduler_name"),
		TaskExecutionDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "scheduler",
			Name:        "task_duration_seconds",
			Help:        "Time spent executing callbacks",
			ConstLabels: cfg.Labels,
			Buckets:     []float64{.00001, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"scheduler_name"})),

		TriggerMessages: counter("trigger", "messages_total",
			"Total number of trigger messages delivered to events", "bridge_name", "channel"),
		TriggerDropped: counter("trigger", "dropped_total",
			"Total number of trigger messages without a bound event", "bridge_name"),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
