package taskmgr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/taskmgr/pkg/metrics"
)

// schedulerMetrics holds label children resolved once at construction so the
// pump never does a label lookup.
type schedulerMetrics struct {
	scheduled      [kindEvent + 1]prometheus.Counter
	executed       [kindEvent + 1]prometheus.Counter
	failed         prometheus.Counter
	cancelled      prometheus.Counter
	poolExhausted  prometheus.Counter
	clockAnomalies prometheus.Counter
	wakeups        prometheus.Counter
	slotsInUse     prometheus.Gauge
	duration       prometheus.Observer
}

func newSchedulerMetrics(cfg metrics.Config, name string, capacity int) *schedulerMetrics {
	if !cfg.Enabled {
		return nil
	}
	reg := metrics.NewRegistry(cfg)

	m := &schedulerMetrics{
		failed:         reg.TasksFailed.WithLabelValues(name),
		cancelled:      reg.TasksCancelled.WithLabelValues(name),
		poolExhausted:  reg.PoolExhausted.WithLabelValues(name),
		clockAnomalies: reg.ClockAnomalies.WithLabelValues(name),
		wakeups:        reg.Wakeups.WithLabelValues(name),
		slotsInUse:     reg.SlotsInUse.WithLabelValues(name),
		duration:       reg.TaskExecutionDuration.WithLabelValues(name),
	}
	for _, k := range []callbackKind{kindFunc, kindExec, kindEvent} {
		m.scheduled[k] = reg.TasksScheduled.WithLabelValues(name, k.String())
		m.executed[k] = reg.TasksExecuted.WithLabelValues(name, k.String())
	}
	reg.SlotsCapacity.WithLabelValues(name).Set(float64(capacity))
	return m
}

func (m *schedulerMetrics) taskScheduled(kind callbackKind, used int) {
	if m == nil {
		return
	}
	m.scheduled[kind].Inc()
	m.slotsInUse.Set(float64(used))
}

func (m *schedulerMetrics) taskExecuted(kind callbackKind, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.executed[kind].Inc()
	m.duration.Observe(d.Seconds())
	if failed {
		m.failed.Inc()
	}
}

func (m *schedulerMetrics) slotFreed(used int) {
	if m == nil {
		return
	}
	m.slotsInUse.Set(float64(used))
}

func (m *schedulerMetrics) taskCancelled() {
	if m != nil {
		m.cancelled.Inc()
	}
}

func (m *schedulerMetrics) exhausted() {
	if m != nil {
		m.poolExhausted.Inc()
	}
}

func (m *schedulerMetrics) clockAnomaly() {
	if m != nil {
		m.clockAnomalies.Inc()
	}
}

func (m *schedulerMetrics) wokeUp(n uint32) {
	if m != nil && n > 0 {
		m.wakeups.Add(float64(n))
	}
}
