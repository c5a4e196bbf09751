package taskmgr

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/taskmgr/internal/testutil"
	"github.com/vnykmshr/taskmgr/pkg/metrics"
	"github.com/vnykmshr/taskmgr/pkg/scheduling/tasktime"
)

func TestManagerMetrics(t *testing.T) {
	cfg := metrics.Config{Enabled: true, Registry: prometheus.NewRegistry(), Namespace: "tmtest"}
	clk := testutil.NewManualClock()
	m, err := New(Config{
		Name:     "metered",
		Capacity: 2,
		Clock:    clk,
		Idler:    testutil.NewAdvancingIdler(clk),
		Metrics:  cfg,
	})
	testutil.AssertNoError(t, err)

	_, err = m.ScheduleFixedRate(1, Func(func() {}), tasktime.Millis)
	testutil.AssertNoError(t, err)
	_, err = m.Execute(Func(func() { panic("metered") }))
	testutil.AssertNoError(t, err)
	_, err = m.Execute(Func(func() {}))
	testutil.AssertError(t, err)

	testutil.AssertNoError(t, m.RunForBudget(3000))

	reg := metrics.NewRegistry(cfg)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.TasksScheduled.WithLabelValues("metered", "func")), 2.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.TasksExecuted.WithLabelValues("metered", "func")), 4.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.TasksFailed.WithLabelValues("metered")), 1.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.PoolExhausted.WithLabelValues("metered")), 1.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.SlotsInUse.WithLabelValues("metered")), 1.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.SlotsCapacity.WithLabelValues("metered")), 2.0)
	if promtestutil.ToFloat64(reg.Wakeups.WithLabelValues("metered")) < 1 {
		t.Error("expected wakeups to be counted")
	}
}

func TestManagerMetricsDisabled(t *testing.T) {
	m := newFixture(t, 1).m
	if m.metrics != nil {
		t.Fatal("metrics should be nil when disabled")
	}
	// nil receivers are safe
	m.metrics.taskScheduled(kindFunc, 1)
	m.metrics.exhausted()
}
