package taskmgr

import (
	"strconv"
	"testing"

	"github.com/vnykmshr/taskmgr/internal/testutil"
	"github.com/vnykmshr/taskmgr/pkg/scheduling/tasktime"
)

func BenchmarkScheduleAndRun(b *testing.B) {
	clk := testutil.NewManualClock()
	m := MustNew(Config{Capacity: 64, Clock: clk, Idler: testutil.NewAdvancingIdler(clk)})
	cb := Func(func() {})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Execute(cb); err != nil {
			b.Fatal(err)
		}
		if err := m.RunForBudget(0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkScheduleCancel(b *testing.B) {
	clk := testutil.NewManualClock()
	m := MustNew(Config{Capacity: 64, Clock: clk, Idler: testutil.NewAdvancingIdler(clk)})
	cb := Func(func() {})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id, err := m.ScheduleOnce(10, cb, tasktime.Millis)
		if err != nil {
			b.Fatal(err)
		}
		_ = m.CancelTask(id)
		_ = m.RunForBudget(0)
	}
}

func BenchmarkFullQueueInsert(b *testing.B) {
	for _, capacity := range []int{16, 256} {
		b.Run("capacity="+strconv.Itoa(capacity), func(b *testing.B) {
			clk := testutil.NewManualClock()
			m := MustNew(Config{Capacity: capacity, Clock: clk, Idler: testutil.NewAdvancingIdler(clk)})
			for i := 0; i < capacity-1; i++ {
				_, _ = m.ScheduleOnce(uint32(i+1)*10, Func(func() {}), tasktime.Micros)
			}
			cb := Func(func() {})

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				id, _ := m.ScheduleOnce(uint32(i%capacity)*10, cb, tasktime.Micros)
				_ = m.CancelTask(id)
				_ = m.RunForBudget(0)
			}
		})
	}
}

func BenchmarkTrigger(b *testing.B) {
	ev := &pollEvent{interval: 1000}
	m := MustNew(Config{Capacity: 2, Idler: clockSpin{}})
	if _, err := m.RegisterEvent(ev); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ev.MarkTriggeredAndNotify()
		}
	})
}
