// Package integration contains integration tests that verify cross-package functionality.
// These tests ensure that different components work together correctly in realistic scenarios.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/taskmgr/internal/testutil"
	tmerrors "github.com/vnykmshr/taskmgr/pkg/common/errors"
	"github.com/vnykmshr/taskmgr/pkg/logging"
	"github.com/vnykmshr/taskmgr/pkg/metrics"
	"github.com/vnykmshr/taskmgr/pkg/scheduling/cronevent"
	"github.com/vnykmshr/taskmgr/pkg/scheduling/taskmgr"
	"github.com/vnykmshr/taskmgr/pkg/scheduling/tasktime"
)

// syncBuffer lets the logger write while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Lines() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(s.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			out = append(out, entry)
		}
	}
	return out
}

// TestFaultsAreLoggedAndCounted verifies that a panicking task is reported
// through the structured logger, the metrics registry and OnError while other
// tasks keep running on a real clock.
func TestFaultsAreLoggedAndCounted(t *testing.T) {
	var logs syncBuffer
	logger := logging.New(logging.Config{Level: "debug", Output: &logs})
	mcfg := metrics.Config{Enabled: true, Registry: prometheus.NewRegistry(), Namespace: "integration"}

	var faults atomic.Int32
	m, err := taskmgr.New(taskmgr.Config{
		Name:     "faulty",
		Capacity: 4,
		Logger:   &logger,
		Metrics:  mcfg,
		OnError: func(err error) {
			if errors.Is(err, tmerrors.ErrCallbackFault) {
				faults.Add(1)
			}
		},
	})
	testutil.AssertNoError(t, err)

	var ticks int32
	_, err = m.ScheduleFixedRate(2, taskmgr.Func(func() { atomic.AddInt32(&ticks, 1) }), tasktime.Millis)
	testutil.AssertNoError(t, err)
	_, err = m.ScheduleOnce(5, taskmgr.Func(func() { panic("integration") }), tasktime.Millis)
	testutil.AssertNoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = m.Run(ctx)

	testutil.AssertEqual(t, faults.Load(), int32(1))
	if atomic.LoadInt32(&ticks) < 10 {
		t.Errorf("ticker ran %d times in 100ms", ticks)
	}

	var sawFault bool
	for _, entry := range logs.Lines() {
		if entry["message"] == "task callback panicked" {
			sawFault = true
			testutil.AssertEqual(t, entry["level"], interface{}("error"))
			testutil.AssertEqual(t, entry["component"], interface{}("taskmgr"))
		}
	}
	if !sawFault {
		t.Error("fault was not logged")
	}

	reg := metrics.NewRegistry(mcfg)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.TasksFailed.WithLabelValues("faulty")), 1.0)
}

// TestConfigDrivenManagerWithCron loads a YAML configuration, builds a
// manager from it and drives a cron event on simulated time.
func TestConfigDrivenManagerWithCron(t *testing.T) {
	fc, err := taskmgr.ParseConfig([]byte(`
name: cron-host
capacity: 3
min_poll: 1ms
log:
  level: disabled
`))
	testutil.AssertNoError(t, err)
	cfg, err := fc.Config()
	testutil.AssertNoError(t, err)

	clk := testutil.NewManualClock()
	wall := time.Date(2024, 6, 1, 11, 59, 0, 0, time.UTC)
	idler := testutil.NewAdvancingIdler(clk)
	idler.OnIdle = func(us uint32) { wall = wall.Add(time.Duration(us) * time.Microsecond) }
	cfg.Clock, cfg.Idler = clk, idler

	m, err := taskmgr.New(cfg)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, m.Name(), "cron-host")

	var fired []time.Time
	ev, err := cronevent.New("*/20 * * * * *", taskmgr.ExecFunc(func() { fired = append(fired, wall) }),
		cronevent.WithNow(func() time.Time { return wall }), cronevent.WithLocation(time.UTC))
	testutil.AssertNoError(t, err)
	_, err = m.RegisterEvent(ev)
	testutil.AssertNoError(t, err)

	// three one-shots fill the rest of the pool
	for i := 0; i < 2; i++ {
		_, err := m.ScheduleOnce(uint32(i+1), taskmgr.Func(func() {}), tasktime.Seconds)
		testutil.AssertNoError(t, err)
	}
	_, err = m.ScheduleOnce(3, taskmgr.Func(func() {}), tasktime.Seconds)
	testutil.AssertEqual(t, tmerrors.IsTemporary(err), true)

	testutil.AssertNoError(t, m.RunForBudget(61000000))

	if len(fired) != 3 {
		t.Fatalf("cron fired %d times: %v", len(fired), fired)
	}
	testutil.AssertEqual(t, fired[0], time.Date(2024, 6, 1, 11, 59, 20, 0, time.UTC))
	testutil.AssertEqual(t, fired[2], time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	testutil.AssertEqual(t, m.UsedSlots(), 1)
}

// TestManyProducersOneScheduler verifies that events triggered concurrently
// from many goroutines are each serviced without losing the latest trigger.
func TestManyProducersOneScheduler(t *testing.T) {
	m, err := taskmgr.New(taskmgr.Config{Name: "producers", Capacity: 16})
	testutil.AssertNoError(t, err)

	const producers = 8
	events := make([]*counterEvent, producers)
	for i := range events {
		events[i] = &counterEvent{}
		_, err := m.RegisterEvent(events[i])
		testutil.AssertNoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	var wg sync.WaitGroup
	for i := range events {
		wg.Add(1)
		go func(ev *counterEvent) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ev.sent.Add(1)
				ev.MarkTriggeredAndNotify()
				time.Sleep(100 * time.Microsecond)
			}
		}(events[i])
	}
	wg.Wait()

	for _, ev := range events {
		testutil.Eventually(t, func() bool { return ev.seen.Load() == 50 }, 2*time.Second, time.Millisecond)
	}

	cancel()
	testutil.AssertEqual(t, errors.Is(<-done, context.Canceled), true)
}

// counterEvent consumes everything sent so far each time it runs.
type counterEvent struct {
	taskmgr.BaseEvent
	sent atomic.Int32
	seen atomic.Int32
}

func (e *counterEvent) TimeOfNextCheck() uint32 { return 5000000 }

func (e *counterEvent) Exec() { e.seen.Store(e.sent.Load()) }
