/*
Package scheduling groups the cooperative scheduler and its helpers:

  - taskmgr: Fixed pool of task slots executed from a single goroutine
  - tasktime: Time units and signed differences over wrapping counters
  - cronevent: Cron-driven events for taskmgr

Cooperative Scheduler:

Every callback runs on the goroutine that pumps the manager:

	m := taskmgr.MustNew(taskmgr.Config{Capacity: 8})

	// run once in 250ms
	m.ScheduleOnce(250, taskmgr.Func(blink), tasktime.Millis)

	// run every second until cancelled
	id, _ := m.ScheduleFixedRate(1, taskmgr.Func(heartbeat), tasktime.Seconds)
	defer m.CancelTask(id)

	for {
		m.RunForBudget(10000)
	}

Cron Events:

	ev, err := cronevent.New("0 9 * * MON-FRI", taskmgr.ExecFunc(report))
	if err != nil {
		return err
	}
	m.RegisterEvent(ev)

Time Units:

Micros delays are tracked on the microsecond counter, which wraps after about
71 minutes; Millis and Seconds use the millisecond counter, which wraps after
about 49 days. Delays longer than tasktime.MaxDelay ticks are clamped.
*/
package scheduling
