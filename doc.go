/*
Package taskmgr provides a cooperative, fixed-capacity task scheduler for Go.

Scheduling (pkg/scheduling):
  - taskmgr: Slot registry, pending queue and execution engine
  - tasktime: Wraparound-safe arithmetic over 32-bit clock counters
  - cronevent: Cron expressions as pollable events

Triggers (pkg/trigger):
  - redistrigger: Wake events from other processes over Redis pub/sub

Support:
  - clock: Clock counters and idle primitives
  - logging: zerolog setup and log throttling
  - metrics: Prometheus instrumentation

Example usage:

	import (
		"github.com/vnykmshr/taskmgr/pkg/scheduling/taskmgr"
		"github.com/vnykmshr/taskmgr/pkg/scheduling/tasktime"
	)

	m := taskmgr.MustNew(taskmgr.Config{Capacity: 16})
	m.ScheduleFixedRate(10, taskmgr.Func(poll), tasktime.Millis)
	m.ScheduleOnce(2, taskmgr.Func(report), tasktime.Seconds)

	if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
*/
package taskmgr
