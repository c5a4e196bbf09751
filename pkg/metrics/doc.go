// Package metrics provides Prometheus instrumentation for taskmgr components.
//
// # Quick Start
//
// Enable metrics through the component configuration:
//
//	mgr, err := taskmgr.New(taskmgr.Config{
//		Name:     "main_loop",
//		Capacity: 32,
//		Metrics:  metrics.DefaultConfig(),
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation:
//
//	registry := prometheus.NewRegistry()
//	cfg := metrics.Config{
//		Enabled:  true,
//		Registry: registry,
//	}
//
// Several schedulers may share one registry; they are told apart by the
// scheduler_name label.
//
// # Available Metrics
//
// ## Scheduler Metrics
//
//   - taskmgr_scheduler_tasks_scheduled_total: Tasks and events registered, by kind
//   - taskmgr_scheduler_tasks_executed_total: Callbacks executed, by kind
//   - taskmgr_scheduler_tasks_failed_total: Callbacks that panicked
//   - taskmgr_scheduler_tasks_cancelled_total: Tasks cancelled
//   - taskmgr_scheduler_pool_exhausted_total: Schedule calls rejected for lack of a slot
//   - taskmgr_scheduler_clock_anomalies_total: Backwards clock readings
//   - taskmgr_scheduler_wakeups_total: Cross-context wake requests observed by the engine
//   - taskmgr_scheduler_slots_in_use: Allocated slots
//   - taskmgr_scheduler_slots_capacity: Total slots
//   - taskmgr_scheduler_task_duration_seconds: Callback execution time
//
// ## Trigger Bridge Metrics
//
//   - taskmgr_trigger_messages_total: Messages delivered to bound events
//   - taskmgr_trigger_dropped_total: Messages for channels without a binding
//
// # Labels
//
//   - scheduler_name: User-provided name for the scheduler instance
//   - kind: "func", "exec" or "event"
//   - bridge_name: User-provided name for a trigger bridge
//   - channel: Pub/sub channel a trigger arrived on
package metrics
