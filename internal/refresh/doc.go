// Package refresh turns bursts of user commands into a single fresh read of
// the appliance's state.
//
// A Coordinator debounces triggers and guarantees that a trigger arriving
// mid-refresh is followed by exactly one more refresh. An Executor performs
// that refresh: it queries each state group in turn and publishes every
// snapshot it gets to the group's plain state topic. Groups fail
// independently; the Report says which ones made it.
//
//	exec, _ := refresh.NewExecutor(refresh.ExecutorOptions{...})
//	coord := refresh.NewCoordinator(refresh.Options{Debounce: 600 * time.Millisecond},
//	    func(ctx context.Context) { exec.Run(ctx) })
//	defer coord.Stop()
//
//	coord.Trigger() // from the command topic handler
package refresh
