// Package commandqueue provides lane-based task execution with FIFO ordering per lane.
//
// Invariants:
// - Tasks in the same lane execute in FIFO order.
// - Tasks in different lanes may execute concurrently.
// - Session lanes run with concurrency 1 so turns for one session never interleave.
//
// Usage:
//
//	queue := commandqueue.New()
//	defer queue.Close()
//	result, err := queue.Enqueue(commandqueue.SessionLane("abc"), func(ctx context.Context) (interface{}, error) {
//		return "ok", nil
//	})
package commandqueue
