// Package executor runs tasks from a dedup queue on a bounded worker pool.
//
// A Pool is either fixed (CoreWorkers == MaxWorkers, long-lived workers that
// block on the queue) or cached (no core workers, extra workers started on
// demand and retired after KeepAlive). Both drain the same queue.Queue, so a
// task key is never executed by two workers at once and duplicate submissions
// are merged instead of run.
//
//	pool, err := executor.NewFixed(4, executor.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer pool.Shutdown(context.Background())
//
//	pool.Go("refresh:/m/0abc", func(ctx context.Context) error {
//		return refresh(ctx, "/m/0abc")
//	})
package executor
