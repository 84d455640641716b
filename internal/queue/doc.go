// Package queue provides a blocking work queue that collapses duplicate tasks.
//
// # Overview
//
// Queue holds two disjoint sets of tasks keyed by task.Task.Key:
//
//   - pending: submitted, not yet claimed by a worker
//   - running: claimed, not yet finished
//
// Submitting a task whose key is already pending or running merges the new
// task into the existing one (existing.Merge(new)) and cancels the new one,
// instead of queueing a second copy. A key is therefore never running twice
// at once, and redundant submissions are absorbed.
//
// # Lifecycle
//
//	Submit ──► pending ──Take/Poll──► running ──Prepare──► Execute ──Finish──► released
//	   │                                  ▲
//	   └── duplicate key: Merge + Cancel ─┘
//
// Prepare and Finish are hooks for the executor: Prepare re-checks for a
// duplicate that raced the claim, and Finish removes the task from running
// before invoking its completion callback.
//
// # Concurrency
//
// One mutex guards both sets; one broadcast condition wakes consumers.
// Take and Poll are the only blocking operations. Poll keeps a fixed
// monotonic deadline and re-waits only for the remaining time after a
// wakeup that did not yield a task.
//
// # Ordering
//
// Pending tasks are claimed FIFO by default. WithOrder(LIFO) claims the most
// recently submitted task first.
package queue
