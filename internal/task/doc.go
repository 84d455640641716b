// Package task defines the unit of work scheduled by the dedup queue.
//
// A Task has an identity (Key), an execution step, a merge step and a
// completion step. The queue treats tasks with equal keys as the same logical
// work: a task is never running twice at once, and duplicates submitted while
// a matching task is pending or running are merged into it instead of running
// separately.
//
// Implementations embed Base, which makes them pointer types. The queue relies
// on that: it compares task values to tell "same instance" from "same key".
//
//	type refresh struct {
//	    task.Base
//	    album string
//	    reasons []string
//	}
//
//	func (r *refresh) Key() string { return "album:" + r.album }
//	func (r *refresh) Merge(other task.Task) {
//	    r.reasons = append(r.reasons, other.(*refresh).reasons...)
//	}
package task
