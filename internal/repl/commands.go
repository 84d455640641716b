package repl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/steveyegge/mergeq/internal/queue"
	"github.com/steveyegge/mergeq/internal/task"
)

const defaultSleep = time.Second

// sleepTask waits for a while and reports how many submissions it absorbed.
type sleepTask struct {
	task.Base

	key   string
	sleep time.Duration
	out   func(format string, args ...any)

	mu    sync.Mutex
	notes []string
}

func (t *sleepTask) Key() string { return t.key }

func (t *sleepTask) Execute(ctx context.Context) error {
	select {
	case <-time.After(t.sleep):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *sleepTask) Merge(other task.Task) {
	o, ok := other.(*sleepTask)
	if !ok {
		return
	}
	o.mu.Lock()
	notes := o.notes
	o.mu.Unlock()

	t.mu.Lock()
	t.notes = append(t.notes, notes...)
	t.mu.Unlock()
}

func (t *sleepTask) Finish() {
	if t.Cancelled() {
		return
	}
	t.mu.Lock()
	notes := strings.Join(t.notes, ", ")
	t.mu.Unlock()
	green := color.New(color.FgGreen).SprintFunc()
	t.out("%s %s finished [%s]\n", green("✓"), t.key, notes)
}

func (r *REPL) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *REPL) newSleepTask(key string, sleep time.Duration, note string) *sleepTask {
	return &sleepTask{key: key, sleep: sleep, out: r.printf, notes: []string{note}}
}

func parseSleep(args []string, i int) (time.Duration, error) {
	if len(args) <= i {
		return defaultSleep, nil
	}
	d, err := time.ParseDuration(args[i])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", args[i], err)
	}
	return d, nil
}

// submitOne hands t to the pool and says whether it was queued or merged
func (r *REPL) submitOne(t *sleepTask) error {
	if err := r.pool.Submit(t); err != nil {
		return err
	}
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	if t.Cancelled() {
		r.printf("%s %s merged into existing task\n", yellow("≈"), t.key)
	} else {
		r.printf("%s %s queued\n", cyan("+"), t.key)
	}
	return nil
}

// cmdSubmit submits one task
func (r *REPL) cmdSubmit(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: submit <key> [duration] [note]")
	}
	sleep, err := parseSleep(args, 1)
	if err != nil {
		return err
	}
	note := "submit"
	if len(args) > 2 {
		note = strings.Join(args[2:], " ")
	}
	return r.submitOne(r.newSleepTask(args[0], sleep, note))
}

// cmdBurst submits n copies of one task
func (r *REPL) cmdBurst(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: burst <key> <n> [duration]")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 1 {
		return fmt.Errorf("invalid count %q", args[1])
	}
	sleep, err := parseSleep(args, 2)
	if err != nil {
		return err
	}
	for i := 1; i <= n; i++ {
		if err := r.submitOne(r.newSleepTask(args[0], sleep, fmt.Sprintf("#%d", i))); err != nil {
			return err
		}
	}
	return nil
}

// cmdPending lists pending tasks
func (r *REPL) cmdPending(args []string) error {
	pending := r.pool.Queue().Snapshot()
	if len(pending) == 0 {
		gray := color.New(color.FgHiBlack).SprintFunc()
		r.printf("  %s\n", gray("No pending tasks"))
		return nil
	}
	for i, t := range pending {
		r.printf("  %2d. %s\n", i+1, t.Key())
	}
	return nil
}

// cmdRemove removes a pending task by key
func (r *REPL) cmdRemove(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: remove <key>")
	}
	if !r.pool.Queue().Remove(task.NewFunc(args[0], nil)) {
		return fmt.Errorf("%s is not pending", args[0])
	}
	r.printf("  removed %s\n", args[0])
	return nil
}

// cmdClear removes all pending tasks
func (r *REPL) cmdClear(args []string) error {
	n := r.pool.Queue().Len()
	r.pool.Queue().Clear()
	r.printf("  cleared %d pending task(s)\n", n)
	return nil
}

// cmdDrain takes pending tasks out of the queue without running them
func (r *REPL) cmdDrain(args []string) error {
	max := -1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid max %q", args[0])
		}
		max = n
	}
	var batch queue.Batch
	n, err := r.pool.Queue().DrainTo(&batch, max)
	if err != nil {
		return err
	}
	keys := make([]string, 0, n)
	for _, t := range batch.Tasks {
		keys = append(keys, t.Key())
	}
	r.printf("  drained %d task(s): %s\n", n, strings.Join(keys, ", "))
	return nil
}

// cmdStatus shows pool counters
func (r *REPL) cmdStatus(args []string) error {
	s := r.pool.Stats()
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	r.printf("\n%s\n\n", cyan("Pool Status"))
	r.printf("  Workers:   %d live, %d idle, %d busy (peak %d)\n", s.Workers, s.IdleWorkers, s.BusyWorkers, s.PeakWorkers)
	r.printf("  Queue:     %d pending, %d running\n", s.Pending, s.Running)
	r.printf("  %s %d  %s %d  %s %d\n",
		green("Executed:"), s.Executed, yellow("Merged:"), s.Merged, yellow("Skipped:"), s.Skipped)
	r.printf("  %s %d  (panics %d)\n\n", red("Failed:"), s.Failed, s.Panics)
	return nil
}

// cmdEvents shows recent lifecycle events
func (r *REPL) cmdEvents(args []string) error {
	if r.recorder == nil {
		return fmt.Errorf("event recording is off")
	}
	n := 10
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return fmt.Errorf("invalid count %q", args[0])
		}
		n = v
	}
	all := r.recorder.Events()
	if len(all) > n {
		all = all[len(all)-n:]
	}
	gray := color.New(color.FgHiBlack).SprintFunc()
	for _, e := range all {
		r.printf("  %s %-15s %s\n", gray(e.Timestamp.Format("15:04:05.000")), e.Type, e.Message)
	}
	return nil
}
