package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/steveyegge/mergeq/internal/events"
	"github.com/steveyegge/mergeq/internal/executor"
)

// errExit signals the loop to stop after an exit command
var errExit = errors.New("exit")

// REPL is an interactive shell for submitting work to a pool and watching
// how duplicates merge
type REPL struct {
	pool     *executor.Pool
	recorder *events.Recorder
	out      io.Writer
	rl       *readline.Instance
	ctx      context.Context
	commands map[string]CommandHandler
	names    []string
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Pool *executor.Pool

	// Recorder backs the 'events' command. Optional.
	Recorder *events.Recorder

	// Out receives command output. Defaults to stdout.
	Out io.Writer
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		pool:     cfg.Pool,
		recorder: cfg.Recorder,
		out:      &syncWriter{w: out},
		ctx:      context.Background(),
		commands: make(map[string]CommandHandler),
	}

	// Register built-in commands
	r.registerCommands()

	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	// Create readline instance
	cyan := color.New(color.FgCyan).SprintFunc()
	prompt := cyan("mergeq> ")

	items := make([]readline.PrefixCompleterInterface, 0, len(r.names))
	for _, name := range r.names {
		items = append(items, readline.PcItem(name))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		AutoComplete:      readline.NewPrefixCompleter(items...),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            r.out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.rl = rl

	// Print welcome message
	r.printWelcome()

	// Main loop
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				// Ctrl+C - just show prompt again
				continue
			} else if err == io.EOF {
				// Ctrl+D - exit
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		if err := r.processInput(line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// processInput processes a single line of input
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return nil
	}

	command := parts[0]
	args := parts[1:]

	if handler, ok := r.commands[command]; ok {
		return handler(args)
	}
	return fmt.Errorf("unknown command %q, type 'help' for available commands", command)
}

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	register := func(handler CommandHandler, names ...string) {
		for _, name := range names {
			r.commands[name] = handler
			r.names = append(r.names, name)
		}
	}
	register(r.cmdHelp, "help", "?")
	register(r.cmdExit, "exit", "quit")
	register(r.cmdSubmit, "submit")
	register(r.cmdBurst, "burst")
	register(r.cmdPending, "pending")
	register(r.cmdRemove, "remove")
	register(r.cmdClear, "clear")
	register(r.cmdDrain, "drain")
	register(r.cmdStatus, "status")
	register(r.cmdEvents, "events")
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("mergeq shell"))
	fmt.Fprintf(r.out, "Pool: %s\n", r.pool.Config())
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}

// cmdHelp shows help information
func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"submit <key> [duration] [note]", "Submit a task that sleeps for duration (default 1s)"},
		{"burst <key> <n> [duration]", "Submit n copies of one task back to back"},
		{"pending", "List pending tasks in claim order"},
		{"remove <key>", "Remove a pending task"},
		{"clear", "Remove all pending tasks"},
		{"drain [max]", "Take pending tasks out of the queue without running them"},
		{"status", "Show pool counters"},
		{"events [n]", "Show the last n lifecycle events (default 10)"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the shell"},
	}
	for _, cmd := range commands {
		fmt.Fprintf(r.out, "  %-32s %s\n", green(cmd.name), cmd.desc)
	}
	fmt.Fprintln(r.out)
	return nil
}

// cmdExit exits the REPL
func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	return errExit
}

// syncWriter serializes writes from the prompt loop and from task callbacks
// running on pool workers
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
