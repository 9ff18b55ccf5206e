package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/steveyegge/ftaudit/internal/exclusions"
	"github.com/steveyegge/ftaudit/internal/records"
	"github.com/steveyegge/ftaudit/internal/session"
	"github.com/steveyegge/ftaudit/internal/types"
)

// REPL is the interactive duplicate explorer. Typing a new threshold
// restarts the match the way dragging a slider would.
type REPL struct {
	session  *session.Session
	index    map[types.PersonID]*types.Record
	rl       *readline.Instance
	ctx      context.Context
	commands map[string]CommandHandler

	outMu       sync.Mutex
	out         io.Writer
	showIgnored bool

	stateMu   sync.Mutex
	threshold int
	maxScore  int
	haveMax   bool
	processed int
	total     int
	consumed  chan struct{} // Closed when the event channel closes
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Session     *session.Session
	Records     []*types.Record
	Threshold   int       // Initial threshold
	ShowIgnored bool      // List ignored pairs in "show"
	Out         io.Writer // Defaults to stdout
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		session:     cfg.Session,
		index:       records.Index(cfg.Records),
		out:         out,
		threshold:   cfg.Threshold,
		showIgnored: cfg.ShowIgnored,
		commands:    make(map[string]CommandHandler),
		ctx:         context.Background(),
	}
	r.registerCommands()
	return r, nil
}

// Attach starts consuming session events. Run calls it; tests call it
// directly and drive the REPL with Execute.
func (r *REPL) Attach(ctx context.Context) {
	r.ctx = ctx
	r.consumed = make(chan struct{})
	go r.consume(r.session.Events(), r.consumed)
}

// Detached returns a channel closed once the event stream has ended
func (r *REPL) Detached() <-chan struct{} {
	return r.consumed
}

// Run starts the REPL loop and an initial run at the configured threshold
func (r *REPL) Run(ctx context.Context) error {
	r.Attach(ctx)

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("ftaudit> "),
		AutoComplete:      r.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "quit",
		HistorySearchFold: true,
		Stdout:            r.out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer func() { _ = rl.Close() }()
	r.rl = rl
	r.setOut(rl.Stdout())

	r.printWelcome()
	if err := r.Execute(fmt.Sprintf("threshold %d", r.currentThreshold())); err != nil {
		r.printError(err)
	}

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				// Ctrl+C cancels the run, the loop keeps going
				r.session.Cancel()
				continue
			} else if err == io.EOF {
				r.printf("\nGoodbye!\n")
				return nil
			}
			return err
		}

		if err := r.Execute(line); err != nil {
			if err == io.EOF {
				return nil
			}
			r.printError(err)
		}
	}
}

// Execute processes a single line of input
func (r *REPL) Execute(line string) error {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return nil
	}

	if handler, ok := r.commands[strings.ToLower(parts[0])]; ok {
		return handler(parts[1:])
	}

	// A bare number is a threshold change
	if _, err := strconv.Atoi(parts[0]); err == nil && len(parts) == 1 {
		return r.cmdThreshold(parts)
	}
	return fmt.Errorf("unknown command %q (try 'help')", parts[0])
}

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["threshold"] = r.cmdThreshold
	r.commands["t"] = r.cmdThreshold
	r.commands["cancel"] = r.cmdCancel
	r.commands["ignore"] = r.cmdIgnore
	r.commands["show"] = r.cmdShow
	r.commands["max"] = r.cmdMax
	r.commands["status"] = r.cmdStatus
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
}

func (r *REPL) completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("threshold"),
		readline.PcItem("cancel"),
		readline.PcItem("ignore"),
		readline.PcItem("show",
			readline.PcItem("all"),
		),
		readline.PcItem("max"),
		readline.PcItem("status"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// consume turns session events into output until the channel closes
func (r *REPL) consume(events <-chan session.Event, done chan<- struct{}) {
	defer close(done)
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	for ev := range events {
		switch ev.Type {
		case session.EventProgress:
			r.stateMu.Lock()
			r.processed, r.total = ev.Processed, ev.Total
			r.stateMu.Unlock()
		case session.EventMaxScore:
			r.noteMax(ev.MaxScore)
		case session.EventCompleted:
			r.noteMax(ev.Result.MaxScore)
			r.withOut(func(w io.Writer) {
				fmt.Fprintln(w)
				PrintSummary(w, ev.Result)
			})
		case session.EventCancelled:
			r.printf("%s Run at threshold %d cancelled\n", yellow("⚠"), ev.Threshold)
		case session.EventFailed:
			r.printf("%s Run at threshold %d failed: %s\n", red("✗"), ev.Threshold, ev.Reason)
		}
	}
}

func (r *REPL) noteMax(score int) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if !r.haveMax || score > r.maxScore {
		r.maxScore = score
		r.haveMax = true
	}
}

func (r *REPL) currentThreshold() int {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.threshold
}

// cmdThreshold restarts matching at a new threshold
func (r *REPL) cmdThreshold(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: threshold N")
	}
	t, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid threshold %q: %w", args[0], err)
	}

	r.stateMu.Lock()
	r.threshold = t
	r.processed, r.total = 0, 0
	r.stateMu.Unlock()

	if _, err := r.session.Start(r.ctx, t); err != nil {
		return err
	}
	gray := color.New(color.FgHiBlack).SprintFunc()
	r.printf("%s\n", gray(fmt.Sprintf("matching at threshold %d...", t)))
	return nil
}

func (r *REPL) cmdCancel(args []string) error {
	if r.session.State() == session.StateIdle {
		r.printf("Nothing running\n")
		return nil
	}
	r.session.Cancel()
	return nil
}

// cmdIgnore toggles a pair in the exclusion set
func (r *REPL) cmdIgnore(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: ignore ID ID")
	}
	a, b := types.PersonID(args[0]), types.PersonID(args[1])
	for _, id := range []types.PersonID{a, b} {
		if _, ok := r.index[id]; !ok && len(r.index) > 0 {
			return fmt.Errorf("unknown record %s", id)
		}
	}
	pair, err := types.NewPair(a, b)
	if err != nil {
		return err
	}

	excluded, err := r.session.ToggleIgnore(r.ctx, pair)
	if err != nil && !errors.Is(err, exclusions.ErrPersistPending) {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	if excluded {
		r.printf("%s %s marked as not a duplicate\n", green("✓"), pair)
	} else {
		r.printf("%s %s may be a duplicate again\n", green("✓"), pair)
	}
	if err != nil {
		r.printf("%s Not saved yet, retrying in the background: %v\n", yellow("⚠"), err)
	}
	return nil
}

// cmdShow lists the last completed result
func (r *REPL) cmdShow(args []string) error {
	res := r.session.LastCompleted()
	if res == nil {
		r.printf("No completed run yet\n")
		return nil
	}
	showIgnored := r.showIgnored || (len(args) > 0 && args[0] == "all")
	r.withOut(func(w io.Writer) {
		PrintSummary(w, res)
		PrintCandidates(w, res.Candidates, showIgnored)
	})
	return nil
}

func (r *REPL) cmdMax(args []string) error {
	r.stateMu.Lock()
	score, ok := r.maxScore, r.haveMax
	r.stateMu.Unlock()
	if !ok {
		r.printf("No score seen yet\n")
		return nil
	}
	r.printf("Highest score: %d\n", score)
	return nil
}

func (r *REPL) cmdStatus(args []string) error {
	r.stateMu.Lock()
	threshold, processed, total := r.threshold, r.processed, r.total
	r.stateMu.Unlock()

	state := r.session.State()
	if state == session.StateIdle {
		r.printf("Idle at threshold %d (last run: %s)\n", threshold, r.session.LastOutcome())
		return nil
	}
	pct := 0.0
	if total > 0 {
		pct = 100 * float64(processed) / float64(total)
	}
	r.printf("%s at threshold %d: %d/%d pairs (%.0f%%)\n", state, threshold, processed, total, pct)
	return nil
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	r.printf("\n%s\n", cyan("ftaudit explorer"))
	r.printf("%d records loaded. Type a threshold to re-run, 'help' for commands.\n\n", len(r.index))
}

// cmdHelp shows help information
func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	commands := []struct {
		name string
		desc string
	}{
		{"threshold N, N", "Re-run matching at threshold N (cancels a running match)"},
		{"cancel", "Stop the running match"},
		{"ignore A B", "Toggle whether records A and B are a known non-duplicate"},
		{"show [all]", "List the last completed result (all: include ignored)"},
		{"max", "Highest score seen so far"},
		{"status", "Current run state and progress"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit"},
	}

	r.withOut(func(w io.Writer) {
		fmt.Fprintf(w, "\n%s\n\n", cyan("Available Commands:"))
		for _, c := range commands {
			fmt.Fprintf(w, "  %-16s %s\n", green(c.name), c.desc)
		}
		fmt.Fprintln(w)
	})
	return nil
}

// cmdExit exits the REPL
func (r *REPL) cmdExit(args []string) error {
	r.session.Cancel()
	green := color.New(color.FgGreen).SprintFunc()
	r.printf("\n%s Goodbye!\n", green("✓"))
	return io.EOF // Signal to exit the loop
}

func (r *REPL) setOut(w io.Writer) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	r.out = w
}

func (r *REPL) withOut(fn func(io.Writer)) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fn(r.out)
}

func (r *REPL) printf(format string, args ...interface{}) {
	r.withOut(func(w io.Writer) { fmt.Fprintf(w, format, args...) })
}

func (r *REPL) printError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	r.printf("%s %v\n", red("Error:"), err)
}
