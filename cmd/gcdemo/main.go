package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/reclaim/gc"
	"github.com/wippyai/reclaim/heap"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#87CEEB"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	dropStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700"))
	weakStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6495ED"))
	collectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#DDA0DD"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	statStyle    = lipgloss.NewStyle().Bold(true)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
)

// Node is the demo payload. Finalization prints like a destructor would.
type Node struct {
	name  string
	paint func(lipgloss.Style, string) string
}

func (n *Node) Finalize() {
	fmt.Println(n.paint(dropStyle, "Deleting "+n.name))
}

func (n *Node) String() string { return n.name }

func main() {
	var (
		cycles      = flag.Int("cycles", 1, "Number of cycle pairs to create")
		breakCycles = flag.Bool("break", false, "Break cycles before collection")
		weakDemo    = flag.Bool("weak", false, "Run weak reference demonstration")
		stats       = flag.Bool("stats", false, "Print collector statistics")
		retain      = flag.Bool("retain", false, "Keep unreclaimable objects for inspection")
		quiet       = flag.Bool("quiet", false, "Disable diagnostic logging and the event log")
		colorMode   = flag.String("color", "auto", "Colorize output: auto, always, or never")
		maxObjects  = flag.Int("max-objects", 0, "Object store limit (0 = unbounded)")
		threshold   = flag.Int("threshold", 0, "Suspect count that auto-triggers a pass (0 = manual)")
		interactive = flag.Bool("i", false, "Interactive heap inspector TUI")
	)
	flag.Parse()

	colored, ok := colorEnabled(*colorMode)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid -color value %q (want auto, always, or never)\n", *colorMode)
		flag.Usage()
		os.Exit(1)
	}
	if *retain && *quiet {
		fmt.Fprintln(os.Stderr, "-retain needs diagnostics; it cannot be combined with -quiet")
		flag.Usage()
		os.Exit(1)
	}

	logger := zap.NewNop()
	if !*quiet {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	defer logger.Sync()
	heap.SetLogger(logger)
	gc.SetLogger(logger)

	cfg := demoConfig{
		cycles:      *cycles,
		breakCycles: *breakCycles,
		weakDemo:    *weakDemo,
		stats:       *stats,
		retain:      *retain,
		quiet:       *quiet,
		maxObjects:  *maxObjects,
		threshold:   *threshold,
		colored:     colored,
	}

	if *interactive {
		if err := runInteractive(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type demoConfig struct {
	cycles      int
	maxObjects  int
	threshold   int
	breakCycles bool
	weakDemo    bool
	stats       bool
	retain      bool
	quiet       bool
	colored     bool
}

func colorEnabled(mode string) (enabled, valid bool) {
	switch mode {
	case "always":
		return true, true
	case "never":
		return false, true
	case "auto":
		if os.Getenv("NO_COLOR") != "" {
			return false, true
		}
		return term.IsTerminal(int(os.Stdout.Fd())), true
	}
	return false, false
}

// eventPrinter renders the store's lifecycle events as a human-readable
// log. There is no compatibility contract on this output.
type eventPrinter struct {
	paint func(lipgloss.Style, string) string
}

func (p *eventPrinter) OnHeapEvent(e heap.Event) {
	switch e.Type {
	case heap.EventAllocated:
		fmt.Println(p.paint(stepStyle, fmt.Sprintf("  created %v (handle %d)", e.Payload, e.Handle)))
	case heap.EventEdgeAdded:
		fmt.Println(p.paint(stepStyle, fmt.Sprintf("  edge %d -> %d", e.Handle, e.Target)))
	case heap.EventEdgeRemoved:
		fmt.Println(p.paint(stepStyle, fmt.Sprintf("  edge %d -/-> %d removed", e.Handle, e.Target)))
	case heap.EventRootBound:
		fmt.Println(p.paint(stepStyle, fmt.Sprintf("  root %q -> handle %d", e.Root, e.Handle)))
	case heap.EventRootUnbound:
		fmt.Println(p.paint(dropStyle, fmt.Sprintf("  root %q dropped", e.Root)))
	case heap.EventSuspected:
		fmt.Println(p.paint(dropStyle, fmt.Sprintf("  handle %d is a cycle suspect", e.Handle)))
	case heap.EventReclaimed:
		fmt.Println(p.paint(okStyle, fmt.Sprintf("  reclaimed %v (handle %d)", e.Payload, e.Handle)))
	case heap.EventFinalizerFault:
		fmt.Println(p.paint(errorStyle, fmt.Sprintf("  finalizer fault on handle %d: %v", e.Handle, e.Err)))
	}
}

func run(cfg demoConfig) error {
	paint := painter(cfg.colored)

	store := heap.NewStore(cfg.maxObjects)
	collector := gc.New(store, gc.Config{
		CandidateThreshold:  cfg.threshold,
		RetainUnreclaimable: cfg.retain,
	})
	if !cfg.quiet {
		store.Subscribe(&eventPrinter{paint: paint})
	}

	fmt.Println(paint(headerStyle, fmt.Sprintf("Creating %d cycle pair(s)...", cfg.cycles)))
	type pair struct{ a, b heap.Handle }
	pairs := make([]pair, 0, cfg.cycles)
	for i := 0; i < cfg.cycles; i++ {
		aName := fmt.Sprintf("A%d", i)
		bName := fmt.Sprintf("B%d", i)
		a, err := store.Allocate(&Node{name: aName, paint: paint})
		if err != nil {
			return err
		}
		b, err := store.Allocate(&Node{name: bName, paint: paint})
		if err != nil {
			return err
		}
		for _, bind := range []struct {
			name string
			h    heap.Handle
		}{{aName, a}, {bName, b}} {
			if err := store.RootBind(bind.name, bind.h); err != nil {
				return err
			}
		}
		if err := store.AddEdge(a, b); err != nil {
			return err
		}
		if err := store.AddEdge(b, a); err != nil {
			return err
		}
		pairs = append(pairs, pair{a, b})
	}

	if cfg.breakCycles {
		fmt.Println(paint(dropStyle, "Breaking cycles before collection..."))
		for _, p := range pairs {
			if err := store.RemoveEdge(p.a, p.b); err != nil {
				return err
			}
			// The first removal may have reclaimed both ends already
			if _, ok := store.Get(p.b); ok {
				if err := store.RemoveEdge(p.b, p.a); err != nil {
					return err
				}
			}
		}
	}

	fmt.Println(paint(stepStyle, "Dropping root bindings..."))
	for i := 0; i < cfg.cycles; i++ {
		for _, name := range []string{fmt.Sprintf("A%d", i), fmt.Sprintf("B%d", i)} {
			if _, ok := store.Roots()[name]; ok {
				if err := store.RootUnbind(name); err != nil {
					return err
				}
			}
		}
	}

	if cfg.weakDemo {
		if err := weakrefDemo(store, paint); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Println(paint(collectStyle, "Collecting garbage..."))
	reclaimed := collector.Collect()
	fmt.Println(paint(okStyle, fmt.Sprintf("Collector reclaimed %d unreachable object(s).", reclaimed)))

	if cfg.retain {
		retained := collector.Retained()
		if len(retained) > 0 {
			fmt.Println(paint(errorStyle, fmt.Sprintf("Uncollectable retained for inspection: %d", len(retained))))
			for i, h := range retained {
				payload, _ := store.Get(h)
				fmt.Println(paint(errorStyle, fmt.Sprintf("  [%d] handle=%d payload=%v", i+1, h, payload)))
			}
		}
	}

	if cfg.stats {
		printStats(store, collector, paint)
	}
	return nil
}

func weakrefDemo(store *heap.Store, paint func(lipgloss.Style, string) string) error {
	fmt.Println(paint(weakStyle, "Running weak reference demo..."))

	a, err := store.Allocate(&Node{name: "Weak-A", paint: paint})
	if err != nil {
		return err
	}
	b, err := store.Allocate(&Node{name: "Weak-B", paint: paint})
	if err != nil {
		return err
	}
	if err := store.RootBind("weak-a", a); err != nil {
		return err
	}
	if err := store.RootBind("weak-b", b); err != nil {
		return err
	}

	wa := store.WeakRef(a)
	wb := store.WeakRef(b)

	if err := store.RootUnbind("weak-a"); err != nil {
		return err
	}
	if err := store.RootUnbind("weak-b"); err != nil {
		return err
	}

	_, aAlive := store.Resolve(wa)
	_, bAlive := store.Resolve(wb)
	fmt.Println(paint(weakStyle, fmt.Sprintf("Weakrefs alive? A=%v B=%v", aAlive, bAlive)))
	return nil
}

func printStats(store *heap.Store, collector *gc.Collector, paint func(lipgloss.Style, string) string) {
	stats := collector.Stats()
	fmt.Println(paint(statStyle, "Collector statistics:"))
	fmt.Println(paint(stepStyle, fmt.Sprintf("  passes=%d reclaimed=%d retained=%d suspects=%d live=%d",
		stats.Passes, stats.Reclaimed, stats.Retained, stats.Suspects, store.Len())))
	for _, p := range stats.History {
		fmt.Println(paint(stepStyle, fmt.Sprintf("  Pass %d: candidates=%d reclaimed=%d retained=%d",
			p.Pass, p.Candidates, p.Reclaimed, p.Retained)))
	}
}

func painter(colored bool) func(lipgloss.Style, string) string {
	if !colored {
		return func(_ lipgloss.Style, s string) string { return s }
	}
	return func(st lipgloss.Style, s string) string { return st.Render(s) }
}
