package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/reclaim/gc"
	"github.com/wippyai/reclaim/heap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	tableHeadStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// inspectNode is the payload used in the TUI. It keeps finalization
// silent; reclamation shows up in the event log instead.
type inspectNode struct {
	name string
}

func (n *inspectNode) String() string { return n.name }

type watch struct {
	label string
	ref   heap.WeakRef
}

// eventLog keeps the most recent store events for display.
type eventLog struct {
	lines []string
}

const eventLogDepth = 8

func (l *eventLog) OnHeapEvent(e heap.Event) {
	var line string
	switch e.Type {
	case heap.EventAllocated:
		line = fmt.Sprintf("created %v (handle %d)", e.Payload, e.Handle)
	case heap.EventEdgeAdded:
		line = fmt.Sprintf("edge %d -> %d", e.Handle, e.Target)
	case heap.EventEdgeRemoved:
		line = fmt.Sprintf("edge %d -/-> %d removed", e.Handle, e.Target)
	case heap.EventRootBound:
		line = fmt.Sprintf("root %q -> handle %d", e.Root, e.Handle)
	case heap.EventRootUnbound:
		line = fmt.Sprintf("root %q dropped", e.Root)
	case heap.EventSuspected:
		line = fmt.Sprintf("handle %d is a cycle suspect", e.Handle)
	case heap.EventReclaimed:
		line = fmt.Sprintf("reclaimed %v (handle %d)", e.Payload, e.Handle)
	case heap.EventFinalizerFault:
		line = fmt.Sprintf("finalizer fault on handle %d", e.Handle)
	}
	l.lines = append(l.lines, line)
	if len(l.lines) > eventLogDepth {
		l.lines = l.lines[len(l.lines)-eventLogDepth:]
	}
}

type inspectorModel struct {
	store     *heap.Store
	collector *gc.Collector
	log       *eventLog
	result    string
	err       error
	watches   []watch
	input     textinput.Model
}

func newInspectorModel(cfg demoConfig) *inspectorModel {
	store := heap.NewStore(cfg.maxObjects)
	collector := gc.New(store, gc.Config{
		CandidateThreshold:  cfg.threshold,
		RetainUnreclaimable: cfg.retain,
	})
	log := &eventLog{}
	store.Subscribe(log)

	input := textinput.New()
	input.Placeholder = "new a | link 1 2 | unlink 1 2 | root r 1 | unroot r | watch 1 | gc | quit"
	input.Focus()

	return &inspectorModel{
		store:     store,
		collector: collector,
		log:       log,
		input:     input,
	}
}

func (m *inspectorModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			if line == "quit" || line == "q" {
				return m, tea.Quit
			}
			m.result, m.err = m.execute(line)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *inspectorModel) execute(line string) (string, error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "new":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: new <name>")
		}
		name := args[0]
		h, err := m.store.Allocate(&inspectNode{name: name})
		if err != nil {
			return "", err
		}
		if err := m.store.RootBind(name, h); err != nil {
			return "", err
		}
		return fmt.Sprintf("allocated %q as handle %d (rooted)", name, h), nil

	case "link", "unlink":
		if len(args) != 2 {
			return "", fmt.Errorf("usage: %s <from> <to>", cmd)
		}
		from, err := parseHandle(args[0])
		if err != nil {
			return "", err
		}
		to, err := parseHandle(args[1])
		if err != nil {
			return "", err
		}
		if cmd == "link" {
			if err := m.store.AddEdge(from, to); err != nil {
				return "", err
			}
			return fmt.Sprintf("edge %d -> %d", from, to), nil
		}
		if err := m.store.RemoveEdge(from, to); err != nil {
			return "", err
		}
		return fmt.Sprintf("edge %d -> %d removed", from, to), nil

	case "root":
		if len(args) != 2 {
			return "", fmt.Errorf("usage: root <name> <handle>")
		}
		h, err := parseHandle(args[1])
		if err != nil {
			return "", err
		}
		if err := m.store.RootBind(args[0], h); err != nil {
			return "", err
		}
		return fmt.Sprintf("root %q -> handle %d", args[0], h), nil

	case "unroot":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: unroot <name>")
		}
		if err := m.store.RootUnbind(args[0]); err != nil {
			return "", err
		}
		return fmt.Sprintf("root %q dropped", args[0]), nil

	case "watch":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: watch <handle>")
		}
		h, err := parseHandle(args[0])
		if err != nil {
			return "", err
		}
		label := fmt.Sprintf("handle %d", h)
		if payload, ok := m.store.Get(h); ok {
			label = fmt.Sprintf("%v (handle %d)", payload, h)
		}
		m.watches = append(m.watches, watch{label: label, ref: m.store.WeakRef(h)})
		return fmt.Sprintf("watching %s", label), nil

	case "gc":
		reclaimed := m.collector.Collect()
		return fmt.Sprintf("pass reclaimed %d object(s)", reclaimed), nil

	default:
		return "", fmt.Errorf("unknown command %q", cmd)
	}
}

func parseHandle(s string) (heap.Handle, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad handle %q", s)
	}
	return heap.Handle(n), nil
}

func (m *inspectorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("reclaim heap inspector"))
	b.WriteString("\n\n")

	// Reverse root lookup for the table
	rootsOf := make(map[heap.Handle][]string)
	for name, h := range m.store.Roots() {
		rootsOf[h] = append(rootsOf[h], name)
	}
	for _, names := range rootsOf {
		sort.Strings(names)
	}

	b.WriteString(tableHeadStyle.Render(fmt.Sprintf("%-8s %-12s %-4s %-16s %s", "HANDLE", "NAME", "RC", "EDGES", "ROOTS")))
	b.WriteByte('\n')
	for _, obj := range m.store.Objects() {
		edges := make([]string, len(obj.Out))
		for i, t := range obj.Out {
			edges[i] = strconv.Itoa(int(t))
		}
		b.WriteString(fmt.Sprintf("%-8d %-12v %-4d %-16s %s\n",
			obj.Handle, obj.Payload, obj.RC,
			strings.Join(edges, ","),
			strings.Join(rootsOf[obj.Handle], ",")))
	}

	if len(m.watches) > 0 {
		b.WriteByte('\n')
		b.WriteString(tableHeadStyle.Render("WATCHES"))
		b.WriteByte('\n')
		for _, w := range m.watches {
			if _, ok := m.store.Resolve(w.ref); ok {
				b.WriteString(resultStyle.Render(fmt.Sprintf("%s: alive", w.label)))
			} else {
				b.WriteString(failStyle.Render(fmt.Sprintf("%s: dead", w.label)))
			}
			b.WriteByte('\n')
		}
	}

	stats := m.collector.Stats()
	b.WriteByte('\n')
	b.WriteString(logStyle.Render(fmt.Sprintf("passes=%d reclaimed=%d retained=%d suspects=%d live=%d",
		stats.Passes, stats.Reclaimed, stats.Retained, stats.Suspects, m.store.Len())))
	b.WriteByte('\n')

	if len(m.log.lines) > 0 {
		b.WriteByte('\n')
		for _, line := range m.log.lines {
			b.WriteString(logStyle.Render("  " + line))
			b.WriteByte('\n')
		}
	}

	b.WriteByte('\n')
	if m.err != nil {
		b.WriteString(failStyle.Render("error: " + m.err.Error()))
		b.WriteByte('\n')
	} else if m.result != "" {
		b.WriteString(resultStyle.Render(m.result))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(m.input.View())
	b.WriteByte('\n')
	b.WriteString(helpStyle.Render("enter: run command • esc: quit"))
	b.WriteByte('\n')

	return b.String()
}

func runInteractive(cfg demoConfig) error {
	p := tea.NewProgram(newInspectorModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
