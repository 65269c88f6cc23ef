package gc

import (
	"testing"

	"github.com/wippyai/reclaim/heap"
)

type node struct {
	name      string
	finalized *int
}

func (n *node) Finalize() {
	if n.finalized != nil {
		*n.finalized++
	}
}

type faultyNode struct {
	name string
	ran  *int
}

func (n *faultyNode) Finalize() {
	*n.ran++
	panic("finalizer exploded")
}

// makeCyclePair builds a rooted a<->b cycle and returns the handles.
func makeCyclePair(t *testing.T, s *heap.Store, aName, bName string, count *int) (heap.Handle, heap.Handle) {
	t.Helper()
	a, err := s.Allocate(&node{name: aName, finalized: count})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	b, err := s.Allocate(&node{name: bName, finalized: count})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := s.RootBind(aName, a); err != nil {
		t.Fatalf("RootBind failed: %v", err)
	}
	if err := s.RootBind(bName, b); err != nil {
		t.Fatalf("RootBind failed: %v", err)
	}
	if err := s.AddEdge(a, b); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	if err := s.AddEdge(b, a); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	return a, b
}

func TestCollector_SelfCycle(t *testing.T) {
	s := heap.NewStore(0)
	c := New(s, Config{})
	count := 0

	a, _ := s.Allocate(&node{name: "a", finalized: &count})
	s.RootBind("r", a)
	s.AddEdge(a, a)
	s.RootUnbind("r")

	// Only its own edge keeps it alive
	if s.Len() != 1 {
		t.Fatalf("self cycle should survive root drop, got %d", s.Len())
	}

	if got := c.Collect(); got != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", got)
	}
	if count != 1 {
		t.Fatalf("expected finalizer to run once, ran %d times", count)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
}

func TestCollector_MutualCycle(t *testing.T) {
	s := heap.NewStore(0)
	c := New(s, Config{})
	count := 0

	a, b := makeCyclePair(t, s, "a", "b", &count)
	s.RootUnbind("a")
	s.RootUnbind("b")

	if s.Len() != 2 {
		t.Fatal("cycle should survive root drops until a pass runs")
	}

	wa, wb := s.WeakRef(a), s.WeakRef(b)

	if got := c.Collect(); got != 2 {
		t.Fatalf("expected reclaim count 2, got %d", got)
	}
	if count != 2 {
		t.Fatalf("expected 2 finalizations, got %d", count)
	}
	if _, ok := s.Resolve(wa); ok {
		t.Fatal("a should be dead")
	}
	if _, ok := s.Resolve(wb); ok {
		t.Fatal("b should be dead")
	}
}

func TestCollector_RootedObjectIsSafe(t *testing.T) {
	s := heap.NewStore(0)
	c := New(s, Config{})

	a, b := makeCyclePair(t, s, "a", "b", nil)
	s.RootUnbind("b") // a stays rooted, keeping the whole cycle alive

	wa, wb := s.WeakRef(a), s.WeakRef(b)

	if got := c.Collect(); got != 0 {
		t.Fatalf("expected nothing reclaimed, got %d", got)
	}
	if _, ok := s.Resolve(wa); !ok {
		t.Fatal("rooted object must never be reclaimed")
	}
	if _, ok := s.Resolve(wb); !ok {
		t.Fatal("object reachable from a root must never be reclaimed")
	}

	// Dropping the last root makes the next pass reclaim both
	s.RootUnbind("a")
	if got := c.Collect(); got != 2 {
		t.Fatalf("expected 2 reclaimed after last root dropped, got %d", got)
	}
}

func TestCollector_ManyCyclesOnePass(t *testing.T) {
	s := heap.NewStore(0)
	c := New(s, Config{})
	count := 0

	const pairs = 5
	for i := 0; i < pairs; i++ {
		aName := "a" + string(rune('0'+i))
		bName := "b" + string(rune('0'+i))
		makeCyclePair(t, s, aName, bName, &count)
		s.RootUnbind(aName)
		s.RootUnbind(bName)
	}

	if got := c.Collect(); got != 2*pairs {
		t.Fatalf("expected %d reclaimed, got %d", 2*pairs, got)
	}
	if count != 2*pairs {
		t.Fatalf("expected %d finalizations, got %d", 2*pairs, count)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
}

func TestCollector_ThresholdAutoTrigger(t *testing.T) {
	s := heap.NewStore(0)
	c := New(s, Config{CandidateThreshold: 1})

	makeCyclePair(t, s, "a", "b", nil)
	s.RootUnbind("a") // triggers a pass; cycle still rooted via b, survives
	if s.Len() != 2 {
		t.Fatalf("pass must not reclaim a rooted cycle, got %d", s.Len())
	}

	s.RootUnbind("b") // triggers again; now the cycle is garbage
	if s.Len() != 0 {
		t.Fatalf("expected auto-triggered pass to reclaim the cycle, got %d", s.Len())
	}

	stats := c.Stats()
	if stats.Passes != 2 {
		t.Fatalf("expected 2 passes, got %d", stats.Passes)
	}
	if stats.Reclaimed != 2 {
		t.Fatalf("expected 2 reclaimed total, got %d", stats.Reclaimed)
	}
}

func TestCollector_RetainMode(t *testing.T) {
	s := heap.NewStore(0)
	c := New(s, Config{RetainUnreclaimable: true})
	count := 0

	a, b := makeCyclePair(t, s, "a", "b", &count)
	s.RootUnbind("a")
	s.RootUnbind("b")

	if got := c.Collect(); got != 0 {
		t.Fatalf("retain mode must not reclaim, got %d", got)
	}
	if count != 0 {
		t.Fatalf("retain mode must not finalize, ran %d", count)
	}

	retained := c.Retained()
	if len(retained) != 2 {
		t.Fatalf("expected 2 retained handles, got %d", len(retained))
	}
	if retained[0] != a || retained[1] != b {
		t.Fatalf("unexpected retained handles: %v", retained)
	}
	if _, ok := s.Get(a); !ok {
		t.Fatal("retained object must stay inspectable")
	}

	// A second pass has no candidates left and retains nothing new
	c.Collect()
	if len(c.Retained()) != 2 {
		t.Fatal("retained list must not grow on an empty pass")
	}

	stats := c.Stats()
	if stats.Retained != 2 {
		t.Fatalf("expected stats to report 2 retained, got %d", stats.Retained)
	}
}

func TestCollector_FinalizerFaultDoesNotStopPass(t *testing.T) {
	s := heap.NewStore(0)
	c := New(s, Config{})
	faultyRan := 0
	cleanRan := 0

	// Three-object cycle, middle one faults during finalization
	a, _ := s.Allocate(&node{name: "a", finalized: &cleanRan})
	b, _ := s.Allocate(&faultyNode{name: "b", ran: &faultyRan})
	d, _ := s.Allocate(&node{name: "d", finalized: &cleanRan})
	s.RootBind("r", a)
	s.AddEdge(a, b)
	s.AddEdge(b, d)
	s.AddEdge(d, a)
	s.RootUnbind("r")

	if got := c.Collect(); got != 3 {
		t.Fatalf("faulting object still counts as reclaimed, expected 3, got %d", got)
	}
	if faultyRan != 1 {
		t.Fatalf("faulty finalizer should have run once, ran %d", faultyRan)
	}
	if cleanRan != 2 {
		t.Fatalf("other finalizers must still run, ran %d", cleanRan)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
	if len(s.FinalizerFaults()) != 1 {
		t.Fatalf("expected 1 recorded fault, got %d", len(s.FinalizerFaults()))
	}
}

func TestCollector_ExternalTargetSurvivesAndIsSuspected(t *testing.T) {
	s := heap.NewStore(0)
	c := New(s, Config{})

	a, b := makeCyclePair(t, s, "a", "b", nil)
	x, _ := s.Allocate(&node{name: "x"})
	s.RootBind("rx", x)
	s.AddEdge(a, x) // dead cycle holds an extra ref on a rooted object
	s.RootUnbind("a")
	s.RootUnbind("b")

	if got := c.Collect(); got != 2 {
		t.Fatalf("expected the cycle reclaimed, got %d", got)
	}
	if _, ok := s.Get(x); !ok {
		t.Fatal("externally rooted target must survive")
	}

	rc, _ := s.RefCount(x)
	if rc != 1 {
		t.Fatalf("expected x refcount back to 1, got %d", rc)
	}

	// The cascade decrement flags x for the next pass
	stats := c.Stats()
	if stats.Suspects != 1 {
		t.Fatalf("expected 1 fresh suspect, got %d", stats.Suspects)
	}
	_ = b
}

func TestCollector_UnreachableAllReclaimed(t *testing.T) {
	s := heap.NewStore(0)
	c := New(s, Config{})

	// root -> r -> shared; cycle c1<->c2 with c1 -> shared
	r, _ := s.Allocate(&node{name: "r"})
	shared, _ := s.Allocate(&node{name: "shared"})
	c1, _ := s.Allocate(&node{name: "c1"})
	c2, _ := s.Allocate(&node{name: "c2"})
	s.RootBind("root", r)
	s.RootBind("c1", c1)
	s.AddEdge(r, shared)
	s.AddEdge(c1, c2)
	s.AddEdge(c2, c1)
	s.AddEdge(c1, shared)
	s.RootUnbind("c1")

	if got := c.Collect(); got != 2 {
		t.Fatalf("expected only the cycle reclaimed, got %d", got)
	}

	if _, ok := s.Get(r); !ok {
		t.Fatal("rooted object must survive")
	}
	if _, ok := s.Get(shared); !ok {
		t.Fatal("root-reachable object must survive")
	}
	if _, ok := s.Get(c1); ok {
		t.Fatal("c1 should be reclaimed")
	}
	if _, ok := s.Get(c2); ok {
		t.Fatal("c2 should be reclaimed")
	}
}

func TestCollector_StatsHistory(t *testing.T) {
	s := heap.NewStore(0)
	c := New(s, Config{})

	makeCyclePair(t, s, "a", "b", nil)
	s.RootUnbind("a")
	s.RootUnbind("b")
	c.Collect()

	makeCyclePair(t, s, "c", "d", nil)
	s.RootUnbind("c")
	s.RootUnbind("d")
	c.Collect()

	stats := c.Stats()
	if stats.Passes != 2 {
		t.Fatalf("expected 2 passes, got %d", stats.Passes)
	}
	if stats.Reclaimed != 4 {
		t.Fatalf("expected 4 reclaimed total, got %d", stats.Reclaimed)
	}
	if len(stats.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(stats.History))
	}
	if stats.History[0].Pass != 1 || stats.History[0].Reclaimed != 2 {
		t.Fatalf("unexpected first pass entry: %+v", stats.History[0])
	}
	if stats.History[1].Pass != 2 || stats.History[1].Reclaimed != 2 {
		t.Fatalf("unexpected second pass entry: %+v", stats.History[1])
	}
	if stats.Suspects != 0 {
		t.Fatalf("expected no suspects left, got %d", stats.Suspects)
	}
}

func TestCollector_EmptyPass(t *testing.T) {
	s := heap.NewStore(0)
	c := New(s, Config{})

	if got := c.Collect(); got != 0 {
		t.Fatalf("expected empty pass to reclaim nothing, got %d", got)
	}
	if c.Stats().Passes != 1 {
		t.Fatal("empty pass still counts")
	}
}
