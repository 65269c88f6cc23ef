package heap

import "testing"

func TestWeakRef_AliveResolves(t *testing.T) {
	s := NewStore(0)

	h, _ := s.Allocate(&node{name: "a"})
	s.RootBind("r", h)

	w := s.WeakRef(h)
	got, ok := s.Resolve(w)
	if !ok {
		t.Fatal("expected live target to resolve")
	}
	if got != h {
		t.Fatalf("expected handle %d, got %d", h, got)
	}
}

func TestWeakRef_DoesNotExtendLifetime(t *testing.T) {
	s := NewStore(0)

	h, _ := s.Allocate(&node{name: "a"})
	s.RootBind("r", h)
	w := s.WeakRef(h)

	if err := s.RootUnbind("r"); err != nil {
		t.Fatalf("RootUnbind failed: %v", err)
	}

	if _, ok := s.Resolve(w); ok {
		t.Fatal("weak ref must not keep its target alive")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
}

func TestWeakRef_DeadStaysDeadAcrossSlotReuse(t *testing.T) {
	s := NewStore(0)

	h, _ := s.Allocate(&node{name: "a"})
	s.RootBind("r", h)
	w := s.WeakRef(h)
	s.RootUnbind("r")

	// The freed slot is reused by the next allocation
	h2, _ := s.Allocate(&node{name: "b"})
	if h2 != h {
		t.Fatalf("expected slot reuse, got %d vs %d", h2, h)
	}

	if _, ok := s.Resolve(w); ok {
		t.Fatal("stale weak ref must not resurrect against a reused slot")
	}

	// A fresh weak ref to the new occupant works
	w2 := s.WeakRef(h2)
	if _, ok := s.Resolve(w2); !ok {
		t.Fatal("fresh weak ref should resolve")
	}
}

func TestWeakRef_NeverAllocated(t *testing.T) {
	s := NewStore(0)

	w := s.WeakRef(999)
	if _, ok := s.Resolve(w); ok {
		t.Fatal("weak ref to a never-allocated handle must resolve dead")
	}

	w = s.WeakRef(0)
	if _, ok := s.Resolve(w); ok {
		t.Fatal("weak ref to handle 0 must resolve dead")
	}

	// Zero value behaves the same
	if _, ok := s.Resolve(WeakRef{}); ok {
		t.Fatal("zero weak ref must resolve dead")
	}
}
