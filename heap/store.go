package heap

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/reclaim/errors"
)

// Store owns all live object records. It maintains direct reference
// counts incrementally: a decrement to zero reclaims the object at once
// and cascades through its outgoing edges (the cheap acyclic path).
// Objects kept alive only by cycles are flagged as suspects and left
// for a collector pass.
type Store struct {
	entries   []entry
	freeList  []Handle
	roots     map[string]Handle
	faults    []error
	observers []Observer
	mu        sync.Mutex
	obsMu     sync.RWMutex
	limit     int
	live      int
}

type entry struct {
	payload   any
	out       []Handle
	rc        uint32
	gen       uint32
	finalized bool
	valid     bool
}

// NewStore creates an empty store. A limit of zero or less means the
// store is unbounded.
func NewStore(limit int) *Store {
	return &Store{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
		roots:    make(map[string]Handle),
		limit:    limit,
	}
}

// Allocate stores a payload and returns its handle.
// Returns ResourceExhausted once the store limit is reached.
func (s *Store) Allocate(payload any) (Handle, error) {
	s.mu.Lock()

	if s.limit > 0 && s.live >= s.limit {
		s.mu.Unlock()
		return 0, errors.ResourceExhausted(s.limit)
	}

	var h Handle
	if len(s.freeList) > 0 {
		h = s.freeList[len(s.freeList)-1]
		s.freeList = s.freeList[:len(s.freeList)-1]
		e := &s.entries[h-1]
		e.payload = payload
		e.valid = true
		e.finalized = false
	} else {
		s.entries = append(s.entries, entry{payload: payload, gen: 1, valid: true})
		h = Handle(len(s.entries))
	}
	s.live++

	s.mu.Unlock()
	s.notify(Event{Type: EventAllocated, Handle: h, Payload: payload})
	return h, nil
}

// AddEdge records a strong reference from one object to another and
// increments the target's count. Self edges are allowed.
func (s *Store) AddEdge(from, to Handle) error {
	s.mu.Lock()

	fe := s.entryAt(from)
	if fe == nil {
		s.mu.Unlock()
		return errors.InvalidHandle(errors.PhaseMutate, uint32(from))
	}
	te := s.entryAt(to)
	if te == nil {
		s.mu.Unlock()
		return errors.InvalidHandle(errors.PhaseMutate, uint32(to))
	}

	fe.out = append(fe.out, to)
	te.rc++

	s.mu.Unlock()
	s.notify(Event{Type: EventEdgeAdded, Handle: from, Target: to})
	return nil
}

// RemoveEdge removes one occurrence of a strong reference and decrements
// the target's count. A decrement to zero reclaims the target immediately
// and cascades; a decrement to a positive count flags the target as a
// cycle suspect.
func (s *Store) RemoveEdge(from, to Handle) error {
	s.mu.Lock()

	fe := s.entryAt(from)
	if fe == nil {
		s.mu.Unlock()
		return errors.InvalidHandle(errors.PhaseMutate, uint32(from))
	}

	idx := -1
	for i, t := range fe.out {
		if t == to {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return errors.New(errors.PhaseMutate, errors.KindNotFound).
			Handle(uint32(from)).
			Detail("no edge to handle %d", to).
			Build()
	}
	fe.out = append(fe.out[:idx], fe.out[idx+1:]...)

	var events []Event
	events = append(events, Event{Type: EventEdgeRemoved, Handle: from, Target: to})
	s.decRefLocked(to, &events)

	s.mu.Unlock()
	s.notify(events...)
	return nil
}

// RootBind anchors an object under a named top-level binding.
// Rebinding an existing name releases the previous target first.
func (s *Store) RootBind(name string, h Handle) error {
	s.mu.Lock()

	e := s.entryAt(h)
	if e == nil {
		s.mu.Unlock()
		return errors.InvalidHandle(errors.PhaseRoot, uint32(h))
	}

	old, rebound := s.roots[name]
	if rebound && old == h {
		s.mu.Unlock()
		return nil
	}

	e.rc++
	s.roots[name] = h

	var events []Event
	events = append(events, Event{Type: EventRootBound, Handle: h, Root: name})
	if rebound {
		s.decRefLocked(old, &events)
	}

	s.mu.Unlock()
	s.notify(events...)
	return nil
}

// RootUnbind drops a named binding, decrementing its target.
func (s *Store) RootUnbind(name string) error {
	s.mu.Lock()

	h, ok := s.roots[name]
	if !ok {
		s.mu.Unlock()
		return errors.NotFound(errors.PhaseRoot, "root", name)
	}
	delete(s.roots, name)

	var events []Event
	events = append(events, Event{Type: EventRootUnbound, Handle: h, Root: name})
	s.decRefLocked(h, &events)

	s.mu.Unlock()
	s.notify(events...)
	return nil
}

// Get retrieves a payload by handle.
func (s *Store) Get(h Handle) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryAt(h)
	if e == nil {
		return nil, false
	}
	return e.payload, true
}

// RefCount returns the direct reference count for a handle.
func (s *Store) RefCount(h Handle) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryAt(h)
	if e == nil {
		return 0, false
	}
	return e.rc, true
}

// Outgoing returns a copy of an object's outgoing edge list.
func (s *Store) Outgoing(h Handle) ([]Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryAt(h)
	if e == nil {
		return nil, false
	}
	out := make([]Handle, len(e.out))
	copy(out, e.out)
	return out, true
}

// Len returns the number of live objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Roots returns a copy of the current root set.
func (s *Store) Roots() map[string]Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	roots := make(map[string]Handle, len(s.roots))
	for name, h := range s.roots {
		roots[name] = h
	}
	return roots
}

// Objects returns a snapshot of every live object in handle order.
func (s *Store) Objects() []ObjectInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	objs := make([]ObjectInfo, 0, s.live)
	for i := range s.entries {
		e := &s.entries[i]
		if !e.valid {
			continue
		}
		out := make([]Handle, len(e.out))
		copy(out, e.out)
		objs = append(objs, ObjectInfo{
			Handle:  Handle(i + 1),
			Payload: e.payload,
			RC:      e.rc,
			Out:     out,
		})
	}
	return objs
}

// Graph returns the subgraph reachable from seeds following strong
// edges, as a single consistent snapshot. Dead seeds are skipped.
func (s *Store) Graph(seeds []Handle) map[Handle]Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	graph := make(map[Handle]Node)
	work := make([]Handle, 0, len(seeds))
	for _, h := range seeds {
		if s.entryAt(h) != nil {
			work = append(work, h)
		}
	}
	for len(work) > 0 {
		h := work[len(work)-1]
		work = work[:len(work)-1]
		if _, seen := graph[h]; seen {
			continue
		}
		e := s.entryAt(h)
		if e == nil {
			continue
		}
		out := make([]Handle, len(e.out))
		copy(out, e.out)
		graph[h] = Node{RC: e.rc, Out: out}
		for _, t := range out {
			if _, seen := graph[t]; !seen {
				work = append(work, t)
			}
		}
	}
	return graph
}

// ReclaimSet finalizes and releases a set of objects already proven dead
// by a collector pass. Edges between set members are ignored; edges out
// of the set decrement their targets normally and may cascade. Returns
// the total number of objects reclaimed, cascade included.
func (s *Store) ReclaimSet(dead []Handle) int {
	s.mu.Lock()

	set := make(map[Handle]struct{}, len(dead))
	for _, h := range dead {
		if s.entryAt(h) != nil {
			set[h] = struct{}{}
		}
	}

	var events []Event

	// Finalize every member before any slot is released, so a finalizer
	// fault on one object cannot starve the others.
	for _, h := range dead {
		if e := s.entryAt(h); e != nil {
			s.finalizeLocked(h, e, &events)
		}
	}

	count := 0
	for _, h := range dead {
		e := s.entryAt(h)
		if e == nil {
			continue
		}
		out := e.out
		s.releaseLocked(h, e, &events)
		count++

		for _, t := range out {
			if _, internal := set[t]; internal {
				continue
			}
			count += s.decRefLocked(t, &events)
		}
	}

	s.mu.Unlock()
	s.notify(events...)
	return count
}

// FinalizerFaults returns the diagnostics accumulated from contained
// finalizer failures.
func (s *Store) FinalizerFaults() []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	faults := make([]error, len(s.faults))
	copy(faults, s.faults)
	return faults
}

// Subscribe adds an observer for lifecycle events.
func (s *Store) Subscribe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// Unsubscribe removes an observer.
func (s *Store) Unsubscribe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for i, obs := range s.observers {
		if obs == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *Store) entryAt(h Handle) *entry {
	if h == 0 {
		return nil
	}
	idx := int(h) - 1
	if idx >= len(s.entries) {
		return nil
	}
	e := &s.entries[idx]
	if !e.valid {
		return nil
	}
	return e
}

// decRefLocked decrements a handle's count. Zero reclaims at once and
// cascades; a positive remainder flags the handle as a cycle suspect.
// Returns the number of objects reclaimed.
func (s *Store) decRefLocked(h Handle, events *[]Event) int {
	e := s.entryAt(h)
	if e == nil {
		return 0
	}
	e.rc--
	if e.rc == 0 {
		return s.reclaimLocked(h, events)
	}
	*events = append(*events, Event{Type: EventSuspected, Handle: h})
	return 0
}

// reclaimLocked frees an object whose count reached zero, severing its
// outgoing edges and cascading to any target that also reaches zero.
func (s *Store) reclaimLocked(h Handle, events *[]Event) int {
	count := 0
	work := []Handle{h}
	for len(work) > 0 {
		h := work[len(work)-1]
		work = work[:len(work)-1]

		e := s.entryAt(h)
		if e == nil {
			continue
		}
		s.finalizeLocked(h, e, events)

		out := e.out
		s.releaseLocked(h, e, events)
		count++

		for _, t := range out {
			te := s.entryAt(t)
			if te == nil {
				continue
			}
			te.rc--
			if te.rc == 0 {
				work = append(work, t)
			} else {
				*events = append(*events, Event{Type: EventSuspected, Handle: t})
			}
		}
	}
	return count
}

// finalizeLocked dispatches a payload's finalizer exactly once. A panic
// is contained, logged, and recorded; it never aborts the reclamation.
func (s *Store) finalizeLocked(h Handle, e *entry, events *[]Event) {
	if e.finalized {
		return
	}
	e.finalized = true

	f, ok := e.payload.(Finalizer)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			fault := errors.FinalizerFault(uint32(h), r)
			s.faults = append(s.faults, fault)
			Logger().Warn("finalizer fault contained",
				zap.Uint32("handle", uint32(h)),
				zap.Error(fault))
			*events = append(*events, Event{Type: EventFinalizerFault, Handle: h, Err: fault})
		}
	}()
	f.Finalize()
}

// releaseLocked frees an object's slot and bumps its generation so
// outstanding weak references stay dead.
func (s *Store) releaseLocked(h Handle, e *entry, events *[]Event) {
	payload := e.payload
	e.valid = false
	e.payload = nil
	e.out = nil
	e.rc = 0
	e.gen++
	s.freeList = append(s.freeList, h)
	s.live--
	*events = append(*events, Event{Type: EventReclaimed, Handle: h, Payload: payload})
}

func (s *Store) notify(events ...Event) {
	s.obsMu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.RUnlock()

	for _, ev := range events {
		for _, o := range observers {
			o.OnHeapEvent(ev)
		}
	}
}
