package heap

// WeakRef observes an object's liveness without contributing to its
// reference count. Slots are reused free-list style, so a weak reference
// carries the generation stamp of the object it was created against; a
// reused slot bumps the generation and stale references stay dead.
type WeakRef struct {
	slot Handle
	gen  uint32
}

// WeakRef creates a weak reference to a handle. A dead or never-allocated
// handle yields a reference that always resolves dead; this is not an
// error, the table does not distinguish "never existed" from "died".
func (s *Store) WeakRef(h Handle) WeakRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryAt(h)
	if e == nil {
		return WeakRef{}
	}
	return WeakRef{slot: h, gen: e.gen}
}

// Resolve returns the target handle if it is still live. Once a target
// has been reclaimed, Resolve returns false permanently.
func (s *Store) Resolve(w WeakRef) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryAt(w.slot)
	if e == nil || e.gen != w.gen {
		return 0, false
	}
	return w.slot, true
}
