// Package heap implements a reference-counted object store with named
// roots, weak references, and fault-isolated finalizers.
//
// # Object Lifecycle
//
// Objects are created with Allocate and referenced through opaque
// handles:
//
//	store := heap.NewStore(0)
//
//	a, _ := store.Allocate(payloadA)
//	b, _ := store.Allocate(payloadB)
//
//	// Strong edges extend lifetime
//	store.AddEdge(a, b)
//
//	// Named roots anchor reachability
//	store.RootBind("r", a)
//
// Reference counts are maintained incrementally. When a count reaches
// zero the object is reclaimed immediately and the free cascades through
// its outgoing edges. This O(1)-per-mutation path handles all acyclic
// garbage; objects whose count decrements without reaching zero are
// flagged as cycle suspects for a collector pass (see package gc).
//
// # Weak References
//
// Weak references observe liveness without extending it:
//
//	w := store.WeakRef(a)
//	if _, ok := store.Resolve(w); !ok {
//		// a has been reclaimed
//	}
//
// Resolution is O(1), never fails with an error, and is monotonic: once
// a target is dead it stays dead.
//
// # Finalizers
//
// Payloads implementing the Finalizer interface are finalized exactly
// once at reclamation time. A panicking finalizer is contained, logged,
// and recorded via FinalizerFaults; it never aborts the reclamation of
// its own object or of any other object in the same pass.
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	store.Subscribe(obs) // EventAllocated, EventReclaimed, ...
//
// Events are delivered after the store's lock is released.
package heap
