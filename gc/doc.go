// Package gc implements a trial-deletion cycle collector for the heap
// package's reference-counted store.
//
// Reference counting alone cannot reclaim cycles: two objects pointing
// at each other hold each other's count above zero forever. The
// collector watches the store for cycle suspects (objects whose count
// decremented without reaching zero) and, on a pass, determines which
// suspects are only kept alive from inside their own subgraph:
//
//	store := heap.NewStore(0)
//	collector := gc.New(store, gc.Config{})
//
//	// ... build a cycle, drop its roots ...
//
//	reclaimed := collector.Collect()
//
// A pass is synchronous and stop-the-world relative to mutation: the
// closure snapshot is materialized in one step, the fixed-point
// computation runs to completion, and the dead set is reclaimed in one
// store call. There is no cancellation; the candidate set is bounded
// and already materialized when the pass begins.
//
// Configure Config.CandidateThreshold to trigger passes automatically,
// and Config.RetainUnreclaimable to keep dead cycles allocated for
// inspection instead of reclaiming them.
package gc
