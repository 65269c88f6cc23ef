package heap

// Handle is an opaque reference to an object in a store.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Event types for object lifecycle notifications.
type EventType uint8

const (
	EventAllocated EventType = iota
	EventEdgeAdded
	EventEdgeRemoved
	EventRootBound
	EventRootUnbound
	EventSuspected
	EventReclaimed
	EventFinalizerFault
)

// Event represents an object lifecycle event.
type Event struct {
	Payload any
	Err     error
	Root    string
	Handle  Handle
	Target  Handle
	Type    EventType
}

// Observer receives notifications about object lifecycle events.
// Events are delivered after the store's lock is released, so observers
// may call back into the store.
type Observer interface {
	OnHeapEvent(Event)
}

// Finalizer is optionally implemented by payloads that need cleanup.
// Finalize is called exactly once, at the moment of reclamation, while
// the store's lock is held: a finalizer must not call back into the store.
// A panic inside Finalize is contained and recorded as a diagnostic.
type Finalizer interface {
	Finalize()
}

// Node is a snapshot of an object's reference state, used by the
// cycle collector's trial-deletion pass.
type Node struct {
	Out []Handle
	RC  uint32
}

// ObjectInfo is a read-only snapshot of a live object.
type ObjectInfo struct {
	Payload any
	Out     []Handle
	Handle  Handle
	RC      uint32
}
